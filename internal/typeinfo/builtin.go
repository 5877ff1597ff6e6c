// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// timeLayouts are the textual time formats returned by the supported drivers
// when a time is stored in a column the driver does not recognise as a time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

func init() {
	for _, c := range []*Codec{{
		Name:     "int64",
		Type:     reflect.TypeOf(int64(0)),
		Integral: true,
		Encode:   func(v any) (driver.Value, error) { return v.(int64), nil },
		Decode:   func(src any) (any, error) { return toInt64(src) },
	}, {
		Name:     "int",
		Type:     reflect.TypeOf(int(0)),
		Integral: true,
		Encode:   func(v any) (driver.Value, error) { return int64(v.(int)), nil },
		Decode: func(src any) (any, error) {
			i, err := toInt64(src)
			if err != nil {
				return nil, err
			}
			if strconv.IntSize == 32 && (i > math.MaxInt32 || i < math.MinInt32) {
				return nil, fmt.Errorf("value %d overflows int", i)
			}
			return int(i), nil
		},
	}, {
		Name:     "int32",
		Type:     reflect.TypeOf(int32(0)),
		Integral: true,
		Encode:   func(v any) (driver.Value, error) { return int64(v.(int32)), nil },
		Decode: func(src any) (any, error) {
			i, err := toInt64(src)
			if err != nil {
				return nil, err
			}
			if i > math.MaxInt32 || i < math.MinInt32 {
				return nil, fmt.Errorf("value %d overflows int32", i)
			}
			return int32(i), nil
		},
	}, {
		Name:   "float64",
		Type:   reflect.TypeOf(float64(0)),
		Encode: func(v any) (driver.Value, error) { return v.(float64), nil },
		Decode: func(src any) (any, error) {
			switch s := src.(type) {
			case float64:
				return s, nil
			case float32:
				return float64(s), nil
			case int64:
				return float64(s), nil
			case []byte:
				return strconv.ParseFloat(string(s), 64)
			case string:
				return strconv.ParseFloat(s, 64)
			}
			return nil, fmt.Errorf("unexpected driver type")
		},
	}, {
		Name:   "string",
		Type:   reflect.TypeOf(""),
		Encode: func(v any) (driver.Value, error) { return v.(string), nil },
		Decode: func(src any) (any, error) {
			switch s := src.(type) {
			case string:
				return s, nil
			case []byte:
				return string(s), nil
			}
			return nil, fmt.Errorf("unexpected driver type")
		},
	}, {
		Name:   "bool",
		Type:   reflect.TypeOf(false),
		Encode: func(v any) (driver.Value, error) { return v.(bool), nil },
		Decode: func(src any) (any, error) {
			switch s := src.(type) {
			case bool:
				return s, nil
			case int64:
				return s != 0, nil
			case []byte:
				return strconv.ParseBool(string(s))
			case string:
				return strconv.ParseBool(s)
			}
			return nil, fmt.Errorf("unexpected driver type")
		},
	}, {
		Name:   "[]byte",
		Type:   reflect.TypeOf([]byte(nil)),
		Encode: func(v any) (driver.Value, error) { return v.([]byte), nil },
		Decode: func(src any) (any, error) {
			switch s := src.(type) {
			case []byte:
				return bytes.Clone(s), nil
			case string:
				return []byte(s), nil
			}
			return nil, fmt.Errorf("unexpected driver type")
		},
	}, {
		Name:   "time.Time",
		Type:   reflect.TypeOf(time.Time{}),
		Encode: func(v any) (driver.Value, error) { return v.(time.Time), nil },
		Decode: func(src any) (any, error) {
			switch s := src.(type) {
			case time.Time:
				return s, nil
			case []byte:
				return parseTime(string(s))
			case string:
				return parseTime(s)
			}
			return nil, fmt.Errorf("unexpected driver type")
		},
	}} {
		if err := Register(c); err != nil {
			panic("internal error: " + err.Error())
		}
	}
}

// toInt64 converts the integer representations used by drivers to int64.
func toInt64(src any) (int64, error) {
	switch s := src.(type) {
	case int64:
		return s, nil
	case int32:
		return int64(s), nil
	case int:
		return int64(s), nil
	case []byte:
		return strconv.ParseInt(string(s), 10, 64)
	case string:
		return strconv.ParseInt(s, 10, 64)
	case float64:
		if s != math.Trunc(s) {
			return 0, fmt.Errorf("value %v is not integral", s)
		}
		return int64(s), nil
	}
	return 0, fmt.Errorf("unexpected driver type")
}

// parseTime parses s with the first matching layout. Times without an offset
// are in UTC. A non-zero offset is kept as a fixed zone: the instant and the
// offset survive a round trip but the name of the original Location does not.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time format %q", s)
}
