// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"database/sql/driver"
	"fmt"
	"reflect"

	"github.com/canonical/typedsql/internal/typeinfo"
)

// Codec is the encoder and decoder pair of a semantic type T. The built-in
// types int, int32, int64, float64, string, bool, []byte and time.Time are
// registered by default.
type Codec[T any] struct {
	// Name is used in error messages. It defaults to the Go type name.
	Name string

	// Integral marks whole number types, which can be auto incremented.
	Integral bool

	// Encode converts a T into a value accepted by database/sql drivers.
	Encode func(T) (driver.Value, error)

	// Decode converts a non-NULL value returned by the driver into a T.
	Decode func(src any) (T, error)
}

// RegisterType registers the codec of T. Columns of type T can only be
// defined once T is registered, and a type can only be registered once.
func RegisterType[T any](c Codec[T]) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if c.Encode == nil || c.Decode == nil {
		return fmt.Errorf("cannot register type %s: codec needs both an encoder and a decoder", typeinfo.PrettyTypeName(t))
	}
	err := typeinfo.Register(&typeinfo.Codec{
		Name:     c.Name,
		Type:     t,
		Integral: c.Integral,
		Encode:   func(v any) (driver.Value, error) { return c.Encode(v.(T)) },
		Decode: func(src any) (any, error) {
			v, err := c.Decode(src)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
	})
	if err != nil {
		return fmt.Errorf("cannot register type: %s", err)
	}
	return nil
}

// MustRegisterType is the same as [RegisterType] except that it panics on
// error.
func MustRegisterType[T any](c Codec[T]) {
	if err := RegisterType(c); err != nil {
		panic(err)
	}
}
