// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typeinfo

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Codec converts between Go values of a single type and the values exchanged
// with database/sql drivers.
type Codec struct {
	// Name is the name of the semantic type used in error messages.
	Name string

	// Type is the Go type handled by the codec.
	Type reflect.Type

	// Integral is true for whole number types. Only integral columns can be
	// auto incremented by the backend.
	Integral bool

	// Encode converts a value of Type into a driver value. The argument is
	// always of type Type.
	Encode func(v any) (driver.Value, error)

	// Decode converts a non-nil value returned by the driver into a value of
	// Type.
	Decode func(src any) (any, error)
}

// EncodeValue checks that v has the type of the codec and encodes it.
func (c *Codec) EncodeValue(v any) (driver.Value, error) {
	if v == nil {
		return nil, fmt.Errorf("need %s, got nil", c.Name)
	}
	if t := reflect.TypeOf(v); t != c.Type {
		return nil, fmt.Errorf("need %s, got %s", c.Name, PrettyTypeName(t))
	}
	return c.Encode(v)
}

// DecodeValue decodes a value returned by the driver. NULL decodes to the
// zero value of the type.
func (c *Codec) DecodeValue(src any) (any, error) {
	if src == nil {
		return reflect.Zero(c.Type).Interface(), nil
	}
	v, err := c.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %T into %s: %s", src, c.Name, err)
	}
	return v, nil
}

var registryMutex sync.RWMutex
var registry = make(map[reflect.Type]*Codec)

// Register adds c to the registry. A type can only be registered once.
func Register(c *Codec) error {
	if c == nil || c.Type == nil {
		return fmt.Errorf("cannot register codec without a type")
	}
	if c.Encode == nil || c.Decode == nil {
		return fmt.Errorf("codec for %s needs both an encoder and a decoder", PrettyTypeName(c.Type))
	}
	if c.Name == "" {
		c.Name = PrettyTypeName(c.Type)
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()
	if _, ok := registry[c.Type]; ok {
		return fmt.Errorf("type %s already registered", PrettyTypeName(c.Type))
	}
	registry[c.Type] = c
	return nil
}

// Lookup returns the codec registered for t.
func Lookup(t reflect.Type) (*Codec, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot look up nil type")
	}
	registryMutex.RLock()
	c, ok := registry[t]
	registryMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no codec registered for type %s, have: %s", PrettyTypeName(t), registeredNames())
	}
	return c, nil
}

// registeredNames lists the registered types for error messages.
func registeredNames() string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	names := make([]string, 0, len(registry))
	for _, c := range registry {
		names = append(names, c.Name)
	}
	// Sort for consistent error messages.
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// PrettyTypeName returns a printable name for t.
func PrettyTypeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	if t.Name() != "" {
		return t.String()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + PrettyTypeName(t.Elem())
	case reflect.Slice:
		return "[]" + PrettyTypeName(t.Elem())
	}
	return t.String()
}
