// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package typedsql

import (
	"database/sql"
	"errors"
	"fmt"
)

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// ErrSchema is matched by every error raised while defining the schema.
var ErrSchema = errors.New("schema error")

// ErrSession is matched by programming errors in the use of sessions.
var ErrSession = errors.New("session error")

// ErrNoSession is returned when a statement is executed with a context that
// carries no active session of the datastore.
var ErrNoSession = fmt.Errorf("%w: no active session", ErrSession)

// ErrSessionClosed is returned when a statement or a result is used after
// its session has ended.
var ErrSessionClosed = fmt.Errorf("%w: session closed", ErrSession)

// ErrConstraintViolation is matched by errors the backend raised because
// an integrity constraint failed.
var ErrConstraintViolation = errors.New("constraint violation")

// ErrDecode is matched by errors raised when a value returned by the backend
// cannot be decoded by the codec of its column.
var ErrDecode = errors.New("cannot decode value")

// SchemaError describes an invalid table definition.
type SchemaError struct {
	Table  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("cannot define table %q: %s", e.Table, e.Reason)
}

// Is makes SchemaError match ErrSchema.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErrorf(table string, format string, args ...any) error {
	return &SchemaError{Table: table, Reason: fmt.Sprintf(format, args...)}
}

// ConstraintError wraps a driver error signalling a constraint violation.
// The driver error is available with errors.As.
type ConstraintError struct {
	Err error
}

func (e *ConstraintError) Error() string {
	return "constraint violation: " + e.Err.Error()
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// Is makes ConstraintError match ErrConstraintViolation.
func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraintViolation
}

// DecodeError is returned when a result column cannot be decoded.
type DecodeError struct {
	Column string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode column %s: %s", e.Column, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes DecodeError match ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
