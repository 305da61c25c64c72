package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a lookup misses.
var ErrNotFound = errors.New("not found")

// ValidationError reports a rejected field on a write operation. The API
// layer maps it to a 400 response keyed by field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Verr builds a ValidationError.
func Verr(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
