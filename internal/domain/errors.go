package domain

import (
	"fmt"

	"golang.org/x/xerrors"
)

// ErrUserNotFound is returned when no user exists for the supplied ID.
var ErrUserNotFound = xerrors.New("user not found")

// FieldError reports a required input that was missing.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

func requiredField(field string) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf("%q field required!", field)}
}

// FormatError reports an input that was present but could not be parsed.
type FormatError struct {
	Field   string
	Message string
}

func (e *FormatError) Error() string {
	return e.Message
}

func invalidQueryValue(field string) *FormatError {
	return &FormatError{Field: field, Message: "Invalid query value: " + field}
}
