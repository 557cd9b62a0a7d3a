package services

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	msgInvalidEmail     = "Please enter a valid email."
	msgPasswordRequired = "Password is required."
	msgPasswordMismatch = "Passwords have to match!"
	msgPasswordTooLong  = "Please enter a password no longer than 72 bytes."
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

var validate = validator.New()

// FieldError describes one rejected form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned before any lookup when input is malformed.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether field was rejected.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// First returns the first message, or "" when there are none.
func (e *ValidationError) First() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Message
}

type fieldErrors []FieldError

func (f *fieldErrors) add(field, msg string) {
	*f = append(*f, FieldError{Field: field, Message: msg})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Errors: f}
}

// NormalizeEmail trims surrounding whitespace. Case is preserved, so
// lookups are exact.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}
