package civic

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for the fallback policy. Validation, auth,
// forbidden and not-found errors are semantic and never path-dependent;
// upstream and network errors may be worth retrying on the alternate path.
type Kind string

// the error taxonomy
const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
	KindNetwork    Kind = "network"
)

// FieldError carries field-level validation detail.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed failure every data path produces.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details []FieldError
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	fields := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		fields = append(fields, d.Field+": "+d.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(fields, "; "))
}

// Retryable reports whether the alternate path may be attempted.
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstream || e.Kind == KindNetwork
}

// NewValidationError creates a validation error with field details.
func NewValidationError(message string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: message, Details: details}
}

// NewNetworkError wraps a transport-level failure that happened before
// any response was received.
func NewNetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error()}
}

// ErrorFromStatus maps an HTTP status and server message into the taxonomy.
func ErrorFromStatus(status int, message string) *Error {
	e := &Error{Status: status, Message: message}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuth
	case status == http.StatusForbidden:
		e.Kind = KindForbidden
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status >= 400 && status < 500:
		e.Kind = KindValidation
	default:
		e.Kind = KindUpstream
	}
	return e
}

// AsError returns the typed error inside err, converting unknown errors
// into network failures. Returns nil for a nil err.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewNetworkError(err)
}
