package scheduling

import (
	"errors"
	"fmt"
)

// ErrorKind partitions failures so the boundary layer can branch on
// kind without string matching.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindPermission         ErrorKind = "permission"
	KindAvailability       ErrorKind = "availability"
	KindConflict           ErrorKind = "conflict"
	KindInvalidState       ErrorKind = "invalid_state"
	KindServiceUnavailable ErrorKind = "service_unavailable"
)

// Error is the single failure type the service surfaces. Message is
// safe to show to callers; Details carries machine-usable context such
// as the conflicting interval. A wrapped cause, if any, stays internal.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match any *Error of the same kind, so handlers can
// compare against the kind sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Kind sentinels for errors.Is checks at the boundary.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrPermission         = &Error{Kind: KindPermission}
	ErrAvailability       = &Error{Kind: KindAvailability}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
)

func validationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func notFoundError(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func permissionError(code, msg string) *Error {
	return &Error{Kind: KindPermission, Code: code, Message: msg}
}

func availabilityError(code, msg string, details map[string]any) *Error {
	return &Error{Kind: KindAvailability, Code: code, Message: msg, Details: details}
}

func conflictError(code, msg string, details map[string]any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, Details: details}
}

func invalidStateError(code, msg string) *Error {
	return &Error{Kind: KindInvalidState, Code: code, Message: msg}
}

// unavailableError wraps a storage or lock failure. The cause is kept
// for logs but never serialized to callers.
func unavailableError(code string, cause error) *Error {
	return &Error{
		Kind:    KindServiceUnavailable,
		Code:    code,
		Message: "the scheduling service is temporarily unable to complete the request",
		cause:   cause,
	}
}

// KindOf extracts the taxonomy kind from err, or "" if err is not a
// scheduling error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
