package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every AppError carries exactly one of these so callers can
// branch with errors.Is regardless of how deeply the error was wrapped.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrHashing              = errors.New("password hashing failed")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrConversion           = errors.New("stored value conversion failed")
	ErrPersistence          = errors.New("persistence failure")
	ErrInternal             = errors.New("internal error")
)

// AppError is the single error type that crosses component boundaries.
// Err is the kind sentinel; Cause is the foreign error it was converted from,
// if any.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// AuthenticationFailed creates the generic 401 returned for bad login
// credentials. The message never says which factor was wrong.
func AuthenticationFailed() *AppError {
	return &AppError{
		Code:    "AUTHENTICATION_FAILED",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
		Err:     ErrAuthenticationFailed,
	}
}

// Unauthorized creates a 401 error for a missing, invalid or expired token.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Unauthenticated creates a 401 error for a valid token whose account no
// longer exists. Clients see the same code as Unauthorized.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthenticated,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// DuplicateEmail creates the 409 returned when registration hits the unique
// email constraint.
func DuplicateEmail(email string) *AppError {
	return AlreadyExists("user", "email", email)
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Hashing creates a 500 error for a malformed stored hash or an internal
// hashing fault. A plain mismatch is never reported this way.
func Hashing(cause error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     ErrHashing,
		Cause:   cause,
	}
}

// StoreUnavailable creates a 503 error for a transport, timeout or
// cancellation failure talking to a backing store.
func StoreUnavailable(store string, cause error) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: store + " is unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     ErrStoreUnavailable,
		Cause:   cause,
	}
}

// Conversion creates a 500 error for a stored value that no longer parses
// into a domain value.
func Conversion(what, value string, cause error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: fmt.Sprintf("cannot convert stored %s %q", what, value),
		Status:  http.StatusInternalServerError,
		Err:     ErrConversion,
		Cause:   cause,
	}
}

// Persistence creates a 500 error for a store-side failure that is not a
// transport problem (constraint or SQL error).
func Persistence(operation string, cause error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: operation + " failed",
		Status:  http.StatusInternalServerError,
		Err:     ErrPersistence,
		Cause:   cause,
	}
}

// Internal creates a 500 error.
func Internal(cause error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     ErrInternal,
		Cause:   cause,
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
