package apperrors

import (
	"errors"
	"fmt"
)

// AuthenticationError represents bad or missing credentials
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// AuthorizationError represents a role or tenant-scope violation
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// NotFoundError represents a missing entity. It is reported to clients as an
// authorization failure so existence is never disclosed.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// Is enables errors.Is() comparison for NotFoundError
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Entity == t.Entity
}

// ValidationError represents malformed input or a violated uniqueness rule
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// QuotaExceededError represents a plan limit that would be exceeded
type QuotaExceededError struct {
	Resource string
	Limit    int
	Used     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s limit of %d reached (%d used)", e.Resource, e.Limit, e.Used)
}

// RateLimitedError represents too many attempts in a window
type RateLimitedError struct {
	Message string
}

func (e *RateLimitedError) Error() string {
	return e.Message
}

var (
	ErrInvalidCredentials = &AuthenticationError{Message: "Invalid credentials"}
	ErrUnauthenticated    = &AuthenticationError{Message: "Unauthenticated"}
	ErrForbidden          = &AuthorizationError{Message: "Forbidden"}
	ErrNotCompleted       = &AuthorizationError{Message: "Completed receipts can no longer be edited"}
	ErrSelfDelete         = &ValidationError{Field: "id", Message: "you cannot delete your own account"}
	ErrSamePlan           = &ValidationError{Field: "plan", Message: "tenant is already on this plan"}
	ErrTooManyAttempts    = &RateLimitedError{Message: "Too many attempts, try again later"}
)

var (
	ErrTenantNotFound  = &NotFoundError{Entity: "company"}
	ErrUserNotFound    = &NotFoundError{Entity: "user"}
	ErrReceiptNotFound = &NotFoundError{Entity: "receipt"}
	ErrCommentNotFound = &NotFoundError{Entity: "comment"}
)

func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func NewForbidden(message string) error {
	return &AuthorizationError{Message: message}
}

// IsNotFound reports whether err wraps any NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError or QuotaExceededError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var qe *QuotaExceededError
	return errors.As(err, &ve) || errors.As(err, &qe)
}
