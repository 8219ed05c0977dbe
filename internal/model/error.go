package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string         `json:"error"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	RetryAfter    int            `json:"retryAfter,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON             = "INVALID_JSON"
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeNoAvailability          = "NO_AVAILABILITY"
	ErrCodeDuplicateReservation    = "DUPLICATE_RESERVATION"
	ErrCodeCodeGenerationExhausted = "CODE_GENERATION_EXHAUSTED"
	ErrCodeNotCancellable          = "NOT_CANCELLABLE"
	ErrCodeLockTimeout             = "LOCK_TIMEOUT"
	ErrCodeRateLimited             = "RATE_LIMITED"
	ErrCodeReservationNotFound     = "RESERVATION_NOT_FOUND"
	ErrCodeOrderNotFound           = "ORDER_NOT_FOUND"
	ErrCodeUnauthorised            = "UNAUTHORIZED"
	ErrCodeForbidden               = "FORBIDDEN"
	ErrCodeInternalError           = "INTERNAL_ERROR"
)

// ErrorKind classifies a DomainError so the transport layer can pick a status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindConflict
	KindBusy
	KindNotFound
	KindForbidden
	KindUnauthorised
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindBusy:
		return "busy"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorised:
		return "unauthorised"
	default:
		return "internal"
	}
}

// DomainError is a business-rule failure carrying enough structure for the
// caller to render a useful response.
type DomainError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	Details    map[string]any
	RetryAfter time.Duration
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of e carrying the given details.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// NewValidationError creates a validation error with per-field detail.
func NewValidationError(message string, fields map[string]any) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    ErrCodeValidation,
		Message: message,
		Details: fields,
	}
}

// NewConflictError creates a conflict error.
func NewConflictError(code, message string, details map[string]any) *DomainError {
	return &DomainError{
		Kind:    KindConflict,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewBusyError creates a retryable busy error with a suggested delay.
func NewBusyError(message string, retryAfter time.Duration) *DomainError {
	return &DomainError{
		Kind:       KindBusy,
		Code:       ErrCodeLockTimeout,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// Common domain errors
var (
	ErrReservationNotFound = NewDomainError(KindNotFound, ErrCodeReservationNotFound, "Reservation not found")
	ErrOrderNotFound       = NewDomainError(KindNotFound, ErrCodeOrderNotFound, "Order not found")
	ErrForbidden           = NewDomainError(KindForbidden, ErrCodeForbidden, "Access denied")
	ErrUnauthorised        = NewDomainError(KindUnauthorised, ErrCodeUnauthorised, "Authentication required")
	ErrNotCancellable      = NewDomainError(KindConflict, ErrCodeNotCancellable,
		"Reservation can only be cancelled more than 2 hours in advance while pending or confirmed")
	ErrDuplicateReservation = NewDomainError(KindConflict, ErrCodeDuplicateReservation,
		"You already have a reservation on this date")
)

// AsDomainError extracts a DomainError from err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	de, ok := AsDomainError(err)
	return ok && de.Kind == kind
}

// FieldError formats the key used for a nested field in validation details.
func FieldError(prefix string, index int, field string) string {
	return fmt.Sprintf("%s[%d].%s", prefix, index, field)
}
