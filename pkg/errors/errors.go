package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuthorization
	KindUnauthenticated
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// ErrorCode is the stable, client-visible identifier of an error.
type ErrorCode string

const (
	CodeInvalidRange         ErrorCode = "INVALID_RANGE"
	CodePastBooking          ErrorCode = "PAST_BOOKING"
	CodeInsufficientLeadTime ErrorCode = "INSUFFICIENT_LEAD_TIME"
	CodeTooShort             ErrorCode = "TOO_SHORT"
	CodeTooLong              ErrorCode = "TOO_LONG"
	CodeDesiredStartInPast   ErrorCode = "DESIRED_START_IN_PAST"
	CodeRangeTooWide         ErrorCode = "RANGE_TOO_WIDE"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"

	CodeSlotTaken             ErrorCode = "SLOT_TAKEN"
	CodeVersionConflict       ErrorCode = "VERSION_CONFLICT"
	CodeAlreadyCancelled      ErrorCode = "ALREADY_CANCELLED"
	CodeCannotCancelCompleted ErrorCode = "CANNOT_CANCEL_COMPLETED"
	CodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	CodeClaimExpired          ErrorCode = "CLAIM_EXPIRED"
	CodeInvalidState          ErrorCode = "INVALID_STATE"

	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeTenantMismatch  ErrorCode = "TENANT_MISMATCH"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeInternal        ErrorCode = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind      `json:"-"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// StatusCode maps the error kind to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WithMessage returns a copy of e with a more specific message.
func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap returns a copy of e carrying cause.
func (e *AppError) Wrap(cause error) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

func New(kind Kind, code ErrorCode, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

// Sentinels, compared by code through errors.Is.
var (
	ErrInvalidRange         = New(KindValidation, CodeInvalidRange, "end time must be after start time")
	ErrPastBooking          = New(KindValidation, CodePastBooking, "start time is in the past")
	ErrInsufficientLeadTime = New(KindValidation, CodeInsufficientLeadTime, "appointments must be booked at least 2 hours in advance")
	ErrTooShort             = New(KindValidation, CodeTooShort, "appointment must be at least 15 minutes")
	ErrTooLong              = New(KindValidation, CodeTooLong, "appointment cannot exceed 4 hours")
	ErrDesiredStartInPast   = New(KindValidation, CodeDesiredStartInPast, "desired start date is in the past")
	ErrRangeTooWide         = New(KindValidation, CodeRangeTooWide, "requested range is too wide")

	ErrSlotTaken             = New(KindConflict, CodeSlotTaken, "time slot is already booked")
	ErrVersionConflict       = New(KindConflict, CodeVersionConflict, "resource was modified by another request")
	ErrAlreadyCancelled      = New(KindConflict, CodeAlreadyCancelled, "appointment is already cancelled")
	ErrCannotCancelCompleted = New(KindConflict, CodeCannotCancelCompleted, "cannot cancel a completed appointment")
	ErrInvalidTransition     = New(KindConflict, CodeInvalidTransition, "status transition not allowed")
	ErrClaimExpired          = New(KindConflict, CodeClaimExpired, "claim window has expired")
	ErrInvalidState          = New(KindConflict, CodeInvalidState, "entry is not in a valid state for this operation")

	ErrNotFound       = New(KindNotFound, CodeNotFound, "resource not found")
	ErrTenantMismatch = New(KindAuthorization, CodeTenantMismatch, "referenced entity does not belong to tenant")
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    CodeInvalidInput,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Kind:    KindUnauthenticated,
		Code:    CodeUnauthenticated,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Kind:    KindAuthorization,
		Code:    CodeForbidden,
		Message: message,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Kind:    KindRateLimited,
		Code:    CodeRateLimited,
		Message: "rate limit exceeded",
	}
}

// As extracts the AppError from err, converting anything else to an internal error.
func As(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewInternal(err)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
