package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Error codes shared by handlers.
const (
	ErrInternal        = "INTERNAL"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrConflict        = "CONFLICT"
	ErrRateLimited     = "RATE_LIMITED"

	// recovery mode lock workflow
	ErrNotLocked             = "NOT_LOCKED"
	ErrRequestAlreadyPending = "REQUEST_ALREADY_PENDING"
	ErrNoPendingRequest      = "NO_PENDING_REQUEST"
	ErrUnlockNotApproved     = "UNLOCK_NOT_APPROVED"
	ErrCooldownActive        = "COOLDOWN_ACTIVE"
)

var httpStatus = map[string]int{
	ErrInternal:              http.StatusInternalServerError,
	ErrNotFound:              http.StatusNotFound,
	ErrInvalidArgument:       http.StatusBadRequest,
	ErrUnauthenticated:       http.StatusUnauthorized,
	ErrUnauthorized:          http.StatusForbidden,
	ErrConflict:              http.StatusConflict,
	ErrRateLimited:           http.StatusTooManyRequests,
	ErrNotLocked:             http.StatusConflict,
	ErrRequestAlreadyPending: http.StatusConflict,
	ErrNoPendingRequest:      http.StatusConflict,
	ErrUnlockNotApproved:     http.StatusForbidden,
	ErrCooldownActive:        http.StatusLocked,
}

// AppError carries a stable code, a user facing message and optional structured details.
type AppError struct {
	code    string
	message string
	details map[string]interface{}
	err     error
}

func (e *AppError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s", e.message, e.err.Error())
	}
	return e.message
}

func (e *AppError) Code() string    { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Unwrap() error   { return e.err }

// Details returns structured data for the presentation layer (never nil).
func (e *AppError) Details() map[string]interface{} {
	if e.details == nil {
		return map[string]interface{}{}
	}
	return e.details
}

// WithDetail attaches a structured value, e.g. remaining_seconds.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.details == nil {
		e.details = make(map[string]interface{})
	}
	e.details[key] = value
	return e
}

func New(code, message string, err error) *AppError {
	return &AppError{code: code, message: message, err: err}
}

// Wrap keeps the code of an existing AppError and falls back to INTERNAL otherwise.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return New(appErr.Code(), message, err)
	}
	return New(ErrInternal, message, err)
}

// HTTPStatus maps a code to its HTTP status; unknown codes are 500.
func HTTPStatus(code string) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// LogError writes err with its code as structured fields.
func LogError(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if err == nil || logger == nil {
		return
	}
	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.Error(err))
	var appErr *AppError
	if errors.As(err, &appErr) {
		all = append(all, zap.String("error_code", appErr.Code()))
	}
	all = append(all, fields...)
	logger.Error(msg, all...)
}
