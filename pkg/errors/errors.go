package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies negotiation and client errors
type ErrorCode string

const (
	ErrCodeMediaAcquisition ErrorCode = "MEDIA_ACQUISITION"
	ErrCodeSignaling        ErrorCode = "SIGNALING"
	ErrCodeSDPApplication   ErrorCode = "SDP_APPLICATION"
	ErrCodeSessionClosed    ErrorCode = "SESSION_CLOSED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// AppError is an error with a taxonomy code and optional HTTP status of the
// signaling response that caused it
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewMediaAcquisitionError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeMediaAcquisition, message, 0)
}

// NewSignalingError reports a non-2xx offer/answer exchange. body is a
// truncated copy of the response for diagnostics.
func NewSignalingError(status int, body string) *AppError {
	err := NewAppError(ErrCodeSignaling, fmt.Sprintf("signaling endpoint returned %d %s", status, http.StatusText(status)), status)
	if body != "" {
		err.WithContext("body", body)
	}
	return err
}

// NewOversizedResponseError reports a 2xx response whose body exceeds limit
// bytes. The status is kept for diagnostics only.
func NewOversizedResponseError(status int, limit int64) *AppError {
	return NewAppError(ErrCodeSignaling, fmt.Sprintf("signaling response exceeds %d bytes", limit), 0).
		WithContext("status", status)
}

// WrapSignalingTransportError reports an exchange that never produced a response.
func WrapSignalingTransportError(err error) *AppError {
	return WrapError(err, ErrCodeSignaling, "signaling request failed", 0)
}

// WrapSDPApplicationError reports a description rejected by the engine. step
// names which description, e.g. "local" or "remote".
func WrapSDPApplicationError(err error, step string) *AppError {
	return WrapError(err, ErrCodeSDPApplication, fmt.Sprintf("failed to apply %s description", step), 0)
}

func NewSessionClosedError(message string) *AppError {
	return NewAppError(ErrCodeSessionClosed, message, 0)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewCircuitOpenError(cause error) *AppError {
	return WrapError(cause, ErrCodeCircuitOpen, "signaling endpoint temporarily unavailable", http.StatusServiceUnavailable)
}

func NewInternalError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the taxonomy code of err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsClientRejection reports a signaling response in the 4xx range, which a
// fresh attempt with the same credential cannot fix.
func IsClientRejection(err error) bool {
	appErr := GetAppError(err)
	if appErr == nil || appErr.Code != ErrCodeSignaling {
		return false
	}
	return appErr.HTTPStatus >= 400 && appErr.HTTPStatus < 500
}
