package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeRateLimit            ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeMediaAccess          ErrorCode = "MEDIA_ACCESS"
	ErrCodeSignalingUnavailable ErrorCode = "SIGNALING_UNAVAILABLE"
	ErrCodeInferenceUnavailable ErrorCode = "INFERENCE_UNAVAILABLE"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

var statusByCode = map[ErrorCode]int{
	ErrCodeInvalidInput:         http.StatusBadRequest,
	ErrCodeUnauthorized:         http.StatusUnauthorized,
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeRateLimit:            http.StatusTooManyRequests,
	ErrCodeMediaAccess:          http.StatusFailedDependency,
	ErrCodeSignalingUnavailable: http.StatusServiceUnavailable,
	ErrCodeInferenceUnavailable: http.StatusServiceUnavailable,
	ErrCodeInternal:             http.StatusInternalServerError,
}

// AppError is an error with a stable code, surfaced by the relay's HTTP API
// and used to classify transport and inference failures.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key/value to the error and returns it for chaining.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an AppError whose HTTP status follows from code.
func New(code ErrorCode, message string) *AppError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap is New with a cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	e := New(code, message)
	e.Cause = err
	return e
}

func NewInvalidInputError(message string) *AppError {
	return New(ErrCodeInvalidInput, message)
}

func NewUnauthorizedError(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewRateLimitError() *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded")
}

func NewSignalingUnavailableError(cause error) *AppError {
	return Wrap(cause, ErrCodeSignalingUnavailable, "signaling transport unavailable")
}

func NewInferenceUnavailableError(cause error) *AppError {
	return Wrap(cause, ErrCodeInferenceUnavailable, "landmark inference unavailable")
}

func NewInternalError(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// GetAppError finds the first AppError in err's chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err's chain holds an AppError with code.
func HasCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
