package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound           = "NOT_FOUND"
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInvalidCredential  = "INVALID_CREDENTIAL"
	CodeConnection         = "CONNECTION_ERROR"
	CodeSendFailed         = "SEND_FAILED"
	CodeMarkSeenFailed     = "MARK_SEEN_FAILED"
	CodeSubscriptionFailed = "SUBSCRIPTION_FAILED"
	CodePaymentFailed      = "PAYMENT_FAILED"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
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

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// Auth failures are shown to the user as a form-level message and never retried.

func InvalidCredential(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidCredential,
		Message: "Invalid password",
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func ConnectionError(err error) *AppError {
	return &AppError{
		Code:    CodeConnection,
		Message: "Connection error. Please try again.",
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

func SendFailed(err error) *AppError {
	return &AppError{
		Code:    CodeSendFailed,
		Message: "Failed to send message",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func MarkSeenFailed(err error) *AppError {
	return &AppError{
		Code:    CodeMarkSeenFailed,
		Message: "Failed to mark message as seen",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func SubscriptionFailed(scope string, err error) *AppError {
	return &AppError{
		Code:    CodeSubscriptionFailed,
		Message: fmt.Sprintf("Failed to load %s", scope),
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func PaymentFailed(message string, err error) *AppError {
	return &AppError{
		Code:    CodePaymentFailed,
		Message: message,
		Status:  http.StatusPaymentRequired,
		Err:     err,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the AppError code of err, or CodeInternal for foreign errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// MessageOf returns the user-facing message of an AppError, or fallback.
func MessageOf(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}
