package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Admin surface
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeBadRequest   = "BAD_REQUEST"
	CodeRunInFlight  = "RUN_IN_FLIGHT"
	CodeNotFound     = "NOT_FOUND"

	// Classifier boundary
	CodeClassifierUnavailable = "CLASSIFIER_UNAVAILABLE"
	CodeClassifierHTTPError   = "CLASSIFIER_HTTP_ERROR"
	CodeClassifierParseError  = "CLASSIFIER_PARSE_ERROR"

	// Other collaborators
	CodeNotificationDelivery = "NOTIFICATION_DELIVERY_ERROR"
	CodeStorageDeserialize   = "STORAGE_DESERIALIZE_ERROR"
	CodeStoreError           = "STORE_ERROR"
	CodeMailboxError         = "MAILBOX_ERROR"

	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(message string) *AppError {
	return New(CodeInvalidToken, message, http.StatusUnauthorized)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func NotFound(what string) *AppError {
	return New(CodeNotFound, what+" not found", http.StatusNotFound)
}

// RunInFlight reports that another run of the named job holds the lock.
func RunInFlight(job string) *AppError {
	return New(CodeRunInFlight, fmt.Sprintf("%s is already running", job), http.StatusConflict).
		WithDetail("job", job)
}

func MailboxError(operation string, err error) *AppError {
	return Wrap(err, CodeMailboxError, fmt.Sprintf("mailbox: %s", operation), http.StatusBadGateway).
		WithDetail("operation", operation)
}

func ClassifierUnavailable(reason string) *AppError {
	return New(CodeClassifierUnavailable, reason, http.StatusServiceUnavailable)
}

// ClassifierHTTPError carries the upstream status and raw body for the error alert.
func ClassifierHTTPError(status int, raw string) *AppError {
	return New(CodeClassifierHTTPError, fmt.Sprintf("狀態碼: %d", status), http.StatusBadGateway).
		WithDetail("status", status).
		WithDetail("raw", raw)
}

func ClassifierParseError(message, raw string, err error) *AppError {
	return Wrap(err, CodeClassifierParseError, message, http.StatusBadGateway).
		WithDetail("raw", raw)
}

func NotificationDelivery(channel string, err error) *AppError {
	return Wrap(err, CodeNotificationDelivery, "chat delivery failed", http.StatusBadGateway).
		WithDetail("channel", channel)
}

func StorageDeserialize(key string, err error) *AppError {
	return Wrap(err, CodeStorageDeserialize, fmt.Sprintf("corrupt record %s", key), http.StatusInternalServerError)
}

func StoreError(operation string, err error) *AppError {
	return Wrap(err, CodeStoreError, fmt.Sprintf("store: %s", operation), http.StatusInternalServerError)
}

func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

func InternalWithError(err error) *AppError {
	return Wrap(err, CodeInternalError, "internal server error", http.StatusInternalServerError)
}

// ConfigError is returned by config.Load for values that fail validation.
func ConfigError(message string) *AppError {
	return New(CodeConfigError, message, http.StatusInternalServerError)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
