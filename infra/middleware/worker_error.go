// Package middleware holds the fiber middleware of the admin API.
package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"triage_worker/pkg/apperr"
	"triage_worker/pkg/logger"
	"triage_worker/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// LocalRequestID is the fiber local holding the request id.
const LocalRequestID = "request_id"

// ErrorResponse is the error envelope of the admin API.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// RequestIDOf returns the id set by RequestID, or "".
func RequestIDOf(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalRequestID).(string)
	return id
}

// ErrorHandler renders AppErrors and fiber errors as ErrorResponse.
// Job errors reach here through the manual triggers, so 5xx are logged with their cause.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, detail := describe(err)

		log := logger.WithField("request_id", RequestIDOf(c)).WithField("error_code", detail.Code)
		switch {
		case status >= 500:
			log.WithError(err).Error("%s %s failed: %s", c.Method(), c.Path(), detail.Message)
		case status != fiber.StatusNotFound:
			log.Warn("%s %s rejected: %s", c.Method(), c.Path(), detail.Message)
		}

		return c.Status(status).JSON(ErrorResponse{
			Error:     detail,
			RequestID: RequestIDOf(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func describe(err error) (int, ErrorDetail) {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr.Status, ErrorDetail{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, ErrorDetail{Code: codeForStatus(fiberErr.Code), Message: fiberErr.Message}
	}

	// 내부 에러 메시지는 응답에 노출하지 않음
	return fiber.StatusInternalServerError, ErrorDetail{
		Code:    apperr.CodeInternalError,
		Message: "An unexpected error occurred",
	}
}

// RequestID reuses X-Request-ID from the caller or generates one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(LocalRequestID, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)
		return c.Next()
	}
}

// RequestLogger logs each request with the admin subject and counts it per route.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// the error handler has not written the response yet
			status, _ = describe(err)
		}
		route := c.Route().Path
		if status == fiber.StatusNotFound {
			route = "unmatched"
		}
		metrics.RecordAdminRequest(c.Method(), route, status)

		log := logger.WithFields(map[string]any{
			"request_id":  RequestIDOf(c),
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"ip":          c.IP(),
		})
		if subject, ok := c.Locals(LocalSubject).(string); ok && subject != "" {
			log = log.WithField("subject", subject)
		}

		if status >= 500 {
			log.Error("%s %s -> %d", c.Method(), c.Path(), status)
		} else {
			log.Info("%s %s -> %d", c.Method(), c.Path(), status)
		}
		return err
	}
}

// Recover turns a handler panic into a 500.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]any{
					"request_id": RequestIDOf(c),
					"panic":      fmt.Sprintf("%v", r),
					"path":       c.Path(),
					"stack":      string(debug.Stack()),
				}).Error("Panic recovered")

				err = apperr.Internal("An unexpected error occurred")
			}
		}()
		return c.Next()
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeBadRequest
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusConflict:
		return apperr.CodeRunInFlight
	case fiber.StatusRequestEntityTooLarge:
		return "BODY_TOO_LARGE"
	}
	if status >= 500 {
		return apperr.CodeInternalError
	}
	return "HTTP_ERROR"
}
