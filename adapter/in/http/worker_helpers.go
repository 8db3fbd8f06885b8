package http

import (
	"time"

	"triage_worker/infra/middleware"

	"github.com/gofiber/fiber/v2"
)

// APIResponse wraps successful admin responses. Errors use middleware.ErrorResponse.
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SuccessResponse writes data in the APIResponse envelope.
func SuccessResponse(c *fiber.Ctx, data any) error {
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: middleware.RequestIDOf(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
