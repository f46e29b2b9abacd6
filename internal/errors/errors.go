// Package errors writes the service's JSON error responses.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/daysteward/internal/middleware"
)

// Error codes returned in ErrorDetail.Code.
const (
	ErrNotFound            = "NOT_FOUND"
	ErrBadRequest          = "BAD_REQUEST"
	ErrInternalServer      = "INTERNAL_SERVER_ERROR"
	ErrValidation          = "VALIDATION_ERROR"
	ErrUnauthenticated     = "UNAUTHENTICATED"
	ErrForbidden           = "FORBIDDEN"
	ErrConflict            = "CONFLICT"
	ErrServiceUnavailable  = "SERVICE_UNAVAILABLE"
	ErrInvalidDate         = "INVALID_DATE"
	ErrInvalidAmount       = "INVALID_AMOUNT"
	ErrInvalidAddress      = "INVALID_ADDRESS"
	ErrInsufficientPayment = "INSUFFICIENT_PAYMENT"
	ErrInsufficientDeposit = "INSUFFICIENT_DEPOSIT"
	ErrWithdrawingTooMuch  = "WITHDRAWING_TOO_MUCH"
)

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Respond writes a client error with the given status and code and logs it
// as a warning.
func Respond(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	requestID := middleware.GetRequestID(c)

	if log := middleware.GetLogger(c); log != nil {
		fields := map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
		}
		if details != nil {
			fields["details"] = details
		}
		log.Warn("Request rejected", fields)
	}

	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	Respond(c, http.StatusNotFound, ErrNotFound, message, nil)
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	Respond(c, http.StatusBadRequest, ErrBadRequest, message, details)
}

// Unauthenticated returns a 401 for requests that need a calling account.
func Unauthenticated(c *gin.Context, message string) {
	Respond(c, http.StatusUnauthorized, ErrUnauthenticated, message, nil)
}

// Forbidden returns a 403 for callers not allowed to perform the operation.
func Forbidden(c *gin.Context, message string) {
	Respond(c, http.StatusForbidden, ErrForbidden, message, nil)
}

// Conflict returns a 409 for operations the current state does not allow.
func Conflict(c *gin.Context, message string) {
	Respond(c, http.StatusConflict, ErrConflict, message, nil)
}

// ServiceUnavailable returns a 503 when a dependency cannot be reached.
func ServiceUnavailable(c *gin.Context, message string) {
	Respond(c, http.StatusServiceUnavailable, ErrServiceUnavailable, message, nil)
}

// InternalServerError returns a 500 Internal Server Error response.
// The error is logged with full context; the client only sees message.
func InternalServerError(c *gin.Context, message string, err error) {
	requestID := middleware.GetRequestID(c)

	if log := middleware.GetLogger(c); log != nil {
		log.Error("Internal server error", err, map[string]interface{}{
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		})
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{
			Code:      ErrInternalServer,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// ValidationError returns a 400 with one message per failing field.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{})
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}
	Respond(c, http.StatusBadRequest, ErrValidation, "Validation failed for one or more fields", details)
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "eth_addr":
		return "Must be a 0x-prefixed 20-byte hex address"
	case "numeric":
		return "Must be a decimal number"
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "gt":
		return "Must be greater than " + err.Param()
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "lte":
		return "Must be less than or equal to " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	case "url":
		return "Must be a valid URL"
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}
