package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// RequestIDKey is the context key for the request ID
	RequestIDKey = "request_id"
	// RequestIDHeader is the HTTP header name for the request ID
	RequestIDHeader = "X-Request-ID"
	// AccountKey is the context key for the calling account
	AccountKey = "account"
	// AccountHeader carries the calling account, set by the fronting gateway
	// after it has authenticated the request.
	AccountHeader = "X-Account-Address"
)

// RequestID tags each request with the upstream X-Request-ID or a new UUID
// and echoes it in the response headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context.
// Returns an empty string if not found.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// zeroAccount holds foreclosed parcels and never acts as a caller.
const zeroAccount = "0x0000000000000000000000000000000000000000"

var accountValidator = validator.New()

// Account reads the calling account from AccountHeader. A request without
// the header is anonymous; a malformed or zero address is rejected with 400.
func Account() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(AccountHeader))
		if raw == "" {
			c.Next()
			return
		}

		if err := accountValidator.Var(raw, "eth_addr"); err != nil {
			abortInvalidAccount(c, AccountHeader+" must be a 0x-prefixed 20-byte hex address")
			return
		}

		account := strings.ToLower(raw)
		if account == zeroAccount {
			abortInvalidAccount(c, AccountHeader+" must not be the zero address")
			return
		}
		c.Set(AccountKey, account)
		if log := GetLogger(c); log != nil {
			c.Set(LoggerKey, log.WithAccount(account))
		}
		c.Next()
	}
}

// RequireAccount rejects anonymous requests with 401.
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetAccount(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":       "UNAUTHENTICATED",
					"message":    AccountHeader + " header is required",
					"request_id": GetRequestID(c),
				},
			})
			return
		}
		c.Next()
	}
}

// GetAccount returns the calling account, or "" for anonymous requests.
func GetAccount(c *gin.Context) string {
	if account, exists := c.Get(AccountKey); exists {
		if a, ok := account.(string); ok {
			return a
		}
	}
	return ""
}

func abortInvalidAccount(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":       "INVALID_ACCOUNT",
			"message":    message,
			"request_id": GetRequestID(c),
		},
	})
}
