package middleware

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stwalsh4118/daysteward/internal/logger"
)

const testAccount = "0x00000000000000000000000000000000000000B1"

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(200, GetRequestID(c))
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		headerID := w.Header().Get(RequestIDHeader)
		if headerID == "" {
			t.Error("Expected X-Request-ID header to be set")
		}
		if w.Body.String() != headerID {
			t.Errorf("Expected body to contain request ID %s, got %s", headerID, w.Body.String())
		}
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(200, GetRequestID(c))
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "existing-request-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Body.String() != "existing-request-id-123" {
			t.Errorf("Expected upstream request ID, got %s", w.Body.String())
		}
	})

	t.Run("GetRequestID returns empty string if not set", func(t *testing.T) {
		if id := GetRequestID(&gin.Context{}); id != "" {
			t.Errorf("Expected empty string, got %s", id)
		}
	})
}

func TestAccount(t *testing.T) {
	newRouter := func(handlers ...gin.HandlerFunc) *gin.Engine {
		router := gin.New()
		router.Use(RequestID(), Account())
		handlers = append(handlers, func(c *gin.Context) {
			c.String(200, GetAccount(c))
		})
		router.POST("/test", handlers...)
		return router
	}

	t.Run("normalises the header to lowercase", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/test", nil)
		req.Header.Set(AccountHeader, testAccount)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != 200 {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if w.Body.String() != strings.ToLower(testAccount) {
			t.Errorf("Expected lowercase account, got %s", w.Body.String())
		}
	})

	t.Run("anonymous requests pass through", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, httptest.NewRequest("POST", "/test", nil))

		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
		if w.Body.String() != "" {
			t.Errorf("Expected no account, got %s", w.Body.String())
		}
	})

	t.Run("rejects malformed address", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/test", nil)
		req.Header.Set(AccountHeader, "0x1234")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != 400 {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "INVALID_ACCOUNT") {
			t.Errorf("Expected INVALID_ACCOUNT code, got %s", w.Body.String())
		}
	})

	t.Run("rejects the zero address", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/test", nil)
		req.Header.Set(AccountHeader, "0x0000000000000000000000000000000000000000")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != 400 {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "zero address") {
			t.Errorf("Expected zero address message, got %s", w.Body.String())
		}
	})

	t.Run("RequireAccount rejects anonymous requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(RequireAccount()).ServeHTTP(w, httptest.NewRequest("POST", "/test", nil))

		if w.Code != 401 {
			t.Errorf("Expected status 401, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "UNAUTHENTICATED") {
			t.Errorf("Expected UNAUTHENTICATED code, got %s", w.Body.String())
		}
	})

	t.Run("RequireAccount admits identified requests", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/test", nil)
		req.Header.Set(AccountHeader, testAccount)
		w := httptest.NewRecorder()
		newRouter(RequireAccount()).ServeHTTP(w, req)

		if w.Code != 200 {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}

func TestCORS(t *testing.T) {
	allowedOrigins := []string{"http://localhost:3000", "http://localhost:3001"}

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(CORS(allowedOrigins))
		router.GET("/test", func(c *gin.Context) { c.String(200, "OK") })
		router.OPTIONS("/test", func(c *gin.Context) { c.String(200, "OK") })
		return router
	}

	t.Run("allows request from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Error("Expected Access-Control-Allow-Origin header to be set")
		}
		if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("Expected Access-Control-Allow-Credentials header to be set")
		}
	})

	t.Run("does not set CORS headers for disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Origin", "http://evil.com")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("Expected no CORS headers for disallowed origin")
		}
	})

	t.Run("preflight allows the account header", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", AccountHeader)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != 204 {
			t.Errorf("Expected status 204 for OPTIONS, got %d", w.Code)
		}
		allowed := strings.ToLower(w.Header().Get("Access-Control-Allow-Headers"))
		if !strings.Contains(allowed, strings.ToLower(AccountHeader)) {
			t.Errorf("Expected %s in allowed headers, got %q", AccountHeader, allowed)
		}
	})

	t.Run("rejects OPTIONS preflight for disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		req.Header.Set("Origin", "http://evil.com")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != 403 {
			t.Errorf("Expected status 403 for disallowed OPTIONS, got %d", w.Code)
		}
	})
}

func TestLogger(t *testing.T) {
	t.Run("logs completed request with account and request ID", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewWithWriter(&buf, zerolog.DebugLevel)

		router := gin.New()
		router.Use(RequestID(), Logger(log), Account())
		router.GET("/api/v1/parcels/:id", func(c *gin.Context) {
			if GetLogger(c) == nil {
				t.Error("Expected logger to be in context")
			}
			c.String(200, "OK")
		})

		req := httptest.NewRequest("GET", "/api/v1/parcels/101?x=1", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		req.Header.Set(AccountHeader, testAccount)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		output := buf.String()
		for _, want := range []string{"Request completed", "req-1", strings.ToLower(testAccount), "/api/v1/parcels/:id", "x=1"} {
			if !strings.Contains(output, want) {
				t.Errorf("Expected log output to contain %q, got %s", want, output)
			}
		}
	})

	t.Run("client errors log at warn level", func(t *testing.T) {
		var buf bytes.Buffer
		router := gin.New()
		router.Use(RequestID(), Logger(logger.NewWithWriter(&buf, zerolog.DebugLevel)))
		router.GET("/test", func(c *gin.Context) { c.String(404, "missing") })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		if !strings.Contains(buf.String(), `"level":"warn"`) {
			t.Errorf("Expected warn level entry, got %s", buf.String())
		}
	})

	t.Run("GetLogger returns nil if not set", func(t *testing.T) {
		if GetLogger(&gin.Context{}) != nil {
			t.Error("Expected nil logger")
		}
	})
}

func TestRecovery(t *testing.T) {
	t.Run("recovers from panic and returns 500", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID(), Recovery(logger.Nop()))
		router.GET("/panic", func(c *gin.Context) {
			panic("money: underflow 1 - 2")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

		if w.Code != 500 {
			t.Errorf("Expected status 500 after panic, got %d", w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "INTERNAL_SERVER_ERROR") {
			t.Error("Expected error response to contain INTERNAL_SERVER_ERROR")
		}
		if strings.Contains(body, "underflow") {
			t.Error("Expected panic value to stay out of the response")
		}
	})

	t.Run("does not interfere with normal requests", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(logger.Nop()))
		router.GET("/normal", func(c *gin.Context) { c.String(200, "OK") })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/normal", nil))

		if w.Code != 200 || w.Body.String() != "OK" {
			t.Errorf("Expected 200 OK, got %d %s", w.Code, w.Body.String())
		}
	})
}
