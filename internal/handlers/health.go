package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/daysteward/internal/middleware"
	"github.com/stwalsh4118/daysteward/internal/models"
)

const (
	// APIVersion is the current version of the API
	APIVersion = "0.1.0"
	// HealthCheckTimeout bounds the store ping in readiness checks
	HealthCheckTimeout = 2 * time.Second
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SettingsSource provides the steward settings shown by the info endpoint.
type SettingsSource interface {
	Settings(ctx context.Context) (*models.Settings, error)
}

// HealthHandler handles health check and readiness endpoints.
type HealthHandler struct {
	store     Pinger
	settings  SettingsSource
	startTime time.Time
	env       string
	driver    string
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(store Pinger, settings SettingsSource, driver, env string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		settings:  settings,
		startTime: time.Now(),
		env:       env,
		driver:    driver,
	}
}

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Driver string `json:"driver"`
}

// InfoResponse represents the API information response.
type InfoResponse struct {
	Steward     *StewardInfo `json:"steward,omitempty"`
	Version     string       `json:"version"`
	Environment string       `json:"environment"`
	Uptime      string       `json:"uptime"`
}

// StewardInfo is the public part of the steward settings.
type StewardInfo struct {
	MintPrice   Amount `json:"mint_price"`
	MinDeposit  Amount `json:"min_deposit"`
	TaxRate     string `json:"tax_rate"`
	Admin       string `json:"admin"`
	Beneficiary string `json:"beneficiary"`
	LegacyToken string `json:"legacy_token,omitempty"`
	LegacyEpoch int64  `json:"legacy_epoch"`
}

// Health handles GET /health. It is a liveness check and never touches the
// store.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
	})
}

// Ready handles GET /health/ready. It returns 503 while the store is
// unreachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), HealthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		if log := middleware.GetLogger(c); log != nil {
			log.Error("Store health check failed", err, map[string]interface{}{
				"driver":  h.driver,
				"timeout": HealthCheckTimeout.String(),
			})
		}

		c.JSON(http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Store:  "disconnected",
			Driver: h.driver,
		})
		return
	}

	c.JSON(http.StatusOK, ReadyResponse{
		Status: "ready",
		Store:  "connected",
		Driver: h.driver,
	})
}

// Info handles GET /api/v1/info.
// Returns API metadata and the steward's current terms.
func (h *HealthHandler) Info(c *gin.Context) {
	response := InfoResponse{
		Version:     APIVersion,
		Environment: h.env,
		Uptime:      formatUptime(time.Since(h.startTime)),
	}

	if h.settings != nil {
		settings, err := h.settings.Settings(c.Request.Context())
		if err != nil {
			if log := middleware.GetLogger(c); log != nil {
				log.Warn("Steward settings unavailable", map[string]interface{}{
					"error": err.Error(),
				})
			}
		} else {
			response.Steward = &StewardInfo{
				MintPrice:   newAmount(settings.MintPrice),
				MinDeposit:  newAmount(settings.MinDeposit),
				TaxRate:     fmt.Sprintf("%d/%d per year", settings.TaxNumerator, settings.TaxDenominator),
				Admin:       settings.Admin,
				Beneficiary: settings.Beneficiary,
				LegacyToken: settings.LegacyToken,
				LegacyEpoch: settings.LegacyEpoch,
			}
		}
	}

	c.JSON(http.StatusOK, response)
}

// formatUptime formats a duration into a human-readable string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
