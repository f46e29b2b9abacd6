package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stwalsh4118/daysteward/internal/money"
)

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Steward  StewardConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds store configuration. The Postgres fields are only
// required when Driver is postgres.
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	Name       string
	User       string
	Password   string
	SQLitePath string
	PoolMin    int
	PoolMax    int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// StewardConfig holds the initial steward settings. They seed the store on
// first start; afterwards the persisted settings win.
type StewardConfig struct {
	MintPrice      *big.Int
	MinDeposit     *big.Int
	Admin          string
	Beneficiary    string
	LegacyTokenURL string
	TaxNumerator   int64
	TaxDenominator int64
	SweepInterval  time.Duration
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "host.docker.internal")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "daysteward")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("SQLITE_PATH", "data/daysteward.db")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("TAX_RATE_NUMERATOR", 1)
	v.SetDefault("TAX_RATE_DENOMINATOR", 100)
	v.SetDefault("MINT_PRICE", "1")
	v.SetDefault("MIN_DEPOSIT", "0.01")
	v.SetDefault("SWEEP_INTERVAL", "1h")

	// Bind environment variables
	v.AutomaticEnv()

	mintPrice, err := money.ParseEther(v.GetString("MINT_PRICE"))
	if err != nil {
		return nil, fmt.Errorf("MINT_PRICE: %w", err)
	}
	minDeposit, err := money.ParseEther(v.GetString("MIN_DEPOSIT"))
	if err != nil {
		return nil, fmt.Errorf("MIN_DEPOSIT: %w", err)
	}

	admin := strings.ToLower(strings.TrimSpace(v.GetString("STEWARD_ADMIN")))
	beneficiary := strings.ToLower(strings.TrimSpace(v.GetString("STEWARD_BENEFICIARY")))
	if beneficiary == "" {
		beneficiary = admin
	}

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(v.GetString("STORE_DRIVER")),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetString("DB_PORT"),
			Name:       v.GetString("DB_NAME"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			SQLitePath: v.GetString("SQLITE_PATH"),
			PoolMin:    v.GetInt("DB_POOL_MIN"),
			PoolMax:    v.GetInt("DB_POOL_MAX"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
		Steward: StewardConfig{
			Admin:          admin,
			Beneficiary:    beneficiary,
			LegacyTokenURL: v.GetString("LEGACY_TOKEN_URL"),
			TaxNumerator:   v.GetInt64("TAX_RATE_NUMERATOR"),
			TaxDenominator: v.GetInt64("TAX_RATE_DENOMINATOR"),
			MintPrice:      mintPrice,
			MinDeposit:     minDeposit,
			SweepInterval:  v.GetDuration("SWEEP_INTERVAL"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if err := c.Database.validate(); err != nil {
		return err
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	return c.Steward.validate()
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if d.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %s, %s, %s; got %q",
			DriverPostgres, DriverSQLite, DriverMemory, d.Driver)
	}

	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

var addressValidator = validator.New()

func (s *StewardConfig) validate() error {
	if err := addressValidator.Var(s.Admin, "required,eth_addr"); err != nil {
		return fmt.Errorf("STEWARD_ADMIN must be a 0x-prefixed address")
	}
	if err := addressValidator.Var(s.Beneficiary, "required,eth_addr"); err != nil {
		return fmt.Errorf("STEWARD_BENEFICIARY must be a 0x-prefixed address")
	}
	if s.TaxNumerator < 0 {
		return fmt.Errorf("TAX_RATE_NUMERATOR must be non-negative")
	}
	if s.TaxDenominator < 1 {
		return fmt.Errorf("TAX_RATE_DENOMINATOR must be at least 1")
	}
	if s.MintPrice == nil || s.MinDeposit == nil {
		return fmt.Errorf("MINT_PRICE and MIN_DEPOSIT are required")
	}
	if s.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be non-negative")
	}
	return nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
