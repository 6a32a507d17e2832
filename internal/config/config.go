package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the simulator configuration, loaded from FEDSIM_*
// environment variables.
type Config struct {
	// Environment (development, demo, production)
	Environment string

	// Server listening address
	ListenAddr string

	// Base URL for constructing absolute endpoint URLs
	BaseURL string

	// Token issuer identifier placed in the iss claim
	Issuer string

	// Storage driver: "memory" or "sqlite"
	StoreDriver string

	// SQLite database path, used when StoreDriver is "sqlite"
	StorePath string

	// Access token lifetime
	AccessTokenTTL time.Duration

	// Refresh token lifetime
	RefreshTokenTTL time.Duration

	// Requests per second allowed per client address; 0 disables limiting
	RateLimitRPS float64

	// Burst size for the per-address limiter
	RateLimitBurst int

	// CORS allowed origins
	CORSOrigins []string

	// Seed demo clients and environments at startup
	SeedDemoData bool

	// Enable debug logging
	Debug bool
}

// Load reads configuration from the environment with defaults suited to
// local simulation runs.
func Load() *Config {
	return &Config{
		Environment:     getEnv("FEDSIM_ENV", "development"),
		ListenAddr:      getEnv("FEDSIM_LISTEN_ADDR", ":8080"),
		BaseURL:         getEnv("FEDSIM_BASE_URL", "http://localhost:8080"),
		Issuer:          getEnv("FEDSIM_ISSUER", "http://localhost:8080"),
		StoreDriver:     getEnv("FEDSIM_STORE", "memory"),
		StorePath:       getEnv("FEDSIM_STORE_PATH", "fedsim.db"),
		AccessTokenTTL:  getEnvDuration("FEDSIM_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getEnvDuration("FEDSIM_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		RateLimitRPS:    getEnvFloat("FEDSIM_RATE_LIMIT_RPS", 50),
		RateLimitBurst:  getEnvInt("FEDSIM_RATE_LIMIT_BURST", 100),
		CORSOrigins:     getEnvList("FEDSIM_CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		SeedDemoData:    getEnvBool("FEDSIM_SEED_DEMO_DATA", true),
		Debug:           getEnvBool("FEDSIM_DEBUG", false),
	}
}

// IsDevelopment reports whether the simulator runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true" || value == "1"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.Split(value, ",")
}
