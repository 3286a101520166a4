package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for vaultledger
type Config struct {
	// Database configuration
	DBName     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBPort     string
	DBSSLMode  string

	// Ingestion configuration
	IngestCron        string
	IngestInterval    time.Duration
	IngestConcurrency int

	// Platform API configuration
	KaminoBaseURL  string
	JupiterBaseURL string

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsPort string
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg := Config{
		DBName:         getEnv("DB_NAME", ""),
		DBHost:         getEnv("DB_HOST", ""),
		DBUser:         getEnv("DB_USER", ""),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		IngestCron:     getEnv("INGEST_CRON", "0 * * * *"),
		KaminoBaseURL:  getEnv("KAMINO_BASE_URL", "https://api.kamino.finance"),
		JupiterBaseURL: getEnv("JUPITER_BASE_URL", "https://api.solana.fluid.io"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MetricsPort:    getEnv("METRICS_PORT", "9100"),
	}

	if cfg.DBName == "" || cfg.DBHost == "" || cfg.DBUser == "" {
		return Config{}, fmt.Errorf("DB_NAME, DB_HOST and DB_USER environment variables are required")
	}

	interval, err := time.ParseDuration(getEnv("INGEST_INTERVAL", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid INGEST_INTERVAL: %w", err)
	}
	if interval < time.Minute {
		return Config{}, fmt.Errorf("INGEST_INTERVAL must be at least 1m, got %s", interval)
	}
	cfg.IngestInterval = interval

	concurrency, err := strconv.Atoi(getEnv("INGEST_CONCURRENCY", "4"))
	if err != nil || concurrency < 1 {
		return Config{}, fmt.Errorf("INGEST_CONCURRENCY must be a positive integer")
	}
	cfg.IngestConcurrency = concurrency

	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %s", cfg.LogLevel)
	}

	return cfg, nil
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
