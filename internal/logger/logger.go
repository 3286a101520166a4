package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New creates and configures a new zerolog logger
func New(logLevel string) zerolog.Logger {
	// Set global log level
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure console writer for human-readable output in development
	if os.Getenv("API_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Create structured logger with common fields
	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "vaultledger").
		Logger()

	return logger
}

// WithVault adds vault id to logger context
func WithVault(logger zerolog.Logger, vaultID string) zerolog.Logger {
	return logger.With().Str("vault_id", vaultID).Logger()
}

// WithStrategy adds strategy id to logger context
func WithStrategy(logger zerolog.Logger, strategyID string) zerolog.Logger {
	return logger.With().Str("strategy_id", strategyID).Logger()
}

// WithPlatform adds platform name to logger context
func WithPlatform(logger zerolog.Logger, platform string) zerolog.Logger {
	return logger.With().Str("platform", platform).Logger()
}
