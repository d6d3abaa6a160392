package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/culturemaker/cmk-api/config"
)

var logLevel = new(slog.LevelVar)

// InitLogger initializes the structured logger. The level starts at info and follows
// SetLogLevel once configuration is loaded.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel applies a level name (debug, info, warn, error). Unknown names keep info.
func SetLogLevel(name string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		logLevel.Set(slog.LevelInfo)
		return fmt.Errorf("log level: %w", err)
	}
	logLevel.Set(lvl)
	return nil
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}
