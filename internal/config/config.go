// Package config loads process-level configuration from the environment,
// following the teacher's struct-tag + envdecode pattern.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/rosteleset/falprs-go/internal/logging"
)

// ServerConfig controls the admin HTTP listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST,default=0.0.0.0"`
	Port int    `env:"SERVER_PORT,default=8080"`
}

// DatabaseConfig controls the Postgres connection used by internal/store.
type DatabaseConfig struct {
	DSN          string `env:"DATABASE_DSN,required"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
}

// LoggingConfig is an alias of logging.Config; its env tags are declared on
// that type in internal/logging.
type LoggingConfig = logging.Config

// InferenceConfig points at the remote model RPC service (spec §4.2).
type InferenceConfig struct {
	BaseURL string        `env:"DNN_INFERENCE_SERVER,required"`
	Timeout time.Duration `env:"DNN_INFERENCE_TIMEOUT,default=5s"`
}

// CaptureConfig controls frame fetch behavior.
type CaptureConfig struct {
	Timeout        time.Duration `env:"CAPTURE_TIMEOUT,default=3s"`
	MaxErrorCount  int           `env:"MAX_CAPTURE_ERROR_COUNT,default=3"`
	CallbackTimeout time.Duration `env:"CALLBACK_TIMEOUT,default=3s"`
}

// StorageConfig controls on-disk layout (spec §6 filesystem layout).
type StorageConfig struct {
	ScreenshotsPath      string `env:"SCREENSHOTS_PATH,default=./data/screenshots"`
	ScreenshotsURLPrefix string `env:"SCREENSHOTS_URL_PREFIX,default=/screenshots"`
	EventsPath           string `env:"EVENTS_PATH,default=./data/events"`
	FailedPath           string `env:"FAILED_PATH,default=./data/failed"`
	WorkingDir           string `env:"WORKING_DIR,default=./data/work"`
}

// MaintenanceConfig controls the four periodic jobs (spec §4.6).
type MaintenanceConfig struct {
	FlagDeletedSweepEvery string        `env:"MAINTENANCE_FLAG_DELETED_EVERY,default=@every 10m"`
	OldLogsSweepEvery     string        `env:"MAINTENANCE_OLD_LOGS_EVERY,default=@every 30m"`
	CopyEventsSweepEvery  string        `env:"MAINTENANCE_COPY_EVENTS_EVERY,default=@every 1m"`
	OldEventsSweepEvery   string        `env:"MAINTENANCE_OLD_EVENTS_EVERY,default=@every 1h"`
	FlagDeletedTTL        time.Duration `env:"FLAG_DELETED_TTL,default=168h"`
	LogFacesTTL           time.Duration `env:"LOG_FACES_TTL,default=720h"`
	EventsTTL             time.Duration `env:"EVENTS_TTL,default=2160h"`
}

// CacheConfig controls cache polling intervals (spec §4.1).
type CacheConfig struct {
	FullRefreshEvery        time.Duration `env:"CACHE_FULL_REFRESH_EVERY,default=30s"`
	IncrementalRefreshEvery time.Duration `env:"CACHE_INCREMENTAL_REFRESH_EVERY,default=5s"`
}

// Config is the top-level, process-wide configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	Inference   InferenceConfig
	Capture     CaptureConfig
	Storage     StorageConfig
	Maintenance MaintenanceConfig
	Cache       CacheConfig
}

// Load reads a .env file for the given environment (if present) and decodes
// the process environment into Config. A missing .env file is not an error.
func Load(env string) (*Config, error) {
	if env == "" {
		env = "development"
	}
	envFile := fmt.Sprintf("config/%s.env", env)
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
