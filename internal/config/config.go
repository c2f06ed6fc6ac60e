// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string

	LogLevel  string
	LogFormat string

	ImportBaseDir   string
	StagingDir      string
	ExportDir       string
	DownloadBaseURL string

	BatchSize         int
	PageSize          int
	MaxConcurrentJobs int
	PollInterval      time.Duration

	AWSRegion   string
	HTTPTimeout time.Duration
}

// Load reads configuration from the environment, after applying a .env file
// if one exists in the working directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		ImportBaseDir:     getEnv("IMPORT_BASE_DIR", "."),
		StagingDir:        getEnv("STAGING_DIR", "tmp/staging"),
		ExportDir:         getEnv("EXPORT_DIR", "tmp/exports"),
		DownloadBaseURL:   getEnv("DOWNLOAD_BASE_URL", "http://localhost:8080"),
		BatchSize:         parseIntEnv("IMPORT_BATCH_SIZE", 1000),
		PageSize:          parseIntEnv("EXPORT_PAGE_SIZE", 1000),
		MaxConcurrentJobs: parseIntEnv("MAX_CONCURRENT_JOBS", 3),
		PollInterval:      time.Duration(parseIntEnv("JOB_POLL_SECONDS", 5)) * time.Second,
		AWSRegion:         os.Getenv("AWS_REGION"),
		HTTPTimeout:       time.Duration(parseIntEnv("SOURCE_HTTP_TIMEOUT_SECONDS", 60)) * time.Second,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 3
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseIntEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
