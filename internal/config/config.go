package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NetworkOptions bounds origin traffic for one capture. Read-only once built.
type NetworkOptions struct {
	// Timeout bounds each individual HTTP request.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// MaxConcurrent bounds the number of segment downloads in flight.
	MaxConcurrent int
	// UserAgent overrides the User-Agent header when non-empty.
	UserAgent string
}

// DownloadOptions controls what a capture run does with its segments.
type DownloadOptions struct {
	// OutputDir receives the segments/ directory and any remuxed file.
	OutputDir string
	// RemuxTarget is the remuxed file name, relative to OutputDir.
	RemuxTarget string
	// NoRemux skips the remux step.
	NoRemux bool
	// NoFailFast lets sibling streams continue when one poller fails.
	NoFailFast bool
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist an error is returned, but
// callers can ignore it and fall back to system env or defaults.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable named by
// key, or fallback if the variable is unset, empty, or not a valid boolean.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
