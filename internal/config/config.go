// Package config reads the server's runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ironsheep/plansheet-mcp/internal/imaging"
	"github.com/ironsheep/plansheet-mcp/internal/logging"
)

// Environment variable names.
const (
	EnvLogLevel      = "PLANSHEET_MCP_LOG_LEVEL"
	EnvLoadTimeout   = "PLANSHEET_LOAD_TIMEOUT"
	EnvRetryBase     = "PLANSHEET_RETRY_BASE"
	EnvRetryAttempts = "PLANSHEET_RETRY_ATTEMPTS"
	EnvRefreshURL    = "PLANSHEET_REFRESH_URL"
	EnvOverlayDir    = "PLANSHEET_OVERLAY_DIR"
	EnvDefaultTier   = "PLANSHEET_DEFAULT_TIER"
)

// Config holds the server settings.
type Config struct {
	LogLevel slog.Level

	LoadTimeout   time.Duration
	RetryBase     time.Duration
	RetryAttempts int

	// RefreshURL is the signed-URL refresh endpoint. Empty disables
	// refreshing.
	RefreshURL string

	// OverlayDir is where committed overlays are written. Empty keeps them
	// in memory.
	OverlayDir string

	DefaultTier imaging.Tier
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LogLevel:      slog.LevelWarn,
		LoadTimeout:   imaging.DefaultLoadTimeout,
		RetryBase:     imaging.DefaultRetryBase,
		RetryAttempts: imaging.DefaultMaxAttempts,
		DefaultTier:   imaging.TierPreview,
	}
}

// Load reads the environment. Invalid values keep their defaults and are
// reported in the returned warnings.
func Load() (Config, []string) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, []string) {
	cfg := Default()
	var warnings []string
	warn := func(name, value, want string) {
		warnings = append(warnings, fmt.Sprintf("%s=%q is not a valid %s; using default", name, value, want))
	}

	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		level, ok := logging.ParseLevel(v, cfg.LogLevel)
		if !ok {
			warn(EnvLogLevel, v, "log level")
		}
		cfg.LogLevel = level
	}

	if v := strings.TrimSpace(getenv(EnvLoadTimeout)); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.LoadTimeout = d
		} else {
			warn(EnvLoadTimeout, v, "duration")
		}
	}

	if v := strings.TrimSpace(getenv(EnvRetryBase)); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.RetryBase = d
		} else {
			warn(EnvRetryBase, v, "duration")
		}
	}

	if v := strings.TrimSpace(getenv(EnvRetryAttempts)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetryAttempts = n
		} else {
			warn(EnvRetryAttempts, v, "attempt count")
		}
	}

	cfg.RefreshURL = strings.TrimSpace(getenv(EnvRefreshURL))
	cfg.OverlayDir = strings.TrimSpace(getenv(EnvOverlayDir))

	if v := strings.TrimSpace(getenv(EnvDefaultTier)); v != "" {
		tier, ok := imaging.ParseTier(v)
		if !ok {
			warn(EnvDefaultTier, v, "tier")
		}
		cfg.DefaultTier = tier
	}

	return cfg, warnings
}

// parseDuration accepts Go duration strings ("1500ms", "30s") or a bare
// number of milliseconds. Zero and negative values are rejected.
func parseDuration(v string) (time.Duration, bool) {
	if ms, err := strconv.Atoi(v); err == nil {
		if ms <= 0 {
			return 0, false
		}
		return time.Duration(ms) * time.Millisecond, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// LoaderConfig returns the loader timing derived from c.
func (c Config) LoaderConfig() imaging.LoaderConfig {
	return imaging.LoaderConfig{
		Timeout:     c.LoadTimeout,
		RetryBase:   c.RetryBase,
		MaxAttempts: c.RetryAttempts,
	}
}
