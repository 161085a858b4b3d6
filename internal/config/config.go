// Package config provides application configuration management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxBrowserPoolSize = 20
	maxTimeout         = 10 * time.Minute
	maxSettleTime      = 30 * time.Second
	maxTrackedHosts    = 100000
	maxHTMLBytes       = 50 << 20
	minAPIKeyLength    = 16
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Browser settings
	Headless    bool
	BrowserPath string

	// UserAgent overrides the browser user agent when set.
	UserAgent string

	// StaticOnly skips the browser pool; only html.clean is served.
	StaticOnly bool

	// Pool settings
	BrowserPoolSize    int
	BrowserPoolTimeout time.Duration

	// Timeouts
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration

	// SettleTime is how long the watcher keeps running on a live page after
	// the initial scan, so that late banners are caught.
	SettleTime time.Duration

	// Viewport used for browser pages and static documents.
	ViewportWidth  int
	ViewportHeight int

	// MaxHTMLBytes bounds documents submitted for static cleaning.
	MaxHTMLBytes int

	// Logging
	LogLevel string

	// Settings store holding the excluded-host list
	StoreBackend   string
	StorePath      string
	StoreHotReload bool

	// API Key Authentication
	APIKeyEnabled bool
	APIKey        string

	// Metrics
	PrometheusEnabled bool
	PrometheusPort    int

	// MaxTrackedHosts bounds the per-host statistics table.
	MaxTrackedHosts int
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Localhost by default; set HOST=0.0.0.0 to expose the service.
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8192),

		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),
		UserAgent:   getEnvString("USER_AGENT", ""),
		StaticOnly:  getEnvBool("STATIC_ONLY", false),

		BrowserPoolSize:    getEnvInt("BROWSER_POOL_SIZE", 2),
		BrowserPoolTimeout: getEnvDuration("BROWSER_POOL_TIMEOUT", 30*time.Second),

		DefaultTimeout: getEnvDuration("DEFAULT_TIMEOUT", 60*time.Second),
		MaxTimeout:     getEnvDuration("MAX_TIMEOUT", 300*time.Second),
		SettleTime:     getEnvDuration("SETTLE_TIME", 2*time.Second),

		ViewportWidth:  getEnvInt("VIEWPORT_WIDTH", 1920),
		ViewportHeight: getEnvInt("VIEWPORT_HEIGHT", 1080),
		MaxHTMLBytes:   getEnvInt("MAX_HTML_BYTES", 5<<20),

		LogLevel: getEnvString("LOG_LEVEL", "info"),

		StoreBackend:   strings.ToLower(getEnvString("STORE_BACKEND", StoreMemory)),
		StorePath:      getEnvString("STORE_PATH", ""),
		StoreHotReload: getEnvBool("STORE_HOT_RELOAD", false),

		APIKeyEnabled: getEnvBool("API_KEY_ENABLED", false),
		APIKey:        getEnvString("API_KEY", ""),

		PrometheusEnabled: getEnvBool("PROMETHEUS_ENABLED", false),
		PrometheusPort:    getEnvInt("PROMETHEUS_PORT", 9192),

		MaxTrackedHosts: getEnvInt("MAX_TRACKED_HOSTS", 1000),
	}
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8192")
		c.Port = 8192
	}

	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !filepath.IsAbs(c.BrowserPath) {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	if c.BrowserPoolSize < 1 {
		log.Warn().Int("size", c.BrowserPoolSize).Msg("Invalid pool size, using default 2")
		c.BrowserPoolSize = 2
	} else if c.BrowserPoolSize > maxBrowserPoolSize {
		log.Warn().
			Int("size", c.BrowserPoolSize).
			Int("max", maxBrowserPoolSize).
			Msg("Pool size too large, capping to maximum")
		c.BrowserPoolSize = maxBrowserPoolSize
	}

	const minPoolTimeout = 1 * time.Second
	const maxPoolTimeout = 5 * time.Minute
	if c.BrowserPoolTimeout < minPoolTimeout {
		log.Warn().
			Dur("timeout", c.BrowserPoolTimeout).
			Dur("min", minPoolTimeout).
			Msg("Browser pool timeout too short, using minimum")
		c.BrowserPoolTimeout = minPoolTimeout
	} else if c.BrowserPoolTimeout > maxPoolTimeout {
		log.Warn().
			Dur("timeout", c.BrowserPoolTimeout).
			Dur("max", maxPoolTimeout).
			Msg("Browser pool timeout too long, using maximum")
		c.BrowserPoolTimeout = maxPoolTimeout
	}

	// MaxTimeout first so that DefaultTimeout can be clamped against it.
	if c.MaxTimeout < time.Second {
		log.Warn().Dur("timeout", c.MaxTimeout).Msg("Max timeout too short, using 300s")
		c.MaxTimeout = 300 * time.Second
	}
	if c.MaxTimeout > maxTimeout {
		log.Warn().
			Dur("timeout", c.MaxTimeout).
			Dur("max", maxTimeout).
			Msg("Max timeout too high, capping to maximum")
		c.MaxTimeout = maxTimeout
	}
	if c.DefaultTimeout < time.Second {
		log.Warn().Dur("timeout", c.DefaultTimeout).Msg("Default timeout too short, using 60s")
		c.DefaultTimeout = 60 * time.Second
	}
	if c.DefaultTimeout > c.MaxTimeout {
		log.Warn().
			Dur("default", c.DefaultTimeout).
			Dur("max", c.MaxTimeout).
			Msg("Default timeout exceeds max timeout, adjusting to max")
		c.DefaultTimeout = c.MaxTimeout
	}

	if c.SettleTime > maxSettleTime {
		log.Warn().
			Dur("settle", c.SettleTime).
			Dur("max", maxSettleTime).
			Msg("Settle time too long, capping to maximum")
		c.SettleTime = maxSettleTime
	}
	if c.SettleTime >= c.DefaultTimeout {
		log.Warn().
			Dur("settle", c.SettleTime).
			Dur("default_timeout", c.DefaultTimeout).
			Msg("SETTLE_TIME should be shorter than DEFAULT_TIMEOUT, halving")
		c.SettleTime = c.DefaultTimeout / 2
	}

	if c.ViewportWidth < 320 || c.ViewportWidth > 7680 {
		log.Warn().Int("width", c.ViewportWidth).Msg("Invalid viewport width, using 1920")
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight < 240 || c.ViewportHeight > 4320 {
		log.Warn().Int("height", c.ViewportHeight).Msg("Invalid viewport height, using 1080")
		c.ViewportHeight = 1080
	}

	if c.MaxHTMLBytes < 1024 {
		log.Warn().Int("bytes", c.MaxHTMLBytes).Msg("HTML size limit too low, using 5MB")
		c.MaxHTMLBytes = 5 << 20
	} else if c.MaxHTMLBytes > maxHTMLBytes {
		log.Warn().
			Int("bytes", c.MaxHTMLBytes).
			Int("max", maxHTMLBytes).
			Msg("HTML size limit too high, capping to maximum")
		c.MaxHTMLBytes = maxHTMLBytes
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	c.validateStore()

	if c.PrometheusEnabled {
		if c.PrometheusPort < 1 || c.PrometheusPort > 65535 {
			log.Warn().Int("port", c.PrometheusPort).Msg("Invalid Prometheus port, using 9192")
			c.PrometheusPort = 9192
		}
		if c.PrometheusPort == c.Port {
			log.Error().
				Int("port", c.PrometheusPort).
				Msg("PROMETHEUS_PORT conflicts with PORT, adjusting")
			c.PrometheusPort = c.Port + 1
			if c.PrometheusPort > 65535 {
				log.Warn().Msg("Could not find available Prometheus port, disabling")
				c.PrometheusEnabled = false
			}
		}
	}

	if c.MaxTrackedHosts < 1 {
		log.Warn().Int("max", c.MaxTrackedHosts).Msg("Invalid max tracked hosts, using 1000")
		c.MaxTrackedHosts = 1000
	} else if c.MaxTrackedHosts > maxTrackedHosts {
		log.Warn().
			Int("hosts", c.MaxTrackedHosts).
			Int("max", maxTrackedHosts).
			Msg("Max tracked hosts too high, capping to maximum")
		c.MaxTrackedHosts = maxTrackedHosts
	}

	if c.APIKeyEnabled {
		switch {
		case c.APIKey == "":
			log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
		case len(c.APIKey) < minAPIKeyLength:
			log.Error().
				Int("length", len(c.APIKey)).
				Int("min_required", minAPIKeyLength).
				Msg("API_KEY is too short for secure authentication - consider using a longer key")
		}
	}
}

func (c *Config) validateStore() {
	switch c.StoreBackend {
	case StoreMemory, StoreFile, StoreSQLite:
	default:
		log.Warn().Str("backend", c.StoreBackend).Msg("Unknown STORE_BACKEND, using memory")
		c.StoreBackend = StoreMemory
	}

	if c.StoreBackend == StoreMemory {
		if c.StoreHotReload {
			log.Warn().Msg("STORE_HOT_RELOAD has no effect with the memory store")
			c.StoreHotReload = false
		}
		return
	}

	if c.StorePath == "" {
		log.Warn().
			Str("backend", c.StoreBackend).
			Msg("STORE_PATH not set, falling back to memory store")
		c.StoreBackend = StoreMemory
		c.StoreHotReload = false
		return
	}
	if strings.Contains(c.StorePath, "..") {
		log.Error().
			Str("path", c.StorePath).
			Msg("StorePath contains path traversal sequence (..), falling back to memory store")
		c.StorePath = ""
		c.StoreBackend = StoreMemory
		c.StoreHotReload = false
		return
	}

	if c.StoreHotReload && c.StoreBackend != StoreFile {
		log.Warn().Msg("STORE_HOT_RELOAD is only supported by the file store")
		c.StoreHotReload = false
	}
	if c.StoreHotReload {
		if _, err := os.Stat(c.StorePath); os.IsNotExist(err) {
			log.Warn().
				Str("path", c.StorePath).
				Msg("StorePath does not exist - hot-reload will watch for file creation")
		}
	}
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}
