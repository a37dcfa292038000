// Package config loads and validates application configuration from environment
// variables, with an optional TOML file for notification tuning.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"].
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// JWTSecret is the HS256 key identity tokens are signed with. Required.
	JWTSecret string

	// AMQPURL enables the trip event feed when set.
	AMQPURL string

	// ConfigFile is the optional TOML file read by Load.
	ConfigFile string

	Notifications Notifications

	// Preferences overrides the system default per event type.
	Preferences map[domain.EventType]bool
}

// file is the shape of CONFIG_FILE.
type file struct {
	Notifications Notifications             `toml:"notifications"`
	Preferences   map[domain.EventType]bool `toml:"preferences"`
}

// Notifications tunes the pipeline and hub.
type Notifications struct {
	QueueSize           int `toml:"queue_size"`
	Workers             int `toml:"workers"`
	SessionQueue        int `toml:"session_queue"`
	WriteTimeoutSeconds int `toml:"write_timeout_seconds"`
	PingIntervalSeconds int `toml:"ping_interval_seconds"`
}

// WriteTimeout is the per-frame websocket write deadline.
func (n Notifications) WriteTimeout() time.Duration {
	return time.Duration(n.WriteTimeoutSeconds) * time.Second
}

// PingInterval is how often live sessions are pinged.
func (n Notifications) PingInterval() time.Duration {
	return time.Duration(n.PingIntervalSeconds) * time.Second
}

func defaultNotifications() Notifications {
	return Notifications{
		QueueSize:           1024,
		Workers:             4,
		SessionQueue:        64,
		WriteTimeoutSeconds: 10,
		PingIntervalSeconds: 30,
	}
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigins:   splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		AMQPURL:       os.Getenv("AMQP_URL"),
		ConfigFile:    os.Getenv("CONFIG_FILE"),
		Notifications: defaultNotifications(),
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	if cfg.ConfigFile != "" {
		if err := cfg.overlay(cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// overlay decodes the TOML file at path over cfg and validates the result.
func (c *Config) overlay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	parsed := file{Notifications: c.Notifications}
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	n := parsed.Notifications
	if n.QueueSize <= 0 || n.Workers <= 0 || n.SessionQueue <= 0 || n.WriteTimeoutSeconds <= 0 || n.PingIntervalSeconds < 0 {
		return fmt.Errorf("config file %s: notification sizes and timeouts must be positive", path)
	}
	for e := range parsed.Preferences {
		if !e.Valid() {
			return fmt.Errorf("config file %s: unknown event type %q in [preferences]", path, e)
		}
	}
	c.Notifications = n
	c.Preferences = parsed.Preferences
	return nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
