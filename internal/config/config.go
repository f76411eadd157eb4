package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

// Realtime drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Backend  BackendConfig  `toml:"backend"`
	Realtime RealtimeConfig `toml:"realtime"`
	Presence PresenceConfig `toml:"presence"`
	Locale   LocaleConfig   `toml:"locale"`
	Email    EmailConfig    `toml:"email"`
	Device   DeviceConfig   `toml:"device"`
}

// ServerConfig holds bridge server settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	Env            string   `toml:"env"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// BackendConfig holds hosted backend settings.
type BackendConfig struct {
	URL         string `toml:"url"`
	AnonKey     string `toml:"anon_key"`
	ServiceKey  string `toml:"service_key"`
	DatabaseURL string `toml:"database_url"`
	Schema      string `toml:"schema"`
	MaxConns    int    `toml:"max_conns"`
}

// JWKSURL returns the auth platform's key set endpoint.
func (b BackendConfig) JWKSURL() string {
	if b.URL == "" {
		return ""
	}
	return b.URL + "/auth/v1/.well-known/jwks.json"
}

// RealtimeConfig selects how change events are received.
type RealtimeConfig struct {
	Driver          string `toml:"driver"`
	RedisAddr       string `toml:"redis_addr"`
	ChannelPrefix   string `toml:"channel_prefix"`
	InstallTriggers bool   `toml:"install_triggers"`
}

// PresenceConfig tunes the online-presence poller.
type PresenceConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	WindowMinutes   int `toml:"window_minutes"`
}

// Interval returns the poll interval.
func (p PresenceConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// Window returns the activity window.
func (p PresenceConfig) Window() time.Duration {
	return time.Duration(p.WindowMinutes) * time.Minute
}

// LocaleConfig holds the initial microcopy locale.
type LocaleConfig struct {
	Default string `toml:"default"`
}

// EmailConfig holds mail API settings.
type EmailConfig struct {
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	FromEmail  string `toml:"from_email"`
	FromName   string `toml:"from_name"`
	MaxRetries int    `toml:"max_retries"`
}

// DeviceConfig holds local device settings.
type DeviceConfig struct {
	DataDir        string `toml:"data_dir"`
	KeyringService string `toml:"keyring_service"`
}

const defaultConfigContent = `[server]
port = 8787
env = "production"                  # "dev" enables debug logging
allowed_origins = ["http://localhost:5173"]

[backend]
url = ""                            # Or set SUPABASE_URL env var
anon_key = ""                       # Or set SUPABASE_ANON_KEY env var
service_key = ""                    # Or set SUPABASE_SERVICE_KEY env var
database_url = ""                   # Or set SUPABASE_DB_URL env var
schema = "public"
max_conns = 10

[realtime]
driver = "postgres"                 # "postgres" (LISTEN/NOTIFY) or "redis"
redis_addr = ""                     # Or set REDIS_ADDR env var
channel_prefix = "tribe"
install_triggers = false

[presence]
interval_seconds = 120
window_minutes = 15

[locale]
default = "de"                      # "de" or "en"

[email]
api_key = ""                        # Or set SENDGRID_API_KEY env var
from_email = ""
from_name = "Mom Tribe"
max_retries = 3

[device]
data_dir = "./data"
keyring_service = "momtribe"
`

// Load reads and parses the TOML config from the given path. If the file does
// not exist, it creates a default config file at that path. A .env file next
// to the working directory is loaded first; environment variables override
// values from the file with highest priority.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		slog.Info("created default config file", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Validate explicitly-set values before applying defaults, so that
	// explicitly writing "port = 0" is an error rather than silently
	// being replaced with the default.
	if err := validateExplicit(&cfg, md); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// createDefault writes the default config content to the given path,
// creating any parent directories as needed.
func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// validateExplicit checks values that were explicitly set in the TOML file.
func validateExplicit(cfg *Config, md toml.MetaData) error {
	if md.IsDefined("server", "port") {
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
		}
	}
	if md.IsDefined("presence", "interval_seconds") && cfg.Presence.IntervalSeconds < 1 {
		return fmt.Errorf("invalid presence.interval_seconds %d: must be >= 1", cfg.Presence.IntervalSeconds)
	}
	if md.IsDefined("presence", "window_minutes") && cfg.Presence.WindowMinutes < 1 {
		return fmt.Errorf("invalid presence.window_minutes %d: must be >= 1", cfg.Presence.WindowMinutes)
	}
	if md.IsDefined("backend", "max_conns") && cfg.Backend.MaxConns < 1 {
		return fmt.Errorf("invalid backend.max_conns %d: must be >= 1", cfg.Backend.MaxConns)
	}
	return nil
}

// applyDefaults sets default values for any zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "production"
	}
	if cfg.Backend.Schema == "" {
		cfg.Backend.Schema = "public"
	}
	if cfg.Backend.MaxConns == 0 {
		cfg.Backend.MaxConns = 10
	}
	if cfg.Realtime.Driver == "" {
		cfg.Realtime.Driver = DriverPostgres
	}
	if cfg.Realtime.ChannelPrefix == "" {
		cfg.Realtime.ChannelPrefix = "tribe"
	}
	if cfg.Presence.IntervalSeconds == 0 {
		cfg.Presence.IntervalSeconds = 120
	}
	if cfg.Presence.WindowMinutes == 0 {
		cfg.Presence.WindowMinutes = 15
	}
	if cfg.Locale.Default == "" {
		cfg.Locale.Default = "de"
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Mom Tribe"
	}
	if cfg.Device.DataDir == "" {
		cfg.Device.DataDir = "./data"
	}
	if cfg.Device.KeyringService == "" {
		cfg.Device.KeyringService = "momtribe"
	}
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables take highest priority over config file values.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"SUPABASE_URL", &cfg.Backend.URL},
		{"SUPABASE_ANON_KEY", &cfg.Backend.AnonKey},
		{"SUPABASE_SERVICE_KEY", &cfg.Backend.ServiceKey},
		{"SUPABASE_DB_URL", &cfg.Backend.DatabaseURL},
		{"REDIS_ADDR", &cfg.Realtime.RedisAddr},
		{"SENDGRID_API_KEY", &cfg.Email.APIKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
	}

	errs := validation.Errors{}
	errs["server.env"] = validation.Validate(cfg.Server.Env,
		validation.In("dev", "production"))
	errs["realtime.driver"] = validation.Validate(cfg.Realtime.Driver,
		validation.In(DriverPostgres, DriverRedis))
	errs["realtime.redis_addr"] = validation.Validate(cfg.Realtime.RedisAddr,
		validation.When(cfg.Realtime.Driver == DriverRedis, validation.Required))
	errs["locale.default"] = validation.Validate(cfg.Locale.Default,
		validation.In("de", "en"))
	errs["backend.max_conns"] = validation.Validate(cfg.Backend.MaxConns,
		validation.Min(1), validation.Max(100))
	errs["presence.interval_seconds"] = validation.Validate(cfg.Presence.IntervalSeconds,
		validation.Min(1))
	errs["presence.window_minutes"] = validation.Validate(cfg.Presence.WindowMinutes,
		validation.Min(1))
	errs["email.max_retries"] = validation.Validate(cfg.Email.MaxRetries,
		validation.Min(0), validation.Max(10))
	if err := errs.Filter(); err != nil {
		return err
	}

	if cfg.Backend.DatabaseURL == "" {
		slog.Warn("backend.database_url is empty: set it in the config file or via SUPABASE_DB_URL environment variable")
	}
	if cfg.Email.APIKey == "" {
		slog.Warn("email.api_key is empty: welcome emails will be disabled")
	}

	return nil
}
