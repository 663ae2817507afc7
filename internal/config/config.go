package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Sync     SyncConfig     `yaml:"sync"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains local database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig contains S3-compatible remote backup store settings.
// Credentials are env-only and never read from YAML.
type RemoteConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	ObjectName string `yaml:"object_name"`
	UseSSL     *bool  `yaml:"use_ssl"`
	AccessKey  string `yaml:"-"` // env-only, never in YAML
	SecretKey  string `yaml:"-"` // env-only, never in YAML
}

// Configured reports whether remote backup is set up at all. An empty bucket
// means local-only mode: sync is disabled until corrected.
func (r RemoteConfig) Configured() bool {
	return r.Bucket != ""
}

// SyncConfig contains sync engine tuning.
type SyncConfig struct {
	DebounceDelay   Duration `yaml:"debounce_delay"`
	ClockSkewBuffer Duration `yaml:"clock_skew_buffer"`
	ExportContent   bool     `yaml:"export_content"`
}

// AuthConfig contains API authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("STUDYPAL_CONFIG_PATH", "config/studypal.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/studypal.db",
		},
		Remote: RemoteConfig{
			Region:     "us-east-1",
			ObjectName: "studypal.db.json",
		},
		Sync: SyncConfig{
			DebounceDelay:   Duration(5 * time.Second),
			ClockSkewBuffer: Duration(1 * time.Second),
			ExportContent:   false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("STUDYPAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("STUDYPAL_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("STUDYPAL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Remote
	if v := os.Getenv("STUDYPAL_REMOTE_ENDPOINT"); v != "" {
		cfg.Remote.Endpoint = v
	}
	if v := os.Getenv("STUDYPAL_REMOTE_BUCKET"); v != "" {
		cfg.Remote.Bucket = v
	}
	if v := os.Getenv("STUDYPAL_REMOTE_REGION"); v != "" {
		cfg.Remote.Region = v
	}
	if v := os.Getenv("STUDYPAL_REMOTE_OBJECT"); v != "" {
		cfg.Remote.ObjectName = v
	}
	if v := os.Getenv("STUDYPAL_REMOTE_ACCESS_KEY"); v != "" {
		cfg.Remote.AccessKey = v
	}
	if v := os.Getenv("STUDYPAL_REMOTE_SECRET_KEY"); v != "" {
		cfg.Remote.SecretKey = v
	}

	// Sync
	if v := os.Getenv("STUDYPAL_DEBOUNCE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.DebounceDelay = Duration(d)
		}
	}
	if v := os.Getenv("STUDYPAL_CLOCK_SKEW_BUFFER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.ClockSkewBuffer = Duration(d)
		}
	}
	if v := os.Getenv("STUDYPAL_EXPORT_CONTENT"); v != "" {
		cfg.Sync.ExportContent = v == "true" || v == "1"
	}

	// Auth
	if v := os.Getenv("STUDYPAL_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Log
	if v := os.Getenv("STUDYPAL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STUDYPAL_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that the configuration is internally consistent. A remote
// section that names a bucket must carry credentials and an endpoint;
// placeholder credentials are a configuration error surfaced once at init,
// never retried.
func (c *Config) validate() error {
	if c.Sync.DebounceDelay <= 0 {
		return errors.New("sync.debounce_delay must be positive")
	}
	if c.Sync.ClockSkewBuffer < 0 {
		return errors.New("sync.clock_skew_buffer must not be negative")
	}
	if c.Remote.Configured() {
		if c.Remote.Endpoint == "" {
			return errors.New("remote.endpoint is required when remote.bucket is set")
		}
		if c.Remote.AccessKey == "" || c.Remote.SecretKey == "" {
			return errors.New("STUDYPAL_REMOTE_ACCESS_KEY and STUDYPAL_REMOTE_SECRET_KEY are required when remote.bucket is set")
		}
		if isPlaceholder(c.Remote.AccessKey) || isPlaceholder(c.Remote.SecretKey) {
			return errors.New("remote credentials are placeholder values; sync disabled until corrected")
		}
	}
	return nil
}

// isPlaceholder catches template credentials that were never filled in.
func isPlaceholder(v string) bool {
	switch v {
	case "changeme", "CHANGEME", "your-access-key", "your-secret-key", "xxx", "XXX":
		return true
	}
	return false
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
