package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studypal.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STUDYPAL_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("Port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/studypal.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if time.Duration(cfg.Sync.DebounceDelay) != 5*time.Second {
		t.Errorf("DebounceDelay = %v, want 5s", time.Duration(cfg.Sync.DebounceDelay))
	}
	if time.Duration(cfg.Sync.ClockSkewBuffer) != time.Second {
		t.Errorf("ClockSkewBuffer = %v, want 1s", time.Duration(cfg.Sync.ClockSkewBuffer))
	}
	if cfg.Sync.ExportContent {
		t.Error("ExportContent should default to false")
	}
	if cfg.Remote.Configured() {
		t.Error("remote should not be configured by default")
	}
	if cfg.Remote.ObjectName != "studypal.db.json" {
		t.Errorf("ObjectName = %q, want default", cfg.Remote.ObjectName)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}
}

func TestLoadFromFile_ParsesYAML(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
  shutdown_timeout: 5s
database:
  path: /tmp/test.db
sync:
  debounce_delay: 10s
  export_content: true
log:
  level: debug
  format: text
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if time.Duration(cfg.Server.ShutdownTimeout) != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", time.Duration(cfg.Server.ShutdownTimeout))
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if time.Duration(cfg.Sync.DebounceDelay) != 10*time.Second {
		t.Errorf("DebounceDelay = %v, want 10s", time.Duration(cfg.Sync.DebounceDelay))
	}
	if !cfg.Sync.ExportContent {
		t.Error("ExportContent = false, want true")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want debug/text", cfg.Log)
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	path := writeConfigFile(t, `
sync:
  debounce_delay: "not a duration"
`)

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("LoadFromFile() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want invalid duration message", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STUDYPAL_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STUDYPAL_PORT", "7777")
	t.Setenv("STUDYPAL_DB_PATH", "/var/lib/studypal.db")
	t.Setenv("STUDYPAL_DEBOUNCE_DELAY", "2s")
	t.Setenv("STUDYPAL_API_KEY", "secret-key")
	t.Setenv("STUDYPAL_LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Database.Path != "/var/lib/studypal.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if time.Duration(cfg.Sync.DebounceDelay) != 2*time.Second {
		t.Errorf("DebounceDelay = %v, want 2s", time.Duration(cfg.Sync.DebounceDelay))
	}
	if cfg.Auth.APIKey != "secret-key" {
		t.Errorf("APIKey = %q", cfg.Auth.APIKey)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoad_RemoteCredentialsAreEnvOnly(t *testing.T) {
	// Credentials in YAML must be ignored; only env vars count.
	path := writeConfigFile(t, `
remote:
  endpoint: localhost:9000
  bucket: studypal-backups
  accesskey: yaml-leak
  secretkey: yaml-leak
`)
	t.Setenv("STUDYPAL_REMOTE_ACCESS_KEY", "env-access")
	t.Setenv("STUDYPAL_REMOTE_SECRET_KEY", "env-secret")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Remote.AccessKey != "env-access" {
		t.Errorf("AccessKey = %q, want env value", cfg.Remote.AccessKey)
	}
	if cfg.Remote.SecretKey != "env-secret" {
		t.Errorf("SecretKey = %q, want env value", cfg.Remote.SecretKey)
	}
	if !cfg.Remote.Configured() {
		t.Error("bucket is set, remote should report configured")
	}
}

func TestValidate_RemoteBucketRequiresCredentials(t *testing.T) {
	path := writeConfigFile(t, `
remote:
  endpoint: localhost:9000
  bucket: studypal-backups
`)
	t.Setenv("STUDYPAL_REMOTE_ACCESS_KEY", "")
	t.Setenv("STUDYPAL_REMOTE_SECRET_KEY", "")

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestValidate_RemoteBucketRequiresEndpoint(t *testing.T) {
	path := writeConfigFile(t, `
remote:
  bucket: studypal-backups
`)
	t.Setenv("STUDYPAL_REMOTE_ACCESS_KEY", "access")
	t.Setenv("STUDYPAL_REMOTE_SECRET_KEY", "secret")

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestValidate_PlaceholderCredentialsRejected(t *testing.T) {
	path := writeConfigFile(t, `
remote:
  endpoint: localhost:9000
  bucket: studypal-backups
`)
	t.Setenv("STUDYPAL_REMOTE_ACCESS_KEY", "changeme")
	t.Setenv("STUDYPAL_REMOTE_SECRET_KEY", "real-secret")

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected error for placeholder credentials")
	}
	if !strings.Contains(err.Error(), "placeholder") {
		t.Errorf("error = %v, want placeholder message", err)
	}
}

func TestValidate_NonPositiveDebounceRejected(t *testing.T) {
	path := writeConfigFile(t, `
sync:
  debounce_delay: 0s
`)

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for zero debounce delay")
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	d := Duration(90 * time.Second)
	v, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error = %v", err)
	}
	if v != "1m30s" {
		t.Errorf("MarshalYAML() = %v, want 1m30s", v)
	}
}
