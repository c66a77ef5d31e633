package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/routefs/routefs/pkg/errors"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "info" {
		t.Errorf("Expected LogLevel to be info, got %s", cfg.Global.LogLevel)
	}
	if cfg.Mount.FSName != "routefs" {
		t.Errorf("Expected FSName to be routefs, got %s", cfg.Mount.FSName)
	}
	if cfg.Mount.AttrTimeout != time.Second {
		t.Errorf("Expected AttrTimeout to be 1s, got %v", cfg.Mount.AttrTimeout)
	}
	if cfg.Monitoring.Metrics.Enabled {
		t.Error("Expected metrics to be disabled by default")
	}
	if cfg.Monitoring.Metrics.Port != 9100 {
		t.Errorf("Expected metrics port 9100, got %d", cfg.Monitoring.Metrics.Port)
	}
	if cfg.Sources.S3.Retry.MaxAttempts != 3 {
		t.Errorf("Expected 3 S3 retry attempts, got %d", cfg.Sources.S3.Retry.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration is invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Configuration)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			modify: func(cfg *Configuration) {},
		},
		{
			name:    "invalid log level",
			modify:  func(cfg *Configuration) { cfg.Global.LogLevel = "LOUD" },
			wantErr: true,
			errMsg:  "invalid log_level",
		},
		{
			name:    "invalid log format",
			modify:  func(cfg *Configuration) { cfg.Global.LogFormat = "xml" },
			wantErr: true,
			errMsg:  "invalid log_format",
		},
		{
			name:    "negative timeout",
			modify:  func(cfg *Configuration) { cfg.Mount.AttrTimeout = -time.Second },
			wantErr: true,
			errMsg:  "timeouts cannot be negative",
		},
		{
			name: "metrics port out of range",
			modify: func(cfg *Configuration) {
				cfg.Monitoring.Metrics.Enabled = true
				cfg.Monitoring.Metrics.Port = 70000
			},
			wantErr: true,
			errMsg:  "metrics port out of range",
		},
		{
			name: "metrics path without slash",
			modify: func(cfg *Configuration) {
				cfg.Monitoring.Metrics.Enabled = true
				cfg.Monitoring.Metrics.Path = "metrics"
			},
			wantErr: true,
			errMsg:  "metrics path must start with /",
		},
		{
			name:   "disabled metrics skip port check",
			modify: func(cfg *Configuration) { cfg.Monitoring.Metrics.Port = 0 },
		},
		{
			name:    "unparseable object size",
			modify:  func(cfg *Configuration) { cfg.Sources.S3.MaxObjectSize = "lots" },
			wantErr: true,
			errMsg:  "invalid s3 max_object_size",
		},
		{
			name:    "access key without secret",
			modify:  func(cfg *Configuration) { cfg.Sources.S3.AccessKeyID = "AKIA" },
			wantErr: true,
			errMsg:  "must be set together",
		},
		{
			name: "static credentials",
			modify: func(cfg *Configuration) {
				cfg.Sources.S3.AccessKeyID = "AKIA"
				cfg.Sources.S3.SecretKey = "secret"
			},
		},
		{
			name:    "zero retry attempts",
			modify:  func(cfg *Configuration) { cfg.Sources.S3.Retry.MaxAttempts = 0 },
			wantErr: true,
			errMsg:  "max_attempts must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
			if !errors.HasCode(err, errors.ErrCodeConfigValidation) {
				t.Errorf("Validate() code = %v, want CONFIG_VALIDATION", errors.CodeOf(err))
			}
		})
	}
}

func TestMaxObjectBytes(t *testing.T) {
	tests := []struct {
		size string
		want int64
	}{
		{"", 0},
		{"64MiB", 64 << 20},
		{"1KB", 1000},
		{"512", 512},
	}
	for _, tt := range tests {
		got, err := S3SourceConfig{MaxObjectSize: tt.size}.MaxObjectBytes()
		if err != nil {
			t.Errorf("MaxObjectBytes(%q) error = %v", tt.size, err)
			continue
		}
		if got != tt.want {
			t.Errorf("MaxObjectBytes(%q) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `
global:
  log_level: debug
  log_format: json
mount:
  allow_other: true
  attr_timeout: 250ms
monitoring:
  metrics:
    enabled: true
    port: 9200
sources:
  local:
    encoding: latin1
  s3:
    region: eu-west-1
    use_path_style: true
    retry:
      max_attempts: 5
`
	if err := os.WriteFile(configFile, []byte(configContent), 0o600); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Global.LogLevel != "debug" || cfg.Global.LogFormat != "json" {
		t.Errorf("global = %+v", cfg.Global)
	}
	if !cfg.Mount.AllowOther {
		t.Error("Expected AllowOther to be true")
	}
	if cfg.Mount.AttrTimeout != 250*time.Millisecond {
		t.Errorf("Expected AttrTimeout 250ms, got %v", cfg.Mount.AttrTimeout)
	}
	if cfg.Mount.EntryTimeout != time.Second {
		t.Errorf("Expected default EntryTimeout to survive, got %v", cfg.Mount.EntryTimeout)
	}
	if !cfg.Monitoring.Metrics.Enabled || cfg.Monitoring.Metrics.Port != 9200 {
		t.Errorf("metrics = %+v", cfg.Monitoring.Metrics)
	}
	if cfg.Sources.Local.Encoding != "latin1" {
		t.Errorf("Expected local encoding latin1, got %s", cfg.Sources.Local.Encoding)
	}
	if cfg.Sources.S3.Region != "eu-west-1" || !cfg.Sources.S3.UsePathStyle {
		t.Errorf("s3 = %+v", cfg.Sources.S3)
	}
	if cfg.Sources.S3.Retry.MaxAttempts != 5 {
		t.Errorf("Expected 5 retry attempts, got %d", cfg.Sources.S3.Retry.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded configuration is invalid: %v", err)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := NewDefault()
	err := cfg.LoadFromFile("/nonexistent/config.yaml")
	if !errors.HasCode(err, errors.ErrCodeConfigLoad) {
		t.Errorf("missing file error = %v, want CONFIG_LOAD", err)
	}

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(broken, []byte("global: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	err = cfg.LoadFromFile(broken)
	if !errors.HasCode(err, errors.ErrCodeConfigLoad) {
		t.Errorf("malformed file error = %v, want CONFIG_LOAD", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	testEnvVars := map[string]string{
		"ROUTEFS_LOG_LEVEL":          "error",
		"ROUTEFS_ALLOW_OTHER":        "true",
		"ROUTEFS_ENTRY_TIMEOUT":      "3s",
		"ROUTEFS_METRICS_ENABLED":    "1",
		"ROUTEFS_METRICS_PORT":       "9300",
		"ROUTEFS_LOCAL_ENCODING":     "utf-16le",
		"ROUTEFS_S3_ENDPOINT":        "http://localhost:9000",
		"ROUTEFS_S3_USE_PATH_STYLE":  "true",
		"ROUTEFS_S3_MAX_OBJECT_SIZE": "1GiB",
		"ROUTEFS_S3_RETRY_ATTEMPTS":  "7",
	}
	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Global.LogLevel != "error" {
		t.Errorf("Expected LogLevel error, got %s", cfg.Global.LogLevel)
	}
	if !cfg.Mount.AllowOther || cfg.Mount.EntryTimeout != 3*time.Second {
		t.Errorf("mount = %+v", cfg.Mount)
	}
	if !cfg.Monitoring.Metrics.Enabled || cfg.Monitoring.Metrics.Port != 9300 {
		t.Errorf("metrics = %+v", cfg.Monitoring.Metrics)
	}
	if cfg.Sources.Local.Encoding != "utf-16le" {
		t.Errorf("Expected local encoding utf-16le, got %s", cfg.Sources.Local.Encoding)
	}
	s3 := cfg.Sources.S3
	if s3.Endpoint != "http://localhost:9000" || !s3.UsePathStyle || s3.Retry.MaxAttempts != 7 {
		t.Errorf("s3 = %+v", s3)
	}
	if n, _ := s3.MaxObjectBytes(); n != 1<<30 {
		t.Errorf("MaxObjectBytes = %d, want 1GiB", n)
	}
}

func TestLoadFromEnvInvalidValue(t *testing.T) {
	t.Setenv("ROUTEFS_METRICS_PORT", "ninety")
	t.Setenv("ROUTEFS_ALLOW_OTHER", "maybe")

	cfg := NewDefault()
	err := cfg.LoadFromEnv()
	if !errors.HasCode(err, errors.ErrCodeConfigLoad) {
		t.Fatalf("LoadFromEnv() error = %v, want CONFIG_LOAD", err)
	}
	if !strings.Contains(err.Error(), "ROUTEFS_ALLOW_OTHER") {
		t.Errorf("error should name the first bad variable: %v", err)
	}
	if cfg.Monitoring.Metrics.Port != 9100 {
		t.Errorf("invalid value should not be applied, port = %d", cfg.Monitoring.Metrics.Port)
	}
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "routefs.yaml")

	cfg := NewDefault()
	cfg.Global.LogLevel = "debug"
	cfg.Sources.S3.Region = "us-east-2"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Global.LogLevel != "debug" || loaded.Sources.S3.Region != "us-east-2" {
		t.Errorf("saved configuration did not survive: %+v", loaded)
	}
	if loaded.Mount.AttrTimeout != time.Second {
		t.Errorf("AttrTimeout = %v after save", loaded.Mount.AttrTimeout)
	}
}
