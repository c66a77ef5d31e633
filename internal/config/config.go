package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/utils"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "ROUTEFS_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Mount      MountConfig      `yaml:"mount"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Sources    SourcesConfig    `yaml:"sources"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	LogFormat string `yaml:"log_format"`
}

// MountConfig holds kernel mount options
type MountConfig struct {
	MountPoint   string        `yaml:"mount_point"`
	FSName       string        `yaml:"fsname"`
	AllowOther   bool          `yaml:"allow_other"`
	Debug        bool          `yaml:"debug"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
	MaxWrite     int           `yaml:"max_write"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// SourcesConfig holds the settings of the built-in handler sources
type SourcesConfig struct {
	Local LocalSourceConfig `yaml:"local"`
	S3    S3SourceConfig    `yaml:"s3"`
}

// LocalSourceConfig configures the directory mirror source
type LocalSourceConfig struct {
	ReadOnly bool   `yaml:"read_only"`
	Encoding string `yaml:"encoding"`
}

// S3SourceConfig configures the bucket source
type S3SourceConfig struct {
	Region        string      `yaml:"region"`
	Endpoint      string      `yaml:"endpoint"`
	Profile       string      `yaml:"profile"`
	AccessKeyID   string      `yaml:"access_key_id"`
	SecretKey     string      `yaml:"secret_access_key"`
	SessionToken  string      `yaml:"session_token"`
	UsePathStyle  bool        `yaml:"use_path_style"`
	ReadOnly      bool        `yaml:"read_only"`
	MaxObjectSize string      `yaml:"max_object_size"`
	Retry         RetryConfig `yaml:"retry"`
}

// StaticCredentials reports whether explicit keys replace the default
// credential chain
func (s S3SourceConfig) StaticCredentials() bool {
	return s.AccessKeyID != "" && s.SecretKey != ""
}

// RetryConfig represents retry settings
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: utils.FormatText,
		},
		Mount: MountConfig{
			FSName:       "routefs",
			AttrTimeout:  time.Second,
			EntryTimeout: time.Second,
			MaxWrite:     128 * 1024,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   false,
				Port:      9100,
				Path:      "/metrics",
				Namespace: "routefs",
				Labels:    map[string]string{},
			},
		},
		Sources: SourcesConfig{
			S3: S3SourceConfig{
				MaxObjectSize: "64MiB",
				Retry: RetryConfig{
					MaxAttempts: 3,
					BaseDelay:   200 * time.Millisecond,
					MaxDelay:    5 * time.Second,
				},
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").
			WithContext("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent("config").
			WithContext("file", filename)
	}

	return nil
}

// LoadFromEnv overrides settings from ROUTEFS_* environment variables
func (c *Configuration) LoadFromEnv() error {
	env := envReader{}

	env.str("LOG_LEVEL", &c.Global.LogLevel)
	env.str("LOG_FILE", &c.Global.LogFile)
	env.str("LOG_FORMAT", &c.Global.LogFormat)

	env.str("MOUNT_POINT", &c.Mount.MountPoint)
	env.boolean("ALLOW_OTHER", &c.Mount.AllowOther)
	env.boolean("FUSE_DEBUG", &c.Mount.Debug)
	env.duration("ATTR_TIMEOUT", &c.Mount.AttrTimeout)
	env.duration("ENTRY_TIMEOUT", &c.Mount.EntryTimeout)

	env.boolean("METRICS_ENABLED", &c.Monitoring.Metrics.Enabled)
	env.integer("METRICS_PORT", &c.Monitoring.Metrics.Port)
	env.str("METRICS_PATH", &c.Monitoring.Metrics.Path)

	env.boolean("LOCAL_READ_ONLY", &c.Sources.Local.ReadOnly)
	env.str("LOCAL_ENCODING", &c.Sources.Local.Encoding)

	env.str("S3_REGION", &c.Sources.S3.Region)
	env.str("S3_ENDPOINT", &c.Sources.S3.Endpoint)
	env.str("S3_PROFILE", &c.Sources.S3.Profile)
	env.str("S3_ACCESS_KEY_ID", &c.Sources.S3.AccessKeyID)
	env.str("S3_SECRET_ACCESS_KEY", &c.Sources.S3.SecretKey)
	env.str("S3_SESSION_TOKEN", &c.Sources.S3.SessionToken)
	env.boolean("S3_USE_PATH_STYLE", &c.Sources.S3.UsePathStyle)
	env.boolean("S3_READ_ONLY", &c.Sources.S3.ReadOnly)
	env.str("S3_MAX_OBJECT_SIZE", &c.Sources.S3.MaxObjectSize)
	env.integer("S3_RETRY_ATTEMPTS", &c.Sources.S3.Retry.MaxAttempts)

	return env.err
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to marshal config").
			WithComponent("config")
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o750); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to create config directory").
			WithComponent("config")
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigSave, "failed to write config file").
			WithComponent("config").
			WithContext("file", filename)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return invalid("invalid log_level: %s", c.Global.LogLevel)
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case utils.FormatText, utils.FormatJSON, "":
	default:
		return invalid("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if c.Mount.AttrTimeout < 0 || c.Mount.EntryTimeout < 0 {
		return invalid("mount timeouts cannot be negative")
	}
	if c.Mount.MaxWrite < 0 {
		return invalid("max_write cannot be negative")
	}

	if m := c.Monitoring.Metrics; m.Enabled {
		if m.Port <= 0 || m.Port > 65535 {
			return invalid("metrics port out of range: %d", m.Port)
		}
		if !strings.HasPrefix(m.Path, "/") {
			return invalid("metrics path must start with /: %q", m.Path)
		}
	}

	if _, err := c.Sources.S3.MaxObjectBytes(); err != nil {
		return err
	}
	if (c.Sources.S3.AccessKeyID == "") != (c.Sources.S3.SecretKey == "") {
		return invalid("s3 access_key_id and secret_access_key must be set together")
	}
	if c.Sources.S3.Retry.MaxAttempts <= 0 {
		return invalid("s3 retry max_attempts must be greater than 0")
	}

	return nil
}

// MaxObjectBytes parses MaxObjectSize. Zero means unlimited.
func (s S3SourceConfig) MaxObjectBytes() (int64, error) {
	if s.MaxObjectSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s.MaxObjectSize)
	if err != nil {
		return 0, invalid("invalid s3 max_object_size: %s", s.MaxObjectSize)
	}
	return int64(n), nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeConfigValidation, format, args...).
		WithComponent("config")
}

// envReader applies environment overrides and keeps the first parse error
type envReader struct {
	err error
}

func (r *envReader) lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (r *envReader) fail(name, val string, cause error) {
	if r.err == nil {
		r.err = errors.Wrap(cause, errors.ErrCodeConfigLoad,
			fmt.Sprintf("invalid value %q for %s%s", val, EnvPrefix, name)).
			WithComponent("config")
	}
}

func (r *envReader) str(name string, dst *string) {
	if val, ok := r.lookup(name); ok {
		*dst = val
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	if val, ok := r.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = b
	}
}

func (r *envReader) integer(name string, dst *int) {
	if val, ok := r.lookup(name); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) duration(name string, dst *time.Duration) {
	if val, ok := r.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = d
	}
}
