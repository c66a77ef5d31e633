package commands

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		configFile = ""
		verbose = false
		errorFormat = ErrorFormatText
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLoadConfigLayers(t *testing.T) {
	file := filepath.Join(t.TempDir(), "routefs.yaml")
	require.NoError(t, os.WriteFile(file, []byte("global:\n  log_level: debug\nmount:\n  mount_point: /mnt/file\n"), 0o644))
	t.Setenv("ROUTEFS_MOUNT_POINT", "/mnt/env")

	configFile = file
	t.Cleanup(func() { configFile = "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "/mnt/env", cfg.Mount.MountPoint)
}

func TestLoadConfigMissingFile(t *testing.T) {
	configFile = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { configFile = "" })

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestApplyMountFlags(t *testing.T) {
	cfg := config.NewDefault()
	require.NoError(t, mountCmd.Flags().Parse([]string{"--read-only", "--metrics-port", "9200", "--log-level", "warn"}))

	applyMountFlags(mountCmd, cfg)
	assert.True(t, cfg.Sources.Local.ReadOnly)
	assert.True(t, cfg.Sources.S3.ReadOnly)
	assert.Equal(t, 9200, cfg.Monitoring.Metrics.Port)
	assert.Equal(t, "warn", cfg.Global.LogLevel)
	// untouched flags keep the configured value
	assert.False(t, cfg.Monitoring.Metrics.Enabled)
	assert.Equal(t, "text", cfg.Global.LogFormat)
}

func TestConfigInitAndValidate(t *testing.T) {
	file := filepath.Join(t.TempDir(), "conf", "routefs.yaml")

	out, err := execute(t, "config", "init", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.FileExists(t, file)

	out, err = execute(t, "config", "validate", "--config", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	require.NoError(t, os.WriteFile(file, []byte("global:\n  log_level: loud\n"), 0o644))
	_, err = execute(t, "config", "validate", "--config", file)
	assert.Error(t, err)
}

func TestMountRequiresSource(t *testing.T) {
	_, err := execute(t, "mount")
	assert.Error(t, err)
}

func TestReportErrorWithRecommendation(t *testing.T) {
	_, err := execute(t, "mount", "gs://bucket", "/mnt/routefs")
	require.True(t, errors.HasCode(err, errors.ErrCodeSourceInvalid))

	var out bytes.Buffer
	ReportError(&out, err)
	assert.Contains(t, out.String(), "Error: ")
	assert.Contains(t, out.String(), "Hint: Sources must be file:///absolute/dir or s3://bucket[/prefix].")
}

func TestReportErrorFormats(t *testing.T) {
	t.Cleanup(func() {
		verbose = false
		errorFormat = ErrorFormatText
	})
	err := errors.NewError(errors.ErrCodeMountFailed, "fuse missing").
		WithComponent("fuse").
		WithContext("mount_point", "/mnt/x")

	var out bytes.Buffer
	verbose = true
	ReportError(&out, err)
	assert.Contains(t, out.String(), "Error: Failed to mount filesystem")
	assert.Contains(t, out.String(), "mount_point: /mnt/x")
	assert.Contains(t, out.String(), "Recommendation:")

	out.Reset()
	errorFormat = ErrorFormatJSON
	ReportError(&out, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "MOUNT_FAILED", doc["code"])

	// internal errors carry no hint
	out.Reset()
	verbose = false
	errorFormat = ErrorFormatText
	ReportError(&out, errors.NewError(errors.ErrCodeInternalError, "boom"))
	assert.NotContains(t, out.String(), "Hint:")

	out.Reset()
	ReportError(&out, stderrors.New("plain"))
	assert.Equal(t, "Error: plain\n", out.String())
}
