package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 0, cfg.MaxTicks)
	assert.Equal(t, "127.0.0.1:4318", cfg.TraceOTLP)
	assert.Equal(t, 1.0, cfg.TraceSample)
}

func TestLoadConfigSettingsFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".blueprint")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	settings := `{"log_level": "warn", "max_ticks": 7}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(settings), 0o644))

	cfg := loadConfig()
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7, cfg.MaxTicks)
	// Untouched fields keep their defaults.
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadConfigEnvOverridesSettings(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".blueprint")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	settings := `{"log_level": "warn"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(settings), 0o644))

	t.Setenv("BLUEPRINT_LOG_LEVEL", "error")
	t.Setenv("BLUEPRINT_MAX_TICKS", "25")
	t.Setenv("BLUEPRINT_TRACE_SAMPLE", "0.5")

	cfg := loadConfig()
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 25, cfg.MaxTicks)
	assert.Equal(t, 0.5, cfg.TraceSample)
}

func TestLoadConfigIgnoresBadEnvNumbers(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BLUEPRINT_MAX_TICKS", "many")

	cfg := loadConfig()
	assert.Equal(t, 0, cfg.MaxTicks)
}

func TestCommandLoggerFlagWinsOverConfig(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().String("log-format", "text", "")
	require.NoError(t, cmd.Flags().Set("log-level", "debug"))

	log := commandLogger(cmd, Config{LogLevel: "error", LogFormat: "text"})
	assert.True(t, log.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestCommandLoggerFallsBackToConfig(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().String("log-format", "text", "")

	log := commandLogger(cmd, Config{LogLevel: "error", LogFormat: "text"})
	assert.False(t, log.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Handler().Enabled(context.Background(), slog.LevelError))
}
