package cli

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emberline/blueprint/internal/logging"
)

// Config holds shared CLI configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	LogLevel    string  `json:"log_level"`
	LogFormat   string  `json:"log_format"`
	MaxTicks    int     `json:"max_ticks"`
	TraceOTLP   string  `json:"trace_otlp"`
	TraceSample float64 `json:"trace_sample"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   "text",
		TraceOTLP:   "127.0.0.1:4318",
		TraceSample: 1.0,
	}
}

func blueprintDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blueprint"
	}
	return filepath.Join(home, ".blueprint")
}

func settingsPath() string {
	return filepath.Join(blueprintDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("BLUEPRINT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BLUEPRINT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("BLUEPRINT_MAX_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTicks = n
		}
	}
	if v := os.Getenv("BLUEPRINT_TRACE_OTLP"); v != "" {
		cfg.TraceOTLP = v
	}
	if v := os.Getenv("BLUEPRINT_TRACE_SAMPLE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TraceSample = f
		}
	}

	return cfg
}

// commandLogger builds the logger for one command invocation from the root
// persistent flags layered over the config.
func commandLogger(cmd *cobra.Command, cfg Config) *slog.Logger {
	level := cfg.LogLevel
	format := cfg.LogFormat
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		level = f.Value.String()
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		format = f.Value.String()
	}
	return logging.New(level, format)
}
