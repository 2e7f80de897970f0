package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/emberline/blueprint/internal/director"
	"github.com/emberline/blueprint/internal/tracing"
)

// NewDirectorCmd creates the "director" subcommand.
func NewDirectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "director <manifest>",
		Short: "Run blueprints on the schedules of a director manifest",
		Long: "Director loads a YAML manifest, seeds the shared global board, and runs\n" +
			"each listed blueprint either once at startup or on its cron schedule.\n" +
			"It stops when the context is cancelled (Ctrl-C) and drains running sessions.",
		Args: cobra.ExactArgs(1),
		RunE: runDirector,
	}

	cmd.Flags().Bool("trace", false, "Export OTLP spans for scheduled sessions")

	return cmd
}

func runDirector(cmd *cobra.Command, args []string) error {
	manifestPath := args[0]
	cfg := loadConfig()
	log := commandLogger(cmd, cfg)
	ctx := cmd.Context()

	m, err := director.LoadManifest(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", manifestPath)
		}
		return exitError(exitValidation, "loading manifest: %v", err)
	}

	if traced, _ := cmd.Flags().GetBool("trace"); traced {
		shutdown, err := tracing.Setup(ctx, traceConfig(cfg, "blueprint-director"), log)
		if err != nil {
			return exitError(exitConfig, "setting up tracing: %v", err)
		}
		defer func() { _ = tracing.Shutdown(shutdown, log) }()
	}

	d, err := director.NewDirector(m,
		director.WithLogger(log),
		director.WithBaseDir(filepath.Dir(manifestPath)),
	)
	if err != nil {
		return exitError(exitConfig, "building director: %v", err)
	}

	if err := d.Run(ctx); err != nil {
		return exitError(exitRuntime, "director: %v", err)
	}

	metrics := d.Metrics()
	fmt.Fprintf(cmd.OutOrStdout(), "sessions: %d completed, %d failed\n",
		metrics.Completed, metrics.Failed)
	return nil
}
