package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emberline/blueprint/internal/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blueprint",
	Short: "Blueprint runtime CLI",
	Long:  "blueprint validates, renders, and executes exported visual-scripting blueprints on the tick engine.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug | info | warn | error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text | json")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("blueprint version %s\n", version))

	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewValidateCmd())
	rootCmd.AddCommand(cli.NewGraphCmd())
	rootCmd.AddCommand(cli.NewDirectorCmd())
}
