package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberline/blueprint/internal/diagram"
	"github.com/emberline/blueprint/pkg/engine"
)

// NewGraphCmd creates the "graph" subcommand.
func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <file>",
		Short: "Render a blueprint document as a Mermaid flowchart",
		Args:  cobra.ExactArgs(1),
		RunE:  runGraph,
	}

	cmd.Flags().StringP("output", "o", "", "Write the diagram to a file (default: stdout)")

	return cmd
}

func runGraph(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return fmt.Errorf("reading file: %w", err)
	}

	doc, err := engine.ParseDocument(raw)
	if err != nil {
		return exitError(exitInputParse, "parsing blueprint: %v", err)
	}

	model, err := diagram.Build(doc, nil)
	if err != nil {
		return exitError(exitValidation, "building diagram: %v", err)
	}
	rendered := diagram.RenderMermaid(model)

	if outputPath, _ := cmd.Flags().GetString("output"); outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(rendered), 0o644); err != nil {
			return exitError(exitRuntime, "writing diagram file: %v", err)
		}
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}
