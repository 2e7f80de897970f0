package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emberline/blueprint/internal/validation"
	"github.com/emberline/blueprint/pkg/schema"
	"github.com/emberline/blueprint/pkg/systems"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a blueprint document without executing",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	out := cmd.OutOrStdout()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return fmt.Errorf("reading file: %w", err)
	}

	// The registry lookup lets the linter flag action types no System
	// claims, which the permissive runtime would silently skip.
	dv, err := validation.NewDocumentValidator(systems.Lookup{})
	if err != nil {
		return exitError(exitConfig, "building validator: %v", err)
	}
	_, result := dv.ValidateBytes(data)

	switch format {
	case "json":
		printResultJSON(out, result)
	case "text":
		printResultText(out, result)
	default:
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	if !result.Valid() || (strict && len(result.Warnings) > 0) {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

// printResultText writes issues as formatted lines followed by a summary.
func printResultText(w io.Writer, result *schema.ValidationResult) {
	printIssues(w, result.Errors)
	printIssues(w, result.Warnings)

	errs := len(result.Errors)
	warns := len(result.Warnings)
	switch {
	case errs == 0 && warns == 0:
		fmt.Fprintln(w, "Valid!")
	case errs == 0:
		fmt.Fprintf(w, "\nValid! (%d %s)\n", warns, pluralize("warning", warns))
	default:
		fmt.Fprintf(w, "\n%d %s, %d %s\n",
			errs, pluralize("error", errs),
			warns, pluralize("warning", warns))
	}
}

func printIssues(w io.Writer, issues []schema.ValidationIssue) {
	for _, i := range issues {
		sev := strings.ToUpper(string(i.Severity))
		if i.Path != "" {
			fmt.Fprintf(w, "%s [%s]: %s (at %s)\n", sev, i.Code, i.Message, i.Path)
		} else {
			fmt.Fprintf(w, "%s [%s]: %s\n", sev, i.Code, i.Message)
		}
	}
}

func printResultJSON(w io.Writer, result *schema.ValidationResult) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
