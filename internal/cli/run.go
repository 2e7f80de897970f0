package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberline/blueprint/internal/diagram"
	"github.com/emberline/blueprint/internal/logging"
	"github.com/emberline/blueprint/internal/tracing"
	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
	"github.com/emberline/blueprint/pkg/systems"
)

// Exit codes returned to the shell.
const (
	exitSuccess      = 0
	exitValidation   = 1
	exitRuntime      = 2
	exitFileNotFound = 3
	exitInputParse   = 4
	exitConfig       = 5
	exitTimeout      = 10
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a blueprint document until it goes quiescent",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringArrayP("global", "g", nil, "Seed a global variable (repeatable, e.g. --global score=10)")
	cmd.Flags().Int("max-ticks", 0, "Tick limit for the run (0 uses the configured default)")
	cmd.Flags().Duration("timeout", time.Minute, "Wall-clock execution timeout")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().String("diagram", "", "Write a Mermaid diagram with final phases to this file")
	cmd.Flags().Bool("trace", false, "Export OTLP spans for this run")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	cfg := loadConfig()
	log := commandLogger(cmd, cfg)

	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return exitError(exitRuntime, "reading file: %v", err)
	}

	// Parse once here for global seeding and diagram output; the runner
	// re-parses behind its schema validation.
	doc, err := engine.ParseDocument(raw)
	if err != nil {
		return exitError(exitInputParse, "parsing blueprint: %v", err)
	}

	globals := blackboard.NewBoard()
	if err := seedGlobalFlags(cmd, doc, globals); err != nil {
		return err
	}

	ctx := cmd.Context()
	if traced, _ := cmd.Flags().GetBool("trace"); traced {
		shutdown, err := tracing.Setup(ctx, traceConfig(cfg, "blueprint-run"), log)
		if err != nil {
			return exitError(exitConfig, "setting up tracing: %v", err)
		}
		defer func() { _ = tracing.Shutdown(shutdown, log) }()
	}

	r, err := engine.NewRunner(engine.WithLogger(log), engine.WithGlobals(globals))
	if err != nil {
		return exitError(exitConfig, "building runner: %v", err)
	}
	if err := systems.RegisterDefaults(r, log); err != nil {
		return exitError(exitConfig, "registering systems: %v", err)
	}

	if err := r.Load(raw); err != nil {
		return loadExitError(err)
	}

	maxTicks, _ := cmd.Flags().GetInt("max-ticks")
	if maxTicks == 0 {
		maxTicks = cfg.MaxTicks
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	runCtx, cancel := context.WithTimeout(logging.WithSessionID(ctx, r.SessionID()), timeout)
	defer cancel()

	runErr := r.RunUntilComplete(runCtx, maxTicks)
	if runErr != nil && runCtx.Err() == context.DeadlineExceeded {
		return exitError(exitTimeout, "execution timed out after %s", timeout)
	}

	if path, _ := cmd.Flags().GetString("diagram"); path != "" {
		if err := writeRunDiagram(path, doc, r.Frame()); err != nil {
			return exitError(exitRuntime, "writing diagram: %v", err)
		}
	}

	if err := writeRunOutput(cmd, r, doc); err != nil {
		return err
	}

	if runErr != nil {
		return exitError(exitRuntime, "execution failed: %v", runErr)
	}
	return nil
}

// seedGlobalFlags applies --global name=value pairs to the shared board. The
// name must be a declared Global variable; its declared type drives parsing.
func seedGlobalFlags(cmd *cobra.Command, doc *schema.BlueprintDocument, board *blackboard.Board) error {
	pairs, _ := cmd.Flags().GetStringArray("global")
	for _, kv := range pairs {
		name, rawVal, ok := strings.Cut(kv, "=")
		if !ok {
			return exitError(exitInputParse, "invalid --global %q (want name=value)", kv)
		}
		decl := findGlobalDeclaration(doc, name)
		if decl == nil {
			return exitError(exitInputParse, "--global %s: no Global variable with that name", name)
		}
		val, err := blackboard.ParseValue(decl.Type, rawVal)
		if err != nil {
			return exitError(exitInputParse, "--global %s: %v", name, err)
		}
		board.Set(decl.Index, val)
	}
	return nil
}

func findGlobalDeclaration(doc *schema.BlueprintDocument, name string) *schema.VariableDeclaration {
	for i := range doc.Variables {
		v := &doc.Variables[i]
		if v.Scope == schema.ScopeGlobal && v.Name == name {
			return v
		}
	}
	return nil
}

// loadExitError maps a Load failure to the right exit code: document defects
// are validation failures, everything else is a runtime fault.
func loadExitError(err error) error {
	var bpErr *schema.BlueprintError
	if errors.As(err, &bpErr) {
		switch bpErr.Code {
		case schema.ErrCodeValidation, schema.ErrCodeLoad:
			return exitError(exitValidation, "%v", err)
		}
	}
	return exitError(exitRuntime, "loading blueprint: %v", err)
}

func traceConfig(cfg Config, service string) tracing.Config {
	tc := tracing.DefaultConfig(service)
	if cfg.TraceOTLP != "" {
		tc.Endpoint = cfg.TraceOTLP
	}
	if cfg.TraceSample > 0 {
		tc.SampleRatio = cfg.TraceSample
	}
	return tc
}

// runResult is the json output shape of the run command.
type runResult struct {
	SessionID   string            `json:"session_id"`
	BlueprintID string            `json:"blueprint_id"`
	Completed   bool              `json:"completed"`
	Ticks       uint64            `json:"ticks"`
	Variables   map[string]string `json:"variables,omitempty"`
}

// writeRunOutput prints the final run summary in the requested format.
func writeRunOutput(cmd *cobra.Command, r *engine.Runner, doc *schema.BlueprintDocument) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	result := runResult{
		SessionID:   r.SessionID(),
		BlueprintID: doc.BlueprintID,
		Completed:   r.IsCompleted(),
		Ticks:       r.TickCount(),
		Variables:   finalVariables(r.Frame(), doc),
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text":
		fmt.Fprintf(out, "blueprint: %s\n", result.BlueprintID)
		fmt.Fprintf(out, "session:   %s\n", result.SessionID)
		fmt.Fprintf(out, "ticks:     %d\n", result.Ticks)
		fmt.Fprintf(out, "completed: %t\n", result.Completed)
		if len(result.Variables) > 0 {
			fmt.Fprintln(out, "variables:")
			names := make([]string, 0, len(result.Variables))
			for name := range result.Variables {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %s = %s\n", name, result.Variables[name])
			}
		}
		return nil
	default:
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}
}

// finalVariables resolves every declared variable against its board.
func finalVariables(f *engine.Frame, doc *schema.BlueprintDocument) map[string]string {
	if f == nil {
		return nil
	}
	vars := make(map[string]string, len(doc.Variables))
	for i := range doc.Variables {
		decl := &doc.Variables[i]
		board := f.Locals()
		if decl.Scope == schema.ScopeGlobal {
			board = f.Globals()
		}
		if v, ok := board.Get(decl.Index); ok {
			vars[decl.Name] = v.Encode()
		}
	}
	return vars
}

// writeRunDiagram renders the document with each action's final phase.
func writeRunDiagram(path string, doc *schema.BlueprintDocument, f *engine.Frame) error {
	phases := make(map[string]schema.ActionPhase)
	if f != nil {
		for i := 0; i < f.ActionCount(); i++ {
			phases[f.ActionID(i)] = f.State(i).Phase
		}
	}
	model, err := diagram.Build(doc, phases)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(diagram.RenderMermaid(model)), 0o644)
}
