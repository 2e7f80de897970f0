package expressions

import (
	"context"
	"log/slog"

	"github.com/emberline/blueprint/pkg/schema"
)

// ConditionEvaluator applies the transition condition policy: "Immediate"
// and empty conditions always pass, "Expression" and "CEL" run their engines
// against the frame scope, and everything else passes with a warning.
//
// Evaluation failures also pass with a warning. A broken condition halting a
// shipped blueprint would be worse than an extra transition firing, and the
// validate command surfaces these before content ships.
type ConditionEvaluator struct {
	log  *slog.Logger
	expr *ExprEngine
	cel  *CELEngine
}

// NewConditionEvaluator builds the evaluator and its engines.
func NewConditionEvaluator(log *slog.Logger) (*ConditionEvaluator, error) {
	if log == nil {
		log = slog.Default()
	}
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &ConditionEvaluator{
		log:  log,
		expr: NewExprEngine(),
		cel:  celEngine,
	}, nil
}

// Evaluate returns the condition verdict for one transition.
func (c *ConditionEvaluator) Evaluate(ctx context.Context, cond schema.ConditionEntry, scope map[string]any) bool {
	switch cond.Type {
	case "", schema.ConditionImmediate:
		return true
	case schema.ConditionExpression:
		return c.verdict(ctx, c.expr, cond.Expression, scope)
	case schema.ConditionCEL:
		return c.verdict(ctx, c.cel, cond.Expression, scope)
	default:
		// Forward compatibility: a runtime older than the editor that
		// produced the document keeps routing rather than stalling.
		c.log.Warn("unknown condition type, defaulting to true",
			slog.String("type", cond.Type))
		return true
	}
}

func (c *ConditionEvaluator) verdict(ctx context.Context, engine Engine, expression string, scope map[string]any) bool {
	out, err := engine.Evaluate(ctx, expression, scope)
	if err != nil {
		c.log.Warn("condition evaluation failed, defaulting to true",
			slog.String("engine", engine.Name()),
			slog.String("expression", expression),
			slog.String("error", err.Error()))
		return true
	}
	b, ok := out.(bool)
	if !ok {
		c.log.Warn("condition did not evaluate to a boolean, defaulting to true",
			slog.String("engine", engine.Name()),
			slog.String("expression", expression))
		return true
	}
	return b
}
