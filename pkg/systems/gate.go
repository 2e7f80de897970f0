package systems

import (
	"context"
	"log/slog"

	"github.com/emberline/blueprint/internal/expressions"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// TypeGate holds an activation until an expression over the condition scope
// becomes true.
const TypeGate = "Gate"

// PropGateExpression is the expr-lang expression the Gate re-evaluates every
// Tick while running.
const PropGateExpression = "expression"

func init() {
	mustRegister(TypeGate, func(log *slog.Logger) engine.System {
		return NewGateSystem(log)
	})
}

// GateSystem is a wait-until node: while the expression is false the action
// stays Running and is re-checked next Tick; once it is true the action
// completes. A missing expression, an evaluation error or a non-boolean
// result force-complete the action so one bad gate cannot stall the graph.
type GateSystem struct {
	engine.Base
	expr *expressions.ExprEngine
	log  *slog.Logger
}

// NewGateSystem returns the System handling the Gate type.
func NewGateSystem(log *slog.Logger) *GateSystem {
	if log == nil {
		log = slog.Default()
	}
	return &GateSystem{
		Base: engine.NewBase("gate", engine.GroupBusiness),
		expr: expressions.NewExprEngine(),
		log:  log,
	}
}

// Update re-evaluates every running Gate's expression.
func (s *GateSystem) Update(f *engine.Frame) error {
	ctx := context.Background()
	for _, i := range f.ActionIndices(TypeGate) {
		st := f.State(i)
		if st.Phase != schema.PhaseRunning {
			continue
		}
		st.IsFirstEntry = false

		expression := f.Property(i, PropGateExpression)
		if expression == "" {
			f.ForceComplete(i, "gate has no expression")
			continue
		}

		out, err := s.expr.Evaluate(ctx, expression, f.ConditionScope(i))
		if err != nil {
			s.log.Warn("gate expression failed",
				slog.String("action_id", f.ActionID(i)),
				slog.String("expression", expression),
				slog.String("error", err.Error()))
			f.ForceComplete(i, "gate expression failed")
			continue
		}
		pass, ok := out.(bool)
		if !ok {
			f.ForceComplete(i, "gate expression is not boolean")
			continue
		}
		if pass {
			_ = st.MarkCompleted()
		}
	}
	return nil
}
