package systems

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/emberline/blueprint/internal/expressions"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// TypeQuery runs a jq program over a JSON input and publishes the result.
const TypeQuery = "Query"

// Query properties and ports. The input port wins over the input property;
// with neither the program runs against null, which still serves programs
// that only build values.
const (
	PropQueryProgram = "query"
	PropQueryInput   = "input"

	PortQueryInput  = "input"
	PortQueryResult = "result"
)

func init() {
	mustRegister(TypeQuery, func(log *slog.Logger) engine.System {
		return NewQuerySystem(log)
	})
}

// QuerySystem is the data-reshaping node: one jq program instead of a node
// type per extraction. The input is decoded as JSON, a non-JSON input is
// passed through as a plain string with a warning, and the result is
// published JSON-encoded on the result port for downstream consumers.
type QuerySystem struct {
	engine.Base
	jq  *expressions.GoJQEngine
	log *slog.Logger
}

// NewQuerySystem returns the System handling the Query type.
func NewQuerySystem(log *slog.Logger) *QuerySystem {
	if log == nil {
		log = slog.Default()
	}
	return &QuerySystem{
		Base: engine.NewBase("query", engine.GroupBusiness),
		jq:   expressions.NewGoJQEngine(),
		log:  log,
	}
}

// Update runs every running Query's program and completes it.
func (s *QuerySystem) Update(f *engine.Frame) error {
	ctx := context.Background()
	for _, i := range f.ActionIndices(TypeQuery) {
		st := f.State(i)
		if st.Phase != schema.PhaseRunning {
			continue
		}
		st.IsFirstEntry = false

		program := f.Property(i, PropQueryProgram)
		if program == "" {
			f.ForceComplete(i, "query has no program")
			continue
		}

		raw, ok := f.DataPortValue(i, PortQueryInput)
		if !ok {
			raw = f.Property(i, PropQueryInput)
		}
		var input any
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &input); err != nil {
				s.log.Warn("query input is not JSON, treating as string",
					slog.String("action_id", f.ActionID(i)))
				input = raw
			}
		}

		out, err := s.jq.Evaluate(ctx, program, input)
		if err != nil {
			s.log.Warn("query program failed",
				slog.String("action_id", f.ActionID(i)),
				slog.String("query", program),
				slog.String("error", err.Error()))
			f.ForceComplete(i, "query program failed")
			continue
		}
		encoded, err := json.Marshal(out)
		if err != nil {
			f.ForceComplete(i, "query result does not encode")
			continue
		}
		f.SetDataPortValue(i, PortQueryResult, string(encoded))

		_ = st.MarkCompleted()
	}
	return nil
}
