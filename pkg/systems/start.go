package systems

import (
	"log/slog"

	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

func init() {
	mustRegister(schema.TypeStart, func(log *slog.Logger) engine.System {
		return NewStartSystem()
	})
}

// StartSystem finishes Start actions. The loader activates every Start at
// Tick zero; completing them here lets their outgoing transitions fire on the
// first routing pass.
type StartSystem struct {
	engine.Base
}

// NewStartSystem returns the System handling the Start type.
func NewStartSystem() *StartSystem {
	return &StartSystem{Base: engine.NewBase("start", engine.GroupBusiness)}
}

// Update completes every running Start.
func (s *StartSystem) Update(f *engine.Frame) error {
	for _, i := range f.ActionIndices(schema.TypeStart) {
		st := f.State(i)
		if st.Phase == schema.PhaseRunning {
			st.IsFirstEntry = false
			_ = st.MarkCompleted()
		}
	}
	return nil
}
