package systems

import (
	"log/slog"

	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// TypeDelay holds an activation for a configured number of Ticks.
const TypeDelay = "Delay"

// PropDelayTicks is the Tick count property. Defaults to 1; values below 1
// are clamped to 1 so a Delay always costs at least one Tick.
const PropDelayTicks = "ticks"

func init() {
	mustRegister(TypeDelay, func(log *slog.Logger) engine.System {
		return NewDelaySystem()
	})
}

// DelaySystem completes a Delay action after it has been running for its
// configured number of Ticks. The count is latched into CustomInt on first
// entry, so property edits between activations only affect later runs.
type DelaySystem struct {
	engine.Base
}

// NewDelaySystem returns the System handling the Delay type.
func NewDelaySystem() *DelaySystem {
	return &DelaySystem{Base: engine.NewBase("delay", engine.GroupBusiness)}
}

// Update latches the Tick budget on first entry and completes once the
// action has spent that many Ticks running.
func (s *DelaySystem) Update(f *engine.Frame) error {
	for _, i := range f.ActionIndices(TypeDelay) {
		st := f.State(i)
		if st.Phase != schema.PhaseRunning {
			continue
		}
		if st.IsFirstEntry {
			st.IsFirstEntry = false
			ticks := f.IntProperty(i, PropDelayTicks, 1)
			if ticks < 1 {
				ticks = 1
			}
			st.CustomInt = ticks
		}
		if st.TicksInPhase >= st.CustomInt {
			_ = st.MarkCompleted()
		}
	}
	return nil
}
