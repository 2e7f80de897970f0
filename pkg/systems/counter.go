package systems

import (
	"log/slog"

	"github.com/emberline/blueprint/pkg/codec"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// TypeCounter counts activations and completes at a target count.
const TypeCounter = "Counter"

// PropCounterTarget is the activation count at which the Counter completes.
// Defaults to 1.
const PropCounterTarget = "target"

// PortCounterCount is the output data port carrying the running count.
const PortCounterCount = "count"

func init() {
	mustRegister(TypeCounter, func(log *slog.Logger) engine.System {
		return NewCounterSystem()
	})
}

// CounterSystem counts how often an action has been activated. Below the
// target it parks the action Listening, so the next inbound event soft-resets
// it with the count preserved in CustomInt; at the target it completes. Each
// activation publishes the running count on the count port.
type CounterSystem struct {
	engine.Base
}

// NewCounterSystem returns the System handling the Counter type.
func NewCounterSystem() *CounterSystem {
	return &CounterSystem{Base: engine.NewBase("counter", engine.GroupBusiness)}
}

// Update advances the count once per activation and parks or completes the
// action depending on the target.
func (s *CounterSystem) Update(f *engine.Frame) error {
	for _, i := range f.ActionIndices(TypeCounter) {
		st := f.State(i)
		if st.Phase != schema.PhaseRunning || !st.IsFirstEntry {
			continue
		}
		st.IsFirstEntry = false
		st.CustomInt++
		f.SetDataPortValue(i, PortCounterCount, codec.FormatInt(int64(st.CustomInt)))

		target := f.IntProperty(i, PropCounterTarget, 1)
		if st.CustomInt >= target {
			_ = st.MarkCompleted()
		} else {
			_ = st.MarkListening()
		}
	}
	return nil
}
