package systems

import (
	"log/slog"

	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

func init() {
	mustRegister(schema.TypeJoin, func(log *slog.Logger) engine.System {
		return NewJoinSystem()
	})
}

// JoinSystem finishes Join actions once the router has activated them. The
// arrival counting lives in the router (it owns the event queue); a Join that
// reaches Running has already consumed its required inbound activations and
// only needs to pass control through.
type JoinSystem struct {
	engine.Base
}

// NewJoinSystem returns the System handling the Join type.
func NewJoinSystem() *JoinSystem {
	return &JoinSystem{Base: engine.NewBase("join", engine.GroupBusiness)}
}

// Update completes every running Join.
func (s *JoinSystem) Update(f *engine.Frame) error {
	for _, i := range f.ActionIndices(schema.TypeJoin) {
		st := f.State(i)
		if st.Phase == schema.PhaseRunning {
			st.IsFirstEntry = false
			_ = st.MarkCompleted()
		}
	}
	return nil
}
