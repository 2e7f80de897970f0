package engine

import (
	"github.com/emberline/blueprint/pkg/schema"
)

// ActionRuntimeState is the mutable per-Action record, array-indexed in the
// Frame. CustomInt and CustomFloat are scratch slots owned by whichever
// business System processes that Action's TypeId; the engine itself only
// touches them for Join arrival counting and otherwise preserves them across
// re-entry.
type ActionRuntimeState struct {
	Phase        schema.ActionPhase
	TicksInPhase int

	CustomInt   int
	CustomFloat float64

	// TransitionPropagated guards against duplicate downstream activation:
	// once the TransitionSystem has scanned a Completed node it never emits
	// from that node again until a reset.
	TransitionPropagated bool

	// IsFirstEntry is a one-shot initialization flag. The engine raises it on
	// every (re)activation; the owning System lowers it after initializing.
	IsFirstEntry bool
}

// newStates returns the all-Idle state array for n actions.
func newStates(n int) []ActionRuntimeState {
	states := make([]ActionRuntimeState, n)
	for i := range states {
		states[i].Phase = schema.PhaseIdle
	}
	return states
}

// enter moves to a new phase after checking the transition table, resetting
// TicksInPhase on entry.
func (s *ActionRuntimeState) enter(to schema.ActionPhase) error {
	if !schema.IsValidPhaseTransition(s.Phase, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidState,
			"invalid phase transition %s -> %s", s.Phase, to)
	}
	s.Phase = to
	s.TicksInPhase = 0
	return nil
}

// Activate moves an Idle or WaitingTrigger state to Running with first-entry
// semantics. CustomInt/CustomFloat are left alone: a Join's arrival count must
// survive its own activation.
func (s *ActionRuntimeState) Activate() error {
	if err := s.enter(schema.PhaseRunning); err != nil {
		return err
	}
	s.IsFirstEntry = true
	s.TransitionPropagated = false
	return nil
}

// Wait moves an Idle state to WaitingTrigger (a Join below its threshold).
func (s *ActionRuntimeState) Wait() error {
	return s.enter(schema.PhaseWaitingTrigger)
}

// MarkCompleted finishes the current activation. Business-System-owned: the
// engine never decides when a node is done.
func (s *ActionRuntimeState) MarkCompleted() error {
	return s.enter(schema.PhaseCompleted)
}

// MarkListening parks a Running state in the re-entrant wait.
func (s *ActionRuntimeState) MarkListening() error {
	return s.enter(schema.PhaseListening)
}

// SoftReset re-enters Running from Listening. TicksInPhase, IsFirstEntry and
// TransitionPropagated behave as on first activation; CustomInt/CustomFloat
// are explicitly preserved so the owning System's accumulated state survives.
func (s *ActionRuntimeState) SoftReset() error {
	if err := s.enter(schema.PhaseRunning); err != nil {
		return err
	}
	s.IsFirstEntry = true
	s.TransitionPropagated = false
	return nil
}

// Active reports whether this state keeps the graph alive.
func (s *ActionRuntimeState) Active() bool {
	return s.Phase.Active()
}
