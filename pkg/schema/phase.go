package schema

// ActionPhase is the lifecycle state of one action's runtime slot.
type ActionPhase string

const (
	// PhaseIdle is the initial phase; the action has never been activated.
	PhaseIdle ActionPhase = "idle"
	// PhaseWaitingTrigger is a partial activation: a Join has consumed some
	// but not all of its required inbound events.
	PhaseWaitingTrigger ActionPhase = "waiting_trigger"
	// PhaseRunning means the owning business System processes the action
	// every tick until it decides the node is done.
	PhaseRunning ActionPhase = "running"
	// PhaseCompleted is terminal for the current activation; the router
	// propagates outgoing transitions from it exactly once.
	PhaseCompleted ActionPhase = "completed"
	// PhaseListening is a re-entrant wait: the node produced output but
	// expects future reactivation (soft reset back to running).
	PhaseListening ActionPhase = "listening"
	// PhaseFailed is reserved. No in-core System assigns or consumes it and
	// no propagation or recovery contract exists for it.
	PhaseFailed ActionPhase = "failed"
)

// ValidPhaseTransitions maps each phase to the phases it may legally enter.
// The router and the state helpers implement exactly these edges.
var ValidPhaseTransitions = map[ActionPhase][]ActionPhase{
	PhaseIdle:           {PhaseWaitingTrigger, PhaseRunning},
	PhaseWaitingTrigger: {PhaseRunning},
	PhaseRunning:        {PhaseCompleted, PhaseListening, PhaseFailed},
	PhaseCompleted:      {},
	PhaseListening:      {PhaseRunning},
	PhaseFailed:         {},
}

// IsValidPhaseTransition reports whether from may enter to.
func IsValidPhaseTransition(from, to ActionPhase) bool {
	for _, allowed := range ValidPhaseTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the phase ends the current activation. Listening
// is not terminal: the node can be soft-reset back to running.
func (p ActionPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Active reports whether the phase keeps the frame alive. Listening is
// deliberately excluded: a graph with only listening nodes is quiescent.
func (p ActionPhase) Active() bool {
	return p == PhaseRunning || p == PhaseWaitingTrigger
}
