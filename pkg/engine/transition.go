package engine

import (
	"context"
	"log/slog"

	"github.com/emberline/blueprint/internal/expressions"
	"github.com/emberline/blueprint/pkg/schema"
)

// Pinned system names. Hosts order their own systems relative to these via
// After within the framework group; the postprocess pair is engine-owned.
const (
	SystemPhaseClock  = "phase-clock"
	SystemTransitions = "transitions"
	SystemEnd         = "end"
)

// phaseClockSystem advances every active action's TicksInPhase at the start
// of the Tick, before any business system runs. An action activated during
// Tick N therefore sees TicksInPhase == 1 on its first update in Tick N+1,
// and IsFirstEntry stays true for exactly that one update.
type phaseClockSystem struct {
	Base
}

func newPhaseClockSystem() *phaseClockSystem {
	return &phaseClockSystem{Base: NewBase(SystemPhaseClock, GroupFramework)}
}

func (s *phaseClockSystem) Update(f *Frame) error {
	for i := 0; i < f.ActionCount(); i++ {
		st := f.State(i)
		switch st.Phase {
		case schema.PhaseRunning, schema.PhaseWaitingTrigger, schema.PhaseListening:
			st.TicksInPhase++
			if st.TicksInPhase > 1 {
				st.IsFirstEntry = false
			}
		}
	}
	return nil
}

// transitionSystem is the router. It runs in two phases within one update:
// first a completion scan over all actions in index order, emitting a
// PortEvent for every outgoing transition of a newly-completed action whose
// condition holds; then consumption of the whole pending queue in emission
// order, activating targets according to their phase. Both orders are total,
// which is what makes replays byte-for-byte reproducible.
type transitionSystem struct {
	Base
	conditions *expressions.ConditionEvaluator
	log        *slog.Logger
}

func newTransitionSystem(conditions *expressions.ConditionEvaluator, log *slog.Logger) *transitionSystem {
	return &transitionSystem{
		Base:       NewBase(SystemTransitions, GroupPostProcess),
		conditions: conditions,
		log:        log,
	}
}

func (s *transitionSystem) Update(f *Frame) error {
	s.scanCompletions(f)
	s.consumeEvents(f)
	return nil
}

// scanCompletions emits events for completed actions exactly once. The
// TransitionPropagated latch survives until the action re-enters Running, so
// an action completed after this system ran (an End finishing in postprocess)
// propagates on the next Tick instead of being lost.
func (s *transitionSystem) scanCompletions(f *Frame) {
	ctx := context.Background()
	for i := 0; i < f.ActionCount(); i++ {
		st := f.State(i)
		if st.Phase != schema.PhaseCompleted || st.TransitionPropagated {
			continue
		}
		st.TransitionPropagated = true

		var scope map[string]any
		for _, ti := range f.OutgoingTransitions(i) {
			t := f.Transition(ti)
			if scope == nil {
				scope = f.ConditionScope(i)
			}
			if !s.conditions.Evaluate(ctx, t.Condition, scope) {
				continue
			}
			to := f.ActionIndex(t.ToActionID)
			if to < 0 {
				s.log.Warn("dropping event for unresolvable transition target",
					slog.String("from", f.ActionID(i)),
					slog.String("to", t.ToActionID))
				continue
			}
			f.EmitPortEvent(i, t.FromPortID, to, t.ToPortID)
		}
	}
}

// consumeEvents applies the activation rules to every queued event. Joins
// count every arrival whatever their phase and fire once the threshold is
// met; all other targets activate from Idle or WaitingTrigger, soft-reset
// from Listening, and silently drop the event otherwise.
func (s *transitionSystem) consumeEvents(f *Frame) {
	for _, ev := range f.PendingEvents() {
		st := f.State(ev.ToAction)
		if st == nil {
			continue
		}

		if f.TypeID(ev.ToAction) == schema.TypeJoin {
			s.consumeJoinEvent(f, ev, st)
			continue
		}

		switch st.Phase {
		case schema.PhaseIdle:
			f.RecordActivation(ev.ToAction, ev.FromAction)
			if err := st.Activate(); err != nil {
				s.log.Warn("activation rejected",
					slog.String("action_id", f.ActionID(ev.ToAction)),
					slog.String("error", err.Error()))
			}
		case schema.PhaseListening:
			f.RecordActivation(ev.ToAction, ev.FromAction)
			if err := st.SoftReset(); err != nil {
				s.log.Warn("soft reset rejected",
					slog.String("action_id", f.ActionID(ev.ToAction)),
					slog.String("error", err.Error()))
			}
		default:
			s.log.Debug("dropping event for busy action",
				slog.String("action_id", f.ActionID(ev.ToAction)),
				slog.String("phase", string(st.Phase)))
		}
	}
}

// consumeJoinEvent counts the arrival unconditionally, then activates when
// the threshold is reached and the Join is not already running. Below the
// threshold an Idle Join parks in WaitingTrigger, the partial-activation
// phase. The count lives in CustomInt and survives activation, so arrivals
// landing while the Join is already running are still counted.
func (s *transitionSystem) consumeJoinEvent(f *Frame, ev PortEvent, st *ActionRuntimeState) {
	st.CustomInt++

	required := f.IntProperty(ev.ToAction, schema.PropJoinCount, 1)
	if st.CustomInt < required {
		if st.Phase == schema.PhaseIdle {
			_ = st.Wait()
		}
		return
	}
	if st.Phase != schema.PhaseIdle && st.Phase != schema.PhaseWaitingTrigger {
		return
	}

	f.RecordActivation(ev.ToAction, ev.FromAction)
	if err := st.Activate(); err != nil {
		s.log.Warn("join activation rejected",
			slog.String("action_id", f.ActionID(ev.ToAction)),
			slog.String("error", err.Error()))
	}
}

// endSystem finishes every running End action. It runs after the router, so
// an action completing in the business group reaches its End in the same
// Tick: complete, route, End finishes, and the frame reports quiescence.
type endSystem struct {
	Base
}

func newEndSystem() *endSystem {
	return &endSystem{Base: NewBase(SystemEnd, GroupPostProcess, SystemTransitions)}
}

func (s *endSystem) Update(f *Frame) error {
	for _, i := range f.ActionIndices(schema.TypeEnd) {
		st := f.State(i)
		if st.Phase == schema.PhaseRunning {
			_ = st.MarkCompleted()
		}
	}
	return nil
}
