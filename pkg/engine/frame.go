package engine

import (
	"log/slog"

	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/codec"
	"github.com/emberline/blueprint/pkg/schema"
)

// PortEvent is an ephemeral control-flow activation record. It lives only
// within one Tick's queue; the Runner clears the queue at the end of every
// Tick and events never persist.
type PortEvent struct {
	FromAction int
	FromPort   string
	ToAction   int
	ToPort     string
}

// portKey addresses one port on one action.
type portKey struct {
	action int
	port   string
}

// portRef points a consumer port at its producer.
type portRef struct {
	action int
	port   string
}

// portValue is a published data-port value stamped with the Tick it was
// published in. Values from earlier Ticks are stale by definition.
type portValue struct {
	value string
	tick  uint64
}

// Frame is the single mutable container holding all static and dynamic state
// for one blueprint execution instance. Every System reads and writes
// exclusively through it. A Frame is owned by exactly one Runner and is only
// touched from the Tick goroutine; the global Board is the sole shared piece.
type Frame struct {
	blueprintID   string
	blueprintName string

	// Static, built once at load, read-only thereafter.
	actions      []schema.ActionEntry
	transitions  []schema.TransitionEntry
	idToIndex    map[string]int
	byType       map[string][]int
	outgoing     map[int][]int
	dataIn       map[portKey]portRef
	portDefaults map[portKey]string
	localVars    map[string]int
	globalVars   map[string]int

	// Dynamic.
	states    []ActionRuntimeState
	pending   []PortEvent
	published map[portKey]portValue
	tick      uint64

	locals  *blackboard.Board
	globals *blackboard.Board

	log *slog.Logger
}

// BlueprintID returns the loaded document's id.
func (f *Frame) BlueprintID() string { return f.blueprintID }

// BlueprintName returns the loaded document's display name.
func (f *Frame) BlueprintName() string { return f.blueprintName }

// Tick returns the current Tick number. Tick 0 is pre-execution; the Runner
// advances it before running the schedule.
func (f *Frame) Tick() uint64 { return f.tick }

// ActionCount returns the number of loaded actions.
func (f *Frame) ActionCount() int { return len(f.actions) }

// ActionIndex resolves an action id to its stable index, -1 when absent.
func (f *Frame) ActionIndex(id string) int {
	if i, ok := f.idToIndex[id]; ok {
		return i
	}
	return -1
}

// ActionID returns the id at index, "" when out of range.
func (f *Frame) ActionID(i int) string {
	if i < 0 || i >= len(f.actions) {
		return ""
	}
	return f.actions[i].ID
}

// TypeID returns the type at index, "" when out of range.
func (f *Frame) TypeID(i int) string {
	if i < 0 || i >= len(f.actions) {
		return ""
	}
	return f.actions[i].TypeID
}

// State returns the runtime state at index, nil when out of range. Systems
// mutate phases through the state's methods, never by direct assignment.
func (f *Frame) State(i int) *ActionRuntimeState {
	if i < 0 || i >= len(f.states) {
		return nil
	}
	return &f.states[i]
}

// Property returns the raw string value of an action property, "" when the
// index or key is unknown. It never panics.
func (f *Frame) Property(i int, key string) string {
	if i < 0 || i >= len(f.actions) {
		return ""
	}
	v, _ := f.actions[i].Property(key)
	return v
}

// IntProperty parses a property through the codec, returning fallback on
// absence or parse failure. Parsing never raises.
func (f *Frame) IntProperty(i int, key string, fallback int) int {
	if i < 0 || i >= len(f.actions) {
		return fallback
	}
	raw, ok := f.actions[i].Property(key)
	if !ok {
		return fallback
	}
	return int(codec.IntOr(raw, int64(fallback)))
}

// FloatProperty parses a property through the codec, returning fallback on
// absence or parse failure.
func (f *Frame) FloatProperty(i int, key string, fallback float64) float64 {
	if i < 0 || i >= len(f.actions) {
		return fallback
	}
	raw, ok := f.actions[i].Property(key)
	if !ok {
		return fallback
	}
	return codec.FloatOr(raw, fallback)
}

// BoolProperty parses a property through the codec, returning fallback on
// absence or parse failure.
func (f *Frame) BoolProperty(i int, key string, fallback bool) bool {
	if i < 0 || i >= len(f.actions) {
		return fallback
	}
	raw, ok := f.actions[i].Property(key)
	if !ok {
		return fallback
	}
	return codec.BoolOr(raw, fallback)
}

// SceneBindings returns the scene object names bound to an action. The
// returned slice is shared static data; callers must not mutate it.
func (f *Frame) SceneBindings(i int) []string {
	if i < 0 || i >= len(f.actions) {
		return nil
	}
	return f.actions[i].SceneBindings
}

// ActionIndices returns the indices of every action with the given type, in
// load order. Empty when the type is absent.
func (f *Frame) ActionIndices(typeID string) []int {
	return f.byType[typeID]
}

// OutgoingTransitions returns the transition indices leaving an action, in
// document order. Empty when there are none.
func (f *Frame) OutgoingTransitions(i int) []int {
	return f.outgoing[i]
}

// Transition returns the static transition record at index, nil when out of
// range.
func (f *Frame) Transition(i int) *schema.TransitionEntry {
	if i < 0 || i >= len(f.transitions) {
		return nil
	}
	return &f.transitions[i]
}

// EmitPortEvent appends a control-flow activation to the pending queue. The
// TransitionSystem consumes the queue later in the same Tick.
func (f *Frame) EmitPortEvent(from int, fromPort string, to int, toPort string) {
	f.pending = append(f.pending, PortEvent{
		FromAction: from,
		FromPort:   fromPort,
		ToAction:   to,
		ToPort:     toPort,
	})
}

// PendingEvents returns the live event queue for this Tick.
func (f *Frame) PendingEvents() []PortEvent {
	return f.pending
}

// ClearEvents empties the queue. The Runner calls this once per Tick after
// all Systems have run; events do not survive the Tick they were emitted in.
func (f *Frame) ClearEvents() {
	f.pending = f.pending[:0]
}

// SetDataPortValue publishes a producer's string-encoded output for the
// current Tick.
func (f *Frame) SetDataPortValue(i int, portID, value string) {
	f.published[portKey{i, portID}] = portValue{value: value, tick: f.tick}
}

// DataPortValue resolves a consumer port. Resolution order: a connected
// producer's value published this Tick; otherwise, for unconnected ports
// only, the declared default. A connected port whose producer has not
// published this Tick yields ("", false); connected-but-empty is distinct
// from unconnected, and the default is not consulted.
func (f *Frame) DataPortValue(to int, toPort string) (string, bool) {
	if ref, connected := f.dataIn[portKey{to, toPort}]; connected {
		pv, ok := f.published[portKey{ref.action, ref.port}]
		if ok && pv.tick == f.tick {
			return pv.value, true
		}
		return "", false
	}
	if def, ok := f.portDefaults[portKey{to, toPort}]; ok {
		return def, true
	}
	return "", false
}

// IntPort resolves a consumer port and parses it, returning fallback when
// the port resolves to nothing or fails to parse.
func (f *Frame) IntPort(to int, toPort string, fallback int) int {
	raw, ok := f.DataPortValue(to, toPort)
	if !ok {
		return fallback
	}
	return int(codec.IntOr(raw, int64(fallback)))
}

// FloatPort resolves a consumer port and parses it, returning fallback when
// the port resolves to nothing or fails to parse.
func (f *Frame) FloatPort(to int, toPort string, fallback float64) float64 {
	raw, ok := f.DataPortValue(to, toPort)
	if !ok {
		return fallback
	}
	return codec.FloatOr(raw, fallback)
}

// BoolPort resolves a consumer port and parses it, returning fallback when
// the port resolves to nothing or fails to parse.
func (f *Frame) BoolPort(to int, toPort string, fallback bool) bool {
	raw, ok := f.DataPortValue(to, toPort)
	if !ok {
		return fallback
	}
	return codec.BoolOr(raw, fallback)
}

// HasActiveActions reports whether any state is Running or WaitingTrigger.
func (f *Frame) HasActiveActions() bool {
	for i := range f.states {
		if f.states[i].Active() {
			return true
		}
	}
	return false
}

// Locals returns the Frame-owned blackboard.
func (f *Frame) Locals() *blackboard.Board { return f.locals }

// Globals returns the shared session blackboard.
func (f *Frame) Globals() *blackboard.Board { return f.globals }

// RecordActivation stores which action caused target's current activation in
// the local Board's internal namespace. Refreshed on every re-entry so
// filters always see the current activator.
func (f *Frame) RecordActivation(target, source int) {
	targetID := f.ActionID(target)
	sourceID := f.ActionID(source)
	if targetID == "" || sourceID == "" {
		return
	}
	f.locals.SetMeta(blackboard.MetaActivatedBy+targetID, sourceID)
}

// ActivatedBy returns the id of the action that last activated target.
func (f *Frame) ActivatedBy(target int) (string, bool) {
	targetID := f.ActionID(target)
	if targetID == "" {
		return "", false
	}
	return f.locals.Meta(blackboard.MetaActivatedBy + targetID)
}

// LocalVariableIndex resolves a declared Local variable name.
func (f *Frame) LocalVariableIndex(name string) (int, bool) {
	i, ok := f.localVars[name]
	return i, ok
}

// GlobalVariableIndex resolves a declared Global variable name.
func (f *Frame) GlobalVariableIndex(name string) (int, bool) {
	i, ok := f.globalVars[name]
	return i, ok
}

// VariableIndex resolves a name to a Board index: declared Local first, then
// declared Global, then the synthesized output range. Node outputs therefore
// never collide with declared variables, whatever their names.
func (f *Frame) VariableIndex(name string) int {
	if i, ok := f.localVars[name]; ok {
		return i
	}
	if i, ok := f.globalVars[name]; ok {
		return i
	}
	return blackboard.OutputIndex(name)
}

// ConditionScope builds the expression-evaluation scope for a transition
// leaving the given source action: declared variables by name under "vars"
// and "globals", the source action's runtime state under "source", and the
// current Tick under "tick".
func (f *Frame) ConditionScope(source int) map[string]any {
	vars := make(map[string]any, len(f.localVars))
	for name, idx := range f.localVars {
		if v, ok := f.locals.Get(idx); ok {
			vars[name] = v.Any()
		}
	}
	globals := make(map[string]any, len(f.globalVars))
	for name, idx := range f.globalVars {
		if v, ok := f.globals.Get(idx); ok {
			globals[name] = v.Any()
		}
	}

	scope := map[string]any{
		"vars":    vars,
		"globals": globals,
		"tick":    int64(f.tick),
	}

	if st := f.State(source); st != nil {
		scope["source"] = map[string]any{
			"id":           f.ActionID(source),
			"typeId":       f.TypeID(source),
			"phase":        string(st.Phase),
			"ticksInPhase": int64(st.TicksInPhase),
			"customInt":    int64(st.CustomInt),
			"customFloat":  st.CustomFloat,
		}
	} else {
		scope["source"] = map[string]any{}
	}

	return scope
}

// ForceComplete applies the fail-open policy for per-node configuration
// errors: log a warning and finish the node rather than stalling the graph.
func (f *Frame) ForceComplete(i int, reason string) {
	st := f.State(i)
	if st == nil {
		return
	}
	f.log.Warn("force-completing action",
		slog.String("action_id", f.ActionID(i)),
		slog.String("type_id", f.TypeID(i)),
		slog.String("reason", reason))
	if err := st.MarkCompleted(); err != nil {
		f.log.Warn("force-complete skipped",
			slog.String("action_id", f.ActionID(i)),
			slog.String("phase", string(st.Phase)))
	}
}

// advanceTick moves the Frame into the next Tick.
func (f *Frame) advanceTick() {
	f.tick++
}
