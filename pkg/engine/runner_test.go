package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/schema"
)

// --- inline business systems ---

// completer finishes every Running action of one TypeId on sight.
type completer struct {
	Base
	typeID string
}

func newCompleter(name, typeID string) *completer {
	return &completer{Base: NewBase(name, GroupBusiness), typeID: typeID}
}

func (s *completer) Update(f *Frame) error {
	for _, i := range f.ActionIndices(s.typeID) {
		if f.State(i).Phase == schema.PhaseRunning {
			_ = f.State(i).MarkCompleted()
		}
	}
	return nil
}

// idCompleter finishes only the named actions; the rest of its type stall.
type idCompleter struct {
	Base
	ids map[string]bool
}

func newIDCompleter(name string, ids ...string) *idCompleter {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return &idCompleter{Base: NewBase(name, GroupBusiness), ids: set}
}

func (s *idCompleter) Update(f *Frame) error {
	for id := range s.ids {
		i := f.ActionIndex(id)
		if i >= 0 && f.State(i).Phase == schema.PhaseRunning {
			_ = f.State(i).MarkCompleted()
		}
	}
	return nil
}

// tickDelay holds a Running action for its "ticks" property before finishing.
type tickDelay struct {
	Base
}

func newTickDelay() *tickDelay {
	return &tickDelay{Base: NewBase("test-delay", GroupBusiness)}
}

func (s *tickDelay) Update(f *Frame) error {
	for _, i := range f.ActionIndices("Delay") {
		st := f.State(i)
		if st.Phase != schema.PhaseRunning {
			continue
		}
		if st.IsFirstEntry {
			st.CustomInt = f.IntProperty(i, "ticks", 1)
			st.IsFirstEntry = false
		}
		if st.TicksInPhase >= st.CustomInt {
			_ = st.MarkCompleted()
		}
	}
	return nil
}

// failing always errors; used to prove a bad System cannot stall the Tick.
type failing struct {
	Base
}

func (s *failing) Update(_ *Frame) error { return errors.New("boom") }

// --- documents ---

const startEndDoc = `{
	"BlueprintId": "bp-linear",
	"Actions": [
		{"Id": "start", "TypeId": "Start"},
		{"Id": "end", "TypeId": "End"}
	],
	"Transitions": [
		{"FromActionId": "start", "ToActionId": "end"}
	]
}`

const delayDoc = `{
	"BlueprintId": "bp-delay",
	"Actions": [
		{"Id": "start", "TypeId": "Start"},
		{"Id": "wait", "TypeId": "Delay", "Properties": [{"Key": "ticks", "Value": "3"}]},
		{"Id": "end", "TypeId": "End"}
	],
	"Transitions": [
		{"FromActionId": "start", "ToActionId": "wait"},
		{"FromActionId": "wait", "ToActionId": "end"}
	]
}`

const joinBranchDoc = `{
	"BlueprintId": "bp-branches",
	"Actions": [
		{"Id": "start", "TypeId": "Start"},
		{"Id": "branch-a", "TypeId": "Task"},
		{"Id": "branch-b", "TypeId": "Task"},
		{"Id": "merge", "TypeId": "Join", "Properties": [{"Key": "inEdgeCount", "Value": "2"}]},
		{"Id": "end", "TypeId": "End"}
	],
	"Transitions": [
		{"FromActionId": "start", "ToActionId": "branch-a"},
		{"FromActionId": "start", "ToActionId": "branch-b"},
		{"FromActionId": "branch-a", "ToActionId": "merge"},
		{"FromActionId": "branch-b", "ToActionId": "merge"},
		{"FromActionId": "merge", "ToActionId": "end"}
	]
}`

func newTestRunner(t *testing.T, systems ...System) *Runner {
	t.Helper()
	r, err := NewRunner()
	require.NoError(t, err)
	for _, s := range systems {
		require.NoError(t, r.RegisterSystem(s))
	}
	return r
}

// --- construction and registration ---

func TestNewRunner_Defaults(t *testing.T) {
	r, err := NewRunner()
	require.NoError(t, err)

	assert.NotEmpty(t, r.SessionID())
	assert.Nil(t, r.Frame())
	assert.False(t, r.IsCompleted())
	assert.Zero(t, r.TickCount())
}

func TestRegisterSystem_Rejections(t *testing.T) {
	r := newTestRunner(t)

	cases := []struct {
		name string
		sys  System
	}{
		{"nil system", nil},
		{"empty name", stub("", GroupBusiness)},
		{"postprocess group", stub("sneaky", GroupPostProcess)},
		{"reserved phase clock", stub(SystemPhaseClock, GroupFramework)},
		{"reserved router", stub(SystemTransitions, GroupBusiness)},
		{"reserved end", stub(SystemEnd, GroupBusiness)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.RegisterSystem(tc.sys)
			require.Error(t, err)
			var bpErr *schema.BlueprintError
			require.ErrorAs(t, err, &bpErr)
			assert.Equal(t, schema.ErrCodeSchedule, bpErr.Code)
		})
	}
}

func TestRegisterSystem_Duplicate(t *testing.T) {
	r := newTestRunner(t, newCompleter("worker", "Task"))

	err := r.RegisterSystem(newCompleter("worker", "Other"))
	require.Error(t, err)
}

// --- load ---

func TestLoad_RejectsInvalidJSON(t *testing.T) {
	r := newTestRunner(t)
	err := r.Load([]byte("{broken"))
	require.Error(t, err)

	var bpErr *schema.BlueprintError
	require.ErrorAs(t, err, &bpErr)
	assert.Equal(t, schema.ErrCodeValidation, bpErr.Code)
	assert.Nil(t, r.Frame())
}

func TestLoad_RejectsSchemaViolation(t *testing.T) {
	r := newTestRunner(t)
	err := r.Load([]byte(`{"Actions": []}`))
	require.Error(t, err)

	var bpErr *schema.BlueprintError
	require.ErrorAs(t, err, &bpErr)
	assert.Equal(t, schema.ErrCodeValidation, bpErr.Code)
}

func TestLoad_ActivatesStartActions(t *testing.T) {
	r := newTestRunner(t, newCompleter("starts", "Start"))
	require.NoError(t, r.Load([]byte(startEndDoc)))

	f := r.Frame()
	require.NotNil(t, f)
	assert.Equal(t, schema.PhaseRunning, f.State(f.ActionIndex("start")).Phase)
	assert.Equal(t, schema.PhaseIdle, f.State(f.ActionIndex("end")).Phase)
	assert.Zero(t, r.TickCount())
	assert.False(t, r.IsCompleted())
}

func TestLoad_KeepsPreviousFrameOnFailure(t *testing.T) {
	r := newTestRunner(t, newCompleter("starts", "Start"))
	require.NoError(t, r.Load([]byte(startEndDoc)))
	loaded := r.Frame()

	require.Error(t, r.Load([]byte("not even json")))
	assert.Same(t, loaded, r.Frame())
}

// --- ticking ---

func TestTick_WithoutLoad(t *testing.T) {
	r := newTestRunner(t)
	err := r.Tick()
	require.Error(t, err)

	var bpErr *schema.BlueprintError
	require.ErrorAs(t, err, &bpErr)
	assert.Equal(t, schema.ErrCodeInvalidState, bpErr.Code)
}

func TestRun_StartToEndInOneTick(t *testing.T) {
	r := newTestRunner(t, newCompleter("starts", "Start"))
	require.NoError(t, r.Load([]byte(startEndDoc)))

	require.NoError(t, r.RunUntilComplete(context.Background(), 0))

	assert.True(t, r.IsCompleted())
	assert.Equal(t, uint64(1), r.TickCount())

	f := r.Frame()
	assert.Equal(t, schema.PhaseCompleted, f.State(f.ActionIndex("start")).Phase)
	assert.Equal(t, schema.PhaseCompleted, f.State(f.ActionIndex("end")).Phase)
}

func TestRun_DelayTakesExactlyFourTicks(t *testing.T) {
	r := newTestRunner(t, newCompleter("starts", "Start"), newTickDelay())
	require.NoError(t, r.Load([]byte(delayDoc)))

	require.NoError(t, r.RunUntilComplete(context.Background(), 0))

	assert.True(t, r.IsCompleted())
	assert.Equal(t, uint64(4), r.TickCount())
}

func TestRun_JoinNeedsBothBranches(t *testing.T) {
	// Only branch-a completes: the join parks in WaitingTrigger and the run
	// hits the tick cap.
	r := newTestRunner(t,
		newCompleter("starts", "Start"),
		newCompleter("joins", "Join"),
		newIDCompleter("tasks", "branch-a"),
	)
	require.NoError(t, r.Load([]byte(joinBranchDoc)))

	err := r.RunUntilComplete(context.Background(), 10)
	require.Error(t, err)

	var bpErr *schema.BlueprintError
	require.ErrorAs(t, err, &bpErr)
	assert.Equal(t, schema.ErrCodeExecution, bpErr.Code)
	assert.False(t, r.IsCompleted())

	f := r.Frame()
	merge := f.State(f.ActionIndex("merge"))
	assert.Equal(t, schema.PhaseWaitingTrigger, merge.Phase)
	assert.Equal(t, 1, merge.CustomInt)
}

func TestRun_JoinCompletesWithBothBranches(t *testing.T) {
	r := newTestRunner(t,
		newCompleter("starts", "Start"),
		newCompleter("joins", "Join"),
		newCompleter("tasks", "Task"),
	)
	require.NoError(t, r.Load([]byte(joinBranchDoc)))

	require.NoError(t, r.RunUntilComplete(context.Background(), 10))

	assert.True(t, r.IsCompleted())
	f := r.Frame()
	assert.Equal(t, schema.PhaseCompleted, f.State(f.ActionIndex("merge")).Phase)
	assert.Equal(t, schema.PhaseCompleted, f.State(f.ActionIndex("end")).Phase)
	assert.Equal(t, 2, f.State(f.ActionIndex("merge")).CustomInt)
}

func TestRun_TickCapWhenGraphStalls(t *testing.T) {
	// Nothing completes "Task", so branch actions run forever.
	r := newTestRunner(t, newCompleter("starts", "Start"))
	require.NoError(t, r.Load([]byte(joinBranchDoc)))

	err := r.RunUntilComplete(context.Background(), 5)
	require.Error(t, err)
	assert.Equal(t, uint64(5), r.TickCount())
}

func TestRun_ContextCancellation(t *testing.T) {
	r := newTestRunner(t, newCompleter("starts", "Start"))
	require.NoError(t, r.Load([]byte(joinBranchDoc)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RunUntilComplete(ctx, 0)
	require.Error(t, err)

	var bpErr *schema.BlueprintError
	require.ErrorAs(t, err, &bpErr)
	assert.Equal(t, schema.ErrCodeExecution, bpErr.Code)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTick_SystemErrorDoesNotAbort(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRunner(WithLogger(captureLogger(&buf)))
	require.NoError(t, err)
	require.NoError(t, r.RegisterSystem(&failing{Base: NewBase("bad", GroupBusiness)}))
	require.NoError(t, r.RegisterSystem(newCompleter("starts", "Start")))
	require.NoError(t, r.Load([]byte(startEndDoc)))

	require.NoError(t, r.RunUntilComplete(context.Background(), 0))

	assert.True(t, r.IsCompleted(), "one broken system must not stall the graph")
	assert.Contains(t, buf.String(), "system update failed")
	assert.Contains(t, buf.String(), "bad")
}

// --- options ---

func TestWithGlobals_SharedBoard(t *testing.T) {
	globals := blackboard.NewBoard()
	globals.SetString(0, "carried")

	r, err := NewRunner(WithGlobals(globals))
	require.NoError(t, err)
	require.NoError(t, r.RegisterSystem(newCompleter("starts", "Start")))
	require.NoError(t, r.Load([]byte(startEndDoc)))

	assert.Same(t, globals, r.Frame().Globals())
	assert.Equal(t, "carried", r.Frame().Globals().Str(0))
}

// --- reset and shutdown ---

func TestReset_KeepsRegistrations(t *testing.T) {
	r := newTestRunner(t, newCompleter("starts", "Start"))
	require.NoError(t, r.Load([]byte(startEndDoc)))
	require.NoError(t, r.RunUntilComplete(context.Background(), 0))

	r.Reset()
	assert.Nil(t, r.Frame())
	assert.Zero(t, r.TickCount())
	assert.False(t, r.IsCompleted())

	// The registration survived: the same name collides, and a reload runs.
	require.Error(t, r.RegisterSystem(newCompleter("starts", "Start")))
	require.NoError(t, r.Load([]byte(startEndDoc)))
	require.NoError(t, r.RunUntilComplete(context.Background(), 0))
	assert.True(t, r.IsCompleted())
}

func TestShutdown_DropsRegistrations(t *testing.T) {
	r := newTestRunner(t, newCompleter("starts", "Start"))
	require.NoError(t, r.Load([]byte(startEndDoc)))

	r.Shutdown()
	assert.Nil(t, r.Frame())

	// The name is free again.
	require.NoError(t, r.RegisterSystem(newCompleter("starts", "Start")))
}
