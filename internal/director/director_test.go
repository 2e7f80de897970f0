package director

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/systems"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// linearBlueprintJSON completes in two ticks: start, then the log action,
// with End closing out the same tick the router reaches it.
const linearBlueprintJSON = `{
  "BlueprintId": "bp-linear",
  "Actions": [
    {"Id": "start", "TypeId": "Start"},
    {"Id": "greet", "TypeId": "Log", "Properties": [{"Key": "message", "Value": "hi"}]},
    {"Id": "finish", "TypeId": "End"}
  ],
  "Transitions": [
    {"FromActionId": "start", "ToActionId": "greet"},
    {"FromActionId": "greet", "ToActionId": "finish"}
  ],
  "Variables": [
    {"Index": 0, "Name": "score", "Type": "Int", "Scope": "Global", "InitialValue": "1"}
  ]
}`

// setGlobalBlueprintJSON writes 42 into the shared global board at slot 0.
const setGlobalBlueprintJSON = `{
  "BlueprintId": "bp-set-global",
  "Actions": [
    {"Id": "start", "TypeId": "Start"},
    {"Id": "set", "TypeId": "SetVariable", "Properties": [
      {"Key": "variable", "Value": "score"},
      {"Key": "scope", "Value": "Global"},
      {"Key": "value", "Value": "42"}
    ]},
    {"Id": "finish", "TypeId": "End"}
  ],
  "Transitions": [
    {"FromActionId": "start", "ToActionId": "set"},
    {"FromActionId": "set", "ToActionId": "finish"}
  ],
  "Variables": [
    {"Index": 0, "Name": "score", "Type": "Int", "Scope": "Global", "InitialValue": "0"}
  ]
}`

// stuckBlueprintJSON activates an action no system handles, so it never
// completes.
const stuckBlueprintJSON = `{
  "BlueprintId": "bp-stuck",
  "Actions": [
    {"Id": "start", "TypeId": "Start"},
    {"Id": "mystery", "TypeId": "Teleporter"}
  ],
  "Transitions": [
    {"FromActionId": "start", "ToActionId": "mystery"}
  ]
}`

// newTestManifest writes the given blueprints into a temp dir and returns a
// validated manifest with one run-once entry per document.
func newTestManifest(t *testing.T, blueprints map[string]string) (*Manifest, string) {
	t.Helper()
	dir := t.TempDir()
	m := &Manifest{}
	for name, doc := range blueprints {
		file := name + ".json"
		writeFile(t, filepath.Join(dir, file), doc)
		m.Blueprints = append(m.Blueprints, BlueprintEntry{
			Name:         name,
			Path:         file,
			TickInterval: Duration(time.Millisecond),
			MaxTicks:     100,
		})
	}
	require.NoError(t, m.Validate())
	return m, dir
}

func TestDirectorRunsOnceEntries(t *testing.T) {
	m, dir := newTestManifest(t, map[string]string{"linear": linearBlueprintJSON})

	d, err := NewDirector(m, WithLogger(discardLogger()), WithBaseDir(dir))
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	metrics := d.Metrics()
	assert.Equal(t, int64(1), metrics.Completed)
	assert.Equal(t, int64(0), metrics.Failed)
}

func TestDirectorSessionWritesSharedGlobals(t *testing.T) {
	m, dir := newTestManifest(t, map[string]string{"setter": setGlobalBlueprintJSON})
	m.Globals = []GlobalSeed{{Index: 1, Name: "env", Type: "String", Value: "test"}}
	require.NoError(t, m.Validate())

	d, err := NewDirector(m, WithLogger(discardLogger()), WithBaseDir(dir))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	// The manifest seed and the session's write both land on the board.
	env, ok := d.Globals().Get(1)
	require.True(t, ok)
	s, _ := env.Str()
	assert.Equal(t, "test", s)

	score, ok := d.Globals().Get(0)
	require.True(t, ok)
	n, _ := score.Int()
	assert.Equal(t, int64(42), n)
}

func TestDirectorManifestSeedWinsOverDocument(t *testing.T) {
	m, dir := newTestManifest(t, map[string]string{"linear": linearBlueprintJSON})
	m.Globals = []GlobalSeed{{Index: 0, Name: "score", Type: "Int", Value: "7"}}
	require.NoError(t, m.Validate())

	board := blackboard.NewBoard()
	d, err := NewDirector(m, WithLogger(discardLogger()), WithGlobals(board), WithBaseDir(dir))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	// Documents seed globals with set-if-absent, so the manifest value holds.
	v, ok := board.Get(0)
	require.True(t, ok)
	n, _ := v.Int()
	assert.Equal(t, int64(7), n)
}

func TestDirectorCountsMissingBlueprint(t *testing.T) {
	m := &Manifest{Blueprints: []BlueprintEntry{{
		Name:         "ghost",
		Path:         "ghost.json",
		TickInterval: Duration(time.Millisecond),
	}}}
	require.NoError(t, m.Validate())

	d, err := NewDirector(m, WithLogger(discardLogger()), WithBaseDir(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	metrics := d.Metrics()
	assert.Equal(t, int64(1), metrics.Failed)
	assert.Equal(t, int64(0), metrics.Completed)
}

func TestDirectorStallsOnTickCap(t *testing.T) {
	m, dir := newTestManifest(t, map[string]string{"stuck": stuckBlueprintJSON})
	m.Blueprints[0].MaxTicks = 5

	d, err := NewDirector(m, WithLogger(discardLogger()), WithBaseDir(dir))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, int64(1), d.Metrics().Failed)
}

func TestDirectorRunsMultipleEntries(t *testing.T) {
	m, dir := newTestManifest(t, map[string]string{
		"one": linearBlueprintJSON,
		"two": setGlobalBlueprintJSON,
	})

	d, err := NewDirector(m, WithLogger(discardLogger()), WithBaseDir(dir))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, int64(2), d.Metrics().Completed)
}

func TestDirectorWithSystemFactory(t *testing.T) {
	m, dir := newTestManifest(t, map[string]string{"linear": linearBlueprintJSON})

	var factoryCalls int
	factory := func(log *slog.Logger) []engine.System {
		factoryCalls++
		return []engine.System{systems.NewStartSystem(), systems.NewLogSystem(log)}
	}

	d, err := NewDirector(m,
		WithLogger(discardLogger()),
		WithBaseDir(dir),
		WithSystemFactory(factory))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	assert.Equal(t, 1, factoryCalls)
	assert.Equal(t, int64(1), d.Metrics().Completed)
}

func TestDirectorStartStop(t *testing.T) {
	m, dir := newTestManifest(t, map[string]string{"linear": linearBlueprintJSON})
	// A schedule that will not fire during the test keeps Run blocked on ctx.
	m.Blueprints[0].Schedule = "0 0 1 1 *"
	require.NoError(t, m.Validate())

	d, err := NewDirector(m, WithLogger(discardLogger()), WithBaseDir(dir))
	require.NoError(t, err)

	require.NoError(t, d.Start(context.Background()))
	assert.Error(t, d.Start(context.Background()))

	d.Stop()
	assert.Equal(t, int64(0), d.Metrics().Completed)

	// Stop again is a no-op.
	d.Stop()
}

func TestDirectorRejectsNilManifest(t *testing.T) {
	_, err := NewDirector(nil)
	assert.Error(t, err)
}

func TestDirectorRejectsInvalidManifest(t *testing.T) {
	_, err := NewDirector(&Manifest{})
	assert.Error(t, err)
}
