// Package director drives blueprint sessions on wall-clock time: a YAML
// manifest names the documents, their Tick cadence and an optional cron
// schedule, and the director runs each session on its own Runner against a
// shared global board. The engine itself stays wall-clock free; all real
// time lives here.
package director

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// Manifest defaults.
const (
	DefaultMaxConcurrent = 4
	DefaultTickInterval  = 50 * time.Millisecond
)

// Duration wraps time.Duration with YAML decoding from strings like "50ms".
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Manifest is the director's configuration document.
type Manifest struct {
	// MaxConcurrent bounds how many sessions run at once.
	MaxConcurrent int `yaml:"max_concurrent"`

	// Globals seed the shared board before any session starts. Documents
	// seed their own globals with set-if-absent, so manifest values win.
	Globals []GlobalSeed `yaml:"globals"`

	// Blueprints are the units of scheduling.
	Blueprints []BlueprintEntry `yaml:"blueprints"`
}

// GlobalSeed is one pre-seeded slot on the shared global board. The index is
// authoritative; the name is documentation for the manifest reader.
type GlobalSeed struct {
	Index int    `yaml:"index"`
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// BlueprintEntry describes one schedulable blueprint.
type BlueprintEntry struct {
	// Name identifies the entry in logs and deduplication.
	Name string `yaml:"name"`

	// Path is the blueprint JSON document, relative to the manifest's base
	// directory unless absolute.
	Path string `yaml:"path"`

	// Schedule is a standard five-field cron expression. Empty means run
	// once when the director starts.
	Schedule string `yaml:"schedule"`

	// TickInterval is the session's Tick cadence.
	TickInterval Duration `yaml:"tick_interval"`

	// MaxTicks caps one session. Zero means the engine default.
	MaxTicks int `yaml:"max_ticks"`

	// Populated by Validate for scheduled entries.
	cronSchedule cron.Schedule
}

// ParseManifest decodes a YAML manifest without validating it.
func ParseManifest(raw []byte) (*Manifest, error) {
	if len(raw) == 0 {
		return nil, schema.NewError(schema.ErrCodeLoad, "empty manifest")
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, schema.NewError(schema.ErrCodeLoad, "manifest is not valid YAML").WithCause(err)
	}
	return &m, nil
}

// LoadManifest reads, parses and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "reading manifest %s", path).WithCause(err)
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate applies defaults, checks entry identity and parses schedules and
// global seeds. Safe to call more than once.
func (m *Manifest) Validate() error {
	if m.MaxConcurrent <= 0 {
		m.MaxConcurrent = DefaultMaxConcurrent
	}
	if len(m.Blueprints) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "manifest has no blueprints")
	}

	for i := range m.Globals {
		g := &m.Globals[i]
		if g.Index < 0 {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"global seed %q has a negative index", g.Name)
		}
		if _, err := blackboard.ParseValue(g.Type, g.Value); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"global seed %q does not parse as %s", g.Name, g.Type).WithCause(err)
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	seen := make(map[string]bool, len(m.Blueprints))
	for i := range m.Blueprints {
		e := &m.Blueprints[i]
		if e.Name == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "blueprint entry %d has no name", i)
		}
		if seen[e.Name] {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate blueprint entry %q", e.Name)
		}
		seen[e.Name] = true
		if e.Path == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "blueprint entry %q has no path", e.Name)
		}
		if e.TickInterval <= 0 {
			e.TickInterval = Duration(DefaultTickInterval)
		}
		if e.MaxTicks <= 0 {
			e.MaxTicks = engine.DefaultMaxTicks
		}
		if e.Schedule != "" {
			sched, err := parser.Parse(e.Schedule)
			if err != nil {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"blueprint entry %q has an invalid schedule %q", e.Name, e.Schedule).WithCause(err)
			}
			e.cronSchedule = sched
		}
	}
	return nil
}

// SeedGlobals writes the manifest's global seeds onto a board. Validate must
// have accepted the manifest first.
func (m *Manifest) SeedGlobals(board *blackboard.Board) {
	for _, g := range m.Globals {
		v, err := blackboard.ParseValue(g.Type, g.Value)
		if err != nil {
			continue
		}
		board.Set(g.Index, v)
	}
}
