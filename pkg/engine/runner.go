package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/emberline/blueprint/internal/expressions"
	"github.com/emberline/blueprint/internal/validation"
	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/schema"
)

// DefaultMaxTicks caps RunUntilComplete when the caller passes no limit. A
// blueprint that has not gone quiescent after this many Ticks is treated as
// stuck rather than slow.
const DefaultMaxTicks = 10000

const tracerName = "blueprint/engine"

// Option configures a Runner at construction.
type Option func(*Runner)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithGlobals supplies a shared global Board. The caller owns its lifecycle;
// the Runner never clears it, and several Runners may share one.
func WithGlobals(globals *blackboard.Board) Option {
	return func(r *Runner) { r.globals = globals }
}

// WithTracer overrides the tracer used for run spans. Defaults to the global
// otel provider, which is a no-op unless the host installed one.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// Runner owns one blueprint execution: it validates and loads documents,
// holds the registered System set, and drives the Tick loop. A Runner is not
// safe for concurrent use; drive it from one goroutine and share state across
// runners only through the global Board.
type Runner struct {
	log       *slog.Logger
	globals   *blackboard.Board
	tracer    trace.Tracer
	sessionID string

	validator  *validation.JSONSchemaValidator
	conditions *expressions.ConditionEvaluator

	pinned     []System
	registered []System
	ordered    []System

	frame *Frame
}

// NewRunner builds a Runner with the engine-pinned systems installed.
func NewRunner(opts ...Option) (*Runner, error) {
	r := &Runner{
		log:       slog.Default(),
		tracer:    otel.Tracer(tracerName),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.globals == nil {
		r.globals = blackboard.NewBoard()
	}

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	r.validator = validator

	conditions, err := expressions.NewConditionEvaluator(r.log)
	if err != nil {
		return nil, err
	}
	r.conditions = conditions

	r.pinned = []System{
		newPhaseClockSystem(),
		newTransitionSystem(conditions, r.log),
		newEndSystem(),
	}

	return r, nil
}

// SessionID returns the uuid assigned to this Runner at construction. It
// appears on every run span and correlated log line.
func (r *Runner) SessionID() string { return r.sessionID }

// RegisterSystem adds a System to the schedule, effective at the next Load.
// The postprocess group is reserved for the engine's own router and End
// handling, so external Systems must declare Framework or Business.
func (r *Runner) RegisterSystem(s System) error {
	if s == nil {
		return schema.NewError(schema.ErrCodeSchedule, "system is nil")
	}
	if s.Name() == "" {
		return schema.NewError(schema.ErrCodeSchedule, "system has empty name")
	}
	if s.Group() == GroupPostProcess {
		return schema.NewErrorf(schema.ErrCodeSchedule, "system %s: the postprocess group is reserved", s.Name())
	}
	for _, existing := range r.pinned {
		if existing.Name() == s.Name() {
			return schema.NewErrorf(schema.ErrCodeSchedule, "system name %s is reserved", s.Name())
		}
	}
	for _, existing := range r.registered {
		if existing.Name() == s.Name() {
			return schema.NewErrorf(schema.ErrCodeSchedule, "duplicate system name: %s", s.Name())
		}
	}
	r.registered = append(r.registered, s)
	return nil
}

// Load validates a raw blueprint export, builds its Frame, computes the
// System schedule, and activates every Start action. On failure the Runner
// keeps whatever was loaded before. Only structural (schema) validation runs
// here; semantic lint is the validate command's job, because the runtime is
// deliberately permissive about dangling references.
func (r *Runner) Load(raw []byte) error {
	if err := r.validator.ValidateRaw(raw); err != nil {
		return err
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return err
	}
	frame, err := NewFrame(doc, r.globals, r.log)
	if err != nil {
		return err
	}

	systems := make([]System, 0, len(r.pinned)+len(r.registered))
	systems = append(systems, r.pinned...)
	systems = append(systems, r.registered...)
	ordered, err := orderSystems(systems)
	if err != nil {
		return err
	}

	starts := frame.ActionIndices(schema.TypeStart)
	for _, i := range starts {
		if err := frame.State(i).Activate(); err != nil {
			return schema.NewErrorf(schema.ErrCodeLoad, "cannot activate start action %s", frame.ActionID(i)).WithCause(err)
		}
	}

	r.frame = frame
	r.ordered = ordered

	r.log.Info("blueprint loaded",
		slog.String("session_id", r.sessionID),
		slog.String("blueprint_id", frame.BlueprintID()),
		slog.Int("actions", frame.ActionCount()),
		slog.Int("start_actions", len(starts)),
		slog.Int("systems", len(ordered)))
	return nil
}

// Tick advances the simulation by one step: the Tick counter moves first,
// then every System updates in schedule order, then the event queue is
// cleared. A System error is logged and the Tick continues; stalling the
// whole graph over one bad node is the one thing this engine must not do.
func (r *Runner) Tick() error {
	if r.frame == nil {
		return schema.NewError(schema.ErrCodeInvalidState, "no blueprint loaded")
	}
	f := r.frame
	f.advanceTick()

	for _, sys := range r.ordered {
		if err := sys.Update(f); err != nil {
			r.log.Warn("system update failed",
				slog.String("system", sys.Name()),
				slog.Uint64("tick", f.Tick()),
				slog.String("error", err.Error()))
		}
	}

	f.ClearEvents()
	return nil
}

// RunUntilComplete ticks until the graph goes quiescent, the context is
// cancelled, or maxTicks is reached (DefaultMaxTicks when maxTicks <= 0).
// Cancellation is coarse: the context is checked between Ticks only, so a
// Tick in progress always finishes.
func (r *Runner) RunUntilComplete(ctx context.Context, maxTicks int) error {
	if r.frame == nil {
		return schema.NewError(schema.ErrCodeInvalidState, "no blueprint loaded")
	}
	if maxTicks <= 0 {
		maxTicks = DefaultMaxTicks
	}

	ctx, span := r.tracer.Start(ctx, "runner.run", trace.WithAttributes(
		attribute.String("session.id", r.sessionID),
		attribute.String("blueprint.id", r.frame.BlueprintID()),
		attribute.Int("max_ticks", maxTicks)))
	defer span.End()

	for n := 0; n < maxTicks; n++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return schema.NewError(schema.ErrCodeExecution, "run cancelled").WithCause(err)
		}
		if r.IsCompleted() {
			break
		}
		if err := r.Tick(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tick failed")
			return err
		}
	}

	span.SetAttributes(attribute.Int64("ticks", int64(r.TickCount())))
	if !r.IsCompleted() {
		span.SetStatus(codes.Error, "tick limit reached")
		return schema.NewErrorf(schema.ErrCodeExecution, "blueprint did not complete within %d ticks", maxTicks).
			WithDetails(map[string]any{"blueprint_id": r.frame.BlueprintID(), "max_ticks": maxTicks})
	}
	span.SetStatus(codes.Ok, "completed")
	return nil
}

// IsCompleted reports whether a Frame is loaded and no action is Running or
// WaitingTrigger. Listening actions do not keep a blueprint alive; they wake
// only if something else emits toward them.
func (r *Runner) IsCompleted() bool {
	return r.frame != nil && !r.frame.HasActiveActions()
}

// TickCount returns the number of Ticks executed since Load, 0 when nothing
// is loaded.
func (r *Runner) TickCount() uint64 {
	if r.frame == nil {
		return 0
	}
	return r.frame.Tick()
}

// Frame exposes the live Frame for Systems under test and host inspection,
// nil before Load.
func (r *Runner) Frame() *Frame { return r.frame }

// Reset drops the Frame but keeps registered Systems and the global Board, so
// the same Runner can Load the next blueprint of a session.
func (r *Runner) Reset() {
	r.frame = nil
	r.ordered = nil
}

// Shutdown drops the Frame and all registrations. The Runner can be reused
// only by registering and loading again.
func (r *Runner) Shutdown() {
	r.frame = nil
	r.ordered = nil
	r.registered = nil
	r.log.Info("runner shut down", slog.String("session_id", r.sessionID))
}
