package director

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/emberline/blueprint/pkg/blackboard"
	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
	"github.com/emberline/blueprint/pkg/systems"
)

const tracerName = "blueprint/director"

// SystemFactory builds the business systems for one session. Each session
// gets fresh instances; systems carry per-run caches and must not be shared
// across concurrently ticking Runners.
type SystemFactory func(log *slog.Logger) []engine.System

// Option configures a Director.
type Option func(*Director)

// WithLogger sets the base logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Director) {
		if log != nil {
			d.log = log
		}
	}
}

// WithGlobals substitutes the shared global board. Manifest seeds are still
// applied on top.
func WithGlobals(board *blackboard.Board) Option {
	return func(d *Director) {
		if board != nil {
			d.globals = board
		}
	}
}

// WithSystemFactory replaces the built-in system library.
func WithSystemFactory(factory SystemFactory) Option {
	return func(d *Director) {
		if factory != nil {
			d.factory = factory
		}
	}
}

// WithBaseDir sets the directory relative blueprint paths resolve against.
func WithBaseDir(dir string) Option {
	return func(d *Director) {
		if dir != "" {
			d.baseDir = dir
		}
	}
}

// Director runs manifest entries as engine sessions: once at startup for
// unscheduled entries, on cron fires for scheduled ones. Sessions share one
// global board and are bounded by the session pool.
type Director struct {
	manifest *Manifest
	log      *slog.Logger
	globals  *blackboard.Board
	factory  SystemFactory
	baseDir  string
	pool     *sessionPool
	tracer   oteltrace.Tracer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDirector validates the manifest, seeds the shared board and prepares
// the pool. Nothing runs until Run or Start.
func NewDirector(m *Manifest, opts ...Option) (*Director, error) {
	if m == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "manifest is nil")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	d := &Director{
		manifest: m,
		log:      slog.Default(),
		globals:  blackboard.NewBoard(),
		factory:  func(log *slog.Logger) []engine.System { return systems.Default(log) },
		baseDir:  ".",
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	m.SeedGlobals(d.globals)
	d.pool = newSessionPool(m.MaxConcurrent)
	return d, nil
}

// Metrics returns the session counters.
func (d *Director) Metrics() SessionMetrics {
	return d.pool.Metrics()
}

// Globals returns the shared board.
func (d *Director) Globals() *blackboard.Board {
	return d.globals
}

// Run launches every entry and blocks. With only run-once entries it returns
// after they finish; with scheduled entries it runs until ctx is done.
// Session failures are logged and counted, they never stop the director.
func (d *Director) Run(ctx context.Context) error {
	scheduled := 0
	var loops sync.WaitGroup
	for i := range d.manifest.Blueprints {
		e := &d.manifest.Blueprints[i]
		if e.cronSchedule == nil {
			d.launch(ctx, e)
			continue
		}
		scheduled++
		loops.Add(1)
		go func() {
			defer loops.Done()
			d.scheduleLoop(ctx, e)
		}()
	}

	if scheduled > 0 {
		<-ctx.Done()
	}
	loops.Wait()
	d.pool.Shutdown()
	d.log.Info("director stopped",
		slog.Int64("completed", d.Metrics().Completed),
		slog.Int64("failed", d.Metrics().Failed))
	return nil
}

// Start runs the director in the background. Use Stop to halt it.
func (d *Director) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return schema.NewError(schema.ErrCodeInvalidState, "director already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	done := make(chan struct{})
	d.done = done

	go func() {
		defer close(done)
		_ = d.Run(runCtx)
	}()
	d.log.Info("director started", slog.Int("blueprints", len(d.manifest.Blueprints)))
	return nil
}

// Stop cancels the background run and waits for it to drain.
func (d *Director) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// scheduleLoop fires one entry on its cron schedule until ctx is done.
func (d *Director) scheduleLoop(ctx context.Context, e *BlueprintEntry) {
	for {
		next := e.cronSchedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.launch(ctx, e)
		}
	}
}

// launch submits one session, logging instead of failing on skip conditions.
func (d *Director) launch(ctx context.Context, e *BlueprintEntry) {
	err := d.pool.Submit(ctx, e.Name, func(ctx context.Context) error {
		return d.runSession(ctx, e)
	})
	switch {
	case err == nil:
	case err == ErrSessionInFlight:
		d.log.Warn("skipping fire, session still running", slog.String("blueprint", e.Name))
	case err == ErrPoolShutdown || err == ctx.Err():
	default:
		d.log.Error("session submit failed",
			slog.String("blueprint", e.Name),
			slog.String("error", err.Error()))
	}
}

// runSession drives one Runner at the entry's cadence until the blueprint
// completes, the tick cap is hit or ctx is done.
func (d *Director) runSession(ctx context.Context, e *BlueprintEntry) error {
	path := e.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.baseDir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		d.log.Error("reading blueprint failed",
			slog.String("blueprint", e.Name),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}

	r, err := engine.NewRunner(
		engine.WithLogger(d.log),
		engine.WithGlobals(d.globals),
	)
	if err != nil {
		return err
	}
	defer r.Shutdown()
	for _, s := range d.factory(d.log) {
		if err := r.RegisterSystem(s); err != nil {
			return err
		}
	}
	if err := r.Load(raw); err != nil {
		d.log.Error("loading blueprint failed",
			slog.String("blueprint", e.Name),
			slog.String("error", err.Error()))
		return err
	}

	log := d.log.With(
		slog.String("blueprint", e.Name),
		slog.String("session_id", r.SessionID()))

	ctx, span := d.tracer.Start(ctx, "director.session",
		oteltrace.WithAttributes(
			attribute.String("blueprint.name", e.Name),
			attribute.String("session.id", r.SessionID()),
		))
	defer span.End()

	start := time.Now()
	ticker := time.NewTicker(time.Duration(e.TickInterval))
	defer ticker.Stop()

	log.Info("session started", slog.String("interval", time.Duration(e.TickInterval).String()))
	for !r.IsCompleted() {
		if r.TickCount() >= uint64(e.MaxTicks) {
			err := schema.NewErrorf(schema.ErrCodeExecution,
				"session did not complete within %d ticks", e.MaxTicks)
			log.Error("session stalled", slog.Uint64("ticks", r.TickCount()))
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		select {
		case <-ctx.Done():
			log.Info("session cancelled", slog.Uint64("ticks", r.TickCount()))
			span.SetStatus(codes.Error, "cancelled")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(); err != nil {
				log.Error("tick failed", slog.String("error", err.Error()))
				span.SetStatus(codes.Error, err.Error())
				return err
			}
		}
	}

	span.SetAttributes(attribute.Int64("session.ticks", int64(r.TickCount())))
	span.SetStatus(codes.Ok, "")
	log.Info("session completed",
		slog.Uint64("ticks", r.TickCount()),
		slog.String("elapsed", time.Since(start).String()))
	return nil
}
