// Package level drives a factory through the life of a level: precreation
// spread over ticks, play with timed spawns and the end-of-level reset.
package level

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/happyflowgames/spawnpool/internal/engine"
	"github.com/happyflowgames/spawnpool/pkg/config"
	"github.com/happyflowgames/spawnpool/pkg/errors"
	"github.com/happyflowgames/spawnpool/pkg/factory"
	"github.com/happyflowgames/spawnpool/pkg/logger"
	"github.com/happyflowgames/spawnpool/pkg/metrics"
	"github.com/happyflowgames/spawnpool/pkg/observability"
	"github.com/happyflowgames/spawnpool/pkg/pool"
)

// LevelScope parents entities while they are in play.
const LevelScope = "Level"

// Runner plays one level. It is not safe for concurrent use.
type Runner struct {
	factory *Factory
	world   *engine.World
	loop    config.Loop
	log     *zap.Logger
	otel    trace.Tracer
	tracer  *observability.PhaseTracer
	metrics *metrics.Collector
	rng     *rand.Rand
	runID   string

	tick    int
	live    []spawned
	markers []pool.Handle
	report  Report
}

type spawned struct {
	category factory.Category
	handle   pool.Handle
	expires  int
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger; run and level names are taken from the context
// of each phase.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = logger.OrNop(l) }
}

// WithTracing wraps every phase in a span of t.
func WithTracing(t *observability.Tracing) Option {
	return func(r *Runner) {
		if t != nil {
			r.otel = t.Tracer()
		}
	}
}

// WithMetrics records precreation ticks on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// NewRunner creates a runner for f, whose entities live in world.
func NewRunner(f *Factory, world *engine.World, loop config.Loop, opts ...Option) *Runner {
	r := &Runner{
		factory: f,
		world:   world,
		loop:    loop,
		log:     zap.NewNop(),
		rng:     rand.New(rand.NewPCG(loop.Seed, loop.Seed^0x5eed)),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.otel == nil {
		r.otel = noop.NewTracerProvider().Tracer("spawnpool")
	}
	r.tracer = observability.NewPhaseTracer(r.otel, r.runID)
	r.report.RunID = r.runID
	r.report.Spawned = make(map[string]int)
	r.report.Expired = make(map[string]int)
	return r
}

// RunID identifies this run in logs, spans and the report.
func (r *Runner) RunID() string { return r.runID }

// Precreate calls PrecreateAll once per tick until every pool reached its
// target and returns the number of ticks used. It fails when ctx is done or
// MaxPrecreateTicks (when positive) is exceeded.
func (r *Runner) Precreate(ctx context.Context) (int, error) {
	ticks := 0
	err := r.tracer.Trace(ctx, "precreate", func(ctx context.Context, span *observability.Span) error {
		log := logger.WithContext(ctx, r.log)
		for {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "precreation interrupted").
					WithDetail("ticks", ticks)
			}
			if r.loop.MaxPrecreateTicks > 0 && ticks >= r.loop.MaxPrecreateTicks {
				return errors.New(errors.ErrorTypeInternal, "precreation did not finish").
					WithDetail("ticks", ticks)
			}

			timer := metrics.NewTimer()
			done := r.factory.PrecreateAll()
			if r.metrics != nil {
				r.metrics.ObservePrecreateTick(timer.Stop(), done)
			}
			ticks++

			if done {
				span.SetAttribute("ticks", ticks)
				log.Info("precreation finished", zap.Int("ticks", ticks), zap.Any("pools", r.statsByName()))
				return nil
			}
			if err := r.sleep(ctx); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "precreation interrupted").
					WithDetail("ticks", ticks)
			}
		}
	})
	r.report.PrecreateTicks = ticks
	return ticks, err
}

// Play checks out the start and exit markers and then, for the given number
// of ticks, spawns instances at the configured rates and returns those whose
// lifetime ran out.
func (r *Runner) Play(ctx context.Context, ticks int) error {
	return r.tracer.Trace(ctx, "play", func(ctx context.Context, span *observability.Span) error {
		log := logger.WithContext(ctx, r.log)

		if err := r.placeMarkers(log, ticks); err != nil {
			return err
		}
		span.AddEvent("markers placed")

		for i := 0; i < ticks; i++ {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "play interrupted").
					WithDetail("tick", r.tick)
			}
			r.step(log)
			if err := r.sleep(ctx); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "play interrupted").
					WithDetail("tick", r.tick)
			}
		}

		span.SetAttribute("ticks", ticks)
		span.SetAttribute("live", len(r.live))
		log.Info("play finished", zap.Int("ticks", ticks), zap.Int("live", len(r.live)),
			zap.Int("active_entities", r.world.CountActive()))
		return nil
	})
}

// placeMarkers puts the start marker at the current tick and the exit marker
// ticks further. Markers of an earlier Play are returned first.
func (r *Runner) placeMarkers(log *zap.Logger, ticks int) error {
	for _, h := range r.markers {
		if err := r.factory.Return(factory.Misc, h); err != nil {
			log.Warn("marker return failed", zap.Error(err))
		}
	}
	r.markers = r.markers[:0]

	for _, m := range []struct {
		kind factory.MiscKind
		x    int
	}{
		{factory.MiscStart, r.tick},
		{factory.MiscExit, r.tick + ticks},
	} {
		h, err := r.factory.CheckoutMisc(m.kind)
		if err != nil {
			return err
		}
		r.place(factory.Misc, h, float64(m.x), 0)
		r.markers = append(r.markers, h)
	}
	return nil
}

// step advances the level by one tick.
func (r *Runner) step(log *zap.Logger) {
	for _, c := range factory.Categories {
		if c == factory.Misc {
			continue
		}
		spawn := r.loop.SpawnFor(c)
		if spawn.Every <= 0 || r.tick%spawn.Every != 0 {
			continue
		}
		h, err := r.factory.Checkout(c)
		if err != nil {
			log.Error("checkout failed", zap.Stringer("category", c), zap.Error(err))
			continue
		}
		r.place(c, h, float64(r.tick), r.rng.Float64()*8)
		r.report.Spawned[c.String()]++
		if spawn.Lifetime > 0 {
			r.live = append(r.live, spawned{category: c, handle: h, expires: r.tick + spawn.Lifetime})
		}
	}

	kept := r.live[:0]
	for _, s := range r.live {
		if s.expires > r.tick {
			kept = append(kept, s)
			continue
		}
		if err := r.factory.Return(s.category, s.handle); err != nil {
			log.Warn("return failed", zap.Stringer("category", s.category), zap.Error(err))
			continue
		}
		r.report.Expired[s.category.String()]++
	}
	r.live = kept
	r.tick++
}

// place moves a checked-out instance into the level with a random spin, the
// way gameplay code would before handing it back.
func (r *Runner) place(c factory.Category, h pool.Handle, x, y float64) {
	p, err := r.factory.Pool(c)
	if err != nil {
		return
	}
	if e, ok := p.Entity(h); ok {
		r.world.Place(e, LevelScope, x, y, r.rng.Float64()*360, 0.5+r.rng.Float64())
	}
}

// End returns every instance to its pool.
func (r *Runner) End(ctx context.Context) error {
	return r.tracer.Trace(ctx, "end", func(ctx context.Context, span *observability.Span) error {
		span.SetAttribute("live", len(r.live))
		r.factory.ReturnAllEverywhere()
		r.live = r.live[:0]
		r.markers = r.markers[:0]
		logger.WithContext(ctx, r.log).Info("level reset", zap.Int("active_entities", r.world.CountActive()))
		return nil
	})
}

// Report summarizes the run so far.
type Report struct {
	RunID          string                `json:"run_id"`
	PrecreateTicks int                   `json:"precreate_ticks"`
	PlayedTicks    int                   `json:"played_ticks"`
	Spawned        map[string]int        `json:"spawned"`
	Expired        map[string]int        `json:"expired"`
	ActiveEntities int                   `json:"active_entities"`
	Pools          map[string]pool.Stats `json:"pools"`
}

// Report returns a snapshot of the run.
func (r *Runner) Report() Report {
	rep := r.report
	rep.PlayedTicks = r.tick
	rep.ActiveEntities = r.world.CountActive()
	rep.Pools = r.statsByName()
	rep.Spawned = copyCounts(r.report.Spawned)
	rep.Expired = copyCounts(r.report.Expired)
	return rep
}

func (r *Runner) statsByName() map[string]pool.Stats {
	stats := r.factory.Stats()
	out := make(map[string]pool.Stats, len(stats))
	for c, s := range stats {
		out[c.String()] = s
	}
	return out
}

func (r *Runner) sleep(ctx context.Context) error {
	if r.loop.TickInterval <= 0 {
		return nil
	}
	t := time.NewTimer(r.loop.TickInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
