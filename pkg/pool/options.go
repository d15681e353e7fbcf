package pool

import (
	"math/rand/v2"

	"go.uber.org/zap"
)

type options struct {
	logger   *zap.Logger
	observer Observer
	rng      *rand.Rand
	name     string
}

// Option configures a Pool.
type Option func(*options)

// WithLogger sets the logger. Pools log nothing by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers lifecycle callbacks, e.g. a metrics collector.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithRand sets the source used for random variant selection.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithName overrides the pool label used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Observer receives pool lifecycle events. Implementations must not call back
// into the pool.
type Observer interface {
	Created(pool string, variant int)
	CheckedOut(pool string, variant int, emergency bool)
	Returned(pool string, variant int)
	Rejected(pool string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Created(string, int)          {}
func (NopObserver) CheckedOut(string, int, bool) {}
func (NopObserver) Returned(string, int)         {}
func (NopObserver) Rejected(string)              {}
