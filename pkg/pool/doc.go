// Package pool implements a fixed-variant recycling allocator for entities that
// are expensive to create.
//
// # Architecture
//
// A Pool manages one category of interchangeable entities, optionally split
// into variants (one template each). For every variant it keeps three
// collections over the instances created from that variant:
//
//   - all: every instance ever created, in creation order; it never shrinks
//   - free: created but not in use, served first in first out
//   - active: checked out to a caller
//
// all is always the disjoint union of free and active.
//
// Instances live in an arena owned by the pool. Callers hold a Handle, which
// encodes the owning pool and the arena slot; the host entity behind it is
// available through Entity. Instances are never destroyed: Return deactivates
// an instance and puts it back on the free list.
//
// # Host
//
// The pool does not know how entities are built. A Host supplies the engine
// primitives: instantiate a template under a scope, name an entity, enable or
// disable it and reset its transform.
//
// # Growth
//
// Nothing is created by New. IncrementalPrecreate grows every variant by
// GrowthBatch instances per call until variant 0 reaches Target, so the cost
// of filling the pool can be spread over several ticks:
//
//	p, err := pool.New(host, pool.Config[Prototype]{
//		Templates:   []Prototype{spikes, saw},
//		Scope:       "Bad",
//		BaseName:    "Bad",
//		GrowthBatch: 3,
//		Target:      10,
//	}, pool.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	for !p.IncrementalPrecreate() {
//		waitForNextTick()
//	}
//
// Checkout never fails: when the chosen variant has no free instance, exactly
// one is created on the spot.
//
//	h, variant := p.Checkout(pool.AnyVariant)
//	defer p.Return(h, variant)
//
// # Concurrency
//
// Pools are driven from a single tick loop and take no locks. They are not
// safe for concurrent use.
package pool
