// Package spawnpool provides object pools for tick-driven games that recycle
// entity instances instead of creating and destroying them during play.
//
// A level owns four pools, one per category of entity (good pickups, bad
// hazards, platforms and the misc start/exit markers). Each pool holds one
// variant per template and grows them in lockstep: a few instances per tick
// while the level loads, and a single emergency instance whenever a checkout
// finds a variant empty.
//
// # Architecture
//
// pkg/pool implements the recycling pool. Instances live in an arena owned by
// the pool and are referred to by Handle, a pool-qualified index, so a pool
// can always tell whether an instance is one of its own. Free instances are
// handed out in FIFO order; returned instances are reset and queued again.
//
// pkg/factory composes the four category pools behind a single API and
// precreates them together, one batch per tick.
//
// The engine itself is reached through pool.Host. internal/engine provides a
// headless host on an ECS world, and internal/level drives a factory through
// precreation, play and reset.
//
// # Quick Start
//
//	world := engine.NewWorld(log)
//	f, err := level.NewFactory(world, config.Default(), log)
//	if err != nil {
//		return err
//	}
//	for !f.PrecreateAll() {
//		// one call per frame
//	}
//	h, _ := f.Checkout(factory.Bad)
//	defer f.Return(factory.Bad, h)
//
// # Observability
//
// Pools accept a zap logger and a pool.Observer; pkg/metrics implements the
// observer with Prometheus counters and gauges. The level driver wraps each
// phase in an OpenTelemetry span (pkg/observability).
//
// # CLI
//
//	spawnpool init pools.yaml
//	spawnpool validate --config pools.yaml
//	spawnpool simulate --config pools.yaml --ticks 600 --metrics-addr :9090
package spawnpool
