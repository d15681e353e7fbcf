package level

import (
	"github.com/mlange-42/ark/ecs"
	"go.uber.org/zap"

	"github.com/happyflowgames/spawnpool/internal/engine"
	"github.com/happyflowgames/spawnpool/pkg/config"
	"github.com/happyflowgames/spawnpool/pkg/errors"
	"github.com/happyflowgames/spawnpool/pkg/factory"
	"github.com/happyflowgames/spawnpool/pkg/pool"
)

// Factory is the entity factory of a headless level.
type Factory = factory.Factory[engine.Prototype, ecs.Entity]

// Specs converts the pool section of cfg into factory pool specs.
func Specs(cfg *config.Config) (map[factory.Category]factory.PoolSpec[engine.Prototype], error) {
	specs := make(map[factory.Category]factory.PoolSpec[engine.Prototype], len(factory.Categories))
	for _, c := range factory.Categories {
		p, ok := cfg.PoolFor(c)
		if !ok {
			return nil, errors.New(errors.ErrorTypeConfig, "missing pool").WithDetail("pool", c.String())
		}
		templates := make([]engine.Prototype, len(p.Templates))
		for i, t := range p.Templates {
			templates[i] = engine.Prototype{Name: t.Name, Kind: t.Kind, Width: t.Width, Height: t.Height}
		}
		scope := p.Scope
		if scope == "" {
			scope = c.String() + "Parent"
		}
		specs[c] = factory.PoolSpec[engine.Prototype]{
			Templates:   templates,
			Scope:       scope,
			BaseName:    p.BaseName,
			GrowthBatch: p.BatchSize(),
			Target:      p.TargetSize(),
		}
	}
	return specs, nil
}

// NewFactory builds the factory of cfg on world.
func NewFactory(world *engine.World, cfg *config.Config, log *zap.Logger, opts ...pool.Option) (*Factory, error) {
	specs, err := Specs(cfg)
	if err != nil {
		return nil, err
	}
	return factory.New[engine.Prototype, ecs.Entity](world, specs, log, opts...)
}
