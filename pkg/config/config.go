package config

import (
	"time"

	"github.com/happyflowgames/spawnpool/pkg/errors"
	"github.com/happyflowgames/spawnpool/pkg/factory"
	"github.com/happyflowgames/spawnpool/pkg/logger"
)

// Config is the complete configuration of a spawnpool simulation: one pool per
// category, the tick loop that drives them and the ambient observability
// settings.
type Config struct {
	// Name identifies the level or game the pools belong to
	Name string `yaml:"name" toml:"name"`

	// Defaults apply to pools that leave growth_batch or target unset
	Defaults PoolDefaults `yaml:"defaults" toml:"defaults"`

	// Pools is keyed by category name (good, bad, platform, misc)
	Pools map[string]Pool `yaml:"pools" toml:"pools"`

	// Loop drives precreation and play
	Loop Loop `yaml:"loop" toml:"loop"`

	Logging logger.Config `yaml:"logging" toml:"logging"`
	Metrics Metrics       `yaml:"metrics" toml:"metrics"`
	Tracing Tracing       `yaml:"tracing" toml:"tracing"`
}

// PoolDefaults holds the shared growth settings.
type PoolDefaults struct {
	GrowthBatch int `yaml:"growth_batch" toml:"growth_batch"`
	Target      int `yaml:"target" toml:"target"`
}

// Pool configures the pool of one category.
type Pool struct {
	// Scope owns every instance of the pool
	Scope string `yaml:"scope" toml:"scope"`
	// BaseName prefixes instance names; empty uses the template name
	BaseName string `yaml:"base_name" toml:"base_name"`
	// GrowthBatch is the number of instances created per variant and tick;
	// nil takes Defaults.GrowthBatch
	GrowthBatch *int `yaml:"growth_batch,omitempty" toml:"growth_batch,omitempty"`
	// Target is the instance count per variant precreation aims for; nil
	// takes Defaults.Target, an explicit 0 disables precreation
	Target *int `yaml:"target,omitempty" toml:"target,omitempty"`
	// Templates holds one entry per variant
	Templates []Template `yaml:"templates" toml:"templates"`
}

// Template describes one variant.
type Template struct {
	Name   string  `yaml:"name" toml:"name"`
	Kind   string  `yaml:"kind" toml:"kind"`
	Width  float64 `yaml:"width" toml:"width"`
	Height float64 `yaml:"height" toml:"height"`
}

// Loop configures the tick loop of the level driver.
type Loop struct {
	// TickInterval is slept between ticks; zero runs ticks back to back
	TickInterval time.Duration `yaml:"tick_interval" toml:"tick_interval"`
	// MaxPrecreateTicks aborts precreation that does not finish in time
	MaxPrecreateTicks int `yaml:"max_precreate_ticks" toml:"max_precreate_ticks"`
	// PlayTicks is the length of a simulated level
	PlayTicks int `yaml:"play_ticks" toml:"play_ticks"`
	// Seed makes variant selection and spawning reproducible
	Seed uint64 `yaml:"seed" toml:"seed"`
	// Spawn configures spawning per category name
	Spawn map[string]Spawn `yaml:"spawn" toml:"spawn"`
}

// Spawn controls how often a category is checked out during play.
type Spawn struct {
	// Every spawns one instance every N ticks; zero disables spawning
	Every int `yaml:"every" toml:"every"`
	// Lifetime returns an instance after N ticks
	Lifetime int `yaml:"lifetime" toml:"lifetime"`
}

// Metrics configures Prometheus exposition.
type Metrics struct {
	// Addr serves /metrics when set, e.g. ":9090"
	Addr string `yaml:"addr" toml:"addr"`
}

// Tracing configures OpenTelemetry.
type Tracing struct {
	Enabled     bool    `yaml:"enabled" toml:"enabled"`
	ServiceName string  `yaml:"service_name" toml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" toml:"sample_rate"`
}

// Default returns the configuration of the original level: two good pickups,
// three hazards, two platform lengths and the start/exit markers.
func Default() *Config {
	cfg := &Config{
		Name: "ld50",
		Defaults: PoolDefaults{
			GrowthBatch: 5,
			Target:      20,
		},
		Pools: map[string]Pool{
			"good": {
				Scope:    "GoodParent",
				BaseName: "Good",
				Templates: []Template{
					{Name: "coin", Kind: "pickup", Width: 0.5, Height: 0.5},
					{Name: "heart", Kind: "pickup", Width: 0.5, Height: 0.5},
				},
			},
			"bad": {
				Scope:    "BadParent",
				BaseName: "Bad",
				Templates: []Template{
					{Name: "spikes", Kind: "hazard", Width: 1, Height: 0.5},
					{Name: "saw", Kind: "hazard", Width: 1, Height: 1},
					{Name: "bat", Kind: "enemy", Width: 0.75, Height: 0.5},
				},
			},
			"platform": {
				Scope:    "PlatformParent",
				BaseName: "Platform",
				Templates: []Template{
					{Name: "short", Kind: "platform", Width: 2, Height: 0.5},
					{Name: "long", Kind: "platform", Width: 4, Height: 0.5},
				},
			},
			"misc": {
				Scope:       "MiscParent",
				BaseName:    "Misc",
				GrowthBatch: Int(1),
				Target:      Int(1),
				Templates: []Template{
					{Name: "start", Kind: "marker", Width: 1, Height: 2},
					{Name: "exit", Kind: "marker", Width: 1, Height: 2},
				},
			},
		},
		Loop: Loop{
			TickInterval:      0,
			MaxPrecreateTicks: 100,
			PlayTicks:         600,
			Seed:              50,
			Spawn: map[string]Spawn{
				"good":     {Every: 10, Lifetime: 120},
				"bad":      {Every: 15, Lifetime: 90},
				"platform": {Every: 5, Lifetime: 200},
			},
		},
		Logging: logger.DefaultConfig(),
		Tracing: Tracing{
			ServiceName: "spawnpool",
			SampleRate:  1.0,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// LoadFile reads a configuration file, applies defaults and validates it.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := Load(path, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to load configuration").
			WithDetail("file", path)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset pool growth settings from Defaults. Settings
// given explicitly, zero included, are kept.
func (c *Config) ApplyDefaults() {
	for name, p := range c.Pools {
		if p.GrowthBatch == nil {
			p.GrowthBatch = Int(c.Defaults.GrowthBatch)
		}
		if p.Target == nil {
			p.Target = Int(c.Defaults.Target)
		}
		c.Pools[name] = p
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "spawnpool"
	}
}

// Validate validates the configuration for correctness. Every category needs
// a pool, and the misc pool needs a start and an exit template.
func (c *Config) Validate() error {
	seen := map[factory.Category]string{}
	for name, p := range c.Pools {
		cat, err := factory.ParseCategory(name)
		if err != nil {
			return configError("unknown pool category", "pool", name)
		}
		if other, dup := seen[cat]; dup {
			return errors.Newf(errors.ErrorTypeConfig, "pool defined twice (%s)", other).WithDetail("pool", name)
		}
		seen[cat] = name

		if len(p.Templates) == 0 {
			return configError("pool needs at least one template", "pool", name)
		}
		if cat == factory.Misc && len(p.Templates) < 2 {
			return configError("misc pool needs a start and an exit template", "pool", name)
		}
		for i, t := range p.Templates {
			if t.Name == "" {
				return errors.Newf(errors.ErrorTypeConfig, "template %d has no name", i).WithDetail("pool", name)
			}
		}
		if p.BatchSize() < 1 {
			return configError("growth_batch must be at least 1", "pool", name)
		}
		if p.TargetSize() < 0 {
			return configError("target cannot be negative", "pool", name)
		}
	}
	for _, cat := range factory.Categories {
		if _, ok := seen[cat]; !ok {
			return configError("missing pool", "pool", cat.String())
		}
	}

	if c.Loop.TickInterval < 0 {
		return configError("tick_interval cannot be negative", "loop", "tick_interval")
	}
	if c.Loop.MaxPrecreateTicks < 0 {
		return configError("max_precreate_ticks cannot be negative", "loop", "max_precreate_ticks")
	}
	if c.Loop.PlayTicks < 0 {
		return configError("play_ticks cannot be negative", "loop", "play_ticks")
	}
	for name, s := range c.Loop.Spawn {
		if _, err := factory.ParseCategory(name); err != nil {
			return configError("unknown spawn category", "spawn", name)
		}
		if s.Every < 0 || s.Lifetime < 0 {
			return configError("spawn every and lifetime cannot be negative", "spawn", name)
		}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return configError("sample_rate must be between 0 and 1", "tracing", "sample_rate")
	}
	return nil
}

// BatchSize returns GrowthBatch, or 0 when it is unset.
func (p Pool) BatchSize() int { return deref(p.GrowthBatch) }

// TargetSize returns Target, or 0 when it is unset.
func (p Pool) TargetSize() int { return deref(p.Target) }

// Int returns a pointer to n, for the optional pool settings.
func Int(n int) *int { return &n }

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

// PoolFor returns the pool configuration of a category.
func (c *Config) PoolFor(cat factory.Category) (Pool, bool) {
	for name, p := range c.Pools {
		if parsed, err := factory.ParseCategory(name); err == nil && parsed == cat {
			return p, true
		}
	}
	return Pool{}, false
}

// SpawnFor returns the spawn settings of a category; the zero Spawn disables it.
func (c *Config) SpawnFor(cat factory.Category) Spawn {
	return c.Loop.SpawnFor(cat)
}

// SpawnFor returns the spawn settings of a category; the zero Spawn disables it.
func (l Loop) SpawnFor(cat factory.Category) Spawn {
	for name, s := range l.Spawn {
		if parsed, err := factory.ParseCategory(name); err == nil && parsed == cat {
			return s
		}
	}
	return Spawn{}
}

func configError(msg, key, value string) error {
	return errors.New(errors.ErrorTypeConfig, msg).WithDetail(key, value)
}
