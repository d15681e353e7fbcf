package pool

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/happyflowgames/spawnpool/pkg/errors"
	"github.com/happyflowgames/spawnpool/pkg/logger"
)

const (
	// AnyVariant asks Checkout to pick a variant uniformly at random.
	AnyVariant = -1
	// UnknownVariant asks Return to find the variant by searching the active sets.
	UnknownVariant = -1
)

var poolIDs atomic.Uint32

// Handle references one instance owned by a Pool. The zero Handle is the null handle.
type Handle uint64

func makeHandle(poolID, index uint32) Handle {
	return Handle(uint64(poolID)<<32 | uint64(index+1))
}

// IsZero reports whether h is the null handle.
func (h Handle) IsZero() bool { return h == 0 }

func (h Handle) poolID() uint32 { return uint32(h >> 32) }

func (h Handle) index() (uint32, bool) {
	lo := uint32(h)
	if lo == 0 {
		return 0, false
	}
	return lo - 1, true
}

func (h Handle) String() string {
	idx, ok := h.index()
	if !ok {
		return "nil"
	}
	return fmt.Sprintf("%d:%d", h.poolID(), idx)
}

// Host supplies the engine primitives a Pool needs. T is the template type and
// E the host's entity type.
type Host[T, E any] interface {
	// Instantiate creates a new entity from template, owned by scope.
	Instantiate(template T, scope string) E
	// TemplateName is used as base name when the pool has none.
	TemplateName(template T) string
	SetName(entity E, name string)
	SetActive(entity E, active bool)
	// ResetTransform restores identity rotation and unit scale and re-parents
	// the entity to scope.
	ResetTransform(entity E, scope string)
}

// Config is the immutable configuration of a Pool.
type Config[T any] struct {
	// Templates holds one template per variant, at least one.
	Templates []T
	// Scope owns every created entity.
	Scope string
	// BaseName prefixes instance names. Empty means the template name.
	BaseName string
	// GrowthBatch is the number of instances created per variant and IncrementalPrecreate call.
	GrowthBatch int
	// Target is the variant 0 count at which precreation is done.
	Target int
}

// Validate checks the configuration.
func (c Config[T]) Validate() error {
	if len(c.Templates) == 0 {
		return errors.New(errors.ErrorTypeConfig, "at least one template is required")
	}
	if c.GrowthBatch < 1 {
		return errors.New(errors.ErrorTypeConfig, "growth batch must be at least 1").
			WithDetail("growth_batch", c.GrowthBatch)
	}
	if c.Target < 0 {
		return errors.New(errors.ErrorTypeConfig, "target count cannot be negative").
			WithDetail("target", c.Target)
	}
	return nil
}

type instance[E any] struct {
	entity  E
	name    string
	variant int
	active  bool
	slot    int // index in the variant's active slice while active
}

type variantState struct {
	all    []uint32
	free   *queue.Queue
	active []uint32
}

// Pool recycles entities of one category, split into variants. Instances are
// created lazily and never destroyed; Return deactivates and recycles them.
//
// A Pool is not safe for concurrent use.
type Pool[T, E any] struct {
	id        uint32
	name      string
	host      Host[T, E]
	templates []T
	scope     string
	baseName  string
	batch     int
	target    int

	arena    []instance[E]
	variants []variantState

	log      *zap.Logger
	observer Observer
	rng      *rand.Rand
}

// New creates a pool. No instance is created until IncrementalPrecreate or Checkout.
func New[T, E any](host Host[T, E], cfg Config[T], opts ...Option) (*Pool[T, E], error) {
	if host == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "host is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	name := o.name
	if name == "" {
		name = cfg.BaseName
	}
	if name == "" {
		name = host.TemplateName(cfg.Templates[0])
	}

	p := &Pool[T, E]{
		id:        poolIDs.Add(1),
		name:      name,
		host:      host,
		templates: append([]T(nil), cfg.Templates...),
		scope:     cfg.Scope,
		baseName:  cfg.BaseName,
		batch:     cfg.GrowthBatch,
		target:    cfg.Target,
		variants:  make([]variantState, len(cfg.Templates)),
		observer:  o.observer,
		rng:       o.rng,
	}
	if p.observer == nil {
		p.observer = NopObserver{}
	}
	p.log = logger.OrNop(o.logger).With(zap.String("pool", name))

	for v := range p.variants {
		p.variants[v].free = queue.New()
	}

	return p, nil
}

// Name returns the pool label used in logs and metrics.
func (p *Pool[T, E]) Name() string { return p.name }

// Variants returns the number of variants.
func (p *Pool[T, E]) Variants() int { return len(p.variants) }

// IncrementalPrecreate creates one growth batch for every variant unless
// variant 0 already reached the target. It reports whether the target is
// reached. Call it once per tick until it returns true.
func (p *Pool[T, E]) IncrementalPrecreate() bool {
	done, _ := p.precreate(false)
	return done
}

// PrecreateCollect behaves like IncrementalPrecreate and also returns the
// handles created by this call, indexed by variant. created is nil when
// nothing was created.
func (p *Pool[T, E]) PrecreateCollect() (done bool, created [][]Handle) {
	return p.precreate(true)
}

func (p *Pool[T, E]) precreate(collect bool) (bool, [][]Handle) {
	// Completion is judged on variant 0 only; every variant grows in lockstep.
	if len(p.variants[0].all) >= p.target {
		return true, nil
	}

	var created [][]Handle
	if collect {
		created = make([][]Handle, len(p.variants))
	}
	for v := range p.variants {
		for i := 0; i < p.batch; i++ {
			h := p.create(v)
			if collect {
				created[v] = append(created[v], h)
			}
		}
	}

	done := len(p.variants[0].all) >= p.target
	p.log.Debug("precreated batch",
		zap.Int("batch", p.batch),
		zap.Int("total", len(p.variants[0].all)),
		zap.Int("target", p.target),
		zap.Bool("done", done))
	return done, created
}

// create instantiates one inactive instance of variant v and queues it as free.
func (p *Pool[T, E]) create(v int) Handle {
	vs := &p.variants[v]
	entity := p.host.Instantiate(p.templates[v], p.scope)

	base := p.baseName
	if base == "" {
		base = p.host.TemplateName(p.templates[v])
	}
	name := fmt.Sprintf("%s v%d id%d", base, v, len(vs.all))
	p.host.SetName(entity, name)

	idx := uint32(len(p.arena))
	p.arena = append(p.arena, instance[E]{
		entity:  entity,
		name:    name,
		variant: v,
		slot:    -1,
	})
	vs.all = append(vs.all, idx)
	vs.free.Add(idx)

	p.host.SetActive(entity, false)
	p.observer.Created(p.name, v)

	return makeHandle(p.id, idx)
}

// Checkout activates a free instance and returns it together with the variant
// used. AnyVariant picks a variant uniformly at random among all declared
// variants, regardless of free supply. When the variant has no free instance
// exactly one is created. Checkout panics if variant is out of range.
func (p *Pool[T, E]) Checkout(variant int) (Handle, int) {
	switch {
	case len(p.variants) == 1:
		variant = 0
	case variant == AnyVariant:
		variant = p.randomVariant()
	case variant < 0 || variant >= len(p.variants):
		panic(fmt.Sprintf("pool %s: variant %d out of range [0,%d)", p.name, variant, len(p.variants)))
	}

	vs := &p.variants[variant]
	emergency := vs.free.Length() == 0
	if emergency {
		p.create(variant)
		p.log.Debug("free list empty, created one instance",
			zap.Int("variant", variant),
			zap.Int("total", len(vs.all)))
	}

	idx := vs.free.Remove().(uint32)
	inst := &p.arena[idx]
	inst.active = true
	inst.slot = len(vs.active)
	vs.active = append(vs.active, idx)

	p.host.SetActive(inst.entity, true)
	p.observer.CheckedOut(p.name, variant, emergency)

	return makeHandle(p.id, idx), variant
}

func (p *Pool[T, E]) randomVariant() int {
	if p.rng != nil {
		return p.rng.IntN(len(p.variants))
	}
	return rand.IntN(len(p.variants))
}

// Return deactivates an active instance and queues it as free. The null
// handle is ignored. UnknownVariant looks the variant up. An instance that is
// not active in this pool (or not in the given variant) is rejected with a
// not_found error and the pool is left unchanged.
func (p *Pool[T, E]) Return(h Handle, variant int) error {
	if h.IsZero() {
		return nil
	}

	active, found := p.IsActiveInPool(h)
	if !active || (variant != UnknownVariant && variant != found) {
		p.observer.Rejected(p.name)
		p.log.Warn("assertion failed: returned instance is not in the active list",
			zap.Stringer("handle", h),
			zap.Int("variant", variant))
		return errors.New(errors.ErrorTypeNotFound, "instance is not active in pool").
			WithDetail("pool", p.name).
			WithDetail("handle", h.String()).
			WithDetail("variant", variant)
	}

	idx, _ := h.index()
	inst := &p.arena[idx]
	vs := &p.variants[found]

	p.host.ResetTransform(inst.entity, p.scope)

	// Swap-remove from the active slice, fixing the moved instance's slot.
	last := len(vs.active) - 1
	moved := vs.active[last]
	vs.active[inst.slot] = moved
	p.arena[moved].slot = inst.slot
	vs.active = vs.active[:last]

	inst.active = false
	inst.slot = -1
	vs.free.Add(idx)

	p.host.SetActive(inst.entity, false)
	p.observer.Returned(p.name, found)

	return nil
}

// ReturnAll returns every active instance of every variant.
func (p *Pool[T, E]) ReturnAll() {
	returned := 0
	for v := range p.variants {
		// Return mutates the active slice, so iterate over a copy.
		snapshot := append([]uint32(nil), p.variants[v].active...)
		for _, idx := range snapshot {
			if err := p.Return(makeHandle(p.id, idx), v); err != nil {
				p.log.Error("return during reset failed", zap.Error(err))
				continue
			}
			returned++
		}
	}
	p.log.Debug("returned all instances", zap.Int("returned", returned))
}

// lookup resolves a handle issued by this pool.
func (p *Pool[T, E]) lookup(h Handle) (*instance[E], bool) {
	if h.poolID() != p.id {
		return nil, false
	}
	idx, ok := h.index()
	if !ok || int(idx) >= len(p.arena) {
		return nil, false
	}
	return &p.arena[idx], true
}

// BelongsToPool reports whether h was created by this pool.
func (p *Pool[T, E]) BelongsToPool(h Handle) bool {
	_, ok := p.lookup(h)
	return ok
}

// IsActiveInPool reports whether h is currently checked out from this pool,
// and from which variant. The variant is -1 when it is not.
func (p *Pool[T, E]) IsActiveInPool(h Handle) (bool, int) {
	inst, ok := p.lookup(h)
	if !ok || !inst.active {
		return false, -1
	}
	return true, inst.variant
}

// Entity returns the host entity behind h.
func (p *Pool[T, E]) Entity(h Handle) (E, bool) {
	inst, ok := p.lookup(h)
	if !ok {
		var zero E
		return zero, false
	}
	return inst.entity, true
}

// InstanceName returns the diagnostic name given to h at creation.
func (p *Pool[T, E]) InstanceName(h Handle) string {
	inst, ok := p.lookup(h)
	if !ok {
		return ""
	}
	return inst.name
}

// CheckTemplates applies check to every template and reports whether all
// passed. Every template is checked even after a failure.
func (p *Pool[T, E]) CheckTemplates(check func(T) bool) bool {
	ok := true
	for _, t := range p.templates {
		ok = check(t) && ok
	}
	return ok
}

// Members returns handles of variant v: all in creation order, free in queue
// order, active in no particular order.
func (p *Pool[T, E]) Members(v int) (all, free, active []Handle) {
	vs := &p.variants[v]

	all = make([]Handle, 0, len(vs.all))
	for _, idx := range vs.all {
		all = append(all, makeHandle(p.id, idx))
	}

	free = make([]Handle, 0, vs.free.Length())
	for i := 0; i < vs.free.Length(); i++ {
		free = append(free, makeHandle(p.id, vs.free.Get(i).(uint32)))
	}

	active = make([]Handle, 0, len(vs.active))
	for _, idx := range vs.active {
		active = append(active, makeHandle(p.id, idx))
	}

	return all, free, active
}
