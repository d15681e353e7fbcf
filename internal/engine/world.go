// Package engine is a headless entity host backed by an ark ECS world. It
// stands in for a game engine's scene graph so pools can be driven and
// inspected without one.
package engine

import (
	"github.com/mlange-42/ark/ecs"
	"go.uber.org/zap"

	"github.com/happyflowgames/spawnpool/pkg/logger"
)

// Prototype is the template an entity is cloned from.
type Prototype struct {
	Name   string
	Kind   string
	Width  float64
	Height float64
}

// Identity names an entity and records where it came from.
type Identity struct {
	Name     string
	Template string
	Kind     string
}

// Transform is the local transform of an entity relative to its parent.
type Transform struct {
	X, Y     float64
	Rotation float64
	Scale    float64
	Width    float64
	Height   float64
}

// Parent points at the scope entity that owns an entity.
type Parent struct {
	Scope ecs.Entity
}

// Scope marks the owner entity created for each scope name.
type Scope struct {
	Name string
}

// Disabled tags inactive entities.
type Disabled struct{}

// World implements pool.Host[Prototype, ecs.Entity]. Like the pools it serves,
// it is not safe for concurrent use.
type World struct {
	world ecs.World

	identity  *ecs.Map[Identity]
	transform *ecs.Map[Transform]
	parent    *ecs.Map[Parent]
	scope     *ecs.Map[Scope]
	disabled  *ecs.Map[Disabled]

	active *ecs.Filter1[Identity]

	scopes map[string]ecs.Entity
	log    *zap.Logger
}

// NewWorld creates an empty world. A nil log disables logging.
func NewWorld(log *zap.Logger) *World {
	w := &World{
		world:  ecs.NewWorld(),
		scopes: make(map[string]ecs.Entity),
		log:    logger.OrNop(log).Named("engine"),
	}
	w.identity = ecs.NewMap[Identity](&w.world)
	w.transform = ecs.NewMap[Transform](&w.world)
	w.parent = ecs.NewMap[Parent](&w.world)
	w.scope = ecs.NewMap[Scope](&w.world)
	w.disabled = ecs.NewMap[Disabled](&w.world)
	w.active = ecs.NewFilter1[Identity](&w.world).Without(ecs.C[Disabled]())
	return w
}

// Instantiate clones p under scope. The clone starts active and is named
// after the prototype, the way an engine would name it.
func (w *World) Instantiate(p Prototype, scope string) ecs.Entity {
	e := w.identity.NewEntity(&Identity{
		Name:     p.Name + "(Clone)",
		Template: p.Name,
		Kind:     p.Kind,
	})
	w.transform.Add(e, &Transform{Scale: 1, Width: p.Width, Height: p.Height})
	w.parent.Add(e, &Parent{Scope: w.scopeEntity(scope)})
	return e
}

// TemplateName implements pool.Host.
func (w *World) TemplateName(p Prototype) string { return p.Name }

// SetName implements pool.Host.
func (w *World) SetName(e ecs.Entity, name string) {
	w.identity.Get(e).Name = name
}

// SetActive adds or removes the Disabled tag.
func (w *World) SetActive(e ecs.Entity, active bool) {
	disabled := w.disabled.Has(e)
	switch {
	case active && disabled:
		w.disabled.Remove(e)
	case !active && !disabled:
		w.disabled.Add(e, &Disabled{})
	}
}

// ResetTransform clears rotation and scale and moves e back under scope.
// Position is left to the caller, which places the entity on checkout.
func (w *World) ResetTransform(e ecs.Entity, scope string) {
	t := w.transform.Get(e)
	t.Rotation = 0
	t.Scale = 1
	w.parent.Get(e).Scope = w.scopeEntity(scope)
}

// Place moves an entity and attaches it to a new scope, as gameplay code does
// after a checkout.
func (w *World) Place(e ecs.Entity, scope string, x, y, rotation, scale float64) {
	t := w.transform.Get(e)
	t.X, t.Y = x, y
	t.Rotation = rotation
	t.Scale = scale
	w.parent.Get(e).Scope = w.scopeEntity(scope)
}

// Active reports whether e is alive and not disabled.
func (w *World) Active(e ecs.Entity) bool {
	return w.world.Alive(e) && !w.disabled.Has(e)
}

// Name returns the current name of e.
func (w *World) Name(e ecs.Entity) string {
	if !w.identity.Has(e) {
		return ""
	}
	return w.identity.Get(e).Name
}

// Transform returns a copy of the transform of e.
func (w *World) Transform(e ecs.Entity) Transform {
	if !w.transform.Has(e) {
		return Transform{}
	}
	return *w.transform.Get(e)
}

// ScopeOf returns the scope name e is parented to.
func (w *World) ScopeOf(e ecs.Entity) string {
	if !w.parent.Has(e) {
		return ""
	}
	return w.scope.Get(w.parent.Get(e).Scope).Name
}

// CountActive counts active instances. Scope entities are not counted.
func (w *World) CountActive() int {
	n := 0
	query := w.active.Query()
	for query.Next() {
		n++
	}
	return n
}

// Scopes returns the number of scope entities created so far.
func (w *World) Scopes() int { return len(w.scopes) }

func (w *World) scopeEntity(name string) ecs.Entity {
	if e, ok := w.scopes[name]; ok {
		return e
	}
	e := w.scope.NewEntity(&Scope{Name: name})
	w.scopes[name] = e
	w.log.Debug("created scope", zap.String("scope", name))
	return e
}
