// Package factory composes the four entity pools a level needs (Good, Bad,
// Platform and Misc) behind a category-qualified API.
package factory

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/happyflowgames/spawnpool/pkg/errors"
	"github.com/happyflowgames/spawnpool/pkg/logger"
	"github.com/happyflowgames/spawnpool/pkg/pool"
)

// Category is one of the top-level entity groupings.
type Category int

const (
	Good Category = iota
	Bad
	Platform
	Misc

	numCategories = 4
)

// Categories lists every category in declaration order.
var Categories = [numCategories]Category{Good, Bad, Platform, Misc}

// resetOrder is the order in which ReturnAllEverywhere empties the pools.
var resetOrder = [numCategories]Category{Bad, Good, Platform, Misc}

func (c Category) String() string {
	switch c {
	case Good:
		return "Good"
	case Bad:
		return "Bad"
	case Platform:
		return "Platform"
	case Misc:
		return "Misc"
	default:
		return "Category(" + strconv.Itoa(int(c)) + ")"
	}
}

func (c Category) valid() bool { return c >= 0 && c < numCategories }

// ParseCategory converts a case-insensitive category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, errors.New(errors.ErrorTypeValidation, "unknown category").WithDetail("category", s)
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, errors.New(errors.ErrorTypeValidation, "unknown category").WithDetail("category", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MiscKind selects a fixed variant of the Misc pool.
type MiscKind int

const (
	MiscStart MiscKind = 0
	MiscExit  MiscKind = 1
)

func (k MiscKind) String() string {
	switch k {
	case MiscStart:
		return "Start"
	case MiscExit:
		return "Exit"
	default:
		return "MiscKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// PoolSpec configures the pool of one category.
type PoolSpec[T any] = pool.Config[T]

// Factory owns one pool per category. It holds no state of its own beyond the
// pools and, like them, is not safe for concurrent use.
type Factory[T, E any] struct {
	pools [numCategories]*pool.Pool[T, E]
	log   *zap.Logger
}

// New builds the four pools. Every category needs a spec and Misc needs at
// least one template per MiscKind. log is shared with the pools; opts apply to
// every pool, and each pool is labelled with its category name.
func New[T, E any](host pool.Host[T, E], specs map[Category]PoolSpec[T], log *zap.Logger, opts ...pool.Option) (*Factory[T, E], error) {
	log = logger.OrNop(log)
	f := &Factory[T, E]{log: log.Named("factory")}
	opts = append([]pool.Option{pool.WithLogger(log.Named("pool"))}, opts...)

	for _, c := range Categories {
		spec, ok := specs[c]
		if !ok {
			return nil, errors.New(errors.ErrorTypeConfig, "missing pool spec").
				WithDetail("category", c.String())
		}
		if c == Misc && len(spec.Templates) <= int(MiscExit) {
			return nil, errors.New(errors.ErrorTypeConfig, "misc pool needs a start and an exit template").
				WithDetail("templates", len(spec.Templates))
		}

		p, err := pool.New(host, spec, append(opts[:len(opts):len(opts)], pool.WithName(c.String()))...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid pool spec").
				WithDetail("category", c.String())
		}
		f.pools[c] = p
	}

	return f, nil
}

// Pool returns the pool behind a category.
func (f *Factory[T, E]) Pool(c Category) (*pool.Pool[T, E], error) {
	if !c.valid() {
		return nil, errors.New(errors.ErrorTypeValidation, "unknown category").
			WithDetail("category", int(c))
	}
	return f.pools[c], nil
}

// PrecreateAll advances every pool by one growth batch and reports whether
// all of them reached their target. Every pool is advanced on every call, so
// pools later in the sequence are never starved. Call it once per tick until
// it returns true.
func (f *Factory[T, E]) PrecreateAll() bool {
	done := true
	for _, p := range f.pools {
		done = p.IncrementalPrecreate() && done
	}
	return done
}

// Checkout takes an instance of a random variant from the category's pool.
func (f *Factory[T, E]) Checkout(c Category) (pool.Handle, error) {
	p, err := f.Pool(c)
	if err != nil {
		return 0, err
	}
	h, _ := p.Checkout(pool.AnyVariant)
	return h, nil
}

// CheckoutMisc takes the Misc instance of the given kind. Kinds other than
// MiscStart and MiscExit are rejected.
func (f *Factory[T, E]) CheckoutMisc(kind MiscKind) (pool.Handle, error) {
	if kind != MiscStart && kind != MiscExit {
		return 0, errors.New(errors.ErrorTypeValidation, "unknown misc kind").WithDetail("kind", int(kind))
	}
	h, _ := f.pools[Misc].Checkout(int(kind))
	return h, nil
}

// Return puts an instance back into the category's pool.
func (f *Factory[T, E]) Return(c Category, h pool.Handle) error {
	p, err := f.Pool(c)
	if err != nil {
		return err
	}
	return p.Return(h, pool.UnknownVariant)
}

// ReturnAny puts an instance back into whichever pool issued it.
func (f *Factory[T, E]) ReturnAny(h pool.Handle) error {
	if h.IsZero() {
		return nil
	}
	c, ok := f.CategoryOf(h)
	if !ok {
		f.log.Warn("assertion failed: instance does not belong to any pool", zap.Stringer("handle", h))
		return errors.New(errors.ErrorTypeNotFound, "instance does not belong to any pool").
			WithDetail("handle", h.String())
	}
	return f.pools[c].Return(h, pool.UnknownVariant)
}

// ReturnAllInCategory returns every active instance of one category.
func (f *Factory[T, E]) ReturnAllInCategory(c Category) error {
	p, err := f.Pool(c)
	if err != nil {
		return err
	}
	p.ReturnAll()
	return nil
}

// ReturnAllEverywhere returns every active instance of every category, in the
// order Bad, Good, Platform, Misc.
func (f *Factory[T, E]) ReturnAllEverywhere() {
	for _, c := range resetOrder {
		f.pools[c].ReturnAll()
	}
	f.log.Debug("returned everything")
}

// CategoryOf finds the category whose pool issued h.
func (f *Factory[T, E]) CategoryOf(h pool.Handle) (Category, bool) {
	for _, c := range Categories {
		if f.pools[c].BelongsToPool(h) {
			return c, true
		}
	}
	return 0, false
}

// Stats returns the partition counts of every pool.
func (f *Factory[T, E]) Stats() map[Category]pool.Stats {
	out := make(map[Category]pool.Stats, numCategories)
	for _, c := range Categories {
		out[c] = f.pools[c].Stats()
	}
	return out
}
