package pool

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/happyflowgames/spawnpool/pkg/errors"
	"github.com/happyflowgames/spawnpool/pkg/testutil"
)

type testPool = Pool[testutil.Template, *testutil.Entity]

func newTestPool(t *testing.T, names []string, batch, target int, opts ...Option) (*testPool, *testutil.RecordingHost) {
	t.Helper()
	host := testutil.NewRecordingHost()
	p, err := New[testutil.Template, *testutil.Entity](host, Config[testutil.Template]{
		Templates:   testutil.Templates(names...),
		Scope:       "Parent",
		BaseName:    "Good",
		GrowthBatch: batch,
		Target:      target,
	}, opts...)
	require.NoError(t, err)
	return p, host
}

// requirePartition checks that all == free ⊎ active for every variant.
func requirePartition(t *testing.T, p *testPool) {
	t.Helper()
	for v := 0; v < p.Variants(); v++ {
		all, free, active := p.Members(v)
		union := append(append([]Handle{}, free...), active...)
		require.ElementsMatch(t, all, union, "variant %d", v)

		seen := map[Handle]bool{}
		for _, h := range union {
			require.False(t, seen[h], "handle %s in both free and active", h)
			seen[h] = true
		}
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	host := testutil.NewRecordingHost()

	tests := []struct {
		name string
		cfg  Config[testutil.Template]
	}{
		{"no templates", Config[testutil.Template]{GrowthBatch: 1}},
		{"zero batch", Config[testutil.Template]{Templates: testutil.Templates("a"), GrowthBatch: 0}},
		{"negative target", Config[testutil.Template]{Templates: testutil.Templates("a"), GrowthBatch: 1, Target: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New[testutil.Template, *testutil.Entity](host, tt.cfg)
			assert.Nil(t, p)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
		})
	}

	_, err := New[testutil.Template, *testutil.Entity](nil, Config[testutil.Template]{
		Templates: testutil.Templates("a"), GrowthBatch: 1,
	})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestNew_CreatesNothing(t *testing.T) {
	p, host := newTestPool(t, []string{"a", "b"}, 5, 10)

	assert.Empty(t, host.Entities)
	assert.Equal(t, 0, p.Stats().Total())
	assert.Equal(t, 2, p.Variants())
	assert.Equal(t, "Good", p.Name())
}

func TestNew_NameFallsBackToTemplate(t *testing.T) {
	host := testutil.NewRecordingHost()
	p, err := New[testutil.Template, *testutil.Entity](host, Config[testutil.Template]{
		Templates:   testutil.Templates("coin"),
		GrowthBatch: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "coin", p.Name())

	p, err = New[testutil.Template, *testutil.Entity](host, Config[testutil.Template]{
		Templates:   testutil.Templates("coin"),
		BaseName:    "Good",
		GrowthBatch: 1,
	}, WithName("Bonus"))
	require.NoError(t, err)
	assert.Equal(t, "Bonus", p.Name())
}

func TestPool_IncrementalPrecreate(t *testing.T) {
	p, host := newTestPool(t, []string{"a"}, 3, 10)

	calls := 0
	for !p.IncrementalPrecreate() {
		calls++
		require.Less(t, calls, 10)
		requirePartition(t, p)
	}
	calls++

	assert.Equal(t, 4, calls)
	assert.Equal(t, 12, p.Stats().Variants[0].Total)
	assert.Equal(t, 12, p.Stats().Variants[0].Free)
	assert.Len(t, host.Entities, 12)
	assert.Equal(t, 0, host.CountActive())

	// Done forever after, without creating anything.
	for i := 0; i < 3; i++ {
		assert.True(t, p.IncrementalPrecreate())
	}
	assert.Equal(t, 12, p.Stats().Total())
}

func TestPool_IncrementalPrecreate_ExactTarget(t *testing.T) {
	p, _ := newTestPool(t, []string{"a"}, 5, 10)

	assert.False(t, p.IncrementalPrecreate())
	assert.True(t, p.IncrementalPrecreate())
	assert.Equal(t, 10, p.Stats().Total())
}

func TestPool_IncrementalPrecreate_ZeroTarget(t *testing.T) {
	p, host := newTestPool(t, []string{"a", "b"}, 4, 0)

	assert.True(t, p.IncrementalPrecreate())
	assert.Empty(t, host.Entities)
}

func TestPool_IncrementalPrecreate_GrowsVariantsInLockstep(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b", "c"}, 2, 4)

	assert.False(t, p.IncrementalPrecreate())
	assert.True(t, p.IncrementalPrecreate())

	for v, s := range p.Stats().Variants {
		assert.Equal(t, 4, s.Total, "variant %d", v)
	}
}

func TestPool_PrecreateCollect(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b"}, 2, 2)

	done, created := p.PrecreateCollect()
	assert.True(t, done)
	require.Len(t, created, 2)
	for v := range created {
		require.Len(t, created[v], 2)
		for _, h := range created[v] {
			assert.True(t, p.BelongsToPool(h))
			active, _ := p.IsActiveInPool(h)
			assert.False(t, active)
		}
	}

	done, created = p.PrecreateCollect()
	assert.True(t, done)
	assert.Nil(t, created)
}

func TestPool_InstanceNames(t *testing.T) {
	p, host := newTestPool(t, []string{"a", "b"}, 2, 2)
	p.IncrementalPrecreate()

	names := make([]string, 0, len(host.Entities))
	for _, e := range host.Entities {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Good v0 id0", "Good v0 id1", "Good v1 id0", "Good v1 id1"}, names)

	unnamed := testutil.NewRecordingHost()
	q, err := New[testutil.Template, *testutil.Entity](unnamed, Config[testutil.Template]{
		Templates:   testutil.Templates("spikes"),
		GrowthBatch: 1,
	})
	require.NoError(t, err)
	h, _ := q.Checkout(AnyVariant)
	assert.Equal(t, "spikes v0 id0", q.InstanceName(h))
	assert.Equal(t, "spikes v0 id0", unnamed.Entities[0].Name)
}

func TestPool_Checkout_NoDoubleIssue(t *testing.T) {
	p, _ := newTestPool(t, []string{"a"}, 2, 2)
	p.IncrementalPrecreate()

	h1, v1 := p.Checkout(AnyVariant)
	h2, v2 := p.Checkout(AnyVariant)

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 0, v1)
	assert.Equal(t, 0, v2)
	for _, h := range []Handle{h1, h2} {
		active, v := p.IsActiveInPool(h)
		assert.True(t, active)
		assert.Equal(t, 0, v)
		e, ok := p.Entity(h)
		require.True(t, ok)
		assert.True(t, e.Active)
	}
	requirePartition(t, p)
}

func TestPool_Checkout_FIFO(t *testing.T) {
	p, _ := newTestPool(t, []string{"a"}, 3, 3)
	p.IncrementalPrecreate()
	all, _, _ := p.Members(0)

	h, _ := p.Checkout(0)
	assert.Equal(t, all[0], h)

	require.NoError(t, p.Return(h, 0))
	_, free, _ := p.Members(0)
	assert.Equal(t, []Handle{all[1], all[2], all[0]}, free)

	h, _ = p.Checkout(0)
	assert.Equal(t, all[1], h)
}

func TestPool_Checkout_EmergencyGrowth(t *testing.T) {
	obs := testutil.NewCountingObserver()
	p, host := newTestPool(t, []string{"a"}, 1, 1, WithObserver(obs))
	p.IncrementalPrecreate()
	p.Checkout(AnyVariant)

	before := p.Stats().Variants[0].Total
	h, v := p.Checkout(AnyVariant)

	assert.Equal(t, before+1, p.Stats().Variants[0].Total)
	assert.Equal(t, 0, v)
	e, ok := p.Entity(h)
	require.True(t, ok)
	assert.True(t, e.Active)
	assert.Len(t, host.Entities, 2)
	assert.Equal(t, 1, obs.Emergencies["Good"])
	assert.Equal(t, 2, obs.Checkouts["Good"])
	requirePartition(t, p)
}

func TestPool_Checkout_WithoutPrecreate(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b"}, 5, 50)

	h, v := p.Checkout(1)

	assert.Equal(t, 1, v)
	assert.Equal(t, VariantStats{Total: 1, Free: 0, Active: 1}, p.Stats().Variants[1])
	assert.Equal(t, VariantStats{}, p.Stats().Variants[0])
	assert.Equal(t, "Good v1 id0", p.InstanceName(h))
}

func TestPool_Checkout_SingleVariantIgnoresIndex(t *testing.T) {
	p, _ := newTestPool(t, []string{"a"}, 1, 1)

	_, v := p.Checkout(3)
	assert.Equal(t, 0, v)
}

func TestPool_Checkout_OutOfRangePanics(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b"}, 1, 1)

	assert.Panics(t, func() { p.Checkout(2) })
	assert.Panics(t, func() { p.Checkout(-2) })
}

func TestPool_Checkout_UniformVariantSelection(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b", "c"}, 1, 1,
		WithRand(rand.New(rand.NewPCG(1, 2))))

	// Give variant 0 a large free supply; selection must ignore it.
	for i := 0; i < 50; i++ {
		p.Checkout(0)
	}
	p.ReturnAll()

	counts := make([]int, 3)
	const draws = 3000
	for i := 0; i < draws; i++ {
		_, v := p.Checkout(AnyVariant)
		counts[v]++
	}

	for v, c := range counts {
		assert.InDelta(t, draws/3, c, draws/10, "variant %d drawn %d times", v, c)
	}
	requirePartition(t, p)
}

func TestPool_Return_RoundTrip(t *testing.T) {
	p, host := newTestPool(t, []string{"a", "b"}, 2, 2)
	p.IncrementalPrecreate()
	p.Checkout(1)

	beforeAll, beforeFree, beforeActive := p.Members(1)

	h, v := p.Checkout(1)
	e, _ := p.Entity(h)
	e.Rotation = 90
	e.Scale = 3
	e.Scope = "Elsewhere"
	require.NoError(t, p.Return(h, UnknownVariant))

	afterAll, afterFree, afterActive := p.Members(1)
	assert.Equal(t, 1, v)
	assert.Equal(t, beforeAll, afterAll)
	assert.ElementsMatch(t, beforeFree, afterFree)
	assert.ElementsMatch(t, beforeActive, afterActive)

	assert.False(t, e.Active)
	assert.Equal(t, 0.0, e.Rotation)
	assert.Equal(t, 1.0, e.Scale)
	assert.Equal(t, "Parent", e.Scope)
	assert.Equal(t, 1, e.Resets)
	assert.Equal(t, 1, host.CountActive())
}

func TestPool_Return_Null(t *testing.T) {
	obs := testutil.NewCountingObserver()
	p, _ := newTestPool(t, []string{"a"}, 1, 1, WithObserver(obs))

	assert.NoError(t, p.Return(Handle(0), UnknownVariant))
	assert.Zero(t, obs.Rejects["Good"])
}

func TestPool_Return_UnknownInstance(t *testing.T) {
	log, logs := testutil.ObservedLogger(zapcore.WarnLevel)
	obs := testutil.NewCountingObserver()
	p, _ := newTestPool(t, []string{"a", "b"}, 2, 2, WithLogger(log), WithObserver(obs))
	other, _ := newTestPool(t, []string{"a"}, 1, 1)
	p.IncrementalPrecreate()

	foreign, _ := other.Checkout(AnyVariant)
	checkedOut, v := p.Checkout(0)
	returned, _ := p.Checkout(1)
	require.NoError(t, p.Return(returned, 1))

	before := p.Stats()

	cases := map[string]struct {
		h       Handle
		variant int
	}{
		"foreign pool":    {foreign, UnknownVariant},
		"already free":    {returned, UnknownVariant},
		"wrong variant":   {checkedOut, 1 - v},
		"never issued":    {makeHandle(p.id, 999), UnknownVariant},
		"foreign variant": {foreign, 0},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			err := p.Return(c.h, c.variant)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
			assert.Equal(t, before, p.Stats())
			requirePartition(t, p)
		})
	}

	assert.Equal(t, len(cases), obs.Rejects["Good"])
	assert.Equal(t, len(cases), logs.FilterMessageSnippet("assertion failed").Len())

	active, _ := p.IsActiveInPool(checkedOut)
	assert.True(t, active)
}

func TestPool_ReturnAll(t *testing.T) {
	p, host := newTestPool(t, []string{"a", "b", "c"}, 3, 3)
	p.IncrementalPrecreate()

	for v := 0; v < 3; v++ {
		for i := 0; i < 4; i++ { // one more than precreated
			p.Checkout(v)
		}
	}
	require.Equal(t, 12, host.CountActive())

	p.ReturnAll()

	for v := 0; v < 3; v++ {
		all, free, active := p.Members(v)
		assert.Empty(t, active)
		assert.ElementsMatch(t, all, free)
	}
	assert.Equal(t, 0, host.CountActive())
	assert.Equal(t, 12, p.Stats().Free())

	// Nothing to do the second time.
	p.ReturnAll()
	assert.Equal(t, 12, p.Stats().Free())
}

func TestPool_Membership(t *testing.T) {
	p, _ := newTestPool(t, []string{"a", "b"}, 1, 1)
	other, _ := newTestPool(t, []string{"a"}, 1, 1)

	h, v := p.Checkout(1)
	foreign, _ := other.Checkout(0)

	assert.True(t, p.BelongsToPool(h))
	active, got := p.IsActiveInPool(h)
	assert.True(t, active)
	assert.Equal(t, v, got)

	require.NoError(t, p.Return(h, v))
	assert.True(t, p.BelongsToPool(h))
	active, got = p.IsActiveInPool(h)
	assert.False(t, active)
	assert.Equal(t, -1, got)

	assert.False(t, p.BelongsToPool(foreign))
	assert.False(t, p.BelongsToPool(Handle(0)))
	_, ok := p.Entity(foreign)
	assert.False(t, ok)
	assert.Empty(t, p.InstanceName(foreign))
}

func TestPool_CheckTemplates(t *testing.T) {
	p, _ := newTestPool(t, []string{"coin", "", "gem"}, 1, 1)

	checked := 0
	ok := p.CheckTemplates(func(tpl testutil.Template) bool {
		checked++
		return tpl.Name != ""
	})

	assert.False(t, ok)
	assert.Equal(t, 3, checked)
	assert.True(t, p.CheckTemplates(func(testutil.Template) bool { return true }))
}

func TestPool_PartitionUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	p, _ := newTestPool(t, []string{"a", "b", "c"}, 2, 6, WithRand(rng))

	var out []Handle
	prevTotals := make([]int, 3)
	for step := 0; step < 500; step++ {
		switch op := rng.IntN(10); {
		case op < 2:
			p.IncrementalPrecreate()
		case op < 6:
			h, _ := p.Checkout(AnyVariant)
			out = append(out, h)
		case op < 9 && len(out) > 0:
			i := rng.IntN(len(out))
			require.NoError(t, p.Return(out[i], UnknownVariant))
			out = append(out[:i], out[i+1:]...)
		case op == 9:
			p.ReturnAll()
			out = out[:0]
		}

		requirePartition(t, p)
		for v, s := range p.Stats().Variants {
			require.GreaterOrEqual(t, s.Total, prevTotals[v])
			prevTotals[v] = s.Total
		}
		require.Equal(t, len(out), p.Stats().Active())
	}
}

func TestHandle_String(t *testing.T) {
	assert.Equal(t, "nil", Handle(0).String())
	assert.Equal(t, "3:7", makeHandle(3, 7).String())
	assert.True(t, Handle(0).IsZero())
	assert.False(t, makeHandle(1, 0).IsZero())
}
