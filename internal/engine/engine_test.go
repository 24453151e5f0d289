package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/valuegrid/internal/cache"
	"github.com/specialistvlad/valuegrid/internal/calcnode"
	"github.com/specialistvlad/valuegrid/internal/dag"
	"github.com/specialistvlad/valuegrid/internal/dispatcher"
	"github.com/specialistvlad/valuegrid/internal/engine"
	"github.com/specialistvlad/valuegrid/internal/inmemorystore"
	"github.com/specialistvlad/valuegrid/internal/metrics"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/resolver"
	"github.com/specialistvlad/valuegrid/internal/scheduler"
	"github.com/specialistvlad/valuegrid/internal/source"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/testutil"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type fixture struct {
	ctx     context.Context
	logs    *testutil.SafeBuffer
	engine  *engine.Engine
	caches  *cache.Manager
	store   *inmemorystore.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg engine.Config, fns ...registry.Function) fixture {
	t.Helper()
	ctx, logs := testutil.Context(t)

	reg := registry.New()
	(&testutil.StubModule{Functions: fns}).Register(reg)
	require.NoError(t, reg.Validate(ctx))

	src := source.NewMemory()
	for _, id := range []string{"POS~1", "POS~2"} {
		src.AddPosition(&target.Position{ID: target.MustParseUniqueID(id)})
	}
	res := resolver.NewResolver(src)

	m := metrics.New()
	store := inmemorystore.New()
	caches := cache.NewManager(store, cache.WithObserver(m))
	d := dispatcher.New(dispatcher.Config{MaxRetries: 1}, m,
		calcnode.NewLocalNode("node-1", 2, reg, res, caches),
		calcnode.NewLocalNode("node-2", 2, reg, res, caches),
	)
	require.NoError(t, d.Start(ctx))
	t.Cleanup(func() { assert.NoError(t, d.Stop()) })

	e, err := engine.New(engine.Deps{
		Registry: reg, Resolver: res, Dispatcher: d, Caches: caches, Metrics: m, Config: cfg,
	})
	require.NoError(t, err)
	return fixture{ctx: ctx, logs: logs, engine: e, caches: caches, store: store, metrics: m}
}

func pv(id string, props value.Properties) value.Requirement {
	return testutil.Requirement(value.PresentValue, target.TypePosition, id, props)
}

func currency(ccy string) value.Properties {
	return value.NewProperties().With(value.PropertyCurrency, ccy).MustBuild()
}

func constant(v int64) func(context.Context, target.Target, registry.Inputs, []value.Specification) ([]value.ComputedValue, error) {
	return func(_ context.Context, _ target.Target, _ registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
		out := make([]value.ComputedValue, len(desired))
		for i, spec := range desired {
			out[i] = value.ComputedValue{Spec: spec, Value: cty.NumberIntVal(v)}
		}
		return out, nil
	}
}

func view(reqs ...value.Requirement) *engine.ViewDefinition {
	return &engine.ViewDefinition{Name: "test", CalcConfigs: []engine.CalcConfig{{Name: "default", Requirements: reqs}}}
}

func assertNumber(t *testing.T, want int64, got cty.Value) {
	t.Helper()
	require.Equal(t, cty.Number, got.Type())
	assert.True(t, got.Equals(cty.NumberIntVal(want)).True(), "want %d, got %s", want, got.AsBigFloat())
}

func TestRunCycle_SelectsCandidateByProperties(t *testing.T) {
	usd := &testutil.StubFunction{FnID: "pv-usd", Type: target.TypePosition, Produces: value.PresentValue, Props: currency("USD"), Compute: constant(100)}
	eur := &testutil.StubFunction{FnID: "pv-eur", Type: target.TypePosition, Produces: value.PresentValue, Props: currency("EUR"), Compute: constant(92)}
	f := newFixture(t, engine.Config{}, usd, eur)

	result, err := f.engine.RunCycle(f.ctx, view(pv("POS~1", currency("EUR")), pv("POS~1", currency("USD"))))
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Equal(t, scheduler.StateCompleted, result.States["default"])

	got, ok := result.Lookup("default", pv("POS~1", currency("EUR")))
	require.True(t, ok)
	require.NoError(t, got.Err)
	assert.Equal(t, "pv-eur", got.Spec.FunctionID)
	assertNumber(t, 92, got.Value)

	got, ok = result.Lookup("default", pv("POS~1", currency("USD")))
	require.True(t, ok)
	require.NoError(t, got.Err)
	assert.Equal(t, "pv-usd", got.Spec.FunctionID)
	assertNumber(t, 100, got.Value)

	assert.Equal(t, 1, eur.Invocations())
	assert.Equal(t, 1, usd.Invocations())
}

func TestRunCycle_SharedDependencyExecutedOnce(t *testing.T) {
	market := &testutil.StubFunction{FnID: "market", Type: target.TypePrimitive, Produces: value.MarketPrice}
	pvFn := &testutil.StubFunction{
		FnID: "pv", Type: target.TypePosition, Produces: value.PresentValue,
		Needs: func(target.Target) []value.Requirement {
			return []value.Requirement{testutil.Requirement(value.MarketPrice, target.TypePrimitive, "MKT~X", value.None)}
		},
	}
	f := newFixture(t, engine.Config{MaxJobItems: 1}, market, pvFn)

	result, err := f.engine.RunCycle(f.ctx, view(pv("POS~1", value.None), pv("POS~2", value.None)))
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	assert.Equal(t, 1, market.Invocations(), "the shared input is computed once per cycle")
	assert.Equal(t, 2, pvFn.Invocations())
	for _, rv := range result.Values["default"] {
		require.NoError(t, rv.Err)
		assertNumber(t, 2, rv.Value)
	}
	assert.Equal(t, 0, f.caches.ActiveCycles(), "finished cycles are released")

	stats := f.metrics.Snapshot()
	assert.Equal(t, 3, stats.Jobs)
	assert.Equal(t, 1, stats.ProcessedGraphs)
	assert.Equal(t, 1, stats.ExecutedGraphs)
}

func TestRunCycle_IndependentJobsRunConcurrently(t *testing.T) {
	done := make(chan string, 2)
	sleeper := testutil.NewSleeperFunction("sleeper", target.TypePosition, value.FairValue, done, 100*time.Millisecond)
	f := newFixture(t, engine.Config{MinJobItems: 1, MaxJobItems: 1}, sleeper)

	fv := func(id string) value.Requirement {
		return testutil.Requirement(value.FairValue, target.TypePosition, id, value.None)
	}
	result, err := f.engine.RunCycle(f.ctx, view(fv("POS~1"), fv("POS~2")))
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Len(t, done, 2)

	first, ok := sleeper.Record("POS~1")
	require.True(t, ok)
	second, ok := sleeper.Record("POS~2")
	require.True(t, ok)
	assert.True(t, first.Overlaps(second), "one job per position, executed side by side")
}

func TestRunCycle_FailuresAreReportedPerValue(t *testing.T) {
	errBoom := errors.New("boom")
	broken := &testutil.StubFunction{
		FnID: "broken", Type: target.TypePrimitive, Produces: value.YieldCurve,
		Compute: func(context.Context, target.Target, registry.Inputs, []value.Specification) ([]value.ComputedValue, error) {
			return nil, errBoom
		},
	}
	fair := &testutil.StubFunction{FnID: "fair", Type: target.TypePosition, Produces: value.FairValue}
	f := newFixture(t, engine.Config{}, broken, fair)

	curve := testutil.Requirement(value.YieldCurve, target.TypePrimitive, "CURVE~USD", value.None)
	unknown := testutil.Requirement(value.FairValue, target.TypePosition, "POS~404", value.None)
	fv := testutil.Requirement(value.FairValue, target.TypePosition, "POS~1", value.None)

	result, err := f.engine.RunCycle(f.ctx, view(curve, unknown, fv, pv("POS~1", value.None)))
	require.NoError(t, err, "failed values never abort the cycle")
	assert.False(t, result.Succeeded())

	got, _ := result.Lookup("default", curve)
	assert.ErrorIs(t, got.Err, engine.ErrNotComputed)
	assert.ErrorIs(t, got.Err, errBoom)
	var invocation *calcnode.FunctionInvocationError
	require.ErrorAs(t, got.Err, &invocation)
	assert.Equal(t, "broken", invocation.FunctionID)

	got, _ = result.Lookup("default", unknown)
	assert.ErrorIs(t, got.Err, dag.ErrUnsatisfiable)
	assert.ErrorIs(t, got.Err, resolver.ErrNotFound)

	got, _ = result.Lookup("default", pv("POS~1", value.None))
	assert.ErrorIs(t, got.Err, dag.ErrNoFunctions)

	got, _ = result.Lookup("default", fv)
	require.NoError(t, got.Err)
	assertNumber(t, 1, got.Value)
}

func TestRunCycle_CalcConfigsRunIndependently(t *testing.T) {
	scaled := &testutil.StubFunction{FnID: "fair", Type: target.TypePosition, Produces: value.FairValue}
	f := newFixture(t, engine.Config{}, scaled)

	fv := testutil.Requirement(value.FairValue, target.TypePosition, "POS~1", value.None)
	v := &engine.ViewDefinition{Name: "multi", CalcConfigs: []engine.CalcConfig{
		{Name: "base", Requirements: []value.Requirement{fv}},
		{Name: "stress", Requirements: []value.Requirement{fv}, Params: map[string]string{"shift": "1bp"}},
	}}
	result, err := f.engine.RunCycle(f.ctx, v)
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Len(t, result.States, 2)
	assert.Equal(t, 2, scaled.Invocations(), "each calculation configuration computes its own values")
}

func TestSubmit_CancelAndWait(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := &testutil.StubFunction{
		FnID: "slow", Type: target.TypePosition, Produces: value.FairValue,
		Compute: func(context.Context, target.Target, registry.Inputs, []value.Specification) ([]value.ComputedValue, error) {
			started <- struct{}{}
			<-release
			return nil, nil
		},
	}
	f := newFixture(t, engine.Config{}, slow)
	t.Cleanup(func() { close(release) })

	cycle, err := f.engine.Submit(f.ctx, view(testutil.Requirement(value.FairValue, target.TypePosition, "POS~1", value.None)))
	require.NoError(t, err)
	assert.Equal(t, "test", cycle.View())

	<-started
	_, ok := cycle.WaitForResult(20 * time.Millisecond)
	assert.False(t, ok, "the cycle is still running")

	cycle.Cancel()
	result, ok := cycle.WaitForResult(time.Second)
	require.True(t, ok)
	assert.Equal(t, cycle.ID(), result.CycleID)
	assert.Equal(t, scheduler.StateCancelled, result.States["default"])
	assert.ErrorIs(t, result.Values["default"][0].Err, context.Canceled)
}

func TestSubmit_CancelledCycleLeavesNoValues(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	returned := make(chan struct{})
	var once sync.Once
	slow := &testutil.StubFunction{
		FnID: "slow", Type: target.TypePosition, Produces: value.FairValue,
		Compute: func(ctx context.Context, t target.Target, in registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			defer once.Do(func() { close(returned) })
			return constant(7)(ctx, t, in, desired)
		},
	}
	f := newFixture(t, engine.Config{}, slow)

	cycle, err := f.engine.Submit(f.ctx, view(testutil.Requirement(value.FairValue, target.TypePosition, "POS~1", value.None)))
	require.NoError(t, err)
	<-started
	cycle.Cancel()
	result, ok := cycle.WaitForResult(time.Second)
	require.True(t, ok)
	assert.Equal(t, scheduler.StateCancelled, result.States["default"])
	assert.Equal(t, 0, f.store.Cycles())

	// The abandoned job still completes and tries to store its output.
	close(release)
	<-returned
	assert.Never(t, func() bool { return f.store.Cycles() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 0, f.caches.ActiveCycles())
	assert.True(t, f.caches.Released(cycle.ID()))
}

func TestSubmit_RejectsInvalidViews(t *testing.T) {
	f := newFixture(t, engine.Config{})

	_, err := f.engine.Submit(f.ctx, &engine.ViewDefinition{
		CalcConfigs: []engine.CalcConfig{{Name: "a"}, {Name: "a"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidView)
	assert.Contains(t, err.Error(), "view name is empty")
	assert.Contains(t, err.Error(), "declared twice")
	assert.Contains(t, err.Error(), "requests nothing")

	_, err = f.engine.Submit(f.ctx, nil)
	assert.ErrorIs(t, err, engine.ErrInvalidView)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := engine.New(engine.Deps{Config: engine.Config{MinJobItems: 5, MaxJobItems: 2}})
	require.Error(t, err)
	for _, want := range []string{"registry", "resolver", "dispatcher", "cache manager", "exceeds max_job_items"} {
		assert.Contains(t, err.Error(), want)
	}
}
