package registry_test

import (
	"testing"

	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/testutil"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pvFunction(id, currency string) *testutil.StubFunction {
	props := value.NewProperties().WithAny(value.PropertyCurrency).MustBuild()
	if currency != "" {
		props = value.NewProperties().With(value.PropertyCurrency, currency).MustBuild()
	}
	return &testutil.StubFunction{FnID: id, Type: target.TypePosition, Produces: value.PresentValue, Props: props}
}

func TestCandidates_OrderAndFiltering(t *testing.T) {
	reg := registry.New()
	low := pvFunction("pv-low", "")
	high := pvFunction("pv-high", "")
	eur := pvFunction("pv-eur", "EUR")
	also := pvFunction("pv-also-low", "")

	reg.Register(low)
	reg.Register(high, registry.WithPriority(10))
	reg.Register(eur, registry.WithPriority(20))
	reg.Register(also)

	pos := &target.Position{ID: target.MustParseUniqueID("POS~1")}
	req := value.MustRequirement(value.PresentValue, pos.Spec(), value.NewProperties().With(value.PropertyCurrency, "USD").MustBuild())

	got := reg.Candidates(&registry.CompilationContext{}, req, pos)
	require.Len(t, got, 3)
	assert.Equal(t, "pv-high", got[0].Rule.Function.ID())
	assert.Equal(t, "pv-low", got[1].Rule.Function.ID())
	assert.Equal(t, "pv-also-low", got[2].Rule.Function.ID())

	for _, c := range got {
		ccy, ok := c.Spec.Properties.Single(value.PropertyCurrency)
		require.True(t, ok, "wildcard result should be narrowed")
		assert.Equal(t, "USD", ccy)
		assert.Equal(t, c.Rule.Function.ID(), c.Spec.FunctionID)
	}
}

func TestCandidates_SpecsAreConcrete(t *testing.T) {
	reg := registry.New()
	reg.Register(pvFunction("pv-any", ""))
	pos := &target.Position{ID: target.MustParseUniqueID("POS~1")}

	unconstrained := value.MustRequirement(value.PresentValue, pos.Spec(), value.None)
	assert.Empty(t, reg.Candidates(&registry.CompilationContext{}, unconstrained, pos),
		"a wildcard result cannot be produced without a currency to narrow it to")

	either := value.MustRequirement(value.PresentValue, pos.Spec(),
		value.NewProperties().With(value.PropertyCurrency, "USD", "EUR").MustBuild())
	got := reg.Candidates(&registry.CompilationContext{}, either, pos)
	require.Len(t, got, 1)
	assert.True(t, got[0].Spec.Properties.IsConcrete())
	ccy, ok := got[0].Spec.Properties.Single(value.PropertyCurrency)
	require.True(t, ok)
	assert.Equal(t, "EUR", ccy)
	assert.True(t, either.IsSatisfiedBy(got[0].Spec))
}

func TestCandidates_TargetTypeAndFilters(t *testing.T) {
	reg := registry.New()
	onSecurity := &testutil.StubFunction{FnID: "sec", Type: target.TypeSecurity, Produces: value.PresentValue}
	restricted := &testutil.StubFunction{FnID: "only-pos-2", Type: target.TypePosition, Produces: value.PresentValue}
	refuses := &testutil.StubFunction{
		FnID: "refuses", Type: target.TypePosition, Produces: value.PresentValue,
		Applies: func(target.Target) bool { return false },
	}
	reg.Register(onSecurity)
	reg.Register(restricted, registry.WithFilter(registry.ApplyToTargets(target.MustParseUniqueID("POS~2"))))
	reg.Register(refuses)

	pos1 := &target.Position{ID: target.MustParseUniqueID("POS~1")}
	pos2 := &target.Position{ID: target.MustParseUniqueID("POS~2")}

	req1 := value.MustRequirement(value.PresentValue, pos1.Spec(), value.None)
	assert.Empty(t, reg.Candidates(nil, req1, pos1))

	req2 := value.MustRequirement(value.PresentValue, pos2.Spec(), value.None)
	got := reg.Candidates(nil, req2, pos2)
	require.Len(t, got, 1)
	assert.Equal(t, "only-pos-2", got[0].Rule.Function.ID())
}

func TestApplyToSubtree(t *testing.T) {
	inside := &target.Position{ID: target.MustParseUniqueID("POS~in")}
	outside := &target.Position{ID: target.MustParseUniqueID("POS~out")}
	child := &target.PortfolioNode{ID: target.MustParseUniqueID("PN~child"), Positions: []*target.Position{inside}}
	root := &target.PortfolioNode{ID: target.MustParseUniqueID("PN~root"), Children: []*target.PortfolioNode{child}}

	f := registry.ApplyToSubtree(child)
	assert.True(t, f.Accept(child))
	assert.True(t, f.Accept(inside))
	assert.False(t, f.Accept(root))
	assert.False(t, f.Accept(outside))
	assert.False(t, f.Accept(&target.Security{ID: target.MustParseUniqueID("POS~in")}))

	s := registry.ApplyToSchemes("POS")
	assert.True(t, s.Accept(outside))
	assert.False(t, s.Accept(root))
}

func TestRegister_DuplicatePanics(t *testing.T) {
	reg := registry.New()
	reg.Register(pvFunction("pv", ""))
	assert.PanicsWithValue(t, "function with id 'pv' already registered", func() {
		reg.Register(pvFunction("pv", "EUR"))
	})

	fn, ok := reg.Function("pv")
	require.True(t, ok)
	assert.Equal(t, "pv", fn.ID())
	assert.Equal(t, 1, reg.Len())
}

func TestValidate(t *testing.T) {
	ctx, _ := testutil.Context(t)

	t.Run("valid", func(t *testing.T) {
		reg := registry.New()
		(&testutil.StubModule{Functions: []registry.Function{pvFunction("pv", "")}}).Register(reg)
		assert.NoError(t, reg.Validate(ctx))
	})

	t.Run("all problems reported", func(t *testing.T) {
		reg := registry.New()
		reg.Register(&testutil.StubFunction{FnID: "", Type: target.TypePosition})
		reg.Register(&testutil.StubFunction{FnID: "untyped"})
		reg.Register(pvFunction("nofilter", ""), registry.WithFilter(nil))

		err := reg.Validate(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty id")
		assert.Contains(t, err.Error(), "'untyped': target type is not set")
		assert.Contains(t, err.Error(), "'nofilter': target filter is nil")
	})
}

func TestInputs(t *testing.T) {
	pos := target.NewSpecification(target.TypePosition, target.MustParseUniqueID("POS~1"))
	usd := value.NewProperties().With(value.PropertyCurrency, "USD").MustBuild()
	spec := value.Specification{Name: value.PresentValue, Target: pos, Properties: usd, FunctionID: "pv"}

	in := registry.NewInputs(value.ComputedValue{Spec: spec})
	assert.Equal(t, 1, in.Len())
	assert.Len(t, in.Named(value.PresentValue), 1)

	_, ok := in.Lookup(value.MustRequirement(value.PresentValue, pos, usd))
	assert.True(t, ok)
	_, ok = in.Lookup(value.MustRequirement(value.PresentValue, pos, value.NewProperties().With(value.PropertyCurrency, "EUR").MustBuild()))
	assert.False(t, ok)

	cctx := &registry.CompilationContext{Params: map[string]string{"curve": "OIS"}}
	assert.Equal(t, "OIS", cctx.Param("curve", "LIBOR"))
	assert.Equal(t, "x", cctx.Param("missing", "x"))
	var nilCtx *registry.CompilationContext
	assert.Equal(t, "d", nilCtx.Param("any", "d"))
}
