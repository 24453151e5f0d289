package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/cache"
	"github.com/specialistvlad/valuegrid/internal/codec"
	"github.com/specialistvlad/valuegrid/internal/inmemorystore"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/testutil"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type failingStore struct{}

func (failingStore) Get(context.Context, uuid.UUID, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (failingStore) Put(context.Context, uuid.UUID, string, []byte) error {
	return errors.New("connection refused")
}
func (failingStore) Purge(context.Context, uuid.UUID) error { return errors.New("connection refused") }

type countingObserver struct {
	mu      sync.Mutex
	lookups map[string]int
}

func (o *countingObserver) CacheLookup(tier string, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lookups == nil {
		o.lookups = map[string]int{}
	}
	key := tier + ":miss"
	if hit {
		key = tier + ":hit"
	}
	o.lookups[key]++
}

func pvSpec() value.Specification {
	return value.Specification{
		Name:       value.PresentValue,
		Target:     target.NewSpecification(target.TypePosition, target.MustParseUniqueID("POS~1")),
		Properties: value.NewProperties().With(value.PropertyCurrency, "USD").MustBuild(),
		FunctionID: "pv",
	}
}

func TestViewComputationCache_RoundTrip(t *testing.T) {
	ctx, _ := testutil.Context(t)
	m := cache.NewManager(inmemorystore.New())
	c := m.ForCycle(uuid.New(), "default")

	_, ok, err := c.GetValue(ctx, pvSpec())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutValue(ctx, pvSpec(), cty.NumberFloatVal(42.5)))
	got, ok, err := c.GetValue(ctx, pvSpec())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equals(cty.NumberFloatVal(42.5)).True())
}

func TestViewComputationCache_SharedRemote(t *testing.T) {
	ctx, _ := testutil.Context(t)
	remote := inmemorystore.New()
	cycle := uuid.New()

	writerLocal := inmemorystore.New()
	writer := cache.NewManager(writerLocal, cache.WithRemote(remote), cache.WithCodec(codec.Default(), codec.TagJSON))
	obs := &countingObserver{}
	readerLocal := inmemorystore.New()
	reader := cache.NewManager(readerLocal, cache.WithRemote(remote), cache.WithObserver(obs))

	require.NoError(t, writer.ForCycle(cycle, "default").PutValue(ctx, pvSpec(), cty.StringVal("hello")))

	got, ok, err := reader.ForCycle(cycle, "default").GetValue(ctx, pvSpec())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.AsString())
	assert.Equal(t, 1, readerLocal.Len(cycle), "remote hit is written back locally")

	_, ok, err = reader.ForCycle(cycle, "default").GetValue(ctx, pvSpec())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"local:miss": 1, "remote:hit": 1, "local:hit": 1}, obs.lookups)

	// Other calculation configurations and cycles do not see the value.
	_, ok, _ = reader.ForCycle(cycle, "other").GetValue(ctx, pvSpec())
	assert.False(t, ok)
	_, ok, _ = reader.ForCycle(uuid.New(), "default").GetValue(ctx, pvSpec())
	assert.False(t, ok)

	writer.ReleaseCycle(ctx, cycle)
	assert.Equal(t, 0, remote.Len(cycle))
	assert.Equal(t, 0, writerLocal.Len(cycle))
}

func TestViewComputationCache_RemoteUnavailable(t *testing.T) {
	ctx, logs := testutil.Context(t)
	m := cache.NewManager(inmemorystore.New(), cache.WithRemote(failingStore{}))
	cycle := uuid.New()
	c := m.ForCycle(cycle, "default")

	require.NoError(t, c.PutValue(ctx, pvSpec(), cty.True))
	got, ok, err := c.GetValue(ctx, pvSpec())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.True())

	_, ok = m.ForCycle(cycle, "other").Get(ctx, pvSpec())
	assert.False(t, ok)
	assert.Contains(t, logs.String(), cache.ErrCacheUnavailable.Error())

	assert.Equal(t, 1, m.ActiveCycles())
	m.ReleaseCycle(ctx, cycle)
	assert.Equal(t, 0, m.ActiveCycles())
}

func TestManager_DropsWritesAfterRelease(t *testing.T) {
	ctx, _ := testutil.Context(t)
	local, remote := inmemorystore.New(), inmemorystore.New()
	m := cache.NewManager(local, cache.WithRemote(remote))
	cycle := uuid.New()
	c := m.ForCycle(cycle, "default")

	require.NoError(t, c.PutValue(ctx, pvSpec(), cty.NumberIntVal(1)))
	m.ReleaseCycle(ctx, cycle)
	assert.True(t, m.Released(cycle))
	assert.Equal(t, 0, local.Cycles())
	assert.Equal(t, 0, remote.Cycles())

	require.NoError(t, c.PutValue(ctx, pvSpec(), cty.NumberIntVal(2)))
	require.NoError(t, m.ForCycle(cycle, "other").PutValue(ctx, pvSpec(), cty.NumberIntVal(3)))
	assert.Equal(t, 0, local.Cycles())
	assert.Equal(t, 0, remote.Cycles())
	assert.Equal(t, 0, m.ActiveCycles())

	// A remote hit for a released cycle is not written back.
	require.NoError(t, remote.Put(ctx, cycle, c.Key(pvSpec()).String(), []byte("x")))
	_, ok := c.Get(ctx, pvSpec())
	assert.True(t, ok)
	assert.Equal(t, 0, local.Cycles())

	// Other cycles are unaffected.
	other := m.ForCycle(uuid.New(), "default")
	require.NoError(t, other.PutValue(ctx, pvSpec(), cty.NumberIntVal(4)))
	assert.Equal(t, 1, local.Cycles())
}

func TestKey_String(t *testing.T) {
	k := cache.Key{CycleID: uuid.New(), CalcConfig: "default", Spec: pvSpec()}
	assert.Equal(t, "default/"+pvSpec().Key(), k.String())
}
