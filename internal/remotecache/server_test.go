package remotecache

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/cache"
	"github.com/specialistvlad/valuegrid/internal/inmemorystore"
	"github.com/specialistvlad/valuegrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestServer_Handle(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := inmemorystore.New()
	s := NewServer(ctx, store)
	t.Cleanup(s.Close)
	cycle := uuid.New().String()

	tests := []struct {
		name string
		req  Request
		want Response
	}{
		{
			name: "miss",
			req:  Request{ID: "1", Op: OpGet, Cycle: cycle, Key: "pv"},
			want: Response{ID: "1", Status: StatusNotFound},
		},
		{
			name: "put",
			req:  Request{ID: "2", Op: OpPut, Cycle: cycle, Key: "pv", Data: encode([]byte("42"))},
			want: Response{ID: "2", Status: StatusAck},
		},
		{
			name: "hit",
			req:  Request{ID: "3", Op: OpGet, Cycle: cycle, Key: "pv"},
			want: Response{ID: "3", Status: StatusFound, Data: encode([]byte("42"))},
		},
		{
			name: "purge",
			req:  Request{ID: "4", Op: OpPurge, Cycle: cycle},
			want: Response{ID: "4", Status: StatusAck},
		},
		{
			name: "miss after purge",
			req:  Request{ID: "5", Op: OpGet, Cycle: cycle, Key: "pv"},
			want: Response{ID: "5", Status: StatusNotFound},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Handle(ctx, tt.req))
		})
	}

	t.Run("errors", func(t *testing.T) {
		resp := s.Handle(ctx, Request{ID: "6", Op: OpGet, Cycle: "not-a-uuid"})
		assert.Equal(t, StatusError, resp.Status)
		assert.Contains(t, resp.Error, "invalid cycle id")

		resp = s.Handle(ctx, Request{ID: "7", Op: "DELETE", Cycle: cycle})
		assert.Equal(t, StatusError, resp.Status)
		assert.Equal(t, `unknown operation "DELETE"`, resp.Error)

		resp = s.Handle(ctx, Request{ID: "8", Op: OpPut, Cycle: cycle, Key: "k", Data: "%%%"})
		assert.Equal(t, StatusError, resp.Status)
	})
}

func TestParseRequest(t *testing.T) {
	req, err := parseRequest(map[string]any{"id": "x", "op": "GET", "cycle": "c", "key": "k"})
	require.NoError(t, err)
	assert.Equal(t, Request{ID: "x", Op: OpGet, Cycle: "c", Key: "k"}, req)
}

// TestClient_SharedRemoteStore runs two managers with separate local tiers
// against one server over a real socket.io connection.
func TestClient_SharedRemoteStore(t *testing.T) {
	ctx, _ := testutil.Context(t)
	backing := inmemorystore.New()
	s := NewServer(ctx, backing)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})

	dial := func() *Client {
		c, err := Dial(ctx, ts.URL+"/socket.io/", 5*time.Second)
		require.NoError(t, err)
		t.Cleanup(c.Close)
		return c
	}
	first := cache.NewManager(inmemorystore.New(), cache.WithRemote(dial()))
	second := cache.NewManager(inmemorystore.New(), cache.WithRemote(dial()))

	cycle := uuid.New()
	spec := testSpec()
	require.NoError(t, first.ForCycle(cycle, "default").PutValue(ctx, spec, cty.NumberIntVal(7)))
	assert.Equal(t, 1, backing.Len(cycle))

	got, ok, err := second.ForCycle(cycle, "default").GetValue(ctx, spec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equals(cty.NumberIntVal(7)).True())

	second.ReleaseCycle(ctx, cycle)
	assert.Equal(t, 0, backing.Len(cycle))
}

func TestConnectError(t *testing.T) {
	refused := errors.New("refused")
	tests := []struct {
		name string
		args []any
		want string
	}{
		{name: "no arguments", args: nil, want: "connection refused without a reason"},
		{name: "error argument", args: []any{refused}, want: "refused"},
		{name: "other argument", args: []any{map[string]any{"message": "bad auth"}}, want: "map[message:bad auth]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := connectError(tc.args...)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
	assert.ErrorIs(t, connectError(refused), refused)
}
