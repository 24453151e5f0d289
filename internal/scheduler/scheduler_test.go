package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/dag"
	"github.com/specialistvlad/valuegrid/internal/job"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// graphOf builds a graph from "from->to" edges; every name becomes a node.
func graphOf(t *testing.T, names []string, edges ...[2]string) *dag.Graph {
	t.Helper()
	g := dag.New("default")
	for _, name := range names {
		g.AddNode(&dag.Node{
			ID:       name,
			Function: &testutil.StubFunction{FnID: "fn-" + name, Type: target.TypePrimitive},
			Target:   &target.Primitive{ID: target.MustParseUniqueID("P~" + name)},
		})
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func nodeIDs(f *Fragment) []string {
	out := make([]string, len(f.Nodes))
	for i, n := range f.Nodes {
		out[i] = n.ID
	}
	return out
}

func TestStateMachine(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, StateBuilding, m.State())

	require.NoError(t, m.Transition(StateScheduled))
	require.NoError(t, m.Transition(StateDispatched))
	err := m.Transition(StateScheduled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualError(t, err, "invalid state transition: dispatched -> scheduled")

	require.NoError(t, m.Transition(StateTimedOut))
	assert.True(t, m.State().Terminal())
	assert.ErrorIs(t, m.Transition(StateCompleted), ErrInvalidTransition)
	assert.Equal(t, []State{StateBuilding, StateScheduled, StateDispatched, StateTimedOut}, m.History())
}

func TestPartition(t *testing.T) {
	chain := func(t *testing.T) *dag.Graph {
		return graphOf(t, []string{"a", "b", "c"}, [2]string{"a", "b"}, [2]string{"b", "c"})
	}
	fanOut := func(t *testing.T) *dag.Graph {
		return graphOf(t, []string{"m", "p1", "p2", "p3"},
			[2]string{"m", "p1"}, [2]string{"m", "p2"}, [2]string{"m", "p3"})
	}

	tests := []struct {
		name  string
		graph func(t *testing.T) *dag.Graph
		p     Partitioner
		want  [][]string
	}{
		{"small graph is one job", chain, Partitioner{MinJobItems: 5, MaxJobItems: 10}, [][]string{{"a", "b", "c"}}},
		{"chain merges", chain, Partitioner{MaxJobItems: 10}, [][]string{{"a", "b", "c"}}},
		{"chain bounded by max items", chain, Partitioner{MaxJobItems: 2}, [][]string{{"a", "b"}, {"c"}}},
		{"shared inputs merge", fanOut, Partitioner{MinJobItems: 3, MaxJobItems: 10}, [][]string{{"m", "p1", "p2", "p3"}}},
		{"fan out without merging", fanOut, Partitioner{MaxJobItems: 1}, [][]string{{"m"}, {"p1"}, {"p2"}, {"p3"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragments, err := tt.p.Partition(tt.graph(t))
			require.NoError(t, err)
			got := make([][]string, len(fragments))
			for i, f := range fragments {
				got[i] = nodeIDs(f)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("empty graph", func(t *testing.T) {
		fragments, err := Partitioner{}.Partition(dag.New("default"))
		require.NoError(t, err)
		assert.Empty(t, fragments)
	})
}

// fakeDispatcher completes jobs asynchronously through fail, recording the
// order in which items were dispatched.
type fakeDispatcher struct {
	mu        sync.Mutex
	order     []string
	abandoned int
	fail      func(j *job.CalculationJob) error
	hold      bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, j *job.CalculationJob, r job.ResultReceiver) error {
	d.mu.Lock()
	for _, item := range j.Items {
		d.order = append(d.order, item.Target.ID.Value)
	}
	d.mu.Unlock()
	if d.hold {
		return nil
	}
	go func() {
		res := &job.CalculationJobResult{Spec: j.Spec}
		if d.fail != nil {
			res.Failure = d.fail(j)
		}
		r.ResultReceived(res)
	}()
	return nil
}

func (d *fakeDispatcher) Abandon(ids ...uuid.UUID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.abandoned += len(ids)
	return len(ids)
}

func TestExecute_DependencyOrder(t *testing.T) {
	ctx, _ := testutil.Context(t)
	g := graphOf(t, []string{"a", "b", "c", "d"}, [2]string{"a", "c"}, [2]string{"b", "c"}, [2]string{"c", "d"})
	d := &fakeDispatcher{}
	s := New(Partitioner{MaxJobItems: 1}, d, nil)

	states := NewStateMachine()
	report, err := s.Execute(ctx, Run{CycleID: uuid.New(), CalcConfig: "default", States: states}, g)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Jobs)
	assert.Len(t, report.Results, 4)
	assert.Equal(t, StateCompleted, states.State())

	require.Len(t, d.order, 4)
	assert.ElementsMatch(t, []string{"a", "b"}, d.order[:2])
	assert.Equal(t, []string{"c", "d"}, d.order[2:])
}

func TestExecute_FailedJobSkipsDependents(t *testing.T) {
	ctx, _ := testutil.Context(t)
	g := graphOf(t, []string{"a", "b", "c", "x"}, [2]string{"a", "b"}, [2]string{"b", "c"})
	d := &fakeDispatcher{fail: func(j *job.CalculationJob) error {
		if j.Items[0].Target.ID.Value == "a" {
			return errors.New("node down")
		}
		return nil
	}}
	s := New(Partitioner{MaxJobItems: 1}, d, nil)

	states := NewStateMachine()
	report, err := s.Execute(ctx, Run{CycleID: uuid.New(), States: states}, g)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, states.State())
	assert.Equal(t, 2, report.Skipped)
	assert.ElementsMatch(t, []string{"a", "x"}, d.order)
}

func TestExecute_TimeoutAndCancel(t *testing.T) {
	g := func(t *testing.T) *dag.Graph { return graphOf(t, []string{"a", "b"}, [2]string{"a", "b"}) }

	t.Run("timeout", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		d := &fakeDispatcher{hold: true}
		states := NewStateMachine()
		_, err := New(Partitioner{MaxJobItems: 1}, d, nil).Execute(ctx, Run{Timeout: 20 * time.Millisecond, States: states}, g(t))
		assert.ErrorIs(t, err, ErrTimedOut)
		assert.Equal(t, StateTimedOut, states.State())
		assert.Equal(t, 1, d.abandoned)
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, _ := testutil.Context(t)
		ctx, cancel := context.WithCancel(ctx)
		d := &fakeDispatcher{hold: true}
		states := NewStateMachine()
		time.AfterFunc(10*time.Millisecond, cancel)
		_, err := New(Partitioner{MaxJobItems: 1}, d, nil).Execute(ctx, Run{States: states}, g(t))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StateCancelled, states.State())
	})
}
