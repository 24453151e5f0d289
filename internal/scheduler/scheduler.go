package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/dag"
	"github.com/specialistvlad/valuegrid/internal/job"
	"github.com/specialistvlad/valuegrid/internal/metrics"
)

var (
	// ErrTimedOut is returned when jobs are still outstanding at the deadline.
	ErrTimedOut = errors.New("graph execution timed out")
	// ErrInputJobFailed is recorded for items skipped because a job they
	// depend on failed.
	ErrInputJobFailed = errors.New("input job failed")
)

// Dispatcher sends jobs to calculation nodes.
type Dispatcher interface {
	Dispatch(ctx context.Context, j *job.CalculationJob, receiver job.ResultReceiver) error
	Abandon(jobIDs ...uuid.UUID) int
}

// Run describes one graph execution.
type Run struct {
	CycleID       uuid.UUID
	CalcConfig    string
	ValuationTime time.Time
	// Timeout bounds the whole execution; zero means no limit.
	Timeout time.Duration
	States  *StateMachine
}

// Report summarizes an execution.
type Report struct {
	Jobs    int
	Results []*job.CalculationJobResult
	// Skipped counts items never dispatched because a job they depend on
	// failed as a whole.
	Skipped int
	// Unavailable maps the output keys of items that failed with their job
	// or were skipped to the reason.
	Unavailable map[string]error
}

func (r *Report) markUnavailable(f *Fragment, err error) {
	for _, n := range f.Nodes {
		for _, out := range n.Outputs {
			r.Unavailable[out.Key()] = err
		}
	}
}

// Scheduler executes graphs through a dispatcher.
type Scheduler struct {
	partitioner Partitioner
	dispatcher  Dispatcher
	metrics     *metrics.Metrics
}

// New creates a scheduler. m may be nil.
func New(p Partitioner, d Dispatcher, m *metrics.Metrics) *Scheduler {
	return &Scheduler{partitioner: p, dispatcher: d, metrics: m}
}

type completion struct {
	fragment *Fragment
	result   *job.CalculationJobResult
}

// Execute partitions g and runs its jobs, dispatching each one only after
// every job producing its inputs has completed. The run's state machine
// must be in StateBuilding and ends in a terminal state.
func (s *Scheduler) Execute(ctx context.Context, run Run, g *dag.Graph) (*Report, error) {
	logger := ctxlog.FromContext(ctx).With("cycle_id", run.CycleID, "calc_config", run.CalcConfig)
	states := run.States
	if states == nil {
		states = NewStateMachine()
	}

	fragments, err := s.partitioner.Partition(g)
	if err != nil {
		_ = states.Transition(StateFailed)
		return nil, fmt.Errorf("partition graph: %w", err)
	}
	if err := states.Transition(StateScheduled); err != nil {
		return nil, err
	}
	logger.Debug("Graph partitioned.", "nodes", g.Size(), "jobs", len(fragments))

	report := &Report{Jobs: len(fragments), Unavailable: make(map[string]error)}
	if len(fragments) == 0 {
		return report, s.finish(states, StateCompleted)
	}

	results := make(chan completion, len(fragments))
	remaining := make(map[*Fragment]int, len(fragments))
	jobIDs := make(map[*Fragment]uuid.UUID, len(fragments))
	outstanding := 0

	dispatch := func(f *Fragment) error {
		j := &job.CalculationJob{
			Spec:  job.NewSpec(run.CycleID, run.CalcConfig, run.ValuationTime),
			Items: f.Items(),
		}
		jobIDs[f] = j.Spec.JobID
		receiver := job.ResultReceiverFunc(func(r *job.CalculationJobResult) {
			results <- completion{fragment: f, result: r}
		})
		if err := s.dispatcher.Dispatch(ctx, j, receiver); err != nil {
			return fmt.Errorf("dispatch %s: %w", f, err)
		}
		outstanding++
		return nil
	}

	// skip marks every transitive dependent of a failed fragment as done
	// without running it.
	var skip func(f *Fragment)
	skip = func(f *Fragment) {
		for _, d := range f.Dependents() {
			if _, done := remaining[d]; !done {
				continue
			}
			delete(remaining, d)
			report.Skipped += len(d.Nodes)
			report.markUnavailable(d, fmt.Errorf("%w: %s", ErrInputJobFailed, f))
			skip(d)
		}
	}

	for _, f := range fragments {
		remaining[f] = len(f.inputs)
	}
	for _, f := range fragments {
		if remaining[f] == 0 {
			delete(remaining, f)
			if err := dispatch(f); err != nil {
				return report, s.abort(states, StateFailed, jobIDs, err)
			}
		}
	}
	if err := states.Transition(StateDispatched); err != nil {
		return report, err
	}

	var timeout <-chan time.Time
	if run.Timeout > 0 {
		timer := time.NewTimer(run.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	failed := false
	for outstanding > 0 {
		select {
		case c := <-results:
			outstanding--
			delete(jobIDs, c.fragment)
			report.Results = append(report.Results, c.result)
			if c.result.Failure != nil {
				failed = true
				logger.Warn("Job failed.", "job_id", c.result.Spec.JobID, "error", c.result.Failure)
				report.markUnavailable(c.fragment, c.result.Failure)
				skip(c.fragment)
				continue
			}
			for _, d := range c.fragment.Dependents() {
				if _, waiting := remaining[d]; !waiting {
					continue
				}
				remaining[d]--
				if remaining[d] == 0 {
					delete(remaining, d)
					if err := dispatch(d); err != nil {
						return report, s.abort(states, StateFailed, jobIDs, err)
					}
				}
			}
		case <-timeout:
			return report, s.abort(states, StateTimedOut, jobIDs,
				fmt.Errorf("%w after %s with %d job(s) outstanding", ErrTimedOut, run.Timeout, outstanding))
		case <-ctx.Done():
			return report, s.abort(states, StateCancelled, jobIDs, ctx.Err())
		}
	}

	final := StateCompleted
	if failed {
		final = StateFailed
	}
	logger.Debug("Graph executed.", "state", final.String(), "jobs", report.Jobs, "skipped_items", report.Skipped)
	return report, s.finish(states, final)
}

func (s *Scheduler) finish(states *StateMachine, final State) error {
	s.metrics.GraphExecuted(final.String())
	return states.Transition(final)
}

// abort abandons outstanding jobs and moves to a terminal state.
func (s *Scheduler) abort(states *StateMachine, final State, jobIDs map[*Fragment]uuid.UUID, cause error) error {
	ids := make([]uuid.UUID, 0, len(jobIDs))
	for _, id := range jobIDs {
		ids = append(ids, id)
	}
	s.dispatcher.Abandon(ids...)
	if err := s.finish(states, final); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
