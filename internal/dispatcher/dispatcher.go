// Package dispatcher sends calculation jobs to calculation nodes and routes
// their results back to the receivers waiting for them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/calcnode"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/job"
	"github.com/specialistvlad/valuegrid/internal/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNodeExecutionFailure is the Failure of a job that every attempt
	// failed to run.
	ErrNodeExecutionFailure = errors.New("job could not be executed on any calculation node")
	// ErrStopped is the Failure of jobs still pending when the dispatcher stops.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrNoNodes is returned when the dispatcher has no calculation nodes.
	ErrNoNodes = errors.New("no calculation nodes available")
)

// Config tunes a Dispatcher.
type Config struct {
	// MaxRetries bounds re-dispatches after node failures.
	MaxRetries int
	// QueueSize is the capacity of each node's queue.
	QueueSize int
}

type pendingJob struct {
	cycleID  uuid.UUID
	receiver job.ResultReceiver
}

type worker struct {
	node  calcnode.Node
	queue *Queue
}

// Dispatcher owns one queue per calculation node and Concurrency() workers
// per queue.
type Dispatcher struct {
	cfg     Config
	workers []*worker
	metrics *metrics.Metrics
	next    atomic.Uint64

	mu      sync.Mutex
	pending map[uuid.UUID]pendingJob

	group   *errgroup.Group
	stop    context.CancelFunc
	started bool
}

// New creates a dispatcher over nodes. m may be nil.
func New(cfg Config, m *metrics.Metrics, nodes ...calcnode.Node) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	d := &Dispatcher{cfg: cfg, metrics: m, pending: make(map[uuid.UUID]pendingJob)}
	for _, n := range nodes {
		d.workers = append(d.workers, &worker{node: n, queue: NewQueue(cfg.QueueSize)})
	}
	return d
}

// Start launches the workers. They run until Stop is called or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	if len(d.workers) == 0 {
		return ErrNoNodes
	}
	logger := ctxlog.FromContext(ctx)
	ctx, d.stop = context.WithCancel(ctx)
	d.group, ctx = errgroup.WithContext(ctx)

	for _, w := range d.workers {
		for i := 0; i < w.node.Concurrency(); i++ {
			d.group.Go(func() error {
				wctx := ctxlog.WithLogger(ctx, logger.With("node_id", w.node.ID(), "worker_id", i))
				ctxlog.FromContext(wctx).Debug("Worker started.")
				w.queue.Run(wctx, func(j *job.CalculationJob) { d.execute(wctx, w, j) })
				ctxlog.FromContext(wctx).Debug("Worker finished.")
				return nil
			})
		}
	}
	d.started = true
	logger.Debug("Dispatcher started.", "nodes", len(d.workers))
	return nil
}

// Stop closes every queue, waits for running jobs and fails the jobs that
// were still pending.
func (d *Dispatcher) Stop() error {
	if !d.started {
		return nil
	}
	for _, w := range d.workers {
		w.queue.Close()
	}
	d.stop()
	err := d.group.Wait()

	d.mu.Lock()
	abandoned := d.pending
	d.pending = make(map[uuid.UUID]pendingJob)
	d.mu.Unlock()
	for jobID, p := range abandoned {
		p.receiver.ResultReceived(&job.CalculationJobResult{
			Spec:    job.Spec{JobID: jobID, CycleID: p.cycleID},
			Failure: ErrStopped,
		})
	}
	return err
}

// Dispatch queues j and returns immediately. The receiver is notified
// exactly once, unless the job's cycle is cancelled first.
func (d *Dispatcher) Dispatch(ctx context.Context, j *job.CalculationJob, receiver job.ResultReceiver) error {
	d.mu.Lock()
	d.pending[j.Spec.JobID] = pendingJob{cycleID: j.Spec.CycleID, receiver: receiver}
	d.mu.Unlock()

	if err := d.enqueue(ctx, j, true); err != nil {
		d.mu.Lock()
		delete(d.pending, j.Spec.JobID)
		d.mu.Unlock()
		return err
	}
	ctxlog.FromContext(ctx).Debug("Job dispatched.", "job_id", j.Spec.JobID, "items", len(j.Items))
	return nil
}

// enqueue prefers nodes the job has not failed on, starting from the next
// node in round-robin order. When every queue is full it waits for space
// only if wait is set.
func (d *Dispatcher) enqueue(ctx context.Context, j *job.CalculationJob, wait bool) error {
	if len(d.workers) == 0 {
		return ErrNoNodes
	}
	start := int(d.next.Add(1) % uint64(len(d.workers)))
	var fallback *worker
	for i := range d.workers {
		w := d.workers[(start+i)%len(d.workers)]
		if j.Excludes(w.node.ID()) {
			continue
		}
		if fallback == nil {
			fallback = w
		}
		if err := w.queue.TryPublish(j); err == nil {
			return nil
		}
	}
	if fallback == nil {
		// Every node has failed this job once; try them again.
		fallback = d.workers[start]
		if err := fallback.queue.TryPublish(j); err == nil {
			return nil
		}
	}
	if !wait {
		return ErrQueueFull
	}
	return fallback.queue.Publish(ctx, j)
}

// Deliver routes result to the receiver of its job. Results for unknown or
// abandoned jobs are discarded.
func (d *Dispatcher) Deliver(ctx context.Context, result *job.CalculationJobResult) {
	d.mu.Lock()
	p, ok := d.pending[result.Spec.JobID]
	delete(d.pending, result.Spec.JobID)
	d.mu.Unlock()

	if !ok {
		ctxlog.FromContext(ctx).Debug("Discarding result for unknown job.", "job_id", result.Spec.JobID)
		return
	}
	d.metrics.JobCompleted(result)
	p.receiver.ResultReceived(result)
}

// Cancel abandons every pending job of the cycle. Their receivers are not
// notified and queued jobs are skipped.
func (d *Dispatcher) Cancel(cycleID uuid.UUID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for jobID, p := range d.pending {
		if p.cycleID == cycleID {
			delete(d.pending, jobID)
			n++
		}
	}
	return n
}

// Abandon forgets the given jobs. Their receivers are not notified and
// queued jobs are skipped.
func (d *Dispatcher) Abandon(jobIDs ...uuid.UUID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, id := range jobIDs {
		if _, ok := d.pending[id]; ok {
			delete(d.pending, id)
			n++
		}
	}
	return n
}

// Pending returns the number of jobs awaiting a result.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) isPending(jobID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[jobID]
	return ok
}

func (d *Dispatcher) execute(ctx context.Context, w *worker, j *job.CalculationJob) {
	logger := ctxlog.FromContext(ctx).With("job_id", j.Spec.JobID)
	if !d.isPending(j.Spec.JobID) {
		logger.Debug("Skipping abandoned job.")
		return
	}

	started := time.Now()
	result, err := w.node.Execute(ctx, j)
	if err == nil {
		d.Deliver(ctx, result)
		return
	}

	logger.Warn("Calculation node failed to execute job.", "attempt", j.Attempt, "error", err)
	if ctx.Err() == nil && j.Attempt < d.cfg.MaxRetries {
		retry := j.Retry(w.node.ID())
		if rerr := d.enqueue(ctx, retry, false); rerr == nil {
			d.metrics.JobRetried()
			logger.Debug("Job re-dispatched.", "attempt", retry.Attempt)
			return
		}
	}
	d.Deliver(ctx, &job.CalculationJobResult{
		Spec:     j.Spec,
		NodeID:   w.node.ID(),
		Started:  started,
		Duration: time.Since(started),
		Failure:  fmt.Errorf("%w after %d attempt(s): %w", ErrNodeExecutionFailure, j.Attempt+1, err),
	})
}
