package dispatcher

import (
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/valuegrid/internal/job"
)

var (
	ErrQueueFull   = errors.New("job queue full")
	ErrQueueClosed = errors.New("job queue closed")
)

// Queue is a bounded job queue feeding the workers of one node.
type Queue struct {
	ch        chan *job.CalculationJob
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan *job.CalculationJob, capacity), done: make(chan struct{})}
}

// TryPublish enqueues a job without blocking.
func (q *Queue) TryPublish(j *job.CalculationJob) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish enqueues a job, waiting for space until ctx is done.
func (q *Queue) Publish(ctx context.Context, j *job.CalculationJob) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- j:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops the queue from accepting new jobs and stops its consumers.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Run consumes jobs until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(*job.CalculationJob)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case j := <-q.ch:
			handler(j)
		}
	}
}
