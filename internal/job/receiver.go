package job

import (
	"context"
	"sync"
	"time"
)

// ResultReceiver is notified when a job result arrives.
type ResultReceiver interface {
	ResultReceived(result *CalculationJobResult)
}

// ResultReceiverFunc adapts a function to ResultReceiver.
type ResultReceiverFunc func(result *CalculationJobResult)

func (f ResultReceiverFunc) ResultReceived(result *CalculationJobResult) { f(result) }

// Receiver records the first result delivered to it and wakes every waiter.
// Later deliveries are ignored.
type Receiver struct {
	once   sync.Once
	done   chan struct{}
	result *CalculationJobResult
}

var _ ResultReceiver = (*Receiver)(nil)

// NewReceiver creates a Receiver with no result.
func NewReceiver() *Receiver {
	return &Receiver{done: make(chan struct{})}
}

// ResultReceived stores result if it is the first one.
func (r *Receiver) ResultReceived(result *CalculationJobResult) {
	r.once.Do(func() {
		r.result = result
		close(r.done)
	})
}

// Done is closed once a result has been received.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// Result returns the received result without blocking.
func (r *Receiver) Result() (*CalculationJobResult, bool) {
	select {
	case <-r.done:
		return r.result, true
	default:
		return nil, false
	}
}

// WaitForResult blocks until a result arrives or timeout elapses. An
// elapsed timeout is reported as (nil, false), not as an error.
func (r *Receiver) WaitForResult(timeout time.Duration) (*CalculationJobResult, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return r.result, true
	case <-timer.C:
		return nil, false
	}
}

// Wait blocks until a result arrives or ctx is done.
func (r *Receiver) Wait(ctx context.Context) (*CalculationJobResult, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
