package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/scheduler"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// ResultValue is the outcome of one requested requirement.
type ResultValue struct {
	Requirement value.Requirement
	// Spec is the specification chosen to satisfy Requirement. It is zero
	// when the requirement was unsatisfiable.
	Spec  value.Specification
	Value cty.Value
	Err   error
}

// CycleResult is everything a cycle computed.
type CycleResult struct {
	CycleID       uuid.UUID
	View          string
	ValuationTime time.Time
	Duration      time.Duration
	// States holds the final state of each calculation configuration.
	States map[string]scheduler.State
	// Values holds the results of each calculation configuration, in the
	// order the requirements were requested.
	Values map[string][]ResultValue
}

// Succeeded reports whether every calculation configuration completed and
// every requested value was computed.
func (r *CycleResult) Succeeded() bool {
	for _, state := range r.States {
		if state != scheduler.StateCompleted {
			return false
		}
	}
	for _, values := range r.Values {
		for _, v := range values {
			if v.Err != nil {
				return false
			}
		}
	}
	return true
}

// Lookup returns the result for req in calcConfig.
func (r *CycleResult) Lookup(calcConfig string, req value.Requirement) (ResultValue, bool) {
	for _, v := range r.Values[calcConfig] {
		if v.Requirement.Key() == req.Key() {
			return v, true
		}
	}
	return ResultValue{}, false
}

// Cycle is a handle on a running view computation cycle.
type Cycle struct {
	id     uuid.UUID
	view   string
	cancel context.CancelFunc
	done   chan struct{}
	result *CycleResult
}

// ID returns the cycle id.
func (c *Cycle) ID() uuid.UUID { return c.id }

// View returns the name of the view being computed.
func (c *Cycle) View() string { return c.view }

// Done is closed once the result is available.
func (c *Cycle) Done() <-chan struct{} { return c.done }

// Cancel stops the cycle. Outstanding jobs are abandoned and the affected
// calculation configurations end as cancelled.
func (c *Cycle) Cancel() { c.cancel() }

// WaitForResult waits up to timeout for the cycle to finish. It returns
// false if the cycle is still running.
func (c *Cycle) WaitForResult(timeout time.Duration) (*CycleResult, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return c.result, true
	case <-timer.C:
		return nil, false
	}
}

// Wait blocks until the cycle finishes or ctx is done.
func (c *Cycle) Wait(ctx context.Context) (*CycleResult, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cycle) finish(result *CycleResult) {
	c.result = result
	close(c.done)
}
