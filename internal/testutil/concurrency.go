package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// ExecutionRecord holds the start and end times of one invocation.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether r and other ran at the same time.
func (r *ExecutionRecord) Overlaps(other *ExecutionRecord) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// SleeperFunction is a shared, self-contained function for concurrency
// tests. It sleeps on every invocation and records when it ran, keyed by
// target id.
type SleeperFunction struct {
	FnID     string
	Type     target.Type
	Produces string

	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

var _ registry.Function = (*SleeperFunction)(nil)

// NewSleeperFunction creates a sleeper producing produces on targets of typ.
// completionChan, when not nil, receives the target id of each finished
// invocation.
func NewSleeperFunction(id string, typ target.Type, produces string, completionChan chan<- string, sleep time.Duration) *SleeperFunction {
	return &SleeperFunction{
		FnID:           id,
		Type:           typ,
		Produces:       produces,
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

func (f *SleeperFunction) ID() string              { return f.FnID }
func (f *SleeperFunction) TargetType() target.Type { return f.Type }

func (f *SleeperFunction) CanApplyTo(*registry.CompilationContext, target.Target) bool { return true }

func (f *SleeperFunction) Requirements(*registry.CompilationContext, target.Target) ([]value.Requirement, error) {
	return nil, nil
}

func (f *SleeperFunction) Results(_ *registry.CompilationContext, t target.Target) []value.Specification {
	return []value.Specification{{Name: f.Produces, Target: t.Spec(), Properties: value.None, FunctionID: f.FnID}}
}

func (f *SleeperFunction) Execute(ctx context.Context, _ *registry.ExecutionContext, t target.Target, _ registry.Inputs, desired []value.Specification) ([]value.ComputedValue, error) {
	startTime := time.Now()
	select {
	case <-time.After(f.sleepDuration):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	endTime := time.Now()

	id := t.Spec().ID.String()
	f.mu.Lock()
	f.ExecutionTimes[id] = &ExecutionRecord{Start: startTime, End: endTime}
	f.mu.Unlock()

	if f.completionChan != nil {
		f.completionChan <- id
	}

	out := make([]value.ComputedValue, len(desired))
	for i, spec := range desired {
		out[i] = value.ComputedValue{Spec: spec, Value: cty.True}
	}
	return out, nil
}

// Record returns the execution record of the invocation on id.
func (f *SleeperFunction) Record(id string) (*ExecutionRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.ExecutionTimes[id]
	return r, ok
}
