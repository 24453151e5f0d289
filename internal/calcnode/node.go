// Package calcnode executes calculation jobs. A node reads the inputs of each
// item from the view computation cache, invokes the function and writes the
// outputs back.
package calcnode

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/specialistvlad/valuegrid/internal/cache"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/job"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/resolver"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
)

// ErrNodeFailure marks errors of the node itself rather than of the
// functions it runs. Jobs failing this way may be retried elsewhere.
var ErrNodeFailure = errors.New("calculation node failure")

// Node executes calculation jobs.
type Node interface {
	ID() string
	// Concurrency is the number of jobs the node runs at once.
	Concurrency() int
	// Execute runs every item of j. A non-nil error means the node could not
	// run the job; function failures are reported per item instead.
	Execute(ctx context.Context, j *job.CalculationJob) (*job.CalculationJobResult, error)
}

// FunctionInvocationError reports a function that returned an error,
// panicked, or did not produce what it was asked for.
type FunctionInvocationError struct {
	FunctionID string
	Target     target.Specification
	Err        error
	// Panic holds the recovered value when the function panicked.
	Panic any
}

func (e *FunctionInvocationError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("function %s on %s panicked: %v", e.FunctionID, e.Target, e.Panic)
	}
	return fmt.Sprintf("function %s on %s failed: %v", e.FunctionID, e.Target, e.Err)
}

func (e *FunctionInvocationError) Unwrap() error { return e.Err }

// LocalNode runs jobs in-process.
type LocalNode struct {
	id          string
	concurrency int
	registry    *registry.Registry
	resolver    resolver.TargetResolver
	caches      *cache.Manager
}

var _ Node = (*LocalNode)(nil)

// NewLocalNode creates a node that looks functions up in reg and reads and
// writes values through caches.
func NewLocalNode(id string, concurrency int, reg *registry.Registry, res resolver.TargetResolver, caches *cache.Manager) *LocalNode {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalNode{id: id, concurrency: concurrency, registry: reg, resolver: res, caches: caches}
}

func (n *LocalNode) ID() string       { return n.id }
func (n *LocalNode) Concurrency() int { return n.concurrency }

// Execute runs the items in order. A failed item never stops its siblings;
// items that depend on it see missing inputs.
func (n *LocalNode) Execute(ctx context.Context, j *job.CalculationJob) (*job.CalculationJobResult, error) {
	logger := ctxlog.FromContext(ctx).With("node_id", n.id, "job_id", j.Spec.JobID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Node picked up job for execution.", "items", len(j.Items), "attempt", j.Attempt)

	c := n.caches.ForCycle(j.Spec.CycleID, j.Spec.CalcConfig)
	ectx := &registry.ExecutionContext{
		CycleID:       j.Spec.CycleID,
		CalcConfig:    j.Spec.CalcConfig,
		ValuationTime: j.Spec.ValuationTime,
	}

	result := &job.CalculationJobResult{Spec: j.Spec, NodeID: n.id, Started: time.Now()}
	for _, item := range j.Items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNodeFailure, err)
		}
		ir := n.executeItem(ctx, c, ectx, item)
		if ir.Status != job.StatusSuccess {
			logger.Warn("Job item did not succeed.", "function", item.FunctionID, "target", item.Target.String(),
				"status", ir.Status.String(), "error", ir.Err)
		}
		result.Items = append(result.Items, ir)
	}
	result.Duration = time.Since(result.Started)

	logger.Debug("Node finished job.", "duration", result.Duration)
	return result, nil
}

func (n *LocalNode) executeItem(ctx context.Context, c *cache.ViewComputationCache, ectx *registry.ExecutionContext, item job.Item) job.ItemResult {
	ir := job.ItemResult{Item: item, Status: job.StatusFunctionFailed}
	fail := func(err error) job.ItemResult {
		ir.Err = &FunctionInvocationError{FunctionID: item.FunctionID, Target: item.Target, Err: err}
		return ir
	}

	fn, ok := n.registry.Function(item.FunctionID)
	if !ok {
		return fail(fmt.Errorf("function is not registered on node %s", n.id))
	}
	t, err := n.resolver.Resolve(ctx, item.Target)
	if err != nil {
		return fail(err)
	}

	inputs := make([]value.ComputedValue, 0, len(item.Inputs))
	var missing []string
	for _, spec := range item.Inputs {
		v, found, err := c.GetValue(ctx, spec)
		if err != nil {
			return fail(err)
		}
		if !found {
			missing = append(missing, spec.String())
			continue
		}
		inputs = append(inputs, value.ComputedValue{Spec: spec, Value: v})
	}
	if len(missing) > 0 {
		ir.Status = job.StatusMissingInputs
		ir.Err = fmt.Errorf("%d input(s) unavailable: %v", len(missing), missing)
		return ir
	}

	computed, err := invoke(ctx, fn, ectx, t, registry.NewInputs(inputs...), item.Outputs)
	if err != nil {
		ir.Err = err
		return ir
	}

	produced := make(map[string]value.ComputedValue, len(computed))
	for _, cv := range computed {
		produced[cv.Spec.Key()] = cv
	}
	for _, spec := range item.Outputs {
		cv, ok := produced[spec.Key()]
		if !ok {
			return fail(fmt.Errorf("did not produce %s", spec))
		}
		if err := c.PutValue(ctx, spec, cv.Value); err != nil {
			return fail(err)
		}
		ir.Outputs = append(ir.Outputs, spec)
	}
	ir.Status = job.StatusSuccess
	return ir
}

// invoke calls the function, converting a panic into a FunctionInvocationError.
func invoke(ctx context.Context, fn registry.Function, ectx *registry.ExecutionContext, t target.Target, inputs registry.Inputs, desired []value.Specification) (out []value.ComputedValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Function panicked.", "function", fn.ID(), "panic", r, "stack", string(debug.Stack()))
			out = nil
			err = &FunctionInvocationError{FunctionID: fn.ID(), Target: t.Spec(), Panic: r}
		}
	}()

	out, err = fn.Execute(ctx, ectx, t, inputs, desired)
	if err != nil {
		return nil, &FunctionInvocationError{FunctionID: fn.ID(), Target: t.Spec(), Err: err}
	}
	return out, nil
}
