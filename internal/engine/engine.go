package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/specialistvlad/valuegrid/internal/cache"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/dag"
	"github.com/specialistvlad/valuegrid/internal/job"
	"github.com/specialistvlad/valuegrid/internal/metrics"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/resolver"
	"github.com/specialistvlad/valuegrid/internal/scheduler"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"
)

// ErrNotComputed is reported for a satisfiable requirement whose value was
// not produced during the cycle.
var ErrNotComputed = errors.New("value was not computed")

// Config tunes graph execution.
type Config struct {
	MinJobItems int
	MaxJobItems int
	// CycleTimeout bounds the execution of each calculation configuration;
	// zero means no limit.
	CycleTimeout time.Duration
}

// Deps are the services an Engine runs on.
type Deps struct {
	Registry   *registry.Registry
	Resolver   resolver.TargetResolver
	Dispatcher scheduler.Dispatcher
	Caches     *cache.Manager
	// Metrics may be nil.
	Metrics *metrics.Metrics
	Config  Config
}

// Engine runs view computation cycles.
type Engine struct {
	registry  *registry.Registry
	resolver  resolver.TargetResolver
	caches    *cache.Manager
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
	config    Config
}

// New creates an engine from its dependencies.
func New(d Deps) (*Engine, error) {
	var result *multierror.Error
	if d.Registry == nil {
		result = multierror.Append(result, errors.New("engine requires a function registry"))
	}
	if d.Resolver == nil {
		result = multierror.Append(result, errors.New("engine requires a target resolver"))
	}
	if d.Dispatcher == nil {
		result = multierror.Append(result, errors.New("engine requires a job dispatcher"))
	}
	if d.Caches == nil {
		result = multierror.Append(result, errors.New("engine requires a cache manager"))
	}
	if d.Config.MinJobItems < 0 || d.Config.MaxJobItems < 0 {
		result = multierror.Append(result, fmt.Errorf("job item bounds must not be negative, got min=%d max=%d", d.Config.MinJobItems, d.Config.MaxJobItems))
	}
	if d.Config.MaxJobItems > 0 && d.Config.MinJobItems > d.Config.MaxJobItems {
		result = multierror.Append(result, fmt.Errorf("min_job_items (%d) exceeds max_job_items (%d)", d.Config.MinJobItems, d.Config.MaxJobItems))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	partitioner := scheduler.Partitioner{MinJobItems: d.Config.MinJobItems, MaxJobItems: d.Config.MaxJobItems}
	return &Engine{
		registry:  d.Registry,
		resolver:  d.Resolver,
		caches:    d.Caches,
		metrics:   d.Metrics,
		scheduler: scheduler.New(partitioner, d.Dispatcher, d.Metrics),
		config:    d.Config,
	}, nil
}

// SubmitOption customizes a single cycle.
type SubmitOption func(*submission)

type submission struct {
	valuationTime time.Time
}

// WithValuationTime sets the valuation time functions observe. It defaults
// to the submission time.
func WithValuationTime(t time.Time) SubmitOption {
	return func(s *submission) { s.valuationTime = t }
}

// Submit validates view and starts a cycle computing it. The cycle runs
// until it finishes, ctx is cancelled or Cycle.Cancel is called.
func (e *Engine) Submit(ctx context.Context, view *ViewDefinition, opts ...SubmitOption) (*Cycle, error) {
	if view == nil {
		return nil, fmt.Errorf("%w: view is nil", ErrInvalidView)
	}
	if err := view.Validate(); err != nil {
		return nil, err
	}
	s := submission{valuationTime: time.Now()}
	for _, opt := range opts {
		opt(&s)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Cycle{id: uuid.New(), view: view.Name, cancel: cancel, done: make(chan struct{})}
	ctxlog.FromContext(ctx).Debug("Cycle submitted.", "cycle_id", c.id, "view", view.Name, "calc_configs", len(view.CalcConfigs))

	go func() {
		defer cancel()
		c.finish(e.run(ctx, c.id, view, s.valuationTime))
	}()
	return c, nil
}

// RunCycle submits view and blocks until the cycle finishes or ctx is done.
func (e *Engine) RunCycle(ctx context.Context, view *ViewDefinition, opts ...SubmitOption) (*CycleResult, error) {
	c, err := e.Submit(ctx, view, opts...)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx)
}

func (e *Engine) run(ctx context.Context, cycleID uuid.UUID, view *ViewDefinition, valuationTime time.Time) *CycleResult {
	logger := ctxlog.FromContext(ctx).With("cycle_id", cycleID, "view", view.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	start := time.Now()

	result := &CycleResult{
		CycleID:       cycleID,
		View:          view.Name,
		ValuationTime: valuationTime,
		States:        make(map[string]scheduler.State, len(view.CalcConfigs)),
		Values:        make(map[string][]ResultValue, len(view.CalcConfigs)),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, cc := range view.CalcConfigs {
		g.Go(func() error {
			state, values := e.runCalcConfig(ctx, cycleID, valuationTime, cc)
			mu.Lock()
			defer mu.Unlock()
			result.States[cc.Name] = state
			result.Values[cc.Name] = values
			return nil
		})
	}
	_ = g.Wait()

	e.caches.ReleaseCycle(context.WithoutCancel(ctx), cycleID)
	result.Duration = time.Since(start)
	logger.Info("✅ Cycle finished.", "duration", result.Duration, "succeeded", result.Succeeded())
	return result
}

func (e *Engine) runCalcConfig(ctx context.Context, cycleID uuid.UUID, valuationTime time.Time, cc CalcConfig) (scheduler.State, []ResultValue) {
	logger := ctxlog.FromContext(ctx).With("calc_config", cc.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	states := scheduler.NewStateMachine()

	values := make([]ResultValue, len(cc.Requirements))
	b := dag.NewBuilder(e.registry, e.resolver, cc.Name, dag.WithParams(cc.Params))
	for i, req := range cc.Requirements {
		values[i].Requirement = req
		_, spec, err := b.AddTarget(ctx, req)
		if err != nil {
			logger.Warn("Requirement cannot be satisfied.", "requirement", req.String(), "error", err)
			values[i].Err = err
			continue
		}
		values[i].Spec = spec
	}

	g, err := b.Graph(ctx)
	if err != nil {
		_ = states.Transition(scheduler.StateFailed)
		return states.State(), failAll(values, fmt.Errorf("build graph: %w", err))
	}
	e.metrics.GraphBuilt(cc.Name, g.Size(), len(g.Failures()))
	if err := ctx.Err(); err != nil {
		_ = states.Transition(scheduler.StateCancelled)
		return states.State(), failAll(values, err)
	}

	report, execErr := e.scheduler.Execute(ctx, scheduler.Run{
		CycleID:       cycleID,
		CalcConfig:    cc.Name,
		ValuationTime: valuationTime,
		Timeout:       e.config.CycleTimeout,
		States:        states,
	}, g)
	if execErr != nil {
		logger.Warn("Graph execution did not complete.", "state", states.State().String(), "error", execErr)
	}

	causes := itemFailures(report)
	cycleCache := e.caches.ForCycle(cycleID, cc.Name)
	for i := range values {
		rv := &values[i]
		if rv.Err != nil {
			continue
		}
		v, ok, err := cycleCache.GetValue(ctx, rv.Spec)
		switch {
		case err != nil:
			rv.Err = err
		case ok:
			rv.Value = v
		default:
			cause, found := causes[rv.Spec.Key()]
			if !found {
				cause = execErr
			}
			if cause != nil {
				rv.Err = fmt.Errorf("%w: %s: %w", ErrNotComputed, rv.Spec, cause)
			} else {
				rv.Err = fmt.Errorf("%w: %s", ErrNotComputed, rv.Spec)
			}
		}
	}
	return states.State(), values
}

// itemFailures maps each output spec key of a failed item to its error.
func itemFailures(report *scheduler.Report) map[string]error {
	causes := make(map[string]error)
	if report == nil {
		return causes
	}
	for key, err := range report.Unavailable {
		causes[key] = err
	}
	for _, res := range report.Results {
		for _, item := range res.Items {
			if item.Status == job.StatusSuccess {
				continue
			}
			err := item.Err
			if err == nil {
				err = errors.New(item.Status.String())
			}
			for _, out := range item.Item.Outputs {
				causes[out.Key()] = err
			}
		}
	}
	return causes
}

func failAll(values []ResultValue, err error) []ResultValue {
	for i := range values {
		if values[i].Err == nil {
			values[i].Err = err
			values[i].Value = cty.NilVal
		}
	}
	return values
}
