package dag

import (
	"context"
	"fmt"

	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/internal/resolver"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
)

// Builder compiles requirements into a Graph for one calculation
// configuration. A Builder is used by a single goroutine and discarded once
// Graph has been called.
type Builder struct {
	registry *registry.Registry
	resolver resolver.TargetResolver
	cctx     *registry.CompilationContext
	graph    *Graph

	targets     map[target.Specification]targetResult
	resolved    map[string]memo
	failedNodes map[string]memo
	// stack holds one serial per requirement or node being resolved.
	// activeReqs and activeNodes map keys to their depth in it; meeting one
	// again means a cycle.
	stack       []uint64
	serial      uint64
	activeReqs  map[string]int
	activeNodes map[string]int

	finished bool
}

type targetResult struct {
	target target.Target
	err    error
}

type resolution struct {
	node    *Node
	spec    value.Specification
	failure *ResolutionFailure
	// deps are the ascending stack depths of the in-progress entries a
	// failure ran into. A failure without deps holds in any context.
	deps []int
}

// memo is a remembered resolution. One with a guard is only valid while the
// stack entry it names is still in progress.
type memo struct {
	res         resolution
	guardDepth  int
	guardSerial uint64
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithParams sets the calculation configuration parameters visible to
// functions through the compilation context.
func WithParams(params map[string]string) BuilderOption {
	return func(b *Builder) { b.cctx.Params = params }
}

// NewBuilder creates a builder for calcConfig.
func NewBuilder(reg *registry.Registry, res resolver.TargetResolver, calcConfig string, opts ...BuilderOption) *Builder {
	b := &Builder{
		registry:    reg,
		resolver:    res,
		cctx:        &registry.CompilationContext{CalcConfig: calcConfig, Resolver: res},
		graph:       New(calcConfig),
		targets:     make(map[target.Specification]targetResult),
		resolved:    make(map[string]memo),
		failedNodes: make(map[string]memo),
		activeReqs:  make(map[string]int),
		activeNodes: make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddTarget resolves a requested requirement and records it as a terminal
// output of the graph. A failure is recorded on the graph and returned; it
// does not affect other requirements.
func (b *Builder) AddTarget(ctx context.Context, req value.Requirement) (*Node, value.Specification, error) {
	n, spec, err := b.Resolve(ctx, req)
	if err != nil {
		if f, ok := err.(*ResolutionFailure); ok {
			b.graph.RecordFailure(f)
		}
		return nil, value.Specification{}, err
	}
	b.graph.SetTerminal(Terminal{Requirement: req, Spec: spec, NodeID: n.ID})
	return n, spec, nil
}

// Resolve finds or creates the node producing a value satisfying req.
// Resolving the same requirement twice returns the same node.
func (b *Builder) Resolve(ctx context.Context, req value.Requirement) (*Node, value.Specification, error) {
	if b.finished {
		return nil, value.Specification{}, ErrBuilderFinished
	}
	r := b.resolveRequirement(ctx, req)
	if r.failure != nil {
		ctxlog.FromContext(ctx).Debug("Requirement unsatisfiable.", "requirement", req.String(), "reason", r.failure.Reason.String())
		return nil, value.Specification{}, r.failure
	}
	return r.node, r.spec, nil
}

// Graph finishes the build: nodes not needed by any terminal output are
// pruned and the result is checked for cycles.
func (b *Builder) Graph(ctx context.Context) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	if !b.finished {
		b.finished = true
		if removed := b.graph.Prune(); removed > 0 {
			logger.Debug("Pruned nodes not reachable from any terminal output.", "removed", removed)
		}
	}
	if err := b.graph.DetectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Dependency graph built.", "calc_config", b.graph.CalcConfig, "nodes", b.graph.Size(),
		"terminal", len(b.graph.terminal), "failures", len(b.graph.failures))
	return b.graph, nil
}

func (b *Builder) resolveTarget(ctx context.Context, spec target.Specification) (target.Target, error) {
	if r, ok := b.targets[spec]; ok {
		return r.target, r.err
	}
	t, err := b.resolver.Resolve(ctx, spec)
	b.targets[spec] = targetResult{target: t, err: err}
	return t, err
}

func (b *Builder) resolveRequirement(ctx context.Context, req value.Requirement) resolution {
	key := req.Key()
	if r, ok := b.lookup(b.resolved, key); ok {
		return r
	}
	if active, ok := b.activeReqs[key]; ok {
		return resolution{
			failure: &ResolutionFailure{Requirement: req, Reason: ReasonCycleDetected, Err: ErrCycleDetected},
			deps:    []int{active},
		}
	}
	depth := b.push()
	b.activeReqs[key] = depth
	defer func() {
		delete(b.activeReqs, key)
		b.pop()
	}()

	t, err := b.resolveTarget(ctx, req.Target)
	if err != nil {
		return b.remember(b.resolved, key, depth, resolution{failure: &ResolutionFailure{
			Requirement: req, Reason: ReasonTargetResolution, Err: fmt.Errorf("%w: %w", ErrTargetResolution, err),
		}})
	}

	candidates := b.registry.Candidates(b.cctx, req, t)
	if len(candidates) == 0 {
		return b.remember(b.resolved, key, depth, resolution{failure: &ResolutionFailure{
			Requirement: req, Reason: ReasonNoFunctions, Err: ErrNoFunctions,
		}})
	}

	var (
		causes []*ResolutionFailure
		deps   []int
	)
	for _, c := range candidates {
		r := b.resolveCandidate(ctx, req, t, c)
		if r.failure == nil {
			return b.remember(b.resolved, key, depth, r)
		}
		causes = append(causes, r.failure)
		deps = mergeDeps(deps, r.deps)
	}

	failure := &ResolutionFailure{Requirement: req, Reason: ReasonCandidatesFailed, Causes: causes}
	if len(causes) == 1 {
		failure = causes[0]
	}
	return b.remember(b.resolved, key, depth, resolution{failure: failure, deps: deps})
}

func (b *Builder) resolveCandidate(ctx context.Context, req value.Requirement, t target.Target, c registry.Candidate) resolution {
	fn := c.Rule.Function
	nodeID := NodeID(fn.ID(), t.Spec())

	if active, ok := b.activeNodes[nodeID]; ok {
		return resolution{
			failure: &ResolutionFailure{Requirement: req, Function: fn.ID(), Reason: ReasonCycleDetected, Err: ErrCycleDetected},
			deps:    []int{active},
		}
	}
	if n := b.graph.Node(nodeID); n != nil {
		return resolution{node: n, spec: b.graph.AddOutput(n, c.Spec)}
	}
	if r, ok := b.lookup(b.failedNodes, nodeID); ok {
		return r
	}

	depth := b.push()
	b.activeNodes[nodeID] = depth
	defer func() {
		delete(b.activeNodes, nodeID)
		b.pop()
	}()

	fail := func(f *ResolutionFailure, deps []int) resolution {
		return b.remember(b.failedNodes, nodeID, depth, resolution{failure: f, deps: deps})
	}

	reqs, err := fn.Requirements(b.cctx, t)
	if err != nil {
		return fail(&ResolutionFailure{Requirement: req, Function: fn.ID(), Reason: ReasonRequirements, Err: err}, nil)
	}

	var (
		inputs   []value.Specification
		inputIDs []string
		causes   []*ResolutionFailure
		deps     []int
		seen     = map[string]bool{}
	)
	add := func(r resolution) {
		if seen[r.spec.Key()] {
			return
		}
		seen[r.spec.Key()] = true
		inputs = append(inputs, r.spec)
		inputIDs = append(inputIDs, r.node.ID)
	}

	for _, in := range reqs {
		r := b.resolveRequirement(ctx, in)
		if r.failure != nil {
			causes = append(causes, r.failure)
			deps = mergeDeps(deps, r.deps)
			continue
		}
		add(r)
	}
	if len(causes) > 0 {
		return fail(&ResolutionFailure{Requirement: req, Function: fn.ID(), Reason: ReasonMissingInputs, Causes: causes}, deps)
	}

	if opt, ok := fn.(registry.OptionalInputs); ok {
		optional, err := opt.OptionalRequirements(b.cctx, t)
		if err != nil {
			return fail(&ResolutionFailure{Requirement: req, Function: fn.ID(), Reason: ReasonRequirements, Err: err}, nil)
		}
		for _, in := range optional {
			r := b.resolveRequirement(ctx, in)
			if r.failure != nil {
				ctxlog.FromContext(ctx).Debug("Dropping unsatisfiable optional input.", "function", fn.ID(), "input", in.String())
				continue
			}
			add(r)
		}
	}

	n := b.graph.AddNode(&Node{ID: nodeID, Function: fn, Target: t, Inputs: inputs, Outputs: []value.Specification{c.Spec}})
	for _, depID := range inputIDs {
		if err := b.graph.AddEdge(depID, n.ID); err != nil {
			// Unreachable: the active set rejects a node depending on itself.
			return fail(&ResolutionFailure{Requirement: req, Function: fn.ID(), Reason: ReasonCycleDetected, Err: fmt.Errorf("%w: %w", ErrCycleDetected, err)}, nil)
		}
	}
	return resolution{node: n, spec: c.Spec}
}

func (b *Builder) push() int {
	b.serial++
	b.stack = append(b.stack, b.serial)
	return len(b.stack) - 1
}

func (b *Builder) pop() {
	b.stack = b.stack[:len(b.stack)-1]
}

func (b *Builder) inProgress(depth int, serial uint64) bool {
	return depth < len(b.stack) && b.stack[depth] == serial
}

// remember stores r for key as resolved by the entry at depth. Dependencies
// on that entry or anything above it are closed once it returns; a failure
// still depending on entries below it is kept only while the deepest of them
// is in progress.
func (b *Builder) remember(m map[string]memo, key string, depth int, r resolution) resolution {
	i := 0
	for i < len(r.deps) && r.deps[i] < depth {
		i++
	}
	r.deps = r.deps[:i:i]
	entry := memo{res: r}
	if len(r.deps) > 0 {
		entry.guardDepth = r.deps[len(r.deps)-1]
		entry.guardSerial = b.stack[entry.guardDepth]
	}
	m[key] = entry
	return r
}

func (b *Builder) lookup(m map[string]memo, key string) (resolution, bool) {
	entry, ok := m[key]
	if !ok {
		return resolution{}, false
	}
	if entry.guardSerial != 0 && !b.inProgress(entry.guardDepth, entry.guardSerial) {
		delete(m, key)
		return resolution{}, false
	}
	return entry.res, true
}

func mergeDeps(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var next int
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			next = a[i]
			i++
		case i == len(a) || b[j] < a[i]:
			next = b[j]
			j++
		default:
			next = a[i]
			i++
			j++
		}
		out = append(out, next)
	}
	return out
}
