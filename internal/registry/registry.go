package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
)

// Module is the interface that all function libraries must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the resolution rules of a single engine instance.
type Registry struct {
	mu    sync.RWMutex
	rules []*Rule // priority descending, then registration order
	byID  map[string]*Rule
	seq   int
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{byID: make(map[string]*Rule)}
}

// Register adds fn as a resolution rule. Registering two functions with the
// same id is a programming error and panics.
func (r *Registry) Register(fn Function, opts ...RuleOption) *Rule {
	rule := &Rule{Function: fn, Filter: ApplyToAll}
	for _, opt := range opts {
		opt(rule)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[fn.ID()]; exists {
		panic(fmt.Sprintf("function with id '%s' already registered", fn.ID()))
	}
	slog.Debug("Registering function.", "id", fn.ID(), "target_type", fn.TargetType().String(), "priority", rule.Priority)

	rule.order = r.seq
	r.seq++
	r.byID[fn.ID()] = rule
	r.rules = append(r.rules, rule)
	slices.SortStableFunc(r.rules, compareRules)
	return rule
}

// Function returns the function registered under id.
func (r *Registry) Function(id string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return rule.Function, true
}

// Rules returns the rules in resolution order.
func (r *Registry) Rules() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.rules)
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Candidate is a function able to satisfy a requirement, together with the
// specification it would produce for it.
type Candidate struct {
	Rule *Rule
	Spec value.Specification
}

// Candidates returns, in resolution order, every function that applies to t
// and advertises a result satisfying req. The advertised result is narrowed
// to the requirement's constraints; a result left with a wildcard is not a
// candidate because it does not say what would be produced.
func (r *Registry) Candidates(cctx *CompilationContext, req value.Requirement, t target.Target) []Candidate {
	rules := r.Rules()
	typ := target.TypeOf(t)

	var out []Candidate
	for _, rule := range rules {
		fn := rule.Function
		if fn.TargetType() != typ {
			continue
		}
		if !rule.Filter.Accept(t) {
			continue
		}
		if !fn.CanApplyTo(cctx, t) {
			continue
		}
		for _, result := range fn.Results(cctx, t) {
			if result.Name != req.Name || result.Target != req.Target {
				continue
			}
			composed := result.WithProperties(result.Properties.Compose(req.Constraints))
			composed.FunctionID = fn.ID()
			if !composed.Properties.IsConcrete() || !req.IsSatisfiedBy(composed) {
				continue
			}
			out = append(out, Candidate{Rule: rule, Spec: composed})
			break
		}
	}
	return out
}
