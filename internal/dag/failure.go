package dag

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/valuegrid/internal/value"
)

var (
	// ErrUnsatisfiable is matched by every resolution failure.
	ErrUnsatisfiable = errors.New("requirement cannot be satisfied")
	// ErrCycleDetected means a requirement transitively depends on itself.
	ErrCycleDetected = errors.New("dependency cycle detected")
	// ErrTargetResolution means the requirement's target could not be resolved.
	ErrTargetResolution = errors.New("target resolution failed")
	// ErrNoFunctions means no registered function can produce the value.
	ErrNoFunctions = errors.New("no function produces the requested value")
	// ErrBuilderFinished is returned when a finished builder is used again.
	ErrBuilderFinished = errors.New("graph builder already finished")
)

// FailureReason classifies a ResolutionFailure.
type FailureReason int

const (
	ReasonNoFunctions FailureReason = iota + 1
	ReasonTargetResolution
	ReasonRequirements
	ReasonMissingInputs
	ReasonCycleDetected
	ReasonCandidatesFailed
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNoFunctions:
		return "no functions"
	case ReasonTargetResolution:
		return "target resolution failed"
	case ReasonRequirements:
		return "requirements unavailable"
	case ReasonMissingInputs:
		return "missing inputs"
	case ReasonCycleDetected:
		return "cycle detected"
	case ReasonCandidatesFailed:
		return "every candidate failed"
	default:
		return "unknown"
	}
}

// ResolutionFailure explains why a requirement, or one candidate function
// for it, could not be satisfied. Failures form a tree through Causes.
//
// Error renders only this level so that deep chains stay cheap to print;
// errors.Is walks the whole tree.
type ResolutionFailure struct {
	Requirement value.Requirement
	// Function is set when the failure concerns one candidate.
	Function string
	Reason   FailureReason
	Err      error
	Causes   []*ResolutionFailure
}

func (f *ResolutionFailure) Error() string {
	msg := fmt.Sprintf("cannot satisfy %s: %s", f.Requirement, f.Reason)
	if f.Function != "" {
		msg += fmt.Sprintf(" (function %s)", f.Function)
	}
	switch {
	case f.Err != nil:
		msg += ": " + f.Err.Error()
	case len(f.Causes) == 1:
		msg += fmt.Sprintf(": %s is unsatisfiable", f.Causes[0].Requirement)
	case len(f.Causes) > 1:
		msg += fmt.Sprintf(": %d causes", len(f.Causes))
	}
	return msg
}

// Unwrap exposes ErrUnsatisfiable, the direct error and every cause.
func (f *ResolutionFailure) Unwrap() []error {
	out := make([]error, 0, 2+len(f.Causes))
	out = append(out, ErrUnsatisfiable)
	if f.Err != nil {
		out = append(out, f.Err)
	}
	for _, c := range f.Causes {
		out = append(out, c)
	}
	return out
}

// RootCauses returns the leaves of the failure tree, de-duplicated.
func (f *ResolutionFailure) RootCauses() []*ResolutionFailure {
	seen := map[*ResolutionFailure]bool{}
	var out []*ResolutionFailure
	stack := []*ResolutionFailure{f}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if len(cur.Causes) == 0 {
			out = append(out, cur)
			continue
		}
		for i := len(cur.Causes) - 1; i >= 0; i-- {
			stack = append(stack, cur.Causes[i])
		}
	}
	return out
}
