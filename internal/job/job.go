// Package job defines the unit of work sent to calculation nodes and the
// receivers that wait for its result.
package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
)

// Spec identifies one job within a cycle.
type Spec struct {
	JobID         uuid.UUID
	CycleID       uuid.UUID
	CalcConfig    string
	ValuationTime time.Time
}

// NewSpec creates a Spec with a fresh job id.
func NewSpec(cycleID uuid.UUID, calcConfig string, valuationTime time.Time) Spec {
	return Spec{JobID: uuid.New(), CycleID: cycleID, CalcConfig: calcConfig, ValuationTime: valuationTime}
}

func (s Spec) String() string {
	return fmt.Sprintf("job %s (cycle %s, %s)", s.JobID, s.CycleID, s.CalcConfig)
}

// Item is one function invocation. Inputs are read from and Outputs written
// to the cycle's view computation cache.
type Item struct {
	FunctionID string
	Target     target.Specification
	Inputs     []value.Specification
	Outputs    []value.Specification
}

// CalculationJob is an ordered list of items executed on one node. Items
// may consume the outputs of earlier items in the same job.
type CalculationJob struct {
	Spec    Spec
	Items   []Item
	Attempt int
	// Exclude lists calculation nodes that already failed this job.
	Exclude []string
}

// Excludes reports whether nodeID already failed this job.
func (j *CalculationJob) Excludes(nodeID string) bool {
	for _, id := range j.Exclude {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Retry returns a copy of j for another attempt, excluding failedNode.
func (j *CalculationJob) Retry(failedNode string) *CalculationJob {
	next := *j
	next.Attempt++
	next.Exclude = append(append([]string(nil), j.Exclude...), failedNode)
	return &next
}

// ItemStatus is the outcome of a single item.
type ItemStatus int

const (
	StatusSuccess ItemStatus = iota
	StatusFunctionFailed
	StatusMissingInputs
	StatusSkipped
)

func (s ItemStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFunctionFailed:
		return "function failed"
	case StatusMissingInputs:
		return "missing inputs"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ItemResult reports what happened to one item.
type ItemResult struct {
	Item    Item
	Status  ItemStatus
	Outputs []value.Specification
	Err     error
}

// CalculationJobResult is delivered once per job. Failure is set when the
// job as a whole could not be executed; item-level problems are recorded
// per item.
type CalculationJobResult struct {
	Spec     Spec
	Items    []ItemResult
	NodeID   string
	Started  time.Time
	Duration time.Duration
	Failure  error
}

// Succeeded reports whether the job ran and every item succeeded.
func (r *CalculationJobResult) Succeeded() bool {
	if r.Failure != nil {
		return false
	}
	for _, item := range r.Items {
		if item.Status != StatusSuccess {
			return false
		}
	}
	return true
}
