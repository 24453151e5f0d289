package registry

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/target"
)

// Validate checks that every registered rule is usable. All problems are
// reported together.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var result *multierror.Error

	rules := r.Rules()
	if len(rules) == 0 {
		logger.Warn("Registry has no functions; every requirement will be unsatisfiable.")
	}

	for _, rule := range rules {
		fn := rule.Function
		if fn.ID() == "" {
			result = multierror.Append(result, fmt.Errorf("function registered at position %d has an empty id", rule.order))
			continue
		}
		if fn.TargetType() == target.TypeUnknown {
			result = multierror.Append(result, fmt.Errorf("function '%s': target type is not set", fn.ID()))
		}
		if rule.Filter == nil {
			result = multierror.Append(result, fmt.Errorf("function '%s': target filter is nil", fn.ID()))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("registry validation failed: %w", err)
	}
	logger.Debug("Registry validation passed.", "functions", len(rules))
	return nil
}
