package engine

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/specialistvlad/valuegrid/internal/value"
)

// ErrInvalidView is matched by every view validation error.
var ErrInvalidView = errors.New("invalid view definition")

// ViewDefinition names the values a cycle computes, grouped by calculation
// configuration.
type ViewDefinition struct {
	Name        string
	CalcConfigs []CalcConfig
}

// CalcConfig is one calculation configuration of a view.
type CalcConfig struct {
	Name         string
	Requirements []value.Requirement
	// Params are visible to functions at compilation time.
	Params map[string]string
}

// Validate reports every problem with the view at once.
func (v *ViewDefinition) Validate() error {
	var result *multierror.Error
	if v.Name == "" {
		result = multierror.Append(result, fmt.Errorf("%w: view name is empty", ErrInvalidView))
	}
	if len(v.CalcConfigs) == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: view '%s' has no calculation configurations", ErrInvalidView, v.Name))
	}
	seen := make(map[string]bool, len(v.CalcConfigs))
	for _, cc := range v.CalcConfigs {
		switch {
		case cc.Name == "":
			result = multierror.Append(result, fmt.Errorf("%w: view '%s' has an unnamed calculation configuration", ErrInvalidView, v.Name))
		case seen[cc.Name]:
			result = multierror.Append(result, fmt.Errorf("%w: calculation configuration '%s' is declared twice", ErrInvalidView, cc.Name))
		}
		seen[cc.Name] = true
		if len(cc.Requirements) == 0 {
			result = multierror.Append(result, fmt.Errorf("%w: calculation configuration '%s' requests nothing", ErrInvalidView, cc.Name))
		}
	}
	return result.ErrorOrNil()
}
