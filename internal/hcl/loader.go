package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/valuegrid/internal/config"
	"github.com/specialistvlad/valuegrid/internal/ctxlog"
	"github.com/specialistvlad/valuegrid/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under paths and merges their blocks
// into one model. Reference data is translated after all files are read, so
// a position may refer to a security declared in another file.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	var merged fileRoot
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if root.Engine != nil {
			if merged.Engine != nil {
				return nil, fmt.Errorf("duplicate engine block in %s", file)
			}
			merged.Engine = root.Engine
		}
		merged.Securities = append(merged.Securities, root.Securities...)
		merged.MarketData = append(merged.MarketData, root.MarketData...)
		merged.FXRates = append(merged.FXRates, root.FXRates...)
		merged.Portfolios = append(merged.Portfolios, root.Portfolios...)
		merged.Views = append(merged.Views, root.Views...)
	}

	model, err := translate(ctx, &merged)
	if err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.",
		"securities", len(model.Securities), "portfolios", len(model.Portfolios),
		"market_prices", len(model.MarketPrices), "fx_rates", len(model.FXRates), "views", len(model.Views))
	return model, nil
}
