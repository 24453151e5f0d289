package app

import (
	"github.com/specialistvlad/valuegrid/internal/registry"
	"github.com/specialistvlad/valuegrid/modules/aggregation"
	"github.com/specialistvlad/valuegrid/modules/valuation"
)

// coreModules is the definitive list of function modules compiled into the
// valuegrid binary. Market data functions are registered by the session from
// the loaded configuration.
var coreModules = []registry.Module{
	&valuation.Module{},
	&aggregation.Module{},
}
