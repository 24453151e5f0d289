package remotecache

import (
	"github.com/specialistvlad/valuegrid/internal/target"
	"github.com/specialistvlad/valuegrid/internal/value"
)

func testSpec() value.Specification {
	return value.Specification{
		Name:       value.PresentValue,
		Target:     target.NewSpecification(target.TypePosition, target.MustParseUniqueID("POS~1")),
		FunctionID: "pv",
	}
}
