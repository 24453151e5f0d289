package app

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/specialistvlad/valuegrid/internal/engine"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// printResult writes one cycle as a table, one row per requested value.
func printResult(w io.Writer, result *engine.CycleResult) error {
	fmt.Fprintf(w, "cycle %s view %q finished in %s\n", result.CycleID, result.View, result.Duration.Round(time.Millisecond))

	names := make([]string, 0, len(result.Values))
	for name := range result.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALC CONFIG\tSTATE\tREQUIREMENT\tVALUE\tFUNCTION")
	for _, name := range names {
		for _, rv := range result.Values[name] {
			if rv.Err != nil {
				fmt.Fprintf(tw, "%s\t%s\t%s\terror: %v\t\n", name, result.States[name], rv.Requirement, rv.Err)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, result.States[name], rv.Requirement, formatValue(rv.Value), rv.Spec.FunctionID)
		}
	}
	return tw.Flush()
}

func formatValue(v cty.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case !v.IsKnown():
		return "(unknown)"
	case v.Type() == cty.Number:
		return v.AsBigFloat().Text('f', -1)
	case v.Type() == cty.String:
		return v.AsString()
	}
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return v.GoString()
	}
	return string(data)
}
