package validation

import (
	"errors"
	"fmt"

	"github.com/rendis/lienzo/internal/diagram"
	"github.com/rendis/lienzo/pkg/schema"
)

// FlowchartChecker validates flowchart source: parse errors are errors,
// suspicious structure is reported as warnings.
type FlowchartChecker struct{}

// CheckSource implements SourceChecker.
func (FlowchartChecker) CheckSource(source string) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	model, err := diagram.ParseFlowchart(source)
	if err != nil {
		path := "/"
		var pe *diagram.ParseError
		if errors.As(err, &pe) {
			path = fmt.Sprintf("line:%d", pe.Line)
		}
		result.AddError(path, schema.ErrCodeValidation, err.Error())
		return result
	}

	result.Merge(checkFlow(model))
	return result
}

// checkFlow warns about isolated nodes and repeated links.
func checkFlow(model *diagram.DiagramModel) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	linked := make(map[string]bool, len(model.Nodes))
	seen := make(map[string]bool, len(model.Edges))
	for _, e := range model.Edges {
		linked[e.From], linked[e.To] = true, true
		key := e.From + "\x00" + e.To + "\x00" + e.Label
		if seen[key] {
			result.AddWarning("edges", schema.ErrCodeValidation,
				fmt.Sprintf("link %s -> %s is declared more than once", e.From, e.To))
		}
		seen[key] = true
	}

	if len(model.Nodes) < 2 {
		return result
	}
	for _, n := range model.Nodes {
		if !linked[n.ID] && model.SubGraphOf(n.ID) == nil {
			result.AddWarning("nodes["+n.ID+"]", schema.ErrCodeValidation,
				fmt.Sprintf("node %q is not linked to anything", n.ID))
		}
	}
	return result
}
