// Package identity resolves rendered diagram elements into stable node
// references: which logical node an element belongs to, its label, its
// shape kind and an id that survives re-rendering.
package identity

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/pkg/schema"
)

// Kind is the outcome of classifying a pointer target.
type Kind int

const (
	KindNone Kind = iota
	KindNode
	KindEdgeLabel
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindEdgeLabel:
		return "edgeLabel"
	default:
		return "none"
	}
}

// Classification pairs a kind with the element that represents the logical
// node or edge label. Element is nil for KindNone.
type Classification struct {
	Kind    Kind
	Element *scene.Element
}

// Found reports whether a node or edge label was resolved.
func (c Classification) Found() bool {
	return c.Kind != KindNone && c.Element != nil
}

// Classifier maps an arbitrary scene element to the logical element it
// belongs to. Implementations must not mutate the scene.
type Classifier interface {
	Classify(target *scene.Element) Classification
}

// walk climbs from target to the root. The outermost node match wins; the
// first edge-label match is the fallback.
func walk(target *scene.Element, isNode, isEdgeLabel func(*scene.Element) bool) Classification {
	var node, edge *scene.Element
	for e := target; e != nil; e = e.Parent {
		if e.IsText() {
			continue
		}
		if isNode(e) {
			node = e
			continue
		}
		if edge == nil && isEdgeLabel(e) {
			edge = e
		}
	}
	switch {
	case node != nil:
		return Classification{Kind: KindNode, Element: node}
	case edge != nil:
		return Classification{Kind: KindEdgeLabel, Element: edge}
	default:
		return Classification{}
	}
}

// MarkerClassifier matches whole class tokens, so a "nodes" container is
// never mistaken for a "node".
type MarkerClassifier struct {
	NodeMarkers      []string
	EdgeLabelMarkers []string
}

// DefaultMarkers covers the class conventions of the bundled renderers.
// A bare "edge" group is the whole connector, so it never marks a label.
func DefaultMarkers() MarkerClassifier {
	return MarkerClassifier{
		NodeMarkers:      []string{"node"},
		EdgeLabelMarkers: []string{"edgeLabel"},
	}
}

func (m MarkerClassifier) Classify(target *scene.Element) Classification {
	return walk(target,
		func(e *scene.Element) bool { return hasAnyClass(e, m.NodeMarkers) },
		func(e *scene.Element) bool { return hasAnyClass(e, m.EdgeLabelMarkers) },
	)
}

func hasAnyClass(e *scene.Element, markers []string) bool {
	for _, c := range e.Classes() {
		for _, m := range markers {
			if c == m {
				return true
			}
		}
	}
	return false
}

// RuleClassifier evaluates expr predicates against each ancestor. Rules see
// tag, id, classes, attrs and childCount.
type RuleClassifier struct {
	node      *vm.Program
	edgeLabel *vm.Program
}

func ruleEnv() map[string]any {
	return map[string]any{
		"tag":        "",
		"id":         "",
		"classes":    []string{},
		"attrs":      map[string]string{},
		"childCount": 0,
	}
}

// NewRuleClassifier compiles the node and edge-label rules. An empty rule
// never matches.
func NewRuleClassifier(nodeRule, edgeLabelRule string) (*RuleClassifier, error) {
	rc := &RuleClassifier{}
	var err error
	if rc.node, err = compileRule("node", nodeRule); err != nil {
		return nil, err
	}
	if rc.edgeLabel, err = compileRule("edgeLabel", edgeLabelRule); err != nil {
		return nil, err
	}
	return rc, nil
}

func compileRule(name, rule string) (*vm.Program, error) {
	if rule == "" {
		return nil, nil
	}
	prg, err := expr.Compile(rule, expr.Env(ruleEnv()), expr.AsBool())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"classifier %s rule %q: %s", name, rule, err.Error()).WithCause(err)
	}
	return prg, nil
}

func (rc *RuleClassifier) Classify(target *scene.Element) Classification {
	return walk(target, rc.matcher(rc.node), rc.matcher(rc.edgeLabel))
}

func (rc *RuleClassifier) matcher(prg *vm.Program) func(*scene.Element) bool {
	return func(e *scene.Element) bool {
		if prg == nil {
			return false
		}
		attrs := make(map[string]string, len(e.Attrs))
		for _, a := range e.Attrs {
			attrs[a.Name] = a.Value
		}
		out, err := vm.Run(prg, map[string]any{
			"tag":        e.Tag,
			"id":         e.ID(),
			"classes":    e.Classes(),
			"attrs":      attrs,
			"childCount": len(e.ElementChildren()),
		})
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}
}

var (
	_ Classifier = MarkerClassifier{}
	_ Classifier = (*RuleClassifier)(nil)
)
