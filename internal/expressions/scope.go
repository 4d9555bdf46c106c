package expressions

import (
	"context"

	"github.com/rendis/lienzo/pkg/schema"
)

// NodeData is one logical node as seen by expressions.
type NodeData struct {
	ID         string
	Text       string
	Type       string
	X, Y, W, H float64
	Referenced bool
}

// Map returns the node as an expression value.
func (n NodeData) Map() map[string]any {
	return map[string]any{
		"id":   n.ID,
		"text": n.Text,
		"type": n.Type,
		"bounds": map[string]any{
			"x": n.X, "y": n.Y, "w": n.W, "h": n.H,
		},
		"referenced": n.Referenced,
	}
}

// Scope is the data an expression is evaluated against: the nodes of the
// current scene and the pending references.
type Scope struct {
	TargetID   string
	Width      float64
	Height     float64
	Nodes      []NodeData
	References []schema.NodeReference
}

// refsData converts references to expression values.
func (s *Scope) refsData() []any {
	out := make([]any, len(s.References))
	for i, r := range s.References {
		out[i] = map[string]any{
			"nodeId":   r.NodeID,
			"nodeText": r.NodeText,
			"nodeType": string(r.NodeType),
		}
	}
	return out
}

func (s *Scope) nodesData() []any {
	out := make([]any, len(s.Nodes))
	for i, n := range s.Nodes {
		out[i] = n.Map()
	}
	return out
}

// Data returns the whole scope as one document:
// {refs: [...], nodes: [...], scene: {target_id, width, height}}.
func (s *Scope) Data() map[string]any {
	return map[string]any{
		"refs":  s.refsData(),
		"nodes": s.nodesData(),
		"scene": s.sceneData(),
	}
}

func (s *Scope) sceneData() map[string]any {
	return map[string]any{
		"target_id": s.TargetID,
		"width":     s.Width,
		"height":    s.Height,
		"nodes":     len(s.Nodes),
	}
}

// ForNode returns the per-node evaluation data: {node, refs, scene}.
func (s *Scope) ForNode(i int) map[string]any {
	return map[string]any{
		"node":  s.Nodes[i].Map(),
		"refs":  s.refsData(),
		"scene": s.sceneData(),
	}
}

// Select evaluates predicate against every node and returns those for which
// it is true, in scene order. A non-boolean result is an EXPRESSION_ERROR
// naming the offending node.
func Select(ctx context.Context, engine Engine, predicate string, scope *Scope) ([]NodeData, error) {
	var out []NodeData
	for i, n := range scope.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := engine.Evaluate(ctx, predicate, scope.ForNode(i))
		if err != nil {
			if le, ok := schema.AsLienzoError(err); ok {
				return nil, le.WithNode(n.ID)
			}
			return nil, err
		}
		match, ok := v.(bool)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"%s predicate %q returned %T, want bool", engine.Name(), predicate, v).WithNode(n.ID)
		}
		if match {
			out = append(out, n)
		}
	}
	return out, nil
}

// Query evaluates expression once against the whole scope document.
func Query(ctx context.Context, engine Engine, expression string, scope *Scope) (any, error) {
	return engine.Evaluate(ctx, expression, scope.Data())
}
