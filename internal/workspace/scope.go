package workspace

import (
	"context"

	"github.com/rendis/lienzo/internal/expressions"
	"github.com/rendis/lienzo/pkg/schema"
)

// ExpressionScope captures the current scene's nodes and the pending
// references for expression evaluation. Without a scene the node list is
// empty.
func (w *Workspace) ExpressionScope() *expressions.Scope {
	nodes := w.Nodes()
	refs := w.References()
	scope := &expressions.Scope{References: refs}
	if sc := w.Scene(); sc != nil {
		scope.TargetID = sc.TargetID
		if size, ok := sc.Measure(); ok {
			scope.Width, scope.Height = size.W, size.H
		}
	}

	referenced := make(map[string]bool, len(refs))
	for _, r := range refs {
		referenced[r.NodeID] = true
	}
	for _, n := range nodes {
		scope.Nodes = append(scope.Nodes, expressions.NodeData{
			ID:         n.NodeID,
			Text:       n.NodeText,
			Type:       string(n.NodeType),
			X:          n.Bounds.X,
			Y:          n.Bounds.Y,
			W:          n.Bounds.W,
			H:          n.Bounds.H,
			Referenced: referenced[n.NodeID],
		})
	}
	return scope
}

// SelectWhere adds every node matching predicate to the pending
// references. It returns the matched nodes and the references that were
// newly added.
func (w *Workspace) SelectWhere(ctx context.Context, engine expressions.Engine, predicate string) ([]expressions.NodeData, []schema.NodeReference, error) {
	if w.Scene() == nil {
		return nil, nil, schema.NewError(schema.ErrCodeNoScene, "no rendered scene to select from")
	}
	matched, err := expressions.Select(ctx, engine, predicate, w.ExpressionScope())
	if err != nil {
		return nil, nil, err
	}
	refs := make([]schema.NodeReference, len(matched))
	for i, n := range matched {
		refs[i] = schema.NodeReference{NodeID: n.ID, NodeText: n.Text, NodeType: schema.NodeType(n.Type)}
	}
	return matched, w.AddReferences(refs...), nil
}
