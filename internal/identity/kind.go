package identity

import (
	"strings"

	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/pkg/schema"
)

// class hints consulted when no shape primitive decides the kind
var kindHints = []struct {
	words []string
	kind  schema.NodeType
}{
	{[]string{"decision", "question", "rhombus", "diamond"}, schema.NodeTypeDecision},
	{[]string{"start", "end", "event", "circle", "terminal"}, schema.NodeTypeEvent},
	{[]string{"process", "task", "rect"}, schema.NodeTypeProcess},
}

// InferKind derives the node type from the first shape primitive under e,
// falling back to class-name hints. Returns "" when nothing matches.
func InferKind(e *scene.Element) schema.NodeType {
	if e == nil {
		return ""
	}
	var kind schema.NodeType
	e.Walk(func(n *scene.Element) bool {
		if kind != "" || n.Tag == "foreignObject" || n.Tag == "text" || skipText[n.Tag] {
			return false
		}
		kind = shapeKind(n)
		return true
	})
	if kind != "" {
		return kind
	}
	for _, c := range e.Classes() {
		if k := hintKind(c); k != "" {
			return k
		}
	}
	return ""
}

func shapeKind(n *scene.Element) schema.NodeType {
	switch n.Tag {
	case "circle", "ellipse":
		return schema.NodeTypeEvent
	case "rect":
		return schema.NodeTypeProcess
	case "polygon":
		if isAxisAlignedBox(n.AttrOr("points", "")) {
			return schema.NodeTypeProcess
		}
		return schema.NodeTypeDecision
	}
	return ""
}

func hintKind(class string) schema.NodeType {
	lc := strings.ToLower(class)
	for _, h := range kindHints {
		for _, w := range h.words {
			if strings.Contains(lc, w) {
				return h.kind
			}
		}
	}
	return ""
}

// isAxisAlignedBox reports whether a polygon's points only use two distinct
// x and two distinct y values, i.e. it is drawn as a plain rectangle.
func isAxisAlignedBox(points string) bool {
	xs := map[string]bool{}
	ys := map[string]bool{}
	pairs := strings.FieldsFunc(points, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	if len(pairs) < 4 {
		return false
	}
	for _, p := range pairs {
		x, y, ok := strings.Cut(p, ",")
		if !ok {
			return false
		}
		xs[x] = true
		ys[y] = true
	}
	return len(xs) == 2 && len(ys) == 2
}
