package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// kindTag returns a short ASCII indicator for non-process shapes.
func kindTag(kind NodeKind) string {
	switch kind {
	case NodeKindDecision:
		return "<?>"
	case NodeKindEvent:
		return "(o)"
	case NodeKindDatabase:
		return "[db]"
	case NodeKindSubroutine:
		return "[[ ]]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	// Title.
	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	// Render each level.
	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := model.Node(nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		// Draw connectors between levels (except after last level).
		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if labelled := labelledEdges(model); len(labelled) > 0 {
		b.WriteString("\n--- links ---\n")
		for _, e := range labelled {
			fmt.Fprintf(&b, "  %s ─%s→ %s\n", e.From, e.Label, e.To)
		}
	}

	for _, sg := range model.SubGraphs {
		renderSubGraph(&b, model, sg)
	}

	return b.String()
}

func labelledEdges(model *DiagramModel) []Edge {
	var out []Edge
	for _, e := range model.Edges {
		if e.Label != "" {
			out = append(out, e)
		}
	}
	return out
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{firstLine(node.Label)}
	if tag := kindTag(node.Kind); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := utf8.RuneCountInString(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br>", "\n")
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ") // gap between boxes
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// renderSubGraph lists the members of a subgraph.
func renderSubGraph(b *strings.Builder, model *DiagramModel, sg *SubGraph) {
	fmt.Fprintf(b, "\n--- %s ---\n", sg.Label)
	for _, id := range sg.Nodes {
		if n := model.Node(id); n != nil {
			fmt.Fprintf(b, "    %s\n", firstLine(n.Label))
		}
	}
}
