package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel back to flowchart notation. The output
// parses to an equivalent model.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	dir := model.Direction
	if dir == "" {
		dir = DirectionTD
	}
	fmt.Fprintf(&b, "flowchart %s\n", dir)

	// Title as comment.
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	inSubGraph := make(map[string]bool)
	for _, sg := range model.SubGraphs {
		fmt.Fprintf(&b, "    subgraph %s[\"%s\"]\n", mermaidSafeID(sg.ID), mermaidEscapeLabel(sg.Label))
		for _, id := range sg.Nodes {
			if n := model.Node(id); n != nil {
				fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(n))
				inSubGraph[id] = true
			}
		}
		b.WriteString("    end\n")
	}

	for _, node := range model.Nodes {
		if !inSubGraph[node.ID] {
			fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
		}
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s %s%s %s\n",
			mermaidSafeID(edge.From), mermaidArrow(edge), label, mermaidSafeID(edge.To))
	}

	return b.String()
}

// mermaidNodeDef returns a node definition with the appropriate shape and
// its first class.
func mermaidNodeDef(node *Node) string {
	def := mermaidShape(node)
	if len(node.Classes) > 0 {
		def += ":::" + node.Classes[0]
	}
	return def
}

func mermaidShape(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := `"` + mermaidEscapeLabel(firstLine(node.Label)) + `"`

	switch node.Kind {
	case NodeKindDecision:
		return id + "{" + label + "}"
	case NodeKindEvent:
		return id + "((" + label + "))"
	case NodeKindRounded:
		return id + "(" + label + ")"
	case NodeKindStadium:
		return id + "([" + label + "])"
	case NodeKindSubroutine:
		return id + "[[" + label + "]]"
	case NodeKindHexagon:
		return id + "{{" + label + "}}"
	case NodeKindDatabase:
		return id + "[(" + label + ")]"
	case NodeKindSlanted:
		return id + "[/" + label + "/]"
	default: // process
		return id + "[" + label + "]"
	}
}

func mermaidArrow(e Edge) string {
	switch e.Style {
	case EdgeDotted:
		if e.Open {
			return "-.-"
		}
		return "-.->"
	case EdgeThick:
		if e.Open {
			return "==="
		}
		return "==>"
	default:
		if e.Open {
			return "---"
		}
		return "-->"
	}
}

// mermaidSafeID converts a node ID to a notation-safe identifier.
// Replaces spaces with underscores.
func mermaidSafeID(id string) string {
	return strings.ReplaceAll(id, " ", "_")
}

// mermaidEscapeLabel drops characters that would terminate a quoted label
// or a pipe label.
func mermaidEscapeLabel(s string) string {
	return strings.NewReplacer(`"`, "'", "|", "/").Replace(s)
}
