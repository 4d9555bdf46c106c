package diagram

// NodeKind classifies a flowchart node by its declared shape.
type NodeKind string

const (
	NodeKindProcess    NodeKind = "process"    // A[text]
	NodeKindRounded    NodeKind = "rounded"    // A(text)
	NodeKindDecision   NodeKind = "decision"   // A{text}
	NodeKindEvent      NodeKind = "event"      // A((text))
	NodeKindStadium    NodeKind = "stadium"    // A([text])
	NodeKindSubroutine NodeKind = "subroutine" // A[[text]]
	NodeKindHexagon    NodeKind = "hexagon"    // A{{text}}
	NodeKindDatabase   NodeKind = "database"   // A[(text)]
	NodeKindSlanted    NodeKind = "slanted"    // A[/text/], A>text]
)

// Direction is the flowchart's rank direction.
type Direction string

const (
	DirectionTD Direction = "TD"
	DirectionLR Direction = "LR"
	DirectionBT Direction = "BT"
	DirectionRL Direction = "RL"
)

// EdgeStyle is the stroke of a link.
type EdgeStyle string

const (
	EdgeSolid  EdgeStyle = "solid"
	EdgeDotted EdgeStyle = "dotted"
	EdgeThick  EdgeStyle = "thick"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title     string
	Direction Direction
	Nodes     []*Node
	Edges     []Edge
	SubGraphs []*SubGraph
	Levels    [][]string
}

// Node is a single declared or referenced flowchart node.
type Node struct {
	ID      string
	Label   string
	Kind    NodeKind
	Classes []string
}

// SubGraph groups nodes under a labelled cluster.
type SubGraph struct {
	ID    string
	Label string
	Nodes []string
}

// Edge is a link between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
	Style EdgeStyle
	// Open edges have no arrow head (---).
	Open bool
}

// Node returns the node with the given id, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// SubGraphOf returns the subgraph that declares node id, or nil.
func (m *DiagramModel) SubGraphOf(id string) *SubGraph {
	for _, sg := range m.SubGraphs {
		for _, n := range sg.Nodes {
			if n == id {
				return sg
			}
		}
	}
	return nil
}
