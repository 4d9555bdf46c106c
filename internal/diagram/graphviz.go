package diagram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/render"
	"github.com/rendis/lienzo/internal/scene"
)

// palette holds the colours applied to a graph.
type palette struct {
	background string
	fill       string
	stroke     string
	text       string
	line       string
	cluster    string
	font       string
}

// basePalettes are the defaults per theme base; theme variables override them.
var basePalettes = map[string]palette{
	"default": {background: "white", fill: "#ECECFF", stroke: "#9370DB", text: "#333333", line: "#333333", cluster: "#ffffde"},
	"dark":    {background: "#333333", fill: "#1f2020", stroke: "#81B1DB", text: "#cccccc", line: "#d3d3d3", cluster: "#1f2020"},
	"forest":  {background: "white", fill: "#cde498", stroke: "#13540c", text: "#000000", line: "#008000", cluster: "#cdffb2"},
	"neutral": {background: "white", fill: "#eeeeee", stroke: "#999999", text: "#333333", line: "#666666", cluster: "#f4f4f4"},
	"base":    {background: "white", fill: "#fff4dd", stroke: "#9f6d1b", text: "#333333", line: "#333333", cluster: "#fff4dd"},
}

func paletteFor(d render.Directive) palette {
	p, ok := basePalettes[d.Theme]
	if !ok {
		p = basePalettes["default"]
	}
	v := d.ThemeVariables
	set := func(dst *string, names ...string) {
		for _, n := range names {
			if s := v[n]; s != "" {
				*dst = s
				return
			}
		}
	}
	set(&p.background, "background")
	set(&p.fill, "primaryColor", "mainBkg")
	set(&p.stroke, "primaryBorderColor", "nodeBorder")
	set(&p.text, "primaryTextColor", "textColor")
	set(&p.line, "lineColor")
	set(&p.cluster, "clusterBkg", "tertiaryColor")
	set(&p.font, "fontFamily")
	return p
}

// GraphvizRenderer is the in-process render capability. It parses flowchart
// source, lays it out with graphviz and returns the SVG as a scene.
type GraphvizRenderer struct {
	logger *slog.Logger
}

// NewGraphvizRenderer creates a GraphvizRenderer. A nil logger uses slog.Default.
func NewGraphvizRenderer(logger *slog.Logger) *GraphvizRenderer {
	return &GraphvizRenderer{logger: logging.OrDefault(logger)}
}

// Render implements render.Renderer.
func (r *GraphvizRenderer) Render(ctx context.Context, source, targetID string) (*scene.Scene, error) {
	model, err := ParseFlowchart(source)
	if err != nil {
		return nil, err
	}
	d, _ := render.ParseDirective(source)

	start := time.Now()
	svg, err := renderGraph(ctx, model, paletteFor(d), graphviz.SVG)
	if err != nil {
		return nil, err
	}
	logging.LogWith(ctx, r.logger).Debug("graphviz layout done",
		"target", targetID, "nodes", len(model.Nodes), "edges", len(model.Edges),
		"duration", time.Since(start))

	return sceneFromSVG(targetID, svg)
}

// sceneFromSVG parses renderer output and stamps the target id on the root.
// Graphviz classes the whole connector group "edge", so the label text
// inside it is marked edgeLabel on its own.
func sceneFromSVG(targetID string, svg []byte) (*scene.Scene, error) {
	sc, err := scene.FromSVG(targetID, string(svg))
	if err != nil {
		return nil, err
	}
	if targetID != "" {
		sc.Root.SetAttr("id", targetID)
	}
	markEdgeLabels(sc.Root)
	return sc, nil
}

func markEdgeLabels(root *scene.Element) {
	root.Walk(func(e *scene.Element) bool {
		if !e.HasClass("edge") {
			return true
		}
		for _, c := range e.ElementChildren() {
			if c.Tag == "text" && strings.TrimSpace(c.TextContent()) != "" {
				c.AddClass("edgeLabel")
			}
		}
		return false
	})
}

// RenderSVG renders a DiagramModel as SVG markup with the given theme directive.
func RenderSVG(ctx context.Context, model *DiagramModel, d render.Directive) ([]byte, error) {
	return renderGraph(ctx, model, paletteFor(d), graphviz.SVG)
}

// RenderImage renders a DiagramModel as a PNG image using graphviz.
// Returns the PNG bytes.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return renderGraph(ctx, model, basePalettes["default"], graphviz.PNG)
}

func renderGraph(ctx context.Context, model *DiagramModel, pal palette, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(rankDir(model.Direction))
	graph.SetBackgroundColor(pal.background)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}
	if err := applyPalette(graph, pal); err != nil {
		return nil, err
	}

	// Subgraph clusters own their member nodes.
	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, sg := range model.SubGraphs {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + sg.ID)
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create subgraph %s: %w", sg.ID, subErr)
		}
		sub.SetLabel(sg.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		sub.SetBackgroundColor(pal.cluster)
		for _, id := range sg.Nodes {
			node := model.Node(id)
			if node == nil || gvNodes[id] != nil {
				continue
			}
			gvNode, nErr := sub.CreateNodeByName(id)
			if nErr != nil {
				return nil, fmt.Errorf("diagram: create node %s: %w", id, nErr)
			}
			applyNodeStyle(gvNode, node)
			gvNodes[id] = gvNode
		}
	}

	for _, node := range model.Nodes {
		if gvNodes[node.ID] != nil {
			continue
		}
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, eErr)
		}
		applyEdgeStyle(e, edge)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func rankDir(d Direction) cgraph.RankDir {
	switch d {
	case DirectionLR:
		return cgraph.LRRank
	case DirectionBT:
		return cgraph.BTRank
	case DirectionRL:
		return cgraph.RLRank
	default:
		return cgraph.TBRank
	}
}

// applyPalette sets graph-wide node and edge defaults.
func applyPalette(graph *cgraph.Graph, pal palette) error {
	type attr struct {
		kind        int
		name, value string
	}
	defaults := []attr{
		{int(cgraph.NODE), "style", "filled"},
		{int(cgraph.NODE), "fillcolor", pal.fill},
		{int(cgraph.NODE), "color", pal.stroke},
		{int(cgraph.NODE), "fontcolor", pal.text},
		{int(cgraph.EDGE), "color", pal.line},
		{int(cgraph.EDGE), "fontcolor", pal.text},
	}
	if pal.font != "" {
		defaults = append(defaults, attr{int(cgraph.NODE), "fontname", pal.font})
	}
	for _, d := range defaults {
		if _, err := graph.Attr(d.kind, d.name, d.value); err != nil {
			return fmt.Errorf("diagram: set default %s: %w", d.name, err)
		}
	}
	return nil
}

// applyNodeStyle sets graphviz attributes based on node kind.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	gvNode.SetLabel(graphvizLabel(node.Label))
	switch node.Kind {
	case NodeKindDecision:
		gvNode.SetShape("diamond")
	case NodeKindEvent:
		gvNode.SetShape("circle")
	case NodeKindRounded, NodeKindStadium:
		gvNode.SetShape("box")
		gvNode.SetStyle("filled,rounded")
	case NodeKindSubroutine:
		gvNode.SetShape("box")
		gvNode.SetStyle("filled,bold")
	case NodeKindHexagon:
		gvNode.SetShape("hexagon")
	case NodeKindDatabase:
		gvNode.SetShape("cylinder")
	case NodeKindSlanted:
		gvNode.SetShape("parallelogram")
	default:
		gvNode.SetShape("box")
	}
}

// applyEdgeStyle maps link styles to graphviz edge attributes.
func applyEdgeStyle(e *cgraph.Edge, edge Edge) {
	if edge.Label != "" {
		e.SetLabel(edge.Label)
	}
	switch edge.Style {
	case EdgeDotted:
		e.SetStyle("dotted")
	case EdgeThick:
		e.SetStyle("bold")
		e.SetPenWidth(2.5)
	default:
		e.SetStyle("solid")
	}
	e.SetDir("forward")
	if edge.Open {
		e.SetArrowHead("none")
	} else {
		e.SetArrowHead("normal")
	}
}

func graphvizLabel(s string) string {
	s = strings.ReplaceAll(s, "<br/>", "\n")
	return strings.ReplaceAll(s, "<br>", "\n")
}
