package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlowchart_ShapesAndEdges(t *testing.T) {
	src := `flowchart LR
    a[Fetch data] --> b{Valid?}
    b -->|yes| c((Done))
    b -- retry --> a
    b -.-> d(Log)
    d ==> e([Archive])
    e --- f[(Store)]
`
	model, err := ParseFlowchart(src)
	require.NoError(t, err)

	assert.Equal(t, DirectionLR, model.Direction)
	require.Len(t, model.Nodes, 6)

	kinds := map[string]NodeKind{}
	labels := map[string]string{}
	for _, n := range model.Nodes {
		kinds[n.ID] = n.Kind
		labels[n.ID] = n.Label
	}
	assert.Equal(t, NodeKindProcess, kinds["a"])
	assert.Equal(t, NodeKindDecision, kinds["b"])
	assert.Equal(t, NodeKindEvent, kinds["c"])
	assert.Equal(t, NodeKindRounded, kinds["d"])
	assert.Equal(t, NodeKindStadium, kinds["e"])
	assert.Equal(t, NodeKindDatabase, kinds["f"])
	assert.Equal(t, "Fetch data", labels["a"])
	assert.Equal(t, "Valid?", labels["b"])

	require.Len(t, model.Edges, 6)
	assert.Equal(t, Edge{From: "a", To: "b", Style: EdgeSolid}, model.Edges[0])
	assert.Equal(t, Edge{From: "b", To: "c", Label: "yes", Style: EdgeSolid}, model.Edges[1])
	assert.Equal(t, Edge{From: "b", To: "a", Label: "retry", Style: EdgeSolid}, model.Edges[2])
	assert.Equal(t, EdgeDotted, model.Edges[3].Style)
	assert.Equal(t, EdgeThick, model.Edges[4].Style)
	assert.True(t, model.Edges[5].Open)
}

func TestParseFlowchart_HeaderVariants(t *testing.T) {
	tests := []struct {
		header string
		want   Direction
	}{
		{"graph TD", DirectionTD},
		{"graph TB", DirectionTD},
		{"flowchart", DirectionTD},
		{"flowchart BT", DirectionBT},
		{"graph RL", DirectionRL},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			model, err := ParseFlowchart(tt.header + "\n  A --> B")
			require.NoError(t, err)
			assert.Equal(t, tt.want, model.Direction)
		})
	}
}

func TestParseFlowchart_DirectiveAndComments(t *testing.T) {
	src := "%%{init: {\"theme\":\"dark\"}}%%\ngraph TD\n%% a comment\nA-->B; B-->C\nclassDef hot fill:#f00\nclass A hot\nstyle B fill:#0f0\n"
	model, err := ParseFlowchart(src)
	require.NoError(t, err)
	assert.Len(t, model.Nodes, 3)
	assert.Len(t, model.Edges, 2)
}

func TestParseFlowchart_Ampersand(t *testing.T) {
	model, err := ParseFlowchart("graph TD\n a & b --> c & d")
	require.NoError(t, err)
	require.Len(t, model.Edges, 4)
	assert.Equal(t, "a", model.Edges[0].From)
	assert.Equal(t, "c", model.Edges[0].To)
	assert.Equal(t, "b", model.Edges[3].From)
	assert.Equal(t, "d", model.Edges[3].To)
}

func TestParseFlowchart_LaterDefinitionUpdatesLabel(t *testing.T) {
	model, err := ParseFlowchart("graph TD\n A --> B\n B{Decide}\n A[\"Quoted (label)\"]")
	require.NoError(t, err)
	assert.Equal(t, "Decide", model.Node("B").Label)
	assert.Equal(t, NodeKindDecision, model.Node("B").Kind)
	assert.Equal(t, "Quoted (label)", model.Node("A").Label)
}

func TestParseFlowchart_DashedIDs(t *testing.T) {
	model, err := ParseFlowchart("graph TD\n fetch-data-->store.v2")
	require.NoError(t, err)
	require.Len(t, model.Edges, 1)
	assert.Equal(t, "fetch-data", model.Edges[0].From)
	assert.Equal(t, "store.v2", model.Edges[0].To)
}

func TestParseFlowchart_ClassShorthand(t *testing.T) {
	model, err := ParseFlowchart("graph TD\n A[Hot]:::warm --> B")
	require.NoError(t, err)
	assert.Equal(t, []string{"warm"}, model.Node("A").Classes)
}

func TestParseFlowchart_SubGraphs(t *testing.T) {
	src := `graph TD
  subgraph backend[Back end]
    api --> db[(DB)]
  end
  subgraph Front end work
    ui
  end
  ui --> api`
	model, err := ParseFlowchart(src)
	require.NoError(t, err)
	require.Len(t, model.SubGraphs, 2)
	assert.Equal(t, "backend", model.SubGraphs[0].ID)
	assert.Equal(t, "Back end", model.SubGraphs[0].Label)
	assert.Equal(t, []string{"api", "db"}, model.SubGraphs[0].Nodes)
	assert.Equal(t, "Front_end_work", model.SubGraphs[1].ID)
	assert.Equal(t, []string{"ui"}, model.SubGraphs[1].Nodes)
	assert.Equal(t, "backend", model.SubGraphOf("db").ID)
	assert.Nil(t, model.SubGraphOf("nope"))
}

func TestParseFlowchart_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"empty", "", 1},
		{"missing header", "A --> B", 1},
		{"bad header", "sequenceDiagram\nA->>B: hi", 1},
		{"dangling link", "graph TD\nA -->", 2},
		{"garbage", "graph TD\nA --> B\nA ~~ B", 3},
		{"unterminated shape", "graph TD\n\nA[oops --> B", 3},
		{"stray end", "graph TD\nend", 2},
		{"unclosed subgraph", "graph TD\nsubgraph x\nA", 3},
		{"no source", "graph TD\n--> B", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFlowchart(tt.src)
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.line, pe.Line)
			assert.Contains(t, err.Error(), "Parse error on line")
		})
	}
}

func TestParseFlowchart_LineNumbersIgnoreInjectedDirective(t *testing.T) {
	_, err := ParseFlowchart("%%{init: {\"theme\":\"forest\"}}%%\ngraph TD\nA ~~ B")
	require.Error(t, err)
	assert.Equal(t, "Parse error on line 2: unexpected \"~~ B\"", err.Error())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(DefaultTemplate()))
	assert.Error(t, Validate("not a diagram"))
}

func TestComputeLevels(t *testing.T) {
	model, err := ParseFlowchart("graph TD\n a --> b --> d\n a --> c --> e --> d\n d --> a")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"e"}, {"d"}}, model.Levels)
}

func TestComputeLevels_Isolated(t *testing.T) {
	model, err := ParseFlowchart("graph TD\n x\n y --> y")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x", "y"}}, model.Levels)
}
