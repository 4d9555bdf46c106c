package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lienzo/internal/identity"
	"github.com/rendis/lienzo/internal/render"
	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/pkg/schema"
)

func TestRenderImage(t *testing.T) {
	model, err := ParseFlowchart(DefaultTemplate())
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	// Verify PNG magic bytes: 0x89 P N G.
	assert.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestGraphvizRenderer_Render(t *testing.T) {
	r := NewGraphvizRenderer(nil)
	src, err := render.ApplyTheme(DefaultTemplate(), schema.ThemeSpec{ID: "dark", Base: "dark"})
	require.NoError(t, err)

	sc, err := r.Render(context.Background(), src, "diagram-1")
	require.NoError(t, err)
	require.NotNil(t, sc)

	assert.Equal(t, "svg", sc.Root.Tag)
	assert.Equal(t, "diagram-1", sc.Root.ID())

	size, ok := sc.Measure()
	require.True(t, ok)
	assert.Greater(t, size.W, 0.0)
	assert.Greater(t, size.H, 0.0)

	nodes := sc.Find(func(e *scene.Element) bool { return e.HasClass("node") })
	assert.Len(t, nodes, 4)

	// Every graphviz node group resolves to a reference carrying its label.
	res := identity.NewResolver()
	texts := map[string]bool{}
	for _, n := range nodes {
		ref, ok := res.Resolve(n)
		require.True(t, ok)
		texts[ref.NodeText] = true
	}
	assert.True(t, texts["Looks right?"])
	assert.True(t, texts["Sketch the idea"])
}

func TestGraphvizRenderer_ParseErrorVerbatim(t *testing.T) {
	_, err := NewGraphvizRenderer(nil).Render(context.Background(), "graph TD\nA ~~ B", "diagram-2")
	require.Error(t, err)
	assert.Equal(t, `Parse error on line 2: unexpected "~~ B"`, err.Error())
}

func TestGraphvizRenderer_StableIDsAcrossRenders(t *testing.T) {
	r := NewGraphvizRenderer(nil)
	ids := func(target string) []string {
		sc, err := r.Render(context.Background(), DefaultTemplate(), target)
		require.NoError(t, err)
		var out []string
		for _, n := range sc.Find(func(e *scene.Element) bool { return e.HasClass("node") }) {
			out = append(out, identity.StableID(n, identity.DefaultIDAttr))
		}
		return out
	}
	assert.Equal(t, ids("diagram-1"), ids("diagram-2"))
}

func TestGraphvizRenderer_EdgeLabels(t *testing.T) {
	r := NewGraphvizRenderer(nil)
	sc, err := r.Render(context.Background(), "graph TD\n A[Start] -->|yes| B[End]\n B --> C[Done]", "diagram-1")
	require.NoError(t, err)

	edges := sc.Find(func(e *scene.Element) bool { return e.HasClass("edge") })
	require.Len(t, edges, 2)

	res := identity.NewResolver()
	var labels []string
	for _, edge := range edges {
		var path *scene.Element
		for _, c := range edge.ElementChildren() {
			if c.Tag == "path" {
				path = c
			}
		}
		require.NotNil(t, path)
		_, ok := res.Resolve(path)
		assert.False(t, ok, "connector line must not resolve")

		for _, c := range edge.ElementChildren() {
			if c.HasClass("edgeLabel") {
				ref, ok := res.Resolve(c)
				require.True(t, ok)
				labels = append(labels, ref.NodeText)
			}
		}
	}
	assert.Equal(t, []string{"yes"}, labels)
}

func TestPaletteFor(t *testing.T) {
	p := paletteFor(render.Directive{Theme: "forest", ThemeVariables: map[string]string{
		"primaryColor": "#abcdef",
		"mainBkg":      "#ignored",
		"fontFamily":   "Inter",
	}})
	assert.Equal(t, "#abcdef", p.fill)
	assert.Equal(t, "#13540c", p.stroke)
	assert.Equal(t, "Inter", p.font)

	p = paletteFor(render.Directive{Theme: "unknown"})
	assert.Equal(t, basePalettes["default"], p)
}

func TestRenderSVG_LeftToRight(t *testing.T) {
	model, err := ParseFlowchart("graph LR\n a --> b")
	require.NoError(t, err)
	svg, err := RenderSVG(context.Background(), model, render.Directive{Theme: "neutral"})
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
}
