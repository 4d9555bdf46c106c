package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lienzo/internal/expressions"
	"github.com/rendis/lienzo/internal/render"
	"github.com/rendis/lienzo/internal/scene"
	"github.com/rendis/lienzo/internal/theme"
	"github.com/rendis/lienzo/internal/validation"
	"github.com/rendis/lienzo/internal/viewport"
	"github.com/rendis/lienzo/internal/workspace"
	"github.com/rendis/lienzo/pkg/schema"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 400 400">
  <g class="node" id="flowchart-A-0" transform="translate(10,10)">
    <rect width="20" height="20"/><text x="2" y="14">Start</text>
  </g>
  <g class="node" id="flowchart-B-1" transform="translate(200,200)">
    <polygon points="10,0 20,10 10,20 0,10"/><text x="2" y="14">Ok?</text>
  </g>
</svg>`

var stubRenderer = render.RendererFunc(func(_ context.Context, source, targetID string) (*scene.Scene, error) {
	if strings.Contains(render.StripDirectives(source), "bad") {
		return nil, errors.New("Parse error: bad token")
	}
	return scene.FromSVG(targetID, testSVG)
})

func newTestServer(t *testing.T, checker validation.SourceChecker) (*LienzoServer, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(stubRenderer, theme.NewCatalog(),
		workspace.WithSource("flowchart TD\n  A[Start] --> B{Ok?}"),
		workspace.WithDebounce(func(string) time.Duration { return time.Millisecond }),
		workspace.WithFit(viewport.DefaultMaxAttempts, time.Millisecond),
		workspace.WithViewSize(800, 600),
	)
	require.NoError(t, err)
	t.Cleanup(ws.Close)

	engines, err := expressions.NewEngines()
	require.NoError(t, err)

	ws.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = ws.Settle(ctx)
	require.NoError(t, err)

	return NewLienzoServer(LienzoServerDeps{Workspace: ws, Engines: engines, Checker: checker}), ws
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func TestGetSourceTool(t *testing.T) {
	s, _ := newTestServer(t, nil)
	result, err := s.handleGetSource(context.Background(), buildRequest("lienzo.get_source", nil))
	require.NoError(t, err)
	assert.Equal(t, "flowchart TD\n  A[Start] --> B{Ok?}", extractText(t, result))
}

func TestSetSourceTool(t *testing.T) {
	s, ws := newTestServer(t, nil)

	req := buildRequest("lienzo.set_source", map[string]any{"source": "flowchart LR\n  X --> Y"})
	result, err := s.handleSetSource(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Changed bool                 `json:"changed"`
		CanUndo bool                 `json:"can_undo"`
		Outcome schema.RenderOutcome `json:"outcome"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Changed)
	assert.True(t, out.CanUndo)
	assert.True(t, out.Outcome.Rendered())
	assert.Equal(t, "flowchart LR\n  X --> Y", ws.Source())
}

func TestSetSourceTool_RenderFailureIsReported(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := buildRequest("lienzo.set_source", map[string]any{"source": "bad"})
	result, err := s.handleSetSource(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError, "a failed render is an outcome, not a tool error")

	var out struct {
		Outcome schema.RenderOutcome `json:"outcome"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Outcome.Failed())
	assert.Equal(t, "Parse error: bad token", out.Outcome.Message)
}

func TestSetSourceTool_Validation(t *testing.T) {
	s, ws := newTestServer(t, validation.FlowchartChecker{})

	req := buildRequest("lienzo.set_source", map[string]any{"source": "sequenceDiagram\n  A->>B: hi"})
	result, err := s.handleSetSource(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "Parse error on line 1")
	assert.False(t, ws.CanUndo(), "rejected source never reaches history")

	result, err = s.handleSetSource(context.Background(), buildRequest("lienzo.set_source", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSetSourceTool_Warnings(t *testing.T) {
	s, ws := newTestServer(t, validation.FlowchartChecker{})

	req := buildRequest("lienzo.set_source", map[string]any{
		"source": "flowchart TD\n  A --> B\n  C",
		"wait":   false,
	})
	result, err := s.handleSetSource(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Changed  bool                     `json:"changed"`
		Warnings []schema.ValidationIssue `json:"warnings"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Changed)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0].Message, `"C"`)
	assert.Equal(t, "flowchart TD\n  A --> B\n  C", ws.Source())
}

func TestSetSourceTool_NoWait(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := buildRequest("lienzo.set_source", map[string]any{"source": "flowchart TD\n  Q", "wait": false})
	result, err := s.handleSetSource(context.Background(), req)
	require.NoError(t, err)

	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.NotContains(t, out, "outcome")
}

func TestUndoRedoTools(t *testing.T) {
	s, ws := newTestServer(t, nil)
	ws.SetSource("flowchart TD\n  Z", false)

	result, err := s.handleUndo(context.Background(), buildRequest("lienzo.undo", nil))
	require.NoError(t, err)
	var out struct {
		Changed bool   `json:"changed"`
		Source  string `json:"source"`
		CanRedo bool   `json:"can_redo"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, out.Changed)
	assert.Equal(t, "flowchart TD\n  A[Start] --> B{Ok?}", out.Source)
	assert.True(t, out.CanRedo)

	result, err = s.handleRedo(context.Background(), buildRequest("lienzo.redo", nil))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	assert.Equal(t, "flowchart TD\n  Z", out.Source)

	result, err = s.handleRedo(context.Background(), buildRequest("lienzo.redo", nil))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	assert.False(t, out.Changed)
}

func TestStatusTool(t *testing.T) {
	s, ws := newTestServer(t, nil)
	result, err := s.handleStatus(context.Background(), buildRequest("lienzo.status", nil))
	require.NoError(t, err)

	var st workspace.Status
	unmarshalResult(t, result, &st)
	assert.Equal(t, ws.ID(), st.SessionID)
	assert.True(t, st.Outcome.Rendered())
	assert.Equal(t, theme.DefaultID, st.ThemeID)
}

func TestSelectAndReferencesTools(t *testing.T) {
	s, ws := newTestServer(t, nil)
	ctx := context.Background()

	result, err := s.handleSelect(ctx, buildRequest("lienzo.select", map[string]any{"predicate": `node.type == "decision"`}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	var sel struct {
		Matched    int                    `json:"matched"`
		Added      []schema.NodeReference `json:"added"`
		References int                    `json:"references"`
	}
	unmarshalResult(t, result, &sel)
	assert.Equal(t, 1, sel.Matched)
	require.Len(t, sel.Added, 1)
	assert.Equal(t, "Ok?", sel.Added[0].NodeText)

	result, err = s.handleSelect(ctx, buildRequest("lienzo.select", map[string]any{"predicate": `node.text == "Start"`, "language": "expr"}))
	require.NoError(t, err)
	unmarshalResult(t, result, &sel)
	assert.Equal(t, 2, sel.References)
	assert.Len(t, ws.References(), 2)

	result, err = s.handleReferences(ctx, buildRequest("lienzo.references", map[string]any{"filter": ".refs | map(.nodeText)"}))
	require.NoError(t, err)
	var texts []string
	unmarshalResult(t, result, &texts)
	assert.ElementsMatch(t, []string{"Ok?", "Start"}, texts)

	result, err = s.handleReferences(ctx, buildRequest("lienzo.references", map[string]any{"template": "${{index}}. ${{ref.nodeText}}"}))
	require.NoError(t, err)
	assert.Equal(t, "1. Ok?\n2. Start", extractText(t, result))

	result, err = s.handleClearReferences(ctx, buildRequest("lienzo.clear_references", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"cleared":2}`, extractText(t, result))
	assert.Empty(t, ws.References())
}

func TestSelectTool_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx := context.Background()

	result, err := s.handleSelect(ctx, buildRequest("lienzo.select", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSelect(ctx, buildRequest("lienzo.select", map[string]any{"predicate": "true", "language": "lua"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSelect(ctx, buildRequest("lienzo.select", map[string]any{"predicate": "node.text"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "want bool")
}

func TestQueryTool(t *testing.T) {
	s, _ := newTestServer(t, nil)
	result, err := s.handleQuery(context.Background(), buildRequest("lienzo.query", map[string]any{"expression": "[.nodes[] | .type]"}))
	require.NoError(t, err)
	var kinds []string
	unmarshalResult(t, result, &kinds)
	assert.Equal(t, []string{"process", "decision"}, kinds)

	result, err = s.handleQuery(context.Background(), buildRequest("lienzo.query", map[string]any{"expression": ".nodes | length"}))
	require.NoError(t, err)
	assert.Equal(t, "2", extractText(t, result))
}

func TestSetThemeTool(t *testing.T) {
	s, ws := newTestServer(t, nil)

	result, err := s.handleSetTheme(context.Background(), buildRequest("lienzo.set_theme", map[string]any{"id": "sepia"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleSetTheme(context.Background(), buildRequest("lienzo.set_theme", map[string]any{"id": "dark"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "dark", ws.ThemeID())
}

func TestPreviewTool(t *testing.T) {
	s, _ := newTestServer(t, nil)

	result, err := s.handlePreview(context.Background(), buildRequest("lienzo.preview", nil))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "Start")

	result, err = s.handlePreview(context.Background(), buildRequest("lienzo.preview", map[string]any{"format": "notation"}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "flowchart TD")

	result, err = s.handlePreview(context.Background(), buildRequest("lienzo.preview", map[string]any{"format": "svg"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExportTool(t *testing.T) {
	s, _ := newTestServer(t, nil)

	result, err := s.handleExport(context.Background(), buildRequest("lienzo.export", map[string]any{"format": "svg"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.NotEmpty(t, result.Content)
	img, ok := result.Content[len(result.Content)-1].(mcp.ImageContent)
	require.True(t, ok)
	assert.Equal(t, "image/svg+xml", img.MIMEType)
	data, err := base64.StdEncoding.DecodeString(img.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")

	result, err = s.handleExport(context.Background(), buildRequest("lienzo.export", map[string]any{"format": "bmp"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
