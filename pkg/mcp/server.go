package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/lienzo/internal/expressions"
	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/internal/validation"
	"github.com/rendis/lienzo/internal/workspace"
)

// LienzoServerDeps holds the dependencies for creating a LienzoServer.
type LienzoServerDeps struct {
	Workspace *workspace.Workspace
	Engines   *expressions.Engines
	Hub       streaming.EventHub
	// Checker vets source before it is accepted: errors reject it and
	// warnings are returned with the result. Nil accepts anything and
	// leaves errors to the renderer.
	Checker validation.SourceChecker
	// ASCIIBinDir holds an optional mermaid-ascii binary used by
	// lienzo.preview; the built-in renderer is the fallback.
	ASCIIBinDir string
	Logger      *slog.Logger
}

// LienzoServer wraps an MCP server with the workspace tool handlers.
type LienzoServer struct {
	ws        *workspace.Workspace
	engines   *expressions.Engines
	hub       streaming.EventHub
	checker   validation.SourceChecker
	asciiDir  string
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewLienzoServer creates a new LienzoServer with all tools registered.
func NewLienzoServer(deps LienzoServerDeps) *LienzoServer {
	s := &LienzoServer{
		ws:       deps.Workspace,
		engines:  deps.Engines,
		hub:      deps.Hub,
		checker:  deps.Checker,
		asciiDir: deps.ASCIIBinDir,
		sessions: NewSessionRegistry(),
		logger:   logging.OrDefault(deps.Logger),
	}

	mcpSrv := server.NewMCPServer(
		"lienzo",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Lienzo is a diagram workbench shared with a human. Use lienzo.get_source and lienzo.set_source to read and edit the diagram notation, lienzo.status to see whether the last render succeeded, lienzo.references to read the nodes the user pointed at, lienzo.select to reference nodes by predicate, and lienzo.preview or lienzo.export to look at the result."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *LienzoServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *LienzoServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the registry of MCP client sessions that called a tool.
func (s *LienzoServer) Sessions() *SessionRegistry {
	return s.sessions
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *LienzoServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: getSourceTool(), Handler: s.handleGetSource},
		{Tool: setSourceTool(), Handler: s.handleSetSource},
		{Tool: undoTool(), Handler: s.handleUndo},
		{Tool: redoTool(), Handler: s.handleRedo},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: referencesTool(), Handler: s.handleReferences},
		{Tool: clearReferencesTool(), Handler: s.handleClearReferences},
		{Tool: setThemeTool(), Handler: s.handleSetTheme},
		{Tool: selectTool(), Handler: s.handleSelect},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: previewTool(), Handler: s.handlePreview},
		{Tool: exportTool(), Handler: s.handleExport},
	}
}

// --- Tool definitions ---

func getSourceTool() mcp.Tool {
	return mcp.NewTool("lienzo.get_source",
		mcp.WithDescription("Get the current diagram source"),
	)
}

func setSourceTool() mcp.Tool {
	return mcp.NewTool("lienzo.set_source",
		mcp.WithDescription("Replace the diagram source and render it"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Diagram notation")),
		mcp.WithBoolean("skip_history", mcp.Description("Do not record an undo entry (for streamed intermediate edits)")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the render and return its outcome (default: true)")),
	)
}

func undoTool() mcp.Tool {
	return mcp.NewTool("lienzo.undo",
		mcp.WithDescription("Restore the previous diagram source"),
	)
}

func redoTool() mcp.Tool {
	return mcp.NewTool("lienzo.redo",
		mcp.WithDescription("Re-apply the most recently undone source"),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("lienzo.status",
		mcp.WithDescription("Get render outcome, viewport, history and reference state"),
	)
}

func referencesTool() mcp.Tool {
	return mcp.NewTool("lienzo.references",
		mcp.WithDescription("List the diagram nodes the user referenced"),
		mcp.WithString("filter", mcp.Description("jq filter over {refs}, e.g. '.refs | map(select(.nodeType == \"decision\"))'")),
		mcp.WithString("template", mcp.Description("Format each reference with ${{ref.nodeText}} style placeholders; ${{index}} is 1-based")),
	)
}

func clearReferencesTool() mcp.Tool {
	return mcp.NewTool("lienzo.clear_references",
		mcp.WithDescription("Discard all pending references"),
	)
}

func setThemeTool() mcp.Tool {
	return mcp.NewTool("lienzo.set_theme",
		mcp.WithDescription("Switch the diagram theme"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Theme id (default, dark, forest, neutral, base or a catalog theme)")),
	)
}

func selectTool() mcp.Tool {
	return mcp.NewTool("lienzo.select",
		mcp.WithDescription("Reference every node matching a predicate"),
		mcp.WithString("predicate", mcp.Required(), mcp.Description("Boolean expression over node (id, text, type, bounds, referenced), refs and scene")),
		mcp.WithString("language", mcp.Enum("cel", "expr"), mcp.Description("Predicate language (default: cel)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("lienzo.query",
		mcp.WithDescription("Evaluate an expression over the scene nodes and references"),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Expression over {nodes, refs, scene}")),
		mcp.WithString("language", mcp.Enum("jq", "cel", "expr"), mcp.Description("Expression language (default: jq)")),
	)
}

func previewTool() mcp.Tool {
	return mcp.NewTool("lienzo.preview",
		mcp.WithDescription("Preview the current flowchart as text"),
		mcp.WithString("format", mcp.Enum("ascii", "notation"), mcp.Description("ascii (box drawing) or notation (normalized source); default: ascii")),
	)
}

func exportTool() mcp.Tool {
	return mcp.NewTool("lienzo.export",
		mcp.WithDescription("Export the rendered diagram as a base64 PNG or SVG"),
		mcp.WithString("format", mcp.Enum("png", "svg"), mcp.Description("Export format (default: png)")),
		mcp.WithNumber("scale", mcp.Description("Bitmap scale factor (default: 2)")),
		mcp.WithString("background", mcp.Description("Background colour, e.g. white or #1e1e1e (default: transparent)")),
	)
}
