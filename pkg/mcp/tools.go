package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/lienzo/internal/diagram"
	"github.com/rendis/lienzo/internal/export"
	"github.com/rendis/lienzo/internal/expressions"
	"github.com/rendis/lienzo/pkg/schema"
)

// settleTimeout bounds how long lienzo.set_source waits for its render.
const settleTimeout = 30 * time.Second

// handleGetSource returns the current source as text.
func (s *LienzoServer) handleGetSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	return mcp.NewToolResultText(s.ws.Source()), nil
}

// handleSetSource validates and applies new source. By default it waits for
// the render and reports the outcome so the caller sees parse errors.
func (s *LienzoServer) handleSetSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	s.captureSession(ctx)

	var warnings []schema.ValidationIssue
	if s.checker != nil {
		check := s.checker.CheckSource(source)
		if verr := check.ToError(); verr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid source: %v", verr)), nil
		}
		warnings = check.Warnings
		if len(warnings) > 0 {
			s.logger.Debug("source accepted with warnings", "warnings", check.Summary())
		}
	}

	changed := s.ws.SetSource(source, req.GetBool("skip_history", false))
	result := map[string]any{
		"changed":  changed,
		"can_undo": s.ws.CanUndo(),
	}
	if len(warnings) > 0 {
		result["warnings"] = warnings
	}
	if !req.GetBool("wait", true) {
		return marshalResult(result)
	}

	waitCtx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	outcome, err := s.ws.Settle(waitCtx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("render did not settle: %v", err)), nil
	}
	result["outcome"] = outcome
	return marshalResult(result)
}

func (s *LienzoServer) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	return s.historyResult(s.ws.Undo())
}

func (s *LienzoServer) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	return s.historyResult(s.ws.Redo())
}

func (s *LienzoServer) historyResult(changed bool) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"changed":  changed,
		"source":   s.ws.Source(),
		"can_undo": s.ws.CanUndo(),
		"can_redo": s.ws.CanRedo(),
	})
}

// handleStatus returns the workspace status.
func (s *LienzoServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	return marshalResult(s.ws.Status())
}

// handleReferences lists the pending references, optionally through a jq
// filter or a per-reference text template.
func (s *LienzoServer) handleReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	refs := s.ws.References()

	if tpl := req.GetString("template", ""); tpl != "" {
		lines, err := expressions.FormatReferences(tpl, refs)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("template failed: %v", err)), nil
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	}

	filter := req.GetString("filter", "")
	if filter == "" {
		return marshalResult(map[string]any{"references": refs})
	}
	jq, err := s.engine("jq")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scope := &expressions.Scope{References: refs}
	v, err := jq.Evaluate(ctx, filter, scope.Data())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("filter failed: %v", err)), nil
	}
	return marshalResult(v)
}

func (s *LienzoServer) handleClearReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.captureSession(ctx)
	n := len(s.ws.References())
	s.ws.ClearReferences()
	return marshalResult(map[string]any{"cleared": n})
}

func (s *LienzoServer) handleSetTheme(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	s.captureSession(ctx)
	if err := s.ws.SetTheme(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(map[string]any{"theme_id": id})
}

// handleSelect references every node matching a predicate.
func (s *LienzoServer) handleSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	predicate, err := req.RequireString("predicate")
	if err != nil {
		return mcp.NewToolResultError("predicate is required"), nil
	}
	s.captureSession(ctx)

	engine, err := s.engine(req.GetString("language", "cel"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matched, added, err := s.ws.SelectWhere(ctx, engine, predicate)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(map[string]any{
		"matched":    len(matched),
		"added":      added,
		"references": len(s.ws.References()),
	})
}

// handleQuery evaluates an expression against {nodes, refs, scene}.
func (s *LienzoServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	s.captureSession(ctx)

	engine, err := s.engine(req.GetString("language", "jq"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := expressions.Query(ctx, engine, expression, s.ws.ExpressionScope())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(v)
}

// handlePreview renders the current source as ASCII art or normalized
// notation. Only flowchart notation is understood.
func (s *LienzoServer) handlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := req.GetString("format", "ascii")
	if format != "ascii" && format != "notation" {
		return mcp.NewToolResultError("format must be ascii or notation"), nil
	}
	s.captureSession(ctx)

	model, err := diagram.ParseFlowchart(s.ws.Source())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preview failed: %v", err)), nil
	}
	if format == "notation" {
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	}
	return mcp.NewToolResultText(diagram.RenderASCIIAuto(ctx, model, s.asciiDir)), nil
}

// handleExport exports the current scene and returns it base64-encoded.
func (s *LienzoServer) handleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := export.ParseFormat(req.GetString("format", string(export.FormatPNG)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.captureSession(ctx)

	a, err := s.ws.Export(ctx, format, export.Options{
		Scale:      req.GetFloat("scale", export.DefaultScale),
		Background: req.GetString("background", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}
	encoded := base64.StdEncoding.EncodeToString(a.Data)
	return mcp.NewToolResultImage(a.Filename(), encoded, a.MediaType), nil
}

// --- Internal helpers ---

func (s *LienzoServer) engine(language string) (expressions.Engine, error) {
	if s.engines == nil {
		return nil, schema.NewError(schema.ErrCodeExpression, "expression engines not configured")
	}
	return s.engines.Get(language)
}

// captureSession records the calling MCP client session for notifications.
func (s *LienzoServer) captureSession(ctx context.Context) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
