package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/pkg/schema"
)

// NotifiedEvents are the workspace events pushed to MCP clients.
var NotifiedEvents = []string{
	schema.EventRenderSucceeded,
	schema.EventRenderFailed,
	schema.EventReferencesChanged,
	schema.EventThemeChanged,
}

// ClientNotifier pushes workspace events to connected MCP clients.
type ClientNotifier interface {
	Notify(ctx context.Context, sessionID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier using MCP server notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
	logger    *slog.Logger
}

// NewMCPNotifier creates a notifier for the sessions in the registry.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, logger *slog.Logger) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions, logger: logging.OrDefault(logger)}
}

// Notify sends a notification to one client session.
// Best-effort: an expired session is dropped from the registry.
func (n *MCPNotifier) Notify(_ context.Context, sessionID string, payload map[string]any) error {
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// Forward subscribes to the workspace's events on hub and notifies every
// registered client until ctx is cancelled.
func (n *MCPNotifier) Forward(ctx context.Context, hub streaming.EventHub, workspaceID string) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{SessionID: workspaceID, EventTypes: NotifiedEvents})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			payload := notificationPayload(ev)
			for _, sid := range n.sessions.List() {
				if err := n.Notify(ctx, sid, payload); err != nil {
					n.logger.Debug("mcp notification failed", "client_session", sid, "event", ev.EventType, "error", err)
				}
			}
		}
	}
}

// notificationPayload shapes an event as a logging message notification.
func notificationPayload(ev streaming.StreamEvent) map[string]any {
	level := "info"
	if ev.EventType == schema.EventRenderFailed {
		level = "warning"
	}
	return map[string]any{
		"level":  level,
		"logger": "lienzo",
		"data": map[string]any{
			"event": ev.EventType,
			"data":  ev.Payload,
		},
	}
}
