package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/pkg/schema"
)

func TestSessionRegistry_RegisterAndList(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("session-b")
	r.Register("session-a")
	r.Register("session-a")
	r.Register("")

	assert.Equal(t, []string{"session-a", "session-b"}, r.List())
	assert.True(t, r.Has("session-a"))
	assert.False(t, r.Has(""))
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()

	r.Register("session-abc")
	r.Register("session-xyz")
	r.Remove("session-abc")
	r.Remove("unknown")

	assert.False(t, r.Has("session-abc"))
	assert.Equal(t, []string{"session-xyz"}, r.List())
}

func TestNotificationPayload(t *testing.T) {
	p := notificationPayload(streaming.StreamEvent{
		SessionID: "s",
		EventType: schema.EventRenderFailed,
		Payload:   map[string]any{"message": "Parse error on line 1"},
	})
	assert.Equal(t, "warning", p["level"])
	data := p["data"].(map[string]any)
	assert.Equal(t, schema.EventRenderFailed, data["event"])

	p = notificationPayload(streaming.StreamEvent{EventType: schema.EventRenderSucceeded})
	assert.Equal(t, "info", p["level"])
}
