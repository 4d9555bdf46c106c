package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return StreamEvent{}
	}
}

func assertQuiet(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestPublish_StampsSequenceAndTime(t *testing.T) {
	hub := NewMemoryHub()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return fixed }
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s1", NodeID: "flowchart-A-0", EventType: "references.changed"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s1", EventType: "render.started", Payload: map[string]any{"seq": 4}}))

	first, second := recv(t, ch), recv(t, ch)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "flowchart-A-0", first.NodeID)
	assert.Equal(t, fixed, first.Time)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, map[string]any{"seq": 4}, second.Payload)
}

func TestMatchFilter(t *testing.T) {
	ev := StreamEvent{SessionID: "s1", EventType: "render.failed"}
	tests := []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{"empty", EventFilter{}, true},
		{"session match", EventFilter{SessionID: "s1"}, true},
		{"session mismatch", EventFilter{SessionID: "s2"}, false},
		{"exact type", EventFilter{EventTypes: []string{"render.succeeded", "render.failed"}}, true},
		{"other type", EventFilter{EventTypes: []string{"viewport.changed"}}, false},
		{"prefix", EventFilter{EventTypes: []string{"render.*"}}, true},
		{"prefix mismatch", EventFilter{EventTypes: []string{"autofit.*"}}, false},
		{"bare star is not a prefix", EventFilter{EventTypes: []string{"render*"}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matchFilter(tc.filter, ev))
		})
	}
}

func TestSubscribe_FiltersLiveEvents(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{SessionID: "s1", EventTypes: []string{"render.*"}})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s2", EventType: "render.succeeded"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s1", EventType: "viewport.changed"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s1", EventType: "render.succeeded"}))

	assert.Equal(t, "render.succeeded", recv(t, ch).EventType)
	assertQuiet(t, ch)
}

func TestSubscribe_FanOut(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	panelCh, cancelPanel, err := hub.Subscribe(ctx, EventFilter{SessionID: "s1"})
	require.NoError(t, err)
	defer cancelPanel()
	logCh, cancelLog, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancelLog()
	assert.Equal(t, 2, hub.Subscribers())

	require.NoError(t, Emit(ctx, hub, "s1", "theme.changed", map[string]any{"theme": "dark"}))
	for _, ch := range []<-chan StreamEvent{panelCh, logCh} {
		got := recv(t, ch)
		assert.Equal(t, "theme.changed", got.EventType)
		assert.Equal(t, map[string]any{"theme": "dark"}, got.Payload)
	}
}

func TestSubscribe_Cancel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	cancel()
	assert.Zero(t, hub.Subscribers())

	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s1", EventType: "render.succeeded"}))
	assertQuiet(t, ch)
}

func TestSubscribe_ReplayRetainedState(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	require.NoError(t, Emit(ctx, hub, "s1", "render.succeeded", map[string]any{"seq": 1}))
	require.NoError(t, Emit(ctx, hub, "s1", "viewport.changed", nil))
	require.NoError(t, Emit(ctx, hub, "s1", "render.failed", map[string]any{"seq": 2}))
	require.NoError(t, Emit(ctx, hub, "s2", "render.succeeded", nil))
	require.NoError(t, Emit(ctx, hub, "s1", "render.succeeded", map[string]any{"seq": 3}))

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{SessionID: "s1", EventTypes: []string{"render.*"}, Replay: true})
	require.NoError(t, err)
	defer cancel()

	failed, succeeded := recv(t, ch), recv(t, ch)
	assert.Equal(t, "render.failed", failed.EventType)
	assert.Equal(t, "render.succeeded", succeeded.EventType)
	assert.Equal(t, map[string]any{"seq": 3}, succeeded.Payload, "only the latest event per type is retained")
	assert.Less(t, failed.Seq, succeeded.Seq)
	assertQuiet(t, ch)

	require.NoError(t, Emit(ctx, hub, "s1", "render.started", nil))
	assert.Equal(t, "render.started", recv(t, ch).EventType)
}

func TestSubscribe_NoReplayByDefault(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	require.NoError(t, Emit(ctx, hub, "s1", "render.succeeded", nil))

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()
	assertQuiet(t, ch)
}

func TestForget(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	require.NoError(t, Emit(ctx, hub, "s1", "render.succeeded", nil))
	require.NoError(t, Emit(ctx, hub, "s2", "render.succeeded", nil))
	hub.Forget("s1")

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{Replay: true})
	require.NoError(t, err)
	defer cancel()
	assert.Equal(t, "s2", recv(t, ch).SessionID)
	assertQuiet(t, ch)
}

func TestPublish_SlowSubscriberDrops(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s1", EventType: "viewport.changed"}))
	}
	assert.Len(t, ch, defaultChannelBuffer)
	assert.Equal(t, uint64(10), hub.Dropped())
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = Emit(ctx, hub, "s1", "viewport.changed", j)
			}
		}()
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{Replay: true})
			if err != nil {
				return
			}
			defer cancel()
			for range 5 {
				select {
				case <-ch:
				case <-time.After(5 * time.Millisecond):
				}
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.Subscribers())
}

func TestCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, StreamEvent{SessionID: "s1", EventType: "render.started"}), context.Canceled)
	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmit_NilHub(t *testing.T) {
	assert.NoError(t, Emit(context.Background(), nil, "s1", "render.started", nil))
}
