package streaming

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultChannelBuffer = 64

type subscriber struct {
	ch     chan StreamEvent
	filter EventFilter
}

type retainKey struct {
	session, eventType string
}

// MemoryHub is an in-memory EventHub. It retains the latest event per
// session and type for replaying subscribers.
type MemoryHub struct {
	mu       sync.RWMutex
	subs     map[uint64]*subscriber
	retained map[retainKey]StreamEvent
	subSeq   atomic.Uint64
	eventSeq atomic.Uint64
	dropped  atomic.Uint64
	now      func() time.Time
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs:     make(map[uint64]*subscriber),
		retained: make(map[retainKey]StreamEvent),
		now:      time.Now,
	}
}

// Publish stamps the event and sends it to all matching subscribers.
// Non-blocking: if a subscriber's channel is full the event is dropped for
// that subscriber.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event.Seq = h.eventSeq.Add(1)
	if event.Time.IsZero() {
		event.Time = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.retained[retainKey{event.SessionID, event.EventType}] = event

	for _, sub := range h.subs {
		if matchFilter(sub.filter, event) {
			h.deliver(sub, event)
		}
	}
	return nil
}

func (h *MemoryHub) deliver(sub *subscriber, event StreamEvent) {
	select {
	case sub.ch <- event:
	default:
		h.dropped.Add(1)
	}
}

// Subscribe registers a filtered subscription. The returned cancel func
// removes it; the channel is never closed.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.subSeq.Add(1)
	sub := &subscriber{ch: make(chan StreamEvent, defaultChannelBuffer), filter: filter}

	h.mu.Lock()
	if filter.Replay {
		for _, e := range h.replayLocked(filter) {
			h.deliver(sub, e)
		}
	}
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return sub.ch, cancel, nil
}

// replayLocked returns the retained events matching filter in publish
// order.
func (h *MemoryHub) replayLocked(filter EventFilter) []StreamEvent {
	var out []StreamEvent
	for _, e := range h.retained {
		if matchFilter(filter, e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Forget drops the retained events of a session.
func (h *MemoryHub) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.retained {
		if k.session == sessionID {
			delete(h.retained, k)
		}
	}
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *MemoryHub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Emit publishes an event on hub, tolerating a nil hub.
func Emit(ctx context.Context, hub EventHub, sessionID, eventType string, payload any) error {
	if hub == nil {
		return nil
	}
	return hub.Publish(ctx, StreamEvent{SessionID: sessionID, EventType: eventType, Payload: payload})
}

var _ EventHub = (*MemoryHub)(nil)

func matchFilter(f EventFilter, e StreamEvent) bool {
	if f.SessionID != "" && f.SessionID != e.SessionID {
		return false
	}
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == e.EventType {
			return true
		}
		if prefix, ok := strings.CutSuffix(t, "*"); ok && strings.HasSuffix(prefix, ".") && strings.HasPrefix(e.EventType, prefix) {
			return true
		}
	}
	return false
}
