package engine

import (
	"sync"
	"time"

	"github.com/gigsync/gigsync/pkg/cache"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/syncer"
)

// EventType identifies what happened.
type EventType string

const (
	// EventCacheInfoChanged fires after any cache mutation.
	EventCacheInfoChanged EventType = "cache_info_changed"

	// EventSyncProgress fires as each mutation resolves during a drain.
	EventSyncProgress EventType = "sync_progress"

	// EventConflict fires when a mutation is parked in Conflict.
	EventConflict EventType = "conflict"

	// EventNetworkChanged fires on connectivity transitions.
	EventNetworkChanged EventType = "network_changed"
)

// Event is one engine notification. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	CacheInfo *cache.Info      `json:"cache_info,omitempty"`
	Progress  *syncer.Progress `json:"progress,omitempty"`
	Mutation  *queue.Mutation  `json:"mutation,omitempty"`
	Online    *bool            `json:"online,omitempty"`
}

// hub fans engine events out to subscribers. Publishing never blocks: a
// subscriber that stops draining loses events rather than stalling the
// engine. Consumers needing a consistent view should re-query Status.
type hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	h.mu.Lock()
	id := h.next
	h.next++
	ch := make(chan Event, buffer)
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
