package services

import (
	"sync"
	"sync/atomic"
	"time"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

type EventType string

const (
	EventICECandidate    EventType = "ice_candidate"
	EventConnectionState EventType = "connection_state"
	EventSessionState    EventType = "session_state"
	EventRemoteStream    EventType = "remote_stream"
	EventMetrics         EventType = "metrics"
)

// Event is one observation on a session. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	SessionID domain.SessionID
	Time      time.Time

	Candidate       string                 // EventICECandidate
	ConnectionState domain.ConnectionState // EventConnectionState
	From, To        domain.SessionState    // EventSessionState
	Err             error                  // EventSessionState into Failed
	StreamID        string                 // EventRemoteStream
	Track           ports.RemoteTrack      // EventRemoteStream, the first track of the stream
	Snapshot        domain.MetricsSnapshot // EventMetrics
}

// Subscription receives events until it is closed or the hub shuts down.
type Subscription struct {
	C <-chan Event

	id  uint64
	hub *EventHub
}

// Close detaches the subscription. C is closed afterwards.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.id)
}

// EventHub fans session events out to subscribers. Publish never blocks: an
// event is dropped for a subscriber whose buffer is full.
type EventHub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a new subscriber with the given channel buffer.
func (h *EventHub) Subscribe(buffer int) *Subscription {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{C: ch, id: h.nextID, hub: h}
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub.id] = ch
	return sub
}

func (h *EventHub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *EventHub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Close closes every subscriber channel. Later publishes are discarded.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
