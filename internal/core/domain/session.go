package domain

import "time"

type SessionID string
type StreamKey string

type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

type SessionState string

const (
	StateIdle           SessionState = "idle"
	StateNegotiating    SessionState = "negotiating"
	StateAwaitingAnswer SessionState = "awaiting_answer"
	StateConnected      SessionState = "connected"
	StateFailed         SessionState = "failed"
	StateClosed         SessionState = "closed"
)

// progress orders the non-terminal states; transitions may only move one step forward.
var progress = map[SessionState]int{
	StateIdle:           0,
	StateNegotiating:    1,
	StateAwaitingAnswer: 2,
	StateConnected:      3,
}

// CanTransition reports whether a session may move from one state to another.
// Failed is reachable from any progress state, Closed from anything but Closed.
func (s SessionState) CanTransition(to SessionState) bool {
	switch to {
	case StateClosed:
		return s != StateClosed
	case StateFailed:
		_, ok := progress[s]
		return ok
	}

	from, ok := progress[s]
	if !ok {
		return false
	}
	next, ok := progress[to]
	return ok && next == from+1
}

// Terminal reports whether no further negotiation progress is possible.
func (s SessionState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// ConnectionState mirrors the peer connection state reported by the engine.
type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)

type SessionInfo struct {
	ID             SessionID       `json:"id"`
	Role           Role            `json:"role"`
	State          SessionState    `json:"state"`
	Connection     ConnectionState `json:"connection_state"`
	CreatedAt      time.Time       `json:"created_at"`
	LastSnapshot   MetricsSnapshot `json:"last_snapshot"`
	RemoteStreams  []string        `json:"remote_streams,omitempty"`
	LocalTrackKind []MediaKind     `json:"local_tracks,omitempty"`
}
