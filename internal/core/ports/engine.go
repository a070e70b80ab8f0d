package ports

import (
	"context"

	"beamline/internal/core/domain"
)

// PeerConnectionFactory builds peer connections and reports the codecs they can negotiate.
type PeerConnectionFactory interface {
	NewPeerConnection(cfg domain.TransportConfig) (PeerConnection, error)
	Capabilities(kind domain.MediaKind) []domain.CodecCapability
}

type TransceiverInit struct {
	Direction  domain.Direction
	Track      LocalTrack // nil for receive-only
	StreamIDs  []string
	MaxBitrate uint64
}

type PeerConnection interface {
	AddTransceiver(kind domain.MediaKind, init TransceiverInit) (Transceiver, error)
	CreateOffer(ctx context.Context) (string, error)
	SetLocalDescription(sdp string) error
	SetRemoteDescription(sdp string) error
	LocalDescription() string
	RemoteDescription() string
	ConnectionState() domain.ConnectionState
	InboundVideoStats() (domain.InboundVideoStats, bool)

	OnICECandidate(func(candidate string))
	OnConnectionStateChange(func(domain.ConnectionState))
	OnTrack(func(RemoteTrack))

	Close() error
}

type Transceiver interface {
	Kind() domain.MediaKind
	SetCodecPreferences(codecs []domain.CodecCapability) error
	SetDegradationPreference(pref domain.DegradationPreference) error
}

type LocalTrack interface {
	ID() string
	Kind() domain.MediaKind
}

type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() domain.MediaKind
	Codec() string
}

// MediaSource is the local capture handed to a publisher. Either track may be nil.
type MediaSource interface {
	AudioTrack() LocalTrack
	VideoTrack() LocalTrack
}

// TrackSink consumes every remote track of a subscriber session.
type TrackSink interface {
	Consume(ctx context.Context, track RemoteTrack)
}

// ResolutionSource reports the dimensions of the frame currently being rendered.
type ResolutionSource interface {
	Resolution() domain.Resolution
}
