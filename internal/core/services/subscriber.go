package services

import (
	"fmt"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	apperrors "beamline/pkg/errors"
	"beamline/pkg/validation"
)

type SubscribeRequest struct {
	StreamKey domain.StreamKey

	// Sink receives every remote track. Optional.
	Sink ports.TrackSink
	// Resolution reports the rendered frame size for snapshots. Optional.
	Resolution ports.ResolutionSource
}

// Subscriber creates WHEP sessions receiving one audio and one video track.
type Subscriber struct {
	factory   ports.PeerConnectionFactory
	signaler  ports.Signaler
	transport domain.TransportConfig
	opts      SessionOptions
}

// NewSubscriber keeps transport as given; empty ICE servers mean the engine default.
func NewSubscriber(factory ports.PeerConnectionFactory, signaler ports.Signaler, transport domain.TransportConfig, opts SessionOptions) *Subscriber {
	return &Subscriber{
		factory:   factory,
		signaler:  signaler,
		transport: transport,
		opts:      opts.withDefaults(),
	}
}

func (sub *Subscriber) NewSession(req SubscribeRequest) (*MediaSession, error) {
	if err := validation.ValidateStreamKey(string(req.StreamKey)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	plan := negotiationPlan{
		transport:   sub.transport,
		precheck:    func() error { return nil },
		configure:   addReceivers,
		resolution:  req.Resolution,
		sink:        req.Sink,
		sampleStats: true,
	}
	return newMediaSession(domain.RoleSubscriber, req.StreamKey, sub.factory, sub.signaler, plan, sub.opts), nil
}

// addReceivers adds the recv-only transceivers, audio first.
func addReceivers(pc ports.PeerConnection) ([]domain.MediaKind, error) {
	for _, kind := range []domain.MediaKind{domain.MediaKindAudio, domain.MediaKindVideo} {
		if _, err := pc.AddTransceiver(kind, ports.TransceiverInit{Direction: domain.DirectionRecvOnly}); err != nil {
			return nil, apperrors.NewInternalError(fmt.Sprintf("failed to add %s receiver", kind), err)
		}
	}
	return nil, nil
}
