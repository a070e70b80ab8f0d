package services

import (
	"fmt"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	apperrors "beamline/pkg/errors"
	"beamline/pkg/validation"
)

type PublishRequest struct {
	StreamKey domain.StreamKey
	Source    ports.MediaSource

	AudioProfile domain.CodecProfile
	VideoProfile domain.CodecProfile

	// Zero MaxBitrate falls back to the transport default for the kind.
	AudioEncoding domain.EncodingParameters
	VideoEncoding domain.EncodingParameters

	UseMaintainResolution bool
}

// Publisher creates WHIP sessions sending a local media source.
type Publisher struct {
	factory   ports.PeerConnectionFactory
	signaler  ports.Signaler
	transport domain.TransportConfig
	opts      SessionOptions
}

func NewPublisher(factory ports.PeerConnectionFactory, signaler ports.Signaler, transport domain.TransportConfig, opts SessionOptions) *Publisher {
	if len(transport.ICEServers) == 0 {
		transport.ICEServers = domain.DefaultSTUNServers
	}
	if transport.AudioMaxBitrate == 0 {
		transport.AudioMaxBitrate = domain.DefaultAudioMaxBitrate
	}
	if transport.VideoMaxBitrate == 0 {
		transport.VideoMaxBitrate = domain.DefaultVideoMaxBitrate
	}
	return &Publisher{
		factory:   factory,
		signaler:  signaler,
		transport: transport,
		opts:      opts.withDefaults(),
	}
}

// NewSession validates req and returns an idle session. Call Negotiate to publish.
func (p *Publisher) NewSession(req PublishRequest) (*MediaSession, error) {
	if err := validation.ValidateStreamKey(string(req.StreamKey)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	for _, name := range []string{req.AudioProfile.Name, req.VideoProfile.Name} {
		if err := validation.ValidateCodecName(name); err != nil {
			return nil, apperrors.NewInvalidInputError(err.Error())
		}
	}

	var s *MediaSession
	plan := negotiationPlan{
		transport: p.transport,
		precheck: func() error {
			if localTrack(req.Source, domain.MediaKindAudio) == nil && localTrack(req.Source, domain.MediaKindVideo) == nil {
				return apperrors.NewMediaAcquisitionError("media source has no audio or video track", domain.ErrNoLocalTracks)
			}
			return nil
		},
		configure: func(pc ports.PeerConnection) ([]domain.MediaKind, error) {
			return p.configure(s, pc, req)
		},
	}
	s = newMediaSession(domain.RolePublisher, req.StreamKey, p.factory, p.signaler, plan, p.opts)
	return s, nil
}

func (p *Publisher) configure(s *MediaSession, pc ports.PeerConnection, req PublishRequest) ([]domain.MediaKind, error) {
	transceivers := make(map[domain.MediaKind]ports.Transceiver, 2)
	var kinds []domain.MediaKind

	for _, kind := range []domain.MediaKind{domain.MediaKindAudio, domain.MediaKindVideo} {
		track := localTrack(req.Source, kind)
		if track == nil {
			s.logger.Debugw("No local track, skipping transceiver", "kind", kind)
			continue
		}

		maxBitrate := encodingFor(req, kind).MaxBitrate
		if maxBitrate == 0 {
			maxBitrate = p.transport.MaxBitrateFor(kind)
		}

		tr, err := pc.AddTransceiver(kind, ports.TransceiverInit{
			Direction:  domain.DirectionSendOnly,
			Track:      track,
			StreamIDs:  []string{string(s.id)},
			MaxBitrate: maxBitrate,
		})
		if err != nil {
			return nil, apperrors.NewMediaAcquisitionError(fmt.Sprintf("failed to add %s transceiver", kind), err)
		}
		transceivers[kind] = tr
		kinds = append(kinds, kind)
	}

	if video, ok := transceivers[domain.MediaKindVideo]; ok {
		pref := req.VideoEncoding.DegradationPreference
		if req.UseMaintainResolution {
			pref = domain.DegradationMaintainResolution
		}
		if pref != "" {
			if err := video.SetDegradationPreference(pref); err != nil {
				s.logger.Warnw("Failed to set degradation preference", "preference", pref, "error", err)
			}
		}
	}

	for _, kind := range kinds {
		profile := profileFor(req, kind)
		selected := SelectCodecPreferences(kind, p.factory.Capabilities(kind), profile)
		if len(selected) == 0 {
			if profile.Name != "" {
				s.logger.Warnw("No capability matches codec, keeping default order", "kind", kind, "codec", profile.Name)
			}
			continue
		}
		if err := transceivers[kind].SetCodecPreferences(selected); err != nil {
			s.logger.Warnw("Failed to set codec preferences", "kind", kind, "codec", profile.Name, "error", err)
		}
	}

	return kinds, nil
}

func localTrack(src ports.MediaSource, kind domain.MediaKind) ports.LocalTrack {
	if src == nil {
		return nil
	}
	if kind == domain.MediaKindAudio {
		return src.AudioTrack()
	}
	return src.VideoTrack()
}

func encodingFor(req PublishRequest, kind domain.MediaKind) domain.EncodingParameters {
	if kind == domain.MediaKindAudio {
		return req.AudioEncoding
	}
	return req.VideoEncoding
}

func profileFor(req PublishRequest, kind domain.MediaKind) domain.CodecProfile {
	if kind == domain.MediaKindAudio {
		return req.AudioProfile
	}
	return req.VideoProfile
}
