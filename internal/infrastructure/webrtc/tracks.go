package webrtc

import (
	"errors"
	"fmt"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

var ErrUnsupportedTrack = errors.New("local track was not created by this engine")

// LocalTrack is an outgoing track fed with RTP packets.
type LocalTrack struct {
	kind  domain.MediaKind
	track *webrtc.TrackLocalStaticRTP
}

var _ ports.LocalTrack = (*LocalTrack)(nil)

// NewLocalTrack creates a track for a codec of the engine's table. The msid
// stream of the track is fixed here.
func NewLocalTrack(mimeType, id, streamID string) (*LocalTrack, error) {
	capability, ok := lookupCapability(mimeType)
	if !ok {
		return nil, fmt.Errorf("codec %q is not registered", mimeType)
	}
	track, err := webrtc.NewTrackLocalStaticRTP(capability, id, streamID)
	if err != nil {
		return nil, err
	}
	return &LocalTrack{kind: domain.CodecCapability{MimeType: mimeType}.Kind(), track: track}, nil
}

func (t *LocalTrack) ID() string             { return t.track.ID() }
func (t *LocalTrack) StreamID() string       { return t.track.StreamID() }
func (t *LocalTrack) Kind() domain.MediaKind { return t.kind }

// WriteRTP rewrites the packet's SSRC and payload type per bound sender.
func (t *LocalTrack) WriteRTP(p *rtp.Packet) error {
	return t.track.WriteRTP(p)
}

func (t *LocalTrack) Write(b []byte) (int, error) {
	return t.track.Write(b)
}

// RemoteTrack is an incoming track. Besides the port view it exposes the
// RTP and RTCP plumbing consumed by sinks.
type RemoteTrack struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	pc       *webrtc.PeerConnection
	frames   *frameCounter // video only
}

var _ ports.RemoteTrack = (*RemoteTrack)(nil)

func (t *RemoteTrack) ID() string             { return t.track.ID() }
func (t *RemoteTrack) StreamID() string       { return t.track.StreamID() }
func (t *RemoteTrack) Kind() domain.MediaKind { return kindOf(t.track.Kind()) }
func (t *RemoteTrack) Codec() string          { return t.track.Codec().MimeType }
func (t *RemoteTrack) SSRC() uint32           { return uint32(t.track.SSRC()) }

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, error) {
	p, _, err := t.track.ReadRTP()
	if err == nil && t.frames != nil {
		t.frames.observe(p)
	}
	return p, err
}

func (t *RemoteTrack) ReadRTCP() ([]rtcp.Packet, error) {
	packets, _, err := t.receiver.ReadRTCP()
	return packets, err
}

// RequestKeyframe sends a picture loss indication for the track.
func (t *RemoteTrack) RequestKeyframe() error {
	return t.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: t.SSRC()}})
}

// Transceiver adapts a pion transceiver.
type Transceiver struct {
	kind domain.MediaKind
	tr   *webrtc.RTPTransceiver
}

var _ ports.Transceiver = (*Transceiver)(nil)

func (t *Transceiver) Kind() domain.MediaKind { return t.kind }

func (t *Transceiver) SetCodecPreferences(codecs []domain.CodecCapability) error {
	params := make([]webrtc.RTPCodecParameters, 0, len(codecs))
	for _, c := range codecs {
		params = append(params, codecParameters(c))
	}
	return t.tr.SetCodecPreferences(params)
}

// SetDegradationPreference is not available in pion; senders adapt through
// the bandwidth estimator only.
func (t *Transceiver) SetDegradationPreference(domain.DegradationPreference) error {
	return domain.ErrNotSupported
}
