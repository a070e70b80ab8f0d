package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

// PeerConnection adapts a pion peer connection to the session's engine port.
// Offers are non-trickle: SetLocalDescription waits for gathering so the
// local description carries every candidate.
type PeerConnection struct {
	pc            *webrtc.PeerConnection
	stats         stats.Getter
	gatherTimeout time.Duration
	logger        *zap.SugaredLogger
	now           func() time.Time

	mu       sync.Mutex
	bitrates map[domain.MediaKind]uint64
	localSDP string
	video    *RemoteTrack
}

var _ ports.PeerConnection = (*PeerConnection)(nil)

func newPeerConnection(pc *webrtc.PeerConnection, getter stats.Getter, gatherTimeout time.Duration, logger *zap.SugaredLogger) *PeerConnection {
	return &PeerConnection{
		pc:            pc,
		stats:         getter,
		gatherTimeout: gatherTimeout,
		logger:        logger,
		now:           time.Now,
		bitrates:      make(map[domain.MediaKind]uint64),
	}
}

func (p *PeerConnection) AddTransceiver(kind domain.MediaKind, init ports.TransceiverInit) (ports.Transceiver, error) {
	codecType, ok := codecTypeOf(kind)
	if !ok {
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}

	var (
		tr  *webrtc.RTPTransceiver
		err error
	)
	switch init.Direction {
	case domain.DirectionSendOnly:
		local, ok := init.Track.(*LocalTrack)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedTrack, init.Track)
		}
		if len(init.StreamIDs) > 0 && init.StreamIDs[0] != local.StreamID() {
			p.logger.Debugw("Track keeps its own msid stream",
				"track_id", local.ID(),
				"stream_id", local.StreamID(),
				"requested", init.StreamIDs[0],
			)
		}
		tr, err = p.pc.AddTransceiverFromTrack(local.track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
	case domain.DirectionRecvOnly:
		tr, err = p.pc.AddTransceiverFromKind(codecType, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
	default:
		return nil, fmt.Errorf("unsupported direction %q", init.Direction)
	}
	if err != nil {
		return nil, err
	}

	if sender := tr.Sender(); sender != nil && init.Direction == domain.DirectionSendOnly {
		go p.readSenderRTCP(kind, sender)
	}

	if init.MaxBitrate > 0 {
		p.mu.Lock()
		p.bitrates[kind] = init.MaxBitrate
		p.mu.Unlock()
	}

	return &Transceiver{kind: kind, tr: tr}, nil
}

// readSenderRTCP drains the sender so interceptors keep processing reports.
func (p *PeerConnection) readSenderRTCP(kind domain.MediaKind, sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			switch pkt := packet.(type) {
			case *rtcp.PictureLossIndication:
				p.logger.Debugw("Received PLI", "kind", kind, "media_ssrc", pkt.MediaSSRC)
			case *rtcp.TransportLayerNack:
				p.logger.Debugw("Received NACK", "kind", kind, "nacks", len(pkt.Nacks))
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				p.logger.Debugw("Received REMB", "kind", kind, "bitrate", pkt.Bitrate)
			}
		}
	}
}

func (p *PeerConnection) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

// SetLocalDescription applies the offer as created and waits for gathering.
// pion refuses a modified offer, so the bitrate caps are written into the
// gathered description afterwards; LocalDescription returns that text.
func (p *PeerConnection) SetLocalDescription(sdp string) error {
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}

	timer := time.NewTimer(p.gatherTimeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		p.logger.Warnw("ICE gathering did not complete, offering gathered candidates", "timeout", p.gatherTimeout)
	}

	local := sdp
	if d := p.pc.LocalDescription(); d != nil {
		local = d.SDP
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	munged, err := applyBandwidth(local, p.bitrates)
	if err != nil {
		return err
	}
	p.localSDP = munged
	return nil
}

func (p *PeerConnection) SetRemoteDescription(sdp string) error {
	if err := validateSDP(sdp); err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// LocalDescription is the offer to signal, carrying the bitrate caps.
func (p *PeerConnection) LocalDescription() string {
	p.mu.Lock()
	local := p.localSDP
	p.mu.Unlock()
	if local != "" {
		return local
	}
	if d := p.pc.LocalDescription(); d != nil {
		return d.SDP
	}
	return ""
}

func (p *PeerConnection) RemoteDescription() string {
	if d := p.pc.RemoteDescription(); d != nil {
		return d.SDP
	}
	return ""
}

func (p *PeerConnection) ConnectionState() domain.ConnectionState {
	return connectionState(p.pc.ConnectionState())
}

// InboundVideoStats reports the first remote video track. Nothing is
// reported before that track has been read from.
func (p *PeerConnection) InboundVideoStats() (domain.InboundVideoStats, bool) {
	p.mu.Lock()
	video := p.video
	p.mu.Unlock()
	if video == nil || p.stats == nil {
		return domain.InboundVideoStats{}, false
	}

	s := p.stats.Get(video.SSRC())
	if s == nil {
		return domain.InboundVideoStats{}, false
	}
	return inboundVideoStats(s.InboundRTPStreamStats, video.frames.totals(), p.now()), true
}

// OnICECandidate reports each gathered candidate line. The end of gathering
// is not reported.
func (p *PeerConnection) OnICECandidate(fn func(string)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON().Candidate)
	})
}

func (p *PeerConnection) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(connectionState(s))
	})
}

// OnTrack hands every remote track to fn on its own goroutine, which may
// block for the lifetime of the track.
func (p *PeerConnection) OnTrack(fn func(ports.RemoteTrack)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.logger.Infow("Remote track started",
			"track_id", track.ID(),
			"stream_id", track.StreamID(),
			"codec", track.Codec().MimeType,
		)
		remote := &RemoteTrack{track: track, receiver: receiver, pc: p.pc}
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			remote.frames = newFrameCounter(p.now)
			p.mu.Lock()
			if p.video == nil {
				p.video = remote
			}
			p.mu.Unlock()
		}
		fn(remote)
	})
}

func (p *PeerConnection) Close() error {
	return p.pc.Close()
}

func connectionState(s webrtc.PeerConnectionState) domain.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnectionStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnectionStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnectionStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnectionStateFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnectionStateClosed
	default:
		return domain.ConnectionStateNew
	}
}
