package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"go.uber.org/zap"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	"beamline/internal/infrastructure/webrtc"
)

const maxPacketSize = 1500

// rtpWriter is the write side of a local track.
type rtpWriter interface {
	ports.LocalTrack
	WriteRTP(p *rtp.Packet) error
}

type UDPSourceConfig struct {
	AudioAddress string // empty disables audio
	VideoAddress string // empty disables video
	AudioCodec   string // codec name, e.g. "opus"
	VideoCodec   string // codec name, e.g. "h264"
	StreamID     string
}

// UDPSource is a MediaSource fed by RTP packets arriving on UDP sockets, as
// produced by e.g. `ffmpeg -f rtp` or a GStreamer udpsink.
type UDPSource struct {
	audio  *input
	video  *input
	logger *zap.SugaredLogger

	closeOnce sync.Once
}

type input struct {
	kind  domain.MediaKind
	conn  net.PacketConn
	track rtpWriter
}

var _ ports.MediaSource = (*UDPSource)(nil)

// NewUDPSource binds the configured addresses and creates one track per bound
// kind. It fails only when no kind can be acquired.
func NewUDPSource(cfg UDPSourceConfig, logger *zap.SugaredLogger) (*UDPSource, error) {
	s := &UDPSource{logger: logger}

	var errs []error
	audio, err := openInput(domain.MediaKindAudio, cfg.AudioAddress, cfg.AudioCodec, cfg.StreamID)
	if err != nil {
		errs = append(errs, err)
	}
	video, err := openInput(domain.MediaKindVideo, cfg.VideoAddress, cfg.VideoCodec, cfg.StreamID)
	if err != nil {
		errs = append(errs, err)
	}
	s.audio, s.video = audio, video

	if audio == nil && video == nil {
		errs = append(errs, domain.ErrNoLocalTracks)
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		logger.Warnw("Media input unavailable", "error", err)
	}
	return s, nil
}

func openInput(kind domain.MediaKind, address, codec, streamID string) (*input, error) {
	if address == "" {
		return nil, nil
	}

	mime := string(kind) + "/" + strings.ToLower(codec)
	track, err := webrtc.NewLocalTrack(mime, string(kind), streamID)
	if err != nil {
		return nil, fmt.Errorf("%s track: %w", kind, err)
	}

	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("listen %s rtp on %s: %w", kind, address, err)
	}
	return &input{kind: kind, conn: conn, track: track}, nil
}

func (s *UDPSource) AudioTrack() ports.LocalTrack {
	if s.audio == nil {
		return nil
	}
	return s.audio.track
}

func (s *UDPSource) VideoTrack() ports.LocalTrack {
	if s.video == nil {
		return nil
	}
	return s.video.track
}

// Addr returns the bound address of kind, or nil when it is disabled.
func (s *UDPSource) Addr(kind domain.MediaKind) net.Addr {
	in := s.input(kind)
	if in == nil {
		return nil
	}
	return in.conn.LocalAddr()
}

func (s *UDPSource) input(kind domain.MediaKind) *input {
	if kind == domain.MediaKindAudio {
		return s.audio
	}
	return s.video
}

// Run forwards packets until ctx is done or Close is called.
func (s *UDPSource) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, in := range []*input{s.audio, s.video} {
		if in == nil {
			continue
		}
		wg.Add(1)
		go func(in *input) {
			defer wg.Done()
			s.forward(in)
		}(in)
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	wg.Wait()
	return ctx.Err()
}

func (s *UDPSource) forward(in *input) {
	buf := make([]byte, maxPacketSize)
	pkt := &rtp.Packet{}
	var forwarded uint64

	for {
		n, _, err := in.conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warnw("RTP input read failed", "kind", in.kind, "error", err)
			}
			return
		}

		if err := pkt.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("Dropping malformed RTP packet", "kind", in.kind, "size", n, "error", err)
			continue
		}

		if err := in.track.WriteRTP(pkt); err != nil {
			s.logger.Warnw("Failed to write RTP packet to track", "kind", in.kind, "error", err)
			continue
		}

		forwarded++
		if forwarded%1000 == 0 {
			s.logger.Debugw("Forwarding RTP", "kind", in.kind, "packets", forwarded, "sequence", pkt.SequenceNumber)
		}
	}
}

// Close releases the sockets. It is safe to call more than once.
func (s *UDPSource) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		for _, in := range []*input{s.audio, s.video} {
			if in != nil {
				errs = append(errs, in.conn.Close())
			}
		}
	})
	return errors.Join(errs...)
}
