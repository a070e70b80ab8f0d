package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"go.uber.org/zap"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

// rtpReader is the read side of a remote track.
type rtpReader interface {
	ports.RemoteTrack
	ReadRTP() (*rtp.Packet, error)
}

type rtcpReader interface {
	ReadRTCP() ([]rtcp.Packet, error)
}

type keyframeRequester interface {
	RequestKeyframe() error
}

// SinkStats counts what a TrackSink has consumed.
type SinkStats struct {
	Packets   uint64 `json:"packets"`
	Bytes     uint64 `json:"bytes"`
	Keyframes uint64 `json:"keyframes"`
}

// TrackSink drains remote tracks. It stands in for a renderer: packets are
// counted and VP8 keyframe headers or H264 sequence parameter sets give
// the current frame size.
type TrackSink struct {
	logger *zap.SugaredLogger

	mu         sync.RWMutex
	resolution domain.Resolution

	packets   atomic.Uint64
	bytes     atomic.Uint64
	keyframes atomic.Uint64
}

var (
	_ ports.TrackSink        = (*TrackSink)(nil)
	_ ports.ResolutionSource = (*TrackSink)(nil)
)

func NewTrackSink(logger *zap.SugaredLogger) *TrackSink {
	return &TrackSink{logger: logger}
}

// Consume reads track until it ends or ctx is done. A video track gets one
// keyframe request when consumption starts.
func (s *TrackSink) Consume(ctx context.Context, track ports.RemoteTrack) {
	reader, ok := track.(rtpReader)
	if !ok {
		s.logger.Warnw("Track cannot be read", "track_id", track.ID())
		return
	}
	log := s.logger.With("track_id", track.ID(), "stream_id", track.StreamID(), "kind", track.Kind())

	if r, ok := track.(rtcpReader); ok {
		go s.readRTCP(log, r)
	}

	if track.Kind() == domain.MediaKindVideo {
		if k, ok := track.(keyframeRequester); ok {
			if err := k.RequestKeyframe(); err != nil {
				log.Warnw("Keyframe request failed", "error", err)
			}
		}
	}

	var sizer frameSizer
	if track.Kind() == domain.MediaKindVideo {
		sizer = newFrameSizer(track.Codec())
	}
	for ctx.Err() == nil {
		pkt, err := reader.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debugw("Remote track read ended", "error", err)
			}
			return
		}

		s.packets.Add(1)
		s.bytes.Add(uint64(len(pkt.Payload)))

		if sizer != nil {
			if res, ok := sizer.frameSize(pkt.Payload); ok {
				s.keyframes.Add(1)
				s.setResolution(res, log)
			}
		}
	}
}

func (s *TrackSink) readRTCP(log *zap.SugaredLogger, r rtcpReader) {
	for {
		packets, err := r.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			if sr, ok := packet.(*rtcp.SenderReport); ok {
				log.Debugw("Received sender report",
					"packet_count", sr.PacketCount,
					"octet_count", sr.OctetCount,
				)
			}
		}
	}
}

func (s *TrackSink) setResolution(res domain.Resolution, log *zap.SugaredLogger) {
	s.mu.Lock()
	changed := s.resolution != res
	s.resolution = res
	s.mu.Unlock()

	if changed {
		log.Infow("Video resolution changed", "width", res.Width, "height", res.Height)
	}
}

// Resolution returns the frame size of the last keyframe.
func (s *TrackSink) Resolution() domain.Resolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolution
}

func (s *TrackSink) Stats() SinkStats {
	return SinkStats{
		Packets:   s.packets.Load(),
		Bytes:     s.bytes.Load(),
		Keyframes: s.keyframes.Load(),
	}
}
