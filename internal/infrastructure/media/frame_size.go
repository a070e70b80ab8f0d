package media

import (
	"encoding/binary"
	"strings"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/pion/rtp/codecs"

	"beamline/internal/core/domain"
)

// frameSizer finds the frame size in the packets of one video track. It is
// fed packets in order and may keep depacketizer state between them.
type frameSizer interface {
	frameSize(payload []byte) (domain.Resolution, bool)
}

func newFrameSizer(mimeType string) frameSizer {
	switch {
	case strings.EqualFold(mimeType, "video/VP8"):
		return vp8Sizer{}
	case strings.EqualFold(mimeType, "video/H264"):
		return &h264Sizer{}
	}
	return nil
}

type vp8Sizer struct{}

// frameSize reads the frame size from the first packet of a VP8 keyframe
// (RFC 6386 section 9.1).
func (vp8Sizer) frameSize(payload []byte) (domain.Resolution, bool) {
	var desc codecs.VP8Packet
	frame, err := desc.Unmarshal(payload)
	if err != nil || desc.S != 1 || desc.PID != 0 {
		return domain.Resolution{}, false
	}
	if len(frame) < 10 || frame[0]&0x01 != 0 {
		return domain.Resolution{}, false
	}
	if frame[3] != 0x9d || frame[4] != 0x01 || frame[5] != 0x2a {
		return domain.Resolution{}, false
	}
	width := int(binary.LittleEndian.Uint16(frame[6:8]) & 0x3fff)
	height := int(binary.LittleEndian.Uint16(frame[8:10]) & 0x3fff)
	if width == 0 || height == 0 {
		return domain.Resolution{}, false
	}
	return domain.Resolution{Width: width, Height: height}, true
}

// h264Sizer depacketizes H264 (RFC 6184) and reads the size from the SPS
// sent ahead of each IDR frame.
type h264Sizer struct {
	depacketizer codecs.H264Packet
}

func (s *h264Sizer) frameSize(payload []byte) (domain.Resolution, bool) {
	annexB, err := s.depacketizer.Unmarshal(payload)
	if err != nil || len(annexB) == 0 {
		return domain.Resolution{}, false
	}
	nalus, err := h264.AnnexBUnmarshal(annexB)
	if err != nil {
		return domain.Resolution{}, false
	}

	for _, nalu := range nalus {
		if len(nalu) == 0 || h264.NALUType(nalu[0]&0x1f) != h264.NALUTypeSPS {
			continue
		}
		var sps h264.SPS
		if err := sps.Unmarshal(nalu); err != nil {
			continue
		}
		if w, h := sps.Width(), sps.Height(); w > 0 && h > 0 {
			return domain.Resolution{Width: w, Height: h}, true
		}
	}
	return domain.Resolution{}, false
}
