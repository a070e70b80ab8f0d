package webrtc

import (
	"strings"

	"github.com/pion/webrtc/v3"

	"beamline/internal/core/domain"
)

type codecEntry struct {
	params    webrtc.RTPCodecParameters
	codecType webrtc.RTPCodecType
}

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: webrtc.TypeRTCPFBGoogREMB},
	{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
	{Type: webrtc.TypeRTCPFBNACK},
	{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
}

func audioCodec(mime string, clockRate uint32, channels uint16, fmtp string, pt webrtc.PayloadType) codecEntry {
	return codecEntry{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mime, ClockRate: clockRate, Channels: channels, SDPFmtpLine: fmtp},
			PayloadType:        pt,
		},
		codecType: webrtc.RTPCodecTypeAudio,
	}
}

func videoCodec(mime, fmtp string, pt webrtc.PayloadType) codecEntry {
	return codecEntry{
		params: webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 90000, SDPFmtpLine: fmtp, RTCPFeedback: videoFeedback},
			PayloadType:        pt,
		},
		codecType: webrtc.RTPCodecTypeVideo,
	}
}

// codecTable is registered with every MediaEngine in this order, which is
// also the default preference order of an offer.
var codecTable = []codecEntry{
	audioCodec(webrtc.MimeTypeOpus, 48000, 2, "minptime=10;useinbandfec=1", 111),
	audioCodec(webrtc.MimeTypeG722, 8000, 0, "", 9),
	audioCodec(webrtc.MimeTypePCMU, 8000, 0, "", 0),
	audioCodec(webrtc.MimeTypePCMA, 8000, 0, "", 8),

	videoCodec(webrtc.MimeTypeVP8, "", 96),
	videoCodec(webrtc.MimeTypeVP9, "profile-id=0", 98),
	videoCodec(webrtc.MimeTypeVP9, "profile-id=2", 100),
	videoCodec(webrtc.MimeTypeH264, "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f", 102),
	videoCodec(webrtc.MimeTypeH264, "level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=42001f", 127),
	videoCodec(webrtc.MimeTypeH264, "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f", 125),
	videoCodec(webrtc.MimeTypeH264, "level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=42e01f", 108),
	videoCodec(webrtc.MimeTypeH264, "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=4d001f", 112),
	videoCodec(webrtc.MimeTypeH264, "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=64001f", 123),
}

func registerCodecs(m *webrtc.MediaEngine) error {
	for _, c := range codecTable {
		if err := m.RegisterCodec(c.params, c.codecType); err != nil {
			return err
		}
	}
	return nil
}

func capabilitiesFor(kind domain.MediaKind) []domain.CodecCapability {
	want, ok := codecTypeOf(kind)
	if !ok {
		return nil
	}
	var caps []domain.CodecCapability
	for _, c := range codecTable {
		if c.codecType != want {
			continue
		}
		caps = append(caps, domain.CodecCapability{
			MimeType:    c.params.MimeType,
			ClockRate:   c.params.ClockRate,
			Channels:    c.params.Channels,
			SDPFmtpLine: c.params.SDPFmtpLine,
			PayloadType: uint8(c.params.PayloadType),
		})
	}
	return caps
}

// codecParameters maps a capability back to the registered entry so that
// feedback parameters survive SetCodecPreferences.
func codecParameters(c domain.CodecCapability) webrtc.RTPCodecParameters {
	for _, e := range codecTable {
		if uint8(e.params.PayloadType) == c.PayloadType && e.params.MimeType == c.MimeType {
			return e.params
		}
	}
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    c.MimeType,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			SDPFmtpLine: c.SDPFmtpLine,
		},
		PayloadType: webrtc.PayloadType(c.PayloadType),
	}
}

func lookupCapability(mimeType string) (webrtc.RTPCodecCapability, bool) {
	for _, e := range codecTable {
		if strings.EqualFold(e.params.MimeType, mimeType) {
			return e.params.RTPCodecCapability, true
		}
	}
	return webrtc.RTPCodecCapability{}, false
}

func codecTypeOf(kind domain.MediaKind) (webrtc.RTPCodecType, bool) {
	switch kind {
	case domain.MediaKindAudio:
		return webrtc.RTPCodecTypeAudio, true
	case domain.MediaKindVideo:
		return webrtc.RTPCodecTypeVideo, true
	}
	return 0, false
}

func kindOf(t webrtc.RTPCodecType) domain.MediaKind {
	if t == webrtc.RTPCodecTypeAudio {
		return domain.MediaKindAudio
	}
	return domain.MediaKindVideo
}
