package domain

import "strings"

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

type Direction string

const (
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
)

// CodecCapability is one entry of the engine's supported codec list.
type CodecCapability struct {
	MimeType    string
	ClockRate   uint32
	Channels    uint16
	SDPFmtpLine string
	PayloadType uint8
}

// Kind returns the media kind prefix of the MIME type.
func (c CodecCapability) Kind() MediaKind {
	kind, _, _ := strings.Cut(strings.ToLower(c.MimeType), "/")
	return MediaKind(kind)
}

// CodecProfile names a codec and an optional fmtp token that must appear in
// the capability's fmtp line, e.g. "profile-level-id=42001f".
type CodecProfile struct {
	Name         string
	ProfileToken string
}

// DefaultCodecProfile returns the profile token used for well known codecs.
func DefaultCodecProfile(name string) CodecProfile {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "h264":
		return CodecProfile{Name: name, ProfileToken: "profile-level-id=42001f"}
	case "vp9":
		return CodecProfile{Name: name, ProfileToken: "profile-id=0"}
	default:
		return CodecProfile{Name: name}
	}
}
