package domain

type DegradationPreference string

const (
	DegradationMaintainResolution DegradationPreference = "maintain-resolution"
	DegradationMaintainFramerate  DegradationPreference = "maintain-framerate"
	DegradationBalanced           DegradationPreference = "balanced"
)

type EncodingParameters struct {
	MaxBitrate            uint64 // bits per second, 0 leaves the engine default
	DegradationPreference DegradationPreference
}

type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

type PortRange struct {
	Min uint16
	Max uint16
}

// TransportConfig is the static transport shape of a peer connection.
type TransportConfig struct {
	ICEServers      []ICEServer
	PortRange       PortRange
	AudioMaxBitrate uint64
	VideoMaxBitrate uint64
}

const (
	DefaultAudioMaxBitrate uint64 = 1024 * 1024
	DefaultVideoMaxBitrate uint64 = 1024 * 1024 * 1024
)

var DefaultSTUNServers = []ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// DefaultPublisherTransport is used for publishing when nothing is configured.
func DefaultPublisherTransport() TransportConfig {
	return TransportConfig{
		ICEServers:      DefaultSTUNServers,
		AudioMaxBitrate: DefaultAudioMaxBitrate,
		VideoMaxBitrate: DefaultVideoMaxBitrate,
	}
}

// DefaultSubscriberTransport leaves ICE servers to the engine default.
func DefaultSubscriberTransport() TransportConfig {
	return TransportConfig{}
}

// MaxBitrateFor returns the configured cap for a kind.
func (c TransportConfig) MaxBitrateFor(kind MediaKind) uint64 {
	switch kind {
	case MediaKindAudio:
		return c.AudioMaxBitrate
	case MediaKindVideo:
		return c.VideoMaxBitrate
	}
	return 0
}
