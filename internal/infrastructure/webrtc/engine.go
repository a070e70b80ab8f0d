package webrtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

const DefaultGatherTimeout = 2 * time.Second

type EngineConfig struct {
	// GatherTimeout bounds the wait for ICE gathering after the local
	// description is set. Candidates found later are not signaled.
	GatherTimeout time.Duration
}

// Engine builds pion peer connections sharing one codec table.
type Engine struct {
	config        EngineConfig
	loggerFactory logging.LoggerFactory
	logger        *zap.SugaredLogger
}

var _ ports.PeerConnectionFactory = (*Engine)(nil)

func NewEngine(config EngineConfig, logger *zap.SugaredLogger) *Engine {
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = DefaultGatherTimeout
	}
	return &Engine{
		config:        config,
		loggerFactory: newLoggerFactory(logger),
		logger:        logger,
	}
}

// Capabilities lists the codecs of kind in offer order.
func (e *Engine) Capabilities(kind domain.MediaKind) []domain.CodecCapability {
	return capabilitiesFor(kind)
}

// NewPeerConnection creates a peer connection. A MediaEngine cannot be shared
// between connections, so each one gets its own API.
func (e *Engine) NewPeerConnection(cfg domain.TransportConfig) (ports.PeerConnection, error) {
	api, hook, err := e.newAPI(cfg.PortRange)
	if err != nil {
		return nil, err
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   iceServers(cfg.ICEServers),
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	return newPeerConnection(pc, hook.Get(), e.config.GatherTimeout, e.logger), nil
}

// statsHook receives the stats getter of the one peer connection an API builds.
type statsHook struct {
	mu     sync.Mutex
	getter stats.Getter
}

func (h *statsHook) set(_ string, g stats.Getter) {
	h.mu.Lock()
	h.getter = g
	h.mu.Unlock()
}

func (h *statsHook) Get() stats.Getter {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.getter
}

func (e *Engine) newAPI(portRange domain.PortRange) (*webrtc.API, *statsHook, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := registerCodecs(mediaEngine); err != nil {
		return nil, nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	statsFactory, err := stats.NewInterceptor()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stats interceptor: %w", err)
	}
	hook := &statsHook{}
	statsFactory.OnNewPeerConnection(hook.set)
	registry.Add(statsFactory)

	settingEngine := webrtc.SettingEngine{LoggerFactory: e.loggerFactory}
	if portRange.Min > 0 && portRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(portRange.Min, portRange.Max); err != nil {
			return nil, nil, fmt.Errorf("invalid port range %d-%d: %w", portRange.Min, portRange.Max, err)
		}
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	), hook, nil
}

func iceServers(servers []domain.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}
