package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"beamline/internal/app"
	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	"beamline/internal/core/services"
	"beamline/internal/infrastructure/media"
	"beamline/internal/infrastructure/monitoring"
	"beamline/internal/infrastructure/repositories/memory"
	signaling "beamline/internal/infrastructure/signal"
	"beamline/internal/infrastructure/webrtc"
	"beamline/pkg/config"
	"beamline/pkg/logger"
	"beamline/pkg/retry"
	"beamline/pkg/tracing"
)

const (
	shutdownTimeout = 5 * time.Second
	msidStream      = "beamline"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	baseURL := flag.String("url", "", "media server base URL, overrides signal.base_url")
	streamKey := flag.String("key", "", "stream key, overrides publish.stream_key")
	flag.Parse()

	cfg, loadErr := app.LoadConfigOrDefault(*configPath)
	if *baseURL != "" {
		cfg.Signal.BaseURL = *baseURL
	}
	if *streamKey != "" {
		cfg.Publish.StreamKey = *streamKey
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar().With("role", domain.RolePublisher)

	if loadErr != nil {
		log.Warnw("Using default configuration", "path", *configPath, "error", loadErr)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("Publisher stopped", "error", err)
		zapLogger.Sync()
		os.Exit(1)
	}
	log.Info("Publisher stopped")
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(app.TracingConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Error shutting down tracer", "error", err)
		}
	}()

	source, err := media.NewUDPSource(media.UDPSourceConfig{
		AudioAddress: cfg.Publish.AudioRTPAddress,
		VideoAddress: cfg.Publish.VideoRTPAddress,
		AudioCodec:   cfg.Publish.AudioCodec,
		VideoCodec:   cfg.Publish.VideoCodec,
		StreamID:     msidStream,
	}, log)
	if err != nil {
		return err
	}
	defer source.Close()
	for _, kind := range []domain.MediaKind{domain.MediaKindAudio, domain.MediaKindVideo} {
		if addr := source.Addr(kind); addr != nil {
			log.Infow("Listening for RTP", "kind", kind, "address", addr.String())
		}
	}
	go func() {
		if err := source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnw("RTP source stopped", "error", err)
		}
	}()

	var (
		metrics  ports.MetricsRecorder = ports.NopMetricsRecorder{}
		gatherer prometheus.Gatherer
	)
	if cfg.Monitoring.PrometheusEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = monitoring.NewPrometheusCollector(registry)
		gatherer = registry
	}

	client := signaling.NewClient(app.SignalClientConfig(cfg), log)
	engine := webrtc.NewEngine(webrtc.EngineConfig{}, log)
	publisher := services.NewPublisher(engine, client, app.TransportConfig(cfg), app.SessionOptions(cfg, metrics, log))
	sessions := memory.NewSessionRepository()

	var statusErr <-chan error
	if cfg.Status.Enabled {
		health := monitoring.NewHealthChecker()
		health.AddBreakerCheck("signaling", client.BreakerState)
		health.AddRepositoryCheck(sessions)

		status := app.NewStatusServer(cfg.Status.Address, sessions, health, gatherer, log)
		statusErr = status.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = status.Shutdown(shutdownCtx)
		}()
	}

	req := services.PublishRequest{
		StreamKey:             domain.StreamKey(cfg.Publish.StreamKey),
		Source:                source,
		AudioProfile:          domain.DefaultCodecProfile(cfg.Publish.AudioCodec),
		VideoProfile:          domain.DefaultCodecProfile(cfg.Publish.VideoCodec),
		UseMaintainResolution: cfg.Publish.MaintainResolution,
	}
	retryCfg := app.RetryConfig(cfg, log)

	// A session that fails after connecting is replaced with a fresh one; a
	// session closed through the status API ends the process.
	for {
		session, err := retry.RetryWithResult(ctx, retryCfg, func(ctx context.Context) (*services.MediaSession, error) {
			s, err := publisher.NewSession(req)
			if err != nil {
				return nil, err
			}
			if err := s.Negotiate(ctx); err != nil {
				_ = s.Close()
				return nil, err
			}
			return s, nil
		})
		if err != nil {
			return err
		}
		log.Infow("Publishing", "session_id", session.ID(), "tracks", session.Info().LocalTrackKind)

		tracked := make(chan struct{})
		go func() {
			defer close(tracked)
			app.Track(ctx, sessions, session, log)
		}()

		select {
		case <-ctx.Done():
			log.Info("Received shutdown signal")
			_ = session.Close()
			<-tracked
			return ctx.Err()
		case err := <-statusErr:
			_ = session.Close()
			<-tracked
			return err
		case <-tracked:
		}

		if session.State() != domain.StateFailed {
			return nil
		}
		log.Warnw("Session failed, republishing", "session_id", session.ID(), "error", session.Err())
		_ = session.Close()
	}
}
