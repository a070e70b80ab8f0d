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
	"beamline/internal/infrastructure/streaming"
	"beamline/internal/infrastructure/webrtc"
	"beamline/pkg/config"
	"beamline/pkg/logger"
	"beamline/pkg/retry"
	"beamline/pkg/tracing"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	baseURL := flag.String("url", "", "media server base URL, overrides signal.base_url")
	streamKey := flag.String("key", "", "stream key, overrides watch.stream_key")
	mode := flag.String("mode", "", "webrtc or hls, overrides watch.mode")
	flag.Parse()

	cfg, loadErr := app.LoadConfigOrDefault(*configPath)
	if *baseURL != "" {
		cfg.Signal.BaseURL = *baseURL
	}
	if *streamKey != "" {
		cfg.Watch.StreamKey = *streamKey
	}
	if *mode != "" {
		cfg.Watch.Mode = *mode
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar().With("role", domain.RoleSubscriber, "mode", cfg.Watch.Mode)

	if loadErr != nil {
		log.Warnw("Using default configuration", "path", *configPath, "error", loadErr)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("Watcher stopped", "error", err)
		zapLogger.Sync()
		os.Exit(1)
	}
	log.Info("Watcher stopped")
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

	var (
		metrics  ports.MetricsRecorder = ports.NopMetricsRecorder{}
		gatherer prometheus.Gatherer
	)
	if cfg.Monitoring.PrometheusEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		metrics = monitoring.NewPrometheusCollector(registry)
		gatherer = registry
	}

	client := signaling.NewClient(app.SignalClientConfig(cfg), log)
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

	done := make(chan error, 1)
	go func() {
		if cfg.Watch.Mode == "hls" {
			done <- watchHLS(ctx, cfg, client, log)
			return
		}
		done <- watchWebRTC(ctx, cfg, client, metrics, sessions, log)
	}()

	select {
	case err := <-done:
		return err
	case err := <-statusErr:
		stop()
		<-done
		return err
	}
}

func watchWebRTC(ctx context.Context, cfg *config.Config, client *signaling.Client, metrics ports.MetricsRecorder, sessions ports.SessionRepository, log *zap.SugaredLogger) error {
	engine := webrtc.NewEngine(webrtc.EngineConfig{}, log)
	subscriber := services.NewSubscriber(engine, client, app.TransportConfig(cfg), app.SessionOptions(cfg, metrics, log))
	sink := media.NewTrackSink(log)

	session, err := retry.RetryWithResult(ctx, app.RetryConfig(cfg, log), func(ctx context.Context) (*services.MediaSession, error) {
		s, err := subscriber.NewSession(services.SubscribeRequest{
			StreamKey:  domain.StreamKey(cfg.Watch.StreamKey),
			Sink:       sink,
			Resolution: sink,
		})
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
	defer session.Close()
	log.Infow("Watching", "session_id", session.ID())

	tracked := make(chan struct{})
	go func() {
		defer close(tracked)
		app.Track(ctx, sessions, session, log)
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		<-tracked
	case <-tracked:
	}

	st := sink.Stats()
	log.Infow("Sink totals", "packets", st.Packets, "bytes", st.Bytes, "keyframes", st.Keyframes)
	if err := session.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func watchHLS(ctx context.Context, cfg *config.Config, client *signaling.Client, log *zap.SugaredLogger) error {
	player := signaling.HLSPlayerConfig{
		LowLatencyMode:          cfg.HLS.LowLatencyMode,
		LiveSyncDuration:        cfg.HLS.LiveSyncDuration,
		LiveMaxLatencyDuration:  cfg.HLS.LiveMaxLatencyDuration,
		BackBufferLength:        cfg.HLS.BackBufferLength,
		MaxLiveSyncPlaybackRate: cfg.HLS.MaxLiveSyncPlaybackRate,
		EnableWorker:            cfg.HLS.EnableWorker,
	}
	if data, err := player.MarshalJSON(); err == nil {
		log.Infow("HLS player config", "config", string(data))
	}

	watcher := streaming.NewHLSWatcher(client, client, streaming.HLSWatcherConfig{
		StreamKey:    domain.StreamKey(cfg.Watch.StreamKey),
		PollInterval: cfg.HLS.PollInterval,
		Player:       player,
	}, log)

	return watcher.Run(ctx, func(r streaming.PlaylistReport) {
		log.Infow("Playlist",
			"media_sequence", r.MediaSequence,
			"segments", r.Segments,
			"window", r.Window,
			"live_edge_lag", r.LiveEdgeLag,
			"stalled", r.Stalled,
		)
	})
}
