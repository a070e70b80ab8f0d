package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	"beamline/internal/core/services"
	httphandlers "beamline/internal/handlers/http"
	"beamline/internal/infrastructure/middleware"
	"beamline/internal/infrastructure/monitoring"
)

const (
	statusReadTimeout  = 5 * time.Second
	statusWriteTimeout = 10 * time.Second
)

// StatusServer is the local inspection API of a running client.
type StatusServer struct {
	srv    *http.Server
	logger *zap.SugaredLogger
}

// NewStatusServer builds the gin router. A nil gatherer leaves /metrics unrouted.
func NewStatusServer(addr string, sessions ports.SessionRepository, health *monitoring.HealthChecker, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *StatusServer {
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)
	httphandlers.NewSessionHandler(sessions, health, gatherer).SetupRoutes(router)

	return &StatusServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  statusReadTimeout,
			WriteTimeout: statusWriteTimeout,
		},
		logger: log,
	}
}

func (s *StatusServer) Handler() http.Handler { return s.srv.Handler }

// Start serves in the background. The returned channel yields a listen failure.
func (s *StatusServer) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Infow("Starting status server", "address", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	return errc
}

// Shutdown drains the server, force closing it when ctx ends first.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Errorw("Error during status server shutdown", "error", err)
		return errors.Join(err, s.srv.Close())
	}
	return nil
}

// TrackedSession is a session whose events can be followed.
type TrackedSession interface {
	ports.SessionHandle
	Subscribe(buffer int) *services.Subscription
}

// Track adds the session to the repository and logs its events until the
// session ends, removing it again afterwards. It returns when the session's
// event stream closes.
func Track(ctx context.Context, repo ports.SessionRepository, s TrackedSession, log *zap.SugaredLogger) {
	sub := s.Subscribe(64)
	defer sub.Close()

	if err := repo.Add(ctx, s); err != nil {
		log.Warnw("Failed to register session", "session_id", s.ID(), "error", err)
	}
	defer func() {
		if err := repo.Remove(context.Background(), s.ID()); err != nil {
			log.Debugw("Session already unregistered", "session_id", s.ID(), "error", err)
		}
	}()

	if s.Info().State.Terminal() {
		return
	}

	for ev := range sub.C {
		switch ev.Type {
		case services.EventMetrics:
			log.Infow("Metrics",
				"session_id", ev.SessionID,
				"bitrate_kbps", ev.Snapshot.BitrateKbps,
				"fps", ev.Snapshot.FPS,
				"delay_ms", ev.Snapshot.DelayMs,
				"width", ev.Snapshot.Resolution.Width,
				"height", ev.Snapshot.Resolution.Height,
			)
		case services.EventRemoteStream:
			log.Infow("Remote stream", "session_id", ev.SessionID, "stream_id", ev.StreamID, "first_track", ev.Track.ID())
		case services.EventConnectionState:
			log.Infow("Connection state", "session_id", ev.SessionID, "state", ev.ConnectionState)
		case services.EventSessionState:
			if ev.To == domain.StateFailed {
				log.Errorw("Session failed", "session_id", ev.SessionID, "from", ev.From, "error", ev.Err)
			}
			if ev.To.Terminal() {
				return
			}
		}
	}
}
