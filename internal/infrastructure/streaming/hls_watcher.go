package streaming

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	"beamline/internal/infrastructure/signal"
	apperrors "beamline/pkg/errors"
	"beamline/pkg/logger"
)

const DefaultPollInterval = time.Second

// PlaylistFetcher downloads and parses a media playlist.
type PlaylistFetcher interface {
	FetchPlaylist(ctx context.Context, url string) (*signal.Playlist, error)
}

type HLSWatcherConfig struct {
	StreamKey    domain.StreamKey
	PollInterval time.Duration
	Player       signal.HLSPlayerConfig
}

// PlaylistReport is one poll of the live playlist.
type PlaylistReport struct {
	SessionID     string
	Time          time.Time
	MediaSequence uint64
	Segments      int
	Window        time.Duration
	LiveEdgeLag   time.Duration
	// Stalled is set when the media sequence did not move since the previous poll.
	Stalled bool
	Ended   bool
}

// HLSWatcher bootstraps an HLS session and probes its playlist on a fixed
// interval, reporting how far a low-latency player would trail the live edge.
type HLSWatcher struct {
	bootstrap ports.HLSBootstrapper
	fetcher   PlaylistFetcher
	cfg       HLSWatcherConfig
	logger    *zap.SugaredLogger
}

func NewHLSWatcher(bootstrap ports.HLSBootstrapper, fetcher PlaylistFetcher, cfg HLSWatcherConfig, log *zap.SugaredLogger) *HLSWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Player == (signal.HLSPlayerConfig{}) {
		cfg.Player = signal.DefaultHLSPlayerConfig()
	}
	return &HLSWatcher{
		bootstrap: bootstrap,
		fetcher:   fetcher,
		cfg:       cfg,
		logger:    log.With("stream_key", logger.MaskKey(string(cfg.StreamKey))),
	}
}

// Run requests a session and polls until ctx ends, the playlist ends or the
// server rejects the playlist request. report is called after every
// successful poll.
func (w *HLSWatcher) Run(ctx context.Context, report func(PlaylistReport)) error {
	sessionID, err := w.bootstrap.RequestHLSSession(ctx, w.cfg.StreamKey)
	if err != nil {
		return err
	}
	url := w.bootstrap.PlaylistURL(sessionID)
	log := w.logger.With("hls_session_id", sessionID)
	log.Infow("HLS session created", "playlist", url)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var last *PlaylistReport
	for {
		r, err := w.poll(ctx, sessionID, url, last)
		switch {
		case err == nil:
			if report != nil {
				report(r)
			}
			if r.Ended {
				log.Infow("Playlist ended", "media_sequence", r.MediaSequence)
				return nil
			}
			last = &r
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		case apperrors.IsClientRejection(err):
			return err
		default:
			log.Warnw("Playlist poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *HLSWatcher) poll(ctx context.Context, sessionID, url string, last *PlaylistReport) (PlaylistReport, error) {
	p, err := w.fetcher.FetchPlaylist(ctx, url)
	if err != nil {
		return PlaylistReport{}, err
	}
	r := PlaylistReport{
		SessionID:     sessionID,
		Time:          time.Now(),
		MediaSequence: p.MediaSequence,
		Segments:      len(p.Segments),
		Window:        p.Window(),
		LiveEdgeLag:   p.LiveEdgeLag(w.cfg.Player.LiveSyncDuration),
		Ended:         p.Ended,
	}
	if last != nil && last.MediaSequence == r.MediaSequence && last.Segments == r.Segments {
		r.Stalled = true
	}
	if r.LiveEdgeLag > w.cfg.Player.LiveMaxLatencyDuration {
		w.logger.Debugw("Live edge lag above max latency",
			"lag", r.LiveEdgeLag,
			"max_latency", w.cfg.Player.LiveMaxLatencyDuration,
		)
	}
	return r, nil
}
