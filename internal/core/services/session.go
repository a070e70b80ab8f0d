package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	apperrors "beamline/pkg/errors"
	"beamline/pkg/logger"
	"beamline/pkg/tracing"
)

const DefaultStatsInterval = time.Second

// Ticker is the stats timer source of a session.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(interval time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the default TickerFactory backed by time.Ticker.
func NewTimeTicker(interval time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(interval)}
}

// SessionOptions carries the collaborators shared by every session a
// negotiator creates. Zero values are replaced with defaults.
type SessionOptions struct {
	StatsInterval time.Duration
	NewTicker     TickerFactory
	Metrics       ports.MetricsRecorder
	Logger        *zap.SugaredLogger
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.StatsInterval <= 0 {
		o.StatsInterval = DefaultStatsInterval
	}
	if o.NewTicker == nil {
		o.NewTicker = NewTimeTicker
	}
	if o.Metrics == nil {
		o.Metrics = ports.NopMetricsRecorder{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// negotiationPlan is the role specific part of a negotiation.
type negotiationPlan struct {
	transport  domain.TransportConfig
	precheck   func() error
	configure  func(pc ports.PeerConnection) ([]domain.MediaKind, error)
	resolution ports.ResolutionSource
	sink       ports.TrackSink

	// sampleStats runs the inbound stats timer while connected. A publisher
	// receives no video, so only subscribers sample.
	sampleStats bool
}

// MediaSession is one publish or subscribe negotiation and the connection it
// produces. It owns its peer connection, event hub and stats timer.
type MediaSession struct {
	id        domain.SessionID
	role      domain.Role
	key       domain.StreamKey
	createdAt time.Time

	factory  ports.PeerConnectionFactory
	signaler ports.Signaler
	plan     negotiationPlan
	opts     SessionOptions
	logger   *zap.SugaredLogger
	hub      *EventHub

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	state         domain.SessionState
	err           error
	pc            ports.PeerConnection
	sampler       *StatsSampler
	stopTimer     func()
	lastSnapshot  domain.MetricsSnapshot
	localKinds    []domain.MediaKind
	remoteStreams map[string][]ports.RemoteTrack
	streamOrder   []string

	closeOnce sync.Once
	closeErr  error
}

func newMediaSession(role domain.Role, key domain.StreamKey, factory ports.PeerConnectionFactory, signaler ports.Signaler, plan negotiationPlan, opts SessionOptions) *MediaSession {
	opts = opts.withDefaults()
	id := domain.SessionID(uuid.NewString())
	ctx, cancel := context.WithCancel(context.Background())

	return &MediaSession{
		id:        id,
		role:      role,
		key:       key,
		createdAt: time.Now(),
		factory:   factory,
		signaler:  signaler,
		plan:      plan,
		opts:      opts,
		logger: opts.Logger.With(
			"session_id", id,
			"role", role,
			"stream_key", logger.MaskKey(string(key)),
		),
		hub:           NewEventHub(),
		ctx:           ctx,
		cancel:        cancel,
		state:         domain.StateIdle,
		remoteStreams: make(map[string][]ports.RemoteTrack),
	}
}

func (s *MediaSession) ID() domain.SessionID { return s.id }
func (s *MediaSession) Role() domain.Role    { return s.role }

func (s *MediaSession) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that moved the session to Failed, if any.
func (s *MediaSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Subscribe attaches an observer. The channel is closed when the session closes.
func (s *MediaSession) Subscribe(buffer int) *Subscription {
	return s.hub.Subscribe(buffer)
}

func (s *MediaSession) LocalDescription() string {
	if pc := s.peer(); pc != nil {
		return pc.LocalDescription()
	}
	return ""
}

func (s *MediaSession) RemoteDescription() string {
	if pc := s.peer(); pc != nil {
		return pc.RemoteDescription()
	}
	return ""
}

func (s *MediaSession) LastSnapshot() domain.MetricsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSnapshot
}

// RemoteTracks returns the tracks received on one remote stream.
func (s *MediaSession) RemoteTracks(streamID string) []ports.RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.RemoteTrack(nil), s.remoteStreams[streamID]...)
}

func (s *MediaSession) Info() domain.SessionInfo {
	pc := s.peer()

	s.mu.RLock()
	info := domain.SessionInfo{
		ID:             s.id,
		Role:           s.role,
		State:          s.state,
		Connection:     domain.ConnectionStateNew,
		CreatedAt:      s.createdAt,
		LastSnapshot:   s.lastSnapshot,
		RemoteStreams:  append([]string(nil), s.streamOrder...),
		LocalTrackKind: append([]domain.MediaKind(nil), s.localKinds...),
	}
	s.mu.RUnlock()

	if pc != nil {
		info.Connection = pc.ConnectionState()
	}
	return info
}

func (s *MediaSession) peer() ports.PeerConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pc
}

// Negotiate runs the offer/answer exchange to completion. It may be called
// once; a session that failed is not reused.
func (s *MediaSession) Negotiate(ctx context.Context) (err error) {
	if err := s.begin(); err != nil {
		return err
	}

	start := time.Now()
	ctx, span := tracing.TraceNegotiation(ctx, string(s.role), string(s.id))
	defer span.End()

	// Close aborts any in-flight step, including the signaling request.
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	defer func() {
		outcome := "connected"
		if err != nil {
			err = s.abort(err)
			outcome = strings.ToLower(string(apperrors.CodeOf(err)))
			tracing.RecordError(ctx, err)
		}
		tracing.MeasureDuration(ctx, start)
		s.opts.Metrics.RecordNegotiation(s.role, outcome, time.Since(start))
	}()

	if err := s.plan.precheck(); err != nil {
		return err
	}

	pc, err := s.factory.NewPeerConnection(s.plan.transport)
	if err != nil {
		return apperrors.NewInternalError("failed to create peer connection", err)
	}
	if err := s.attach(pc); err != nil {
		return err
	}

	kinds, err := s.plan.configure(pc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.localKinds = kinds
	s.mu.Unlock()

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return apperrors.WrapSDPApplicationError(err, "local")
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return apperrors.WrapSDPApplicationError(err, "local")
	}
	if local := pc.LocalDescription(); local != "" {
		offer = local
	}

	if !s.transition(domain.StateAwaitingAnswer, nil) {
		return apperrors.NewSessionClosedError("session ended before the offer was sent")
	}

	answer, err := s.signaler.Exchange(ctx, s.role, s.key, offer)
	if err != nil {
		return err
	}

	if state := s.State(); state != domain.StateAwaitingAnswer {
		s.logger.Infow("Discarding answer for ended session", "state", state)
		return apperrors.WrapError(domain.ErrStaleAnswer, apperrors.ErrCodeSessionClosed, "answer arrived after session ended", 0)
	}

	if err := pc.SetRemoteDescription(answer); err != nil {
		return apperrors.WrapSDPApplicationError(err, "remote")
	}

	if !s.transition(domain.StateConnected, nil) {
		return apperrors.NewSessionClosedError("session ended while applying the answer")
	}
	s.logger.Infow("Session negotiated", "duration", time.Since(start))
	return nil
}

func (s *MediaSession) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case domain.StateIdle:
		s.transitionLocked(domain.StateNegotiating, nil)
		return nil
	case domain.StateClosed:
		return apperrors.NewSessionClosedError("session is closed")
	default:
		return apperrors.NewInvalidInputError("session is not idle")
	}
}

// abort settles a failed negotiation. A session closed meanwhile reports
// SESSION_CLOSED instead of the step's own error.
func (s *MediaSession) abort(err error) error {
	if apperrors.IsCode(err, apperrors.ErrCodeSessionClosed) {
		return err
	}
	if s.State() == domain.StateClosed {
		return apperrors.WrapError(err, apperrors.ErrCodeSessionClosed, "session closed during negotiation", 0)
	}
	if s.transition(domain.StateFailed, err) {
		s.logger.Warnw("Negotiation failed", "error", err)
	}
	return err
}

func (s *MediaSession) attach(pc ports.PeerConnection) error {
	s.mu.Lock()
	if s.state == domain.StateClosed {
		s.mu.Unlock()
		_ = pc.Close()
		return apperrors.NewSessionClosedError("session closed during negotiation")
	}
	s.pc = pc
	if s.plan.sampleStats {
		s.sampler = NewStatsSampler(pc, s.plan.resolution)
	}
	s.mu.Unlock()

	pc.OnICECandidate(func(candidate string) {
		s.logger.Debugw("Local ICE candidate", "candidate", candidate)
		s.hub.Publish(Event{Type: EventICECandidate, SessionID: s.id, Candidate: candidate})
	})

	pc.OnConnectionStateChange(func(cs domain.ConnectionState) {
		s.logger.Infow("Connection state changed", "connection_state", cs)
		s.hub.Publish(Event{Type: EventConnectionState, SessionID: s.id, ConnectionState: cs})

		switch cs {
		case domain.ConnectionStateFailed:
			s.transition(domain.StateFailed, apperrors.NewInternalError("peer connection failed", nil))
		case domain.ConnectionStateClosed:
			s.transition(domain.StateClosed, nil)
		}
	})

	pc.OnTrack(s.handleTrack)
	return nil
}

// handleTrack binds a remote track to its stream. The stream event fires once
// per stream id; every track goes to the sink.
func (s *MediaSession) handleTrack(track ports.RemoteTrack) {
	streamID := track.StreamID()

	s.mu.Lock()
	tracks, known := s.remoteStreams[streamID]
	s.remoteStreams[streamID] = append(tracks, track)
	if !known {
		s.streamOrder = append(s.streamOrder, streamID)
		s.hub.Publish(Event{Type: EventRemoteStream, SessionID: s.id, StreamID: streamID, Track: track})
	}
	s.mu.Unlock()

	s.logger.Infow("Remote track received",
		"stream_id", streamID,
		"track_id", track.ID(),
		"kind", track.Kind(),
		"codec", track.Codec(),
		"new_stream", !known,
	)

	if s.plan.sink != nil {
		s.plan.sink.Consume(s.ctx, track)
	}
}

func (s *MediaSession) transition(to domain.SessionState, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to, cause)
}

// transitionLocked must be called with mu held. Leaving Connected stops the
// stats timer; entering it starts one for a sampling session.
func (s *MediaSession) transitionLocked(to domain.SessionState, cause error) bool {
	from := s.state
	if !from.CanTransition(to) {
		return false
	}
	s.state = to
	if to == domain.StateFailed {
		s.err = cause
	}

	switch {
	case to == domain.StateConnected && s.sampler != nil:
		s.startTimerLocked()
	case from == domain.StateConnected && s.stopTimer != nil:
		s.stopTimer()
	}

	s.opts.Metrics.RecordStateChange(s.role, from, to)
	s.logger.Debugw("Session state changed", "from", from, "to", to)
	s.hub.Publish(Event{Type: EventSessionState, SessionID: s.id, From: from, To: to, Err: cause})
	return true
}

func (s *MediaSession) startTimerLocked() {
	ticker := s.opts.NewTicker(s.opts.StatsInterval)
	done := make(chan struct{})

	var once sync.Once
	s.stopTimer = func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}

	go s.runTimer(ticker, s.sampler, done)
}

func (s *MediaSession) runTimer(ticker Ticker, sampler *StatsSampler, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
		}

		select {
		case <-done:
			return
		default:
		}

		snapshot, ok := sampler.Tick()
		if !ok {
			continue
		}

		s.mu.Lock()
		if s.state != domain.StateConnected {
			s.mu.Unlock()
			return
		}
		s.lastSnapshot = snapshot
		s.hub.Publish(Event{Type: EventMetrics, SessionID: s.id, Snapshot: snapshot})
		s.mu.Unlock()

		s.opts.Metrics.RecordSnapshot(s.id, s.role, snapshot)
	}
}

// Close releases the session: in-flight negotiation is aborted, the stats
// timer stops, the peer connection closes and subscriber channels close.
// It is safe to call more than once.
func (s *MediaSession) Close() error {
	s.closeOnce.Do(func() {
		s.transition(domain.StateClosed, nil)
		s.cancel()

		if pc := s.peer(); pc != nil {
			if err := pc.Close(); err != nil {
				s.closeErr = apperrors.NewInternalError("failed to close peer connection", err)
			}
		}

		s.hub.Close()
		s.opts.Metrics.ForgetSession(s.id, s.role)
		s.logger.Infow("Session closed")
	})
	return s.closeErr
}
