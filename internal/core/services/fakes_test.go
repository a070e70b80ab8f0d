package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

type fakeTransceiver struct {
	kind          domain.MediaKind
	init          ports.TransceiverInit
	prefs         []domain.CodecCapability
	degradation   domain.DegradationPreference
	prefsErr      error
	degradeErr    error
	degradeCalled bool
}

func (t *fakeTransceiver) Kind() domain.MediaKind { return t.kind }

func (t *fakeTransceiver) SetCodecPreferences(codecs []domain.CodecCapability) error {
	if t.prefsErr != nil {
		return t.prefsErr
	}
	t.prefs = codecs
	return nil
}

func (t *fakeTransceiver) SetDegradationPreference(pref domain.DegradationPreference) error {
	t.degradeCalled = true
	if t.degradeErr != nil {
		return t.degradeErr
	}
	t.degradation = pref
	return nil
}

type fakePeer struct {
	mu sync.Mutex

	state        domain.ConnectionState
	stats        domain.InboundVideoStats
	hasStats     bool
	statsCalls   int
	local        string
	remote       string
	closed       bool
	transceivers []*fakeTransceiver

	offerErr    error
	remoteErr   error
	prefsErr    error
	degradeErr  error
	addErrKinds map[domain.MediaKind]error

	onICE   func(string)
	onState func(domain.ConnectionState)
	onTrack func(ports.RemoteTrack)
}

func newFakePeer() *fakePeer {
	return &fakePeer{state: domain.ConnectionStateNew}
}

func (p *fakePeer) AddTransceiver(kind domain.MediaKind, init ports.TransceiverInit) (ports.Transceiver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.addErrKinds[kind]; err != nil {
		return nil, err
	}
	tr := &fakeTransceiver{kind: kind, init: init, prefsErr: p.prefsErr, degradeErr: p.degradeErr}
	p.transceivers = append(p.transceivers, tr)
	return tr, nil
}

func (p *fakePeer) CreateOffer(ctx context.Context) (string, error) {
	if p.offerErr != nil {
		return "", p.offerErr
	}
	return "v=0\r\no=- fake offer\r\n", nil
}

func (p *fakePeer) SetLocalDescription(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = sdp
	return nil
}

func (p *fakePeer) SetRemoteDescription(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = sdp
	return nil
}

func (p *fakePeer) LocalDescription() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) RemoteDescription() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) ConnectionState() domain.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePeer) InboundVideoStats() (domain.InboundVideoStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statsCalls++
	return p.stats, p.hasStats
}

func (p *fakePeer) OnICECandidate(fn func(string)) { p.onICE = fn }

func (p *fakePeer) OnConnectionStateChange(fn func(domain.ConnectionState)) { p.onState = fn }

func (p *fakePeer) OnTrack(fn func(ports.RemoteTrack)) { p.onTrack = fn }

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.state = domain.ConnectionStateClosed
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) setState(cs domain.ConnectionState) {
	p.mu.Lock()
	p.state = cs
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(cs)
	}
}

func (p *fakePeer) setStats(s domain.InboundVideoStats) {
	p.mu.Lock()
	p.stats = s
	p.hasStats = true
	p.mu.Unlock()
}

func (p *fakePeer) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsCalls
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeFactory struct {
	peer    *fakePeer
	caps    map[domain.MediaKind][]domain.CodecCapability
	err     error
	created int
	lastCfg domain.TransportConfig
}

func (f *fakeFactory) NewPeerConnection(cfg domain.TransportConfig) (ports.PeerConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	f.lastCfg = cfg
	return f.peer, nil
}

func (f *fakeFactory) Capabilities(kind domain.MediaKind) []domain.CodecCapability {
	return f.caps[kind]
}

type mockSignaler struct {
	mock.Mock
}

func (m *mockSignaler) Exchange(ctx context.Context, role domain.Role, key domain.StreamKey, offer string) (string, error) {
	args := m.Called(ctx, role, key, offer)
	return args.String(0), args.Error(1)
}

// funcSignaler lets a test control the exchange, e.g. to block it.
type funcSignaler func(ctx context.Context, role domain.Role, key domain.StreamKey, offer string) (string, error)

func (f funcSignaler) Exchange(ctx context.Context, role domain.Role, key domain.StreamKey, offer string) (string, error) {
	return f(ctx, role, key, offer)
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type tickerRecorder struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (r *tickerRecorder) factory(time.Duration) Ticker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	r.tickers = append(r.tickers, t)
	return t
}

func (r *tickerRecorder) last(t *testing.T) *fakeTicker {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.tickers, "no stats timer was started")
	return r.tickers[len(r.tickers)-1]
}

func (r *tickerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickers)
}

type fakeLocalTrack struct {
	id   string
	kind domain.MediaKind
}

func (t fakeLocalTrack) ID() string             { return t.id }
func (t fakeLocalTrack) Kind() domain.MediaKind { return t.kind }

type fakeSource struct {
	audio, video ports.LocalTrack
}

func (s fakeSource) AudioTrack() ports.LocalTrack { return s.audio }
func (s fakeSource) VideoTrack() ports.LocalTrack { return s.video }

func avSource() fakeSource {
	return fakeSource{
		audio: fakeLocalTrack{id: "mic", kind: domain.MediaKindAudio},
		video: fakeLocalTrack{id: "cam", kind: domain.MediaKindVideo},
	}
}

type fakeRemoteTrack struct {
	id, stream string
	kind       domain.MediaKind
}

func (t fakeRemoteTrack) ID() string             { return t.id }
func (t fakeRemoteTrack) StreamID() string       { return t.stream }
func (t fakeRemoteTrack) Kind() domain.MediaKind { return t.kind }
func (t fakeRemoteTrack) Codec() string          { return "video/VP8" }

type recordingSink struct {
	mu     sync.Mutex
	tracks []ports.RemoteTrack
}

func (s *recordingSink) Consume(ctx context.Context, track ports.RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

type recordingMetrics struct {
	mu           sync.Mutex
	snapshots    int
	negotiations []string
	forgotten    bool
}

func (m *recordingMetrics) RecordSnapshot(domain.SessionID, domain.Role, domain.MetricsSnapshot) {
	m.mu.Lock()
	m.snapshots++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordNegotiation(_ domain.Role, outcome string, _ time.Duration) {
	m.mu.Lock()
	m.negotiations = append(m.negotiations, outcome)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordStateChange(domain.Role, domain.SessionState, domain.SessionState) {}

func (m *recordingMetrics) ForgetSession(domain.SessionID, domain.Role) {
	m.mu.Lock()
	m.forgotten = true
	m.mu.Unlock()
}

func waitEvent(t *testing.T, sub *Subscription, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			require.True(t, ok, "subscription closed while waiting for %s", typ)
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func noEvent(t *testing.T, sub *Subscription, typ EventType, wait time.Duration) {
	t.Helper()
	timeout := time.After(wait)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			require.NotEqual(t, typ, ev.Type, "unexpected %s event", typ)
		case <-timeout:
			return
		}
	}
}
