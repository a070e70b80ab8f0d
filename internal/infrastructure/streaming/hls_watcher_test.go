package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"beamline/internal/core/domain"
	"beamline/internal/infrastructure/signal"
	apperrors "beamline/pkg/errors"
)

type fakeBootstrap struct {
	id  string
	err error
	key domain.StreamKey
}

func (b *fakeBootstrap) RequestHLSSession(_ context.Context, key domain.StreamKey) (string, error) {
	b.key = key
	return b.id, b.err
}

func (b *fakeBootstrap) PlaylistURL(id string) string { return "http://hls/" + id + "/index.m3u8" }

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []func() (*signal.Playlist, error)
	urls  []string
}

func (f *scriptedFetcher) FetchPlaylist(_ context.Context, url string) (*signal.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if len(f.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step()
}

func playlist(seq uint64, pending int, ended bool) func() (*signal.Playlist, error) {
	return func() (*signal.Playlist, error) {
		return &signal.Playlist{
			MediaSequence: seq,
			PartTarget:    500 * time.Millisecond,
			Segments:      []signal.Segment{{Sequence: seq, Duration: 2 * time.Second}},
			PendingParts:  pending,
			Ended:         ended,
		}, nil
	}
}

func newTestWatcher(t *testing.T, b *fakeBootstrap, f *scriptedFetcher) *HLSWatcher {
	return NewHLSWatcher(b, f, HLSWatcherConfig{StreamKey: "live", PollInterval: time.Millisecond}, zaptest.NewLogger(t).Sugar())
}

func TestHLSWatcher_ReportsUntilEnded(t *testing.T) {
	b := &fakeBootstrap{id: "s1"}
	f := &scriptedFetcher{steps: []func() (*signal.Playlist, error){
		playlist(10, 1, false),
		playlist(10, 1, false),
		func() (*signal.Playlist, error) { return nil, errors.New("connection reset") },
		playlist(11, 0, true),
	}}

	var reports []PlaylistReport
	err := newTestWatcher(t, b, f).Run(context.Background(), func(r PlaylistReport) {
		reports = append(reports, r)
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StreamKey("live"), b.key)
	require.Len(t, reports, 3)
	assert.Equal(t, "s1", reports[0].SessionID)
	assert.Equal(t, 2*time.Second, reports[0].Window)
	assert.Equal(t, time.Second, reports[0].LiveEdgeLag)
	assert.False(t, reports[0].Stalled)
	assert.True(t, reports[1].Stalled)
	assert.True(t, reports[2].Ended)
	assert.Equal(t, 500*time.Millisecond, reports[2].LiveEdgeLag)
	assert.Equal(t, "http://hls/s1/index.m3u8", f.urls[0])
}

func TestHLSWatcher_BootstrapFailure(t *testing.T) {
	b := &fakeBootstrap{err: apperrors.NewSignalingError(http.StatusUnauthorized, "denied")}
	f := &scriptedFetcher{}

	err := newTestWatcher(t, b, f).Run(context.Background(), nil)

	assert.True(t, apperrors.IsClientRejection(err))
	assert.Empty(t, f.urls)
}

func TestHLSWatcher_PlaylistRejectionStops(t *testing.T) {
	f := &scriptedFetcher{steps: []func() (*signal.Playlist, error){
		func() (*signal.Playlist, error) {
			return nil, apperrors.NewSignalingError(http.StatusNotFound, "gone")
		},
	}}

	err := newTestWatcher(t, &fakeBootstrap{id: "s1"}, f).Run(context.Background(), nil)

	assert.True(t, apperrors.IsClientRejection(err))
}

func TestHLSWatcher_StopsOnContext(t *testing.T) {
	steps := make([]func() (*signal.Playlist, error), 1000)
	for i := range steps {
		steps[i] = playlist(1, 0, false)
	}
	f := &scriptedFetcher{steps: steps}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := newTestWatcher(t, &fakeBootstrap{id: "s1"}, f).Run(ctx, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewHLSWatcher_Defaults(t *testing.T) {
	w := NewHLSWatcher(&fakeBootstrap{}, &scriptedFetcher{}, HLSWatcherConfig{}, zaptest.NewLogger(t).Sugar())

	assert.Equal(t, DefaultPollInterval, w.cfg.PollInterval)
	assert.Equal(t, signal.DefaultHLSPlayerConfig(), w.cfg.Player)
}
