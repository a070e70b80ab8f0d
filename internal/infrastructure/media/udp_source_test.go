package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"beamline/internal/core/domain"
)

func TestNewUDPSource_VideoOnly(t *testing.T) {
	src, err := NewUDPSource(UDPSourceConfig{
		VideoAddress: "127.0.0.1:0",
		VideoCodec:   "vp8",
		StreamID:     "beamline",
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer src.Close()

	assert.Nil(t, src.AudioTrack())
	require.NotNil(t, src.VideoTrack())
	assert.Equal(t, domain.MediaKindVideo, src.VideoTrack().Kind())
	assert.NotNil(t, src.Addr(domain.MediaKindVideo))
	assert.Nil(t, src.Addr(domain.MediaKindAudio))
}

func TestNewUDPSource_PartialFailureKeepsOtherKind(t *testing.T) {
	src, err := NewUDPSource(UDPSourceConfig{
		AudioAddress: "127.0.0.1:0",
		AudioCodec:   "opus",
		VideoAddress: "127.0.0.1:0",
		VideoCodec:   "av1",
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer src.Close()

	assert.NotNil(t, src.AudioTrack())
	assert.Nil(t, src.VideoTrack())
}

func TestNewUDPSource_NothingAcquired(t *testing.T) {
	_, err := NewUDPSource(UDPSourceConfig{}, zaptest.NewLogger(t).Sugar())
	assert.ErrorIs(t, err, domain.ErrNoLocalTracks)
}

func TestUDPSource_RunStopsOnCancel(t *testing.T) {
	src, err := NewUDPSource(UDPSourceConfig{AudioAddress: "127.0.0.1:0", AudioCodec: "opus"}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoError(t, src.Close())
}
