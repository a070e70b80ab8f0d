package signal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"beamline/internal/core/domain"
	"beamline/pkg/circuitbreaker"
	apperrors "beamline/pkg/errors"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := DefaultClientConfig(url)
	cfg.RequestsPerSecond = 0
	cfg.Breaker = circuitbreaker.Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}
	return NewClient(cfg, zaptest.NewLogger(t).Sugar())
}

func TestExchange_SendsOfferAndReturnsAnswer(t *testing.T) {
	var gotPath, gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/sdp")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("v=0 answer"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/")
	answer, err := c.Exchange(context.Background(), domain.RolePublisher, "key-1", "v=0 offer")

	require.NoError(t, err)
	assert.Equal(t, "v=0 answer", answer)
	assert.Equal(t, WHIPPath, gotPath)
	assert.Equal(t, "Bearer key-1", gotAuth)
	assert.Equal(t, "application/sdp", gotType)
	assert.Equal(t, "v=0 offer", gotBody)
}

func TestExchange_SubscriberUsesWHEP(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("answer"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Exchange(context.Background(), domain.RoleSubscriber, "k", "offer")
	require.NoError(t, err)
	assert.Equal(t, WHEPPath, gotPath)
}

func TestExchange_Non2xxIsSignalingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Exchange(context.Background(), domain.RolePublisher, "bad", "offer")

	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeSignaling, appErr.Code)
	assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
	assert.Len(t, appErr.Context["body"], maxErrorBody)
}

func TestExchange_OversizedAnswerIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(strings.Repeat("a", maxAnswerBody+1)))
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Exchange(context.Background(), domain.RolePublisher, "k", "offer")

	assert.Empty(t, answer)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeSignaling, appErr.Code)
	assert.Equal(t, http.StatusCreated, appErr.Context["status"])
	assert.False(t, apperrors.IsClientRejection(err))
}

func TestExchange_AnswerAtLimitIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", maxAnswerBody)))
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Exchange(context.Background(), domain.RolePublisher, "k", "offer")
	require.NoError(t, err)
	assert.Len(t, answer, maxAnswerBody)
}

func TestExchange_ClientRejectionsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 5; i++ {
		_, err := c.Exchange(context.Background(), domain.RolePublisher, "k", "offer")
		assert.True(t, apperrors.IsClientRejection(err))
	}
	assert.EqualValues(t, 5, calls.Load())
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerState())
}

func TestExchange_ServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 2; i++ {
		_, _ = c.Exchange(context.Background(), domain.RolePublisher, "k", "offer")
	}

	_, err := c.Exchange(context.Background(), domain.RolePublisher, "k", "offer")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCircuitOpen))
	assert.EqualValues(t, 2, calls.Load())
}

func TestExchange_ContextCancelAbortsRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(t, srv.URL).Exchange(ctx, domain.RolePublisher, "k", "offer")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSignaling))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExchange_RateLimiterWaitsOnContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("answer"))
	}))
	defer srv.Close()

	cfg := DefaultClientConfig(srv.URL)
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	c := NewClient(cfg, zaptest.NewLogger(t).Sugar())

	_, err := c.Exchange(context.Background(), domain.RolePublisher, "k", "offer")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Exchange(ctx, domain.RolePublisher, "k", "offer")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSignaling))
}

func TestRequestHLSSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HLSPath, r.URL.Path)
		assert.Equal(t, "Bearer live", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": "abc-123"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.RequestHLSSession(context.Background(), "live")

	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, srv.URL+"/v1/public/hls/abc-123/index.m3u8", c.PlaylistURL(id))
}

func TestRequestHLSSession_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).RequestHLSSession(context.Background(), "live")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSignaling))
}

func TestDefaultHLSPlayerConfig_JSON(t *testing.T) {
	data, err := json.Marshal(DefaultHLSPlayerConfig())
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, true, got["lowLatencyMode"])
	assert.Equal(t, 0.5, got["liveSyncDuration"])
	assert.Equal(t, 1.0, got["liveMaxLatencyDuration"])
	assert.Equal(t, 30.0, got["backBufferLength"])
	assert.Equal(t, 1.5, got["maxLiveSyncPlaybackRate"])
	assert.Equal(t, true, got["enableWorker"])
}
