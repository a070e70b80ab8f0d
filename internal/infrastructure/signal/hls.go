package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"beamline/internal/core/domain"
	apperrors "beamline/pkg/errors"
)

// HLSPlayerConfig holds the low latency player knobs served alongside a playlist.
type HLSPlayerConfig struct {
	LowLatencyMode          bool          `json:"lowLatencyMode"`
	LiveSyncDuration        time.Duration `json:"-"`
	LiveMaxLatencyDuration  time.Duration `json:"-"`
	BackBufferLength        time.Duration `json:"-"`
	MaxLiveSyncPlaybackRate float64       `json:"maxLiveSyncPlaybackRate"`
	EnableWorker            bool          `json:"enableWorker"`
}

func DefaultHLSPlayerConfig() HLSPlayerConfig {
	return HLSPlayerConfig{
		LowLatencyMode:          true,
		LiveSyncDuration:        500 * time.Millisecond,
		LiveMaxLatencyDuration:  time.Second,
		BackBufferLength:        30 * time.Second,
		MaxLiveSyncPlaybackRate: 1.5,
		EnableWorker:            true,
	}
}

// MarshalJSON renders durations in seconds, the unit hls.js expects.
func (c HLSPlayerConfig) MarshalJSON() ([]byte, error) {
	type alias HLSPlayerConfig
	return json.Marshal(struct {
		alias
		LiveSyncDuration       float64 `json:"liveSyncDuration"`
		LiveMaxLatencyDuration float64 `json:"liveMaxLatencyDuration"`
		BackBufferLength       float64 `json:"backBufferLength"`
	}{
		alias:                  alias(c),
		LiveSyncDuration:       c.LiveSyncDuration.Seconds(),
		LiveMaxLatencyDuration: c.LiveMaxLatencyDuration.Seconds(),
		BackBufferLength:       c.BackBufferLength.Seconds(),
	})
}

type hlsSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// RequestHLSSession asks the server to start LL-HLS output for the stream key
// and returns the playlist session id.
func (c *Client) RequestHLSSession(ctx context.Context, key domain.StreamKey) (string, error) {
	body, err := c.post(ctx, HLSPath, key, "", nil, maxSessionBody)
	if err != nil {
		return "", err
	}

	var resp hlsSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrCodeSignaling, "invalid hls session response", http.StatusOK)
	}
	if resp.SessionID == "" {
		return "", apperrors.NewAppError(apperrors.ErrCodeSignaling, "hls session response has no sessionId", http.StatusOK)
	}
	return resp.SessionID, nil
}

// PlaylistURL returns the public LL-HLS playlist location of a session.
func (c *Client) PlaylistURL(sessionID string) string {
	return fmt.Sprintf("%s/v1/public/hls/%s/index.m3u8", c.baseURL, url.PathEscape(sessionID))
}
