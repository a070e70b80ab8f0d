package signal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"beamline/internal/core/domain"
	"beamline/pkg/circuitbreaker"
	apperrors "beamline/pkg/errors"
	"beamline/pkg/tracing"
)

const (
	WHIPPath = "/v1/whip"
	WHEPPath = "/v1/whep"
	HLSPath  = "/v1/hls"

	sdpContentType = "application/sdp"

	// maxErrorBody bounds the response body kept on a SignalingError.
	maxErrorBody = 512
	// maxAnswerBody bounds an answer SDP read from the endpoint.
	maxAnswerBody = 1 << 20
	// maxSessionBody bounds the JSON of an HLS session response.
	maxSessionBody = 4 << 10
)

type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration

	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int

	Breaker circuitbreaker.Config

	// HTTPClient overrides the default client, e.g. in tests.
	HTTPClient *http.Client
}

func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		RequestTimeout:    10 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		Breaker:           circuitbreaker.DefaultConfig(),
	}
}

// Client talks to the WHIP, WHEP and HLS bootstrap endpoints of one media server.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewClient(cfg ClientConfig, logger *zap.SugaredLogger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.FailureThreshold <= 0 {
		breakerCfg = circuitbreaker.DefaultConfig()
	}
	// The endpoint answering 4xx is healthy; only transport errors and 5xx trip.
	breakerCfg.IsFailure = func(err error) bool {
		return !apperrors.IsClientRejection(err) && !errors.Is(err, context.Canceled)
	}
	breaker := circuitbreaker.New(breakerCfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("Signaling circuit breaker state changed", "from", from, "to", to)
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// Exchange POSTs the offer to the role's endpoint and returns the answer SDP.
func (c *Client) Exchange(ctx context.Context, role domain.Role, key domain.StreamKey, offer string) (string, error) {
	path := WHIPPath
	if role == domain.RoleSubscriber {
		path = WHEPPath
	}

	body, err := c.post(ctx, path, key, sdpContentType, []byte(offer), maxAnswerBody)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// post sends one authenticated POST through the limiter and breaker and
// returns the 2xx response body.
func (c *Client) post(ctx context.Context, path string, key domain.StreamKey, contentType string, payload []byte, limit int64) ([]byte, error) {
	ctx, span := tracing.TraceSignaling(ctx, path)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			err = apperrors.WrapSignalingTransportError(err)
			tracing.RecordError(ctx, err)
			return nil, err
		}
	}

	start := time.Now()
	body, err := circuitbreaker.ExecuteWithResult(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, path, key, contentType, payload, limit)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = apperrors.NewCircuitOpenError(err)
	}
	tracing.MeasureDuration(ctx, start)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Warnw("Signaling request failed", "endpoint", path, "error", err)
		return nil, err
	}

	c.logger.Debugw("Signaling request succeeded", "endpoint", path, "duration", time.Since(start))
	return body, nil
}

func (c *Client) do(ctx context.Context, path string, key domain.StreamKey, contentType string, payload []byte, limit int64) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build signaling request", err)
	}
	req.Header.Set("Authorization", "Bearer "+string(key))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapSignalingTransportError(err)
	}
	defer resp.Body.Close()

	tracing.AddSpanAttributes(ctx, tracing.StatusCodeKey.Int(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperrors.NewSignalingError(resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, apperrors.WrapSignalingTransportError(fmt.Errorf("read response body: %w", err))
	}
	if int64(len(body)) > limit {
		return nil, apperrors.NewOversizedResponseError(resp.StatusCode, limit)
	}
	return body, nil
}

// BreakerState exposes the circuit state for the status API.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}
