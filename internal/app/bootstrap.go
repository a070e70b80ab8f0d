// Package app holds the wiring shared by the publish and watch commands.
package app

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	"beamline/internal/core/services"
	"beamline/internal/infrastructure/signal"
	"beamline/pkg/circuitbreaker"
	"beamline/pkg/config"
	apperrors "beamline/pkg/errors"
	"beamline/pkg/retry"
	"beamline/pkg/tracing"
)

// ConfigPaths are tried in order when no explicit path is given.
var ConfigPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"config.yaml",
}

// LoadConfig loads path, or the first existing file of ConfigPaths when path
// is empty. With no file present the defaults apply.
func LoadConfig(path string) (*config.Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return config.Load(path)
	}
	for _, p := range ConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.Load("")
}

// LoadConfigOrDefault is LoadConfig falling back to the defaults. The load
// error is still returned so the caller can report it once logging is up.
func LoadConfigOrDefault(path string) (*config.Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return config.DefaultConfig(), err
	}
	return cfg, nil
}

func TracingConfig(cfg *config.Config) tracing.Config {
	return tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	}
}

func SignalClientConfig(cfg *config.Config) signal.ClientConfig {
	c := signal.DefaultClientConfig(cfg.Signal.BaseURL)
	c.RequestTimeout = cfg.Signal.RequestTimeout
	if cfg.RateLimiting.Enabled {
		c.RequestsPerSecond = cfg.RateLimiting.RequestsPerSecond
		c.Burst = cfg.RateLimiting.Burst
	} else {
		c.RequestsPerSecond = 0
	}
	c.Breaker = circuitbreaker.Config{
		FailureThreshold:    cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold:    cfg.CircuitBreaker.SuccessThreshold,
		Timeout:             cfg.CircuitBreaker.Timeout,
		MaxRequestsHalfOpen: cfg.CircuitBreaker.MaxRequestsHalfOpen,
	}
	return c
}

// TransportConfig maps the webrtc section onto a peer connection shape.
func TransportConfig(cfg *config.Config) domain.TransportConfig {
	t := domain.TransportConfig{
		PortRange:       domain.PortRange{Min: cfg.WebRTC.PortRange.Min, Max: cfg.WebRTC.PortRange.Max},
		AudioMaxBitrate: cfg.WebRTC.AudioMaxBitrate,
		VideoMaxBitrate: cfg.WebRTC.VideoMaxBitrate,
	}
	for _, s := range cfg.WebRTC.ICEServers {
		t.ICEServers = append(t.ICEServers, domain.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return t
}

func SessionOptions(cfg *config.Config, metrics ports.MetricsRecorder, log *zap.SugaredLogger) services.SessionOptions {
	return services.SessionOptions{
		StatsInterval: cfg.Stats.Interval,
		Metrics:       metrics,
		Logger:        log,
	}
}

// RetryConfig builds the republish policy. Errors a fresh session cannot fix
// are not retried.
func RetryConfig(cfg *config.Config, log *zap.SugaredLogger) retry.Config {
	return retry.Config{
		Enabled:      cfg.Retry.Enabled,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       true,
		IsRetryable:  Retryable,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warnw("Negotiation failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		},
	}
}

// Retryable reports whether a failed negotiation may succeed with a new session.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if apperrors.IsClientRejection(err) {
		return false
	}
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeMediaAcquisition, apperrors.ErrCodeSessionClosed:
		return false
	}
	return true
}
