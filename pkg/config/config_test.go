package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got error: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 0
	cfg.RateLimiting.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "base url must not be empty",
			mutate: func(c *Config) { c.Signal.BaseURL = "" },
		},
		{
			name:   "base url must be http",
			mutate: func(c *Config) { c.Signal.BaseURL = "ftp://example.com" },
		},
		{
			name:   "request timeout must be > 0",
			mutate: func(c *Config) { c.Signal.RequestTimeout = 0 },
		},
		{
			name: "port range min must be < max",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50000
				c.WebRTC.PortRange.Max = 40000
			},
		},
		{
			name:   "port range needs both ends",
			mutate: func(c *Config) { c.WebRTC.PortRange.Min = 50000 },
		},
		{
			name:   "ice server needs urls",
			mutate: func(c *Config) { c.WebRTC.ICEServers = []ICEServer{{}} },
		},
		{
			name:   "watch mode must be known",
			mutate: func(c *Config) { c.Watch.Mode = "dash" },
		},
		{
			name:   "stats interval must be > 0",
			mutate: func(c *Config) { c.Stats.Interval = 0 },
		},
		{
			name:   "playback rate must be >= 1",
			mutate: func(c *Config) { c.HLS.MaxLiveSyncPlaybackRate = 0.5 },
		},
		{
			name:   "status address when enabled",
			mutate: func(c *Config) { c.Status.Address = "" },
		},
		{
			name: "tracing sample rate bounded",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 2
			},
		},
		{
			name:   "rate limit rps must be > 0",
			mutate: func(c *Config) { c.RateLimiting.RequestsPerSecond = 0 },
		},
		{
			name:   "breaker threshold must be > 0",
			mutate: func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 },
		},
		{
			name:   "retry attempts must be > 0",
			mutate: func(c *Config) { c.Retry.MaxAttempts = 0 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Stats.Interval != time.Second {
		t.Errorf("Stats.Interval = %v, want 1s", cfg.Stats.Interval)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beamline.yaml")
	data := []byte(`
signal:
  base_url: "https://media.example.com"
publish:
  video_codec: vp9
watch:
  mode: hls
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BEAMLINE_STREAM_KEY", "env-key")
	t.Setenv("BEAMLINE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Signal.BaseURL != "https://media.example.com" {
		t.Errorf("BaseURL = %q", cfg.Signal.BaseURL)
	}
	if cfg.Publish.VideoCodec != "vp9" {
		t.Errorf("VideoCodec = %q, want vp9", cfg.Publish.VideoCodec)
	}
	if cfg.Publish.AudioCodec != "opus" {
		t.Errorf("AudioCodec default lost, got %q", cfg.Publish.AudioCodec)
	}
	if cfg.Watch.Mode != "hls" {
		t.Errorf("Watch.Mode = %q, want hls", cfg.Watch.Mode)
	}
	if cfg.Publish.StreamKey != "env-key" || cfg.Watch.StreamKey != "env-key" {
		t.Errorf("stream key env override not applied")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_InvalidFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("watch:\n  mode: dash\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid configuration error")
	}
}

func TestLoad_SampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Signal.RequestTimeout != def.Signal.RequestTimeout {
		t.Errorf("request_timeout: got %v, want %v", cfg.Signal.RequestTimeout, def.Signal.RequestTimeout)
	}
	if cfg.HLS.LiveSyncDuration != 500*time.Millisecond {
		t.Errorf("live_sync_duration: got %v", cfg.HLS.LiveSyncDuration)
	}
	if cfg.WebRTC.VideoMaxBitrate != def.WebRTC.VideoMaxBitrate {
		t.Errorf("video_max_bitrate: got %d", cfg.WebRTC.VideoMaxBitrate)
	}
}
