package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Signal struct {
		BaseURL        string        `yaml:"base_url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		AudioMaxBitrate uint64 `yaml:"audio_max_bitrate"`
		VideoMaxBitrate uint64 `yaml:"video_max_bitrate"`
	} `yaml:"webrtc"`

	Publish struct {
		StreamKey          string `yaml:"stream_key"`
		AudioCodec         string `yaml:"audio_codec"`
		VideoCodec         string `yaml:"video_codec"`
		MaintainResolution bool   `yaml:"maintain_resolution"`
		AudioRTPAddress    string `yaml:"audio_rtp_address"`
		VideoRTPAddress    string `yaml:"video_rtp_address"`
	} `yaml:"publish"`

	Watch struct {
		StreamKey string `yaml:"stream_key"`
		Mode      string `yaml:"mode"`
	} `yaml:"watch"`

	Stats struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"stats"`

	HLS struct {
		LowLatencyMode          bool          `yaml:"low_latency_mode"`
		LiveSyncDuration        time.Duration `yaml:"live_sync_duration"`
		LiveMaxLatencyDuration  time.Duration `yaml:"live_max_latency_duration"`
		BackBufferLength        time.Duration `yaml:"back_buffer_length"`
		MaxLiveSyncPlaybackRate float64       `yaml:"max_live_sync_playback_rate"`
		EnableWorker            bool          `yaml:"enable_worker"`
		PollInterval            time.Duration `yaml:"poll_interval"`
	} `yaml:"hls"`

	Status struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"status"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`

	CircuitBreaker struct {
		FailureThreshold    int           `yaml:"failure_threshold"`
		SuccessThreshold    int           `yaml:"success_threshold"`
		Timeout             time.Duration `yaml:"timeout"`
		MaxRequestsHalfOpen int           `yaml:"max_requests_half_open"`
	} `yaml:"circuit_breaker"`

	Retry struct {
		Enabled      bool          `yaml:"enabled"`
		MaxAttempts  int           `yaml:"max_attempts"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
		Multiplier   float64       `yaml:"multiplier"`
	} `yaml:"retry"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Signal
	if c.Signal.BaseURL == "" {
		return fmt.Errorf("signal.base_url must not be empty")
	}
	if !strings.HasPrefix(c.Signal.BaseURL, "http://") && !strings.HasPrefix(c.Signal.BaseURL, "https://") {
		return fmt.Errorf("signal.base_url must be an http(s) URL")
	}
	if c.Signal.RequestTimeout <= 0 {
		return fmt.Errorf("signal.request_timeout must be > 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}
	for i, s := range c.WebRTC.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("webrtc.ice_servers[%d].urls must not be empty", i)
		}
	}

	// Watch
	switch c.Watch.Mode {
	case "webrtc", "hls":
	default:
		return fmt.Errorf("watch.mode must be webrtc or hls, got %q", c.Watch.Mode)
	}

	// Stats
	if c.Stats.Interval <= 0 {
		return fmt.Errorf("stats.interval must be > 0")
	}

	// HLS
	if c.HLS.MaxLiveSyncPlaybackRate < 1 {
		return fmt.Errorf("hls.max_live_sync_playback_rate must be >= 1")
	}
	if c.HLS.PollInterval <= 0 {
		return fmt.Errorf("hls.poll_interval must be > 0")
	}

	// Status
	if c.Status.Enabled && c.Status.Address == "" {
		return fmt.Errorf("status.address must not be empty when status.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	// Circuit breaker
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be > 0")
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.success_threshold must be > 0")
	}
	if c.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("circuit_breaker.timeout must be > 0")
	}

	// Retry
	if c.Retry.Enabled {
		if c.Retry.MaxAttempts <= 0 {
			return fmt.Errorf("retry.max_attempts must be > 0 when retry is enabled")
		}
		if c.Retry.Multiplier < 1 {
			return fmt.Errorf("retry.multiplier must be >= 1 when retry is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Signal.BaseURL = "http://localhost:8080"
	cfg.Signal.RequestTimeout = 10 * time.Second

	cfg.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	cfg.WebRTC.AudioMaxBitrate = 1024 * 1024
	cfg.WebRTC.VideoMaxBitrate = 1024 * 1024 * 1024

	cfg.Publish.AudioCodec = "opus"
	cfg.Publish.VideoCodec = "h264"
	cfg.Publish.AudioRTPAddress = "127.0.0.1:5004"
	cfg.Publish.VideoRTPAddress = "127.0.0.1:5006"

	cfg.Watch.Mode = "webrtc"

	cfg.Stats.Interval = time.Second

	cfg.HLS.LowLatencyMode = true
	cfg.HLS.LiveSyncDuration = 500 * time.Millisecond
	cfg.HLS.LiveMaxLatencyDuration = time.Second
	cfg.HLS.BackBufferLength = 30 * time.Second
	cfg.HLS.MaxLiveSyncPlaybackRate = 1.5
	cfg.HLS.EnableWorker = true
	cfg.HLS.PollInterval = time.Second

	cfg.Status.Enabled = true
	cfg.Status.Address = "127.0.0.1:9400"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "beamline"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Signaling is one POST per session; limit bursts from retry loops
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.RequestsPerSecond = 2
	cfg.RateLimiting.Burst = 4

	cfg.CircuitBreaker.FailureThreshold = 5
	cfg.CircuitBreaker.SuccessThreshold = 1
	cfg.CircuitBreaker.Timeout = 30 * time.Second
	cfg.CircuitBreaker.MaxRequestsHalfOpen = 1

	cfg.Retry.Enabled = true
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelay = time.Second
	cfg.Retry.MaxDelay = 15 * time.Second
	cfg.Retry.Multiplier = 2.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("BEAMLINE_SIGNAL_URL"); url != "" {
		c.Signal.BaseURL = url
	}
	if key := os.Getenv("BEAMLINE_STREAM_KEY"); key != "" {
		c.Publish.StreamKey = key
		c.Watch.StreamKey = key
	}
	if level := os.Getenv("BEAMLINE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
