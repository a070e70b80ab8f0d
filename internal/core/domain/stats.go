package domain

import "time"

// StatsSample holds the cumulative inbound video counters of one tick.
type StatsSample struct {
	Timestamp                float64 // milliseconds
	BytesReceived            uint64
	JitterBufferDelay        float64 // seconds, cumulative
	JitterBufferEmittedCount uint64
}

// InboundVideoStats is the inbound video record reported by the engine.
type InboundVideoStats struct {
	StatsSample
	FramesPerSecond float64
	FrameWidth      int
	FrameHeight     int
}

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type MetricsSnapshot struct {
	BitrateKbps int64      `json:"bitrate_kbps"`
	FPS         float64    `json:"fps"`
	DelayMs     int64      `json:"delay_ms"`
	Resolution  Resolution `json:"resolution"`
	Timestamp   time.Time  `json:"timestamp"`
}

// IsZero reports whether the snapshot carries no measurement.
func (s MetricsSnapshot) IsZero() bool {
	return s.BitrateKbps == 0 && s.FPS == 0 && s.DelayMs == 0 &&
		s.Resolution.Width == 0 && s.Resolution.Height == 0
}
