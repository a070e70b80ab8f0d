package services

import (
	"math"
	"time"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

// floorEpsilon absorbs float representation error before flooring, so that
// e.g. 0.05/5*1000 yields 10 rather than 9.
const floorEpsilon = 1e-9

// StatsSource is the part of a peer connection the sampler reads.
type StatsSource interface {
	ConnectionState() domain.ConnectionState
	InboundVideoStats() (domain.InboundVideoStats, bool)
}

// StatsSampler derives a MetricsSnapshot from two consecutive cumulative
// samples. It is not safe for concurrent Tick calls; the owning session
// serializes them on its timer goroutine.
type StatsSampler struct {
	source     StatsSource
	resolution ports.ResolutionSource
	now        func() time.Time

	prev *domain.StatsSample
}

// NewStatsSampler creates a sampler. resolution may be nil, in which case the
// frame dimensions reported in the stats are used.
func NewStatsSampler(source StatsSource, resolution ports.ResolutionSource) *StatsSampler {
	return &StatsSampler{
		source:     source,
		resolution: resolution,
		now:        time.Now,
	}
}

// Tick samples once. It returns false, touching nothing, while the connection
// is not connected.
func (s *StatsSampler) Tick() (domain.MetricsSnapshot, bool) {
	if s.source.ConnectionState() != domain.ConnectionStateConnected {
		return domain.MetricsSnapshot{}, false
	}

	snapshot := domain.MetricsSnapshot{Timestamp: s.now()}

	stats, ok := s.source.InboundVideoStats()
	if !ok {
		return snapshot, true
	}

	cur := stats.StatsSample
	prev := s.prev
	s.prev = &cur
	if prev == nil {
		return snapshot, true
	}

	snapshot.BitrateKbps = BitrateKbps(*prev, cur)
	snapshot.DelayMs = DelayMs(*prev, cur)
	snapshot.FPS = stats.FramesPerSecond
	snapshot.Resolution = s.currentResolution(stats)
	return snapshot, true
}

// Reset forgets the previous sample so the next tick starts a new window.
func (s *StatsSampler) Reset() {
	s.prev = nil
}

func (s *StatsSampler) currentResolution(stats domain.InboundVideoStats) domain.Resolution {
	if s.resolution != nil {
		if r := s.resolution.Resolution(); r.Width > 0 && r.Height > 0 {
			return r
		}
	}
	return domain.Resolution{Width: stats.FrameWidth, Height: stats.FrameHeight}
}

// BitrateKbps is bits per millisecond over the window, i.e. kilobits per second.
func BitrateKbps(prev, cur domain.StatsSample) int64 {
	dt := cur.Timestamp - prev.Timestamp
	if dt <= 0 || cur.BytesReceived < prev.BytesReceived {
		return 0
	}
	db := float64(cur.BytesReceived - prev.BytesReceived)
	return floor(8 * db / dt)
}

// DelayMs is the average jitter buffer delay of the frames emitted in the window.
func DelayMs(prev, cur domain.StatsSample) int64 {
	if cur.JitterBufferEmittedCount <= prev.JitterBufferEmittedCount {
		return 0
	}
	dd := cur.JitterBufferDelay - prev.JitterBufferDelay
	if dd < 0 {
		return 0
	}
	de := float64(cur.JitterBufferEmittedCount - prev.JitterBufferEmittedCount)
	return floor(dd / de * 1000)
}

func floor(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Floor(v + floorEpsilon))
}
