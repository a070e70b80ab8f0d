package webrtc

import (
	"sync"
	"time"

	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/rtp"

	"beamline/internal/core/domain"
)

// fpsWindow is the span over which completed frames are counted for the
// frame rate.
const fpsWindow = time.Second

// frameCounter follows the frames of a video track as the application reads
// it. A frame completes on the packet carrying the marker bit; its assembly
// delay runs from the arrival of its first packet to that packet.
type frameCounter struct {
	now func() time.Time

	mu            sync.Mutex
	frames        uint64
	assemblyDelay time.Duration
	frameStart    time.Time
	completed     []time.Time
}

func newFrameCounter(now func() time.Time) *frameCounter {
	if now == nil {
		now = time.Now
	}
	return &frameCounter{now: now}
}

func (c *frameCounter) observe(p *rtp.Packet) {
	if p == nil {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frameStart.IsZero() {
		c.frameStart = now
	}
	if !p.Marker {
		return
	}
	c.frames++
	c.assemblyDelay += now.Sub(c.frameStart)
	c.frameStart = time.Time{}
	c.completed = append(c.completed, now)
	c.pruneLocked(now)
}

func (c *frameCounter) pruneLocked(now time.Time) {
	cut := 0
	for cut < len(c.completed) && now.Sub(c.completed[cut]) > fpsWindow {
		cut++
	}
	c.completed = c.completed[cut:]
}

type frameTotals struct {
	Frames        uint64
	AssemblyDelay time.Duration
	FPS           float64
}

func (c *frameCounter) totals() frameTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(c.now())
	return frameTotals{
		Frames:        c.frames,
		AssemblyDelay: c.assemblyDelay,
		FPS:           float64(len(c.completed)) / fpsWindow.Seconds(),
	}
}

// inboundVideoStats joins the interceptor's byte counters with the frame
// counters of the track into one cumulative record.
func inboundVideoStats(in stats.InboundRTPStreamStats, frames frameTotals, now time.Time) domain.InboundVideoStats {
	return domain.InboundVideoStats{
		StatsSample: domain.StatsSample{
			Timestamp:                millis(now),
			BytesReceived:            in.BytesReceived,
			JitterBufferDelay:        frames.AssemblyDelay.Seconds(),
			JitterBufferEmittedCount: frames.Frames,
		},
		FramesPerSecond: frames.FPS,
	}
}

func millis(t time.Time) float64 {
	return float64(t.UnixMilli()) + float64(t.Nanosecond()%int(time.Millisecond))/float64(time.Millisecond)
}
