package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"beamline/internal/core/domain"
)

func TestPrometheusCollector_Snapshot(t *testing.T) {
	c := NewPrometheusCollector(prometheus.NewRegistry())

	c.RecordSnapshot("s1", domain.RoleSubscriber, domain.MetricsSnapshot{
		BitrateKbps: 2500,
		FPS:         29.5,
		DelayMs:     40,
		Resolution:  domain.Resolution{Width: 1280, Height: 720},
	})

	assert.Equal(t, 2500.0, testutil.ToFloat64(c.sessionBitrate.WithLabelValues("s1", "subscriber")))
	assert.Equal(t, 29.5, testutil.ToFloat64(c.sessionFPS.WithLabelValues("s1", "subscriber")))
	assert.Equal(t, 40.0, testutil.ToFloat64(c.sessionDelay.WithLabelValues("s1", "subscriber")))
	assert.Equal(t, 1280.0, testutil.ToFloat64(c.sessionWidth.WithLabelValues("s1", "subscriber")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapshotsTotal.WithLabelValues("subscriber")))

	c.ForgetSession("s1", domain.RoleSubscriber)
	assert.Equal(t, 0, testutil.CollectAndCount(c.sessionBitrate))
}

func TestPrometheusCollector_StateChangesTrackConnected(t *testing.T) {
	c := NewPrometheusCollector(prometheus.NewRegistry())

	c.RecordStateChange(domain.RolePublisher, domain.StateAwaitingAnswer, domain.StateConnected)
	c.RecordStateChange(domain.RolePublisher, domain.StateAwaitingAnswer, domain.StateConnected)
	c.RecordStateChange(domain.RolePublisher, domain.StateConnected, domain.StateClosed)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionsActive.WithLabelValues("publisher")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitionsTotal.WithLabelValues("publisher", "awaiting_answer", "connected")))
}

func TestPrometheusCollector_Negotiation(t *testing.T) {
	c := NewPrometheusCollector(prometheus.NewRegistry())

	c.RecordNegotiation(domain.RolePublisher, "connected", 120*time.Millisecond)
	c.RecordNegotiation(domain.RolePublisher, "SIGNALING", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.negotiationsTotal.WithLabelValues("publisher", "signaling")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.negotiationSeconds))
}
