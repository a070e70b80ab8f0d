package monitoring

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
)

// PrometheusCollector records session telemetry as prometheus metrics.
type PrometheusCollector struct {
	sessionsActive     *prometheus.GaugeVec
	negotiationsTotal  *prometheus.CounterVec
	negotiationSeconds *prometheus.HistogramVec
	transitionsTotal   *prometheus.CounterVec

	sessionBitrate *prometheus.GaugeVec
	sessionFPS     *prometheus.GaugeVec
	sessionDelay   *prometheus.GaugeVec
	sessionWidth   *prometheus.GaugeVec
	sessionHeight  *prometheus.GaugeVec
	snapshotsTotal *prometheus.CounterVec
}

var _ ports.MetricsRecorder = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the metrics with reg, or with the default
// registerer when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	sessionLabels := []string{"session_id", "role"}

	return &PrometheusCollector{
		sessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_sessions_connected",
			Help: "Number of sessions currently connected",
		}, []string{"role"}),

		negotiationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beamline_negotiations_total",
			Help: "Completed negotiations by outcome",
		}, []string{"role", "outcome"}),

		negotiationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beamline_negotiation_duration_seconds",
			Help:    "Time from offer creation to applied answer",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"role"}),

		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beamline_session_transitions_total",
			Help: "Session state transitions",
		}, []string{"role", "from", "to"}),

		sessionBitrate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_session_bitrate_kbps",
			Help: "Inbound video bitrate of the last stats window",
		}, sessionLabels),

		sessionFPS: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_session_frames_per_second",
			Help: "Decoded frames per second",
		}, sessionLabels),

		sessionDelay: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_session_jitter_buffer_delay_ms",
			Help: "Average jitter buffer delay per emitted frame",
		}, sessionLabels),

		sessionWidth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_session_frame_width",
			Help: "Width of the rendered video",
		}, sessionLabels),

		sessionHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beamline_session_frame_height",
			Help: "Height of the rendered video",
		}, sessionLabels),

		snapshotsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "beamline_snapshots_total",
			Help: "Metrics snapshots produced",
		}, []string{"role"}),
	}
}

func (p *PrometheusCollector) RecordSnapshot(id domain.SessionID, role domain.Role, snapshot domain.MetricsSnapshot) {
	labels := []string{string(id), string(role)}
	p.sessionBitrate.WithLabelValues(labels...).Set(float64(snapshot.BitrateKbps))
	p.sessionFPS.WithLabelValues(labels...).Set(snapshot.FPS)
	p.sessionDelay.WithLabelValues(labels...).Set(float64(snapshot.DelayMs))
	p.sessionWidth.WithLabelValues(labels...).Set(float64(snapshot.Resolution.Width))
	p.sessionHeight.WithLabelValues(labels...).Set(float64(snapshot.Resolution.Height))
	p.snapshotsTotal.WithLabelValues(string(role)).Inc()
}

func (p *PrometheusCollector) RecordNegotiation(role domain.Role, outcome string, duration time.Duration) {
	p.negotiationsTotal.WithLabelValues(string(role), strings.ToLower(outcome)).Inc()
	p.negotiationSeconds.WithLabelValues(string(role)).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordStateChange(role domain.Role, from, to domain.SessionState) {
	p.transitionsTotal.WithLabelValues(string(role), string(from), string(to)).Inc()

	switch {
	case to == domain.StateConnected:
		p.sessionsActive.WithLabelValues(string(role)).Inc()
	case from == domain.StateConnected:
		p.sessionsActive.WithLabelValues(string(role)).Dec()
	}
}

// ForgetSession drops the per-session series.
func (p *PrometheusCollector) ForgetSession(id domain.SessionID, role domain.Role) {
	labels := []string{string(id), string(role)}
	p.sessionBitrate.DeleteLabelValues(labels...)
	p.sessionFPS.DeleteLabelValues(labels...)
	p.sessionDelay.DeleteLabelValues(labels...)
	p.sessionWidth.DeleteLabelValues(labels...)
	p.sessionHeight.DeleteLabelValues(labels...)
}
