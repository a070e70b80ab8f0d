package ports

import (
	"time"

	"beamline/internal/core/domain"
)

// MetricsRecorder receives session telemetry. Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	RecordSnapshot(id domain.SessionID, role domain.Role, snapshot domain.MetricsSnapshot)
	RecordNegotiation(role domain.Role, outcome string, duration time.Duration)
	RecordStateChange(role domain.Role, from, to domain.SessionState)
	ForgetSession(id domain.SessionID, role domain.Role)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) RecordSnapshot(domain.SessionID, domain.Role, domain.MetricsSnapshot) {}
func (NopMetricsRecorder) RecordNegotiation(domain.Role, string, time.Duration)                 {}
func (NopMetricsRecorder) RecordStateChange(domain.Role, domain.SessionState, domain.SessionState) {
}
func (NopMetricsRecorder) ForgetSession(domain.SessionID, domain.Role) {}
