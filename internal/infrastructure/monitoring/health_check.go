package monitoring

import (
	"context"
	"sync"
	"time"

	"beamline/internal/core/ports"
	"beamline/pkg/circuitbreaker"
)

const defaultCheckTimeout = 2 * time.Second

type HealthChecker struct {
	checks []HealthCheck
	mu     sync.RWMutex
}

type HealthCheck struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, HealthCheck{Name: name, Check: check, Timeout: timeout})
}

// AddBreakerCheck reports unhealthy while the breaker is open.
func (h *HealthChecker) AddBreakerCheck(name string, state func() circuitbreaker.State) {
	h.AddCheck(name, func(context.Context) error {
		if state() == circuitbreaker.StateOpen {
			return circuitbreaker.ErrOpen
		}
		return nil
	}, 0)
}

// AddRepositoryCheck verifies the session repository can be listed.
func (h *HealthChecker) AddRepositoryCheck(repo ports.SessionRepository) {
	h.AddCheck("sessions", func(ctx context.Context) error {
		_, err := repo.List(ctx)
		return err
	}, 0)
}

func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}

	for _, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
		err := check.Check(checkCtx)
		cancel()

		if err != nil {
			status.Status = "unhealthy"
			status.Checks[check.Name] = err.Error()
			continue
		}
		status.Checks[check.Name] = "healthy"
	}

	return status
}

func (h *HealthChecker) IsHealthy(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}
