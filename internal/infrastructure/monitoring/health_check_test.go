package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"beamline/pkg/circuitbreaker"
)

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	state := circuitbreaker.StateClosed
	h.AddBreakerCheck("signaling", func() circuitbreaker.State { return state })
	h.AddCheck("disk", func(context.Context) error { return nil }, 0)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, map[string]string{"signaling": "healthy", "disk": "healthy"}, status.Checks)

	state = circuitbreaker.StateOpen
	status = h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, circuitbreaker.ErrOpen.Error(), status.Checks["signaling"])
	assert.False(t, h.IsHealthy(context.Background()))
}

func TestHealthChecker_CheckReceivesDeadline(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}, 0)

	assert.True(t, h.IsHealthy(context.Background()))
}
