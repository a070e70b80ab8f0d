package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beamline/internal/core/domain"
	"beamline/internal/core/ports"
	"beamline/internal/infrastructure/monitoring"
	apperrors "beamline/pkg/errors"
	"beamline/pkg/validation"
)

// SessionHandler serves the local status API of a running client.
type SessionHandler struct {
	sessions ports.SessionRepository
	health   *monitoring.HealthChecker
	gatherer prometheus.Gatherer
}

// NewSessionHandler creates the handler. A nil gatherer disables /metrics.
func NewSessionHandler(sessions ports.SessionRepository, health *monitoring.HealthChecker, gatherer prometheus.Gatherer) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		health:   health,
		gatherer: gatherer,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.CloseSession)
	}
}

func (h *SessionHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to list sessions", err))
		return
	}

	infos := make([]domain.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	c.JSON(http.StatusOK, gin.H{"sessions": infos})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session.Info()})
}

// CloseSession closes the session and removes it from the repository.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	closeErr := session.Close()
	if err := h.sessions.Remove(c.Request.Context(), session.ID()); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		_ = c.Error(apperrors.NewInternalError("failed to remove session", err))
		return
	}
	if closeErr != nil {
		_ = c.Error(closeErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session.Info()})
}

func (h *SessionHandler) lookup(c *gin.Context) (ports.SessionHandle, bool) {
	id := c.Param("id")
	if err := validation.ValidateSessionID(id); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return nil, false
	}

	session, err := h.sessions.GetByID(c.Request.Context(), domain.SessionID(id))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			_ = c.Error(apperrors.NewNotFoundError("session"))
		} else {
			_ = c.Error(apperrors.NewInternalError("failed to load session", err))
		}
		return nil, false
	}
	return session, true
}
