// Package api provides the HTTP handlers for the chat service.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"ollamachat/chat"
	"ollamachat/config"
	"ollamachat/domain"
	"ollamachat/policy"
)

// Handler handles HTTP requests.
type Handler struct {
	svc    *chat.Service
	policy *policy.Engine
	config *config.Config
	logger *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *chat.Service, policyEngine *policy.Engine, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		policy: policyEngine,
		config: cfg,
		logger: logger,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/sessions", h.ListSessions)
	e.POST("/api/sessions", h.CreateSession)
	e.GET("/api/sessions/:id", h.GetSession)
	e.PATCH("/api/sessions/:id", h.RenameSession)
	e.DELETE("/api/sessions/:id", h.DeleteSession)
	e.POST("/api/sessions/:id/chat", h.StreamChat)

	e.GET("/api/models", h.ListModels)
	e.POST("/api/models/pull", h.PullModel)
	e.DELETE("/api/models/:name", h.DeleteModel)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(c echo.Context, err error) error {
	var connErr *domain.ConnectionError
	var storeErr *domain.PersistenceError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, domain.ErrModelNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "model not found"})
	case errors.As(err, &connErr):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.As(err, &storeErr):
		h.logger.Error("storage failure", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "storage failure"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}
