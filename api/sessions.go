package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type createSessionRequest struct {
	ModelName string `json:"model_name"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// ListSessions returns session headers, most recently updated first.
// GET /api/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.svc.ListSessions(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

// CreateSession creates a new empty session.
// POST /api/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	session, err := h.svc.NewSession(c.Request().Context(), req.ModelName)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// GetSession returns one session with its full message history.
// GET /api/sessions/:id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.svc.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// RenameSession sets a session title.
// PATCH /api/sessions/:id
func (h *Handler) RenameSession(c echo.Context) error {
	var req renameSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}

	if err := h.svc.RenameSession(c.Request().Context(), c.Param("id"), req.Title); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteSession removes a session and all of its messages.
// DELETE /api/sessions/:id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.svc.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
