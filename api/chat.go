package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type chatTurnRequest struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// StreamChat runs one chat turn and relays the reply as server-sent
// events: one data record per chunk, a data record with an "error" field
// on terminal failure, then a [DONE] marker.
// POST /api/sessions/:id/chat
func (h *Handler) StreamChat(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("id")

	var req chatTurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	model := req.Model
	if model == "" {
		// Fall back to the model the session was created with.
		session, err := h.svc.GetSession(ctx, sessionID)
		if err != nil {
			return h.writeError(c, err)
		}
		model = session.ModelName
	}

	events, err := h.svc.StreamChat(ctx, sessionID, req.Content, model, req.SystemPrompt)
	if err != nil {
		return h.writeError(c, err)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}

	for ev := range events {
		var data []byte
		if ev.Err != nil {
			data, _ = json.Marshal(map[string]string{"error": ev.Err.Error()})
		} else {
			data, _ = json.Marshal(map[string]string{"content": ev.Content})
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
			h.logger.Warn("client went away mid-stream",
				zap.String("session_id", sessionID),
				zap.Error(err))
			return nil
		}
		flusher.Flush()
	}

	fmt.Fprint(c.Response().Writer, "data: [DONE]\n\n")
	flusher.Flush()
	return nil
}
