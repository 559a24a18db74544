package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"ollamachat/policy"
)

type pullModelRequest struct {
	Name string `json:"name"`
}

// ListModels returns the provider's model catalog.
// GET /api/models
func (h *Handler) ListModels(c echo.Context) error {
	models, err := h.svc.ListModels(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"models": models})
}

// PullModel downloads a model, relaying the provider's progress records as
// newline-delimited JSON. No timeout applies; pulls can run for hours.
// POST /api/models/pull
func (h *Handler) PullModel(c echo.Context) error {
	ctx := c.Request().Context()

	var req pullModelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}

	decision, err := h.policy.Evaluate(ctx, policy.Input{
		Action:       "pull",
		Model:        req.Name,
		DefaultModel: h.config.DefaultModel,
	})
	if err != nil {
		h.logger.Error("policy evaluation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "policy evaluation failed"})
	}
	if decision != policy.DecisionAllow {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "pull blocked by policy"})
	}

	progress, err := h.svc.PullModel(ctx, req.Name)
	if err != nil {
		return h.writeError(c, err)
	}

	c.Response().Header().Set("Content-Type", "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}

	for record := range progress {
		if _, err := fmt.Fprintf(c.Response().Writer, "%s\n", record); err != nil {
			h.logger.Warn("client went away during pull", zap.String("model", req.Name), zap.Error(err))
			return nil
		}
		flusher.Flush()
	}
	return nil
}

// DeleteModel removes a model from the provider, unless the policy blocks
// it (the configured default model is protected).
// DELETE /api/models/:name
func (h *Handler) DeleteModel(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")

	decision, err := h.policy.Evaluate(ctx, policy.Input{
		Action:       "delete",
		Model:        name,
		DefaultModel: h.config.DefaultModel,
	})
	if err != nil {
		h.logger.Error("policy evaluation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "policy evaluation failed"})
	}
	if decision != policy.DecisionAllow {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "delete blocked by policy"})
	}

	if err := h.svc.DeleteModel(ctx, name); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
