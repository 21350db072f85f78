package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantonic/autotrader/internal/engine"
)

// TrailHandler triggers an on-demand trailing pass.
type TrailHandler struct {
	loop   *engine.TrailLoop
	logger *slog.Logger
}

// NewTrailHandler creates a TrailHandler.
func NewTrailHandler(loop *engine.TrailLoop, logger *slog.Logger) *TrailHandler {
	return &TrailHandler{loop: loop, logger: logger}
}

// TriggerPass runs a forced trailing pass and reports what it did.
// POST /api/trail
func (h *TrailHandler) TriggerPass(w http.ResponseWriter, r *http.Request) {
	report := h.loop.Pass(r.Context(), true)

	h.logger.InfoContext(r.Context(), "manual trail pass",
		slog.Int("actions", len(report.Actions)),
		slog.Int("skipped", len(report.Inspected)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": report.Actions,
		"skipped": report.Inspected,
	})
}
