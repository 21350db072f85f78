package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantonic/autotrader/internal/domain"
)

// PositionHandler serves open positions read live from the broker.
type PositionHandler struct {
	session domain.BrokerSession
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(session domain.BrokerSession, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{session: session, logger: logger}
}

// ListPositions returns open positions, optionally filtered by ?symbol=.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	positions, err := h.session.OpenPositions(r.Context(), symbol)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "broker unavailable")
		return
	}
	if positions == nil {
		positions = []domain.OpenPosition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}
