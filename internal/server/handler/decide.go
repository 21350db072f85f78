package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantonic/autotrader/internal/engine"
)

// DecideHandler runs signal and admission for a symbol without trading,
// so an operator can see what the engine would do right now.
type DecideHandler struct {
	loop   *engine.TradeLoop
	logger *slog.Logger
}

// NewDecideHandler creates a DecideHandler.
func NewDecideHandler(loop *engine.TradeLoop, logger *slog.Logger) *DecideHandler {
	return &DecideHandler{loop: loop, logger: logger}
}

// Decide evaluates the pipeline for one symbol.
// GET /api/decide/{symbol}
func (h *DecideHandler) Decide(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	sig, decision, err := h.loop.Decide(r.Context(), symbol)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "decide failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := map[string]any{
		"symbol":    symbol,
		"no_signal": sig.NoSignal(),
		"regime":    sig.Regime,
	}
	if !sig.NoSignal() {
		resp["side"] = string(sig.Side)
		resp["sl_pips"] = sig.StopDistance
		resp["tp_pips"] = sig.TargetDistance
		resp["confidence"] = sig.Confidence
		resp["why"] = sig.Why
		resp["accepted"] = decision.Accepted
		resp["reasons"] = decision.Reasons
	}
	writeJSON(w, http.StatusOK, resp)
}
