package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantonic/autotrader/internal/domain"
	"github.com/quantonic/autotrader/internal/engine"
)

// StatusHandler exposes the trade loop state and account snapshot.
type StatusHandler struct {
	loop    *engine.TradeLoop
	session domain.BrokerSession
	logger  *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(loop *engine.TradeLoop, session domain.BrokerSession, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{loop: loop, session: session, logger: logger}
}

// GetStatus returns the loop status plus the current account snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"loop": h.loop.Status(),
	}
	if acct, err := h.session.AccountSnapshot(r.Context()); err == nil {
		resp["account"] = map[string]any{
			"equity":             acct.Equity,
			"balance":            acct.Balance,
			"realized_pnl_today": acct.RealizedPnlToday,
			"currency":           acct.Currency,
		}
	} else {
		resp["account_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
