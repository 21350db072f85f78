package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quantonic/autotrader/internal/domain"
)

// JournalHandler serves recent trade journal entries.
type JournalHandler struct {
	journal domain.JournalStore
	logger  *slog.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(journal domain.JournalStore, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{journal: journal, logger: logger}
}

// ListRecent returns journal entries since ?since= (RFC3339, default 24h
// ago), capped by ?limit=.
// GET /api/journal
func (h *JournalHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}

	entries, err := h.journal.ListSince(r.Context(), since, queryLimit(r, 200, 2000))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list journal failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
