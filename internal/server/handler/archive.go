package handler

import (
	"log/slog"
	"net/http"

	s3blob "github.com/quantonic/autotrader/internal/blob/s3"
	"github.com/quantonic/autotrader/internal/domain"
)

// ArchiveHandler lists exported journal archives in blob storage.
type ArchiveHandler struct {
	reader *s3blob.Reader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader *s3blob.Reader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, logger: logger}
}

// ListArchives returns the stored archive objects.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), "archive/journal/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "blob storage unavailable")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}
