package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantonic/autotrader/internal/domain"
)

// Archiver exports old trade journal entries to S3 as JSONL and optionally
// prunes them from the primary store afterwards. Export and prune are
// separate steps so a failed upload never loses journal rows.
type Archiver struct {
	writer  domain.BlobWriter
	journal domain.JournalStore
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, journal domain.JournalStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		journal: journal,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// Archive exports every journal entry strictly before the cutoff to
// archive/journal/YYYY-MM.jsonl and returns how many were written. An
// empty range uploads nothing.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.journal.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive journal marshal: %w", err)
	}

	path := archivePath(before)
	if err := a.writer.Write(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive journal upload: %w", err)
	}

	count := int64(len(entries))
	a.logger.InfoContext(ctx, "journal archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before),
	)
	return count, nil
}

// ArchiveAndPrune exports entries before the cutoff and, only after a
// successful upload, deletes them from the store.
func (a *Archiver) ArchiveAndPrune(ctx context.Context, before time.Time) (int64, error) {
	count, err := a.Archive(ctx, before)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	deleted, err := a.journal.DeleteBefore(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: prune journal: %w", err)
	}
	a.logger.InfoContext(ctx, "journal pruned",
		slog.Int64("deleted", deleted),
		slog.Time("before", before),
	)
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/journal/2025-01.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/journal/%s.jsonl", before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON. Each record
// becomes one compact line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
