package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantonic/autotrader/internal/domain"
)

// JournalStore implements domain.JournalStore using PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Append inserts one journal entry.
func (s *JournalStore) Append(ctx context.Context, e domain.JournalEntry) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal journal detail: %w", err)
	}
	if e.Detail == nil {
		detail = []byte("{}")
	}

	const query = `
		INSERT INTO trade_journal (
			id, kind, instrument, side, accepted, outcome, reasons, detail, at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.pool.Exec(ctx, query,
		e.ID, string(e.Kind), e.Instrument, string(e.Side),
		e.Accepted, e.Outcome, e.Reasons, detail, e.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append journal %s: %w", e.ID, err)
	}
	return nil
}

const journalSelectCols = `id, kind, instrument, side, accepted, outcome, reasons, detail, at`

// ListSince returns entries at or after since, oldest first. A limit of
// zero or less means no limit.
func (s *JournalStore) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.JournalEntry, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM trade_journal WHERE at >= $1 ORDER BY at ASC%s`,
		journalSelectCols, limitClause(limit),
	)
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal since: %w", err)
	}
	defer rows.Close()
	return scanJournal(rows)
}

// ListBefore returns entries strictly before the cutoff, oldest first.
// A limit of zero or less means no limit.
func (s *JournalStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.JournalEntry, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM trade_journal WHERE at < $1 ORDER BY at ASC%s`,
		journalSelectCols, limitClause(limit),
	)
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal before: %w", err)
	}
	defer rows.Close()
	return scanJournal(rows)
}

// DeleteBefore removes entries strictly before the cutoff and reports how
// many were deleted.
func (s *JournalStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trade_journal WHERE at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete journal before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJournal(rows pgx.Rows) ([]domain.JournalEntry, error) {
	var out []domain.JournalEntry
	for rows.Next() {
		var (
			e      domain.JournalEntry
			kind   string
			side   string
			detail []byte
		)
		if err := rows.Scan(
			&e.ID, &kind, &e.Instrument, &side,
			&e.Accepted, &e.Outcome, &e.Reasons, &detail, &e.At,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan journal row: %w", err)
		}
		e.Kind = domain.JournalKind(kind)
		e.Side = domain.Side(side)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode journal detail %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate journal rows: %w", err)
	}
	return out, nil
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
