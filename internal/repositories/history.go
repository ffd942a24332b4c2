package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/shared"
)

// DefaultHistoryLimit caps List when no limit is given.
const DefaultHistoryLimit = 50

// HistoryRepository records presences the sink confirmed.
type HistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistoryRepository creates a new [HistoryRepository] with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db, now: time.Now}
}

// Record stores a confirmed presence with a generated ID and sequence.
func (r *HistoryRepository) Record(ctx context.Context, connID string, p *models.PresenceSnapshot) error {
	if p == nil {
		return fmt.Errorf("%w: nil presence", shared.ErrInvalidInput)
	}

	sequence, err := NextSequence(r.db, "presence_history")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	entry := models.NewHistoryEntry(connID, p, r.now().UTC())
	entry.ID = shared.GenerateID()
	entry.Sequence = sequence

	query := `
		INSERT INTO presence_history (
			id, sequence, connection_id, title, subtitle, started_at, ends_at,
			large_image, small_image, url, confirmed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var endsAt sql.NullInt64
	if entry.EndsAt != nil {
		endsAt = sql.NullInt64{Int64: *entry.EndsAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.Sequence, entry.ConnectionID, entry.Title, entry.Subtitle, entry.StartedAt, endsAt,
		entry.LargeImage, entry.SmallImage, entry.URL, entry.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert presence history: %w", err)
	}

	return nil
}

// List returns up to limit entries, newest first.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT id, sequence, connection_id, title, subtitle, started_at, ends_at,
			large_image, small_image, url, confirmed_at
		FROM presence_history
		ORDER BY sequence DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query presence history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var (
			entry      models.HistoryEntry
			endsAt     sql.NullInt64
			largeImage sql.NullString
			smallImage sql.NullString
			url        sql.NullString
		)
		if err := rows.Scan(
			&entry.ID, &entry.Sequence, &entry.ConnectionID, &entry.Title, &entry.Subtitle, &entry.StartedAt,
			&endsAt, &largeImage, &smallImage, &url, &entry.ConfirmedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan presence history: %w", err)
		}
		if endsAt.Valid {
			v := endsAt.Int64
			entry.EndsAt = &v
		}
		entry.LargeImage = largeImage.String
		entry.SmallImage = smallImage.String
		entry.URL = url.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating presence history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries confirmed before cutoff and returns how many were removed.
func (r *HistoryRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM presence_history WHERE confirmed_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune presence history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}
