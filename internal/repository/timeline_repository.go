package repository

import (
	"context"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/database"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
)

// TimelineRepository appends and reads immutable order timeline entries.
type TimelineRepository struct {
	db *database.DB
}

// NewTimelineRepository creates a new TimelineRepository.
func NewTimelineRepository(db *database.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// AppendTimeline inserts one entry. The table has an update/delete-prevention
// trigger so this is the only mutation operation exposed.
func (r *TimelineRepository) AppendTimeline(ctx context.Context, entry *TimelineEntry) error {
	query := `
		INSERT INTO order_timeline
		    (order_id, item_id, stage, action,
		     actor_id, actor_name, note)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.OrderID,
		entry.ItemID,
		entry.Stage,
		entry.Action,
		entry.ActorID,
		entry.ActorName,
		entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append timeline entry")
	}
	return nil
}

// ListTimeline returns an order's timeline, newest first.
func (r *TimelineRepository) ListTimeline(ctx context.Context, orderID string, limit int) ([]*TimelineEntry, error) {
	query := `
		SELECT id, order_id, item_id, stage, action,
		       actor_id, actor_name, note, created_at
		FROM order_timeline
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{orderID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get timeline")
	}
	defer rows.Close()

	var entries []*TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.ItemID, &e.Stage, &e.Action,
			&e.ActorID, &e.ActorName, &e.Note, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan timeline entry")
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
