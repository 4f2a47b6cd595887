package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

// AppendTimeline inserts one timeline entry.
func (s *Store) AppendTimeline(ctx context.Context, entry *repository.TimelineEntry) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = s.stamp()

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO order_timeline
		    (id, order_id, item_id, stage, action, actor_id, actor_name, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrderID, nullString(entry.ItemID), entry.Stage, entry.Action,
		entry.ActorID, entry.ActorName, entry.Note, toMillis(entry.CreatedAt),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append timeline entry")
	}
	return nil
}

// ListTimeline returns an order's timeline, newest first.
func (s *Store) ListTimeline(ctx context.Context, orderID string, limit int) ([]*repository.TimelineEntry, error) {
	query := `
		SELECT id, order_id, item_id, stage, action, actor_id, actor_name, note, created_at
		FROM order_timeline
		WHERE order_id = ?
		ORDER BY created_at DESC, rowid DESC`
	args := []any{orderID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get timeline")
	}
	defer rows.Close()

	var entries []*repository.TimelineEntry
	for rows.Next() {
		var (
			e         repository.TimelineEntry
			itemID    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &itemID, &e.Stage, &e.Action,
			&e.ActorID, &e.ActorName, &e.Note, &createdAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan timeline entry")
		}
		e.ItemID = stringPtr(itemID)
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
