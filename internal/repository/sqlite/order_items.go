package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

const orderItemColumns = `
	id, order_id, product_name, department, status,
	assigned_to, previous_department, previous_assigned_to,
	version, created_at, updated_at
`

// CreateItem inserts a new item at version 1.
func (s *Store) CreateItem(ctx context.Context, item *repository.OrderItem) error {
	now := s.stamp()
	item.ID = uuid.NewString()
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO order_items
		    (id, order_id, product_name, department, status, assigned_to, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		item.ID, item.OrderID, item.ProductName, item.Department, item.Status,
		nullString(item.AssignedTo), toMillis(now), toMillis(now),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create order item")
	}
	return nil
}

// GetItem retrieves an item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*repository.OrderItem, error) {
	item, err := scanOrderItem(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("order_item", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get order item")
	}
	return item, nil
}

// ListItemsByOrder returns an order's items, oldest first.
func (s *Store) ListItemsByOrder(ctx context.Context, orderID string) ([]*repository.OrderItem, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = ? ORDER BY created_at ASC, rowid ASC`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list order items")
	}
	defer rows.Close()

	var items []*repository.OrderItem
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan order item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemState writes the new state when the version still matches.
func (s *Store) UpdateItemState(ctx context.Context, item *repository.OrderItem, expectedVersion int64) error {
	now := s.stamp()
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE order_items
		SET department = ?, status = ?, assigned_to = ?,
		    previous_department = ?, previous_assigned_to = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		item.Department, item.Status, nullString(item.AssignedTo),
		nullString(item.PreviousDepartment), nullString(item.PreviousAssignedTo),
		toMillis(now), item.ID, expectedVersion,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update order item")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update order item")
	}
	if n == 0 {
		return errors.Conflict("order_item", item.ID)
	}
	item.Version = expectedVersion + 1
	item.UpdatedAt = now
	return nil
}

func scanOrderItem(row scanner) (*repository.OrderItem, error) {
	var (
		item                         repository.OrderItem
		assigned, prevDept, prevUser sql.NullString
		createdAt, updatedAt         int64
	)
	err := row.Scan(
		&item.ID, &item.OrderID, &item.ProductName, &item.Department, &item.Status,
		&assigned, &prevDept, &prevUser,
		&item.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.AssignedTo = stringPtr(assigned)
	item.PreviousDepartment = stringPtr(prevDept)
	item.PreviousAssignedTo = stringPtr(prevUser)
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)
	return &item, nil
}
