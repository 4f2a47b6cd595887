package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/database"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
)

// OrderItemRepository stores order items in Postgres.
// State writes are conditioned on the row version.
type OrderItemRepository struct {
	db *database.DB
}

// NewOrderItemRepository creates a new OrderItemRepository.
func NewOrderItemRepository(db *database.DB) *OrderItemRepository {
	return &OrderItemRepository{db: db}
}

const orderItemColumns = `
	id, order_id, product_name, department, status,
	assigned_to, previous_department, previous_assigned_to,
	version, created_at, updated_at
`

// CreateItem inserts a new item at version 1.
func (r *OrderItemRepository) CreateItem(ctx context.Context, item *OrderItem) error {
	query := `
		INSERT INTO order_items
		    (order_id, product_name, department, status, assigned_to)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		item.OrderID,
		item.ProductName,
		item.Department,
		item.Status,
		item.AssignedTo,
	).Scan(&item.ID, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create order item")
	}
	return nil
}

// GetItem retrieves an item by its primary key.
func (r *OrderItemRepository) GetItem(ctx context.Context, id string) (*OrderItem, error) {
	query := `SELECT ` + orderItemColumns + ` FROM order_items WHERE id = $1`

	item, err := scanOrderItem(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("order_item", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get order item")
	}
	return item, nil
}

// ListItemsByOrder returns an order's items, oldest first.
func (r *OrderItemRepository) ListItemsByOrder(ctx context.Context, orderID string) ([]*OrderItem, error) {
	query := `SELECT ` + orderItemColumns + `
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list order items")
	}
	defer rows.Close()

	var items []*OrderItem
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan order item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemState writes the new state if nobody else has since the caller's read.
func (r *OrderItemRepository) UpdateItemState(ctx context.Context, item *OrderItem, expectedVersion int64) error {
	query := `
		UPDATE order_items
		SET department           = $3,
		    status               = $4,
		    assigned_to          = $5,
		    previous_department  = $6,
		    previous_assigned_to = $7,
		    version              = version + 1,
		    updated_at           = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		item.ID,
		expectedVersion,
		item.Department,
		item.Status,
		item.AssignedTo,
		item.PreviousDepartment,
		item.PreviousAssignedTo,
	).Scan(&item.Version, &item.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.Conflict("order_item", item.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update order item")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrderItem(row scanner) (*OrderItem, error) {
	var item OrderItem
	err := row.Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductName,
		&item.Department,
		&item.Status,
		&item.AssignedTo,
		&item.PreviousDepartment,
		&item.PreviousAssignedTo,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
