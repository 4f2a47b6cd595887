package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

const stockItemColumns = `
	id, name, grade, weight_gsm,
	total, reserved, consumed, reorder_threshold,
	status, version, created_at, updated_at
`

const jobMaterialColumns = `
	id, job_id, stock_item_id, quantity, status,
	created_by, created_at, settled_by, settled_at
`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateStockItem inserts an active item and records its opening quantity.
func (s *Store) CreateStockItem(ctx context.Context, item *repository.StockItem, actorID string) error {
	now := s.stamp()
	item.ID = uuid.NewString()
	item.Status = repository.StockActive
	item.Reserved = 0
	item.Consumed = 0
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_items
			    (id, name, grade, weight_gsm, total, reserved, consumed, reorder_threshold, status, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, 0, ?, 'active', 1, ?, ?)`,
			item.ID, item.Name, item.Grade, item.WeightGSM, item.Total, item.ReorderThreshold,
			toMillis(now), toMillis(now),
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create stock item")
		}
		if item.Total > 0 {
			return s.insertHistory(ctx, tx, &repository.StockHistory{
				StockItemID: item.ID,
				Type:        repository.HistoryIn,
				Delta:       item.Total,
				Note:        "opening stock",
				ActorID:     actorID,
			})
		}
		return nil
	})
}

// GetStockItem retrieves a stock item by id.
func (s *Store) GetStockItem(ctx context.Context, id string) (*repository.StockItem, error) {
	item, err := getStockItem(ctx, s.sqlDB, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.NotFound("stock_item", id)
	}
	return item, nil
}

// ListStockItems returns stock items by name.
func (s *Store) ListStockItems(ctx context.Context, includeRetired bool) ([]*repository.StockItem, error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items`
	if !includeRetired {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stock items")
	}
	defer rows.Close()

	var items []*repository.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stock item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RetireStockItem retires an active item that has nothing reserved.
func (s *Store) RetireStockItem(ctx context.Context, id string) (*repository.StockItem, error) {
	var out *repository.StockItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_items
			SET status = 'retired', version = version + 1, updated_at = ?
			WHERE id = ? AND status = 'active' AND reserved = 0`,
			toMillis(s.stamp()), id,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to retire stock item")
		}
		current, err := getStockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.RetireFailure(id, current)
		}
		out = current
		return nil
	})
	return out, err
}

// Reserve holds quantity against a job when enough is available.
func (s *Store) Reserve(ctx context.Context, p repository.ReserveParams) (*repository.JobMaterial, *repository.StockItem, error) {
	var (
		jm   *repository.JobMaterial
		item *repository.StockItem
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.stamp()
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_items
			SET reserved = reserved + ?, version = version + 1, updated_at = ?
			WHERE id = ? AND status = 'active' AND total - reserved - consumed >= ?`,
			p.Quantity, toMillis(now), p.StockItemID, p.Quantity,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to reserve stock")
		}
		item, err = getStockItem(ctx, tx, p.StockItemID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.StockUpdateFailure(p.StockItemID, item, p.Quantity)
		}

		jm = &repository.JobMaterial{
			ID:          uuid.NewString(),
			JobID:       p.JobID,
			StockItemID: p.StockItemID,
			Quantity:    p.Quantity,
			Status:      repository.MaterialReserved,
			CreatedBy:   p.ActorID,
			CreatedAt:   now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO job_materials (id, job_id, stock_item_id, quantity, status, created_by, created_at)
			VALUES (?, ?, ?, ?, 'reserved', ?, ?)`,
			jm.ID, jm.JobID, jm.StockItemID, jm.Quantity, jm.CreatedBy, toMillis(now),
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create job material")
		}

		return s.insertHistory(ctx, tx, &repository.StockHistory{
			StockItemID:   p.StockItemID,
			JobMaterialID: &jm.ID,
			Type:          repository.HistoryReserve,
			Delta:         p.Quantity,
			Note:          p.Note,
			ActorID:       p.ActorID,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return jm, item, nil
}

// SettleJobMaterial consumes or releases a reserved allocation.
func (s *Store) SettleJobMaterial(ctx context.Context, jobMaterialID, status, actorID string) (*repository.JobMaterial, *repository.StockItem, error) {
	if status != repository.MaterialConsumed && status != repository.MaterialReleased {
		return nil, nil, errors.InvalidInput("status", "must be consumed or released")
	}

	var (
		jm   *repository.JobMaterial
		item *repository.StockItem
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.stamp()
		res, err := tx.ExecContext(ctx, `
			UPDATE job_materials
			SET status = ?, settled_by = ?, settled_at = ?
			WHERE id = ? AND status = 'reserved'`,
			status, actorID, toMillis(now), jobMaterialID,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to settle job material")
		}
		jm, err = getJobMaterial(ctx, tx, jobMaterialID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.SettleFailure(jobMaterialID, jm, status)
		}

		consumed := int64(0)
		historyType := repository.HistoryRelease
		if status == repository.MaterialConsumed {
			consumed = jm.Quantity
			historyType = repository.HistoryConsume
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE stock_items
			SET reserved = reserved - ?, consumed = consumed + ?, version = version + 1, updated_at = ?
			WHERE id = ? AND reserved >= ?`,
			jm.Quantity, consumed, toMillis(now), jm.StockItemID, jm.Quantity,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update stock item")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.New(errors.ErrCodeInternal, "stock item reserved quantity is inconsistent")
		}
		if item, err = getStockItem(ctx, tx, jm.StockItemID); err != nil {
			return err
		}

		return s.insertHistory(ctx, tx, &repository.StockHistory{
			StockItemID:   jm.StockItemID,
			JobMaterialID: &jm.ID,
			Type:          historyType,
			Delta:         jm.Quantity,
			ActorID:       actorID,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return jm, item, nil
}

// AdjustStock applies a signed change to total that keeps available >= 0.
func (s *Store) AdjustStock(ctx context.Context, p repository.AdjustParams) (*repository.StockItem, *repository.StockHistory, error) {
	var (
		item *repository.StockItem
		h    *repository.StockHistory
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_items
			SET total = total + ?, version = version + 1, updated_at = ?
			WHERE id = ? AND status = 'active' AND total + ? - reserved - consumed >= 0`,
			p.Delta, toMillis(s.stamp()), p.StockItemID, p.Delta,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to adjust stock")
		}
		item, err = getStockItem(ctx, tx, p.StockItemID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.StockUpdateFailure(p.StockItemID, item, -p.Delta)
		}

		h = &repository.StockHistory{
			StockItemID: p.StockItemID,
			Type:        p.Type,
			Delta:       p.Delta,
			Note:        p.Note,
			ActorID:     p.ActorID,
		}
		return s.insertHistory(ctx, tx, h)
	})
	if err != nil {
		return nil, nil, err
	}
	return item, h, nil
}

// GetJobMaterial retrieves an allocation by id.
func (s *Store) GetJobMaterial(ctx context.Context, id string) (*repository.JobMaterial, error) {
	jm, err := getJobMaterial(ctx, s.sqlDB, id)
	if err != nil {
		return nil, err
	}
	if jm == nil {
		return nil, errors.NotFound("job_material", id)
	}
	return jm, nil
}

// ListJobMaterials returns a job's allocations, oldest first.
func (s *Store) ListJobMaterials(ctx context.Context, jobID string) ([]*repository.JobMaterial, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+jobMaterialColumns+` FROM job_materials WHERE job_id = ? ORDER BY created_at ASC, rowid ASC`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list job materials")
	}
	defer rows.Close()

	var out []*repository.JobMaterial
	for rows.Next() {
		jm, err := scanJobMaterial(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan job material")
		}
		out = append(out, jm)
	}
	return out, rows.Err()
}

// ListStockHistory returns a stock item's history, oldest first.
func (s *Store) ListStockHistory(ctx context.Context, stockItemID string) ([]*repository.StockHistory, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, stock_item_id, job_material_id, type, delta, note, actor_id, created_at
		FROM stock_history
		WHERE stock_item_id = ?
		ORDER BY created_at ASC, rowid ASC`, stockItemID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stock history")
	}
	defer rows.Close()

	var out []*repository.StockHistory
	for rows.Next() {
		var (
			h         repository.StockHistory
			jmID      sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&h.ID, &h.StockItemID, &jmID, &h.Type, &h.Delta, &h.Note, &h.ActorID, &createdAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stock history")
		}
		h.JobMaterialID = stringPtr(jmID)
		h.CreatedAt = fromMillis(createdAt)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ReservedAllocations sums the open reservations for a stock item.
func (s *Store) ReservedAllocations(ctx context.Context, stockItemID string) (int64, error) {
	var sum int64
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM job_materials
		WHERE stock_item_id = ? AND status = 'reserved'`, stockItemID).Scan(&sum)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to sum reservations")
	}
	return sum, nil
}

// SumHistory totals the history deltas of a stock item by type.
func (s *Store) SumHistory(ctx context.Context, stockItemID string) (repository.HistoryTotals, error) {
	var t repository.HistoryTotals
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT
		    COALESCE(SUM(CASE WHEN type = 'in' THEN delta END), 0),
		    COALESCE(SUM(CASE WHEN type = 'out' THEN delta END), 0),
		    COALESCE(SUM(CASE WHEN type = 'adjust' THEN delta END), 0),
		    COALESCE(SUM(CASE WHEN type = 'reserve' THEN delta END), 0),
		    COALESCE(SUM(CASE WHEN type = 'consume' THEN delta END), 0),
		    COALESCE(SUM(CASE WHEN type = 'release' THEN delta END), 0)
		FROM stock_history
		WHERE stock_item_id = ?`, stockItemID,
	).Scan(&t.In, &t.Out, &t.Adjust, &t.Reserve, &t.Consume, &t.Release)
	if err != nil {
		return repository.HistoryTotals{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to sum stock history")
	}
	return t, nil
}

func (s *Store) insertHistory(ctx context.Context, tx *sql.Tx, h *repository.StockHistory) error {
	h.ID = uuid.NewString()
	h.CreatedAt = s.stamp()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_history (id, stock_item_id, job_material_id, type, delta, note, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.StockItemID, nullString(h.JobMaterialID), h.Type, h.Delta, h.Note, h.ActorID, toMillis(h.CreatedAt),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record stock history")
	}
	return nil
}

// getStockItem returns nil, nil when the item does not exist.
func getStockItem(ctx context.Context, q queryer, id string) (*repository.StockItem, error) {
	item, err := scanStockItem(q.QueryRowContext(ctx, `SELECT `+stockItemColumns+` FROM stock_items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get stock item")
	}
	return item, nil
}

// getJobMaterial returns nil, nil when the allocation does not exist.
func getJobMaterial(ctx context.Context, q queryer, id string) (*repository.JobMaterial, error) {
	jm, err := scanJobMaterial(q.QueryRowContext(ctx, `SELECT `+jobMaterialColumns+` FROM job_materials WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get job material")
	}
	return jm, nil
}

func scanStockItem(row scanner) (*repository.StockItem, error) {
	var (
		item                 repository.StockItem
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&item.ID, &item.Name, &item.Grade, &item.WeightGSM,
		&item.Total, &item.Reserved, &item.Consumed, &item.ReorderThreshold,
		&item.Status, &item.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updatedAt)
	return &item, nil
}

func scanJobMaterial(row scanner) (*repository.JobMaterial, error) {
	var (
		jm        repository.JobMaterial
		settledBy sql.NullString
		settledAt sql.NullInt64
		createdAt int64
	)
	err := row.Scan(
		&jm.ID, &jm.JobID, &jm.StockItemID, &jm.Quantity, &jm.Status,
		&jm.CreatedBy, &createdAt, &settledBy, &settledAt,
	)
	if err != nil {
		return nil, err
	}
	jm.CreatedAt = fromMillis(createdAt)
	jm.SettledBy = stringPtr(settledBy)
	if settledAt.Valid {
		t := fromMillis(settledAt.Int64)
		jm.SettledAt = &t
	}
	return &jm, nil
}
