package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/database"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
)

// StockRepository manages stock items, job materials and stock history.
// Every quantity change is a single conditional UPDATE on stock_items plus
// its history row, in one transaction.
type StockRepository struct {
	db *database.DB
}

// NewStockRepository creates a new StockRepository.
func NewStockRepository(db *database.DB) *StockRepository {
	return &StockRepository{db: db}
}

const stockItemColumns = `
	id, name, grade, weight_gsm,
	total, reserved, consumed, reorder_threshold,
	status, version, created_at, updated_at
`

const jobMaterialColumns = `
	id, job_id, stock_item_id, quantity, status,
	created_by, created_at, settled_by, settled_at
`

// ── Stock items ───────────────────────────────────────────────────────────────

// CreateStockItem inserts an active item and records its opening quantity.
func (r *StockRepository) CreateStockItem(ctx context.Context, item *StockItem, actorID string) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO stock_items
			    (name, grade, weight_gsm, total, reorder_threshold, status)
			VALUES ($1, $2, $3, $4, $5, 'active')
			RETURNING ` + stockItemColumns

		created, err := scanStockItem(tx.QueryRow(ctx, query,
			item.Name,
			item.Grade,
			item.WeightGSM,
			item.Total,
			item.ReorderThreshold,
		))
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create stock item")
		}
		*item = *created

		if item.Total > 0 {
			h := &StockHistory{StockItemID: item.ID, Type: HistoryIn, Delta: item.Total, Note: "opening stock", ActorID: actorID}
			if err := insertStockHistory(ctx, tx, h); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetStockItem retrieves a stock item by id.
func (r *StockRepository) GetStockItem(ctx context.Context, id string) (*StockItem, error) {
	item, err := scanStockItem(r.db.QueryRow(ctx, `SELECT `+stockItemColumns+` FROM stock_items WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("stock_item", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get stock item")
	}
	return item, nil
}

// ListStockItems returns stock items by name.
func (r *StockRepository) ListStockItems(ctx context.Context, includeRetired bool) ([]*StockItem, error) {
	query := `SELECT ` + stockItemColumns + ` FROM stock_items`
	if !includeRetired {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stock items")
	}
	defer rows.Close()

	var items []*StockItem
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
func (r *StockRepository) RetireStockItem(ctx context.Context, id string) (*StockItem, error) {
	var out *StockItem
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE stock_items
			SET status = 'retired', version = version + 1, updated_at = NOW()
			WHERE id = $1 AND status = 'active' AND reserved = 0
			RETURNING ` + stockItemColumns

		item, err := scanStockItem(tx.QueryRow(ctx, query, id))
		if err == pgx.ErrNoRows {
			current, err := lockStockItem(ctx, tx, id)
			if err != nil {
				return err
			}
			return RetireFailure(id, current)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to retire stock item")
		}
		out = item
		return nil
	})
	return out, err
}

// ── Quantity changes ──────────────────────────────────────────────────────────

// Reserve holds quantity against a job when enough is available.
func (r *StockRepository) Reserve(ctx context.Context, p ReserveParams) (*JobMaterial, *StockItem, error) {
	var (
		jm   *JobMaterial
		item *StockItem
	)
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE stock_items
			SET reserved = reserved + $2, version = version + 1, updated_at = NOW()
			WHERE id = $1
			  AND status = 'active'
			  AND total - reserved - consumed >= $2
			RETURNING ` + stockItemColumns

		var err error
		item, err = scanStockItem(tx.QueryRow(ctx, query, p.StockItemID, p.Quantity))
		if err == pgx.ErrNoRows {
			current, err := lockStockItem(ctx, tx, p.StockItemID)
			if err != nil {
				return err
			}
			return StockUpdateFailure(p.StockItemID, current, p.Quantity)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to reserve stock")
		}

		jm, err = scanJobMaterial(tx.QueryRow(ctx, `
			INSERT INTO job_materials (job_id, stock_item_id, quantity, status, created_by)
			VALUES ($1, $2, $3, 'reserved', $4)
			RETURNING `+jobMaterialColumns,
			p.JobID, p.StockItemID, p.Quantity, p.ActorID,
		))
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create job material")
		}

		return insertStockHistory(ctx, tx, &StockHistory{
			StockItemID:   p.StockItemID,
			JobMaterialID: &jm.ID,
			Type:          HistoryReserve,
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
func (r *StockRepository) SettleJobMaterial(ctx context.Context, jobMaterialID, status, actorID string) (*JobMaterial, *StockItem, error) {
	if status != MaterialConsumed && status != MaterialReleased {
		return nil, nil, errors.InvalidInput("status", "must be consumed or released")
	}

	var (
		jm   *JobMaterial
		item *StockItem
	)
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		jm, err = scanJobMaterial(tx.QueryRow(ctx, `
			UPDATE job_materials
			SET status = $2, settled_by = $3, settled_at = NOW()
			WHERE id = $1 AND status = 'reserved'
			RETURNING `+jobMaterialColumns,
			jobMaterialID, status, actorID,
		))
		if err == pgx.ErrNoRows {
			current, err := scanJobMaterial(tx.QueryRow(ctx,
				`SELECT `+jobMaterialColumns+` FROM job_materials WHERE id = $1`, jobMaterialID))
			if err == pgx.ErrNoRows {
				return SettleFailure(jobMaterialID, nil, status)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to get job material")
			}
			return SettleFailure(jobMaterialID, current, status)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to settle job material")
		}

		consumed := int64(0)
		historyType := HistoryRelease
		if status == MaterialConsumed {
			consumed = jm.Quantity
			historyType = HistoryConsume
		}

		item, err = scanStockItem(tx.QueryRow(ctx, `
			UPDATE stock_items
			SET reserved = reserved - $2,
			    consumed = consumed + $3,
			    version = version + 1,
			    updated_at = NOW()
			WHERE id = $1 AND reserved >= $2
			RETURNING `+stockItemColumns,
			jm.StockItemID, jm.Quantity, consumed,
		))
		if err == pgx.ErrNoRows {
			// reserved drifted below an open allocation; refuse rather than go negative
			return errors.New(errors.ErrCodeInternal, "stock item reserved quantity is inconsistent")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update stock item")
		}

		return insertStockHistory(ctx, tx, &StockHistory{
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
func (r *StockRepository) AdjustStock(ctx context.Context, p AdjustParams) (*StockItem, *StockHistory, error) {
	var (
		item *StockItem
		h    *StockHistory
	)
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE stock_items
			SET total = total + $2, version = version + 1, updated_at = NOW()
			WHERE id = $1
			  AND status = 'active'
			  AND total + $2 - reserved - consumed >= 0
			RETURNING ` + stockItemColumns

		var err error
		item, err = scanStockItem(tx.QueryRow(ctx, query, p.StockItemID, p.Delta))
		if err == pgx.ErrNoRows {
			current, err := lockStockItem(ctx, tx, p.StockItemID)
			if err != nil {
				return err
			}
			return StockUpdateFailure(p.StockItemID, current, -p.Delta)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to adjust stock")
		}

		h = &StockHistory{
			StockItemID: p.StockItemID,
			Type:        p.Type,
			Delta:       p.Delta,
			Note:        p.Note,
			ActorID:     p.ActorID,
		}
		return insertStockHistory(ctx, tx, h)
	})
	if err != nil {
		return nil, nil, err
	}
	return item, h, nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// GetJobMaterial retrieves an allocation by id.
func (r *StockRepository) GetJobMaterial(ctx context.Context, id string) (*JobMaterial, error) {
	jm, err := scanJobMaterial(r.db.QueryRow(ctx, `SELECT `+jobMaterialColumns+` FROM job_materials WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("job_material", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get job material")
	}
	return jm, nil
}

// ListJobMaterials returns a job's allocations, oldest first.
func (r *StockRepository) ListJobMaterials(ctx context.Context, jobID string) ([]*JobMaterial, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobMaterialColumns+`
		FROM job_materials
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
	`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list job materials")
	}
	defer rows.Close()

	var out []*JobMaterial
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
func (r *StockRepository) ListStockHistory(ctx context.Context, stockItemID string) ([]*StockHistory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, stock_item_id, job_material_id, type, delta, note, actor_id, created_at
		FROM stock_history
		WHERE stock_item_id = $1
		ORDER BY created_at ASC, id ASC
	`, stockItemID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stock history")
	}
	defer rows.Close()

	var out []*StockHistory
	for rows.Next() {
		var h StockHistory
		if err := rows.Scan(&h.ID, &h.StockItemID, &h.JobMaterialID, &h.Type, &h.Delta, &h.Note, &h.ActorID, &h.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stock history")
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ReservedAllocations sums the open reservations for a stock item.
func (r *StockRepository) ReservedAllocations(ctx context.Context, stockItemID string) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)::bigint
		FROM job_materials
		WHERE stock_item_id = $1 AND status = 'reserved'
	`, stockItemID).Scan(&sum)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to sum reservations")
	}
	return sum, nil
}

// SumHistory totals the history deltas of a stock item by type.
func (r *StockRepository) SumHistory(ctx context.Context, stockItemID string) (HistoryTotals, error) {
	rows, err := r.db.Query(ctx, `
		SELECT type, COALESCE(SUM(delta), 0)::bigint
		FROM stock_history
		WHERE stock_item_id = $1
		GROUP BY type
	`, stockItemID)
	if err != nil {
		return HistoryTotals{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to sum stock history")
	}
	defer rows.Close()

	var totals HistoryTotals
	for rows.Next() {
		var (
			kind string
			sum  int64
		)
		if err := rows.Scan(&kind, &sum); err != nil {
			return HistoryTotals{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stock history sum")
		}
		totals.add(kind, sum)
	}
	return totals, rows.Err()
}

func (t *HistoryTotals) add(kind string, sum int64) {
	switch kind {
	case HistoryIn:
		t.In += sum
	case HistoryOut:
		t.Out += sum
	case HistoryAdjust:
		t.Adjust += sum
	case HistoryReserve:
		t.Reserve += sum
	case HistoryConsume:
		t.Consume += sum
	case HistoryRelease:
		t.Release += sum
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func lockStockItem(ctx context.Context, tx pgx.Tx, id string) (*StockItem, error) {
	item, err := scanStockItem(tx.QueryRow(ctx, `SELECT `+stockItemColumns+` FROM stock_items WHERE id = $1 FOR UPDATE`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get stock item")
	}
	return item, nil
}

func insertStockHistory(ctx context.Context, tx pgx.Tx, h *StockHistory) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_history (stock_item_id, job_material_id, type, delta, note, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, h.StockItemID, h.JobMaterialID, h.Type, h.Delta, h.Note, h.ActorID).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record stock history")
	}
	return nil
}

func scanStockItem(row scanner) (*StockItem, error) {
	var s StockItem
	err := row.Scan(
		&s.ID, &s.Name, &s.Grade, &s.WeightGSM,
		&s.Total, &s.Reserved, &s.Consumed, &s.ReorderThreshold,
		&s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanJobMaterial(row scanner) (*JobMaterial, error) {
	var jm JobMaterial
	err := row.Scan(
		&jm.ID, &jm.JobID, &jm.StockItemID, &jm.Quantity, &jm.Status,
		&jm.CreatedBy, &jm.CreatedAt, &jm.SettledBy, &jm.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return &jm, nil
}
