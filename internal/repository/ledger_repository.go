package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/database"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
)

// LedgerRepository appends and aggregates payment ledger entries.
// Amounts travel as text to keep NUMERIC precision.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const ledgerColumns = `
	id, customer_id, order_id, seq, amount::text,
	type, method, note, actor_id, created_at
`

// AppendEntries writes a batch for one customer. Two writers racing for the
// same customer compute the same next seq; the loser hits the unique
// (customer_id, seq) constraint and gets a CONFLICT.
func (r *LedgerRepository) AppendEntries(ctx context.Context, entries []*LedgerEntry, allowNegative bool) error {
	if len(entries) == 0 {
		return errors.InvalidInput("entries", "nothing to append")
	}
	customerID := entries[0].CustomerID

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var (
			balanceText string
			lastSeq     int64
		)
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(CASE WHEN type = 'CREDIT' THEN amount ELSE -amount END), 0)::text,
			       COALESCE(MAX(seq), 0)
			FROM ledger_entries
			WHERE customer_id = $1
		`, customerID).Scan(&balanceText, &lastSeq)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to read customer balance")
		}
		balance, err := decimal.NewFromString(balanceText)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to parse customer balance")
		}

		if err := SequenceEntries(customerID, balance, lastSeq, entries, allowNegative); err != nil {
			return err
		}

		query := `
			INSERT INTO ledger_entries
			    (customer_id, order_id, seq, amount, type, method, note, actor_id)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
			RETURNING id, created_at
		`
		for _, e := range entries {
			err := tx.QueryRow(ctx, query,
				e.CustomerID,
				e.OrderID,
				e.Seq,
				e.Amount.StringFixed(2),
				e.Type,
				e.Method,
				e.Note,
				e.ActorID,
			).Scan(&e.ID, &e.CreatedAt)
			if database.IsUniqueViolation(err) {
				return errors.Conflict("customer_ledger", customerID)
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to append ledger entry")
			}
		}
		return nil
	})
}

// CustomerBalance sums a customer's credits and debits.
func (r *LedgerRepository) CustomerBalance(ctx context.Context, customerID string) (*CustomerBalance, error) {
	var credits, debits string
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE type = 'CREDIT'), 0)::text,
		       COALESCE(SUM(amount) FILTER (WHERE type = 'DEBIT'), 0)::text
		FROM ledger_entries
		WHERE customer_id = $1
	`, customerID).Scan(&credits, &debits)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get customer balance")
	}

	b := &CustomerBalance{CustomerID: customerID}
	if b.Credits, err = decimal.NewFromString(credits); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to parse credits")
	}
	if b.Debits, err = decimal.NewFromString(debits); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to parse debits")
	}
	b.Balance = b.Credits.Sub(b.Debits)
	return b, nil
}

// OrderPaid sums debits for many orders in one query.
func (r *LedgerRepository) OrderPaid(ctx context.Context, orderIDs []string) (map[string]decimal.Decimal, error) {
	paid := make(map[string]decimal.Decimal, len(orderIDs))
	if len(orderIDs) == 0 {
		return paid, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT order_id, SUM(amount)::text
		FROM ledger_entries
		WHERE type = 'DEBIT' AND order_id = ANY($1)
		GROUP BY order_id
	`, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get order payments")
	}
	defer rows.Close()

	for rows.Next() {
		var orderID, sum string
		if err := rows.Scan(&orderID, &sum); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan order payment")
		}
		amount, err := decimal.NewFromString(sum)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to parse order payment")
		}
		paid[orderID] = amount
	}
	return paid, rows.Err()
}

// ListCustomerEntries returns a customer's ledger in sequence order.
func (r *LedgerRepository) ListCustomerEntries(ctx context.Context, customerID string) ([]*LedgerEntry, error) {
	return r.list(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE customer_id = $1 ORDER BY seq ASC`, customerID)
}

// ListOrderEntries returns the entries applied to an order, oldest first.
func (r *LedgerRepository) ListOrderEntries(ctx context.Context, orderID string) ([]*LedgerEntry, error) {
	return r.list(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE order_id = $1 ORDER BY created_at ASC, seq ASC`, orderID)
}

func (r *LedgerRepository) list(ctx context.Context, query string, arg string) ([]*LedgerEntry, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list ledger entries")
	}
	defer rows.Close()

	var out []*LedgerEntry
	for rows.Next() {
		var (
			e      LedgerEntry
			amount string
		)
		if err := rows.Scan(
			&e.ID, &e.CustomerID, &e.OrderID, &e.Seq, &amount,
			&e.Type, &e.Method, &e.Note, &e.ActorID, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan ledger entry")
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to parse ledger amount")
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
