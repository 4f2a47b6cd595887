package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

const ledgerColumns = `
	id, customer_id, order_id, seq, amount, type, method, note, actor_id, created_at
`

// AppendEntries writes a batch for one customer. Amounts are summed in Go
// because SQLite has no exact decimal type.
func (s *Store) AppendEntries(ctx context.Context, entries []*repository.LedgerEntry, allowNegative bool) error {
	if len(entries) == 0 {
		return errors.InvalidInput("entries", "nothing to append")
	}
	customerID := entries[0].CustomerID

	return s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := listLedger(ctx, tx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE customer_id = ? ORDER BY seq ASC`, customerID)
		if err != nil {
			return err
		}
		balance := sumBalance(customerID, existing).Balance
		var lastSeq int64
		if n := len(existing); n > 0 {
			lastSeq = existing[n-1].Seq
		}

		if err := repository.SequenceEntries(customerID, balance, lastSeq, entries, allowNegative); err != nil {
			return err
		}

		now := s.stamp()
		for _, e := range entries {
			e.ID = uuid.NewString()
			e.CreatedAt = now
			_, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_entries
				    (id, customer_id, order_id, seq, amount, type, method, note, actor_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, e.CustomerID, nullString(e.OrderID), e.Seq, e.Amount.StringFixed(2),
				e.Type, e.Method, e.Note, e.ActorID, toMillis(now),
			)
			if isUniqueViolation(err) {
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
func (s *Store) CustomerBalance(ctx context.Context, customerID string) (*repository.CustomerBalance, error) {
	entries, err := s.ListCustomerEntries(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return sumBalance(customerID, entries), nil
}

// OrderPaid sums debits for many orders in one query.
func (s *Store) OrderPaid(ctx context.Context, orderIDs []string) (map[string]decimal.Decimal, error) {
	paid := make(map[string]decimal.Decimal, len(orderIDs))
	if len(orderIDs) == 0 {
		return paid, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}
	entries, err := listLedger(ctx, s.sqlDB, `SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE type = 'DEBIT' AND order_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.OrderID == nil {
			continue
		}
		paid[*e.OrderID] = paid[*e.OrderID].Add(e.Amount)
	}
	return paid, nil
}

// ListCustomerEntries returns a customer's ledger in sequence order.
func (s *Store) ListCustomerEntries(ctx context.Context, customerID string) ([]*repository.LedgerEntry, error) {
	return listLedger(ctx, s.sqlDB, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE customer_id = ? ORDER BY seq ASC`, customerID)
}

// ListOrderEntries returns the entries applied to an order, oldest first.
func (s *Store) ListOrderEntries(ctx context.Context, orderID string) ([]*repository.LedgerEntry, error) {
	return listLedger(ctx, s.sqlDB, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE order_id = ? ORDER BY created_at ASC, rowid ASC`, orderID)
}

type rowsQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listLedger(ctx context.Context, q rowsQueryer, query string, args ...any) ([]*repository.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list ledger entries")
	}
	defer rows.Close()

	var out []*repository.LedgerEntry
	for rows.Next() {
		var (
			e         repository.LedgerEntry
			orderID   sql.NullString
			amount    string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.CustomerID, &orderID, &e.Seq, &amount,
			&e.Type, &e.Method, &e.Note, &e.ActorID, &createdAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan ledger entry")
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to parse ledger amount")
		}
		e.OrderID = stringPtr(orderID)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func sumBalance(customerID string, entries []*repository.LedgerEntry) *repository.CustomerBalance {
	b := &repository.CustomerBalance{CustomerID: customerID}
	for _, e := range entries {
		switch e.Type {
		case repository.EntryCredit:
			b.Credits = b.Credits.Add(e.Amount)
		case repository.EntryDebit:
			b.Debits = b.Debits.Add(e.Amount)
		}
	}
	b.Balance = b.Credits.Sub(b.Debits)
	return b
}
