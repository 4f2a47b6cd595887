package repository

import (
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
)

// These helpers keep the Postgres and SQLite stores in step on the parts of
// a mutation that are decided in Go rather than in SQL.

// StockUpdateFailure explains why a conditional stock update matched no row.
// item is the row re-read inside the same transaction, nil if it is missing.
func StockUpdateFailure(id string, item *StockItem, requested int64) error {
	if item == nil {
		return errors.NotFound("stock_item", id)
	}
	if item.Status != StockActive {
		return errors.InvalidInput("stock_item_id", "stock item is retired")
	}
	return errors.InsufficientStock(id, requested, item.Available())
}

// RetireFailure explains why a retire matched no row.
func RetireFailure(id string, item *StockItem) error {
	if item == nil {
		return errors.NotFound("stock_item", id)
	}
	if item.Status != StockActive {
		return errors.InvalidInput("stock_item_id", "stock item is already retired")
	}
	return errors.InvalidInput("stock_item_id", "stock item has active reservations")
}

// SettleFailure explains why a reserved allocation could not be settled.
func SettleFailure(id string, jm *JobMaterial, status string) error {
	if jm == nil {
		return errors.NotFound("job_material", id)
	}
	return errors.InvalidAction(settleAction(status), "job_material", jm.Status)
}

func settleAction(status string) string {
	if status == MaterialConsumed {
		return "consume"
	}
	return "release"
}

// SequenceEntries validates a batch of ledger entries against the customer's
// current balance and assigns sequence numbers after lastSeq.
func SequenceEntries(customerID string, balance decimal.Decimal, lastSeq int64, entries []*LedgerEntry, allowNegative bool) error {
	if len(entries) == 0 {
		return errors.InvalidInput("entries", "nothing to append")
	}
	for _, e := range entries {
		if e.CustomerID != customerID {
			return errors.InvalidInput("customer_id", "entries must belong to one customer")
		}
		if !e.Amount.IsPositive() {
			return errors.InvalidInput("amount", "must be positive")
		}
		switch e.Type {
		case EntryCredit:
			balance = balance.Add(e.Amount)
		case EntryDebit:
			if !allowNegative && balance.LessThan(e.Amount) {
				return errors.InsufficientBalance(customerID, balance.StringFixed(2), e.Amount.StringFixed(2))
			}
			balance = balance.Sub(e.Amount)
		default:
			return errors.InvalidInput("type", "must be CREDIT or DEBIT")
		}
		lastSeq++
		e.Seq = lastSeq
	}
	return nil
}
