package repository

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderItemStore persists order items. UpdateItemState is the only state
// write and is conditioned on the version the caller read.
type OrderItemStore interface {
	CreateItem(ctx context.Context, item *OrderItem) error
	GetItem(ctx context.Context, id string) (*OrderItem, error)
	ListItemsByOrder(ctx context.Context, orderID string) ([]*OrderItem, error)
	// UpdateItemState writes department, status, assignee and the hold
	// snapshot when the stored version equals expectedVersion. On success
	// item.Version and item.UpdatedAt are refreshed. A stale version yields a
	// CONFLICT error.
	UpdateItemState(ctx context.Context, item *OrderItem, expectedVersion int64) error
}

// TimelineStore appends and reads the order timeline.
type TimelineStore interface {
	AppendTimeline(ctx context.Context, entry *TimelineEntry) error
	// ListTimeline returns newest entries first. limit <= 0 means all.
	ListTimeline(ctx context.Context, orderID string, limit int) ([]*TimelineEntry, error)
}

// InventoryStore owns stock items, reservations and stock history. Each
// mutating call is one transaction whose stock item write is a single
// conditional update.
type InventoryStore interface {
	CreateStockItem(ctx context.Context, item *StockItem, actorID string) error
	GetStockItem(ctx context.Context, id string) (*StockItem, error)
	ListStockItems(ctx context.Context, includeRetired bool) ([]*StockItem, error)
	RetireStockItem(ctx context.Context, id string) (*StockItem, error)

	Reserve(ctx context.Context, p ReserveParams) (*JobMaterial, *StockItem, error)
	// SettleJobMaterial moves a reserved allocation to consumed or released.
	SettleJobMaterial(ctx context.Context, jobMaterialID, status, actorID string) (*JobMaterial, *StockItem, error)
	AdjustStock(ctx context.Context, p AdjustParams) (*StockItem, *StockHistory, error)

	GetJobMaterial(ctx context.Context, id string) (*JobMaterial, error)
	ListJobMaterials(ctx context.Context, jobID string) ([]*JobMaterial, error)
	ListStockHistory(ctx context.Context, stockItemID string) ([]*StockHistory, error)
	ReservedAllocations(ctx context.Context, stockItemID string) (int64, error)
	SumHistory(ctx context.Context, stockItemID string) (HistoryTotals, error)
}

// LedgerStore appends payment entries and aggregates them.
type LedgerStore interface {
	// AppendEntries writes entries for one customer in one transaction,
	// assigning consecutive sequence numbers. Unless allowNegative is set a
	// debit that would take the running balance below zero fails with
	// INSUFFICIENT_BALANCE and nothing is written.
	AppendEntries(ctx context.Context, entries []*LedgerEntry, allowNegative bool) error
	CustomerBalance(ctx context.Context, customerID string) (*CustomerBalance, error)
	// OrderPaid returns Σ debits per order. Orders without debits are absent.
	OrderPaid(ctx context.Context, orderIDs []string) (map[string]decimal.Decimal, error)
	ListCustomerEntries(ctx context.Context, customerID string) ([]*LedgerEntry, error)
	ListOrderEntries(ctx context.Context, orderID string) ([]*LedgerEntry, error)
}

var (
	_ OrderItemStore = (*OrderItemRepository)(nil)
	_ TimelineStore  = (*TimelineRepository)(nil)
	_ InventoryStore = (*StockRepository)(nil)
	_ LedgerStore    = (*LedgerRepository)(nil)
)
