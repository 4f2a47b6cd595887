package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Workflow ──────────────────────────────────────────────────────────────────

// OrderItem is one line of an order moving through the departments.
type OrderItem struct {
	ID                 string    `json:"id"`
	OrderID            string    `json:"order_id"`
	ProductName        string    `json:"product_name"`
	Department         string    `json:"department"`
	Status             string    `json:"status"`
	AssignedTo         *string   `json:"assigned_to,omitempty"`
	PreviousDepartment *string   `json:"previous_department,omitempty"`  // set while the item is held for sales / client approval
	PreviousAssignedTo *string   `json:"previous_assigned_to,omitempty"`
	Version            int64     `json:"version"`                        // bumped on every state write
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Timeline action kinds.
const (
	TimelineItemCreated      = "item_created"
	TimelineStatusChanged    = "status_changed"
	TimelineAssigned         = "assigned"
	TimelineNoteAdded        = "note_added"
	TimelineMaterialReserved = "material_reserved"
	TimelineMaterialConsumed = "material_consumed"
	TimelineMaterialReleased = "material_released"
	TimelinePaymentApplied   = "payment_applied"
)

// TimelineEntry is an immutable audit record against an order.
type TimelineEntry struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	ItemID    *string   `json:"item_id,omitempty"`
	Stage     string    `json:"stage"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Inventory ─────────────────────────────────────────────────────────────────

// Stock item statuses.
const (
	StockActive  = "active"
	StockRetired = "retired"
)

// StockItem is a countable material such as a paper stock.
type StockItem struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Grade            string    `json:"grade"`
	WeightGSM        int       `json:"weight_gsm"`
	Total            int64     `json:"total"`
	Reserved         int64     `json:"reserved"`
	Consumed         int64     `json:"consumed"`
	ReorderThreshold int64     `json:"reorder_threshold"`
	Status           string    `json:"status"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available is what can still be reserved.
func (s *StockItem) Available() int64 {
	return s.Total - s.Reserved - s.Consumed
}

// Job material statuses. reserved moves to consumed or released, never back.
const (
	MaterialReserved = "reserved"
	MaterialConsumed = "consumed"
	MaterialReleased = "released"
)

// JobMaterial is stock held against a job.
type JobMaterial struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`               // the order the material is printed for
	StockItemID string     `json:"stock_item_id"`
	Quantity    int64      `json:"quantity"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	SettledBy   *string    `json:"settled_by,omitempty"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
}

// Stock history types.
const (
	HistoryIn      = "in"
	HistoryOut     = "out"
	HistoryAdjust  = "adjust"
	HistoryReserve = "reserve"
	HistoryConsume = "consume"
	HistoryRelease = "release"
)

// StockHistory records one quantity change. Delta is signed for in, out and
// adjust (the change to total) and the moved quantity for the others.
type StockHistory struct {
	ID            string    `json:"id"`
	StockItemID   string    `json:"stock_item_id"`
	JobMaterialID *string   `json:"job_material_id,omitempty"`
	Type          string    `json:"type"`
	Delta         int64     `json:"delta"`
	Note          string    `json:"note"`
	ActorID       string    `json:"actor_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryTotals sums stock history deltas by type.
type HistoryTotals struct {
	In      int64
	Out     int64
	Adjust  int64
	Reserve int64
	Consume int64
	Release int64
}

// ReserveParams describes a reservation.
type ReserveParams struct {
	JobID       string
	StockItemID string
	Quantity    int64
	ActorID     string
	Note        string
}

// AdjustParams describes a change to a stock item's total.
type AdjustParams struct {
	StockItemID string
	Type        string // in | out | adjust
	Delta       int64  // signed change to total
	ActorID     string
	Note        string
}

// ── Payments ──────────────────────────────────────────────────────────────────

// Ledger entry types.
const (
	EntryCredit = "CREDIT"
	EntryDebit  = "DEBIT"
)

// LedgerEntry is an append-only payment record. Credits are money received,
// debits are balance applied to an order.
type LedgerEntry struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	OrderID    *string         `json:"order_id,omitempty"`
	Seq        int64           `json:"seq"`                // per customer, unique
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	Method     string          `json:"method"`
	Note       string          `json:"note"`
	ActorID    string          `json:"actor_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CustomerBalance aggregates a customer's ledger.
type CustomerBalance struct {
	CustomerID string          `json:"customer_id"`
	Credits    decimal.Decimal `json:"credits"`
	Debits     decimal.Decimal `json:"debits"`
	Balance    decimal.Decimal `json:"balance"`
}
