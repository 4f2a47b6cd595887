package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "printshop.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func strPtr(s string) *string { return &s }

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "printshop.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = second.Close()
}

func TestOrderItemVersionedUpdate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	item := &repository.OrderItem{OrderID: "ord-1", ProductName: "Business cards", Department: "sales", Status: "new_order"}
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.ID == "" || item.Version != 1 {
		t.Fatalf("unexpected created item %+v", item)
	}

	stale := *item
	item.Department, item.Status = "design", "in_progress"
	item.PreviousDepartment = strPtr("sales")
	if err := store.UpdateItemState(ctx, item, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if item.Version != 2 {
		t.Fatalf("version = %d, want 2", item.Version)
	}

	stale.Status = "cancelled"
	if err := store.UpdateItemState(ctx, &stale, 1); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Department != "design" || got.Status != "in_progress" || got.Version != 2 {
		t.Fatalf("unexpected stored item %+v", got)
	}
	if got.PreviousDepartment == nil || *got.PreviousDepartment != "sales" || got.AssignedTo != nil {
		t.Fatalf("nullable columns not round-tripped: %+v", got)
	}

	if _, err := store.GetItem(ctx, "missing"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	items, err := store.ListItemsByOrder(ctx, "ord-1")
	if err != nil || len(items) != 1 {
		t.Fatalf("list items: %v (%d)", err, len(items))
	}
}

func TestTimelineNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	for _, note := range []string{"first", "second", "third"} {
		if err := store.AppendTimeline(ctx, &repository.TimelineEntry{
			OrderID: "ord-1", Stage: "sales", Action: repository.TimelineNoteAdded, ActorID: "u-1", Note: note,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := store.ListTimeline(ctx, "ord-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 || entries[0].Note != "third" || entries[2].Note != "first" {
		t.Fatalf("unexpected order: %+v", entries)
	}

	limited, err := store.ListTimeline(ctx, "ord-1", 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limit: %v (%d)", err, len(limited))
	}

	if _, err := store.sqlDB.Exec(`DELETE FROM order_timeline`); err == nil {
		t.Fatalf("timeline must be append-only")
	}
}

func newStock(t *testing.T, store *Store, total int64) *repository.StockItem {
	t.Helper()
	item := &repository.StockItem{Name: "Art card 300", Grade: "art card", WeightGSM: 300, Total: total, ReorderThreshold: 2}
	if err := store.CreateStockItem(context.Background(), item, "u-store"); err != nil {
		t.Fatalf("create stock item: %v", err)
	}
	return item
}

func TestReserveSettleAndAdjust(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	stock := newStock(t, store, 5)

	jm, item, err := store.Reserve(ctx, repository.ReserveParams{JobID: "J1", StockItemID: stock.ID, Quantity: 5, ActorID: "u-1"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if item.Available() != 0 || item.Reserved != 5 || jm.Status != repository.MaterialReserved {
		t.Fatalf("unexpected after reserve: item %+v jm %+v", item, jm)
	}

	_, _, err = store.Reserve(ctx, repository.ReserveParams{JobID: "J2", StockItemID: stock.ID, Quantity: 1, ActorID: "u-1"})
	if !errors.IsCode(err, errors.ErrCodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	_, item, err = store.SettleJobMaterial(ctx, jm.ID, repository.MaterialReleased, "u-1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if item.Available() != 5 || item.Reserved != 0 {
		t.Fatalf("release did not restore availability: %+v", item)
	}

	_, _, err = store.SettleJobMaterial(ctx, jm.ID, repository.MaterialConsumed, "u-1")
	if !errors.IsCode(err, errors.ErrCodeInvalidAction) {
		t.Fatalf("expected invalid action on settled allocation, got %v", err)
	}

	jm2, _, err := store.Reserve(ctx, repository.ReserveParams{JobID: "J2", StockItemID: stock.ID, Quantity: 3, ActorID: "u-1"})
	if err != nil {
		t.Fatalf("reserve again: %v", err)
	}
	settled, item, err := store.SettleJobMaterial(ctx, jm2.ID, repository.MaterialConsumed, "u-2")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if item.Consumed != 3 || item.Reserved != 0 || item.Available() != 2 {
		t.Fatalf("unexpected after consume: %+v", item)
	}
	if settled.SettledBy == nil || *settled.SettledBy != "u-2" || settled.SettledAt == nil {
		t.Fatalf("settlement not recorded: %+v", settled)
	}

	if _, _, err := store.AdjustStock(ctx, repository.AdjustParams{StockItemID: stock.ID, Type: repository.HistoryOut, Delta: -3, ActorID: "u-1"}); !errors.IsCode(err, errors.ErrCodeInsufficientStock) {
		t.Fatalf("expected out beyond available to fail, got %v", err)
	}
	item, h, err := store.AdjustStock(ctx, repository.AdjustParams{StockItemID: stock.ID, Type: repository.HistoryIn, Delta: 10, ActorID: "u-1", Note: "delivery"})
	if err != nil {
		t.Fatalf("adjust in: %v", err)
	}
	if item.Total != 15 || h.Delta != 10 {
		t.Fatalf("unexpected after adjust: %+v %+v", item, h)
	}

	totals, err := store.SumHistory(ctx, stock.ID)
	if err != nil {
		t.Fatalf("sum history: %v", err)
	}
	want := repository.HistoryTotals{In: 15, Reserve: 8, Consume: 3, Release: 5}
	if totals != want {
		t.Fatalf("totals = %+v, want %+v", totals, want)
	}

	reserved, err := store.ReservedAllocations(ctx, stock.ID)
	if err != nil || reserved != 0 {
		t.Fatalf("reserved allocations = %d (%v)", reserved, err)
	}

	history, err := store.ListStockHistory(ctx, stock.ID)
	if err != nil || len(history) != 6 {
		t.Fatalf("history: %v (%d entries)", err, len(history))
	}

	materials, err := store.ListJobMaterials(ctx, "J2")
	if err != nil || len(materials) != 1 || materials[0].Status != repository.MaterialConsumed {
		t.Fatalf("job materials: %v %+v", err, materials)
	}
}

func TestReserveUnknownAndRetired(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	if _, _, err := store.Reserve(ctx, repository.ReserveParams{JobID: "J1", StockItemID: "nope", Quantity: 1, ActorID: "u"}); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	stock := newStock(t, store, 4)
	jm, _, err := store.Reserve(ctx, repository.ReserveParams{JobID: "J1", StockItemID: stock.ID, Quantity: 1, ActorID: "u"})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := store.RetireStockItem(ctx, stock.ID); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected retire with reservations to fail, got %v", err)
	}
	if _, _, err := store.SettleJobMaterial(ctx, jm.ID, repository.MaterialReleased, "u"); err != nil {
		t.Fatalf("release: %v", err)
	}
	retired, err := store.RetireStockItem(ctx, stock.ID)
	if err != nil || retired.Status != repository.StockRetired {
		t.Fatalf("retire: %v %+v", err, retired)
	}

	if _, _, err := store.Reserve(ctx, repository.ReserveParams{JobID: "J1", StockItemID: stock.ID, Quantity: 1, ActorID: "u"}); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected reserve on retired item to fail, got %v", err)
	}

	active, err := store.ListStockItems(ctx, false)
	if err != nil || len(active) != 0 {
		t.Fatalf("active items: %v %d", err, len(active))
	}
	all, err := store.ListStockItems(ctx, true)
	if err != nil || len(all) != 1 {
		t.Fatalf("all items: %v %d", err, len(all))
	}
}

func TestConcurrentReservesNeverOverAllocate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	stock := newStock(t, store, 10)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = store.Reserve(ctx, repository.ReserveParams{JobID: "J", StockItemID: stock.ID, Quantity: 6, ActorID: "u"})
		}(i)
	}
	wg.Wait()

	ok, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.IsCode(err, errors.ErrCodeInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || short != 1 {
		t.Fatalf("got %d successes and %d shortages, want 1 and 1", ok, short)
	}

	item, err := store.GetStockItem(ctx, stock.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Reserved != 6 || item.Available() != 4 {
		t.Fatalf("unexpected stock after race: %+v", item)
	}
}

func TestLedgerAppendAndAggregate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	order := "O1"

	credit := &repository.LedgerEntry{CustomerID: "C1", Amount: decimal.NewFromInt(1000), Type: repository.EntryCredit, Method: "cash", ActorID: "u"}
	if err := store.AppendEntries(ctx, []*repository.LedgerEntry{credit}, false); err != nil {
		t.Fatalf("credit: %v", err)
	}
	debit := &repository.LedgerEntry{CustomerID: "C1", OrderID: &order, Amount: decimal.NewFromInt(600), Type: repository.EntryDebit, ActorID: "u"}
	if err := store.AppendEntries(ctx, []*repository.LedgerEntry{debit}, false); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if credit.Seq != 1 || debit.Seq != 2 {
		t.Fatalf("sequence = %d, %d", credit.Seq, debit.Seq)
	}

	over := &repository.LedgerEntry{CustomerID: "C1", OrderID: &order, Amount: decimal.NewFromInt(500), Type: repository.EntryDebit, ActorID: "u"}
	if err := store.AppendEntries(ctx, []*repository.LedgerEntry{over}, false); !errors.IsCode(err, errors.ErrCodeInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	balance, err := store.CustomerBalance(ctx, "C1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Balance.Equal(decimal.NewFromInt(400)) || !balance.Credits.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected balance %+v", balance)
	}

	paid, err := store.OrderPaid(ctx, []string{"O1", "O2"})
	if err != nil {
		t.Fatalf("order paid: %v", err)
	}
	if !paid["O1"].Equal(decimal.NewFromInt(600)) {
		t.Fatalf("O1 paid = %s", paid["O1"])
	}
	if _, ok := paid["O2"]; ok {
		t.Fatalf("O2 has no debits")
	}

	entries, err := store.ListOrderEntries(ctx, "O1")
	if err != nil || len(entries) != 1 || entries[0].OrderID == nil || *entries[0].OrderID != "O1" {
		t.Fatalf("order entries: %v %+v", err, entries)
	}
}

func TestLedgerDuplicateSequenceIsConflict(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.sqlDB.Exec(`
		INSERT INTO ledger_entries (id, customer_id, seq, amount, type, actor_id, created_at)
		VALUES ('a', 'C1', 1, '10.00', 'CREDIT', 'u', 0), ('b', 'C1', 1, '10.00', 'CREDIT', 'u', 0)`)
	if !isUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}
