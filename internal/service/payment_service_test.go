package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreditApplyAndOverdraw(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if _, err := env.payments.RecordCredit(ctx, "C1", dec("1000"), "bank_transfer", "", salesUser); err != nil {
		t.Fatalf("credit: %v", err)
	}
	debit, err := env.payments.ApplyToOrder(ctx, "C1", "ord-1", dec("600"), "", salesUser)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if debit.Seq != 2 || debit.Type != repository.EntryDebit {
		t.Fatalf("unexpected debit %+v", debit)
	}

	bal, err := env.payments.GetCustomerBalance(ctx, "C1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.Balance.Equal(dec("400")) || !bal.Credits.Equal(dec("1000")) || !bal.Debits.Equal(dec("600")) {
		t.Fatalf("unexpected balance %+v", bal)
	}

	_, err = env.payments.ApplyToOrder(ctx, "C1", "ord-2", dec("500"), "", salesUser)
	assertCode(t, err, errors.ErrCodeInsufficientBalance)

	var appErr *errors.Error
	if !errors.As(err, &appErr) || appErr.Details["balance"] != "400.00" {
		t.Fatalf("unexpected error details %+v", err)
	}

	if _, err := env.payments.ApplyToOrder(ctx, "C1", "ord-2", dec("500"), "approved overdraft", adminUser); err != nil {
		t.Fatalf("admin overdraw: %v", err)
	}
	bal, _ = env.payments.GetCustomerBalance(ctx, "C1")
	if !bal.Balance.Equal(dec("-100")) {
		t.Fatalf("expected -100, got %s", bal.Balance)
	}

	entries, err := env.payments.CustomerEntries(ctx, "C1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Fatalf("entry %d has seq %d", i, e.Seq)
		}
	}

	timeline, err := env.workflow.Timeline(ctx, "ord-1", 0)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 1 || timeline[0].Action != repository.TimelinePaymentApplied {
		t.Fatalf("unexpected timeline %+v", timeline)
	}
}

func TestNegativeBalancePolicy(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	if _, err := env.payments.ApplyToOrder(ctx, "C1", "ord-1", dec("50"), "", salesUser); err != nil {
		t.Fatalf("apply with negative balances allowed: %v", err)
	}
	bal, _ := env.payments.GetCustomerBalance(ctx, "C1")
	if !bal.Balance.Equal(dec("-50")) {
		t.Fatalf("expected -50, got %s", bal.Balance)
	}
}

func TestAddPaymentAppliesToOrder(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	entries, err := env.payments.AddPayment(ctx, AddPaymentRequest{
		CustomerID: "C1",
		Amount:     dec("250.50"),
		Method:     "card",
		OrderID:    "ord-1",
	}, salesUser)
	if err != nil {
		t.Fatalf("add payment: %v", err)
	}
	if len(entries) != 2 || entries[0].Type != repository.EntryCredit || entries[1].Type != repository.EntryDebit {
		t.Fatalf("unexpected entries %+v", entries)
	}

	bal, _ := env.payments.GetCustomerBalance(ctx, "C1")
	if !bal.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", bal.Balance)
	}

	status, err := env.payments.GetOrderPaymentStatus(ctx, "ord-1", dec("250.50"))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != PaymentPaid || !status.Pending.IsZero() {
		t.Fatalf("unexpected status %+v", status)
	}

	credit, err := env.payments.AddPayment(ctx, AddPaymentRequest{CustomerID: "C1", Amount: dec("10")}, salesUser)
	if err != nil {
		t.Fatalf("credit only: %v", err)
	}
	if len(credit) != 1 {
		t.Fatalf("expected one entry, got %d", len(credit))
	}
}

func TestAmountValidation(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "10.001"} {
		_, err := env.payments.RecordCredit(ctx, "C1", dec(amount), "", "", salesUser)
		assertCode(t, err, errors.ErrCodeInvalidInput)
	}
	_, err := env.payments.RecordCredit(ctx, "", dec("10"), "", "", salesUser)
	assertCode(t, err, errors.ErrCodeInvalidInput)
	_, err = env.payments.ApplyToOrder(ctx, "C1", "", dec("10"), "", salesUser)
	assertCode(t, err, errors.ErrCodeInvalidInput)
}

func TestOrdersPaymentStatusBatch(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if _, err := env.payments.RecordCredit(ctx, "C1", dec("1000"), "cash", "", salesUser); err != nil {
		t.Fatalf("credit: %v", err)
	}
	for order, amount := range map[string]string{"A": "600", "B": "200", "D": "150"} {
		if _, err := env.payments.ApplyToOrder(ctx, "C1", order, dec(amount), "", salesUser); err != nil {
			t.Fatalf("apply %s: %v", order, err)
		}
	}

	statuses, err := env.payments.GetOrdersPaymentStatus(ctx, map[string]decimal.Decimal{
		"A": dec("600"),
		"B": dec("500"),
		"C": dec("100"),
		"D": dec("100"),
	})
	if err != nil {
		t.Fatalf("batch status: %v", err)
	}

	want := map[string]struct{ status, pending string }{
		"A": {PaymentPaid, "0"},
		"B": {PaymentPartial, "300"},
		"C": {PaymentUnpaid, "100"},
		"D": {PaymentOverpaid, "-50"},
	}
	for id, w := range want {
		got := statuses[id]
		if got == nil {
			t.Fatalf("missing status for %s", id)
		}
		if got.Status != w.status || !got.Pending.Equal(dec(w.pending)) {
			t.Errorf("%s: got %s pending %s, want %s pending %s", id, got.Status, got.Pending, w.status, w.pending)
		}
	}

	_, err = env.payments.GetOrdersPaymentStatus(ctx, map[string]decimal.Decimal{"A": dec("-1")})
	assertCode(t, err, errors.ErrCodeInvalidInput)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if _, err := env.payments.RecordCredit(ctx, "C1", dec("100"), "cash", "", salesUser); err != nil {
		t.Fatalf("credit: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.payments.ApplyToOrder(ctx, "C1", "ord-1", dec("20"), "", salesUser)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.IsCode(err, errors.ErrCodeInsufficientBalance), errors.IsCode(err, errors.ErrCodeConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	bal, _ := env.payments.GetCustomerBalance(ctx, "C1")
	if bal.Balance.IsNegative() {
		t.Fatalf("balance went negative: %s", bal.Balance)
	}
	if !bal.Debits.Equal(decimal.NewFromInt(int64(success * 20))) {
		t.Fatalf("debits %s do not match %d successes", bal.Debits, success)
	}
}
