package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-ops-printshop/internal/client"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/auth"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/otel"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

// Payment status values derived from an order total and what has been
// applied to it.
const (
	PaymentUnpaid   = "unpaid"
	PaymentPartial  = "partial"
	PaymentPaid     = "paid"
	PaymentOverpaid = "overpaid"
)

// PaymentService keeps the per-customer credit ledger. Balances are always
// derived from entries; nothing stores a running total.
type PaymentService struct {
	ledger        repository.LedgerStore
	audit         timelineWriter
	events        client.EventPublisher
	allowNegative bool
	log           *logger.Logger
}

// NewPaymentService creates a new PaymentService. allowNegative lets any
// actor overdraw a customer balance; admins always can.
func NewPaymentService(
	ledger repository.LedgerStore,
	timeline repository.TimelineStore,
	events client.EventPublisher,
	allowNegative bool,
	log *logger.Logger,
) *PaymentService {
	return &PaymentService{
		ledger:        ledger,
		audit:         timelineWriter{timeline: timeline, events: events, log: log},
		events:        events,
		allowNegative: allowNegative,
		log:           log,
	}
}

// AddPaymentRequest holds the fields for AddPayment. When OrderID is set the
// payment is applied to that order in the same write.
type AddPaymentRequest struct {
	CustomerID string
	Amount     decimal.Decimal
	Method     string
	Note       string
	OrderID    string
}

// OrderPaymentStatus is an order's payment position.
type OrderPaymentStatus struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
	Status  string          `json:"status"`
}

// ── Writes ────────────────────────────────────────────────────────────────────

// RecordCredit records money received from a customer.
func (s *PaymentService) RecordCredit(
	ctx context.Context,
	customerID string,
	amount decimal.Decimal,
	method, note string,
	actor auth.Actor,
) (*repository.LedgerEntry, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	entry := &repository.LedgerEntry{
		CustomerID: customerID,
		Amount:     amount,
		Type:       repository.EntryCredit,
		Method:     strings.TrimSpace(method),
		Note:       strings.TrimSpace(note),
		ActorID:    actor.ID,
	}
	if err := s.append(ctx, actor, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyToOrder spends customer credit on an order.
func (s *PaymentService) ApplyToOrder(
	ctx context.Context,
	customerID, orderID string,
	amount decimal.Decimal,
	note string,
	actor auth.Actor,
) (*repository.LedgerEntry, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.InvalidInput("order_id", "is required")
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	entry := s.debit(customerID, orderID, amount, "", note, actor)
	if err := s.append(ctx, actor, entry); err != nil {
		return nil, err
	}
	s.paymentTimeline(ctx, entry, actor)
	return entry, nil
}

// AddPayment records a payment and, when an order is given, applies it to
// that order. Both entries are written together or not at all.
func (s *PaymentService) AddPayment(ctx context.Context, req AddPaymentRequest, actor auth.Actor) ([]*repository.LedgerEntry, error) {
	if err := validateCustomer(req.CustomerID); err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	credit := &repository.LedgerEntry{
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Type:       repository.EntryCredit,
		Method:     strings.TrimSpace(req.Method),
		Note:       strings.TrimSpace(req.Note),
		ActorID:    actor.ID,
	}
	entries := []*repository.LedgerEntry{credit}

	orderID := strings.TrimSpace(req.OrderID)
	if orderID != "" {
		entries = append(entries, s.debit(req.CustomerID, orderID, req.Amount, req.Method, req.Note, actor))
	}

	if err := s.append(ctx, actor, entries...); err != nil {
		return nil, err
	}
	if orderID != "" {
		s.paymentTimeline(ctx, entries[1], actor)
	}
	return entries, nil
}

func (s *PaymentService) debit(customerID, orderID string, amount decimal.Decimal, method, note string, actor auth.Actor) *repository.LedgerEntry {
	return &repository.LedgerEntry{
		CustomerID: customerID,
		OrderID:    &orderID,
		Amount:     amount,
		Type:       repository.EntryDebit,
		Method:     strings.TrimSpace(method),
		Note:       strings.TrimSpace(note),
		ActorID:    actor.ID,
	}
}

func (s *PaymentService) append(ctx context.Context, actor auth.Actor, entries ...*repository.LedgerEntry) (err error) {
	ctx, span := otel.Start(ctx, "payments.AppendEntries",
		attribute.String("customer_id", entries[0].CustomerID),
		attribute.Int("entries", len(entries)),
	)
	defer func() { otel.End(span, err) }()

	allowNegative := s.allowNegative || actor.IsAdmin
	if err := s.ledger.AppendEntries(ctx, entries, allowNegative); err != nil {
		if errors.IsCode(err, errors.ErrCodeInsufficientBalance) {
			s.log.Info().
				Str("customer_id", entries[0].CustomerID).
				Str("actor_id", actor.ID).
				Msg("Ledger debit rejected: insufficient balance")
		}
		return err
	}

	for _, e := range entries {
		s.log.Info().
			Str("customer_id", e.CustomerID).
			Str("order_id", deref(e.OrderID)).
			Str("type", e.Type).
			Str("amount", e.Amount.StringFixed(2)).
			Int64("seq", e.Seq).
			Str("actor_id", actor.ID).
			Msg("Ledger entry recorded")
		if s.events != nil {
			s.events.PublishLedgerEvent(ctx, e)
		}
	}
	return nil
}

func (s *PaymentService) paymentTimeline(ctx context.Context, debit *repository.LedgerEntry, actor auth.Actor) {
	s.audit.append(ctx, &repository.TimelineEntry{
		OrderID:   deref(debit.OrderID),
		Stage:     "payments",
		Action:    repository.TimelinePaymentApplied,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Note:      fmt.Sprintf("applied %s from customer balance", debit.Amount.StringFixed(2)),
	})
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// GetCustomerBalance returns credits, debits and their difference.
func (s *PaymentService) GetCustomerBalance(ctx context.Context, customerID string) (*repository.CustomerBalance, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	return s.ledger.CustomerBalance(ctx, customerID)
}

// GetOrderPaymentStatus reports how much of orderTotal has been applied.
func (s *PaymentService) GetOrderPaymentStatus(ctx context.Context, orderID string, orderTotal decimal.Decimal) (*OrderPaymentStatus, error) {
	statuses, err := s.GetOrdersPaymentStatus(ctx, map[string]decimal.Decimal{orderID: orderTotal})
	if err != nil {
		return nil, err
	}
	return statuses[orderID], nil
}

// GetOrdersPaymentStatus is the batch form of GetOrderPaymentStatus. It reads
// the ledger once for all orders.
func (s *PaymentService) GetOrdersPaymentStatus(ctx context.Context, totals map[string]decimal.Decimal) (map[string]*OrderPaymentStatus, error) {
	ids := make([]string, 0, len(totals))
	for id, total := range totals {
		if strings.TrimSpace(id) == "" {
			return nil, errors.InvalidInput("order_id", "is required")
		}
		if total.IsNegative() {
			return nil, errors.InvalidInput("order_total", "must not be negative").WithDetail("order_id", id)
		}
		ids = append(ids, id)
	}

	paid, err := s.ledger.OrderPaid(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*OrderPaymentStatus, len(totals))
	for id, total := range totals {
		p := paid[id]
		out[id] = &OrderPaymentStatus{
			OrderID: id,
			Total:   total,
			Paid:    p,
			Pending: total.Sub(p),
			Status:  paymentStatus(total, p),
		}
	}
	return out, nil
}

// CustomerEntries returns a customer's ledger in sequence order.
func (s *PaymentService) CustomerEntries(ctx context.Context, customerID string) ([]*repository.LedgerEntry, error) {
	if err := validateCustomer(customerID); err != nil {
		return nil, err
	}
	return s.ledger.ListCustomerEntries(ctx, customerID)
}

// OrderEntries returns the debits applied to an order.
func (s *PaymentService) OrderEntries(ctx context.Context, orderID string) ([]*repository.LedgerEntry, error) {
	return s.ledger.ListOrderEntries(ctx, orderID)
}

func paymentStatus(total, paid decimal.Decimal) string {
	switch {
	case paid.IsZero() && total.IsPositive():
		return PaymentUnpaid
	case paid.LessThan(total):
		return PaymentPartial
	case paid.Equal(total):
		return PaymentPaid
	default:
		return PaymentOverpaid
	}
}

func validateCustomer(customerID string) error {
	if strings.TrimSpace(customerID) == "" {
		return errors.InvalidInput("customer_id", "is required")
	}
	return nil
}

// validateAmount accepts positive amounts with at most two decimal places.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.InvalidInput("amount", "must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return errors.InvalidInput("amount", "must have at most two decimal places")
	}
	return nil
}
