package client

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

// NotificationPublisher publishes timeline, stock and ledger events to NATS
// JetStream for consumption by the notifications service.
//
// Subject convention: <prefix>timeline.<action>, <prefix>stock.reorder,
// <prefix>ledger.<credit|debit>.
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so a notification outage never interrupts order processing.
type NotificationPublisher struct {
	nats   MessagePublisher
	prefix string
	log    zerolog.Logger
}

var _ EventPublisher = (*NotificationPublisher)(nil)

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id,omitempty"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	OrderID      string         `json:"order_id,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil transport makes every
// publish a no-op.
func NewNotificationPublisher(nats MessagePublisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, prefix: prefix, log: log}
}

// PublishTimelineEvent announces a new timeline entry.
func (p *NotificationPublisher) PublishTimelineEvent(ctx context.Context, entry *repository.TimelineEntry) {
	payload := map[string]any{
		"stage": entry.Stage,
		"note":  entry.Note,
	}
	if entry.ItemID != nil {
		payload["item_id"] = *entry.ItemID
	}
	p.publish(ctx, "timeline."+entry.Action, &NotificationEvent{
		EventType:    entry.Action,
		ActorID:      entry.ActorID,
		ResourceType: "order",
		ResourceID:   entry.ID,
		OrderID:      entry.OrderID,
		Severity:     "info",
		Category:     "order_timeline",
		Payload:      payload,
	})
}

// PublishStockAlert announces a stock item at or below its reorder threshold.
func (p *NotificationPublisher) PublishStockAlert(ctx context.Context, item *repository.StockItem) {
	p.publish(ctx, "stock.reorder", &NotificationEvent{
		EventType:    "stock_reorder",
		ResourceType: "stock_item",
		ResourceID:   item.ID,
		Severity:     "warning",
		Category:     "inventory",
		Payload: map[string]any{
			"name":              item.Name,
			"available":         item.Available(),
			"reorder_threshold": item.ReorderThreshold,
		},
	})
}

// PublishLedgerEvent announces a new ledger entry.
func (p *NotificationPublisher) PublishLedgerEvent(ctx context.Context, entry *repository.LedgerEntry) {
	ev := &NotificationEvent{
		EventType:    "ledger_" + strings.ToLower(entry.Type),
		ActorID:      entry.ActorID,
		ResourceType: "customer",
		ResourceID:   entry.CustomerID,
		Severity:     "info",
		Category:     "payments",
		Payload: map[string]any{
			"entry_id": entry.ID,
			"amount":   entry.Amount.StringFixed(2),
			"method":   entry.Method,
			"seq":      entry.Seq,
		},
	}
	if entry.OrderID != nil {
		ev.OrderID = *entry.OrderID
	}
	p.publish(ctx, "ledger."+strings.ToLower(entry.Type), ev)
}

func (p *NotificationPublisher) publish(ctx context.Context, suffix string, event *NotificationEvent) {
	if p.nats == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.prefix + suffix
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", event.ResourceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", event.ResourceID).
		Msg("notification: event published")
}
