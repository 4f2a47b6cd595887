package client

import (
	"context"

	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/interfaces_mock.go -package=mock_client

// EventPublisher makes committed core events observable to the notification
// service. Implementations must not fail the caller.
type EventPublisher interface {
	PublishTimelineEvent(ctx context.Context, entry *repository.TimelineEntry)
	PublishStockAlert(ctx context.Context, item *repository.StockItem)
	PublishLedgerEvent(ctx context.Context, entry *repository.LedgerEntry)
}

// MessagePublisher is the transport the notification publisher writes to.
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}
