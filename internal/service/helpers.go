package service

import (
	"context"

	"github.com/pesio-ai/be-ops-printshop/internal/client"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

// timelineWriter appends audit entries after the state write has committed.
// The state write is the commit point: a failed append is logged, never
// returned.
type timelineWriter struct {
	timeline repository.TimelineStore
	events   client.EventPublisher
	log      *logger.Logger
}

func (w timelineWriter) append(ctx context.Context, entry *repository.TimelineEntry) bool {
	if err := w.timeline.AppendTimeline(ctx, entry); err != nil {
		w.log.Warn().Err(err).
			Str("order_id", entry.OrderID).
			Str("action", entry.Action).
			Msg("Failed to write timeline entry")
		return false
	}
	if w.events != nil {
		w.events.PublishTimelineEvent(ctx, entry)
	}
	return true
}

// crossedThreshold reports whether available went from above the reorder
// threshold to at or below it.
func crossedThreshold(before, after, threshold int64) bool {
	return before > threshold && after <= threshold
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
