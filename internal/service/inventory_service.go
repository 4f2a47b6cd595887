package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-ops-printshop/internal/client"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/auth"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/otel"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
)

// Adjustment modes accepted by AdjustStock.
const (
	AdjustIn     = "in"
	AdjustOut    = "out"
	AdjustDirect = "adjust"
)

// InventoryService tracks paper stock and the allocations held against jobs.
//
// Every quantity change is a single store transaction that updates the
// counters and writes its stock history row together. Timeline entries and
// reorder alerts follow after commit and never fail the operation.
type InventoryService struct {
	stock  repository.InventoryStore
	audit  timelineWriter
	events client.EventPublisher
	log    *logger.Logger
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(
	stock repository.InventoryStore,
	timeline repository.TimelineStore,
	events client.EventPublisher,
	log *logger.Logger,
) *InventoryService {
	return &InventoryService{
		stock:  stock,
		audit:  timelineWriter{timeline: timeline, events: events, log: log},
		events: events,
		log:    log,
	}
}

// NewStockItem holds the fields for CreateStockItem.
type NewStockItem struct {
	Name             string
	Grade            string
	WeightGSM        int
	Total            int64
	ReorderThreshold int64
}

// ReconcileReport compares a stock item's counters with its allocations and
// its history. Drift flags are set when the sources disagree.
type ReconcileReport struct {
	StockItemID string `json:"stock_item_id"`

	Total     int64 `json:"total"`
	Reserved  int64 `json:"reserved"`
	Consumed  int64 `json:"consumed"`
	Available int64 `json:"available"`

	ReservedAllocations int64 `json:"reserved_allocations"`
	HistoryTotal        int64 `json:"history_total"`
	HistoryReserved     int64 `json:"history_reserved"`
	HistoryConsumed     int64 `json:"history_consumed"`

	ReservationDrift bool `json:"reservation_drift"`
	HistoryDrift     bool `json:"history_drift"`
}

// Consistent reports whether no drift was found.
func (r *ReconcileReport) Consistent() bool {
	return !r.ReservationDrift && !r.HistoryDrift
}

// ── Stock items ───────────────────────────────────────────────────────────────

// CreateStockItem registers a paper stock. A positive opening total is
// recorded as an "in" history row.
func (s *InventoryService) CreateStockItem(ctx context.Context, req NewStockItem, actor auth.Actor) (*repository.StockItem, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, errors.InvalidInput("name", "is required")
	}
	if req.Total < 0 {
		return nil, errors.InvalidInput("total", "must not be negative")
	}
	if req.ReorderThreshold < 0 {
		return nil, errors.InvalidInput("reorder_threshold", "must not be negative")
	}
	if req.WeightGSM < 0 {
		return nil, errors.InvalidInput("weight_gsm", "must not be negative")
	}

	item := &repository.StockItem{
		Name:             req.Name,
		Grade:            strings.TrimSpace(req.Grade),
		WeightGSM:        req.WeightGSM,
		Total:            req.Total,
		ReorderThreshold: req.ReorderThreshold,
		Status:           repository.StockActive,
	}
	if err := s.stock.CreateStockItem(ctx, item, actor.ID); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("stock_item_id", item.ID).
		Str("name", item.Name).
		Int64("total", item.Total).
		Str("actor_id", actor.ID).
		Msg("Stock item created")

	return item, nil
}

// RetireStockItem hides a stock item from new reservations. Items with
// outstanding reservations cannot be retired.
func (s *InventoryService) RetireStockItem(ctx context.Context, stockItemID string, actor auth.Actor) (*repository.StockItem, error) {
	item, err := s.stock.RetireStockItem(ctx, stockItemID)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("stock_item_id", stockItemID).
		Str("actor_id", actor.ID).
		Msg("Stock item retired")
	return item, nil
}

// GetStockItem returns one stock item.
func (s *InventoryService) GetStockItem(ctx context.Context, stockItemID string) (*repository.StockItem, error) {
	return s.stock.GetStockItem(ctx, stockItemID)
}

// ListStockItems returns stock items by name.
func (s *InventoryService) ListStockItems(ctx context.Context, includeRetired bool) ([]*repository.StockItem, error) {
	return s.stock.ListStockItems(ctx, includeRetired)
}

// ── Allocations ───────────────────────────────────────────────────────────────

// Reserve holds quantity of a stock item against a job.
func (s *InventoryService) Reserve(
	ctx context.Context,
	jobID, stockItemID string,
	quantity int64,
	actor auth.Actor,
	note string,
) (jm *repository.JobMaterial, item *repository.StockItem, err error) {
	ctx, span := otel.Start(ctx, "inventory.Reserve",
		attribute.String("job_id", jobID),
		attribute.String("stock_item_id", stockItemID),
		attribute.Int64("quantity", quantity),
	)
	defer func() { otel.End(span, err) }()

	if strings.TrimSpace(jobID) == "" {
		return nil, nil, errors.InvalidInput("job_id", "is required")
	}
	if quantity <= 0 {
		return nil, nil, errors.InvalidInput("quantity", "must be positive")
	}

	jm, item, err = s.stock.Reserve(ctx, repository.ReserveParams{
		JobID:       jobID,
		StockItemID: stockItemID,
		Quantity:    quantity,
		ActorID:     actor.ID,
		Note:        strings.TrimSpace(note),
	})
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeInsufficientStock) {
			s.log.Info().
				Str("job_id", jobID).
				Str("stock_item_id", stockItemID).
				Int64("quantity", quantity).
				Msg("Reservation rejected: insufficient stock")
		}
		return nil, nil, err
	}

	s.log.Info().
		Str("job_id", jobID).
		Str("stock_item_id", stockItemID).
		Str("job_material_id", jm.ID).
		Int64("quantity", quantity).
		Int64("available", item.Available()).
		Str("actor_id", actor.ID).
		Msg("Stock reserved")

	s.materialTimeline(ctx, repository.TimelineMaterialReserved, jm, item, actor)
	s.checkReorder(ctx, item, item.Available()+quantity)

	return jm, item, nil
}

// Consume turns a reservation into used stock.
func (s *InventoryService) Consume(ctx context.Context, jobMaterialID string, actor auth.Actor) (*repository.JobMaterial, *repository.StockItem, error) {
	return s.settle(ctx, jobMaterialID, repository.MaterialConsumed, actor)
}

// Release returns a reservation to available stock.
func (s *InventoryService) Release(ctx context.Context, jobMaterialID string, actor auth.Actor) (*repository.JobMaterial, *repository.StockItem, error) {
	return s.settle(ctx, jobMaterialID, repository.MaterialReleased, actor)
}

func (s *InventoryService) settle(
	ctx context.Context,
	jobMaterialID, status string,
	actor auth.Actor,
) (jm *repository.JobMaterial, item *repository.StockItem, err error) {
	ctx, span := otel.Start(ctx, "inventory.Settle",
		attribute.String("job_material_id", jobMaterialID),
		attribute.String("status", status),
	)
	defer func() { otel.End(span, err) }()

	jm, item, err = s.stock.SettleJobMaterial(ctx, jobMaterialID, status, actor.ID)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("job_id", jm.JobID).
		Str("job_material_id", jm.ID).
		Str("status", status).
		Int64("quantity", jm.Quantity).
		Str("actor_id", actor.ID).
		Msg("Job material settled")

	action := repository.TimelineMaterialConsumed
	if status == repository.MaterialReleased {
		action = repository.TimelineMaterialReleased
	}
	s.materialTimeline(ctx, action, jm, item, actor)

	return jm, item, nil
}

// ListJobMaterials returns a job's allocations.
func (s *InventoryService) ListJobMaterials(ctx context.Context, jobID string) ([]*repository.JobMaterial, error) {
	return s.stock.ListJobMaterials(ctx, jobID)
}

// ── Adjustments ───────────────────────────────────────────────────────────────

// AdjustStock changes a stock item's total. Modes: "in" adds quantity, "out"
// removes it, and "adjust" applies quantity as a signed correction. A change
// that would push available below zero fails with INSUFFICIENT_STOCK.
func (s *InventoryService) AdjustStock(
	ctx context.Context,
	stockItemID string,
	quantity int64,
	mode string,
	actor auth.Actor,
	note string,
) (item *repository.StockItem, h *repository.StockHistory, err error) {
	ctx, span := otel.Start(ctx, "inventory.AdjustStock",
		attribute.String("stock_item_id", stockItemID),
		attribute.String("mode", mode),
		attribute.Int64("quantity", quantity),
	)
	defer func() { otel.End(span, err) }()

	var delta int64
	switch mode {
	case AdjustIn:
		if quantity <= 0 {
			return nil, nil, errors.InvalidInput("quantity", "must be positive")
		}
		delta = quantity
	case AdjustOut:
		if quantity <= 0 {
			return nil, nil, errors.InvalidInput("quantity", "must be positive")
		}
		delta = -quantity
	case AdjustDirect:
		if quantity == 0 {
			return nil, nil, errors.InvalidInput("quantity", "must not be zero")
		}
		delta = quantity
	default:
		return nil, nil, errors.InvalidInput("mode", "must be in, out or adjust")
	}

	item, h, err = s.stock.AdjustStock(ctx, repository.AdjustParams{
		StockItemID: stockItemID,
		Type:        mode,
		Delta:       delta,
		ActorID:     actor.ID,
		Note:        strings.TrimSpace(note),
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("stock_item_id", stockItemID).
		Str("mode", mode).
		Int64("delta", delta).
		Int64("total", item.Total).
		Str("actor_id", actor.ID).
		Msg("Stock adjusted")

	s.checkReorder(ctx, item, item.Available()-delta)

	return item, h, nil
}

// StockHistory returns a stock item's history, newest first.
func (s *InventoryService) StockHistory(ctx context.Context, stockItemID string) ([]*repository.StockHistory, error) {
	if _, err := s.stock.GetStockItem(ctx, stockItemID); err != nil {
		return nil, err
	}
	return s.stock.ListStockHistory(ctx, stockItemID)
}

// ── Reconcile ─────────────────────────────────────────────────────────────────

// Reconcile cross-checks a stock item's counters against its outstanding
// allocations and its history. It reports and never repairs.
func (s *InventoryService) Reconcile(ctx context.Context, stockItemID string) (*ReconcileReport, error) {
	item, err := s.stock.GetStockItem(ctx, stockItemID)
	if err != nil {
		return nil, err
	}
	allocated, err := s.stock.ReservedAllocations(ctx, stockItemID)
	if err != nil {
		return nil, err
	}
	totals, err := s.stock.SumHistory(ctx, stockItemID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		StockItemID:         item.ID,
		Total:               item.Total,
		Reserved:            item.Reserved,
		Consumed:            item.Consumed,
		Available:           item.Available(),
		ReservedAllocations: allocated,
		HistoryTotal:        totals.In + totals.Out + totals.Adjust,
		HistoryReserved:     totals.Reserve - totals.Consume - totals.Release,
		HistoryConsumed:     totals.Consume,
	}
	report.ReservationDrift = report.Reserved != report.ReservedAllocations
	report.HistoryDrift = report.Total != report.HistoryTotal ||
		report.Reserved != report.HistoryReserved ||
		report.Consumed != report.HistoryConsumed

	if !report.Consistent() {
		s.log.Warn().
			Str("stock_item_id", item.ID).
			Bool("reservation_drift", report.ReservationDrift).
			Bool("history_drift", report.HistoryDrift).
			Msg("Stock reconcile found drift")
	}
	return report, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// materialTimeline records allocation changes on the job's order timeline.
func (s *InventoryService) materialTimeline(ctx context.Context, action string, jm *repository.JobMaterial, item *repository.StockItem, actor auth.Actor) {
	verb := map[string]string{
		repository.TimelineMaterialReserved: "reserved",
		repository.TimelineMaterialConsumed: "consumed",
		repository.TimelineMaterialReleased: "released",
	}[action]

	s.audit.append(ctx, &repository.TimelineEntry{
		OrderID:   jm.JobID,
		Stage:     "inventory",
		Action:    action,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Note:      fmt.Sprintf("%s %d of %s", verb, jm.Quantity, item.Name),
	})
}

// checkReorder raises a stock alert when a change drops available to or
// below the reorder threshold.
func (s *InventoryService) checkReorder(ctx context.Context, item *repository.StockItem, before int64) {
	if item.ReorderThreshold <= 0 || !crossedThreshold(before, item.Available(), item.ReorderThreshold) {
		return
	}
	s.log.Warn().
		Str("stock_item_id", item.ID).
		Str("name", item.Name).
		Int64("available", item.Available()).
		Int64("reorder_threshold", item.ReorderThreshold).
		Msg("Stock at or below reorder threshold")
	if s.events != nil {
		s.events.PublishStockAlert(ctx, item)
	}
}
