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
	"github.com/pesio-ai/be-ops-printshop/internal/workflow"
)

// WorkflowService moves order items between (department, status) pairs.
type WorkflowService struct {
	items     repository.OrderItemStore
	workflows workflow.Provider
	audit     timelineWriter
	log       *logger.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	items repository.OrderItemStore,
	timeline repository.TimelineStore,
	workflows workflow.Provider,
	events client.EventPublisher,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		items:     items,
		workflows: workflows,
		audit:     timelineWriter{timeline: timeline, events: events, log: log},
		log:       log,
	}
}

// TransitionResult is the state an item landed in.
type TransitionResult struct {
	Department string
	Status     string
	Item       *repository.OrderItem
	Entry      *repository.TimelineEntry // nil when the timeline write failed
}

// ── Create ────────────────────────────────────────────────────────────────────

// CreateItem adds an item to an order at the workflow's initial state.
func (s *WorkflowService) CreateItem(ctx context.Context, orderID, productName string, actor auth.Actor) (*repository.OrderItem, error) {
	orderID = strings.TrimSpace(orderID)
	productName = strings.TrimSpace(productName)
	if orderID == "" {
		return nil, errors.InvalidInput("order_id", "is required")
	}
	if productName == "" {
		return nil, errors.InvalidInput("product_name", "is required")
	}

	cfg := s.workflows.Current()
	if !actor.IsAdmin && !strings.EqualFold(actor.Role, string(cfg.InitialDepartment)) {
		return nil, errors.PermissionDenied("only " + string(cfg.InitialDepartment) + " can create order items")
	}

	item := &repository.OrderItem{
		OrderID:     orderID,
		ProductName: productName,
		Department:  string(cfg.InitialDepartment),
		Status:      cfg.InitialStatus,
	}
	if err := s.items.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", orderID).
		Str("item_id", item.ID).
		Str("actor_id", actor.ID).
		Msg("Order item created")

	s.audit.append(ctx, &repository.TimelineEntry{
		OrderID:   orderID,
		ItemID:    &item.ID,
		Stage:     item.Department,
		Action:    repository.TimelineItemCreated,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Note:      fmt.Sprintf("%s created in %s/%s", productName, item.Department, item.Status),
	})

	return item, nil
}

// ── Transition ────────────────────────────────────────────────────────────────

// Transition applies a configured action to an item.
//
// Validation (state, action, permission, target) happens against one config
// snapshot and the item as read; the write is conditioned on the version read
// so a concurrent transition surfaces as CONFLICT instead of a lost update.
// Re-submitting an action that already moved the item fails with
// INVALID_ACTION because the item is no longer in the action's state.
func (s *WorkflowService) Transition(
	ctx context.Context,
	orderID, itemID, actionID string,
	actor auth.Actor,
	note string,
) (result *TransitionResult, err error) {
	ctx, span := otel.Start(ctx, "workflow.Transition",
		attribute.String("order_id", orderID),
		attribute.String("item_id", itemID),
		attribute.String("action_id", actionID),
	)
	defer func() { otel.End(span, err) }()

	cfg := s.workflows.Current()

	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OrderID != orderID {
		return nil, errors.NotFound("order_item", itemID)
	}

	dept := workflow.Department(item.Department)
	sc, ok := cfg.FindStatus(dept, item.Status)
	if !ok {
		s.log.Error().
			Str("item_id", item.ID).
			Str("department", item.Department).
			Str("status", item.Status).
			Msg("Order item is in a state missing from workflow config")
		return nil, errors.UnknownState(item.Department, item.Status)
	}

	action, ok := cfg.FindAction(dept, sc.Status, actionID)
	if !ok {
		return nil, errors.InvalidAction(actionID, item.Department, item.Status)
	}

	if len(workflow.PermittedActions(actor.Role, actor.IsAdmin, dept, item.Status, cfg)) == 0 {
		return nil, errors.PermissionDenied("actor's department does not own this item")
	}
	if !workflow.IsActionAllowed(actor, deref(item.AssignedTo)) {
		return nil, errors.PermissionDenied("item is assigned to another user")
	}

	next, err := s.nextState(cfg, item, action)
	if err != nil {
		return nil, err
	}

	if err := s.items.UpdateItemState(ctx, next, item.Version); err != nil {
		if errors.IsCode(err, errors.ErrCodeConflict) {
			s.log.Info().
				Str("item_id", item.ID).
				Int64("version", item.Version).
				Msg("Transition lost a concurrent update")
		}
		return nil, err
	}

	s.log.Info().
		Str("order_id", orderID).
		Str("item_id", item.ID).
		Str("action_id", actionID).
		Str("from", item.Department+"/"+item.Status).
		Str("to", next.Department+"/"+next.Status).
		Str("actor_id", actor.ID).
		Msg("Order item transitioned")

	entry := &repository.TimelineEntry{
		OrderID:   orderID,
		ItemID:    &item.ID,
		Stage:     next.Department,
		Action:    repository.TimelineStatusChanged,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Note:      transitionNote(action, note, item, next),
	}
	if !s.audit.append(ctx, entry) {
		entry = nil
	}

	return &TransitionResult{
		Department: next.Department,
		Status:     next.Status,
		Item:       next,
		Entry:      entry,
	}, nil
}

// nextState computes the item after action, including the hold snapshot.
func (s *WorkflowService) nextState(cfg *workflow.Config, item *repository.OrderItem, action workflow.Action) (*repository.OrderItem, error) {
	next := *item
	current := workflow.Department(item.Department)

	if action.TargetStatus == "" {
		return nil, s.configError(item, action, "action has no target status")
	}

	var target workflow.Department
	switch {
	case action.Resume:
		if item.PreviousDepartment == nil {
			return nil, errors.InvalidAction(action.ID, item.Department, item.Status).
				WithDetail("reason", "nothing to resume")
		}
		target = workflow.Department(*item.PreviousDepartment)
		next.AssignedTo = item.PreviousAssignedTo
	case action.TargetDepartment != "":
		target = action.TargetDepartment
	default:
		target = current
	}

	if _, ok := cfg.FindStatus(target, action.TargetStatus); !ok {
		return nil, s.configError(item, action, fmt.Sprintf("target %s/%s does not exist", target, action.TargetStatus))
	}

	next.Department = string(target)
	next.Status = action.TargetStatus

	if !action.Resume && target != current {
		next.AssignedTo = nil
	}

	wasHeld := cfg.IsHeld(current, item.Status)
	nowHeld := cfg.IsHeld(target, action.TargetStatus)
	switch {
	case nowHeld && !wasHeld:
		next.PreviousDepartment = &item.Department
		next.PreviousAssignedTo = item.AssignedTo
	case !nowHeld:
		next.PreviousDepartment = nil
		next.PreviousAssignedTo = nil
	}

	return &next, nil
}

func (s *WorkflowService) configError(item *repository.OrderItem, action workflow.Action, msg string) error {
	s.log.Error().
		Str("item_id", item.ID).
		Str("department", item.Department).
		Str("status", item.Status).
		Str("action_id", action.ID).
		Msg("Workflow config error: " + msg)
	return errors.Configuration(fmt.Sprintf("action %q: %s", action.ID, msg))
}

func transitionNote(action workflow.Action, note string, from, to *repository.OrderItem) string {
	moved := fmt.Sprintf("%s: moved from %s/%s to %s/%s",
		action.Label, from.Department, from.Status, to.Department, to.Status)
	if action.Label == "" {
		moved = fmt.Sprintf("%s: moved from %s/%s to %s/%s",
			action.ID, from.Department, from.Status, to.Department, to.Status)
	}
	if note = strings.TrimSpace(note); note != "" {
		return note + " (" + moved + ")"
	}
	return moved
}

// ── Assignment ────────────────────────────────────────────────────────────────

// AssignItem sets or clears (empty assignee) the item's assigned actor.
func (s *WorkflowService) AssignItem(ctx context.Context, itemID, assignee string, actor auth.Actor) (*repository.OrderItem, error) {
	cfg := s.workflows.Current()

	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanAct(actor, workflow.Department(item.Department), item.Status, deref(item.AssignedTo), cfg) {
		return nil, errors.PermissionDenied("actor cannot assign this item")
	}

	assignee = strings.TrimSpace(assignee)
	next := *item
	next.AssignedTo = strPtr(assignee)
	if err := s.items.UpdateItemState(ctx, &next, item.Version); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("item_id", item.ID).
		Str("assigned_to", assignee).
		Str("actor_id", actor.ID).
		Msg("Order item assigned")

	msg := "unassigned"
	if assignee != "" {
		msg = "assigned to " + assignee
	}
	s.audit.append(ctx, &repository.TimelineEntry{
		OrderID:   item.OrderID,
		ItemID:    &item.ID,
		Stage:     item.Department,
		Action:    repository.TimelineAssigned,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Note:      msg,
	})

	return &next, nil
}

// ── Notes and queries ─────────────────────────────────────────────────────────

// AddNote appends a free-text note to an order's timeline. itemID is optional.
func (s *WorkflowService) AddNote(ctx context.Context, orderID, itemID string, actor auth.Actor, note string) (*repository.TimelineEntry, error) {
	note = strings.TrimSpace(note)
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.InvalidInput("order_id", "is required")
	}
	if note == "" {
		return nil, errors.InvalidInput("note", "is required")
	}

	entry := &repository.TimelineEntry{
		OrderID:   orderID,
		Stage:     "order",
		Action:    repository.TimelineNoteAdded,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Note:      note,
	}
	if itemID != "" {
		item, err := s.items.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if item.OrderID != orderID {
			return nil, errors.NotFound("order_item", itemID)
		}
		entry.ItemID = &item.ID
		entry.Stage = item.Department
	}

	// The note is the write here, so a failure is returned.
	if err := s.audit.timeline.AppendTimeline(ctx, entry); err != nil {
		return nil, err
	}
	if s.audit.events != nil {
		s.audit.events.PublishTimelineEvent(ctx, entry)
	}
	return entry, nil
}

// GetItem returns one item.
func (s *WorkflowService) GetItem(ctx context.Context, itemID string) (*repository.OrderItem, error) {
	return s.items.GetItem(ctx, itemID)
}

// ListOrderItems returns all items of an order.
func (s *WorkflowService) ListOrderItems(ctx context.Context, orderID string) ([]*repository.OrderItem, error) {
	return s.items.ListItemsByOrder(ctx, orderID)
}

// AvailableActions returns what actor can do to the item right now.
func (s *WorkflowService) AvailableActions(ctx context.Context, itemID string, actor auth.Actor) ([]workflow.Action, error) {
	cfg := s.workflows.Current()

	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !workflow.IsActionAllowed(actor, deref(item.AssignedTo)) {
		return []workflow.Action{}, nil
	}

	permitted := workflow.PermittedActions(actor.Role, actor.IsAdmin, workflow.Department(item.Department), item.Status, cfg)
	out := make([]workflow.Action, 0, len(permitted))
	for _, a := range permitted {
		if a.Resume && item.PreviousDepartment == nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Timeline returns an order's timeline, newest first.
func (s *WorkflowService) Timeline(ctx context.Context, orderID string, limit int) ([]*repository.TimelineEntry, error) {
	return s.audit.timeline.ListTimeline(ctx, orderID, limit)
}

// Config returns the workflow configuration in effect.
func (s *WorkflowService) Config() *workflow.Config {
	return s.workflows.Current()
}
