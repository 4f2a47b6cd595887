package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
	"github.com/pesio-ai/be-ops-printshop/internal/workflow"
)

func TestCreateItemStartsAtInitialState(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, err := env.workflow.CreateItem(ctx, "ord-1", "Business cards", salesUser)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.Department != "sales" || item.Status != "new_order" || item.Version != 1 {
		t.Fatalf("unexpected item %+v", item)
	}

	_, err = env.workflow.CreateItem(ctx, "ord-1", "Flyers", designUser)
	assertCode(t, err, errors.ErrCodePermissionDenied)

	_, err = env.workflow.CreateItem(ctx, "ord-1", "  ", salesUser)
	assertCode(t, err, errors.ErrCodeInvalidInput)
}

func TestTransitionMovesItemAndRecordsTimeline(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, err := env.workflow.CreateItem(ctx, "ord-1", "Business cards", salesUser)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_design", salesUser, "rush job")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.Department != "design" || res.Status != "in_progress" {
		t.Fatalf("unexpected target %s/%s", res.Department, res.Status)
	}
	if res.Item.Version != 2 {
		t.Fatalf("expected version 2, got %d", res.Item.Version)
	}
	if res.Entry == nil || !strings.Contains(res.Entry.Note, "moved from sales/new_order to design/in_progress") {
		t.Fatalf("unexpected timeline entry %+v", res.Entry)
	}
	if !strings.HasPrefix(res.Entry.Note, "rush job") {
		t.Fatalf("caller note missing from %q", res.Entry.Note)
	}

	entries, err := env.workflow.Timeline(ctx, "ord-1", 0)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(entries))
	}
	if entries[0].Action != repository.TimelineStatusChanged || entries[1].Action != repository.TimelineItemCreated {
		t.Fatalf("timeline not newest first: %s, %s", entries[0].Action, entries[1].Action)
	}
}

func TestTransitionRejectsReplay(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Posters", salesUser)
	if _, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_design", salesUser, ""); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	_, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_design", salesUser, "")
	assertCode(t, err, errors.ErrCodeInvalidAction)

	got, _ := env.workflow.GetItem(ctx, item.ID)
	if got.Version != 2 {
		t.Fatalf("replay changed the item: version %d", got.Version)
	}
}

func TestTransitionPermissionDenied(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Posters", salesUser)

	_, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_design", designUser, "")
	assertCode(t, err, errors.ErrCodePermissionDenied)

	if _, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_design", adminUser, ""); err != nil {
		t.Fatalf("admin transition: %v", err)
	}
}

func TestTransitionWrongOrder(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Posters", salesUser)
	_, err := env.workflow.Transition(ctx, "ord-2", item.ID, "send_to_design", salesUser, "")
	assertCode(t, err, errors.ErrCodeNotFound)
}

func TestAssignmentLock(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Booklets", salesUser)
	if _, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_design", salesUser, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := env.workflow.AssignItem(ctx, item.ID, designUser2.ID, adminUser); err != nil {
		t.Fatalf("assign: %v", err)
	}

	_, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_prepress", designUser, "")
	assertCode(t, err, errors.ErrCodePermissionDenied)

	actions, err := env.workflow.AvailableActions(ctx, item.ID, designUser)
	if err != nil {
		t.Fatalf("available actions: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("locked item offered %d actions", len(actions))
	}

	_, err = env.workflow.AssignItem(ctx, item.ID, designUser.ID, designUser)
	assertCode(t, err, errors.ErrCodePermissionDenied)

	res, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_prepress", designUser2, "")
	if err != nil {
		t.Fatalf("assignee transition: %v", err)
	}
	if res.Item.AssignedTo != nil {
		t.Fatalf("department change kept assignee %q", *res.Item.AssignedTo)
	}
}

func TestHoldAndResume(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Labels", salesUser)
	if _, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_prepress", salesUser, ""); err != nil {
		t.Fatalf("to prepress: %v", err)
	}
	if _, err := env.workflow.AssignItem(ctx, item.ID, prepressUser.ID, prepressUser); err != nil {
		t.Fatalf("self assign: %v", err)
	}

	held, err := env.workflow.Transition(ctx, "ord-1", item.ID, "submit_for_approval", prepressUser, "proof v1")
	if err != nil {
		t.Fatalf("submit for approval: %v", err)
	}
	if held.Department != "sales" || held.Status != "client_approval" {
		t.Fatalf("unexpected held state %s/%s", held.Department, held.Status)
	}
	if held.Item.PreviousDepartment == nil || *held.Item.PreviousDepartment != "prepress" {
		t.Fatalf("snapshot department missing: %+v", held.Item)
	}
	if held.Item.PreviousAssignedTo == nil || *held.Item.PreviousAssignedTo != prepressUser.ID {
		t.Fatalf("snapshot assignee missing: %+v", held.Item)
	}
	if held.Item.AssignedTo != nil {
		t.Fatalf("held item still assigned")
	}

	actions, err := env.workflow.AvailableActions(ctx, item.ID, salesUser)
	if err != nil {
		t.Fatalf("available actions: %v", err)
	}
	if !hasAction(actions, "approve") {
		t.Fatalf("approve not offered: %+v", actions)
	}

	resumed, err := env.workflow.Transition(ctx, "ord-1", item.ID, "approve", salesUser, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resumed.Department != "prepress" || resumed.Status != "in_progress" {
		t.Fatalf("resumed to %s/%s", resumed.Department, resumed.Status)
	}
	if resumed.Item.AssignedTo == nil || *resumed.Item.AssignedTo != prepressUser.ID {
		t.Fatalf("assignee not restored: %+v", resumed.Item)
	}
	if resumed.Item.PreviousDepartment != nil || resumed.Item.PreviousAssignedTo != nil {
		t.Fatalf("snapshot not cleared: %+v", resumed.Item)
	}
}

func TestResumeWithoutSnapshot(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item := &repository.OrderItem{OrderID: "ord-1", ProductName: "Mugs", Department: "sales", Status: "client_approval"}
	if err := env.store.CreateItem(ctx, item); err != nil {
		t.Fatalf("seed: %v", err)
	}

	actions, err := env.workflow.AvailableActions(ctx, item.ID, salesUser)
	if err != nil {
		t.Fatalf("available actions: %v", err)
	}
	if hasAction(actions, "approve") {
		t.Fatal("approve offered without a snapshot")
	}
	if !hasAction(actions, "request_changes") {
		t.Fatalf("request_changes missing: %+v", actions)
	}

	_, err = env.workflow.Transition(ctx, "ord-1", item.ID, "approve", salesUser, "")
	assertCode(t, err, errors.ErrCodeInvalidAction)
}

func TestTransitionUnknownState(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item := &repository.OrderItem{OrderID: "ord-1", ProductName: "Mugs", Department: "design", Status: "archived"}
	if err := env.store.CreateItem(ctx, item); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_prepress", adminUser, "")
	assertCode(t, err, errors.ErrCodeUnknownState)
}

func TestTransitionTerminalState(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Banner", salesUser)
	if _, err := env.workflow.Transition(ctx, "ord-1", item.ID, "cancel", salesUser, "customer withdrew"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_design", adminUser, "")
	assertCode(t, err, errors.ErrCodeInvalidAction)

	actions, err := env.workflow.AvailableActions(ctx, item.ID, adminUser)
	if err != nil {
		t.Fatalf("available actions: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("terminal state offered %d actions", len(actions))
	}
}

func TestTransitionMissingTarget(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	cfg := &workflow.Config{
		InitialDepartment: workflow.DeptSales,
		InitialStatus:     "new_order",
		Departments: map[workflow.Department][]workflow.StatusConfig{
			workflow.DeptSales: {{
				Status: "new_order",
				Actions: []workflow.Action{
					{ID: "send_to_design", TargetDepartment: workflow.DeptDesign, TargetStatus: "nowhere"},
				},
			}},
		},
	}
	svc := NewWorkflowService(env.store, env.store, workflow.NewStaticProvider(cfg), env.events, logger.Nop())

	item, err := svc.CreateItem(ctx, "ord-1", "Stickers", salesUser)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.Transition(ctx, "ord-1", item.ID, "send_to_design", salesUser, "")
	assertCode(t, err, errors.ErrCodeConfiguration)

	got, _ := env.store.GetItem(ctx, item.ID)
	if got.Department != "sales" || got.Version != 1 {
		t.Fatalf("failed transition changed the item: %+v", got)
	}
}

func TestTransitionStaleVersionConflicts(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Envelopes", salesUser)
	stale := *item

	if _, err := env.workflow.Transition(ctx, "ord-1", item.ID, "send_to_prepress", salesUser, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	svc := NewWorkflowService(staleItems{OrderItemStore: env.store, item: stale}, env.store,
		workflow.NewStaticProvider(workflow.MustDefault()), env.events, logger.Nop())
	_, err := svc.Transition(ctx, "ord-1", item.ID, "send_to_design", salesUser, "")
	assertCode(t, err, errors.ErrCodeConflict)

	got, _ := env.store.GetItem(ctx, item.ID)
	if got.Department != "prepress" {
		t.Fatalf("stale write landed: %+v", got)
	}
}

func TestConcurrentTransitionsOneWins(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Catalogues", salesUser)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, action := range []string{"send_to_design", "send_to_prepress", "cancel", "send_to_design"} {
		wg.Add(1)
		go func(action string) {
			defer wg.Done()
			_, err := env.workflow.Transition(ctx, "ord-1", item.ID, action, salesUser, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.IsCode(err, errors.ErrCodeConflict), errors.IsCode(err, errors.ErrCodeInvalidAction),
				errors.IsCode(err, errors.ErrCodePermissionDenied):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(action)
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one transition to win, got %d", success)
	}
	got, _ := env.store.GetItem(ctx, item.ID)
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
}

func TestTimelineFailureDoesNotFailTransition(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	svc := NewWorkflowService(env.store, failingTimeline{TimelineStore: env.store},
		workflow.NewStaticProvider(workflow.MustDefault()), env.events, logger.Nop())

	item, err := svc.CreateItem(ctx, "ord-1", "Postcards", salesUser)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.Transition(ctx, "ord-1", item.ID, "send_to_design", salesUser, "")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.Entry != nil {
		t.Fatal("expected no timeline entry")
	}
	got, _ := env.store.GetItem(ctx, item.ID)
	if got.Department != "design" {
		t.Fatalf("state not committed: %+v", got)
	}
}

func TestAddNote(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	item, _ := env.workflow.CreateItem(ctx, "ord-1", "Postcards", salesUser)

	_, err := env.workflow.AddNote(ctx, "ord-1", item.ID, salesUser, "   ")
	assertCode(t, err, errors.ErrCodeInvalidInput)

	entry, err := env.workflow.AddNote(ctx, "ord-1", item.ID, designUser, "customer called")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if entry.Action != repository.TimelineNoteAdded || entry.Stage != "sales" || entry.ItemID == nil {
		t.Fatalf("unexpected note entry %+v", entry)
	}

	orderNote, err := env.workflow.AddNote(ctx, "ord-1", "", salesUser, "deposit pending")
	if err != nil {
		t.Fatalf("order note: %v", err)
	}
	if orderNote.ItemID != nil || orderNote.Stage != "order" {
		t.Fatalf("unexpected order note %+v", orderNote)
	}
}

func hasAction(actions []workflow.Action, id string) bool {
	for _, a := range actions {
		if a.ID == id {
			return true
		}
	}
	return false
}
