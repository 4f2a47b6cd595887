package service

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/mock/gomock"

	mock_client "github.com/pesio-ai/be-ops-printshop/internal/client/mocks"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/auth"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
	"github.com/pesio-ai/be-ops-printshop/internal/repository/sqlite"
	"github.com/pesio-ai/be-ops-printshop/internal/workflow"
)

var (
	salesUser    = auth.Actor{ID: "u-sales", Name: "Sam", Role: "sales"}
	designUser   = auth.Actor{ID: "u-design", Name: "Dana", Role: "design"}
	designUser2  = auth.Actor{ID: "u-design-2", Name: "Dev", Role: "design"}
	prepressUser = auth.Actor{ID: "u-prepress", Name: "Pat", Role: "prepress"}
	adminUser    = auth.Actor{ID: "u-admin", Name: "Ada", Role: "admin", IsAdmin: true}
)

type testEnv struct {
	store     *sqlite.Store
	events    *mock_client.MockEventPublisher
	workflow  *WorkflowService
	inventory *InventoryService
	payments  *PaymentService
}

// newTestEnv wires the services over a temporary SQLite store. Timeline and
// ledger events are accepted any number of times; stock alerts must be
// expected explicitly.
func newTestEnv(t *testing.T, allowNegative bool) *testEnv {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "printshop.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctrl := gomock.NewController(t)
	events := mock_client.NewMockEventPublisher(ctrl)
	events.EXPECT().PublishTimelineEvent(gomock.Any(), gomock.Any()).AnyTimes()
	events.EXPECT().PublishLedgerEvent(gomock.Any(), gomock.Any()).AnyTimes()

	log := logger.Nop()
	provider := workflow.NewStaticProvider(workflow.MustDefault())
	return &testEnv{
		store:     store,
		events:    events,
		workflow:  NewWorkflowService(store, store, provider, events, log),
		inventory: NewInventoryService(store, store, events, log),
		payments:  NewPaymentService(store, store, events, allowNegative, log),
	}
}

func assertCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := errors.GetCode(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

// failingTimeline rejects every append.
type failingTimeline struct {
	repository.TimelineStore
}

func (failingTimeline) AppendTimeline(context.Context, *repository.TimelineEntry) error {
	return errors.New(errors.ErrCodeInternal, "timeline unavailable")
}

// staleItems serves a fixed copy of an item regardless of what is stored.
type staleItems struct {
	repository.OrderItemStore
	item repository.OrderItem
}

func (s staleItems) GetItem(context.Context, string) (*repository.OrderItem, error) {
	item := s.item
	return &item, nil
}
