package handler

import (
	"path/filepath"
	"testing"

	"go.uber.org/mock/gomock"

	mock_client "github.com/pesio-ai/be-ops-printshop/internal/client/mocks"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
	"github.com/pesio-ai/be-ops-printshop/internal/repository/sqlite"
	"github.com/pesio-ai/be-ops-printshop/internal/service"
	"github.com/pesio-ai/be-ops-printshop/internal/workflow"
)

type services struct {
	workflow  *service.WorkflowService
	inventory *service.InventoryService
	payments  *service.PaymentService
}

func newServices(t *testing.T) services {
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
	events.EXPECT().PublishStockAlert(gomock.Any(), gomock.Any()).AnyTimes()

	log := logger.Nop()
	return services{
		workflow:  service.NewWorkflowService(store, store, workflow.NewStaticProvider(workflow.MustDefault()), events, log),
		inventory: service.NewInventoryService(store, store, events, log),
		payments:  service.NewPaymentService(store, store, events, false, log),
	}
}
