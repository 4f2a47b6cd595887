package handler

import (
	"context"
	"encoding/json"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/auth"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/service"
)

// GRPCHandler implements CoreServiceServer
type GRPCHandler struct {
	workflow  *service.WorkflowService
	inventory *service.InventoryService
	payments  *service.PaymentService
	logger    zerolog.Logger
}

var _ CoreServiceServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(
	workflow *service.WorkflowService,
	inventory *service.InventoryService,
	payments *service.PaymentService,
	logger zerolog.Logger,
) *GRPCHandler {
	return &GRPCHandler{
		workflow:  workflow,
		inventory: inventory,
		payments:  payments,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

// ── Workflow ──────────────────────────────────────────────────────────────────

// CreateItem adds an item to an order
func (h *GRPCHandler) CreateItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}

	item, err := h.workflow.CreateItem(ctx, f.str("order_id"), f.str("product_name"), actor)
	if err != nil {
		return nil, h.fail("CreateItem", err)
	}
	return toStruct(item)
}

// Transition applies a workflow action to an order item
func (h *GRPCHandler) Transition(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}

	h.logger.Info().
		Str("item_id", f.str("item_id")).
		Str("action_id", f.str("action_id")).
		Msg("gRPC Transition called")

	res, err := h.workflow.Transition(ctx, f.str("order_id"), f.str("item_id"), f.str("action_id"), actor, f.str("note"))
	if err != nil {
		return nil, h.fail("Transition", err)
	}
	return toStruct(transitionResponse{
		Department: res.Department,
		Status:     res.Status,
		Item:       res.Item,
		Entry:      res.Entry,
	})
}

// PermittedActions lists what the caller may do to an item now
func (h *GRPCHandler) PermittedActions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}

	actions, err := h.workflow.AvailableActions(ctx, f.str("item_id"), actor)
	if err != nil {
		return nil, h.fail("PermittedActions", err)
	}
	return toStruct(map[string]any{"actions": orEmpty(actions)})
}

// ── Inventory ─────────────────────────────────────────────────────────────────

// Reserve holds stock against a job
func (h *GRPCHandler) Reserve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}
	qty, err := f.int64("quantity")
	if err != nil {
		return nil, errors.ToGRPC(err)
	}

	jm, item, err := h.inventory.Reserve(ctx, f.str("job_id"), f.str("stock_item_id"), qty, actor, f.str("note"))
	if err != nil {
		return nil, h.fail("Reserve", err)
	}
	return toStruct(materialResponse{JobMaterial: jm, StockItem: stockView(item)})
}

// Consume marks a reservation as used
func (h *GRPCHandler) Consume(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}

	jm, item, err := h.inventory.Consume(ctx, fields{req}.str("job_material_id"), actor)
	if err != nil {
		return nil, h.fail("Consume", err)
	}
	return toStruct(materialResponse{JobMaterial: jm, StockItem: stockView(item)})
}

// Release returns a reservation to stock
func (h *GRPCHandler) Release(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}

	jm, item, err := h.inventory.Release(ctx, fields{req}.str("job_material_id"), actor)
	if err != nil {
		return nil, h.fail("Release", err)
	}
	return toStruct(materialResponse{JobMaterial: jm, StockItem: stockView(item)})
}

// AdjustStock changes a stock item's total
func (h *GRPCHandler) AdjustStock(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}
	qty, err := f.int64("quantity")
	if err != nil {
		return nil, errors.ToGRPC(err)
	}

	item, history, err := h.inventory.AdjustStock(ctx, f.str("stock_item_id"), qty, f.str("mode"), actor, f.str("note"))
	if err != nil {
		return nil, h.fail("AdjustStock", err)
	}
	return toStruct(map[string]any{"stock_item": stockView(item), "history": history})
}

// ── Payments ──────────────────────────────────────────────────────────────────

// RecordCredit records money received from a customer
func (h *GRPCHandler) RecordCredit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}
	amount, err := f.decimal("amount")
	if err != nil {
		return nil, errors.ToGRPC(err)
	}

	entry, err := h.payments.RecordCredit(ctx, f.str("customer_id"), amount, f.str("method"), f.str("note"), actor)
	if err != nil {
		return nil, h.fail("RecordCredit", err)
	}
	return toStruct(entry)
}

// ApplyToOrder spends customer credit on an order
func (h *GRPCHandler) ApplyToOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}
	amount, err := f.decimal("amount")
	if err != nil {
		return nil, errors.ToGRPC(err)
	}

	entry, err := h.payments.ApplyToOrder(ctx, f.str("customer_id"), f.str("order_id"), amount, f.str("note"), actor)
	if err != nil {
		return nil, h.fail("ApplyToOrder", err)
	}
	return toStruct(entry)
}

// AddPayment records a payment, optionally applied to an order
func (h *GRPCHandler) AddPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := auth.ActorFromContext(ctx)
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}
	amount, err := f.decimal("amount")
	if err != nil {
		return nil, errors.ToGRPC(err)
	}

	entries, err := h.payments.AddPayment(ctx, service.AddPaymentRequest{
		CustomerID: f.str("customer_id"),
		Amount:     amount,
		Method:     f.str("method"),
		Note:       f.str("note"),
		OrderID:    f.str("order_id"),
	}, actor)
	if err != nil {
		return nil, h.fail("AddPayment", err)
	}
	return toStruct(map[string]any{"entries": entries})
}

// GetCustomerBalance returns a customer's balance
func (h *GRPCHandler) GetCustomerBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.ActorFromContext(ctx); err != nil {
		return nil, errors.ToGRPC(err)
	}

	balance, err := h.payments.GetCustomerBalance(ctx, fields{req}.str("customer_id"))
	if err != nil {
		return nil, h.fail("GetCustomerBalance", err)
	}
	return toStruct(balance)
}

// GetOrderPaymentStatus reports payment status for one order ("order_id",
// "total") or many ("orders": {id: total}).
func (h *GRPCHandler) GetOrderPaymentStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.ActorFromContext(ctx); err != nil {
		return nil, errors.ToGRPC(err)
	}
	f := fields{req}

	if orders := req.GetFields()["orders"].GetStructValue(); orders != nil {
		totals := make(map[string]decimal.Decimal, len(orders.GetFields()))
		for id := range orders.GetFields() {
			total, err := fields{orders}.decimal(id)
			if err != nil {
				return nil, errors.ToGRPC(err)
			}
			totals[id] = total
		}
		statuses, err := h.payments.GetOrdersPaymentStatus(ctx, totals)
		if err != nil {
			return nil, h.fail("GetOrderPaymentStatus", err)
		}
		return toStruct(map[string]any{"orders": statuses})
	}

	total, err := f.decimal("total")
	if err != nil {
		return nil, errors.ToGRPC(err)
	}
	status, err := h.payments.GetOrderPaymentStatus(ctx, f.str("order_id"), total)
	if err != nil {
		return nil, h.fail("GetOrderPaymentStatus", err)
	}
	return toStruct(status)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (h *GRPCHandler) fail(method string, err error) error {
	if errors.GetCode(err) == errors.ErrCodeInternal {
		h.logger.Error().Err(err).Str("method", method).Msg("gRPC call failed")
	}
	return errors.ToGRPC(err)
}

// fields reads typed values from a Struct request.
type fields struct {
	s *structpb.Struct
}

func (f fields) str(key string) string {
	return f.s.GetFields()[key].GetStringValue()
}

func (f fields) int64(key string) (int64, error) {
	v, ok := f.s.GetFields()[key]
	if !ok {
		return 0, errors.InvalidInput(key, "is required")
	}
	n := v.GetNumberValue()
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum || n != math.Trunc(n) {
		return 0, errors.InvalidInput(key, "must be an integer")
	}
	return int64(n), nil
}

// decimal accepts amounts as strings ("12.50") or numbers.
func (f fields) decimal(key string) (decimal.Decimal, error) {
	v, ok := f.s.GetFields()[key]
	if !ok {
		return decimal.Zero, errors.InvalidInput(key, "is required")
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Zero, errors.InvalidInput(key, "must be a decimal amount")
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	default:
		return decimal.Zero, errors.InvalidInput(key, "must be a decimal amount")
	}
}

// toStruct converts a JSON-tagged value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.ToGRPC(errors.Wrap(err, errors.ErrCodeInternal, "failed to encode response"))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, errors.ToGRPC(errors.Wrap(err, errors.ErrCodeInternal, "failed to encode response"))
	}
	return out, nil
}
