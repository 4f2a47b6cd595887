package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ops-printshop/internal/platform/auth"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/errors"
	"github.com/pesio-ai/be-ops-printshop/internal/platform/logger"
	"github.com/pesio-ai/be-ops-printshop/internal/repository"
	"github.com/pesio-ai/be-ops-printshop/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	workflow  *service.WorkflowService
	inventory *service.InventoryService
	payments  *service.PaymentService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	workflow *service.WorkflowService,
	inventory *service.InventoryService,
	payments *service.PaymentService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		workflow:  workflow,
		inventory: inventory,
		payments:  payments,
		log:       log,
	}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/workflow", h.GetWorkflow)

	mux.HandleFunc("/api/v1/items", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListOrderItems(w, r)
		case http.MethodPost:
			h.CreateItem(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/v1/items/get", h.GetItem)
	mux.HandleFunc("/api/v1/items/actions", h.AvailableActions)
	mux.HandleFunc("/api/v1/items/transition", h.Transition)
	mux.HandleFunc("/api/v1/items/assign", h.AssignItem)

	mux.HandleFunc("/api/v1/orders/timeline", h.Timeline)
	mux.HandleFunc("/api/v1/orders/notes", h.AddNote)
	mux.HandleFunc("/api/v1/orders/payments", h.OrderEntries)
	mux.HandleFunc("/api/v1/orders/payment-status", h.OrderPaymentStatus)

	mux.HandleFunc("/api/v1/stock", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListStockItems(w, r)
		case http.MethodPost:
			h.CreateStockItem(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/v1/stock/get", h.GetStockItem)
	mux.HandleFunc("/api/v1/stock/adjust", h.AdjustStock)
	mux.HandleFunc("/api/v1/stock/retire", h.RetireStockItem)
	mux.HandleFunc("/api/v1/stock/history", h.StockHistory)
	mux.HandleFunc("/api/v1/stock/reconcile", h.Reconcile)

	mux.HandleFunc("/api/v1/materials", h.ListJobMaterials)
	mux.HandleFunc("/api/v1/materials/reserve", h.Reserve)
	mux.HandleFunc("/api/v1/materials/consume", h.Consume)
	mux.HandleFunc("/api/v1/materials/release", h.Release)

	mux.HandleFunc("/api/v1/payments", h.AddPayment)
	mux.HandleFunc("/api/v1/payments/credit", h.RecordCredit)
	mux.HandleFunc("/api/v1/payments/apply", h.ApplyToOrder)

	mux.HandleFunc("/api/v1/customers/balance", h.CustomerBalance)
	mux.HandleFunc("/api/v1/customers/entries", h.CustomerEntries)
}

// ── Workflow ──────────────────────────────────────────────────────────────────

// GetWorkflow returns the workflow configuration in effect.
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	h.writeJSON(w, http.StatusOK, h.workflow.Config())
}

type createItemRequest struct {
	OrderID     string `json:"order_id"`
	ProductName string `json:"product_name"`
}

// CreateItem handles create order item requests
func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	item, err := h.workflow.CreateItem(r.Context(), req.OrderID, req.ProductName, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

// GetItem handles get order item requests
func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	id, ok := h.requireQuery(w, r, "id")
	if !ok {
		return
	}

	item, err := h.workflow.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

// ListOrderItems handles list order items requests
func (h *HTTPHandler) ListOrderItems(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	orderID, ok := h.requireQuery(w, r, "order_id")
	if !ok {
		return
	}

	items, err := h.workflow.ListOrderItems(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": orEmpty(items)})
}

// AvailableActions returns the actions the caller may take on an item.
func (h *HTTPHandler) AvailableActions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.begin(w, r, http.MethodGet, nil)
	if !ok {
		return
	}
	id, ok := h.requireQuery(w, r, "id")
	if !ok {
		return
	}

	actions, err := h.workflow.AvailableActions(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"actions": orEmpty(actions)})
}

type transitionRequest struct {
	OrderID  string `json:"order_id"`
	ItemID   string `json:"item_id"`
	ActionID string `json:"action_id"`
	Note     string `json:"note"`
}

type transitionResponse struct {
	Department string                    `json:"department"`
	Status     string                    `json:"status"`
	Item       *repository.OrderItem     `json:"item"`
	Entry      *repository.TimelineEntry `json:"timeline_entry,omitempty"`
}

// Transition handles order item transition requests
func (h *HTTPHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	res, err := h.workflow.Transition(r.Context(), req.OrderID, req.ItemID, req.ActionID, actor, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transitionResponse{
		Department: res.Department,
		Status:     res.Status,
		Item:       res.Item,
		Entry:      res.Entry,
	})
}

type assignRequest struct {
	ItemID   string `json:"item_id"`
	Assignee string `json:"assignee"`
}

// AssignItem handles order item assignment requests
func (h *HTTPHandler) AssignItem(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	item, err := h.workflow.AssignItem(r.Context(), req.ItemID, req.Assignee, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

// Timeline handles order timeline requests
func (h *HTTPHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	orderID, ok := h.requireQuery(w, r, "order_id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	entries, err := h.workflow.Timeline(r.Context(), orderID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": orEmpty(entries)})
}

type noteRequest struct {
	OrderID string `json:"order_id"`
	ItemID  string `json:"item_id"`
	Note    string `json:"note"`
}

// AddNote handles order note requests
func (h *HTTPHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	entry, err := h.workflow.AddNote(r.Context(), req.OrderID, req.ItemID, actor, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// ── Inventory ─────────────────────────────────────────────────────────────────

type stockItemResponse struct {
	*repository.StockItem
	Available int64 `json:"available"`
}

func stockView(item *repository.StockItem) stockItemResponse {
	return stockItemResponse{StockItem: item, Available: item.Available()}
}

type createStockRequest struct {
	Name             string `json:"name"`
	Grade            string `json:"grade"`
	WeightGSM        int    `json:"weight_gsm"`
	Total            int64  `json:"total"`
	ReorderThreshold int64  `json:"reorder_threshold"`
}

// CreateStockItem handles create stock item requests
func (h *HTTPHandler) CreateStockItem(w http.ResponseWriter, r *http.Request) {
	var req createStockRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	item, err := h.inventory.CreateStockItem(r.Context(), service.NewStockItem{
		Name:             req.Name,
		Grade:            req.Grade,
		WeightGSM:        req.WeightGSM,
		Total:            req.Total,
		ReorderThreshold: req.ReorderThreshold,
	}, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, stockView(item))
}

// GetStockItem handles get stock item requests
func (h *HTTPHandler) GetStockItem(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	id, ok := h.requireQuery(w, r, "id")
	if !ok {
		return
	}

	item, err := h.inventory.GetStockItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stockView(item))
}

// ListStockItems handles list stock items requests
func (h *HTTPHandler) ListStockItems(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	includeRetired, _ := strconv.ParseBool(r.URL.Query().Get("include_retired"))

	items, err := h.inventory.ListStockItems(r.Context(), includeRetired)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]stockItemResponse, 0, len(items))
	for _, item := range items {
		views = append(views, stockView(item))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"stock_items": views})
}

type adjustRequest struct {
	StockItemID string `json:"stock_item_id"`
	Quantity    int64  `json:"quantity"`
	Mode        string `json:"mode"`
	Note        string `json:"note"`
}

// AdjustStock handles stock adjustment requests
func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	item, history, err := h.inventory.AdjustStock(r.Context(), req.StockItemID, req.Quantity, req.Mode, actor, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stock_item": stockView(item),
		"history":    history,
	})
}

type stockItemRequest struct {
	StockItemID string `json:"stock_item_id"`
}

// RetireStockItem handles retire stock item requests
func (h *HTTPHandler) RetireStockItem(w http.ResponseWriter, r *http.Request) {
	var req stockItemRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	item, err := h.inventory.RetireStockItem(r.Context(), req.StockItemID, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stockView(item))
}

// StockHistory handles stock history requests
func (h *HTTPHandler) StockHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	id, ok := h.requireQuery(w, r, "id")
	if !ok {
		return
	}

	history, err := h.inventory.StockHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": orEmpty(history)})
}

// Reconcile handles stock reconcile requests
func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	id, ok := h.requireQuery(w, r, "id")
	if !ok {
		return
	}

	report, err := h.inventory.Reconcile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

type reserveRequest struct {
	JobID       string `json:"job_id"`
	StockItemID string `json:"stock_item_id"`
	Quantity    int64  `json:"quantity"`
	Note        string `json:"note"`
}

type materialResponse struct {
	JobMaterial *repository.JobMaterial `json:"job_material"`
	StockItem   stockItemResponse       `json:"stock_item"`
}

// Reserve handles material reservation requests
func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	jm, item, err := h.inventory.Reserve(r.Context(), req.JobID, req.StockItemID, req.Quantity, actor, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, materialResponse{JobMaterial: jm, StockItem: stockView(item)})
}

type jobMaterialRequest struct {
	JobMaterialID string `json:"job_material_id"`
}

// Consume handles material consumption requests
func (h *HTTPHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req jobMaterialRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	jm, item, err := h.inventory.Consume(r.Context(), req.JobMaterialID, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, materialResponse{JobMaterial: jm, StockItem: stockView(item)})
}

// Release handles material release requests
func (h *HTTPHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req jobMaterialRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	jm, item, err := h.inventory.Release(r.Context(), req.JobMaterialID, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, materialResponse{JobMaterial: jm, StockItem: stockView(item)})
}

// ListJobMaterials handles list job materials requests
func (h *HTTPHandler) ListJobMaterials(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	jobID, ok := h.requireQuery(w, r, "job_id")
	if !ok {
		return
	}

	materials, err := h.inventory.ListJobMaterials(r.Context(), jobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"job_materials": orEmpty(materials)})
}

// ── Payments ──────────────────────────────────────────────────────────────────

type creditRequest struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Note       string          `json:"note"`
}

// RecordCredit handles customer credit requests
func (h *HTTPHandler) RecordCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	entry, err := h.payments.RecordCredit(r.Context(), req.CustomerID, req.Amount, req.Method, req.Note, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

type applyRequest struct {
	CustomerID string          `json:"customer_id"`
	OrderID    string          `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note"`
}

// ApplyToOrder handles apply-credit-to-order requests
func (h *HTTPHandler) ApplyToOrder(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	entry, err := h.payments.ApplyToOrder(r.Context(), req.CustomerID, req.OrderID, req.Amount, req.Note, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

type paymentRequest struct {
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Note       string          `json:"note"`
	OrderID    string          `json:"order_id"`
}

// AddPayment handles payment requests
func (h *HTTPHandler) AddPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	actor, ok := h.begin(w, r, http.MethodPost, &req)
	if !ok {
		return
	}

	entries, err := h.payments.AddPayment(r.Context(), service.AddPaymentRequest{
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Method:     req.Method,
		Note:       req.Note,
		OrderID:    req.OrderID,
	}, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"entries": entries})
}

// CustomerBalance handles customer balance requests
func (h *HTTPHandler) CustomerBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	customerID, ok := h.requireQuery(w, r, "customer_id")
	if !ok {
		return
	}

	balance, err := h.payments.GetCustomerBalance(r.Context(), customerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// CustomerEntries handles customer ledger requests
func (h *HTTPHandler) CustomerEntries(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	customerID, ok := h.requireQuery(w, r, "customer_id")
	if !ok {
		return
	}

	entries, err := h.payments.CustomerEntries(r.Context(), customerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": orEmpty(entries)})
}

// OrderEntries handles order payment history requests
func (h *HTTPHandler) OrderEntries(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
		return
	}
	orderID, ok := h.requireQuery(w, r, "order_id")
	if !ok {
		return
	}

	entries, err := h.payments.OrderEntries(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": orEmpty(entries)})
}

type paymentStatusRequest struct {
	Orders map[string]decimal.Decimal `json:"orders"` // order id -> order total
}

// OrderPaymentStatus handles payment status requests. GET takes one order
// (order_id, total); POST takes a batch.
func (h *HTTPHandler) OrderPaymentStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.begin(w, r, http.MethodGet, nil); !ok {
			return
		}
		orderID, ok := h.requireQuery(w, r, "order_id")
		if !ok {
			return
		}
		total, err := decimal.NewFromString(r.URL.Query().Get("total"))
		if err != nil {
			h.writeError(w, r, errors.InvalidInput("total", "must be a decimal amount"))
			return
		}
		status, err := h.payments.GetOrderPaymentStatus(r.Context(), orderID, total)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, status)

	case http.MethodPost:
		var req paymentStatusRequest
		if _, ok := h.begin(w, r, http.MethodPost, &req); !ok {
			return
		}
		statuses, err := h.payments.GetOrdersPaymentStatus(r.Context(), req.Orders)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"orders": statuses})

	default:
		methodNotAllowed(w)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type errorResponse struct {
	Code    errors.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// begin checks the method, resolves the actor and decodes the body into
// dst when dst is non-nil. It writes the error response itself.
func (h *HTTPHandler) begin(w http.ResponseWriter, r *http.Request, method string, dst any) (auth.Actor, bool) {
	if r.Method != method {
		methodNotAllowed(w)
		return auth.Actor{}, false
	}
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return auth.Actor{}, false
	}
	if dst != nil {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
			return auth.Actor{}, false
		}
	}
	return actor, true
}

func (h *HTTPHandler) requireQuery(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		h.writeError(w, r, errors.InvalidInput(key, "is required"))
		return "", false
	}
	return v, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError renders err as {code, message}. Internal details never reach
// the client; they are logged instead.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.Error
	if !errors.As(err, &appErr) {
		appErr = errors.Wrap(err, errors.ErrCodeInternal, "unexpected error")
	}

	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("code", string(appErr.Code)).
			Msg("Request failed")
	}

	resp := errorResponse{Code: appErr.Code, Message: appErr.PublicMessage()}
	switch appErr.Code {
	case errors.ErrCodeInsufficientStock, errors.ErrCodeInsufficientBalance, errors.ErrCodeInvalidInput:
		resp.Details = appErr.Details
	}
	h.writeJSON(w, status, resp)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
