package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/service"
)

// OrderService defines the coordinator methods needed by order handlers.
// Satisfied by *service.Coordinator; narrow interface for testability.
type OrderService interface {
	OpenTakeaway(ctx context.Context, req service.TakeawayRequest) (*service.OrderResult, error)
	GetOrderDetail(ctx context.Context, orderID uuid.UUID) (*service.OrderDetail, error)
	UpdateOrder(ctx context.Context, req service.UpdateOrderRequest) (*service.OrderResult, error)
	CancelOrder(ctx context.Context, orderID, holder uuid.UUID) (*service.OrderResult, error)
	AddItems(ctx context.Context, orderID, holder uuid.UUID, items []service.ItemInput) (*service.OrderResult, error)
	RemoveItem(ctx context.Context, orderID, itemID, holder uuid.UUID) (*service.OrderResult, error)
	SendOrder(ctx context.Context, orderID, holder uuid.UUID) (*service.OrderResult, error)
	CompleteOrder(ctx context.Context, orderID, holder uuid.UUID) (*service.OrderResult, error)
	RequestPreconto(ctx context.Context, orderID, holder uuid.UUID) (*database.PrintQueueJob, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/takeaway", h.CreateTakeaway)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Cancel)
	r.Post("/{id}/items", h.AddItems)
	r.Delete("/{id}/items/{itemID}", h.RemoveItem)
	r.Post("/{id}/send", h.Send)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/preconto", h.Preconto)
}

// --- Request types ---

type itemRequest struct {
	ProductID     string   `json:"product_id"`
	Quantity      int32    `json:"quantity"`
	Flavors       []string `json:"flavors"`
	SupplementIDs []string `json:"supplement_ids"`
	Course        *int32   `json:"course"`
	Note          string   `json:"note"`
}

type takeawayRequest struct {
	Items []itemRequest `json:"items"`
	Send  bool          `json:"send"`
}

type addItemsRequest struct {
	Items []itemRequest `json:"items"`
}

// updateOrderRequest leaves absent fields unchanged; "items": [] clears the order.
type updateOrderRequest struct {
	Covers *int32         `json:"covers"`
	Items  *[]itemRequest `json:"items"`
}

// --- Handlers ---

// CreateTakeaway handles POST /orders/takeaway.
func (h *OrderHandler) CreateTakeaway(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req takeawayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		badRequest(w, "items are required")
		return
	}
	items, err := toItemInputs(req.Items)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.svc.OpenTakeaway(r.Context(), service.TakeawayRequest{
		UserID: claims.UserID,
		Items:  items,
		Send:   req.Send,
	})
	if err != nil {
		writeError(w, "create takeaway", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResultResponse(result))
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	detail, err := h.svc.GetOrderDetail(r.Context(), orderID)
	if err != nil {
		writeError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailResponse(detail))
}

// Update handles PUT /orders/{id}.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	svcReq := service.UpdateOrderRequest{
		OrderID: orderID,
		UserID:  claims.UserID,
		Covers:  req.Covers,
	}
	if req.Items != nil {
		items, err := toItemInputs(*req.Items)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		svcReq.Items = items
	}

	result, err := h.svc.UpdateOrder(r.Context(), svcReq)
	if err != nil {
		writeError(w, "update order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResultResponse(result))
}

// Cancel handles DELETE /orders/{id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel order", h.svc.CancelOrder)
}

// AddItems handles POST /orders/{id}/items.
func (h *OrderHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		badRequest(w, "items are required")
		return
	}
	items, err := toItemInputs(req.Items)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.svc.AddItems(r.Context(), orderID, claims.UserID, items)
	if err != nil {
		writeError(w, "add items", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResultResponse(result))
}

// RemoveItem handles DELETE /orders/{id}/items/{itemID}.
func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemID", "item")
	if !ok {
		return
	}

	result, err := h.svc.RemoveItem(r.Context(), orderID, itemID, claims.UserID)
	if err != nil {
		writeError(w, "remove item", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResultResponse(result))
}

// Send handles POST /orders/{id}/send.
func (h *OrderHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "send order", h.svc.SendOrder)
}

// Complete handles POST /orders/{id}/complete.
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "complete order", h.svc.CompleteOrder)
}

// Preconto handles POST /orders/{id}/preconto.
func (h *OrderHandler) Preconto(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	job, err := h.svc.RequestPreconto(r.Context(), orderID, claims.UserID)
	if err != nil {
		writeError(w, "request preconto", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPrintJobResponse(*job))
}

// transition runs a body-less order action on behalf of the caller.
func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, orderID, holder uuid.UUID) (*service.OrderResult, error)) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	result, err := fn(r.Context(), orderID, claims.UserID)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResultResponse(result))
}

// --- Helpers ---

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// toItemInputs parses identifiers; range checks are left to the service.
func toItemInputs(reqs []itemRequest) ([]service.ItemInput, error) {
	items := make([]service.ItemInput, len(reqs))
	for i, req := range reqs {
		productID, err := uuid.Parse(req.ProductID)
		if err != nil {
			return nil, errors.New(formatItemError(i, "invalid product_id"))
		}
		supps := make([]uuid.UUID, len(req.SupplementIDs))
		for j, s := range req.SupplementIDs {
			if supps[j], err = uuid.Parse(s); err != nil {
				return nil, errors.New(formatItemError(i, "invalid supplement_ids["+strconv.Itoa(j)+"]"))
			}
		}
		items[i] = service.ItemInput{
			ProductID:     productID,
			Quantity:      req.Quantity,
			Flavors:       req.Flavors,
			SupplementIDs: supps,
			Course:        req.Course,
			Note:          req.Note,
		}
	}
	return items, nil
}
