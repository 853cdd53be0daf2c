package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/tableservice/internal/auth"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/middleware"
	"github.com/kiwari-pos/tableservice/internal/service"
)

// TableService defines the coordinator methods needed by table handlers.
// Satisfied by *service.Coordinator; narrow interface for testability.
type TableService interface {
	ListTables(ctx context.Context) ([]database.DiningTable, error)
	GetTableDetail(ctx context.Context, tableID uuid.UUID) (*service.TableDetail, error)
	LockTable(ctx context.Context, tableID, holder uuid.UUID) (database.DiningTable, error)
	UnlockTable(ctx context.Context, tableID, holder uuid.UUID) (bool, error)
	OpenTable(ctx context.Context, req service.OpenTableRequest) (*service.OrderResult, error)
	FreeTable(ctx context.Context, req service.FreeTableRequest) (*service.OrderResult, error)
}

// TableHandler handles dining table endpoints.
type TableHandler struct {
	svc TableService
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(svc TableService) *TableHandler {
	return &TableHandler{svc: svc}
}

// RegisterRoutes registers table endpoints on the given Chi router.
// Expected to be mounted at /tables.
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/lock", h.Lock)
	r.Delete("/{id}/lock", h.Unlock)
	r.Post("/{id}/open", h.Open)
	r.Post("/{id}/free", h.Free)
}

// --- Request / Response types ---

type openTableRequest struct {
	Covers int32         `json:"covers"`
	Items  []itemRequest `json:"items"`
	Send   bool          `json:"send"`
}

type freeTableRequest struct {
	PrintPreconto bool `json:"print_preconto"`
}

type tableDetailResponse struct {
	Table tableResponse  `json:"table"`
	Order *orderResponse `json:"order"`
}

type unlockResponse struct {
	Released bool `json:"released"`
}

// --- Handlers ---

// List handles GET /tables.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.svc.ListTables(r.Context())
	if err != nil {
		writeError(w, "list tables", err)
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /tables/{id}.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	tableID, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	detail, err := h.svc.GetTableDetail(r.Context(), tableID)
	if err != nil {
		writeError(w, "get table", err)
		return
	}

	resp := tableDetailResponse{Table: toTableResponse(detail.Table)}
	if detail.OrderDetail != nil {
		o := toOrderDetailResponse(detail.OrderDetail)
		resp.Order = &o
	}
	writeJSON(w, http.StatusOK, resp)
}

// Lock handles POST /tables/{id}/lock.
func (h *TableHandler) Lock(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	tableID, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	table, err := h.svc.LockTable(r.Context(), tableID, claims.UserID)
	if err != nil {
		writeError(w, "lock table", err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// Unlock handles DELETE /tables/{id}/lock. Releasing a lock the caller does
// not hold is not an error; released reports whether anything changed.
func (h *TableHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	tableID, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	released, err := h.svc.UnlockTable(r.Context(), tableID, claims.UserID)
	if err != nil {
		writeError(w, "unlock table", err)
		return
	}
	writeJSON(w, http.StatusOK, unlockResponse{Released: released})
}

// Open handles POST /tables/{id}/open.
func (h *TableHandler) Open(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	tableID, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	var req openTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	items, err := toItemInputs(req.Items)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.svc.OpenTable(r.Context(), service.OpenTableRequest{
		TableID: tableID,
		UserID:  claims.UserID,
		Covers:  req.Covers,
		Items:   items,
		Send:    req.Send,
	})
	if err != nil {
		writeError(w, "open table", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResultResponse(result))
}

// Free handles POST /tables/{id}/free. The body is optional.
func (h *TableHandler) Free(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	tableID, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	var req freeTableRequest
	if err := decodeOptional(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	result, err := h.svc.FreeTable(r.Context(), service.FreeTableRequest{
		TableID:       tableID,
		UserID:        claims.UserID,
		PrintPreconto: req.PrintPreconto,
	})
	if err != nil {
		writeError(w, "free table", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResultResponse(result))
}

// --- Helpers ---

func parseID(w http.ResponseWriter, r *http.Request, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		badRequest(w, "invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func requireClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return nil, false
	}
	return claims, true
}

// decodeOptional decodes a JSON body, leaving v untouched when there is none.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
