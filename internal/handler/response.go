package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/tableservice/internal/apperror"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

type errorResponse struct {
	Error string         `json:"error"`
	Code  string         `json:"code,omitempty"`
	State map[string]any `json:"state,omitempty"`
}

// writeError maps a service error onto its status code and body. op names the
// failing action in the server log.
func writeError(w http.ResponseWriter, op string, err error) {
	status := apperror.HTTPStatus(err)
	switch {
	case apperror.Is(err, apperror.CodeInconsistentState):
		log.Printf("CRITICAL: %s: %v state=%v", op, err, apperror.State(err))
	case status >= http.StatusInternalServerError:
		log.Printf("ERROR: %s: %v", op, err)
	}
	writeJSON(w, status, errorResponse{
		Error: apperror.Message(err),
		Code:  apperror.Code(err),
		State: apperror.State(err),
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: apperror.CodeValidation})
}

// --- Response types ---

type tableResponse struct {
	ID        uuid.UUID  `json:"id"`
	Number    int32      `json:"number"`
	Status    string     `json:"status"`
	Covers    int32      `json:"covers"`
	Total     string     `json:"total"`
	LockedBy  *uuid.UUID `json:"locked_by"`
	LockedAt  *time.Time `json:"locked_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type orderResponse struct {
	ID          uuid.UUID           `json:"id"`
	TableID     *uuid.UUID          `json:"table_id"`
	UserID      uuid.UUID           `json:"user_id"`
	Status      string              `json:"status"`
	Covers      int32               `json:"covers"`
	Subtotal    string              `json:"subtotal"`
	CoverCharge string              `json:"cover_charge"`
	Total       string              `json:"total"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	SentAt      *time.Time          `json:"sent_at"`
	CompletedAt *time.Time          `json:"completed_at"`
	CancelledAt *time.Time          `json:"cancelled_at"`
	Items       []orderItemResponse `json:"items"`
	Commands    []commandResponse   `json:"commands,omitempty"`
}

type supplementResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price string    `json:"price"`
}

type orderItemResponse struct {
	ID               uuid.UUID            `json:"id"`
	ProductID        uuid.UUID            `json:"product_id"`
	ProductName      string               `json:"product_name"`
	CommandID        *uuid.UUID           `json:"command_id"`
	Quantity         int32                `json:"quantity"`
	Flavors          []string             `json:"flavors"`
	Supplements      []supplementResponse `json:"supplements"`
	UnitPrice        string               `json:"unit_price"`
	SupplementsTotal string               `json:"supplements_total"`
	TotalPrice       string               `json:"total_price"`
	Course           int32                `json:"course"`
	Note             *string              `json:"note"`
	Sent             bool                 `json:"sent"`
}

type commandResponse struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       uuid.UUID  `json:"order_id"`
	CommandNumber int32      `json:"command_number"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at"`
	PrintedAt     *time.Time `json:"printed_at"`
}

type printJobResponse struct {
	ID           uuid.UUID  `json:"id"`
	PrintType    string     `json:"print_type"`
	OrderID      *uuid.UUID `json:"order_id"`
	CommandID    *uuid.UUID `json:"command_id"`
	TableID      *uuid.UUID `json:"table_id"`
	Printer      *string    `json:"printer"`
	Status       string     `json:"status"`
	Attempts     int32      `json:"attempts"`
	MaxAttempts  int32      `json:"max_attempts"`
	ErrorMessage *string    `json:"error_message"`
	ClaimedBy    *string    `json:"claimed_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	PrintedAt    *time.Time `json:"printed_at"`
	FailedAt     *time.Time `json:"failed_at"`
}

// orderResultResponse is returned by every order transition.
type orderResultResponse struct {
	Order    orderResponse     `json:"order"`
	Table    *tableResponse    `json:"table,omitempty"`
	Command  *commandResponse  `json:"command,omitempty"`
	PrintJob *printJobResponse `json:"print_job,omitempty"`
}

// --- Converters ---

func numericToString(n pgtype.Numeric) string {
	return database.NumericToDecimal(n).StringFixed(2)
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func toTableResponse(t database.DiningTable) tableResponse {
	return tableResponse{
		ID:        t.ID,
		Number:    t.Number,
		Status:    string(t.Status),
		Covers:    t.Covers,
		Total:     numericToString(t.Total),
		LockedBy:  uuidPtr(t.LockedBy),
		LockedAt:  timePtr(t.LockedAt),
		UpdatedAt: t.UpdatedAt,
	}
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		TableID:     uuidPtr(o.TableID),
		UserID:      o.UserID,
		Status:      string(o.Status),
		Covers:      o.Covers,
		Subtotal:    numericToString(o.Subtotal),
		CoverCharge: numericToString(o.CoverCharge),
		Total:       numericToString(o.Total),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		SentAt:      timePtr(o.SentAt),
		CompletedAt: timePtr(o.CompletedAt),
		CancelledAt: timePtr(o.CancelledAt),
		Items:       make([]orderItemResponse, len(items)),
	}
	for i, item := range items {
		resp.Items[i] = toOrderItemResponse(item)
	}
	return resp
}

func toOrderItemResponse(item database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:               item.ID,
		ProductID:        item.ProductID,
		ProductName:      item.ProductName,
		CommandID:        uuidPtr(item.CommandID),
		Quantity:         item.Quantity,
		Flavors:          item.Flavors,
		Supplements:      []supplementResponse{},
		UnitPrice:        numericToString(item.UnitPrice),
		SupplementsTotal: numericToString(item.SupplementsTotal),
		TotalPrice:       numericToString(item.TotalPrice),
		Course:           item.Course,
		Note:             textPtr(item.CustomNote),
		Sent:             item.CommandID.Valid,
	}
	if resp.Flavors == nil {
		resp.Flavors = []string{}
	}
	supps, err := database.DecodeSupplements(item.Supplements)
	if err != nil {
		log.Printf("ERROR: decode supplements of item %s: %v", item.ID, err)
	}
	for _, s := range supps {
		resp.Supplements = append(resp.Supplements, supplementResponse{
			ID:    s.ID,
			Name:  s.Name,
			Price: s.Price.StringFixed(2),
		})
	}
	return resp
}

func toCommandResponse(c database.Command) commandResponse {
	return commandResponse{
		ID:            c.ID,
		OrderID:       c.OrderID,
		CommandNumber: c.CommandNumber,
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt,
		SentAt:        timePtr(c.SentAt),
		PrintedAt:     timePtr(c.PrintedAt),
	}
}

func toPrintJobResponse(j database.PrintQueueJob) printJobResponse {
	return printJobResponse{
		ID:           j.ID,
		PrintType:    string(j.PrintType),
		OrderID:      uuidPtr(j.OrderID),
		CommandID:    uuidPtr(j.CommandID),
		TableID:      uuidPtr(j.TableID),
		Printer:      textPtr(j.Printer),
		Status:       string(j.Status),
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		ErrorMessage: textPtr(j.ErrorMessage),
		ClaimedBy:    textPtr(j.ClaimedBy),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		PrintedAt:    timePtr(j.PrintedAt),
		FailedAt:     timePtr(j.FailedAt),
	}
}

func toOrderResultResponse(r *service.OrderResult) orderResultResponse {
	resp := orderResultResponse{Order: toOrderResponse(r.Order, r.Items)}
	if r.Table != nil {
		t := toTableResponse(*r.Table)
		resp.Table = &t
	}
	if r.Command != nil {
		c := toCommandResponse(*r.Command)
		resp.Command = &c
	}
	if r.PrintJob != nil {
		j := toPrintJobResponse(*r.PrintJob)
		resp.PrintJob = &j
	}
	return resp
}

func toOrderDetailResponse(d *service.OrderDetail) orderResponse {
	resp := toOrderResponse(d.Order, d.Items)
	resp.Commands = make([]commandResponse, len(d.Commands))
	for i, c := range d.Commands {
		resp.Commands[i] = toCommandResponse(c)
	}
	return resp
}
