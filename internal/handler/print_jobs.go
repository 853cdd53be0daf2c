package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/printqueue"
)

// PrintQueue defines the queue methods needed by print job handlers.
// Satisfied by *printqueue.Queue.
type PrintQueue interface {
	List(ctx context.Context, f printqueue.ListFilter) ([]database.PrintQueueJob, error)
	Stats(ctx context.Context) (map[database.PrintJobStatus]int64, error)
	Get(ctx context.Context, jobID uuid.UUID) (database.PrintQueueJob, error)
	Retry(ctx context.Context, jobID uuid.UUID) (database.PrintQueueJob, error)
	Delete(ctx context.Context, jobID uuid.UUID) error
	Enqueue(ctx context.Context, p printqueue.Payload) (database.PrintQueueJob, error)
}

// PrintJobHandler handles print queue endpoints.
type PrintJobHandler struct {
	queue PrintQueue
}

// NewPrintJobHandler creates a new PrintJobHandler.
func NewPrintJobHandler(queue PrintQueue) *PrintJobHandler {
	return &PrintJobHandler{queue: queue}
}

// RegisterRoutes registers print job endpoints on the given Chi router.
// Expected to be mounted at /print-jobs.
func (h *PrintJobHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Post("/test", h.Test)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/retry", h.Retry)
	r.Delete("/{id}", h.Delete)
}

type testPrintRequest struct {
	Printer string `json:"printer"`
}

type printJobListResponse struct {
	Jobs   []printJobResponse `json:"jobs"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// List handles GET /print-jobs?status=failed&limit=50&offset=0.
func (h *PrintJobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	filter := printqueue.ListFilter{Limit: int32(limit), Offset: int32(offset)}
	if s := r.URL.Query().Get("status"); s != "" {
		status := database.PrintJobStatus(s)
		if !isValidPrintJobStatus(status) {
			badRequest(w, "invalid status")
			return
		}
		filter.Status = &status
	}

	jobs, err := h.queue.List(r.Context(), filter)
	if err != nil {
		writeError(w, "list print jobs", err)
		return
	}

	resp := make([]printJobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = toPrintJobResponse(j)
	}
	writeJSON(w, http.StatusOK, printJobListResponse{Jobs: resp, Limit: limit, Offset: offset})
}

// Stats handles GET /print-jobs/stats.
func (h *PrintJobHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		writeError(w, "print job stats", err)
		return
	}
	resp := make(map[string]int64, len(stats))
	for status, n := range stats {
		resp[string(status)] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /print-jobs/{id}.
func (h *PrintJobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseID(w, r, "id", "print job")
	if !ok {
		return
	}
	job, err := h.queue.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, "get print job", err)
		return
	}
	writeJSON(w, http.StatusOK, toPrintJobResponse(job))
}

// Retry handles POST /print-jobs/{id}/retry. Only failed jobs are retried.
func (h *PrintJobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseID(w, r, "id", "print job")
	if !ok {
		return
	}
	job, err := h.queue.Retry(r.Context(), jobID)
	if err != nil {
		writeError(w, "retry print job", err)
		return
	}
	writeJSON(w, http.StatusOK, toPrintJobResponse(job))
}

// Delete handles DELETE /print-jobs/{id}.
func (h *PrintJobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseID(w, r, "id", "print job")
	if !ok {
		return
	}
	if err := h.queue.Delete(r.Context(), jobID); err != nil {
		writeError(w, "delete print job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /print-jobs/test.
func (h *PrintJobHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req testPrintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	req.Printer = strings.TrimSpace(req.Printer)
	if req.Printer == "" {
		badRequest(w, "printer is required")
		return
	}

	job, err := h.queue.Enqueue(r.Context(), printqueue.TestPayload{Printer: req.Printer})
	if err != nil {
		writeError(w, "enqueue test print", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPrintJobResponse(job))
}

func isValidPrintJobStatus(s database.PrintJobStatus) bool {
	switch s {
	case database.PrintJobStatusPending,
		database.PrintJobStatusPrinting,
		database.PrintJobStatusPrinted,
		database.PrintJobStatusFailed:
		return true
	}
	return false
}
