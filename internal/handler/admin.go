package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/tableservice/internal/database"
)

// LockSweeper clears table locks older than a TTL.
type LockSweeper interface {
	SweepExpiredLocks(ctx context.Context, ttl time.Duration) ([]database.DiningTable, error)
}

// JobReaper returns print jobs with an expired lease to the queue.
type JobReaper interface {
	ReapStale(ctx context.Context, lease time.Duration) ([]database.PrintQueueJob, error)
}

// AdminHandler handles maintenance endpoints. Mounted behind a role check.
type AdminHandler struct {
	locks    LockSweeper
	jobs     JobReaper
	lockTTL  time.Duration
	leaseTTL time.Duration
}

func NewAdminHandler(locks LockSweeper, jobs JobReaper, lockTTL, leaseTTL time.Duration) *AdminHandler {
	return &AdminHandler{locks: locks, jobs: jobs, lockTTL: lockTTL, leaseTTL: leaseTTL}
}

// RegisterRoutes registers admin endpoints. Expected to be mounted at /admin.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/locks/sweep", h.SweepLocks)
	r.Post("/print-jobs/reap", h.ReapJobs)
}

type ttlRequest struct {
	TTL string `json:"ttl"`
}

type sweepResponse struct {
	Swept  []tableResponse `json:"swept"`
	TTL    string          `json:"ttl"`
}

type reapResponse struct {
	Reaped []printJobResponse `json:"reaped"`
	Lease  string             `json:"lease"`
}

// SweepLocks handles POST /admin/locks/sweep. Body {"ttl":"10m"} overrides
// the configured lock TTL.
func (h *AdminHandler) SweepLocks(w http.ResponseWriter, r *http.Request) {
	ttl, ok := parseTTL(w, r, h.lockTTL)
	if !ok {
		return
	}
	swept, err := h.locks.SweepExpiredLocks(r.Context(), ttl)
	if err != nil {
		writeError(w, "sweep locks", err)
		return
	}
	resp := sweepResponse{Swept: make([]tableResponse, len(swept)), TTL: ttl.String()}
	for i, t := range swept {
		resp.Swept[i] = toTableResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReapJobs handles POST /admin/print-jobs/reap.
func (h *AdminHandler) ReapJobs(w http.ResponseWriter, r *http.Request) {
	lease, ok := parseTTL(w, r, h.leaseTTL)
	if !ok {
		return
	}
	reaped, err := h.jobs.ReapStale(r.Context(), lease)
	if err != nil {
		writeError(w, "reap print jobs", err)
		return
	}
	resp := reapResponse{Reaped: make([]printJobResponse, len(reaped)), Lease: lease.String()}
	for i, j := range reaped {
		resp.Reaped[i] = toPrintJobResponse(j)
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseTTL(w http.ResponseWriter, r *http.Request, fallback time.Duration) (time.Duration, bool) {
	var req ttlRequest
	if err := decodeOptional(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return 0, false
	}
	if req.TTL == "" {
		return fallback, true
	}
	ttl, err := time.ParseDuration(req.TTL)
	if err != nil || ttl <= 0 {
		badRequest(w, "ttl must be a positive duration")
		return 0, false
	}
	return ttl, true
}
