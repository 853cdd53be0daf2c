package printqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/logging"
)

// TicketLoader assembles the data to print for a claimed job.
type TicketLoader interface {
	Load(ctx context.Context, job database.PrintQueueJob) (Ticket, error)
}

// JobQueue is the part of *Queue the worker drives.
type JobQueue interface {
	PendingIDs(ctx context.Context, limit int32) ([]uuid.UUID, error)
	Claim(ctx context.Context, jobID uuid.UUID, workerID string) (*database.PrintQueueJob, error)
	MarkPrinted(ctx context.Context, jobID uuid.UUID, workerID string) (*database.PrintQueueJob, error)
	IncrementAttempts(ctx context.Context, jobID uuid.UUID, workerID, message, stack string) (*database.PrintQueueJob, error)
}

type WorkerConfig struct {
	ID           string
	PollInterval time.Duration
	BatchSize    int32
	Logger       logging.Logger
}

// Worker polls the queue, claims pending jobs and prints them. Any number of
// workers may share one queue; the conditional claim keeps each job with
// exactly one of them.
type Worker struct {
	queue    JobQueue
	loader   TicketLoader
	renderer Renderer
	id       string
	interval time.Duration
	batch    int32
	log      logging.Logger
}

func NewWorker(queue JobQueue, loader TicketLoader, renderer Renderer, cfg WorkerConfig) *Worker {
	w := &Worker{
		queue:    queue,
		loader:   loader,
		renderer: renderer,
		id:       cfg.ID,
		interval: cfg.PollInterval,
		batch:    cfg.BatchSize,
		log:      logging.OrNop(cfg.Logger),
	}
	if w.id == "" {
		w.id = "printworker-" + uuid.NewString()[:8]
	}
	if w.interval <= 0 {
		w.interval = 500 * time.Millisecond
	}
	if w.batch <= 0 {
		w.batch = 10
	}
	w.log = w.log.WithFields(map[string]any{"worker_id": w.id})
	return w
}

func (w *Worker) ID() string {
	return w.id
}

// Run polls until ctx is cancelled. A job already claimed when ctx ends is
// finished first.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithFields(map[string]any{"poll_interval": w.interval.String(), "batch_size": w.batch}).Info("print worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.log.WithFields(map[string]any{"error": err.Error()}).Error("poll failed")
		}
		select {
		case <-ctx.Done():
			w.log.Info("print worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one scan: list pending ids, claim each and process the ones won.
// It returns how many jobs this worker processed.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	ids, err := w.queue.PendingIDs(ctx, w.batch)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		job, err := w.queue.Claim(ctx, id, w.id)
		if err != nil {
			w.log.WithFields(map[string]any{"job_id": id.String(), "error": err.Error()}).Error("claim failed")
			continue
		}
		if job == nil {
			// another worker won the claim
			continue
		}
		w.process(context.WithoutCancel(ctx), *job)
		processed++
	}
	return processed, nil
}

func (w *Worker) process(ctx context.Context, job database.PrintQueueJob) {
	log := w.log.WithFields(map[string]any{
		"job_id":     job.ID.String(),
		"print_type": string(job.PrintType),
		"attempt":    job.Attempts + 1,
	})

	stack, err := w.execute(ctx, job)
	if err == nil {
		printed, err := w.queue.MarkPrinted(ctx, job.ID, w.id)
		if err != nil {
			log.WithFields(map[string]any{"error": err.Error()}).Error("mark printed failed")
			return
		}
		if printed == nil {
			// The lease expired mid-print; the job is someone else's now.
			return
		}
		log.Info("printed")
		return
	}

	updated, ferr := w.queue.IncrementAttempts(ctx, job.ID, w.id, err.Error(), stack)
	if ferr != nil {
		log.WithFields(map[string]any{"error": ferr.Error(), "print_error": err.Error()}).Error("record failure failed")
		return
	}
	if updated == nil {
		return
	}
	log.WithFields(map[string]any{
		"error":  err.Error(),
		"status": string(updated.Status),
	}).Warn("print failed")
}

// execute loads and renders the ticket, turning a renderer panic into an
// error with its stack.
func (w *Worker) execute(ctx context.Context, job database.PrintQueueJob) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
			stack = string(debug.Stack())
		}
	}()

	ticket, err := w.loader.Load(ctx, job)
	if err != nil {
		return "", fmt.Errorf("load ticket: %w", err)
	}
	if err := w.renderer.Render(ctx, ticket); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return "", nil
}
