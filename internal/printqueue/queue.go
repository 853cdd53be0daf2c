// Package printqueue implements the persistent print queue: enqueueing jobs
// inside the caller's transaction, claiming them with a conditional update,
// and resolving them with bounded retries.
package printqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/tableservice/internal/apperror"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/enum"
	"github.com/kiwari-pos/tableservice/internal/logging"
	"github.com/kiwari-pos/tableservice/internal/notify"
)

// DefaultMaxAttempts bounds automatic retries before a job is dead-lettered.
const DefaultMaxAttempts = 3

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// EnqueueStore is what Enqueue needs from the caller's transaction.
type EnqueueStore interface {
	CreatePrintJob(ctx context.Context, arg database.CreatePrintJobParams) (database.PrintQueueJob, error)
}

// Store defines the DB methods used by the queue.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	EnqueueStore
	GetPrintJob(ctx context.Context, id uuid.UUID) (database.PrintQueueJob, error)
	ListPendingPrintJobIDs(ctx context.Context, limit int32) ([]uuid.UUID, error)
	ClaimPrintJob(ctx context.Context, arg database.ClaimPrintJobParams) (database.PrintQueueJob, error)
	MarkPrintJobPrinted(ctx context.Context, arg database.MarkPrintJobPrintedParams) (database.PrintQueueJob, error)
	RecordPrintJobFailure(ctx context.Context, arg database.RecordPrintJobFailureParams) (database.PrintQueueJob, error)
	RetryPrintJob(ctx context.Context, id uuid.UUID) (database.PrintQueueJob, error)
	DeletePrintJob(ctx context.Context, id uuid.UUID) (int64, error)
	ListPrintJobs(ctx context.Context, arg database.ListPrintJobsParams) ([]database.PrintQueueJob, error)
	ReapStalePrintJobs(ctx context.Context, lease time.Duration) ([]database.PrintQueueJob, error)
	CountPrintJobsByStatus(ctx context.Context) ([]database.CountPrintJobsByStatusRow, error)
	UpdateCommandStatus(ctx context.Context, arg database.UpdateCommandStatusParams) (database.Command, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
type NewStore func(db database.DBTX) Store

// Enqueue inserts a pending job using the caller's store, so the job commits
// or rolls back together with whatever caused it.
func Enqueue(ctx context.Context, store EnqueueStore, p Payload, maxAttempts int32) (database.PrintQueueJob, error) {
	if err := validatePayload(p); err != nil {
		return database.PrintQueueJob{}, apperror.Validation(err.Error())
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	params := p.params()
	params.MaxAttempts = maxAttempts
	job, err := store.CreatePrintJob(ctx, params)
	if err != nil {
		return database.PrintQueueJob{}, fmt.Errorf("create print job: %w", err)
	}
	return job, nil
}

// Config tunes a Queue.
type Config struct {
	MaxAttempts int32
	Notifier    notify.Notifier
	Logger      logging.Logger
}

// Queue runs queue operations in their own transactions.
type Queue struct {
	pool        TxBeginner
	newStore    NewStore
	maxAttempts int32
	notifier    notify.Notifier
	log         logging.Logger
}

func NewQueue(pool TxBeginner, newStore NewStore, cfg Config) *Queue {
	q := &Queue{
		pool:        pool,
		newStore:    newStore,
		maxAttempts: cfg.MaxAttempts,
		notifier:    cfg.Notifier,
		log:         logging.OrNop(cfg.Logger),
	}
	if q.maxAttempts <= 0 {
		q.maxAttempts = DefaultMaxAttempts
	}
	if q.notifier == nil {
		q.notifier = notify.Nop{}
	}
	return q
}

// MaxAttempts is the attempt budget given to newly enqueued jobs.
func (q *Queue) MaxAttempts() int32 {
	return q.maxAttempts
}

func (q *Queue) inTx(ctx context.Context, fn func(store Store) error) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return storeError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(q.newStore(tx)); err != nil {
		return storeError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func storeError(err error) error {
	if apperror.Code(err) == "" && database.IsConnectionError(err) {
		return apperror.Transient(err)
	}
	return err
}

// Enqueue inserts a job in its own transaction. Used for test prints, which
// have no triggering state change.
func (q *Queue) Enqueue(ctx context.Context, p Payload) (database.PrintQueueJob, error) {
	var job database.PrintQueueJob
	err := q.inTx(ctx, func(store Store) error {
		var err error
		job, err = Enqueue(ctx, store, p, q.maxAttempts)
		return err
	})
	if err != nil {
		return database.PrintQueueJob{}, err
	}
	q.notifier.Notify(enum.TopicPrintJobCreated, job)
	return job, nil
}

// PendingIDs lists up to limit pending job ids, oldest first.
func (q *Queue) PendingIDs(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := q.inTx(ctx, func(store Store) error {
		var err error
		ids, err = store.ListPendingPrintJobIDs(ctx, limit)
		if err != nil {
			return fmt.Errorf("list pending jobs: %w", err)
		}
		return nil
	})
	return ids, err
}

// Claim moves a pending job to printing for workerID. A nil job with a nil
// error means another worker got there first.
func (q *Queue) Claim(ctx context.Context, jobID uuid.UUID, workerID string) (*database.PrintQueueJob, error) {
	var claimed *database.PrintQueueJob
	err := q.inTx(ctx, func(store Store) error {
		job, err := store.ClaimPrintJob(ctx, database.ClaimPrintJobParams{ID: jobID, ClaimedBy: workerID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("claim print job: %w", err)
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed != nil {
		q.notifier.Notify(enum.TopicPrintJobUpdated, claimed)
	}
	return claimed, nil
}

// MarkPrinted resolves a job workerID is printing. For comanda jobs the
// command is marked printed in the same transaction. A nil job with a nil
// error means workerID no longer holds the claim (the lease was reaped and
// the job may belong to another worker); nothing is changed.
func (q *Queue) MarkPrinted(ctx context.Context, jobID uuid.UUID, workerID string) (*database.PrintQueueJob, error) {
	var settled *database.PrintQueueJob
	err := q.inTx(ctx, func(store Store) error {
		job, err := store.MarkPrintJobPrinted(ctx, database.MarkPrintJobPrintedParams{ID: jobID, ClaimedBy: workerID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return claimLost(ctx, store, jobID)
			}
			return fmt.Errorf("mark printed: %w", err)
		}
		if job.PrintType == database.PrintTypeComanda && job.CommandID.Valid {
			if _, err := store.UpdateCommandStatus(ctx, database.UpdateCommandStatusParams{
				ID:     uuid.UUID(job.CommandID.Bytes),
				Status: database.CommandStatusPrinted,
			}); err != nil {
				return fmt.Errorf("mark command printed: %w", err)
			}
		}
		settled = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled == nil {
		q.logClaimLost(jobID, workerID, "printed")
		return nil, nil
	}
	q.notifier.Notify(enum.TopicPrintJobUpdated, settled)
	return settled, nil
}

// IncrementAttempts records a failed attempt by workerID. The job goes back
// to pending, or to failed once it has used max_attempts; a dead-lettered
// comanda marks its command print_failed. Like MarkPrinted, a lost claim
// returns a nil job and charges nothing.
func (q *Queue) IncrementAttempts(ctx context.Context, jobID uuid.UUID, workerID, message, stack string) (*database.PrintQueueJob, error) {
	var settled *database.PrintQueueJob
	err := q.inTx(ctx, func(store Store) error {
		job, err := store.RecordPrintJobFailure(ctx, database.RecordPrintJobFailureParams{
			ID:           jobID,
			ErrorMessage: pgtype.Text{String: message, Valid: message != ""},
			ErrorStack:   pgtype.Text{String: stack, Valid: stack != ""},
			ClaimedBy:    workerID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return claimLost(ctx, store, jobID)
			}
			return fmt.Errorf("record failure: %w", err)
		}
		settled = &job
		return markCommandFailed(ctx, store, job)
	})
	if err != nil {
		return nil, err
	}
	if settled == nil {
		q.logClaimLost(jobID, workerID, "failure")
		return nil, nil
	}
	if settled.Status == database.PrintJobStatusFailed {
		q.log.WithFields(map[string]any{
			"job_id":     settled.ID.String(),
			"print_type": string(settled.PrintType),
			"attempts":   settled.Attempts,
			"error":      settled.ErrorMessage.String,
		}).Error("print job dead-lettered")
	}
	q.notifier.Notify(enum.TopicPrintJobUpdated, settled)
	return settled, nil
}

func (q *Queue) logClaimLost(jobID uuid.UUID, workerID, outcome string) {
	q.log.WithFields(map[string]any{
		"job_id":    jobID.String(),
		"worker_id": workerID,
		"outcome":   outcome,
	}).Warn("print claim lost, outcome discarded")
}

// Retry requeues a failed job with a fresh attempt budget. Only failed jobs
// can be retried.
func (q *Queue) Retry(ctx context.Context, jobID uuid.UUID) (database.PrintQueueJob, error) {
	var job database.PrintQueueJob
	err := q.inTx(ctx, func(store Store) error {
		var err error
		job, err = store.RetryPrintJob(ctx, jobID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("retry print job: %w", err)
			}
			current, err := store.GetPrintJob(ctx, jobID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return apperror.PrintJobNotFound(map[string]any{"job_id": jobID.String()})
				}
				return fmt.Errorf("get print job: %w", err)
			}
			return apperror.PrintJobNotFailed(jobState(current))
		}
		if job.PrintType == database.PrintTypeComanda && job.CommandID.Valid {
			if _, err := store.UpdateCommandStatus(ctx, database.UpdateCommandStatusParams{
				ID:     uuid.UUID(job.CommandID.Bytes),
				Status: database.CommandStatusSent,
			}); err != nil {
				return fmt.Errorf("reset command status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return database.PrintQueueJob{}, err
	}
	q.notifier.Notify(enum.TopicPrintJobUpdated, job)
	return job, nil
}

// Delete removes a job that is not currently printing.
func (q *Queue) Delete(ctx context.Context, jobID uuid.UUID) error {
	err := q.inTx(ctx, func(store Store) error {
		n, err := store.DeletePrintJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("delete print job: %w", err)
		}
		if n > 0 {
			return nil
		}
		current, err := store.GetPrintJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperror.PrintJobNotFound(map[string]any{"job_id": jobID.String()})
			}
			return fmt.Errorf("get print job: %w", err)
		}
		return apperror.InvalidTransition("print job is being printed", jobState(current))
	})
	if err != nil {
		return err
	}
	q.notifier.Notify(enum.TopicPrintJobUpdated, map[string]any{"id": jobID, "deleted": true})
	return nil
}

func (q *Queue) Get(ctx context.Context, jobID uuid.UUID) (database.PrintQueueJob, error) {
	var job database.PrintQueueJob
	err := q.inTx(ctx, func(store Store) error {
		var err error
		job, err = store.GetPrintJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperror.PrintJobNotFound(map[string]any{"job_id": jobID.String()})
			}
			return fmt.Errorf("get print job: %w", err)
		}
		return nil
	})
	return job, err
}

// ListFilter selects jobs for the admin view.
type ListFilter struct {
	Status *database.PrintJobStatus
	Limit  int32
	Offset int32
}

func (q *Queue) List(ctx context.Context, f ListFilter) ([]database.PrintQueueJob, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	var jobs []database.PrintQueueJob
	err := q.inTx(ctx, func(store Store) error {
		var err error
		jobs, err = store.ListPrintJobs(ctx, database.ListPrintJobsParams{
			Status: f.Status,
			Limit:  f.Limit,
			Offset: f.Offset,
		})
		if err != nil {
			return fmt.Errorf("list print jobs: %w", err)
		}
		return nil
	})
	return jobs, err
}

// Stats counts jobs per status. Every status is present, zero when empty.
func (q *Queue) Stats(ctx context.Context) (map[database.PrintJobStatus]int64, error) {
	stats := map[database.PrintJobStatus]int64{
		database.PrintJobStatusPending:  0,
		database.PrintJobStatusPrinting: 0,
		database.PrintJobStatusPrinted:  0,
		database.PrintJobStatusFailed:   0,
	}
	err := q.inTx(ctx, func(store Store) error {
		rows, err := store.CountPrintJobsByStatus(ctx)
		if err != nil {
			return fmt.Errorf("count print jobs: %w", err)
		}
		for _, r := range rows {
			stats[r.Status] = r.Count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ReapStale charges one attempt to every job stuck in printing for longer
// than lease, returning it to pending or dead-lettering it.
func (q *Queue) ReapStale(ctx context.Context, lease time.Duration) ([]database.PrintQueueJob, error) {
	if lease <= 0 {
		return nil, apperror.Validation("lease must be positive")
	}
	var reaped []database.PrintQueueJob
	err := q.inTx(ctx, func(store Store) error {
		var err error
		reaped, err = store.ReapStalePrintJobs(ctx, lease)
		if err != nil {
			return fmt.Errorf("reap stale jobs: %w", err)
		}
		for _, job := range reaped {
			if err := markCommandFailed(ctx, store, job); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, job := range reaped {
		q.log.WithFields(map[string]any{
			"job_id":   job.ID.String(),
			"status":   string(job.Status),
			"attempts": job.Attempts,
		}).Warn("print lease expired")
		q.notifier.Notify(enum.TopicPrintJobUpdated, job)
	}
	return reaped, nil
}

func markCommandFailed(ctx context.Context, store Store, job database.PrintQueueJob) error {
	if job.Status != database.PrintJobStatusFailed || job.PrintType != database.PrintTypeComanda || !job.CommandID.Valid {
		return nil
	}
	if _, err := store.UpdateCommandStatus(ctx, database.UpdateCommandStatusParams{
		ID:     uuid.UUID(job.CommandID.Bytes),
		Status: database.CommandStatusPrintFailed,
	}); err != nil {
		return fmt.Errorf("mark command print_failed: %w", err)
	}
	return nil
}

// claimLost tells a missing job apart from one the caller no longer holds.
func claimLost(ctx context.Context, store Store, jobID uuid.UUID) error {
	if _, err := store.GetPrintJob(ctx, jobID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.PrintJobNotFound(map[string]any{"job_id": jobID.String()})
		}
		return fmt.Errorf("get print job: %w", err)
	}
	return nil
}

func jobState(job database.PrintQueueJob) map[string]any {
	return map[string]any{
		"job_id":       job.ID.String(),
		"job_status":   string(job.Status),
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
	}
}
