package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const printJobColumns = `id, print_type, order_id, command_id, table_id, printer, status, attempts,
    max_attempts, error_message, error_stack, claimed_by, claimed_at, created_at, updated_at,
    printed_at, failed_at`

func scanPrintQueueJob(row interface{ Scan(...any) error }) (PrintQueueJob, error) {
	var i PrintQueueJob
	err := row.Scan(
		&i.ID,
		&i.PrintType,
		&i.OrderID,
		&i.CommandID,
		&i.TableID,
		&i.Printer,
		&i.Status,
		&i.Attempts,
		&i.MaxAttempts,
		&i.ErrorMessage,
		&i.ErrorStack,
		&i.ClaimedBy,
		&i.ClaimedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.PrintedAt,
		&i.FailedAt,
	)
	return i, err
}

func collectPrintQueueJobs(q *Queries, ctx context.Context, sql string, args ...any) ([]PrintQueueJob, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PrintQueueJob{}
	for rows.Next() {
		i, err := scanPrintQueueJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createPrintJob = `-- name: CreatePrintJob :one
INSERT INTO print_queue_jobs (print_type, order_id, command_id, table_id, printer, max_attempts)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + printJobColumns

type CreatePrintJobParams struct {
	PrintType   PrintType   `json:"print_type"`
	OrderID     pgtype.UUID `json:"order_id"`
	CommandID   pgtype.UUID `json:"command_id"`
	TableID     pgtype.UUID `json:"table_id"`
	Printer     pgtype.Text `json:"printer"`
	MaxAttempts int32       `json:"max_attempts"`
}

func (q *Queries) CreatePrintJob(ctx context.Context, arg CreatePrintJobParams) (PrintQueueJob, error) {
	return scanPrintQueueJob(q.db.QueryRow(ctx, createPrintJob,
		arg.PrintType,
		arg.OrderID,
		arg.CommandID,
		arg.TableID,
		arg.Printer,
		arg.MaxAttempts,
	))
}

const getPrintJob = `-- name: GetPrintJob :one
SELECT ` + printJobColumns + ` FROM print_queue_jobs WHERE id = $1`

func (q *Queries) GetPrintJob(ctx context.Context, id uuid.UUID) (PrintQueueJob, error) {
	return scanPrintQueueJob(q.db.QueryRow(ctx, getPrintJob, id))
}

const listPendingPrintJobIDs = `-- name: ListPendingPrintJobIDs :many
SELECT id FROM print_queue_jobs
WHERE status = 'pending'
ORDER BY created_at, id
LIMIT $1`

func (q *Queries) ListPendingPrintJobIDs(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, listPendingPrintJobIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Conditional claim: exactly one worker sees a row back for a given job.
const claimPrintJob = `-- name: ClaimPrintJob :one
UPDATE print_queue_jobs
SET status = 'printing', claimed_by = $2, claimed_at = now(), updated_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING ` + printJobColumns

type ClaimPrintJobParams struct {
	ID        uuid.UUID `json:"id"`
	ClaimedBy string    `json:"claimed_by"`
}

func (q *Queries) ClaimPrintJob(ctx context.Context, arg ClaimPrintJobParams) (PrintQueueJob, error) {
	return scanPrintQueueJob(q.db.QueryRow(ctx, claimPrintJob, arg.ID, arg.ClaimedBy))
}

const markPrintJobPrinted = `-- name: MarkPrintJobPrinted :one
UPDATE print_queue_jobs
SET status = 'printed', printed_at = now(), updated_at = now(),
    error_message = NULL, error_stack = NULL
WHERE id = $1 AND status = 'printing' AND claimed_by = $2
RETURNING ` + printJobColumns

type MarkPrintJobPrintedParams struct {
	ID        uuid.UUID `json:"id"`
	ClaimedBy string    `json:"claimed_by"`
}

func (q *Queries) MarkPrintJobPrinted(ctx context.Context, arg MarkPrintJobPrintedParams) (PrintQueueJob, error) {
	return scanPrintQueueJob(q.db.QueryRow(ctx, markPrintJobPrinted, arg.ID, arg.ClaimedBy))
}

// One statement both counts the attempt and decides between retry and
// dead-letter, so two failure reports cannot interleave.
const recordPrintJobFailure = `-- name: RecordPrintJobFailure :one
UPDATE print_queue_jobs
SET attempts = attempts + 1,
    status = CASE WHEN attempts + 1 >= max_attempts
                  THEN 'failed'::print_job_status
                  ELSE 'pending'::print_job_status END,
    failed_at = CASE WHEN attempts + 1 >= max_attempts THEN now() ELSE failed_at END,
    error_message = $2,
    error_stack = $3,
    claimed_by = NULL,
    claimed_at = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'printing' AND claimed_by = $4
RETURNING ` + printJobColumns

type RecordPrintJobFailureParams struct {
	ID           uuid.UUID   `json:"id"`
	ErrorMessage pgtype.Text `json:"error_message"`
	ErrorStack   pgtype.Text `json:"error_stack"`
	ClaimedBy    string      `json:"claimed_by"`
}

func (q *Queries) RecordPrintJobFailure(ctx context.Context, arg RecordPrintJobFailureParams) (PrintQueueJob, error) {
	return scanPrintQueueJob(q.db.QueryRow(ctx, recordPrintJobFailure, arg.ID, arg.ErrorMessage, arg.ErrorStack, arg.ClaimedBy))
}

const retryPrintJob = `-- name: RetryPrintJob :one
UPDATE print_queue_jobs
SET status = 'pending', attempts = 0, error_message = NULL, error_stack = NULL,
    failed_at = NULL, claimed_by = NULL, claimed_at = NULL, updated_at = now()
WHERE id = $1 AND status = 'failed'
RETURNING ` + printJobColumns

func (q *Queries) RetryPrintJob(ctx context.Context, id uuid.UUID) (PrintQueueJob, error) {
	return scanPrintQueueJob(q.db.QueryRow(ctx, retryPrintJob, id))
}

const deletePrintJob = `-- name: DeletePrintJob :execrows
DELETE FROM print_queue_jobs WHERE id = $1 AND status <> 'printing'`

func (q *Queries) DeletePrintJob(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deletePrintJob, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listPrintJobs = `-- name: ListPrintJobs :many
SELECT ` + printJobColumns + ` FROM print_queue_jobs
WHERE ($1::print_job_status IS NULL OR status = $1::print_job_status)
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3`

type ListPrintJobsParams struct {
	Status *PrintJobStatus `json:"status"`
	Limit  int32           `json:"limit"`
	Offset int32           `json:"offset"`
}

func (q *Queries) ListPrintJobs(ctx context.Context, arg ListPrintJobsParams) ([]PrintQueueJob, error) {
	var status pgtype.Text
	if arg.Status != nil {
		status = pgtype.Text{String: string(*arg.Status), Valid: true}
	}
	return collectPrintQueueJobs(q, ctx, listPrintJobs, status, arg.Limit, arg.Offset)
}

// Jobs whose worker vanished mid-print. Each one is charged an attempt and
// either requeued or dead-lettered, using the same rule as a reported failure.
const reapStalePrintJobs = `-- name: ReapStalePrintJobs :many
UPDATE print_queue_jobs
SET attempts = attempts + 1,
    status = CASE WHEN attempts + 1 >= max_attempts
                  THEN 'failed'::print_job_status
                  ELSE 'pending'::print_job_status END,
    failed_at = CASE WHEN attempts + 1 >= max_attempts THEN now() ELSE failed_at END,
    error_message = 'print lease expired',
    error_stack = NULL,
    claimed_by = NULL,
    claimed_at = NULL,
    updated_at = now()
WHERE status = 'printing' AND claimed_at < now() - make_interval(secs => $1::double precision)
RETURNING ` + printJobColumns

// ReapStalePrintJobs compares claimed_at against the database clock, the same
// clock ClaimPrintJob stamps it with.
func (q *Queries) ReapStalePrintJobs(ctx context.Context, lease time.Duration) ([]PrintQueueJob, error) {
	return collectPrintQueueJobs(q, ctx, reapStalePrintJobs, lease.Seconds())
}

const countPrintJobsByStatus = `-- name: CountPrintJobsByStatus :many
SELECT status, COUNT(*)::BIGINT FROM print_queue_jobs GROUP BY status`

type CountPrintJobsByStatusRow struct {
	Status PrintJobStatus `json:"status"`
	Count  int64          `json:"count"`
}

func (q *Queries) CountPrintJobsByStatus(ctx context.Context) ([]CountPrintJobsByStatusRow, error) {
	rows, err := q.db.Query(ctx, countPrintJobsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CountPrintJobsByStatusRow{}
	for rows.Next() {
		var i CountPrintJobsByStatusRow
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
