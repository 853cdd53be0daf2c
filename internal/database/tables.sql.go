package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const diningTableColumns = `id, number, status, covers, total, locked_by, locked_at, updated_at`

func scanDiningTable(row interface{ Scan(...any) error }) (DiningTable, error) {
	var i DiningTable
	err := row.Scan(
		&i.ID,
		&i.Number,
		&i.Status,
		&i.Covers,
		&i.Total,
		&i.LockedBy,
		&i.LockedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createDiningTable = `-- name: CreateDiningTable :one
INSERT INTO dining_tables (number) VALUES ($1)
ON CONFLICT (number) DO UPDATE SET number = EXCLUDED.number
RETURNING ` + diningTableColumns

func (q *Queries) CreateDiningTable(ctx context.Context, number int32) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, createDiningTable, number))
}

const getDiningTable = `-- name: GetDiningTable :one
SELECT ` + diningTableColumns + ` FROM dining_tables WHERE id = $1`

func (q *Queries) GetDiningTable(ctx context.Context, id uuid.UUID) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, getDiningTable, id))
}

const getDiningTableForUpdate = `-- name: GetDiningTableForUpdate :one
SELECT ` + diningTableColumns + ` FROM dining_tables WHERE id = $1 FOR UPDATE`

func (q *Queries) GetDiningTableForUpdate(ctx context.Context, id uuid.UUID) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, getDiningTableForUpdate, id))
}

const listDiningTables = `-- name: ListDiningTables :many
SELECT ` + diningTableColumns + ` FROM dining_tables ORDER BY number`

func (q *Queries) ListDiningTables(ctx context.Context) ([]DiningTable, error) {
	rows, err := q.db.Query(ctx, listDiningTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []DiningTable{}
	for rows.Next() {
		i, err := scanDiningTable(rows)
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

// Compare-and-set: succeeds only when the table is unlocked or already held
// by the same holder. No row means the lock belongs to someone else (or the
// table does not exist).
const acquireTableLock = `-- name: AcquireTableLock :one
UPDATE dining_tables
SET locked_by = $2, locked_at = now(), updated_at = now()
WHERE id = $1 AND (locked_by IS NULL OR locked_by = $2)
RETURNING ` + diningTableColumns

type AcquireTableLockParams struct {
	ID       uuid.UUID `json:"id"`
	LockedBy uuid.UUID `json:"locked_by"`
}

func (q *Queries) AcquireTableLock(ctx context.Context, arg AcquireTableLockParams) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, acquireTableLock, arg.ID, arg.LockedBy))
}

const releaseTableLock = `-- name: ReleaseTableLock :execrows
UPDATE dining_tables
SET locked_by = NULL, locked_at = NULL, updated_at = now()
WHERE id = $1 AND locked_by = $2`

type ReleaseTableLockParams struct {
	ID       uuid.UUID `json:"id"`
	LockedBy uuid.UUID `json:"locked_by"`
}

func (q *Queries) ReleaseTableLock(ctx context.Context, arg ReleaseTableLockParams) (int64, error) {
	result, err := q.db.Exec(ctx, releaseTableLock, arg.ID, arg.LockedBy)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const forceReleaseTableLock = `-- name: ForceReleaseTableLock :execrows
UPDATE dining_tables
SET locked_by = NULL, locked_at = NULL, updated_at = now()
WHERE id = $1`

func (q *Queries) ForceReleaseTableLock(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, forceReleaseTableLock, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const sweepExpiredTableLocks = `-- name: SweepExpiredTableLocks :many
UPDATE dining_tables
SET locked_by = NULL, locked_at = NULL, updated_at = now()
WHERE locked_by IS NOT NULL AND locked_at < $1
RETURNING ` + diningTableColumns

func (q *Queries) SweepExpiredTableLocks(ctx context.Context, cutoff time.Time) ([]DiningTable, error) {
	rows, err := q.db.Query(ctx, sweepExpiredTableLocks, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []DiningTable{}
	for rows.Next() {
		i, err := scanDiningTable(rows)
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

const updateDiningTableState = `-- name: UpdateDiningTableState :one
UPDATE dining_tables
SET status = $2, covers = $3, total = $4, updated_at = now()
WHERE id = $1
RETURNING ` + diningTableColumns

type UpdateDiningTableStateParams struct {
	ID     uuid.UUID      `json:"id"`
	Status TableStatus    `json:"status"`
	Covers int32          `json:"covers"`
	Total  pgtype.Numeric `json:"total"`
}

func (q *Queries) UpdateDiningTableState(ctx context.Context, arg UpdateDiningTableStateParams) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, updateDiningTableState,
		arg.ID,
		arg.Status,
		arg.Covers,
		arg.Total,
	))
}
