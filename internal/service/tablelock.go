package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/tableservice/internal/apperror"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/logging"
)

// DefaultLockTTL is how long an untouched table lock survives a sweep.
const DefaultLockTTL = 30 * time.Minute

// TableLockManager hands out per-table edit locks. The lock is a persisted
// owner tag on the table row, and every change to it is a single conditional
// UPDATE, so the database decides which of two concurrent callers wins.
type TableLockManager struct {
	store LockStore
	log   logging.Logger
	now   func() time.Time
}

func NewTableLockManager(store LockStore, log logging.Logger) *TableLockManager {
	return &TableLockManager{store: store, log: logging.OrNop(log), now: time.Now}
}

// Acquire locks the table for holder, or renews the lock when holder already
// owns it. A table held by someone else yields a LockConflict carrying the
// current holder and nothing is written.
func (m *TableLockManager) Acquire(ctx context.Context, tableID, holder uuid.UUID) (database.DiningTable, error) {
	table, err := m.store.AcquireTableLock(ctx, database.AcquireTableLockParams{ID: tableID, LockedBy: holder})
	if err == nil {
		return table, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.DiningTable{}, fmt.Errorf("acquire table lock: %w", err)
	}

	current, err := m.store.GetDiningTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.DiningTable{}, tableNotFound(tableID)
		}
		return database.DiningTable{}, fmt.Errorf("get table: %w", err)
	}
	return database.DiningTable{}, apperror.LockConflict(lockState(current))
}

// Release clears the lock only when holder owns it. false means the table was
// already unlocked or belongs to someone else.
func (m *TableLockManager) Release(ctx context.Context, tableID, holder uuid.UUID) (bool, error) {
	n, err := m.store.ReleaseTableLock(ctx, database.ReleaseTableLockParams{ID: tableID, LockedBy: holder})
	if err != nil {
		return false, fmt.Errorf("release table lock: %w", err)
	}
	return n > 0, nil
}

// ForceRelease clears the lock whoever holds it. Only completing or freeing
// a table may use it.
func (m *TableLockManager) ForceRelease(ctx context.Context, tableID uuid.UUID) error {
	n, err := m.store.ForceReleaseTableLock(ctx, tableID)
	if err != nil {
		return fmt.Errorf("force release table lock: %w", err)
	}
	if n == 0 {
		return tableNotFound(tableID)
	}
	return nil
}

// SweepExpired clears every lock older than ttl and returns the tables it
// unlocked.
func (m *TableLockManager) SweepExpired(ctx context.Context, ttl time.Duration) ([]database.DiningTable, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	swept, err := m.store.SweepExpiredTableLocks(ctx, m.now().Add(-ttl))
	if err != nil {
		return nil, fmt.Errorf("sweep table locks: %w", err)
	}
	for _, t := range swept {
		m.log.Info("expired table lock cleared", "table_id", t.ID.String(), "table_number", t.Number)
	}
	return swept, nil
}

func tableNotFound(id uuid.UUID) error {
	return apperror.NotFound("table not found", map[string]any{"table_id": id.String()})
}

func lockState(t database.DiningTable) map[string]any {
	state := map[string]any{
		"table_id":     t.ID.String(),
		"table_number": t.Number,
		"table_status": string(t.Status),
	}
	if t.LockedBy.Valid {
		state["locked_by"] = uuid.UUID(t.LockedBy.Bytes).String()
	}
	if t.LockedAt.Valid {
		state["locked_at"] = t.LockedAt.Time
	}
	return state
}
