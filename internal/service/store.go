package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/printqueue"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LockStore defines the DB methods needed by TableLockManager.
type LockStore interface {
	GetDiningTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	AcquireTableLock(ctx context.Context, arg database.AcquireTableLockParams) (database.DiningTable, error)
	ReleaseTableLock(ctx context.Context, arg database.ReleaseTableLockParams) (int64, error)
	ForceReleaseTableLock(ctx context.Context, id uuid.UUID) (int64, error)
	SweepExpiredTableLocks(ctx context.Context, cutoff time.Time) ([]database.DiningTable, error)
}

// SequencerStore defines the DB methods needed by CommandSequencer.
type SequencerStore interface {
	ListUnsentOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	GetMaxCommandNumber(ctx context.Context, orderID uuid.UUID) (int32, error)
	CreateCommand(ctx context.Context, arg database.CreateCommandParams) (database.Command, error)
	AssignItemsToCommand(ctx context.Context, arg database.AssignItemsToCommandParams) (int64, error)
	UpdateCommandStatus(ctx context.Context, arg database.UpdateCommandStatusParams) (database.Command, error)
}

// CatalogStore defines the lookups used to price items.
type CatalogStore interface {
	GetProductForOrder(ctx context.Context, id uuid.UUID) (database.Product, error)
	GetSupplementForOrder(ctx context.Context, id uuid.UUID) (database.Supplement, error)
}

// Store defines every DB method the coordinator runs inside its transactions.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	LockStore
	SequencerStore
	CatalogStore
	printqueue.EnqueueStore

	GetDiningTableForUpdate(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	ListDiningTables(ctx context.Context) ([]database.DiningTable, error)
	UpdateDiningTableState(ctx context.Context, arg database.UpdateDiningTableStateParams) (database.DiningTable, error)

	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error)
	FindActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	MarkOrderSent(ctx context.Context, id uuid.UUID) (database.Order, error)
	CompleteOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error)

	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrderItem(ctx context.Context, arg database.GetOrderItemParams) (database.OrderItem, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	DeleteUnsentOrderItem(ctx context.Context, arg database.DeleteUnsentOrderItemParams) (int64, error)
	DeleteUnsentOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error)

	ListCommandsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Command, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
// This allows the coordinator to create store instances from transactions.
type NewStore func(db database.DBTX) Store
