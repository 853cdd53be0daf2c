package printqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/shopspring/decimal"
)

// Ticket is everything a renderer needs to print one job.
type Ticket struct {
	JobID       uuid.UUID
	Type        database.PrintType
	Printer     string
	TableNumber int32 // 0 for takeaway and test tickets
	Order       *database.Order
	Command     *database.Command
	Items       []database.OrderItem
	Covers      int32
	Subtotal    decimal.Decimal
	CoverCharge decimal.Decimal
	Total       decimal.Decimal
}

// TicketStore defines the reads needed to assemble a ticket.
type TicketStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetDiningTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	GetCommand(ctx context.Context, id uuid.UUID) (database.Command, error)
	ListOrderItemsByCommand(ctx context.Context, commandID uuid.UUID) ([]database.OrderItem, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// StoreTicketLoader reads ticket data in one read transaction so the ticket
// is a consistent snapshot.
type StoreTicketLoader struct {
	pool     TxBeginner
	newStore func(db database.DBTX) TicketStore
}

func NewStoreTicketLoader(pool TxBeginner, newStore func(db database.DBTX) TicketStore) *StoreTicketLoader {
	return &StoreTicketLoader{pool: pool, newStore: newStore}
}

func (l *StoreTicketLoader) Load(ctx context.Context, job database.PrintQueueJob) (Ticket, error) {
	payload, err := PayloadOf(job)
	if err != nil {
		return Ticket{}, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	store := l.newStore(tx)

	t := Ticket{JobID: job.ID, Type: job.PrintType}
	switch p := payload.(type) {
	case TestPayload:
		t.Printer = p.Printer
		return t, nil
	case ComandaPayload:
		cmd, err := store.GetCommand(ctx, p.CommandID)
		if err != nil {
			return Ticket{}, lookupError("command", err)
		}
		items, err := store.ListOrderItemsByCommand(ctx, p.CommandID)
		if err != nil {
			return Ticket{}, fmt.Errorf("list command items: %w", err)
		}
		t.Command = &cmd
		t.Items = items
		if err := l.loadOrder(ctx, store, &t, p.OrderID); err != nil {
			return Ticket{}, err
		}
	case PrecontoPayload:
		items, err := store.ListOrderItemsByOrder(ctx, p.OrderID)
		if err != nil {
			return Ticket{}, fmt.Errorf("list order items: %w", err)
		}
		t.Items = items
		if err := l.loadOrder(ctx, store, &t, p.OrderID); err != nil {
			return Ticket{}, err
		}
	}
	return t, nil
}

func (l *StoreTicketLoader) loadOrder(ctx context.Context, store TicketStore, t *Ticket, orderID uuid.UUID) error {
	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		return lookupError("order", err)
	}
	t.Order = &order
	t.Covers = order.Covers
	t.Subtotal = database.NumericToDecimal(order.Subtotal)
	t.CoverCharge = database.NumericToDecimal(order.CoverCharge)
	t.Total = database.NumericToDecimal(order.Total)
	if order.TableID.Valid {
		table, err := store.GetDiningTable(ctx, uuid.UUID(order.TableID.Bytes))
		if err != nil {
			return lookupError("table", err)
		}
		t.TableNumber = table.Number
	}
	return nil
}

func lookupError(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s not found", what)
	}
	return fmt.Errorf("get %s: %w", what, err)
}
