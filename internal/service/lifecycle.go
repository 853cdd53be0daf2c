// Package service holds the table-service core: the table lock, the
// table/order state machine and the kitchen command sequencer.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/tableservice/internal/apperror"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/enum"
	"github.com/kiwari-pos/tableservice/internal/logging"
	"github.com/kiwari-pos/tableservice/internal/notify"
	"github.com/kiwari-pos/tableservice/internal/printqueue"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxTxAttempts bounds replays of a transaction the server aborted with a
// serialization failure, a deadlock or a command-number race.
const maxTxAttempts = 3

const activeOrderIndex = "orders_one_active_per_table"

// CoordinatorConfig tunes a Coordinator.
type CoordinatorConfig struct {
	CoverCharge      decimal.Decimal // per diner; zero means DefaultCoverCharge
	PrintMaxAttempts int32
	Notifier         notify.Notifier
	Logger           logging.Logger
}

// Coordinator runs every table and order transition as one transaction over
// table, order, items, commands and print jobs. Notifications go out only
// after commit.
type Coordinator struct {
	pool             TxBeginner
	newStore         NewStore
	coverCharge      decimal.Decimal
	printMaxAttempts int32
	notifier         notify.Notifier
	log              logging.Logger
	tracer           trace.Tracer
}

func NewCoordinator(pool TxBeginner, newStore NewStore, cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		pool:             pool,
		newStore:         newStore,
		coverCharge:      cfg.CoverCharge,
		printMaxAttempts: cfg.PrintMaxAttempts,
		notifier:         cfg.Notifier,
		log:              logging.OrNop(cfg.Logger),
		tracer:           otel.Tracer("github.com/kiwari-pos/tableservice/internal/service"),
	}
	if c.coverCharge.IsZero() {
		c.coverCharge = DefaultCoverCharge
	}
	if c.printMaxAttempts <= 0 {
		c.printMaxAttempts = printqueue.DefaultMaxAttempts
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	return c
}

// OrderResult is the aggregate returned by every order transition.
type OrderResult struct {
	Order    database.Order
	Items    []database.OrderItem
	Table    *database.DiningTable   // nil for takeaway orders
	Command  *database.Command       // set when this call dispatched a command
	PrintJob *database.PrintQueueJob // set when this call enqueued a print job
}

type event struct {
	topic   string
	payload any
}

// txScope is the store bound to the running transaction plus the
// notifications to publish once it commits.
type txScope struct {
	store  Store
	events []event
}

func (s *txScope) emit(topic string, payload any) {
	s.events = append(s.events, event{topic: topic, payload: payload})
}

func (s *txScope) locks(log logging.Logger) *TableLockManager {
	return NewTableLockManager(s.store, log)
}

// runTx executes fn in a transaction, replaying it when the server aborted it
// for a retryable reason.
func (c *Coordinator) runTx(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, tx *txScope) error) error {
	ctx, span := c.tracer.Start(ctx, "coordinator."+op, trace.WithAttributes(attrs...))
	defer span.End()

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		scope := &txScope{}
		err = c.attempt(ctx, scope, fn)
		if err == nil {
			for _, e := range scope.events {
				c.notifier.Notify(e.topic, e.payload)
			}
			return nil
		}
		if !retryable(err) {
			break
		}
		if attempt == maxTxAttempts {
			err = apperror.Transient(err)
			break
		}
		c.log.Warn("replaying transaction", "op", op, "attempt", attempt, "error", err.Error())
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
	}

	err = classify(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, apperror.Message(err))
	if apperror.Is(err, apperror.CodeInconsistentState) {
		c.log.Error("inconsistent table/order state", "op", op, "state", apperror.State(err))
	}
	return err
}

func (c *Coordinator) attempt(ctx context.Context, scope *txScope, fn func(ctx context.Context, tx *txScope) error) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	scope.store = c.newStore(tx)
	if err := fn(ctx, scope); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	if apperror.Code(err) != "" {
		return false
	}
	return database.IsSerializationFailure(err) || database.IsUniqueViolation(err, commandNumberConstraint)
}

// classify turns store failures the caller can act on into typed errors.
func classify(err error) error {
	if apperror.Code(err) != "" {
		return err
	}
	switch {
	case database.IsUniqueViolation(err, activeOrderIndex):
		return apperror.InvalidTransition("table already has an active order", nil)
	case database.IsConnectionError(err):
		return apperror.Transient(err)
	}
	return err
}

func tableAttr(id uuid.UUID) attribute.KeyValue { return attribute.String("table.id", id.String()) }
func orderAttr(id uuid.UUID) attribute.KeyValue { return attribute.String("order.id", id.String()) }
func userAttr(id uuid.UUID) attribute.KeyValue  { return attribute.String("user.id", id.String()) }

// --- State checks ---

func isActive(o database.Order) bool {
	return o.Status == database.OrderStatusPending || o.Status == database.OrderStatusSent
}

// validatePair rejects any (table, active order) combination outside
// (free, none), (pending, pending) and (occupied, pending|sent).
func validatePair(table database.DiningTable, order *database.Order) error {
	ok := false
	switch table.Status {
	case database.TableStatusFree:
		ok = order == nil
	case database.TableStatusPending:
		ok = order != nil && order.Status == database.OrderStatusPending
	case database.TableStatusOccupied:
		ok = order != nil && isActive(*order)
	}
	if ok {
		return nil
	}
	return apperror.InconsistentState(
		fmt.Sprintf("table %d is %s with %s", table.Number, table.Status, describeOrder(order)),
		pairState(table, order),
	)
}

func describeOrder(o *database.Order) string {
	if o == nil {
		return "no active order"
	}
	return fmt.Sprintf("order %s %s", o.ID, o.Status)
}

func pairState(table database.DiningTable, order *database.Order) map[string]any {
	state := lockState(table)
	if order != nil {
		state["order_id"] = order.ID.String()
		state["order_status"] = string(order.Status)
	}
	return state
}

func orderState(o database.Order) map[string]any {
	state := map[string]any{
		"order_id":     o.ID.String(),
		"order_status": string(o.Status),
	}
	if o.TableID.Valid {
		state["table_id"] = uuid.UUID(o.TableID.Bytes).String()
	}
	return state
}

// nextTableStatus is where a table with an active order settles. Opening a
// free table occupies it only when the order is sent straight away; later
// items promote pending to occupied. A table never moves back from occupied
// to pending.
func nextTableStatus(current database.TableStatus, order database.Order, itemCount int) database.TableStatus {
	sent := order.Status == database.OrderStatusSent
	switch {
	case current == database.TableStatusFree:
		if sent {
			return database.TableStatusOccupied
		}
		return database.TableStatusPending
	case current == database.TableStatusOccupied || sent || itemCount > 0:
		return database.TableStatusOccupied
	}
	return database.TableStatusPending
}

// --- Loading ---

func activeOrder(ctx context.Context, store Store, tableID uuid.UUID) (*database.Order, error) {
	o, err := store.GetActiveOrderByTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active order: %w", err)
	}
	return &o, nil
}

// lockTableTx takes (or re-enters) holder's lock and loads the table with its
// active order.
func (c *Coordinator) lockTableTx(ctx context.Context, tx *txScope, tableID, holder uuid.UUID) (database.DiningTable, *database.Order, error) {
	table, err := tx.locks(c.log).Acquire(ctx, tableID, holder)
	if err != nil {
		return database.DiningTable{}, nil, err
	}
	order, err := activeOrder(ctx, tx.store, tableID)
	if err != nil {
		return database.DiningTable{}, nil, err
	}
	if err := validatePair(table, order); err != nil {
		return database.DiningTable{}, nil, err
	}
	return table, order, nil
}

// loadOrderTx locks the order row and, for table orders, the table row.
// With force the table is locked regardless of who holds the edit lock;
// otherwise holder must be able to acquire it.
func (c *Coordinator) loadOrderTx(ctx context.Context, tx *txScope, orderID, holder uuid.UUID, force bool) (database.Order, *database.DiningTable, error) {
	// table_id never changes, so an unlocked read is enough to find the table
	peek, err := tx.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, nil, orderNotFound(orderID)
		}
		return database.Order{}, nil, fmt.Errorf("get order: %w", err)
	}

	// a closed order never reopens, so there is no table state to guard
	if !isActive(peek) {
		return peek, nil, nil
	}

	var table *database.DiningTable
	if peek.TableID.Valid {
		tableID := uuid.UUID(peek.TableID.Bytes)
		var t database.DiningTable
		if force {
			t, err = tx.store.GetDiningTableForUpdate(ctx, tableID)
			if errors.Is(err, pgx.ErrNoRows) {
				err = tableNotFound(tableID)
			}
		} else {
			t, err = tx.locks(c.log).Acquire(ctx, tableID, holder)
		}
		if err != nil {
			return database.Order{}, nil, err
		}
		table = &t
	}

	order, err := tx.store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return database.Order{}, nil, fmt.Errorf("get order for update: %w", err)
	}
	if table != nil && isActive(order) {
		if err := validatePair(*table, &order); err != nil {
			return database.Order{}, nil, err
		}
	}
	return order, table, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func orderNotFound(id uuid.UUID) error {
	return apperror.NotFound("order not found", map[string]any{"order_id": id.String()})
}

func requireActive(order database.Order, action string) error {
	if isActive(order) {
		return nil
	}
	return apperror.InvalidTransition(fmt.Sprintf("cannot %s a %s order", action, order.Status), orderState(order))
}

// --- Shared steps ---

// settle recomputes the order totals from its persisted items and, while the
// order is active, mirrors covers, total and status onto its table.
func (c *Coordinator) settle(ctx context.Context, tx *txScope, order database.Order, table *database.DiningTable) (*OrderResult, error) {
	items, err := tx.store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	totals := ComputeTotals(items, order.Covers, !order.TableID.Valid, c.coverCharge)
	order, err = tx.store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:          order.ID,
		Covers:      order.Covers,
		Subtotal:    database.DecimalToNumeric(totals.Subtotal),
		CoverCharge: database.DecimalToNumeric(totals.CoverCharge),
		Total:       database.DecimalToNumeric(totals.Total),
	})
	if err != nil {
		return nil, fmt.Errorf("update order totals: %w", err)
	}
	tx.emit(enum.TopicOrderUpdated, order)

	result := &OrderResult{Order: order, Items: items}
	if table != nil && isActive(order) {
		updated, err := tx.store.UpdateDiningTableState(ctx, database.UpdateDiningTableStateParams{
			ID:     table.ID,
			Status: nextTableStatus(table.Status, order, len(items)),
			Covers: order.Covers,
			Total:  database.DecimalToNumeric(totals.Total),
		})
		if err != nil {
			return nil, fmt.Errorf("update table state: %w", err)
		}
		tx.emit(enum.TopicTableUpdated, updated)
		result.Table = &updated
	}
	return result, nil
}

// dispatch sends the order's unsent items to the kitchen: a new command, the
// order marked sent and a comanda job enqueued, all in the caller's tx.
// Nothing unsent returns a nil command.
func (c *Coordinator) dispatch(ctx context.Context, tx *txScope, order database.Order) (database.Order, *database.Command, *database.PrintQueueJob, error) {
	cmd, err := NewCommandSequencer(tx.store).CreateIfNeeded(ctx, order.ID)
	if err != nil || cmd == nil {
		return order, nil, nil, err
	}
	order, err = tx.store.MarkOrderSent(ctx, order.ID)
	if err != nil {
		return order, nil, nil, fmt.Errorf("mark order sent: %w", err)
	}
	job, err := printqueue.Enqueue(ctx, tx.store, printqueue.ComandaPayload{
		OrderID:   order.ID,
		CommandID: cmd.ID,
		TableID:   uuid.NullUUID{UUID: uuid.UUID(order.TableID.Bytes), Valid: order.TableID.Valid},
	}, c.printMaxAttempts)
	if err != nil {
		return order, nil, nil, err
	}
	tx.emit(enum.TopicCommandCreated, cmd)
	tx.emit(enum.TopicPrintJobCreated, job)
	return order, cmd, &job, nil
}

// resetTable returns the table to (free, 0 covers, 0 total).
func (c *Coordinator) resetTable(ctx context.Context, tx *txScope, tableID uuid.UUID) (database.DiningTable, error) {
	t, err := tx.store.UpdateDiningTableState(ctx, database.UpdateDiningTableStateParams{
		ID:     tableID,
		Status: database.TableStatusFree,
		Covers: 0,
		Total:  database.DecimalToNumeric(decimal.Zero),
	})
	if err != nil {
		return database.DiningTable{}, fmt.Errorf("reset table: %w", err)
	}
	return t, nil
}
