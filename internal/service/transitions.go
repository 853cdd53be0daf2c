package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/tableservice/internal/apperror"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/enum"
	"github.com/kiwari-pos/tableservice/internal/printqueue"
	"go.opentelemetry.io/otel/attribute"
)

const maxCovers = 99

// OpenTableRequest seats a free table.
type OpenTableRequest struct {
	TableID uuid.UUID
	UserID  uuid.UUID
	Covers  int32
	Items   []ItemInput
	Send    bool // dispatch the items to the kitchen straight away
}

// OpenTable creates the table's order. The caller takes the table lock as
// part of the transaction.
func (c *Coordinator) OpenTable(ctx context.Context, req OpenTableRequest) (*OrderResult, error) {
	if req.Covers < 0 || req.Covers > maxCovers {
		return nil, apperror.Validation(fmt.Sprintf("covers must be between 0 and %d", maxCovers))
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	var result *OrderResult
	err := c.runTx(ctx, "open_table", []attribute.KeyValue{tableAttr(req.TableID), userAttr(req.UserID)}, func(ctx context.Context, tx *txScope) error {
		table, active, err := c.lockTableTx(ctx, tx, req.TableID, req.UserID)
		if err != nil {
			return err
		}
		if table.Status != database.TableStatusFree {
			return apperror.InvalidTransition(fmt.Sprintf("table %d is %s", table.Number, table.Status), pairState(table, active))
		}
		if req.Send && len(req.Items) == 0 {
			return apperror.InvalidTransition("nothing to send", pairState(table, nil))
		}

		order, err := tx.store.CreateOrder(ctx, database.CreateOrderParams{
			TableID: pgtype.UUID{Bytes: table.ID, Valid: true},
			UserID:  req.UserID,
			Covers:  req.Covers,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := insertItems(ctx, tx.store, order.ID, req.Items); err != nil {
			return err
		}

		var cmd *database.Command
		var job *database.PrintQueueJob
		if req.Send {
			if order, cmd, job, err = c.dispatch(ctx, tx, order); err != nil {
				return err
			}
		}
		if result, err = c.settle(ctx, tx, order, &table); err != nil {
			return err
		}
		result.Command, result.PrintJob = cmd, job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TakeawayRequest places an order that has no table.
type TakeawayRequest struct {
	UserID uuid.UUID
	Items  []ItemInput
	Send   bool
}

// OpenTakeaway creates a table-less order. It carries no cover charge.
func (c *Coordinator) OpenTakeaway(ctx context.Context, req TakeawayRequest) (*OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, apperror.Validation("items are required")
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	var result *OrderResult
	err := c.runTx(ctx, "open_takeaway", []attribute.KeyValue{userAttr(req.UserID)}, func(ctx context.Context, tx *txScope) error {
		order, err := tx.store.CreateOrder(ctx, database.CreateOrderParams{UserID: req.UserID})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := insertItems(ctx, tx.store, order.ID, req.Items); err != nil {
			return err
		}
		var cmd *database.Command
		var job *database.PrintQueueJob
		if req.Send {
			if order, cmd, job, err = c.dispatch(ctx, tx, order); err != nil {
				return err
			}
		}
		if result, err = c.settle(ctx, tx, order, nil); err != nil {
			return err
		}
		result.Command, result.PrintJob = cmd, job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddItems appends unsent items to an active order.
func (c *Coordinator) AddItems(ctx context.Context, orderID, holder uuid.UUID, items []ItemInput) (*OrderResult, error) {
	if len(items) == 0 {
		return nil, apperror.Validation("items are required")
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}

	var result *OrderResult
	err := c.runTx(ctx, "add_items", []attribute.KeyValue{orderAttr(orderID), userAttr(holder)}, func(ctx context.Context, tx *txScope) error {
		order, table, err := c.loadOrderTx(ctx, tx, orderID, holder, false)
		if err != nil {
			return err
		}
		if err := requireActive(order, "add items to"); err != nil {
			return err
		}
		if err := insertItems(ctx, tx.store, order.ID, items); err != nil {
			return err
		}
		result, err = c.settle(ctx, tx, order, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SendOrder dispatches the order's unsent items as the next command. On a
// sent order with nothing new it changes nothing and returns no command.
// A pending order with no items cannot be sent.
func (c *Coordinator) SendOrder(ctx context.Context, orderID, holder uuid.UUID) (*OrderResult, error) {
	var result *OrderResult
	err := c.runTx(ctx, "send_order", []attribute.KeyValue{orderAttr(orderID), userAttr(holder)}, func(ctx context.Context, tx *txScope) error {
		order, table, err := c.loadOrderTx(ctx, tx, orderID, holder, false)
		if err != nil {
			return err
		}
		if err := requireActive(order, "send"); err != nil {
			return err
		}

		order, cmd, job, err := c.dispatch(ctx, tx, order)
		if err != nil {
			return err
		}
		if cmd == nil {
			if order.Status == database.OrderStatusPending {
				return apperror.InvalidTransition("order has no items to send", orderState(order))
			}
			items, err := tx.store.ListOrderItemsByOrder(ctx, order.ID)
			if err != nil {
				return fmt.Errorf("list order items: %w", err)
			}
			result = &OrderResult{Order: order, Items: items, Table: table}
			return nil
		}

		if result, err = c.settle(ctx, tx, order, table); err != nil {
			return err
		}
		result.Command, result.PrintJob = cmd, job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateOrderRequest edits a pending order. Nil fields are left as they are;
// a non-nil Items replaces every item.
type UpdateOrderRequest struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Covers  *int32
	Items   []ItemInput
}

// UpdateOrder is only allowed before the first send.
func (c *Coordinator) UpdateOrder(ctx context.Context, req UpdateOrderRequest) (*OrderResult, error) {
	if req.Covers != nil && (*req.Covers < 0 || *req.Covers > maxCovers) {
		return nil, apperror.Validation(fmt.Sprintf("covers must be between 0 and %d", maxCovers))
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	var result *OrderResult
	err := c.runTx(ctx, "update_order", []attribute.KeyValue{orderAttr(req.OrderID), userAttr(req.UserID)}, func(ctx context.Context, tx *txScope) error {
		order, table, err := c.loadOrderTx(ctx, tx, req.OrderID, req.UserID, false)
		if err != nil {
			return err
		}
		if order.Status != database.OrderStatusPending {
			return apperror.InvalidTransition(fmt.Sprintf("cannot update a %s order", order.Status), orderState(order))
		}
		if req.Covers != nil {
			if !order.TableID.Valid && *req.Covers != 0 {
				return apperror.Validation("takeaway orders have no covers")
			}
			order.Covers = *req.Covers
		}
		if req.Items != nil {
			if _, err := tx.store.DeleteUnsentOrderItems(ctx, order.ID); err != nil {
				return fmt.Errorf("delete order items: %w", err)
			}
			if err := insertItems(ctx, tx.store, order.ID, req.Items); err != nil {
				return err
			}
		}
		result, err = c.settle(ctx, tx, order, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveItem deletes an item that has not been sent to the kitchen yet.
func (c *Coordinator) RemoveItem(ctx context.Context, orderID, itemID, holder uuid.UUID) (*OrderResult, error) {
	var result *OrderResult
	err := c.runTx(ctx, "remove_item", []attribute.KeyValue{orderAttr(orderID), userAttr(holder)}, func(ctx context.Context, tx *txScope) error {
		order, table, err := c.loadOrderTx(ctx, tx, orderID, holder, false)
		if err != nil {
			return err
		}
		if err := requireActive(order, "remove items from"); err != nil {
			return err
		}
		n, err := tx.store.DeleteUnsentOrderItem(ctx, database.DeleteUnsentOrderItemParams{ID: itemID, OrderID: order.ID})
		if err != nil {
			return fmt.Errorf("delete order item: %w", err)
		}
		if n == 0 {
			return itemNotRemovable(ctx, tx.store, order, itemID)
		}
		result, err = c.settle(ctx, tx, order, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func itemNotRemovable(ctx context.Context, store Store, order database.Order, itemID uuid.UUID) error {
	item, err := store.GetOrderItem(ctx, database.GetOrderItemParams{ID: itemID, OrderID: order.ID})
	if err != nil {
		if isNoRows(err) {
			return apperror.NotFound("order item not found", map[string]any{"order_id": order.ID.String(), "item_id": itemID.String()})
		}
		return fmt.Errorf("get order item: %w", err)
	}
	state := orderState(order)
	state["item_id"] = item.ID.String()
	if item.CommandID.Valid {
		state["command_id"] = uuid.UUID(item.CommandID.Bytes).String()
	}
	return apperror.InvalidTransition("item was already sent to the kitchen", state)
}

// CompleteOrder closes the order and frees its table whoever holds the
// table lock.
func (c *Coordinator) CompleteOrder(ctx context.Context, orderID, holder uuid.UUID) (*OrderResult, error) {
	var result *OrderResult
	err := c.runTx(ctx, "complete_order", []attribute.KeyValue{orderAttr(orderID), userAttr(holder)}, func(ctx context.Context, tx *txScope) error {
		order, table, err := c.loadOrderTx(ctx, tx, orderID, holder, true)
		if err != nil {
			return err
		}
		if err := requireActive(order, "complete"); err != nil {
			return err
		}
		result, err = c.closeOrder(ctx, tx, order, table, true, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOrder cancels an active order and frees its table. The caller must
// be able to take the table lock, and releases it on success.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, holder uuid.UUID) (*OrderResult, error) {
	var result *OrderResult
	err := c.runTx(ctx, "cancel_order", []attribute.KeyValue{orderAttr(orderID), userAttr(holder)}, func(ctx context.Context, tx *txScope) error {
		order, table, err := c.loadOrderTx(ctx, tx, orderID, holder, false)
		if err != nil {
			return err
		}
		if err := requireActive(order, "cancel"); err != nil {
			return err
		}
		result, err = c.closeOrder(ctx, tx, order, table, false, false)
		if err != nil || table == nil {
			return err
		}
		if _, err := tx.locks(c.log).Release(ctx, table.ID, holder); err != nil {
			return err
		}
		if result.Table != nil {
			result.Table.LockedBy = pgtype.UUID{}
			result.Table.LockedAt = pgtype.Timestamptz{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// closeOrder completes or cancels order and, for table orders, resets the
// table, optionally force-releasing its lock first.
func (c *Coordinator) closeOrder(ctx context.Context, tx *txScope, order database.Order, table *database.DiningTable, complete, forceRelease bool) (*OrderResult, error) {
	var err error
	if complete {
		order, err = tx.store.CompleteOrder(ctx, order.ID)
	} else {
		order, err = tx.store.CancelOrder(ctx, order.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("close order: %w", err)
	}
	tx.emit(enum.TopicOrderUpdated, order)

	items, err := tx.store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	result := &OrderResult{Order: order, Items: items}
	if table == nil {
		return result, nil
	}

	if forceRelease {
		if err := tx.locks(c.log).ForceRelease(ctx, table.ID); err != nil {
			return nil, err
		}
	}
	freed, err := c.resetTable(ctx, tx, table.ID)
	if err != nil {
		return nil, err
	}
	tx.emit(enum.TopicTableUpdated, freed)
	result.Table = &freed
	return result, nil
}

// FreeTableRequest clears a table at the end of a visit.
type FreeTableRequest struct {
	TableID       uuid.UUID
	UserID        uuid.UUID
	PrintPreconto bool
}

// FreeTable completes the table's active order, optionally printing the
// pre-bill, and resets the table whoever holds its lock. An order with no
// items is cancelled instead and nothing is printed.
func (c *Coordinator) FreeTable(ctx context.Context, req FreeTableRequest) (*OrderResult, error) {
	var result *OrderResult
	err := c.runTx(ctx, "free_table", []attribute.KeyValue{tableAttr(req.TableID), userAttr(req.UserID)}, func(ctx context.Context, tx *txScope) error {
		table, err := tx.store.GetDiningTableForUpdate(ctx, req.TableID)
		if err != nil {
			if isNoRows(err) {
				return tableNotFound(req.TableID)
			}
			return fmt.Errorf("get table: %w", err)
		}
		order, err := activeOrder(ctx, tx.store, table.ID)
		if err != nil {
			return err
		}
		if err := validatePair(table, order); err != nil {
			return err
		}
		if order == nil {
			return apperror.InvalidTransition(fmt.Sprintf("table %d is already free", table.Number), pairState(table, nil))
		}

		items, err := tx.store.ListOrderItemsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		// Freeing is the completion path for the table, so it force-releases
		// even when an empty order is cancelled rather than completed.
		if len(items) == 0 {
			result, err = c.closeOrder(ctx, tx, *order, &table, false, true)
			return err
		}

		if result, err = c.closeOrder(ctx, tx, *order, &table, true, true); err != nil {
			return err
		}
		if req.PrintPreconto {
			job, err := printqueue.Enqueue(ctx, tx.store, printqueue.PrecontoPayload{
				OrderID: order.ID,
				TableID: uuid.NullUUID{UUID: table.ID, Valid: true},
			}, c.printMaxAttempts)
			if err != nil {
				return err
			}
			tx.emit(enum.TopicPrintJobCreated, job)
			result.PrintJob = &job
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestPreconto enqueues a pre-bill for any order that was not cancelled.
func (c *Coordinator) RequestPreconto(ctx context.Context, orderID, holder uuid.UUID) (*database.PrintQueueJob, error) {
	var job database.PrintQueueJob
	err := c.runTx(ctx, "request_preconto", []attribute.KeyValue{orderAttr(orderID), userAttr(holder)}, func(ctx context.Context, tx *txScope) error {
		order, err := tx.store.GetOrder(ctx, orderID)
		if err != nil {
			if isNoRows(err) {
				return orderNotFound(orderID)
			}
			return fmt.Errorf("get order: %w", err)
		}
		if order.Status == database.OrderStatusCancelled {
			return apperror.InvalidTransition("cannot print a pre-bill for a cancelled order", orderState(order))
		}
		job, err = printqueue.Enqueue(ctx, tx.store, printqueue.PrecontoPayload{
			OrderID: order.ID,
			TableID: uuid.NullUUID{UUID: uuid.UUID(order.TableID.Bytes), Valid: order.TableID.Valid},
		}, c.printMaxAttempts)
		if err != nil {
			return err
		}
		tx.emit(enum.TopicPrintJobCreated, job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}
