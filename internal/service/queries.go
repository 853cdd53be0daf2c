package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/kiwari-pos/tableservice/internal/enum"
	"go.opentelemetry.io/otel/attribute"
)

// LockTable takes or renews holder's edit lock on the table.
func (c *Coordinator) LockTable(ctx context.Context, tableID, holder uuid.UUID) (database.DiningTable, error) {
	var table database.DiningTable
	err := c.runTx(ctx, "lock_table", []attribute.KeyValue{tableAttr(tableID), userAttr(holder)}, func(ctx context.Context, tx *txScope) error {
		var err error
		table, err = tx.locks(c.log).Acquire(ctx, tableID, holder)
		if err != nil {
			return err
		}
		tx.emit(enum.TopicTableUpdated, table)
		return nil
	})
	return table, err
}

// UnlockTable releases holder's lock. false means there was nothing of
// holder's to release.
func (c *Coordinator) UnlockTable(ctx context.Context, tableID, holder uuid.UUID) (bool, error) {
	var released bool
	err := c.runTx(ctx, "unlock_table", []attribute.KeyValue{tableAttr(tableID), userAttr(holder)}, func(ctx context.Context, tx *txScope) error {
		var err error
		released, err = tx.locks(c.log).Release(ctx, tableID, holder)
		if err != nil {
			return err
		}
		table, err := tx.store.GetDiningTable(ctx, tableID)
		if err != nil {
			if isNoRows(err) {
				return tableNotFound(tableID)
			}
			return fmt.Errorf("get table: %w", err)
		}
		if !released {
			return nil
		}
		tx.emit(enum.TopicTableUpdated, table)
		return nil
	})
	return released, err
}

// SweepExpiredLocks clears every table lock older than ttl.
func (c *Coordinator) SweepExpiredLocks(ctx context.Context, ttl time.Duration) ([]database.DiningTable, error) {
	var swept []database.DiningTable
	err := c.runTx(ctx, "sweep_locks", nil, func(ctx context.Context, tx *txScope) error {
		var err error
		swept, err = tx.locks(c.log).SweepExpired(ctx, ttl)
		if err != nil {
			return err
		}
		for _, t := range swept {
			tx.emit(enum.TopicTableLockSwept, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(swept) > 0 {
		c.log.Info("table locks swept", "count", len(swept))
	}
	return swept, nil
}

// ListTables returns every table with its lock state, by number.
func (c *Coordinator) ListTables(ctx context.Context) ([]database.DiningTable, error) {
	var tables []database.DiningTable
	err := c.runTx(ctx, "list_tables", nil, func(ctx context.Context, tx *txScope) error {
		var err error
		tables, err = tx.store.ListDiningTables(ctx)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		return nil
	})
	return tables, err
}

// OrderDetail is an order with its items and kitchen commands.
type OrderDetail struct {
	Order    database.Order
	Items    []database.OrderItem
	Commands []database.Command
}

// TableDetail is a table and, when seated, its active order.
type TableDetail struct {
	Table database.DiningTable
	*OrderDetail
}

func (c *Coordinator) GetTableDetail(ctx context.Context, tableID uuid.UUID) (*TableDetail, error) {
	var detail TableDetail
	err := c.runTx(ctx, "get_table", []attribute.KeyValue{tableAttr(tableID)}, func(ctx context.Context, tx *txScope) error {
		table, err := tx.store.GetDiningTable(ctx, tableID)
		if err != nil {
			if isNoRows(err) {
				return tableNotFound(tableID)
			}
			return fmt.Errorf("get table: %w", err)
		}
		detail.Table = table

		order, err := tx.store.FindActiveOrderByTable(ctx, tableID)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return fmt.Errorf("find active order: %w", err)
		}
		detail.OrderDetail, err = orderDetail(ctx, tx.store, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Coordinator) GetOrderDetail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	var detail *OrderDetail
	err := c.runTx(ctx, "get_order", []attribute.KeyValue{orderAttr(orderID)}, func(ctx context.Context, tx *txScope) error {
		order, err := tx.store.GetOrder(ctx, orderID)
		if err != nil {
			if isNoRows(err) {
				return orderNotFound(orderID)
			}
			return fmt.Errorf("get order: %w", err)
		}
		detail, err = orderDetail(ctx, tx.store, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func orderDetail(ctx context.Context, store Store, order database.Order) (*OrderDetail, error) {
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	commands, err := store.ListCommandsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return &OrderDetail{Order: order, Items: items, Commands: commands}, nil
}
