package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, table_id, user_id, status, covers, subtotal, cover_charge, total,
    created_at, updated_at, sent_at, completed_at, cancelled_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TableID,
		&i.UserID,
		&i.Status,
		&i.Covers,
		&i.Subtotal,
		&i.CoverCharge,
		&i.Total,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.SentAt,
		&i.CompletedAt,
		&i.CancelledAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (table_id, user_id, covers)
VALUES ($1, $2, $3)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	TableID pgtype.UUID `json:"table_id"`
	UserID  uuid.UUID   `json:"user_id"`
	Covers  int32       `json:"covers"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder, arg.TableID, arg.UserID, arg.Covers))
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getActiveOrderByTable = `-- name: GetActiveOrderByTable :one
SELECT ` + orderColumns + ` FROM orders
WHERE table_id = $1 AND status IN ('pending', 'sent')
FOR UPDATE`

func (q *Queries) GetActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getActiveOrderByTable, tableID))
}

const findActiveOrderByTable = `-- name: FindActiveOrderByTable :one
SELECT ` + orderColumns + ` FROM orders
WHERE table_id = $1 AND status IN ('pending', 'sent')`

func (q *Queries) FindActiveOrderByTable(ctx context.Context, tableID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, findActiveOrderByTable, tableID))
}

const updateOrderTotals = `-- name: UpdateOrderTotals :one
UPDATE orders
SET covers = $2, subtotal = $3, cover_charge = $4, total = $5, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID          uuid.UUID      `json:"id"`
	Covers      int32          `json:"covers"`
	Subtotal    pgtype.Numeric `json:"subtotal"`
	CoverCharge pgtype.Numeric `json:"cover_charge"`
	Total       pgtype.Numeric `json:"total"`
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID,
		arg.Covers,
		arg.Subtotal,
		arg.CoverCharge,
		arg.Total,
	))
}

const markOrderSent = `-- name: MarkOrderSent :one
UPDATE orders
SET status = 'sent', sent_at = COALESCE(sent_at, now()), updated_at = now()
WHERE id = $1 AND status IN ('pending', 'sent')
RETURNING ` + orderColumns

func (q *Queries) MarkOrderSent(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderSent, id))
}

const completeOrder = `-- name: CompleteOrder :one
UPDATE orders
SET status = 'completed', completed_at = now(), updated_at = now()
WHERE id = $1 AND status IN ('pending', 'sent')
RETURNING ` + orderColumns

func (q *Queries) CompleteOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, completeOrder, id))
}

const cancelOrder = `-- name: CancelOrder :one
UPDATE orders
SET status = 'cancelled', cancelled_at = now(), updated_at = now()
WHERE id = $1 AND status IN ('pending', 'sent')
RETURNING ` + orderColumns

func (q *Queries) CancelOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, cancelOrder, id))
}
