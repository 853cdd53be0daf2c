package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderItemColumns = `id, order_id, command_id, product_id, product_name, flavors, supplements,
    quantity, unit_price, supplements_total, total_price, course, custom_note, seq, created_at`

func scanOrderItem(row interface{ Scan(...any) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.CommandID,
		&i.ProductID,
		&i.ProductName,
		&i.Flavors,
		&i.Supplements,
		&i.Quantity,
		&i.UnitPrice,
		&i.SupplementsTotal,
		&i.TotalPrice,
		&i.Course,
		&i.CustomNote,
		&i.Seq,
		&i.CreatedAt,
	)
	return i, err
}

func collectOrderItems(q *Queries, ctx context.Context, sql string, args ...any) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		i, err := scanOrderItem(rows)
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

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (
    order_id, product_id, product_name, flavors, supplements, quantity,
    unit_price, supplements_total, total_price, course, custom_note
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID          uuid.UUID      `json:"order_id"`
	ProductID        uuid.UUID      `json:"product_id"`
	ProductName      string         `json:"product_name"`
	Flavors          []string       `json:"flavors"`
	Supplements      []byte         `json:"supplements"`
	Quantity         int32          `json:"quantity"`
	UnitPrice        pgtype.Numeric `json:"unit_price"`
	SupplementsTotal pgtype.Numeric `json:"supplements_total"`
	TotalPrice       pgtype.Numeric `json:"total_price"`
	Course           int32          `json:"course"`
	CustomNote       pgtype.Text    `json:"custom_note"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.ProductName,
		arg.Flavors,
		arg.Supplements,
		arg.Quantity,
		arg.UnitPrice,
		arg.SupplementsTotal,
		arg.TotalPrice,
		arg.Course,
		arg.CustomNote,
	))
}

const getOrderItem = `-- name: GetOrderItem :one
SELECT ` + orderItemColumns + ` FROM order_items WHERE id = $1 AND order_id = $2`

type GetOrderItemParams struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
}

func (q *Queries) GetOrderItem(ctx context.Context, arg GetOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, getOrderItem, arg.ID, arg.OrderID))
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1
ORDER BY course, seq`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	return collectOrderItems(q, ctx, listOrderItemsByOrder, orderID)
}

const listUnsentOrderItems = `-- name: ListUnsentOrderItems :many
SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1 AND command_id IS NULL
ORDER BY course, seq`

func (q *Queries) ListUnsentOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	return collectOrderItems(q, ctx, listUnsentOrderItems, orderID)
}

const listOrderItemsByCommand = `-- name: ListOrderItemsByCommand :many
SELECT ` + orderItemColumns + ` FROM order_items
WHERE command_id = $1
ORDER BY course, seq`

func (q *Queries) ListOrderItemsByCommand(ctx context.Context, commandID uuid.UUID) ([]OrderItem, error) {
	return collectOrderItems(q, ctx, listOrderItemsByCommand, commandID)
}

// Only items not yet bound to a command are touched, so a concurrent send
// that already claimed them is never overwritten.
const assignItemsToCommand = `-- name: AssignItemsToCommand :execrows
UPDATE order_items
SET command_id = $2
WHERE order_id = $1 AND command_id IS NULL`

type AssignItemsToCommandParams struct {
	OrderID   uuid.UUID `json:"order_id"`
	CommandID uuid.UUID `json:"command_id"`
}

func (q *Queries) AssignItemsToCommand(ctx context.Context, arg AssignItemsToCommandParams) (int64, error) {
	result, err := q.db.Exec(ctx, assignItemsToCommand, arg.OrderID, arg.CommandID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteUnsentOrderItem = `-- name: DeleteUnsentOrderItem :execrows
DELETE FROM order_items
WHERE id = $1 AND order_id = $2 AND command_id IS NULL`

type DeleteUnsentOrderItemParams struct {
	ID      uuid.UUID `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
}

func (q *Queries) DeleteUnsentOrderItem(ctx context.Context, arg DeleteUnsentOrderItemParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteUnsentOrderItem, arg.ID, arg.OrderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteUnsentOrderItems = `-- name: DeleteUnsentOrderItems :execrows
DELETE FROM order_items
WHERE order_id = $1 AND command_id IS NULL`

func (q *Queries) DeleteUnsentOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteUnsentOrderItems, orderID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
