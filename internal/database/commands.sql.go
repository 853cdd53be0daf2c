package database

import (
	"context"

	"github.com/google/uuid"
)

const commandColumns = `id, order_id, command_number, status, created_at, sent_at, printed_at`

func scanCommand(row interface{ Scan(...any) error }) (Command, error) {
	var i Command
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.CommandNumber,
		&i.Status,
		&i.CreatedAt,
		&i.SentAt,
		&i.PrintedAt,
	)
	return i, err
}

const getMaxCommandNumber = `-- name: GetMaxCommandNumber :one
SELECT COALESCE(MAX(command_number), 0)::INTEGER FROM commands WHERE order_id = $1`

func (q *Queries) GetMaxCommandNumber(ctx context.Context, orderID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, getMaxCommandNumber, orderID)
	var n int32
	err := row.Scan(&n)
	return n, err
}

const createCommand = `-- name: CreateCommand :one
INSERT INTO commands (order_id, command_number)
VALUES ($1, $2)
RETURNING ` + commandColumns

type CreateCommandParams struct {
	OrderID       uuid.UUID `json:"order_id"`
	CommandNumber int32     `json:"command_number"`
}

func (q *Queries) CreateCommand(ctx context.Context, arg CreateCommandParams) (Command, error) {
	return scanCommand(q.db.QueryRow(ctx, createCommand, arg.OrderID, arg.CommandNumber))
}

const getCommand = `-- name: GetCommand :one
SELECT ` + commandColumns + ` FROM commands WHERE id = $1`

func (q *Queries) GetCommand(ctx context.Context, id uuid.UUID) (Command, error) {
	return scanCommand(q.db.QueryRow(ctx, getCommand, id))
}

const listCommandsByOrder = `-- name: ListCommandsByOrder :many
SELECT ` + commandColumns + ` FROM commands WHERE order_id = $1 ORDER BY command_number`

func (q *Queries) ListCommandsByOrder(ctx context.Context, orderID uuid.UUID) ([]Command, error) {
	rows, err := q.db.Query(ctx, listCommandsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Command{}
	for rows.Next() {
		i, err := scanCommand(rows)
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

const updateCommandStatus = `-- name: UpdateCommandStatus :one
UPDATE commands
SET status = $2,
    sent_at = CASE WHEN $2 = 'sent'::command_status THEN COALESCE(sent_at, now()) ELSE sent_at END,
    printed_at = CASE WHEN $2 = 'printed'::command_status THEN now() ELSE printed_at END
WHERE id = $1
RETURNING ` + commandColumns

type UpdateCommandStatusParams struct {
	ID     uuid.UUID     `json:"id"`
	Status CommandStatus `json:"status"`
}

func (q *Queries) UpdateCommandStatus(ctx context.Context, arg UpdateCommandStatusParams) (Command, error) {
	return scanCommand(q.db.QueryRow(ctx, updateCommandStatus, arg.ID, arg.Status))
}
