package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getProductForOrder = `-- name: GetProductForOrder :one
SELECT id, name, price, course, is_available FROM products WHERE id = $1`

func (q *Queries) GetProductForOrder(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, getProductForOrder, id)
	var i Product
	err := row.Scan(&i.ID, &i.Name, &i.Price, &i.Course, &i.IsAvailable)
	return i, err
}

const getSupplementForOrder = `-- name: GetSupplementForOrder :one
SELECT id, name, price FROM supplements WHERE id = $1`

func (q *Queries) GetSupplementForOrder(ctx context.Context, id uuid.UUID) (Supplement, error) {
	row := q.db.QueryRow(ctx, getSupplementForOrder, id)
	var i Supplement
	err := row.Scan(&i.ID, &i.Name, &i.Price)
	return i, err
}

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (name, price, course) VALUES ($1, $2, $3)
RETURNING id, name, price, course, is_available`

type CreateProductParams struct {
	Name   string         `json:"name"`
	Price  pgtype.Numeric `json:"price"`
	Course int32          `json:"course"`
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct, arg.Name, arg.Price, arg.Course)
	var i Product
	err := row.Scan(&i.ID, &i.Name, &i.Price, &i.Course, &i.IsAvailable)
	return i, err
}

const createSupplement = `-- name: CreateSupplement :one
INSERT INTO supplements (name, price) VALUES ($1, $2)
RETURNING id, name, price`

type CreateSupplementParams struct {
	Name  string         `json:"name"`
	Price pgtype.Numeric `json:"price"`
}

func (q *Queries) CreateSupplement(ctx context.Context, arg CreateSupplementParams) (Supplement, error) {
	row := q.db.QueryRow(ctx, createSupplement, arg.Name, arg.Price)
	var i Supplement
	err := row.Scan(&i.ID, &i.Name, &i.Price)
	return i, err
}
