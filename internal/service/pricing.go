package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/tableservice/internal/apperror"
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/shopspring/decimal"
)

const (
	minQuantity   = 1
	maxQuantity   = 99
	maxNoteLength = 500
	maxCourse     = 9
)

// ItemInput is one line a waiter adds to an order.
type ItemInput struct {
	ProductID     uuid.UUID
	Quantity      int32
	Flavors       []string
	SupplementIDs []uuid.UUID
	Course        *int32 // nil uses the product's course
	Note          string
}

func validateItems(items []ItemInput) error {
	for i, it := range items {
		if it.ProductID == uuid.Nil {
			return apperror.Validation(fmt.Sprintf("items[%d]: product_id is required", i))
		}
		if it.Quantity < minQuantity || it.Quantity > maxQuantity {
			return apperror.Validation(fmt.Sprintf("items[%d]: quantity must be between %d and %d", i, minQuantity, maxQuantity))
		}
		if utf8.RuneCountInString(it.Note) > maxNoteLength {
			return apperror.Validation(fmt.Sprintf("items[%d]: note exceeds %d characters", i, maxNoteLength))
		}
		if it.Course != nil && (*it.Course < 1 || *it.Course > maxCourse) {
			return apperror.Validation(fmt.Sprintf("items[%d]: course must be between 1 and %d", i, maxCourse))
		}
		for j, f := range it.Flavors {
			if strings.TrimSpace(f) == "" {
				return apperror.Validation(fmt.Sprintf("items[%d].flavors[%d]: must not be blank", i, j))
			}
		}
	}
	return nil
}

// priceItem resolves the product and supplements and snapshots their names
// and prices onto the new row.
func priceItem(ctx context.Context, store CatalogStore, orderID uuid.UUID, i int, in ItemInput) (database.CreateOrderItemParams, error) {
	product, err := store.GetProductForOrder(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.CreateOrderItemParams{}, apperror.Validation(fmt.Sprintf("items[%d]: product not found", i))
		}
		return database.CreateOrderItemParams{}, fmt.Errorf("items[%d]: get product: %w", i, err)
	}
	if !product.IsAvailable {
		return database.CreateOrderItemParams{}, apperror.Validation(fmt.Sprintf("items[%d]: %s is not available", i, product.Name))
	}

	sups := make([]database.ItemSupplement, 0, len(in.SupplementIDs))
	supTotal := decimal.Zero
	for j, id := range in.SupplementIDs {
		s, err := store.GetSupplementForOrder(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.CreateOrderItemParams{}, apperror.Validation(fmt.Sprintf("items[%d].supplements[%d]: supplement not found", i, j))
			}
			return database.CreateOrderItemParams{}, fmt.Errorf("items[%d].supplements[%d]: get supplement: %w", i, j, err)
		}
		price := database.NumericToDecimal(s.Price)
		sups = append(sups, database.ItemSupplement{ID: s.ID, Name: s.Name, Price: price})
		supTotal = supTotal.Add(price)
	}
	encoded, err := database.EncodeSupplements(sups)
	if err != nil {
		return database.CreateOrderItemParams{}, fmt.Errorf("items[%d]: %w", i, err)
	}

	unit := database.NumericToDecimal(product.Price)
	course := product.Course
	if in.Course != nil {
		course = *in.Course
	}
	flavors := in.Flavors
	if flavors == nil {
		flavors = []string{}
	}
	note := strings.TrimSpace(in.Note)

	return database.CreateOrderItemParams{
		OrderID:          orderID,
		ProductID:        product.ID,
		ProductName:      product.Name,
		Flavors:          flavors,
		Supplements:      encoded,
		Quantity:         in.Quantity,
		UnitPrice:        database.DecimalToNumeric(unit),
		SupplementsTotal: database.DecimalToNumeric(supTotal),
		TotalPrice:       database.DecimalToNumeric(ItemTotal(unit, supTotal, in.Quantity)),
		Course:           course,
		CustomNote:       pgtype.Text{String: note, Valid: note != ""},
	}, nil
}

func insertItems(ctx context.Context, store Store, orderID uuid.UUID, items []ItemInput) error {
	for i, in := range items {
		params, err := priceItem(ctx, store, orderID, i, in)
		if err != nil {
			return err
		}
		if _, err := store.CreateOrderItem(ctx, params); err != nil {
			return fmt.Errorf("items[%d]: create order item: %w", i, err)
		}
	}
	return nil
}
