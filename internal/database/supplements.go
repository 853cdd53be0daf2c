package database

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemSupplement is the snapshot of a supplement stored in
// order_items.supplements, so later catalog edits do not change past orders.
type ItemSupplement struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func EncodeSupplements(s []ItemSupplement) ([]byte, error) {
	if s == nil {
		s = []ItemSupplement{}
	}
	return json.Marshal(s)
}

func DecodeSupplements(raw []byte) ([]ItemSupplement, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s []ItemSupplement
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}
