// Package ledger provides the append-only stock ledger: inventory movements
// per store product and the theoretical stock derived from them.
package ledger

import (
	"time"

	"storecount/internal/core/id"
)

// MovementType classifies a ledger entry.
type MovementType string

const (
	TypeIncoming MovementType = "INCOMING"
	TypeOutgoing MovementType = "OUTGOING"
	TypeSale     MovementType = "SALE"
	TypeReturn   MovementType = "RETURN"
	TypeAdjust   MovementType = "ADJUST"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case TypeIncoming, TypeOutgoing, TypeSale, TypeReturn, TypeAdjust:
		return true
	}
	return false
}

// Signed returns the effect of quantity on stock for this type.
// ADJUST quantities are already signed.
func (t MovementType) Signed(quantity int64) int64 {
	switch t {
	case TypeOutgoing, TypeSale:
		return -quantity
	default:
		return quantity
	}
}

// Movement is a single ledger entry. Entries are never updated or deleted.
type Movement struct {
	ID             id.ID        `db:"id" json:"id"`
	StoreID        id.ID        `db:"store_id" json:"storeId"`
	StoreProductID id.ID        `db:"store_product_id" json:"storeProductId"`
	Type           MovementType `db:"type" json:"type"`
	Quantity       int64        `db:"quantity" json:"quantity"`
	Description    string       `db:"description" json:"description"`
	CreatedBy      string       `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	IdempotencyKey *string      `db:"idempotency_key" json:"idempotencyKey,omitempty"`
}

// SignedQuantity returns the movement's effect on theoretical stock.
func (m Movement) SignedQuantity() int64 {
	return m.Type.Signed(m.Quantity)
}

// AppendInput describes a movement to append.
type AppendInput struct {
	StoreID        id.ID
	StoreProductID id.ID
	Type           MovementType
	Quantity       int64
	Description    string
	Actor          string
	// IdempotencyKey, when set, makes the append safe to repeat: a second
	// append with the same key returns the first movement unchanged.
	IdempotencyKey string
}

// AppendResult is the stored movement and whether it was already present.
type AppendResult struct {
	Movement Movement `json:"movement"`
	Replayed bool     `json:"replayed"`
}

// StockLevel is the theoretical stock of one product.
type StockLevel struct {
	StoreProductID id.ID `db:"store_product_id" json:"storeProductId"`
	Quantity       int64 `db:"quantity" json:"quantity"`
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	StoreID        id.ID
	StoreProductID *id.ID
	Type           MovementType
	Limit          int
}
