// Package counting implements physical inventory counts: count sessions,
// per-product count items, discrepancy classification, reconciliation
// against the stock ledger on close, and session reports.
package counting

import (
	"strings"
	"time"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
)

// Session is one bounded counting exercise for a store.
// A session is open while FinalizedAt is nil; finalization is permanent.
type Session struct {
	ID               id.ID      `db:"id" json:"id"`
	StoreID          id.ID      `db:"store_id" json:"storeId"`
	Name             string     `db:"name" json:"name"`
	Scope            string     `db:"scope" json:"scope,omitempty"`
	PrefillZeroStock bool       `db:"prefill_zero_stock" json:"prefillZeroStock"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	CreatedBy        string     `db:"created_by" json:"createdBy"`
	FinalizedAt      *time.Time `db:"finalized_at" json:"finalizedAt"`
	FinalizedBy      *string    `db:"finalized_by" json:"finalizedBy,omitempty"`
	Reconciled       bool       `db:"reconciled" json:"reconciled"`
}

// Status is the derived lifecycle state of a session.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusFinalized Status = "FINALIZED"
)

// IsOpen reports whether the session still accepts counts.
func (s *Session) IsOpen() bool {
	return s.FinalizedAt == nil
}

// Status returns OPEN or FINALIZED.
func (s *Session) Status() Status {
	if s.IsOpen() {
		return StatusOpen
	}
	return StatusFinalized
}

// EnsureOpen fails with SESSION_CLOSED for a finalized session.
func (s *Session) EnsureOpen() error {
	if !s.IsOpen() {
		return apperror.NewSessionClosed(s.ID)
	}
	return nil
}

// Finalize moves the session to FINALIZED. It can happen once.
func (s *Session) Finalize(at time.Time, by string, reconciled bool) error {
	if err := s.EnsureOpen(); err != nil {
		return err
	}
	s.FinalizedAt = &at
	s.FinalizedBy = &by
	s.Reconciled = reconciled
	return nil
}

// Validate checks the fields an operator supplies at open.
func (s *Session) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return apperror.NewValidation("session name is required")
	}
	if len(s.Name) > 200 {
		return apperror.NewValidation("session name is too long").WithDetail("max_length", 200)
	}
	if id.IsNil(s.StoreID) {
		return apperror.NewValidation("store_id is required")
	}
	return nil
}

// Item is the physical count of one product within a session.
// Difference always equals PhysicalStock - ExpectedStock.
type Item struct {
	ID             id.ID     `db:"id" json:"id"`
	SessionID      id.ID     `db:"session_id" json:"sessionId"`
	StoreProductID id.ID     `db:"store_product_id" json:"storeProductId"`
	PhysicalStock  int64     `db:"physical_stock" json:"physicalStock"`
	ExpectedStock  int64     `db:"expected_stock" json:"expectedStock"`
	Difference     int64     `db:"difference" json:"difference"`
	Revision       int       `db:"revision" json:"revision"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
	UpdatedBy      string    `db:"updated_by" json:"updatedBy"`
}

// NewItem builds a count record with its difference computed from the
// expected stock captured now.
func NewItem(sessionID, productID id.ID, physical, expected int64, at time.Time, by string) Item {
	d := ComputeDifference(physical, expected)
	return Item{
		ID:             id.New(),
		SessionID:      sessionID,
		StoreProductID: productID,
		PhysicalStock:  physical,
		ExpectedStock:  expected,
		Difference:     d.Difference,
		Revision:       1,
		UpdatedAt:      at,
		UpdatedBy:      by,
	}
}

// Classification of the item's current difference.
func (i Item) Classification() Classification {
	return Classify(i.Difference)
}
