package dto

import (
	"encoding/json"
	"time"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/domain/counting"
)

// OpenSessionRequest opens a count session.
type OpenSessionRequest struct {
	Name string `json:"name" binding:"required,max=200"`
	// Scope is an optional CEL expression over product, e.g. product.category == "dairy".
	Scope            string `json:"scope"`
	PrefillZeroStock bool   `json:"prefillZeroStock"`
}

// ToInput converts the request for a store.
func (r OpenSessionRequest) ToInput(storeID id.ID) counting.OpenInput {
	return counting.OpenInput{
		StoreID:          storeID,
		Name:             r.Name,
		Scope:            r.Scope,
		PrefillZeroStock: r.PrefillZeroStock,
	}
}

// ListSessionsQuery filters session listings.
type ListSessionsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=open finalized"`
	PageQuery
}

// StatusFilter maps the query value to a session status.
func (q ListSessionsQuery) StatusFilter() counting.Status {
	switch q.Status {
	case "open":
		return counting.StatusOpen
	case "finalized":
		return counting.StatusFinalized
	}
	return ""
}

// SessionResponse is the session projection.
type SessionResponse struct {
	ID               id.ID           `json:"id"`
	StoreID          id.ID           `json:"storeId"`
	Name             string          `json:"name"`
	Status           counting.Status `json:"status"`
	Scope            string          `json:"scope,omitempty"`
	PrefillZeroStock bool            `json:"prefillZeroStock"`
	CreatedAt        time.Time       `json:"createdAt"`
	CreatedBy        string          `json:"createdBy"`
	FinalizedAt      *time.Time      `json:"finalizedAt"`
	FinalizedBy      *string         `json:"finalizedBy,omitempty"`
	Reconciled       bool            `json:"reconciled"`
}

func FromSession(s counting.Session) SessionResponse {
	return SessionResponse{
		ID:               s.ID,
		StoreID:          s.StoreID,
		Name:             s.Name,
		Status:           s.Status(),
		Scope:            s.Scope,
		PrefillZeroStock: s.PrefillZeroStock,
		CreatedAt:        s.CreatedAt,
		CreatedBy:        s.CreatedBy,
		FinalizedAt:      s.FinalizedAt,
		FinalizedBy:      s.FinalizedBy,
		Reconciled:       s.Reconciled,
	}
}

// RecordCountRequest records a physical count. Negative values are rejected
// by the engine with INVALID_QUANTITY.
type RecordCountRequest struct {
	// Decoded as a number literal so that 3.5 is an invalid quantity rather
	// than a malformed body.
	PhysicalStock *json.Number `json:"physicalStock" binding:"required"`
}

// Quantity returns the count as a whole number.
func (r RecordCountRequest) Quantity() (int64, error) {
	n, err := r.PhysicalStock.Int64()
	if err != nil {
		return 0, apperror.NewInvalidQuantity("physical stock must be a whole number", 0).
			WithDetail("quantity", r.PhysicalStock.String())
	}
	return n, nil
}

// ItemResponse is a count item with its classification.
type ItemResponse struct {
	ID             id.ID                   `json:"id"`
	SessionID      id.ID                   `json:"sessionId"`
	StoreProductID id.ID                   `json:"storeProductId"`
	PhysicalStock  int64                   `json:"physicalStock"`
	ExpectedStock  int64                   `json:"expectedStock"`
	Difference     int64                   `json:"difference"`
	Classification counting.Classification `json:"classification"`
	Revision       int                     `json:"revision"`
	UpdatedAt      time.Time               `json:"updatedAt"`
	UpdatedBy      string                  `json:"updatedBy"`
}

func FromItem(it counting.Item) ItemResponse {
	return ItemResponse{
		ID:             it.ID,
		SessionID:      it.SessionID,
		StoreProductID: it.StoreProductID,
		PhysicalStock:  it.PhysicalStock,
		ExpectedStock:  it.ExpectedStock,
		Difference:     it.Difference,
		Classification: it.Classification(),
		Revision:       it.Revision,
		UpdatedAt:      it.UpdatedAt,
		UpdatedBy:      it.UpdatedBy,
	}
}

// CloseSessionRequest chooses between the two close operations.
type CloseSessionRequest struct {
	Reconcile bool `json:"reconcile"`
}
