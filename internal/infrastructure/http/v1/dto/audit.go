package dto

import (
	"encoding/json"
	"time"

	"storecount/internal/core/id"
	"storecount/internal/infrastructure/storage/postgres"
)

// AuditQuery bounds an audit trail listing.
type AuditQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// AuditEntryResponse is one audit trail entry with its changes decompressed.
type AuditEntryResponse struct {
	ID        id.ID                `json:"id"`
	Action    postgres.AuditAction `json:"action"`
	UserID    string               `json:"userId"`
	Changes   json.RawMessage      `json:"changes"`
	CreatedAt time.Time            `json:"createdAt"`
}

func FromAuditEntry(e postgres.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID,
		Action:    e.Action,
		UserID:    e.UserID,
		Changes:   e.Changes,
		CreatedAt: e.CreatedAt,
	}
}
