package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"storecount/internal/core/id"
	"storecount/internal/domain/counting"
	"storecount/internal/infrastructure/http/v1/dto"
	"storecount/internal/infrastructure/storage/postgres"
)

// AuditHistory reads the audit trail of an entity, newest first.
type AuditHistory interface {
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// AuditHandler serves the audit trail of count sessions.
type AuditHandler struct {
	*BaseHandler
	sessions *counting.Service
	audit    AuditHistory
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, sessions *counting.Service, audit AuditHistory) *AuditHandler {
	return &AuditHandler{BaseHandler: base, sessions: sessions, audit: audit}
}

// SessionHistory handles GET /count-sessions/:id/audit
func (h *AuditHandler) SessionHistory(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	sessionID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var q dto.AuditQuery
	if !h.BindQuery(c, &q) {
		return
	}

	// Resolves the session's store and checks VIEW_INVENTORY there.
	if _, err := h.sessions.GetSession(c.Request.Context(), actor, sessionID); err != nil {
		h.Error(c, err)
		return
	}

	entries, err := h.audit.History(c.Request.Context(), counting.AggregateCountSession, sessionID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	out := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.FromAuditEntry(e))
	}
	h.OK(c, gin.H{"items": out})
}
