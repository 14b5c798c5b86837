package counting

import (
	"time"

	"storecount/internal/core/id"
)

// Names used for outbox events and audit entries of count sessions.
const (
	AggregateCountSession = "count_session"
	EventSessionFinalized = "count_session.finalized"
)

// FinalizedEvent is the payload published when a session is finalized.
type FinalizedEvent struct {
	SessionID   id.ID     `json:"sessionId"`
	StoreID     id.ID     `json:"storeId"`
	Reconciled  bool      `json:"reconciled"`
	Adjustments int       `json:"adjustments"`
	FinalizedAt time.Time `json:"finalizedAt"`
}

// Event returns the finalized event of f.
func (f *Finalization) Event() FinalizedEvent {
	e := FinalizedEvent{
		SessionID:   f.Session.ID,
		StoreID:     f.Session.StoreID,
		Reconciled:  f.Session.Reconciled,
		Adjustments: len(f.Adjustments),
	}
	if f.Session.FinalizedAt != nil {
		e.FinalizedAt = *f.Session.FinalizedAt
	}
	return e
}
