package main

import (
	"context"
	"encoding/json"
	"fmt"

	"storecount/internal/domain/counting"
	"storecount/internal/infrastructure/storage/postgres"
	"storecount/pkg/logger"
)

// NewEventHandler returns the outbox handler. Finalized sessions are decoded
// and logged for downstream collectors; unknown event types are acknowledged
// so they do not block the relay.
func NewEventHandler(log *logger.Logger) func(ctx context.Context, msg *postgres.OutboxMessage) error {
	log = log.WithComponent("outbox")
	return func(ctx context.Context, msg *postgres.OutboxMessage) error {
		switch msg.EventType {
		case counting.EventSessionFinalized:
			var ev counting.FinalizedEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return fmt.Errorf("decode %s %s: %w", msg.EventType, msg.ID, err)
			}
			log.Infow("count session finalized",
				"message_id", msg.ID,
				"session_id", ev.SessionID,
				"store_id", ev.StoreID,
				"reconciled", ev.Reconciled,
				"adjustments", ev.Adjustments,
				"finalized_at", ev.FinalizedAt,
			)
		default:
			log.Warnw("skipping unknown outbox event", "message_id", msg.ID, "event_type", msg.EventType)
		}
		return nil
	}
}
