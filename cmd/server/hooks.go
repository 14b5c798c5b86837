package main

import (
	"context"
	"fmt"

	"storecount/internal/domain"
	"storecount/internal/domain/counting"
	"storecount/internal/infrastructure/storage/postgres"
)

// registerHooks wires the outbox and the audit log into the session
// lifecycle.
func registerHooks(svc *counting.Service, outbox *postgres.OutboxPublisher, audit *postgres.AuditLog) {
	svc.OpenHooks().On(domain.AfterOpen, func(ctx context.Context, s *counting.Session) error {
		return audit.Record(ctx, counting.AggregateCountSession, s.ID, postgres.AuditActionOpen, s)
	})

	// Runs inside the finalizing transaction: the event and the audit entry
	// commit together with the session.
	svc.FinalizeHooks().On(domain.BeforeFinalize, func(ctx context.Context, fin *counting.Finalization) error {
		err := outbox.Publish(ctx, postgres.DomainEvent{
			AggregateType: counting.AggregateCountSession,
			AggregateID:   fin.Session.ID,
			EventType:     counting.EventSessionFinalized,
			Payload:       fin.Event(),
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", counting.EventSessionFinalized, err)
		}
		return audit.Record(ctx, counting.AggregateCountSession, fin.Session.ID, postgres.AuditActionFinalize, fin.Report)
	})
}
