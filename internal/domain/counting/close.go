package counting

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/core/security"
	"storecount/internal/domain"
	"storecount/internal/domain/ledger"
	"storecount/pkg/logger"
)

var tracer = otel.Tracer("storecount/counting")

// Finalization is what finalize hooks receive.
type Finalization struct {
	Session *Session
	Report  *Report
	// Adjustments are the ADJUST movements backing the close, including
	// ones replayed from an earlier partial attempt.
	Adjustments []ledger.Movement
	Actor       string
}

// CloseWithoutReconciliation finalizes a complete session without touching
// the ledger.
func (s *Service) CloseWithoutReconciliation(ctx context.Context, actor security.Actor, sessionID id.ID) (*Report, error) {
	return s.close(ctx, actor, sessionID, false)
}

// CloseWithReconciliation posts one ADJUST movement per discrepant item and
// then finalizes the session. If an append fails the session stays open and
// the close can be retried: every adjustment carries an idempotency key
// derived from the session, product and item revision, so movements already
// posted are replayed, not duplicated.
func (s *Service) CloseWithReconciliation(ctx context.Context, actor security.Actor, sessionID id.ID) (*Report, error) {
	return s.close(ctx, actor, sessionID, true)
}

func (s *Service) close(ctx context.Context, actor security.Actor, sessionID id.ID, reconcile bool) (*Report, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCapability(ctx, actor, session.StoreID, security.CapManageInventory); err != nil {
		return nil, err
	}
	if err := session.EnsureOpen(); err != nil {
		return nil, err
	}

	unlock, acquired, err := s.locker.TryLock(ctx, closeLockKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("acquire close guard: %w", err)
	}
	if !acquired {
		return nil, apperror.NewCloseInProgress(sessionID)
	}
	defer unlock()

	ctx, span := tracer.Start(ctx, "counting.close",
		trace.WithAttributes(
			attribute.String("session.id", sessionID.String()),
			attribute.Bool("session.reconcile", reconcile),
		))
	defer span.End()

	var fin *Finalization
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := locked.EnsureOpen(); err != nil {
			return err
		}

		items, err := s.items.ListBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		if err := s.ensureComplete(ctx, locked, items); err != nil {
			return err
		}

		var adjustments []ledger.Movement
		if reconcile {
			adjustments, err = s.postAdjustments(ctx, locked, items, actor.UserID)
			if err != nil {
				return err
			}
		}

		if err := locked.Finalize(s.now(), actor.UserID, reconcile); err != nil {
			return err
		}
		if err := s.sessions.Finalize(ctx, locked); err != nil {
			return err
		}

		report, err := s.reports.build(ctx, locked, items)
		if err != nil {
			return err
		}

		fin = &Finalization{
			Session:     locked,
			Report:      report,
			Adjustments: adjustments,
			Actor:       actor.UserID,
		}
		return s.finalizeHooks.Run(ctx, domain.BeforeFinalize, fin)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.finalizeHooks.Run(ctx, domain.AfterFinalize, fin); err != nil {
		logger.Warn(ctx, "after-finalize hook failed", "session_id", sessionID, "error", err)
	}

	span.SetAttributes(attribute.Int("session.adjustments", len(fin.Adjustments)))
	logger.Info(ctx, "count session finalized",
		"session_id", sessionID,
		"store_id", fin.Session.StoreID,
		"reconciled", reconcile,
		"items", len(fin.Report.Items),
		"adjustments", len(fin.Adjustments),
	)
	return fin.Report, nil
}

// ensureComplete fails with INCOMPLETE_COUNT listing every in-scope active
// product that has no count item.
func (s *Service) ensureComplete(ctx context.Context, session *Session, items []Item) error {
	scope, err := compileSessionScope(session)
	if err != nil {
		return err
	}
	expected, err := s.scopedProducts(ctx, session.StoreID, scope)
	if err != nil {
		return err
	}

	counted := make(map[id.ID]struct{}, len(items))
	for _, it := range items {
		counted[it.StoreProductID] = struct{}{}
	}

	var missing []string
	for _, p := range expected {
		if _, ok := counted[p.ID]; !ok {
			missing = append(missing, p.ID.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return apperror.NewIncompleteCount(missing).WithDetail("session_id", session.ID.String())
}

// postAdjustments appends one ADJUST per non-zero item in product order.
// Appends commit on their own; the first failure stops the walk.
func (s *Service) postAdjustments(ctx context.Context, session *Session, items []Item, actorID string) ([]ledger.Movement, error) {
	var discrepant []Item
	for _, it := range items {
		if it.Difference != 0 {
			discrepant = append(discrepant, it)
		}
	}

	description := fmt.Sprintf("automatic reconciliation for session %s", session.Name)
	posted := make([]ledger.Movement, 0, len(discrepant))
	replayed := 0
	for _, it := range discrepant {
		res, err := s.ledger.AppendMovement(ctx, ledger.AppendInput{
			StoreID:        session.StoreID,
			StoreProductID: it.StoreProductID,
			Type:           ledger.TypeAdjust,
			Quantity:       it.Difference,
			Description:    description,
			Actor:          actorID,
			IdempotencyKey: AdjustmentKey(it),
		})
		if err != nil {
			logger.Error(ctx, "reconciliation stopped on ledger failure",
				"session_id", session.ID,
				"store_product_id", it.StoreProductID,
				"posted", len(posted),
				"total", len(discrepant),
				"error", err,
			)
			return nil, apperror.NewLedgerWriteFailure(len(posted), len(discrepant), err).
				WithDetail("failed_product_id", it.StoreProductID.String()).
				WithDetail("session_id", session.ID.String())
		}
		if res.Replayed {
			replayed++
		}
		posted = append(posted, res.Movement)
	}

	if replayed > 0 {
		logger.Info(ctx, "reconciliation replayed earlier adjustments",
			"session_id", session.ID,
			"replayed", replayed,
		)
	}
	return posted, nil
}

// AdjustmentKey is the ledger idempotency key of the adjustment reconciling
// item at its current revision.
func AdjustmentKey(item Item) string {
	return fmt.Sprintf("reconcile:%s:%s:%d", item.SessionID, item.StoreProductID, item.Revision)
}

func closeLockKey(sessionID id.ID) string {
	return "count-session:" + sessionID.String() + ":close"
}
