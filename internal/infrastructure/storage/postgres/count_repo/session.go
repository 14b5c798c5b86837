// Package count_repo provides PostgreSQL implementations of the counting
// repositories. Session row locks back the engine's concurrency rules:
// recording takes FOR SHARE, closing takes FOR UPDATE.
package count_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/domain"
	"storecount/internal/domain/counting"
	"storecount/internal/infrastructure/storage/postgres"
)

const sessionsTable = "count_sessions"

var _ counting.SessionRepository = (*SessionRepo)(nil)

// SessionRepo implements counting.SessionRepository.
type SessionRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	cols    []string
}

// NewSessionRepo creates a new session repository.
func NewSessionRepo(txm *postgres.TxManager) *SessionRepo {
	return &SessionRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		cols:    postgres.Columns[counting.Session](),
	}
}

func (r *SessionRepo) Create(ctx context.Context, s *counting.Session) error {
	sql, args, err := r.builder.Insert(sessionsTable).
		Columns(r.cols...).
		Values(s.ID, s.StoreID, s.Name, s.Scope, s.PrefillZeroStock,
			s.CreatedAt, s.CreatedBy, s.FinalizedAt, s.FinalizedBy, s.Reconciled).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert count session: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	return r.get(ctx, sessionID, "")
}

func (r *SessionRepo) GetForUpdate(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	return r.get(ctx, sessionID, "FOR UPDATE")
}

func (r *SessionRepo) GetForShare(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	return r.get(ctx, sessionID, "FOR SHARE")
}

func (r *SessionRepo) get(ctx context.Context, sessionID id.ID, lock string) (*counting.Session, error) {
	sql, args, err := r.selectByID(sessionID, lock).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s counting.Session
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("count_session", sessionID)
		}
		return nil, fmt.Errorf("get count session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) selectByID(sessionID id.ID, lock string) squirrel.SelectBuilder {
	q := r.builder.Select(r.cols...).
		From(sessionsTable).
		Where(squirrel.Eq{"id": sessionID})
	if lock != "" {
		q = q.Suffix(lock)
	}
	return q
}

// Finalize only touches a still-open row; zero rows affected means another
// close got there first.
func (r *SessionRepo) Finalize(ctx context.Context, s *counting.Session) error {
	sql, args, err := r.finalizeQuery(s).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("finalize count session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewSessionClosed(s.ID)
	}
	return nil
}

func (r *SessionRepo) finalizeQuery(s *counting.Session) squirrel.UpdateBuilder {
	return r.builder.Update(sessionsTable).
		Set("finalized_at", s.FinalizedAt).
		Set("finalized_by", s.FinalizedBy).
		Set("reconciled", s.Reconciled).
		Where(squirrel.Eq{"id": s.ID}).
		Where(squirrel.Eq{"finalized_at": nil})
}

func (r *SessionRepo) List(ctx context.Context, filter counting.ListFilter) (domain.ListResult[counting.Session], error) {
	filter.Page = filter.Page.Normalize()
	result := domain.ListResult[counting.Session]{
		Items:  []counting.Session{},
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	where := r.listWhere(filter)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(sessionsTable).Where(where).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	q := r.txm.GetQuerier(ctx)
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count sessions: %w", err)
	}

	sql, args, err := r.builder.Select(r.cols...).
		From(sessionsTable).
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, q, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list sessions: %w", err)
	}
	return result, nil
}

func (r *SessionRepo) listWhere(filter counting.ListFilter) squirrel.And {
	where := squirrel.And{squirrel.Eq{"store_id": filter.StoreID}}
	switch filter.Status {
	case counting.StatusOpen:
		where = append(where, squirrel.Eq{"finalized_at": nil})
	case counting.StatusFinalized:
		where = append(where, squirrel.NotEq{"finalized_at": nil})
	}
	return where
}
