package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"storecount/internal/core/apperror"
)

// IdempotencyStatus represents the state of an idempotent request.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// staleAfter is how long a pending key may sit before another request may
// reclaim it (the first request likely crashed).
const staleAfter = time.Minute

// IdempotencyRecord stores the outcome of an HTTP request keyed by X-Idempotency-Key.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
	Inserted    bool              `db:"inserted"`
}

// IdempotencyReplay is a cached response to send again.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore persists request idempotency keys. It writes through the
// pool so the key outlives a rolled-back handler transaction.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(pool *Pool, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{pool: pool.Pool, ttl: ttl}
}

// AcquireKey claims key for a request. It returns:
//   - (nil, nil) when the caller owns the key and should run the request
//   - (replay, nil) when the request already completed
//   - (nil, err) when the key is in use or was used for a different request
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := time.Now().UTC()

	var rec IdempotencyRecord
	err := pgxscan.Get(ctx, s.pool, &rec, `
		INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
		RETURNING idempotency_key, user_id, operation, status, request_hash,
		          response, response_status, response_content_type,
		          created_at, updated_at, expires_at, (xmax = 0) AS inserted
	`, key, userID, operation, IdempotencyStatusPending, requestHash, now, now.Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if rec.Inserted {
		return nil, nil
	}

	if rec.UserID != userID || rec.Operation != operation || rec.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", rec.Operation).
			WithDetail("request_operation", operation)
	}

	switch rec.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return replayOf(rec), nil
	default:
		if now.Sub(rec.UpdatedAt) <= staleAfter {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		tag, err := s.pool.Exec(ctx, `
			UPDATE sys_idempotency SET updated_at = $1
			WHERE idempotency_key = $2 AND status = $3 AND updated_at = $4
		`, now, key, IdempotencyStatusPending, rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale idempotency key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		return nil, nil
	}
}

// CompleteKey stores a successful response for replay.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, IdempotencyStatusSuccess, statusCode, contentType, response)
}

// FailKey stores an error response for replay.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, IdempotencyStatusFailed, statusCode, contentType, response)
}

// ReleaseKey forgets a pending key so the request can be retried, used when
// the outcome must not be replayed (server errors).
func (s *IdempotencyStore) ReleaseKey(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND status = $2`,
		key, IdempotencyStatusPending)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, response any) error {
	var body []byte
	switch v := response.(type) {
	case nil:
	case []byte:
		body = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		body = b
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, response = $2, response_status = $3, response_content_type = $4, updated_at = $5
		WHERE idempotency_key = $6
	`, status, body, statusCode, contentType, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("store idempotent response: %w", err)
	}
	return nil
}

// CleanupExpired removes expired records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sys_idempotency WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func replayOf(rec IdempotencyRecord) *IdempotencyReplay {
	r := &IdempotencyReplay{
		StatusCode:  rec.StatusCode,
		ContentType: rec.ContentType,
		Body:        rec.Response,
	}
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}
