package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"storecount/internal/core/id"
	"storecount/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxAttempts is the number of failed deliveries after which a message
// is marked failed and no longer retried.
const MaxOutboxAttempts = 5

// OutboxMessage is a row of the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// DomainEvent is an event to be written to the outbox.
type DomainEvent struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// OutboxPublisher writes events in the caller's transaction, so an event
// exists if and only if the change that raised it committed.
type OutboxPublisher struct {
	txManager *TxManager
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes event. It must run inside a transaction.
func (p *OutboxPublisher) Publish(ctx context.Context, event DomainEvent) error {
	t := p.txManager.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("outbox publish requires a transaction")
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = t.Exec(ctx, `
		INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id.New(), event.AggregateType, event.AggregateID, event.EventType, payload, OutboxStatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// OutboxHandler delivers one message.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxHandlerFunc adapts a function to OutboxHandler.
type OutboxHandlerFunc func(ctx context.Context, msg *OutboxMessage) error

// Handle implements OutboxHandler.
func (f OutboxHandlerFunc) Handle(ctx context.Context, msg *OutboxMessage) error {
	return f(ctx, msg)
}

// OutboxRelay delivers pending messages. Several relays may run at once:
// each batch is claimed with FOR UPDATE SKIP LOCKED.
type OutboxRelay struct {
	txManager *TxManager
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{txManager: txManager, batchSize: batchSize, handler: handler}
}

// ProcessBatch claims up to batchSize due messages and delivers them.
// It returns how many were delivered.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	delivered := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, q, &messages, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			ok, err := r.deliver(ctx, q, msg)
			if err != nil {
				return err
			}
			if ok {
				delivered++
			}
		}
		return nil
	})
	return delivered, err
}

func (r *OutboxRelay) deliver(ctx context.Context, q Querier, msg *OutboxMessage) (bool, error) {
	handleErr := r.handler.Handle(ctx, msg)
	if handleErr == nil {
		_, err := q.Exec(ctx, `UPDATE sys_outbox SET status = $1, published_at = $2 WHERE id = $3`,
			OutboxStatusPublished, time.Now().UTC(), msg.ID)
		if err != nil {
			return false, fmt.Errorf("mark outbox message published: %w", err)
		}
		return true, nil
	}

	attempts := msg.RetryCount + 1
	status := OutboxStatusPending
	if attempts >= MaxOutboxAttempts {
		status = OutboxStatusFailed
	}
	logger.Warn(ctx, "outbox delivery failed",
		"message_id", msg.ID,
		"event_type", msg.EventType,
		"attempt", attempts,
		"status", status,
		"error", handleErr,
	)

	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4
		WHERE id = $5
	`, attempts, handleErr.Error(), time.Now().UTC().Add(RetryBackoff(attempts)), status, msg.ID)
	if err != nil {
		return false, fmt.Errorf("record outbox failure: %w", err)
	}
	return false, nil
}

// RetryBackoff is the delay before delivery attempt n+1: 30s, 1m, 2m, ...
// capped at 30m.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 30 * time.Second << (attempt - 1)
	if d > 30*time.Minute || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// PendingCount reports how many messages await delivery.
func (r *OutboxRelay) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM sys_outbox WHERE status = $1`, OutboxStatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox messages: %w", err)
	}
	return n, nil
}
