package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "storecount/internal/core/context"
	"storecount/internal/core/id"
)

// AuditAction is the audited operation.
type AuditAction string

const (
	AuditActionOpen     AuditAction = "open"
	AuditActionFinalize AuditAction = "finalize"
)

// CompressionAlgo specifies how Changes is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which changes are stored
// zstd-compressed.
const DefaultCompressThreshold = 8 * 1024

// AuditEntry is one row of sys_audit.
type AuditEntry struct {
	ID                id.ID           `db:"id" json:"id"`
	EntityType        string          `db:"entity_type" json:"entityType"`
	EntityID          id.ID           `db:"entity_id" json:"entityId"`
	Action            AuditAction     `db:"action" json:"action"`
	UserID            string          `db:"user_id" json:"userId"`
	Changes           json.RawMessage `db:"changes" json:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed" json:"-"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo" json:"compressionAlgo"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
}

// AuditLog writes audit entries in the caller's transaction.
type AuditLog struct {
	txManager *TxManager
	codec     *auditCodec
}

// NewAuditLog creates an audit log.
func NewAuditLog(txManager *TxManager) (*AuditLog, error) {
	codec, err := newAuditCodec(DefaultCompressThreshold)
	if err != nil {
		return nil, err
	}
	return &AuditLog{txManager: txManager, codec: codec}, nil
}

// Record marshals changes and stores them against the entity.
func (a *AuditLog) Record(ctx context.Context, entityType string, entityID id.ID, action AuditAction, changes any) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}

	entry := AuditEntry{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		UserID:     appctx.CallerID(ctx),
		CreatedAt:  time.Now().UTC(),
	}
	a.codec.pack(&entry, raw)

	_, err = a.txManager.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO sys_audit (id, entity_type, entity_id, action, user_id, changes, changes_compressed, compression_algo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.EntityType, entry.EntityID, entry.Action, entry.UserID,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History returns the newest entries of an entity with changes decompressed.
func (a *AuditLog) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []AuditEntry
	err := pgxscan.Select(ctx, a.txManager.GetQuerier(ctx), &entries, `
		SELECT id, entity_type, entity_id, action, user_id, changes, changes_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("select audit history: %w", err)
	}

	for i := range entries {
		if err := a.codec.unpack(&entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// auditCodec compresses large change payloads.
type auditCodec struct {
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

func newAuditCodec(threshold int) (*auditCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &auditCodec{threshold: threshold, encoder: encoder, decoder: decoder}, nil
}

func (c *auditCodec) pack(e *AuditEntry, raw []byte) {
	if len(raw) <= c.threshold {
		e.Changes = raw
		e.ChangesCompressed = nil
		e.CompressionAlgo = CompressionNone
		return
	}
	e.Changes = nil
	e.ChangesCompressed = c.encoder.EncodeAll(raw, nil)
	e.CompressionAlgo = CompressionZstd
}

func (c *auditCodec) unpack(e *AuditEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.ChangesCompressed) == 0 {
		return nil
	}
	raw, err := c.decoder.DecodeAll(e.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress audit entry %s: %w", e.ID, err)
	}
	e.Changes = raw
	e.ChangesCompressed = nil
	return nil
}
