// Package auth_repo provides the PostgreSQL capability grants.
package auth_repo

import (
	"context"
	"fmt"

	"storecount/internal/core/id"
	"storecount/internal/core/security"
	"storecount/internal/infrastructure/storage/postgres"
)

var _ security.Authorizer = (*CapabilityRepo)(nil)

// CapabilityRepo answers capability checks from store_user_capabilities,
// for deployments where grants are managed in the database rather than
// carried in tokens.
type CapabilityRepo struct {
	txm *postgres.TxManager
}

// NewCapabilityRepo creates a new capability repository.
func NewCapabilityRepo(txm *postgres.TxManager) *CapabilityRepo {
	return &CapabilityRepo{txm: txm}
}

// HasCapability implements security.Authorizer. Admins bypass grants and
// MANAGE_INVENTORY implies VIEW_INVENTORY.
func (r *CapabilityRepo) HasCapability(ctx context.Context, actor security.Actor, storeID id.ID, capability security.Capability) (bool, error) {
	if actor.IsAdmin {
		return true, nil
	}
	if actor.UserID == "" {
		return false, nil
	}

	accepted := []string{string(capability)}
	if capability == security.CapViewInventory {
		accepted = append(accepted, string(security.CapManageInventory))
	}

	var ok bool
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM store_user_capabilities
			WHERE user_id = $1 AND store_id = $2 AND capability = ANY($3)
		)
	`, actor.UserID, storeID, accepted).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("query capability: %w", err)
	}
	return ok, nil
}

// Grant records a capability; granting twice is a no-op.
func (r *CapabilityRepo) Grant(ctx context.Context, userID string, storeID id.ID, capability security.Capability) error {
	_, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO store_user_capabilities (user_id, store_id, capability)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, userID, storeID, string(capability))
	if err != nil {
		return fmt.Errorf("grant capability: %w", err)
	}
	return nil
}

// Grants lists a user's capabilities per store, used to mint development tokens.
func (r *CapabilityRepo) Grants(ctx context.Context, userID string) (map[string][]string, error) {
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, `
		SELECT store_id::text, capability FROM store_user_capabilities
		WHERE user_id = $1 ORDER BY store_id, capability
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	grants := make(map[string][]string)
	for rows.Next() {
		var store, capability string
		if err := rows.Scan(&store, &capability); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants[store] = append(grants[store], capability)
	}
	return grants, rows.Err()
}
