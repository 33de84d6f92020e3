package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/better-wallet/agent-custody/pkg/types"
)

const agentKeyColumns = `id, mission_id, curve, address, ciphertext, iv, auth_tag, origin, active, created_at, revoked_at`

// AgentKeyRepository handles encrypted agent key storage
type AgentKeyRepository struct {
	store *Store
}

// NewAgentKeyRepository creates a new AgentKeyRepository
func NewAgentKeyRepository(store *Store) *AgentKeyRepository {
	return &AgentKeyRepository{store: store}
}

// Create stores a new active key. Returns ErrDuplicate when the mission
// already has an active key.
func (r *AgentKeyRepository) Create(ctx context.Context, key *types.AgentKey) error {
	query := `
		INSERT INTO agent_keys (id, mission_id, curve, address, ciphertext, iv, auth_tag, origin, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING created_at
	`

	err := r.store.pool.QueryRow(ctx, query,
		key.ID,
		key.MissionID,
		key.Curve,
		key.Address,
		key.Ciphertext,
		key.IV,
		key.AuthTag,
		key.Origin,
	).Scan(&key.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create agent key: %w", err)
	}

	key.Active = true
	return nil
}

// GetActiveByMission retrieves the active key for a mission
func (r *AgentKeyRepository) GetActiveByMission(ctx context.Context, missionID string) (*types.AgentKey, error) {
	query := `SELECT ` + agentKeyColumns + ` FROM agent_keys WHERE mission_id = $1 AND active`

	var key types.AgentKey
	err := r.store.pool.QueryRow(ctx, query, missionID).Scan(
		&key.ID,
		&key.MissionID,
		&key.Curve,
		&key.Address,
		&key.Ciphertext,
		&key.IV,
		&key.AuthTag,
		&key.Origin,
		&key.Active,
		&key.CreatedAt,
		&key.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent key: %w", err)
	}

	return &key, nil
}

// Revoke deactivates the mission's active key. Returns false if none was active.
func (r *AgentKeyRepository) Revoke(ctx context.Context, missionID string) (bool, error) {
	query := `
		UPDATE agent_keys
		SET active = FALSE, revoked_at = NOW()
		WHERE mission_id = $1 AND active
	`

	tag, err := r.store.pool.Exec(ctx, query, missionID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke agent key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
