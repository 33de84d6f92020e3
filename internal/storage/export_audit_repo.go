package storage

import (
	"context"
	"fmt"

	"github.com/better-wallet/agent-custody/pkg/types"
)

// ExportAuditRepository is the append-only log of export attempts
type ExportAuditRepository struct {
	store *Store
}

// NewExportAuditRepository creates a new ExportAuditRepository
func NewExportAuditRepository(store *Store) *ExportAuditRepository {
	return &ExportAuditRepository{store: store}
}

// Append records one export attempt
func (r *ExportAuditRepository) Append(ctx context.Context, entry *types.ExportAuditEntry) error {
	query := `
		INSERT INTO export_audit_logs (id, actor, target_entity, recipient_fingerprint, client_ip, user_agent, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.store.pool.QueryRow(ctx, query,
		entry.ID,
		entry.Actor,
		entry.TargetEntity,
		entry.RecipientFingerprint,
		entry.ClientIP,
		entry.UserAgent,
		entry.Outcome,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append export audit entry: %w", err)
	}

	return nil
}

// ListByActor returns the most recent entries for an actor, newest first
func (r *ExportAuditRepository) ListByActor(ctx context.Context, actor string, limit int) ([]*types.ExportAuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, actor, target_entity, recipient_fingerprint, client_ip, user_agent, outcome, created_at
		FROM export_audit_logs
		WHERE actor = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.store.pool.Query(ctx, query, actor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list export audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.ExportAuditEntry
	for rows.Next() {
		var e types.ExportAuditEntry
		if err := rows.Scan(
			&e.ID,
			&e.Actor,
			&e.TargetEntity,
			&e.RecipientFingerprint,
			&e.ClientIP,
			&e.UserAgent,
			&e.Outcome,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan export audit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating export audit entries: %w", err)
	}

	return entries, nil
}
