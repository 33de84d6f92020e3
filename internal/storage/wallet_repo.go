package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/better-wallet/agent-custody/pkg/types"
)

const walletColumns = `id, user_id, address, chain_id, chain_family, chain_name, deployment_status,
	active, metadata, last_activity_at, created_at, updated_at`

// WalletRepository handles wallet record operations
type WalletRepository struct {
	store *Store
}

// NewWalletRepository creates a new WalletRepository
func NewWalletRepository(store *Store) *WalletRepository {
	return &WalletRepository{store: store}
}

// Upsert inserts rec or, when (address, chain_id) exists under the same chain
// name, reactivates the row, bumps its activity timestamp and merges rec's
// metadata into it. A row held by another chain name is returned untouched.
// The returned record is the stored row; created is true only when rec was inserted.
func (r *WalletRepository) Upsert(ctx context.Context, rec *types.WalletRecord) (*types.WalletRecord, bool, error) {
	return r.UpsertTx(ctx, r.store.pool, rec)
}

// UpsertTx performs Upsert using the provided transaction or connection
func (r *WalletRepository) UpsertTx(ctx context.Context, db DBTX, rec *types.WalletRecord) (*types.WalletRecord, bool, error) {
	metadata := []byte("{}")
	if rec.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(rec.Metadata); err != nil {
			return nil, false, fmt.Errorf("failed to marshal wallet metadata: %w", err)
		}
	}

	query := `
		INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (address, chain_id) DO UPDATE SET
			active = TRUE,
			last_activity_at = EXCLUDED.last_activity_at,
			metadata = wallets.metadata || EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		WHERE wallets.chain_name = EXCLUDED.chain_name
		RETURNING ` + walletColumns

	stored, err := scanWallet(db.QueryRow(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Address,
		rec.ChainID,
		rec.ChainFamily,
		rec.ChainName,
		rec.DeploymentStatus,
		rec.Active,
		metadata,
		rec.LastActivityAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict row belongs to another chain name and was not updated
		existing, err := scanWallet(db.QueryRow(ctx,
			`SELECT `+walletColumns+` FROM wallets WHERE address = $1 AND chain_id = $2`,
			rec.Address, rec.ChainID,
		))
		if err != nil {
			return nil, false, fmt.Errorf("failed to load conflicting wallet: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert wallet: %w", err)
	}

	return stored, stored.ID == rec.ID, nil
}

// MarkDeployed moves a counterfactual wallet to deployed.
// Returns false if no counterfactual row matched.
func (r *WalletRepository) MarkDeployed(ctx context.Context, address string, chainID int64) (bool, error) {
	query := `
		UPDATE wallets
		SET deployment_status = 'deployed', updated_at = NOW()
		WHERE address = $1 AND chain_id = $2 AND deployment_status = 'counterfactual'
	`

	tag, err := r.store.pool.Exec(ctx, query, address, chainID)
	if err != nil {
		return false, fmt.Errorf("failed to mark wallet deployed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Deactivate clears the active flag. Returns false if no wallet matches
// (address, chain_id, chain_name).
func (r *WalletRepository) Deactivate(ctx context.Context, address string, chainID int64, chainName string) (bool, error) {
	query := `
		UPDATE wallets
		SET active = FALSE, updated_at = NOW()
		WHERE address = $1 AND chain_id = $2 AND chain_name = $3
	`

	tag, err := r.store.pool.Exec(ctx, query, address, chainID, chainName)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate wallet: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get retrieves a wallet by (address, chain_id)
func (r *WalletRepository) Get(ctx context.Context, address string, chainID int64) (*types.WalletRecord, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE address = $1 AND chain_id = $2`

	rec, err := scanWallet(r.store.pool.QueryRow(ctx, query, address, chainID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return rec, nil
}

// ListByUser retrieves all wallets for a user
func (r *WalletRepository) ListByUser(ctx context.Context, userID string) ([]*types.WalletRecord, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.store.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*types.WalletRecord
	for rows.Next() {
		rec, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}

	return wallets, nil
}

func scanWallet(row pgx.Row) (*types.WalletRecord, error) {
	var (
		rec      types.WalletRecord
		metadata []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Address,
		&rec.ChainID,
		&rec.ChainFamily,
		&rec.ChainName,
		&rec.DeploymentStatus,
		&rec.Active,
		&metadata,
		&rec.LastActivityAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wallet metadata: %w", err)
		}
	}
	return &rec, nil
}
