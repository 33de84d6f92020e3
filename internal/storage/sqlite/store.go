// Package sqlite provides a SQLite-backed custody store for development and tests.
//
// It mirrors the PostgreSQL repositories in internal/storage, including the
// (address, chain_id) upsert and the one-active-key-per-mission index.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/better-wallet/agent-custody/internal/storage"
	"github.com/better-wallet/agent-custody/internal/storage/sqlite/migrations"
	"github.com/better-wallet/agent-custody/pkg/types"
)

// Store persists wallets, agent keys and export audit entries in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Ping checks the database handle
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const walletColumns = `id, user_id, address, chain_id, chain_family, chain_name, deployment_status,
	active, metadata, last_activity_at, created_at, updated_at`

// Upsert inserts rec or updates the existing (address, chain_id) row when it
// carries the same chain_name. A row of another chain name is returned unchanged.
func (s *Store) Upsert(ctx context.Context, rec *types.WalletRecord) (*types.WalletRecord, bool, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("marshal wallet metadata: %w", err)
	}
	if rec.Metadata == nil {
		metadata = []byte("{}")
	}

	stored, err := scanWallet(s.sqlDB.QueryRowContext(ctx, `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address, chain_id) DO UPDATE SET
			active = 1,
			last_activity_at = excluded.last_activity_at,
			metadata = json_patch(wallets.metadata, excluded.metadata),
			updated_at = excluded.updated_at
		WHERE wallets.chain_name = excluded.chain_name
		RETURNING `+walletColumns,
		rec.ID.String(),
		rec.UserID,
		rec.Address,
		rec.ChainID,
		string(rec.ChainFamily),
		rec.ChainName,
		string(rec.DeploymentStatus),
		rec.Active,
		string(metadata),
		toMillis(rec.LastActivityAt),
		toMillis(rec.CreatedAt),
		toMillis(rec.UpdatedAt),
	))
	if errors.Is(err, sql.ErrNoRows) {
		// The conflict row belongs to another chain name and was not updated
		existing, err := s.Get(ctx, rec.Address, rec.ChainID)
		if err != nil {
			return nil, false, fmt.Errorf("load conflicting wallet: %w", err)
		}
		if existing == nil {
			return nil, false, fmt.Errorf("upsert wallet: conflicting row for %s disappeared", rec.Address)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("upsert wallet: %w", err)
	}
	return stored, stored.ID == rec.ID, nil
}

// MarkDeployed moves a counterfactual wallet to deployed.
func (s *Store) MarkDeployed(ctx context.Context, address string, chainID int64) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `
		UPDATE wallets SET deployment_status = 'deployed', updated_at = ?
		WHERE address = ? AND chain_id = ? AND deployment_status = 'counterfactual'`,
		toMillis(time.Now()), address, chainID,
	)
	if err != nil {
		return false, fmt.Errorf("mark wallet deployed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Deactivate clears the active flag of the (address, chain_id, chain_name) wallet.
func (s *Store) Deactivate(ctx context.Context, address string, chainID int64, chainName string) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE wallets SET active = 0, updated_at = ? WHERE address = ? AND chain_id = ? AND chain_name = ?`,
		toMillis(time.Now()), address, chainID, chainName,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Get returns the wallet for (address, chain_id), or nil.
func (s *Store) Get(ctx context.Context, address string, chainID int64) (*types.WalletRecord, error) {
	rec, err := scanWallet(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE address = ? AND chain_id = ?`,
		address, chainID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return rec, nil
}

// ListByUser returns a user's wallets, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*types.WalletRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*types.WalletRecord
	for rows.Next() {
		rec, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, rec)
	}
	return wallets, rows.Err()
}

// CountWallets returns the number of rows for (address, chain_id).
func (s *Store) CountWallets(ctx context.Context, address string, chainID int64) (int, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallets WHERE address = ? AND chain_id = ?`, address, chainID,
	).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*types.WalletRecord, error) {
	var (
		rec                                types.WalletRecord
		id, family, status, metadata       string
		lastActivity, createdAt, updatedAt int64
	)
	if err := row.Scan(
		&id,
		&rec.UserID,
		&rec.Address,
		&rec.ChainID,
		&family,
		&rec.ChainName,
		&status,
		&rec.Active,
		&metadata,
		&lastActivity,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse wallet id: %w", err)
	}
	rec.ID = parsed
	rec.ChainFamily = types.ChainFamily(family)
	rec.DeploymentStatus = types.DeploymentStatus(status)
	rec.LastActivityAt = fromMillis(lastActivity)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal wallet metadata: %w", err)
	}
	return &rec, nil
}

// Create stores a new active agent key. Returns storage.ErrDuplicate when the
// mission already has one.
func (s *Store) Create(ctx context.Context, key *types.AgentKey) error {
	now := time.Now().UTC()
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO agent_keys (id, mission_id, curve, address, ciphertext, iv, auth_tag, origin, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		key.ID.String(),
		key.MissionID,
		string(key.Curve),
		key.Address,
		key.Ciphertext,
		key.IV,
		key.AuthTag,
		string(key.Origin),
		toMillis(now),
	)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create agent key: %w", err)
	}
	key.Active = true
	key.CreatedAt = fromMillis(toMillis(now))
	return nil
}

// GetActiveByMission returns the mission's active key, or nil.
func (s *Store) GetActiveByMission(ctx context.Context, missionID string) (*types.AgentKey, error) {
	var (
		key               types.AgentKey
		id, curve, origin string
		createdAt         int64
		revokedAt         sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, mission_id, curve, address, ciphertext, iv, auth_tag, origin, active, created_at, revoked_at
		FROM agent_keys WHERE mission_id = ? AND active = 1`, missionID,
	).Scan(
		&id,
		&key.MissionID,
		&curve,
		&key.Address,
		&key.Ciphertext,
		&key.IV,
		&key.AuthTag,
		&origin,
		&key.Active,
		&createdAt,
		&revokedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent key: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse agent key id: %w", err)
	}
	key.ID = parsed
	key.Curve = types.Curve(curve)
	key.Origin = types.KeyOrigin(origin)
	key.CreatedAt = fromMillis(createdAt)
	if revokedAt.Valid {
		t := fromMillis(revokedAt.Int64)
		key.RevokedAt = &t
	}
	return &key, nil
}

// Revoke deactivates the mission's active key.
func (s *Store) Revoke(ctx context.Context, missionID string) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE agent_keys SET active = 0, revoked_at = ? WHERE mission_id = ? AND active = 1`,
		toMillis(time.Now()), missionID,
	)
	if err != nil {
		return false, fmt.Errorf("revoke agent key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Append records one export attempt.
func (s *Store) Append(ctx context.Context, entry *types.ExportAuditEntry) error {
	now := time.Now().UTC()
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO export_audit_logs (id, actor, target_entity, recipient_fingerprint, client_ip, user_agent, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(),
		entry.Actor,
		entry.TargetEntity,
		entry.RecipientFingerprint,
		entry.ClientIP,
		entry.UserAgent,
		entry.Outcome,
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("append export audit entry: %w", err)
	}
	entry.CreatedAt = fromMillis(toMillis(now))
	return nil
}

// ListByActor returns the actor's most recent export attempts, newest first.
func (s *Store) ListByActor(ctx context.Context, actor string, limit int) ([]*types.ExportAuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, actor, target_entity, recipient_fingerprint, client_ip, user_agent, outcome, created_at
		FROM export_audit_logs WHERE actor = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		actor, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list export audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.ExportAuditEntry
	for rows.Next() {
		var (
			e         types.ExportAuditEntry
			id        string
			createdAt int64
		)
		if err := rows.Scan(&id, &e.Actor, &e.TargetEntity, &e.RecipientFingerprint,
			&e.ClientIP, &e.UserAgent, &e.Outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan export audit entry: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse export audit id: %w", err)
		}
		e.ID = parsed
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
