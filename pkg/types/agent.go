package types

import (
	"time"

	"github.com/google/uuid"
)

// KeyOrigin records where an agent key came from.
type KeyOrigin string

// KeyOrigin constants
const (
	KeyOriginGenerated KeyOrigin = "generated"
	KeyOriginImported  KeyOrigin = "imported"
)

// AgentKey is the encrypted, mission-scoped signing key.
// Ciphertext, IV and AuthTag are hex encoded; plaintext key material is never stored.
type AgentKey struct {
	ID         uuid.UUID  `json:"id"`
	MissionID  string     `json:"mission_id"`
	Curve      Curve      `json:"curve"`
	Address    string     `json:"address"`
	Ciphertext string     `json:"-"`
	IV         string     `json:"-"`
	AuthTag    string     `json:"-"`
	Origin     KeyOrigin  `json:"origin"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// ExportOutcome constants
const (
	ExportOutcomeSucceeded = "succeeded"
	ExportOutcomeFailed    = "failed"
	ExportOutcomeDenied    = "denied"
)

// ExportAuditEntry is one append-only record of a mnemonic export attempt.
type ExportAuditEntry struct {
	ID                   uuid.UUID `json:"id"`
	Actor                string    `json:"actor"`
	TargetEntity         string    `json:"target_entity"`
	RecipientFingerprint string    `json:"recipient_fingerprint"`
	ClientIP             string    `json:"client_ip,omitempty"`
	UserAgent            string    `json:"user_agent,omitempty"`
	Outcome              string    `json:"outcome"`
	CreatedAt            time.Time `json:"created_at"`
}
