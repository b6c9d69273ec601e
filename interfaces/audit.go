package interfaces

import (
	"encoding/json"
	"time"
)

// AuditEventType enumerates the events recorded in a wallet's audit chain.
type AuditEventType string

const (
	AuditWalletCreated      AuditEventType = "wallet_created"
	AuditGuardianAdded      AuditEventType = "guardian_added"
	AuditGuardianRevoked    AuditEventType = "guardian_revoked"
	AuditRecoveryInitiated  AuditEventType = "recovery_initiated"
	AuditRecoverySigned     AuditEventType = "recovery_signed"
	AuditRecoveryCompleted  AuditEventType = "recovery_completed"
	AuditRecoveryExpired    AuditEventType = "recovery_expired"
	AuditRecoveryFailed     AuditEventType = "recovery_failed"
	AuditSeedReconstructed  AuditEventType = "seed_reconstructed"
	AuditWalletSynced       AuditEventType = "wallet_synced"
	AuditProofOfLife        AuditEventType = "proof_of_life"
)

// Valid reports whether the event type is one of the known kinds.
func (t AuditEventType) Valid() bool {
	switch t {
	case AuditWalletCreated, AuditGuardianAdded, AuditGuardianRevoked,
		AuditRecoveryInitiated, AuditRecoverySigned, AuditRecoveryCompleted,
		AuditRecoveryExpired, AuditRecoveryFailed, AuditSeedReconstructed,
		AuditWalletSynced, AuditProofOfLife:
		return true
	default:
		return false
	}
}

// Typed payloads carried in AuditLogEntry.Data, one struct per event type.
// Payloads are stored as canonical JSON so their bytes are reproducible.

type WalletCreatedEvent struct {
	WalletName     string `json:"wallet_name"`
	Threshold      int    `json:"threshold"`
	TotalGuardians int    `json:"total_guardians"`
}

type GuardianAddedEvent struct {
	GuardianID string `json:"guardian_id"`
	Name       string `json:"name"`
	ShareIndex int    `json:"share_index"`
	KeyID      string `json:"key_id"`
}

type GuardianRevokedEvent struct {
	GuardianID string `json:"guardian_id"`
	Reason     string `json:"reason,omitempty"`
}

type RecoveryInitiatedEvent struct {
	RecoveryID         string    `json:"recovery_id"`
	InitiatorID        string    `json:"initiator_id"`
	Reason             string    `json:"reason"`
	RequiredSignatures int       `json:"required_signatures"`
	ExpiresAt          time.Time `json:"expires_at"`
}

type RecoverySignedEvent struct {
	RecoveryID         string             `json:"recovery_id"`
	GuardianID         string             `json:"guardian_id"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	SignatureCount     int                `json:"signature_count"`
	ThresholdReached   bool               `json:"threshold_reached"`
}

type RecoveryCompletedEvent struct {
	RecoveryID     string `json:"recovery_id"`
	SignatureCount int    `json:"signature_count"`
}

type RecoveryExpiredEvent struct {
	RecoveryID     string `json:"recovery_id"`
	SignatureCount int    `json:"signature_count"`
}

type RecoveryFailedEvent struct {
	RecoveryID string `json:"recovery_id"`
	Reason     string `json:"reason,omitempty"`
}

type SeedReconstructedEvent struct {
	RecoveryID string `json:"recovery_id"`
	ShareCount int    `json:"share_count"`
}

type WalletSyncedEvent struct {
	Backends   []string `json:"backends"`
	EntryCount int      `json:"entry_count"`
	MerkleRoot string   `json:"merkle_root"`
}

type ProofOfLifeEvent struct {
	Method VerificationMethod `json:"method"`
}

// ClientContext carries optional request metadata recorded alongside an
// audit entry. Never holds secrets.
type ClientContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// AuditLogEntry is one link in a wallet's hash chain. PreviousHash is the
// hex signature of the preceding entry, empty for the first link. Signature
// covers the canonical encoding of every field except itself and MerkleRoot.
// MerkleRoot is stamped after signing and excluded from the content hash.
type AuditLogEntry struct {
	ID        string          `json:"id"`
	WalletID  string          `json:"wallet_id"`
	Sequence  int             `json:"sequence"`
	EventType AuditEventType  `json:"event_type"`
	ActorID   string          `json:"actor_id"`
	Data      json.RawMessage `json:"data"`
	Context   *ClientContext  `json:"context,omitempty"`
	Timestamp time.Time       `json:"timestamp"`

	PreviousHash string `json:"previous_hash"`
	Signature    string `json:"signature"`
	MerkleRoot   string `json:"merkle_root"`
}

// AuditLogChain is a wallet's full ordered audit history plus the chain-level
// digests recomputed on every append. It is the one stable export/import unit
// for backup and independent verification.
type AuditLogChain struct {
	WalletID string          `json:"wallet_id"`
	Entries  []AuditLogEntry `json:"entries"`
	Count    int             `json:"count"`

	// MerkleRoot commits to the content hashes of all entries.
	MerkleRoot string `json:"merkle_root"`

	// ChainHash is a digest of the chain head used for quick equality checks
	// between replicas.
	ChainHash string `json:"chain_hash"`

	FirstAt   *time.Time `json:"first_at,omitempty"`
	LastAt    *time.Time `json:"last_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ChainVerification is the full report produced by verifying an audit chain.
// IsValid is true only when every individual check passed.
type ChainVerification struct {
	WalletID   string `json:"wallet_id"`
	EntryCount int    `json:"entry_count"`

	IsValid         bool     `json:"is_valid"`
	ChainHashValid  bool     `json:"chain_hash_valid"`
	MerkleRootValid bool     `json:"merkle_root_valid"`
	SignaturesValid bool     `json:"signatures_valid"`
	Errors          []string `json:"errors,omitempty"`

	VerifiedAt time.Time `json:"verified_at"`
}

// MerkleProof is an inclusion proof for a single audit entry against the
// chain's merkle root.
type MerkleProof struct {
	EntryID   string   `json:"entry_id"`
	LeafHash  string   `json:"leaf_hash"`
	Path      []string `json:"path"`
	PathSides []bool   `json:"path_sides"`
	Root      string   `json:"root"`
}
