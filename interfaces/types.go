// Package interfaces defines the core interfaces and types for the guardian
// recovery protocol. It provides the contract between different components
// without implementation details.
package interfaces

import (
	"strings"
	"time"

	"github.com/vaultmesh/recovery-backend/cryptoutils"
)

type AppPubkey = cryptoutils.AppPubkey
type AppPrivkey = cryptoutils.AppPrivkey
type KeyPair = cryptoutils.KeyPair

// Validation bounds enforced during wallet creation.
const (
	MinWalletNameLen = 1
	MaxWalletNameLen = 100

	// MinSecretLen matches 128 bits of master seed entropy.
	MinSecretLen = 16

	MinGuardians = 2
	MaxGuardians = 10
	MinThreshold = 2

	MinCredentialLen = 8
)

// ShareEncryptionAlgorithm tags guardian share ciphertexts.
const ShareEncryptionAlgorithm = "ECIES-P256-AES256GCM"

// GuardianStatus tracks a guardian through its lifecycle.
type GuardianStatus string

const (
	// GuardianInvited means the guardian record exists but the guardian has
	// not yet confirmed custody of their key material.
	GuardianInvited GuardianStatus = "invited"

	// GuardianActive means the guardian holds their encrypted share and may
	// participate in recovery.
	GuardianActive GuardianStatus = "active"

	// GuardianRevoked means the guardian was removed by the owner and can no
	// longer sign recovery attempts.
	GuardianRevoked GuardianStatus = "revoked"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s GuardianStatus) Valid() bool {
	switch s {
	case GuardianInvited, GuardianActive, GuardianRevoked:
		return true
	default:
		return false
	}
}

// RecoveryStatus tracks a recovery attempt through its state machine.
type RecoveryStatus string

const (
	// RecoveryPending is the initial state before any signature arrives.
	RecoveryPending RecoveryStatus = "pending"

	// RecoveryCollecting means at least one signature arrived but the
	// threshold has not been reached.
	RecoveryCollecting RecoveryStatus = "collecting_signatures"

	// RecoveryCompleted means the threshold was reached.
	RecoveryCompleted RecoveryStatus = "completed"

	// RecoveryFailed means the attempt was explicitly cancelled.
	RecoveryFailed RecoveryStatus = "failed"

	// RecoveryExpired means the attempt outlived its policy deadline.
	RecoveryExpired RecoveryStatus = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s RecoveryStatus) Terminal() bool {
	switch s {
	case RecoveryCompleted, RecoveryFailed, RecoveryExpired:
		return true
	default:
		return false
	}
}

// VerificationMethod describes how a guardian proved their identity when
// signing a recovery attempt.
type VerificationMethod string

const (
	VerificationEmail    VerificationMethod = "email"
	VerificationPhone    VerificationMethod = "phone"
	VerificationVideo    VerificationMethod = "video_call"
	VerificationInPerson VerificationMethod = "in_person"
)

// Valid reports whether the method is one of the known values.
func (v VerificationMethod) Valid() bool {
	switch v {
	case VerificationEmail, VerificationPhone, VerificationVideo, VerificationInPerson:
		return true
	default:
		return false
	}
}

// DefaultRecoveryReasons is the closed set of reasons a wallet accepts unless
// its policy overrides it.
var DefaultRecoveryReasons = []string{
	"owner_deceased",
	"owner_incapacitated",
	"keys_lost",
	"keys_compromised",
	"ownership_transfer",
}

// WalletPolicy captures the recovery parameters fixed at wallet creation.
// The policy is immutable once guardians exist, except through an explicit
// policy-update operation.
type WalletPolicy struct {
	WalletID string `json:"wallet_id"`
	OwnerID  string `json:"owner_id"`

	// Threshold is the number of guardian signatures and shares required for
	// recovery. Always at least MinThreshold and never above TotalGuardians.
	Threshold int `json:"threshold"`

	// TotalGuardians is the number of shares the master seed was split into.
	TotalGuardians int `json:"total_guardians"`

	// RecoveryTimeout bounds the lifetime of a recovery attempt.
	RecoveryTimeout time.Duration `json:"recovery_timeout"`

	// ProofOfLifeInterval is how often the owner is expected to check in.
	ProofOfLifeInterval time.Duration `json:"proof_of_life_interval"`

	AllowedRecoveryReasons []string `json:"allowed_recovery_reasons"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReasonAllowed reports whether a recovery reason is in the policy's set.
// Comparison is case-insensitive.
func (p *WalletPolicy) ReasonAllowed(reason string) bool {
	for _, allowed := range p.AllowedRecoveryReasons {
		if strings.EqualFold(allowed, reason) {
			return true
		}
	}
	return false
}

// GuardianInfo is the caller-supplied contact information for a guardian.
type GuardianInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Guardian is a trusted party bound to exactly one share index and one
// public key on a wallet.
type Guardian struct {
	ID       string `json:"id"`
	WalletID string `json:"wallet_id"`

	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`

	PublicKey AppPubkey `json:"public_key"`
	KeyID     string    `json:"key_id"`

	// ShareIndex is this guardian's position in [1, TotalGuardians].
	// Indices are dense and unique per wallet.
	ShareIndex int `json:"share_index"`

	Status            GuardianStatus `json:"status"`
	VerificationLevel int            `json:"verification_level"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GuardianShare is one split share encrypted under its guardian's public key.
// Shares only ever leave process memory in this encrypted form.
type GuardianShare struct {
	ShareIndex int    `json:"share_index"`
	GuardianID string `json:"guardian_id"`

	EncryptedShare []byte `json:"encrypted_share"`

	// CiphertextHash is the hex SHA-256 of EncryptedShare, for transport
	// integrity checks.
	CiphertextHash string `json:"ciphertext_hash"`
	Algorithm      string `json:"algorithm"`
}

// GuardianSignature is one guardian's approval of a recovery attempt.
// Each guardian contributes at most one signature per attempt.
type GuardianSignature struct {
	GuardianID         string             `json:"guardian_id"`
	Signature          []byte             `json:"signature"`
	SignedAt           time.Time          `json:"signed_at"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	ProofNote          string             `json:"proof_note,omitempty"`
}

// RecoveryAttempt is a bounded-lifetime process collecting guardian
// signatures to authorize seed reconstruction.
type RecoveryAttempt struct {
	ID          string `json:"id"`
	WalletID    string `json:"wallet_id"`
	InitiatorID string `json:"initiator_id"`

	Reason          string `json:"reason"`
	NewOwnerContact string `json:"new_owner_contact,omitempty"`

	Status RecoveryStatus `json:"status"`

	RequiredSignatures int                 `json:"required_signatures"`
	CurrentSignatures  int                 `json:"current_signatures"`
	Signatures         []GuardianSignature `json:"signatures"`

	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExpiredAt reports whether the attempt has outlived its deadline at the
// given instant. Terminal attempts never expire retroactively.
func (a *RecoveryAttempt) ExpiredAt(now time.Time) bool {
	if a.Status.Terminal() {
		return false
	}
	return now.After(a.ExpiresAt)
}

// HasSigned reports whether the guardian already contributed a signature.
func (a *RecoveryAttempt) HasSigned(guardianID string) bool {
	for _, sig := range a.Signatures {
		if sig.GuardianID == guardianID {
			return true
		}
	}
	return false
}
