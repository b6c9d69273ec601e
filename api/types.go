// Package api defines the wire types shared by the recovery service handlers
// and clients. Binary fields travel base64 encoded; guardian credentials are
// the PEM private keys issued at wallet creation.
package api

import (
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/wallet"
)

// Request authentication headers for guardian endpoints. The signature is an
// ASN.1 DER ECDSA signature over SHA-256(request path || nonce || body),
// base64 encoded. The nonce must be unique per guardian; the server rejects
// replays.
const (
	GuardianIDHeader        = "X-Guardian-ID"
	GuardianNonceHeader     = "X-Guardian-Nonce"
	GuardianSignatureHeader = "X-Guardian-Signature"
)

// CreateWalletRequest sets up a wallet protected by a guardian set. Secret is
// the base64 master seed; it is split, encrypted per guardian and discarded.
type CreateWalletRequest struct {
	Name      string                    `json:"name"`
	Secret    string                    `json:"secret"` // base64 encoded
	Threshold int                       `json:"threshold"`
	Guardians []interfaces.GuardianInfo `json:"guardians"`

	// OwnerCredential is the passphrase the owner's signing key is derived
	// from. The same passphrase must be presented for revocation, proof of
	// life and sync.
	OwnerCredential string `json:"owner_credential"`

	// RecoveryTimeout and ProofOfLifeInterval are Go duration strings like
	// "72h". Empty selects the defaults.
	RecoveryTimeout     string `json:"recovery_timeout,omitempty"`
	ProofOfLifeInterval string `json:"proof_of_life_interval,omitempty"`

	AllowedRecoveryReasons []string `json:"allowed_recovery_reasons,omitempty"`
}

// GuardianCredential is issued exactly once, in the create wallet response,
// for out-of-band delivery to the guardian. PrivateKey is the PEM EC private
// key the guardian presents during recovery ceremonies; the service does not
// keep a copy.
type GuardianCredential struct {
	GuardianID string `json:"guardian_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ShareIndex int    `json:"share_index"`
	KeyID      string `json:"key_id"`
	PublicKey  string `json:"public_key"`  // PEM
	PrivateKey string `json:"private_key"` // PEM
}

// CreateWalletResponse returns the manifest, the one-time guardian
// credentials and the genesis audit entries.
type CreateWalletResponse struct {
	WalletID            string                     `json:"wallet_id"`
	OwnerID             string                     `json:"owner_id"`
	Manifest            *wallet.Manifest           `json:"manifest"`
	GuardianCredentials []GuardianCredential       `json:"guardian_credentials"`
	AuditEntries        []interfaces.AuditLogEntry `json:"audit_entries"`
}

// InitiateRecoveryRequest opens a recovery attempt. The initiating guardian
// is taken from the authenticated request headers. The credential is
// optional; with it the initiation is recorded as a signed audit entry.
type InitiateRecoveryRequest struct {
	Reason             string `json:"reason"`
	NewOwnerContact    string `json:"new_owner_contact,omitempty"`
	GuardianCredential string `json:"guardian_credential,omitempty"` // PEM
}

// SignRecoveryRequest adds the authenticated guardian's approval to an open
// attempt. The credential is required: every approval is a verifiable
// signature recorded in the audit chain.
type SignRecoveryRequest struct {
	GuardianCredential string                        `json:"guardian_credential"` // PEM
	VerificationMethod interfaces.VerificationMethod `json:"verification_method,omitempty"`
	ProofNote          string                        `json:"proof_note,omitempty"`
}

// SignRecoveryResponse returns the recorded signature and the attempt state
// after it, so the caller observes a threshold transition directly.
type SignRecoveryResponse struct {
	Signature interfaces.GuardianSignature `json:"signature"`
	Attempt   *interfaces.RecoveryAttempt  `json:"attempt"`
}

// SubmitShareRequest delivers one decrypted share to the reconstruction
// ceremony of a completed recovery attempt. Signature is an ASN.1 DER ECDSA
// signature over the SHA-256 of the plaintext share, made with the
// submitting guardian's private key.
type SubmitShareRequest struct {
	ShareIndex int    `json:"share_index"`
	Share      string `json:"share"`     // base64 encoded
	Signature  string `json:"signature"` // base64 encoded
}

// CeremonyStatusResponse reports reconstruction ceremony progress.
type CeremonyStatusResponse struct {
	RecoveryID     string `json:"recovery_id"`
	SharesReceived int    `json:"shares_received"`
	SharesRequired int    `json:"shares_required"`
	Complete       bool   `json:"complete"`
}

// SeedResponse carries the reconstructed master seed. It is served only while
// the ceremony is alive; destroying the ceremony wipes the seed.
type SeedResponse struct {
	RecoveryID string `json:"recovery_id"`
	Seed       string `json:"seed"` // base64 encoded
}

// EncryptedShareResponse returns a guardian's own encrypted share. Only the
// matching guardian key can decrypt it.
type EncryptedShareResponse struct {
	GuardianID     string `json:"guardian_id"`
	ShareIndex     int    `json:"share_index"`
	EncryptedShare string `json:"encrypted_share"` // base64 encoded
	CiphertextHash string `json:"ciphertext_hash"`
	Algorithm      string `json:"algorithm"`
}

// RevokeGuardianRequest removes a guardian from the active set. Owner only.
type RevokeGuardianRequest struct {
	Reason          string `json:"reason,omitempty"`
	OwnerCredential string `json:"owner_credential"`
}

// ProofOfLifeRequest records an owner check-in on the audit chain.
type ProofOfLifeRequest struct {
	OwnerCredential string                        `json:"owner_credential"`
	Method          interfaces.VerificationMethod `json:"method,omitempty"`
}

// SyncWalletRequest replicates the wallet's artifacts to a storage backend.
// Backend is a storage URI such as "s3://bucket/prefix/" or "file:///path".
// With the owner credential the sync is recorded on the audit chain.
type SyncWalletRequest struct {
	Backend         string `json:"backend"`
	OwnerCredential string `json:"owner_credential,omitempty"`
}

// SyncWalletResponse is the sync report with the content ids of every stored
// artifact.
type SyncWalletResponse = wallet.SyncReport

// StatusResponse is the read-only wallet snapshot.
type StatusResponse = wallet.Status
