package wallet

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/registry"
)

// ManifestVersion is bumped when the persisted manifest layout changes.
const ManifestVersion = 1

// Manifest is the durable record of a wallet: its policy, its guardian set
// with their public keys, the owner's signing public key and the SHA-256
// commitment of the master seed recorded at split time. The manifest never
// contains the seed, a plaintext share or any private key.
type Manifest struct {
	Version int    `json:"version"`
	Name    string `json:"name"`

	Policy interfaces.WalletPolicy `json:"policy"`

	// OwnerPublicKey is the public half of the key derived from the owner
	// credential at creation. Audit entries signed by the owner verify
	// against it.
	OwnerPublicKey interfaces.AppPubkey `json:"owner_public_key"`

	// SecretCommitment is the hex SHA-256 of the master seed, used to verify
	// reconstruction results.
	SecretCommitment string `json:"secret_commitment"`

	Guardians []interfaces.Guardian `json:"guardians"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WalletID returns the wallet's identifier.
func (m *Manifest) WalletID() string {
	return m.Policy.WalletID
}

// OwnerID returns the owner's actor id.
func (m *Manifest) OwnerID() string {
	return m.Policy.OwnerID
}

// Validate checks the manifest's internal consistency, including the
// guardian share-index bijection.
func (m *Manifest) Validate() error {
	if m.Version != ManifestVersion {
		return interfaces.NewValidationError("version",
			fmt.Sprintf("unsupported manifest version %d", m.Version))
	}
	if m.Name == "" {
		return interfaces.NewValidationError("name", "wallet name is required")
	}
	if m.Policy.WalletID == "" {
		return interfaces.NewValidationError("policy.wallet_id", "wallet id is required")
	}
	if m.Policy.OwnerID == "" {
		return interfaces.NewValidationError("policy.owner_id", "owner id is required")
	}
	if m.Policy.Threshold < interfaces.MinThreshold || m.Policy.Threshold > m.Policy.TotalGuardians {
		return interfaces.NewValidationError("policy.threshold",
			fmt.Sprintf("threshold %d outside [%d, %d]", m.Policy.Threshold, interfaces.MinThreshold, m.Policy.TotalGuardians))
	}
	if m.Policy.RecoveryTimeout <= 0 {
		return interfaces.NewValidationError("policy.recovery_timeout", "recovery timeout must be positive")
	}
	if err := m.OwnerPublicKey.Validate(); err != nil {
		return &interfaces.ValidationError{
			Code:  interfaces.CodeInvalidInput,
			Field: "owner_public_key",
			Msg:   "invalid owner public key",
			Err:   err,
		}
	}
	if raw, err := hex.DecodeString(m.SecretCommitment); err != nil || len(raw) != 32 {
		return interfaces.NewValidationError("secret_commitment",
			"commitment must be a hex SHA-256 digest")
	}

	reg, err := registry.FromGuardians(m.Policy.WalletID, m.Guardians)
	if err != nil {
		return err
	}
	return reg.VerifyBijection(m.Policy.TotalGuardians)
}

// Registry builds the guardian registry from the manifest's records.
func (m *Manifest) Registry() (*registry.Registry, error) {
	return registry.FromGuardians(m.Policy.WalletID, m.Guardians)
}

// Commitment returns the decoded seed commitment.
func (m *Manifest) Commitment() ([]byte, error) {
	raw, err := hex.DecodeString(m.SecretCommitment)
	if err != nil {
		return nil, interfaces.NewValidationError("secret_commitment", "malformed commitment encoding")
	}
	return raw, nil
}

// PublicKeyFor resolves audit actor ids: the owner id maps to the owner's
// derived public key, guardian ids to their registered keys. Satisfies the
// audit chain's KeyResolver.
func (m *Manifest) PublicKeyFor(actorID string) (interfaces.AppPubkey, bool) {
	if actorID == m.Policy.OwnerID {
		return m.OwnerPublicKey, true
	}
	for i := range m.Guardians {
		if m.Guardians[i].ID == actorID {
			return m.Guardians[i].PublicKey, true
		}
	}
	return nil, false
}

// GuardianByID returns the guardian record with the given id.
func (m *Manifest) GuardianByID(guardianID string) (*interfaces.Guardian, bool) {
	for i := range m.Guardians {
		if m.Guardians[i].ID == guardianID {
			return &m.Guardians[i], true
		}
	}
	return nil, false
}

// GuardianByIndex returns the guardian holding a share index.
func (m *Manifest) GuardianByIndex(shareIndex int) (*interfaces.Guardian, bool) {
	for i := range m.Guardians {
		if m.Guardians[i].ShareIndex == shareIndex {
			return &m.Guardians[i], true
		}
	}
	return nil, false
}
