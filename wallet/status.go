package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

// Status is a read-only snapshot of a wallet.
type Status struct {
	WalletID         string                      `json:"wallet_id"`
	Name             string                      `json:"name"`
	OwnerID          string                      `json:"owner_id"`
	Threshold        int                         `json:"threshold"`
	TotalGuardians   int                         `json:"total_guardians"`
	ActiveGuardians  int                         `json:"active_guardians"`
	RevokedGuardians int                         `json:"revoked_guardians"`
	OpenRecovery     *interfaces.RecoveryAttempt `json:"open_recovery,omitempty"`
	AuditEntries     int                         `json:"audit_entries"`
	MerkleRoot       string                      `json:"merkle_root,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// GetStatus summarizes a wallet: guardian counts, the newest open recovery
// attempt if any, and the audit chain head. Expiry transitions are applied
// before the snapshot is taken.
func (m *Manager) GetStatus(ctx context.Context, walletID string) (*Status, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	active := 0
	revoked := 0
	for _, g := range state.manifest.Guardians {
		switch g.Status {
		case interfaces.GuardianActive:
			active++
		case interfaces.GuardianRevoked:
			revoked++
		}
	}

	var open *interfaces.RecoveryAttempt
	for _, attempt := range state.attempts {
		if _, err := m.expireIfNeeded(ctx, state, attempt, "", nil, nil); err != nil {
			return nil, err
		}
		if attempt.Status.Terminal() {
			continue
		}
		if open == nil || attempt.CreatedAt.After(open.CreatedAt) {
			open = attempt
		}
	}
	if open != nil {
		open = cloneAttempt(open)
	}

	return &Status{
		WalletID:         state.manifest.WalletID(),
		Name:             state.manifest.Name,
		OwnerID:          state.manifest.OwnerID(),
		Threshold:        state.manifest.Policy.Threshold,
		TotalGuardians:   state.manifest.Policy.TotalGuardians,
		ActiveGuardians:  active,
		RevokedGuardians: revoked,
		OpenRecovery:     open,
		AuditEntries:     state.chain.Count(),
		MerkleRoot:       state.chain.MerkleRoot(),
		CreatedAt:        state.manifest.CreatedAt,
		UpdatedAt:        state.manifest.UpdatedAt,
	}, nil
}

// ListGuardians returns the wallet's guardian records ordered by share index.
func (m *Manager) ListGuardians(ctx context.Context, walletID string) ([]interfaces.Guardian, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.registry.List(), nil
}

// GetGuardianShares returns the encrypted shares, ordered by share index.
// They are ciphertext only; nothing here can be combined without the
// guardians' private keys.
func (m *Manager) GetGuardianShares(ctx context.Context, walletID string) ([]interfaces.GuardianShare, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return cloneShares(state.shares), nil
}

// GetAuditChain exports the wallet's audit log.
func (m *Manager) GetAuditChain(ctx context.Context, walletID string) (*interfaces.AuditLogChain, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.chain.Export(), nil
}

// VerifyAuditChain runs the full integrity check over the wallet's audit log,
// verifying every entry signature against the owner and guardian keys in the
// manifest.
func (m *Manager) VerifyAuditChain(ctx context.Context, walletID string) (interfaces.ChainVerification, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return interfaces.ChainVerification{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.chain.VerifyChain(ctx, state.manifest), nil
}

// AuditProof produces a Merkle inclusion proof for one audit entry.
func (m *Manager) AuditProof(ctx context.Context, walletID, entryID string) (*interfaces.MerkleProof, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.chain.GenerateMerkleProof(entryID)
}

// VerifyAuditProof checks an inclusion proof against the wallet's current
// Merkle root.
func (m *Manager) VerifyAuditProof(ctx context.Context, walletID string, proof *interfaces.MerkleProof) (bool, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return false, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.chain.VerifyMerkleProof(proof), nil
}

// RevokeGuardianRequest removes a guardian from the active set. Only the
// owner can revoke, and the active set must stay at or above the threshold.
type RevokeGuardianRequest struct {
	WalletID        string
	GuardianID      string
	Reason          string
	OwnerCredential []byte
	Context         *interfaces.ClientContext
}

// RevokeGuardian marks a guardian revoked, refreshes the manifest and
// appends a guardian_revoked entry signed by the owner. The guardian's share
// index stays reserved; revocation gates signing, not share arithmetic.
func (m *Manager) RevokeGuardian(ctx context.Context, req RevokeGuardianRequest) error {
	if len(req.OwnerCredential) == 0 {
		return interfaces.NewValidationError("owner_credential", "revocation requires the owner credential")
	}
	state, err := m.getState(ctx, req.WalletID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	ownerKey, err := m.resolveActorKey(state, state.manifest.OwnerID(), req.OwnerCredential)
	if err != nil {
		return err
	}

	if _, err := state.registry.RequireActive(req.GuardianID); err != nil {
		return err
	}
	remaining := state.registry.ActiveCount() - 1
	if remaining < state.manifest.Policy.Threshold {
		return interfaces.NewValidationError("guardian_id",
			fmt.Sprintf("revoking would leave %d active guardians, below the threshold of %d",
				remaining, state.manifest.Policy.Threshold))
	}

	if err := state.registry.Revoke(req.GuardianID); err != nil {
		return err
	}
	now := time.Now().UTC()
	state.manifest.Guardians = state.registry.List()
	state.manifest.UpdatedAt = now
	state.manifest.Policy.UpdatedAt = now

	_, err = state.chain.Append(ctx, interfaces.AuditGuardianRevoked, state.manifest.OwnerID(), interfaces.GuardianRevokedEvent{
		GuardianID: req.GuardianID,
		Reason:     req.Reason,
	}, ownerKey, req.Context)
	if err != nil {
		return err
	}

	if err := m.store.SaveManifest(ctx, state.manifest); err != nil {
		return fmt.Errorf("persisting manifest: %w", err)
	}
	if err := m.persistChain(ctx, state); err != nil {
		return err
	}

	m.log.Info("guardian revoked",
		"wallet_id", req.WalletID,
		"guardian_id", req.GuardianID,
		"active_guardians", remaining)
	return nil
}

// RecordProofOfLife appends an owner check-in to the audit chain. Guardians
// watching the chain can treat a missed interval as grounds to initiate
// recovery.
func (m *Manager) RecordProofOfLife(ctx context.Context, walletID string, ownerCredential []byte, method interfaces.VerificationMethod, clientCtx *interfaces.ClientContext) (*interfaces.AuditLogEntry, error) {
	if len(ownerCredential) == 0 {
		return nil, interfaces.NewValidationError("owner_credential", "proof of life requires the owner credential")
	}
	if method == "" {
		method = interfaces.VerificationEmail
	}
	if !method.Valid() {
		return nil, interfaces.NewValidationError("method", fmt.Sprintf("unknown verification method %q", method))
	}

	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	ownerKey, err := m.resolveActorKey(state, state.manifest.OwnerID(), ownerCredential)
	if err != nil {
		return nil, err
	}

	entry, err := state.chain.Append(ctx, interfaces.AuditProofOfLife, state.manifest.OwnerID(), interfaces.ProofOfLifeEvent{
		Method: method,
	}, ownerKey, clientCtx)
	if err != nil {
		return nil, err
	}
	if err := m.persistChain(ctx, state); err != nil {
		return nil, err
	}
	return entry, nil
}
