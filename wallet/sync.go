package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vaultmesh/recovery-backend/auditlog"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

// SyncReport records where each wallet artifact landed during a sync. The
// content ids are the SHA-256 of the stored blobs, so any replica can be
// checked against the report.
type SyncReport struct {
	WalletID   string            `json:"wallet_id"`
	Backend    string            `json:"backend"`
	Location   string            `json:"location"`
	ManifestID string            `json:"manifest_id"`
	SharesID   string            `json:"shares_id"`
	ChainID    string            `json:"chain_id"`
	AttemptIDs map[string]string `json:"attempt_ids,omitempty"`
	EntryCount int               `json:"entry_count"`
	MerkleRoot string            `json:"merkle_root"`
	SyncedAt   time.Time         `json:"synced_at"`
	Audited    bool              `json:"audited"`
}

// SyncWallet replicates the wallet's manifest, encrypted shares, recovery
// attempts and audit chain to a storage backend as content-addressed blobs.
// With the owner credential a wallet_synced entry is appended afterwards; the
// entry describes the snapshot that was uploaded, so the replica's chain does
// not contain it.
func (m *Manager) SyncWallet(ctx context.Context, walletID string, backend interfaces.StorageBackend, ownerCredential []byte, clientCtx *interfaces.ClientContext) (*SyncReport, error) {
	if backend == nil {
		return nil, interfaces.NewValidationError("backend", "a storage backend is required")
	}
	if !backend.Available(ctx) {
		return nil, fmt.Errorf("backend %s: %w", backend.Name(), interfaces.ErrBackendUnavailable)
	}

	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	var ownerKey interfaces.AppPrivkey
	if len(ownerCredential) > 0 {
		ownerKey, err = m.resolveActorKey(state, state.manifest.OwnerID(), ownerCredential)
		if err != nil {
			return nil, err
		}
	}

	exported := state.chain.Export()

	manifestID, err := storeJSON(ctx, backend, state.manifest, interfaces.ManifestType)
	if err != nil {
		return nil, err
	}
	sharesID, err := storeJSON(ctx, backend, state.shares, interfaces.ShareType)
	if err != nil {
		return nil, err
	}
	chainID, err := storeJSON(ctx, backend, exported, interfaces.AuditType)
	if err != nil {
		return nil, err
	}

	var attemptIDs map[string]string
	if len(state.attempts) > 0 {
		attemptIDs = make(map[string]string, len(state.attempts))
		for id, attempt := range state.attempts {
			cid, err := storeJSON(ctx, backend, attempt, interfaces.AttemptType)
			if err != nil {
				return nil, err
			}
			attemptIDs[id] = cid.String()
		}
	}

	if ownerKey != nil {
		_, err = state.chain.Append(ctx, interfaces.AuditWalletSynced, state.manifest.OwnerID(), interfaces.WalletSyncedEvent{
			Backends:   []string{backend.LocationURI()},
			EntryCount: exported.Count,
			MerkleRoot: exported.MerkleRoot,
		}, ownerKey, clientCtx)
		if err != nil {
			return nil, err
		}
		if err := m.persistChain(ctx, state); err != nil {
			return nil, err
		}
	}

	m.log.Info("wallet synced",
		"wallet_id", walletID,
		"backend", backend.Name(),
		"entries", exported.Count,
		"audited", ownerKey != nil)

	return &SyncReport{
		WalletID:   walletID,
		Backend:    backend.Name(),
		Location:   backend.LocationURI(),
		ManifestID: manifestID.String(),
		SharesID:   sharesID.String(),
		ChainID:    chainID.String(),
		AttemptIDs: attemptIDs,
		EntryCount: exported.Count,
		MerkleRoot: exported.MerkleRoot,
		SyncedAt:   time.Now().UTC(),
		Audited:    ownerKey != nil,
	}, nil
}

// VerifySyncedChain fetches a previously synced audit chain blob and runs the
// full import verification against the wallet's manifest keys. It returns the
// verified replica so callers can compare roots with the live chain.
func (m *Manager) VerifySyncedChain(ctx context.Context, walletID string, backend interfaces.StorageBackend, id interfaces.ContentID) (*interfaces.AuditLogChain, error) {
	if backend == nil {
		return nil, interfaces.NewValidationError("backend", "a storage backend is required")
	}
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	data, err := backend.Fetch(ctx, id, interfaces.AuditType)
	if err != nil {
		return nil, fmt.Errorf("fetching synced chain %s: %w", id.String(), err)
	}
	var replica interfaces.AuditLogChain
	if err := json.Unmarshal(data, &replica); err != nil {
		return nil, fmt.Errorf("decoding synced chain %s: %w", id.String(), err)
	}

	imported, err := auditlog.Import(ctx, &replica, m.crypto, state.manifest)
	if err != nil {
		return nil, err
	}
	return imported.Export(), nil
}

func storeJSON(ctx context.Context, backend interfaces.StorageBackend, v any, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("encoding %s blob: %w", contentType.String(), err)
	}
	id, err := backend.Store(ctx, data, contentType)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("storing %s blob to %s: %w", contentType.String(), backend.Name(), err)
	}
	return id, nil
}
