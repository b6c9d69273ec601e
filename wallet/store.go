package wallet

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

// ErrWalletNotFound is returned by stores when no record exists for a wallet id.
var ErrWalletNotFound = errors.New("wallet not found")

// ErrAttemptNotFound is returned by stores when a recovery attempt id is unknown.
var ErrAttemptNotFound = errors.New("recovery attempt not found")

// Store persists wallet state. The manager never writes to disk or the
// network itself; it drives one of these. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveManifest persists a wallet manifest, overwriting any previous
	// version for the same wallet id.
	SaveManifest(ctx context.Context, manifest *Manifest) error

	// LoadManifest returns the manifest for a wallet id, or ErrWalletNotFound.
	LoadManifest(ctx context.Context, walletID string) (*Manifest, error)

	// SaveShares persists the full encrypted share set for a wallet.
	SaveShares(ctx context.Context, walletID string, shares []interfaces.GuardianShare) error

	// LoadShares returns the encrypted shares for a wallet, ordered by
	// share index.
	LoadShares(ctx context.Context, walletID string) ([]interfaces.GuardianShare, error)

	// SaveAttempt persists a recovery attempt keyed by its id.
	SaveAttempt(ctx context.Context, walletID string, attempt *interfaces.RecoveryAttempt) error

	// LoadAttempts returns all recovery attempts for a wallet, newest first.
	LoadAttempts(ctx context.Context, walletID string) ([]interfaces.RecoveryAttempt, error)

	// SaveChain persists the exported audit log chain for a wallet.
	SaveChain(ctx context.Context, chain *interfaces.AuditLogChain) error

	// LoadChain returns the audit log chain for a wallet, or ErrWalletNotFound
	// if the wallet has no chain.
	LoadChain(ctx context.Context, walletID string) (*interfaces.AuditLogChain, error)

	// ListWallets returns the ids of all wallets with a stored manifest.
	ListWallets(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-memory Store for tests and embedded use.
type MemoryStore struct {
	mu        sync.RWMutex
	manifests map[string]*Manifest
	shares    map[string][]interfaces.GuardianShare
	attempts  map[string]map[string]*interfaces.RecoveryAttempt
	chains    map[string]*interfaces.AuditLogChain
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		manifests: make(map[string]*Manifest),
		shares:    make(map[string][]interfaces.GuardianShare),
		attempts:  make(map[string]map[string]*interfaces.RecoveryAttempt),
		chains:    make(map[string]*interfaces.AuditLogChain),
	}
}

func (s *MemoryStore) SaveManifest(ctx context.Context, manifest *Manifest) error {
	if manifest == nil {
		return interfaces.NewValidationError("manifest", "manifest is required")
	}
	cp := cloneManifest(manifest)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[cp.WalletID()] = cp
	return nil
}

func (s *MemoryStore) LoadManifest(ctx context.Context, walletID string) (*Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return cloneManifest(m), nil
}

func (s *MemoryStore) SaveShares(ctx context.Context, walletID string, shares []interfaces.GuardianShare) error {
	cp := cloneShares(shares)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[walletID] = cp
	return nil
}

func (s *MemoryStore) LoadShares(ctx context.Context, walletID string) ([]interfaces.GuardianShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shares, ok := s.shares[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	out := cloneShares(shares)
	sort.Slice(out, func(i, j int) bool { return out[i].ShareIndex < out[j].ShareIndex })
	return out, nil
}

func (s *MemoryStore) SaveAttempt(ctx context.Context, walletID string, attempt *interfaces.RecoveryAttempt) error {
	if attempt == nil || attempt.ID == "" {
		return interfaces.NewValidationError("attempt", "attempt with an id is required")
	}
	cp := cloneAttempt(attempt)
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.attempts[walletID]
	if !ok {
		byID = make(map[string]*interfaces.RecoveryAttempt)
		s.attempts[walletID] = byID
	}
	byID[cp.ID] = cp
	return nil
}

func (s *MemoryStore) LoadAttempts(ctx context.Context, walletID string) ([]interfaces.RecoveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.attempts[walletID]
	out := make([]interfaces.RecoveryAttempt, 0, len(byID))
	for _, a := range byID {
		out = append(out, *cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SaveChain(ctx context.Context, chain *interfaces.AuditLogChain) error {
	if chain == nil || chain.WalletID == "" {
		return interfaces.NewValidationError("chain", "chain with a wallet id is required")
	}
	cp := cloneChain(chain)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[cp.WalletID] = cp
	return nil
}

func (s *MemoryStore) LoadChain(ctx context.Context, walletID string) (*interfaces.AuditLogChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chains[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return cloneChain(c), nil
}

func (s *MemoryStore) ListWallets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.manifests))
	for id := range s.manifests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneManifest(m *Manifest) *Manifest {
	cp := *m
	cp.OwnerPublicKey = append(interfaces.AppPubkey(nil), m.OwnerPublicKey...)
	cp.Guardians = make([]interfaces.Guardian, len(m.Guardians))
	for i, g := range m.Guardians {
		cp.Guardians[i] = g
		cp.Guardians[i].PublicKey = append(interfaces.AppPubkey(nil), g.PublicKey...)
	}
	cp.Policy.AllowedRecoveryReasons = append([]string(nil), m.Policy.AllowedRecoveryReasons...)
	return &cp
}

func cloneShares(shares []interfaces.GuardianShare) []interfaces.GuardianShare {
	out := make([]interfaces.GuardianShare, len(shares))
	for i, s := range shares {
		out[i] = s
		out[i].EncryptedShare = append([]byte(nil), s.EncryptedShare...)
	}
	return out
}

func cloneAttempt(a *interfaces.RecoveryAttempt) *interfaces.RecoveryAttempt {
	cp := *a
	cp.Signatures = make([]interfaces.GuardianSignature, len(a.Signatures))
	for i, sig := range a.Signatures {
		cp.Signatures[i] = sig
		cp.Signatures[i].Signature = append([]byte(nil), sig.Signature...)
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func cloneChain(c *interfaces.AuditLogChain) *interfaces.AuditLogChain {
	cp := *c
	cp.Entries = make([]interfaces.AuditLogEntry, len(c.Entries))
	for i, e := range c.Entries {
		cp.Entries[i] = e
		cp.Entries[i].Data = append([]byte(nil), e.Data...)
		if e.Context != nil {
			cc := *e.Context
			cp.Entries[i].Context = &cc
		}
	}
	if c.FirstAt != nil {
		t := *c.FirstAt
		cp.FirstAt = &t
	}
	if c.LastAt != nil {
		t := *c.LastAt
		cp.LastAt = &t
	}
	return &cp
}
