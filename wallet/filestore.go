package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

const (
	manifestFile = "manifest.json"
	sharesFile   = "shares.json"
	chainFile    = "chain.json"
	attemptsDir  = "attempts"
)

// FileStore persists wallet state as JSON files under a root directory, one
// subdirectory per wallet:
//
//	<root>/<wallet-id>/manifest.json
//	<root>/<wallet-id>/shares.json
//	<root>/<wallet-id>/chain.json
//	<root>/<wallet-id>/attempts/<attempt-id>.json
type FileStore struct {
	mu   sync.Mutex
	root string
}

// NewFileStore creates the root directory if needed and returns a store
// rooted there.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, interfaces.NewValidationError("root", "storage root directory is required")
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) SaveManifest(ctx context.Context, manifest *Manifest) error {
	if manifest == nil {
		return interfaces.NewValidationError("manifest", "manifest is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(manifest.WalletID(), manifestFile, manifest)
}

func (s *FileStore) LoadManifest(ctx context.Context, walletID string) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m Manifest
	if err := s.readJSON(walletID, manifestFile, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *FileStore) SaveShares(ctx context.Context, walletID string, shares []interfaces.GuardianShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(walletID, sharesFile, shares)
}

func (s *FileStore) LoadShares(ctx context.Context, walletID string) ([]interfaces.GuardianShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var shares []interfaces.GuardianShare
	if err := s.readJSON(walletID, sharesFile, &shares); err != nil {
		return nil, err
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].ShareIndex < shares[j].ShareIndex })
	return shares, nil
}

func (s *FileStore) SaveAttempt(ctx context.Context, walletID string, attempt *interfaces.RecoveryAttempt) error {
	if attempt == nil || attempt.ID == "" {
		return interfaces.NewValidationError("attempt", "attempt with an id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := filepath.Join(attemptsDir, attempt.ID+".json")
	return s.writeJSON(walletID, name, attempt)
}

func (s *FileStore) LoadAttempts(ctx context.Context, walletID string) ([]interfaces.RecoveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, err := s.walletDir(walletID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, attemptsDir))
	if os.IsNotExist(err) {
		return []interfaces.RecoveryAttempt{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing recovery attempts: %w", err)
	}
	attempts := make([]interfaces.RecoveryAttempt, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var a interfaces.RecoveryAttempt
		if err := s.readJSON(walletID, filepath.Join(attemptsDir, entry.Name()), &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].CreatedAt.After(attempts[j].CreatedAt) })
	return attempts, nil
}

func (s *FileStore) SaveChain(ctx context.Context, chain *interfaces.AuditLogChain) error {
	if chain == nil || chain.WalletID == "" {
		return interfaces.NewValidationError("chain", "chain with a wallet id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(chain.WalletID, chainFile, chain)
}

func (s *FileStore) LoadChain(ctx context.Context, walletID string) (*interfaces.AuditLogChain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c interfaces.AuditLogChain
	if err := s.readJSON(walletID, chainFile, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FileStore) ListWallets(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, entry.Name(), manifestFile)); err == nil {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) walletDir(walletID string) (string, error) {
	if walletID == "" || strings.ContainsAny(walletID, `/\`) || walletID == "." || walletID == ".." {
		return "", interfaces.NewValidationError("wallet_id", "malformed wallet id")
	}
	return filepath.Join(s.root, walletID), nil
}

func (s *FileStore) writeJSON(walletID, name string, v any) error {
	dir, err := s.walletDir(walletID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating wallet directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) readJSON(walletID, name string, v any) error {
	dir, err := s.walletDir(walletID)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return ErrWalletNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}
