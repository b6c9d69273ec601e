package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultmesh/recovery-backend/auditlog"
	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/registry"
	"github.com/vaultmesh/recovery-backend/secretshare"
)

const (
	// DefaultRecoveryTimeout is the window a recovery attempt stays open when
	// the wallet policy does not override it.
	DefaultRecoveryTimeout = 72 * time.Hour

	// DefaultProofOfLifeInterval is how often the owner is expected to check in.
	DefaultProofOfLifeInterval = 30 * 24 * time.Hour

	// DefaultCryptoTimeout bounds each cryptographic provider call.
	DefaultCryptoTimeout = 30 * time.Second
)

// Config wires the manager's collaborators.
type Config struct {
	Store  Store
	Crypto interfaces.CryptoProvider
	Log    *slog.Logger

	// CryptoTimeout bounds each call into the crypto provider. Zero selects
	// DefaultCryptoTimeout.
	CryptoTimeout time.Duration
}

// Manager implements the wallet lifecycle: creation with secret splitting,
// the recovery state machine, seed reconstruction and the signed audit trail.
// It holds no secrets between calls; the master seed only exists inside
// CreateWallet and ReconstructSeed stack frames.
type Manager struct {
	store         Store
	crypto        interfaces.CryptoProvider
	log           *slog.Logger
	cryptoTimeout time.Duration

	mu      sync.Mutex
	wallets map[string]*walletState
}

// walletState is the in-memory view of one wallet. Its mutex serializes every
// state transition for the wallet, so two guardians signing the same recovery
// attempt concurrently cannot both observe the pre-threshold count.
type walletState struct {
	mu       sync.Mutex
	manifest *Manifest
	registry *registry.Registry
	chain    *auditlog.Chain
	shares   []interfaces.GuardianShare
	attempts map[string]*interfaces.RecoveryAttempt
}

// NewManager validates the configuration and returns a manager with no
// wallets loaded.
func NewManager(config Config) (*Manager, error) {
	if config.Store == nil {
		return nil, interfaces.NewValidationError("store", "a wallet store is required")
	}
	if config.Crypto == nil {
		return nil, interfaces.NewValidationError("crypto", "a crypto provider is required")
	}
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := config.CryptoTimeout
	if timeout <= 0 {
		timeout = DefaultCryptoTimeout
	}
	return &Manager{
		store:         config.Store,
		crypto:        config.Crypto,
		log:           log,
		cryptoTimeout: timeout,
		wallets:       make(map[string]*walletState),
	}, nil
}

// CreateWalletRequest carries everything needed to set up a wallet. Secret
// and OwnerCredential are read but never retained by the manager.
type CreateWalletRequest struct {
	Name            string
	Secret          []byte
	Guardians       []interfaces.GuardianInfo
	Threshold       int
	OwnerCredential []byte

	// RecoveryTimeout overrides DefaultRecoveryTimeout when positive.
	RecoveryTimeout time.Duration

	// ProofOfLifeInterval overrides DefaultProofOfLifeInterval when positive.
	ProofOfLifeInterval time.Duration

	// AllowedRecoveryReasons overrides interfaces.DefaultRecoveryReasons.
	AllowedRecoveryReasons []string

	Context *interfaces.ClientContext
}

// CreateWalletResult is returned once per wallet. GuardianKeys holds each
// guardian's full key pair for out-of-band delivery; the manager does not
// keep the private halves.
type CreateWalletResult struct {
	Manifest     *Manifest
	Shares       []interfaces.GuardianShare
	GuardianKeys map[string]interfaces.KeyPair
	AuditEntries []interfaces.AuditLogEntry
}

// CreateWallet splits the master seed, encrypts one share per guardian with
// a freshly generated key pair, records the seed commitment and writes the
// first audit entries signed with the owner's derived key. Nothing is
// persisted until every share is encrypted and every audit entry signed, so
// a failure partway through leaves no stored trace of the wallet.
func (m *Manager) CreateWallet(ctx context.Context, req CreateWalletRequest) (*CreateWalletResult, error) {
	if err := validateCreateRequest(&req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	walletID := uuid.New().String()
	ownerID := uuid.New().String()

	ownerKey, err := cryptoutils.SigningKeyFromCredential(req.OwnerCredential, []byte(walletID))
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeInvalidInput,
			Op:   "derive_owner_key",
			Msg:  "deriving owner signing key",
			Err:  err,
		}
	}
	ownerPub, err := cryptoutils.PublicKeyFor(ownerKey)
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeInvalidInput,
			Op:   "derive_owner_key",
			Msg:  "deriving owner public key",
			Err:  err,
		}
	}

	split, err := secretshare.Split(req.Secret, len(req.Guardians), req.Threshold)
	if err != nil {
		return nil, err
	}

	reg := registry.New(walletID)
	shares := make([]interfaces.GuardianShare, 0, len(req.Guardians))
	guardianKeys := make(map[string]interfaces.KeyPair, len(req.Guardians))

	for i, info := range req.Guardians {
		keyPair, err := m.generateKeyPair(ctx)
		if err != nil {
			return nil, err
		}

		piece := split.Shares[i]
		ciphertext, err := m.encrypt(ctx, keyPair.PublicKey, piece.Value)
		secretshare.Wipe(piece.Value)
		if err != nil {
			return nil, err
		}

		guardian := interfaces.Guardian{
			ID:         uuid.New().String(),
			WalletID:   walletID,
			Name:       info.Name,
			Email:      info.Email,
			Phone:      info.Phone,
			PublicKey:  keyPair.PublicKey,
			KeyID:      keyPair.KeyID,
			ShareIndex: piece.Index,
			Status:     interfaces.GuardianActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := reg.Add(&guardian); err != nil {
			return nil, err
		}

		shares = append(shares, interfaces.GuardianShare{
			ShareIndex:     piece.Index,
			GuardianID:     guardian.ID,
			EncryptedShare: ciphertext,
			CiphertextHash: hex.EncodeToString(m.crypto.Hash(ciphertext)),
			Algorithm:      interfaces.ShareEncryptionAlgorithm,
		})
		guardianKeys[guardian.ID] = keyPair
	}

	if err := reg.VerifyBijection(len(req.Guardians)); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Version: ManifestVersion,
		Name:    req.Name,
		Policy: interfaces.WalletPolicy{
			WalletID:               walletID,
			OwnerID:                ownerID,
			Threshold:              req.Threshold,
			TotalGuardians:         len(req.Guardians),
			RecoveryTimeout:        req.RecoveryTimeout,
			ProofOfLifeInterval:    req.ProofOfLifeInterval,
			AllowedRecoveryReasons: req.AllowedRecoveryReasons,
			CreatedAt:              now,
			UpdatedAt:              now,
		},
		OwnerPublicKey:   ownerPub,
		SecretCommitment: hex.EncodeToString(split.Commitment),
		Guardians:        reg.List(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	chain := auditlog.New(walletID, m.crypto)
	entries := make([]interfaces.AuditLogEntry, 0, 1+len(manifest.Guardians))

	entry, err := chain.Append(ctx, interfaces.AuditWalletCreated, ownerID, interfaces.WalletCreatedEvent{
		WalletName:     req.Name,
		Threshold:      req.Threshold,
		TotalGuardians: len(req.Guardians),
	}, ownerKey, req.Context)
	if err != nil {
		return nil, err
	}
	entries = append(entries, *entry)

	for _, g := range manifest.Guardians {
		entry, err := chain.Append(ctx, interfaces.AuditGuardianAdded, ownerID, interfaces.GuardianAddedEvent{
			GuardianID: g.ID,
			Name:       g.Name,
			ShareIndex: g.ShareIndex,
			KeyID:      g.KeyID,
		}, ownerKey, req.Context)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	state := &walletState{
		manifest: manifest,
		registry: reg,
		chain:    chain,
		shares:   shares,
		attempts: make(map[string]*interfaces.RecoveryAttempt),
	}
	if err := m.persistWallet(ctx, state); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.wallets[walletID] = state
	m.mu.Unlock()

	m.log.Info("wallet created",
		"wallet_id", walletID,
		"guardians", len(manifest.Guardians),
		"threshold", req.Threshold)

	return &CreateWalletResult{
		Manifest:     cloneManifest(manifest),
		Shares:       cloneShares(shares),
		GuardianKeys: guardianKeys,
		AuditEntries: entries,
	}, nil
}

func validateCreateRequest(req *CreateWalletRequest) error {
	name := strings.TrimSpace(req.Name)
	if len(name) < interfaces.MinWalletNameLen || len(name) > interfaces.MaxWalletNameLen {
		return interfaces.NewValidationError("name",
			fmt.Sprintf("wallet name must be %d to %d characters", interfaces.MinWalletNameLen, interfaces.MaxWalletNameLen))
	}
	req.Name = name

	if len(req.Secret) < interfaces.MinSecretLen {
		return interfaces.NewValidationError("secret",
			fmt.Sprintf("master seed must be at least %d bytes", interfaces.MinSecretLen))
	}
	if len(req.Guardians) < interfaces.MinGuardians || len(req.Guardians) > interfaces.MaxGuardians {
		return interfaces.NewValidationError("guardians",
			fmt.Sprintf("guardian count must be %d to %d", interfaces.MinGuardians, interfaces.MaxGuardians))
	}
	if req.Threshold < interfaces.MinThreshold || req.Threshold > len(req.Guardians) {
		return interfaces.NewValidationError("threshold",
			fmt.Sprintf("threshold must be %d to %d", interfaces.MinThreshold, len(req.Guardians)))
	}
	if len(req.OwnerCredential) < interfaces.MinCredentialLen {
		return interfaces.NewValidationError("owner_credential",
			fmt.Sprintf("owner credential must be at least %d bytes", interfaces.MinCredentialLen))
	}

	seen := make(map[string]struct{}, len(req.Guardians))
	for i, g := range req.Guardians {
		if strings.TrimSpace(g.Name) == "" {
			return interfaces.NewValidationError(fmt.Sprintf("guardians[%d].name", i), "guardian name is required")
		}
		email := strings.ToLower(strings.TrimSpace(g.Email))
		if email == "" {
			return interfaces.NewValidationError(fmt.Sprintf("guardians[%d].email", i), "guardian email is required")
		}
		if _, dup := seen[email]; dup {
			return interfaces.NewValidationError(fmt.Sprintf("guardians[%d].email", i),
				fmt.Sprintf("duplicate guardian email %q", g.Email))
		}
		seen[email] = struct{}{}
	}

	if req.RecoveryTimeout <= 0 {
		req.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if req.ProofOfLifeInterval <= 0 {
		req.ProofOfLifeInterval = DefaultProofOfLifeInterval
	}
	if len(req.AllowedRecoveryReasons) == 0 {
		req.AllowedRecoveryReasons = append([]string(nil), interfaces.DefaultRecoveryReasons...)
	}
	return nil
}

// LoadWallet brings a persisted wallet into memory, rebuilding the guardian
// registry and verifying the audit chain against the manifest's keys. A
// tampered chain fails the load.
func (m *Manager) LoadWallet(ctx context.Context, walletID string) (*Manifest, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return cloneManifest(state.manifest), nil
}

// getState returns the cached wallet state, loading it from the store on
// first access.
func (m *Manager) getState(ctx context.Context, walletID string) (*walletState, error) {
	if walletID == "" {
		return nil, interfaces.NewValidationError("wallet_id", "wallet id is required")
	}

	m.mu.Lock()
	if state, ok := m.wallets[walletID]; ok {
		m.mu.Unlock()
		return state, nil
	}
	m.mu.Unlock()

	state, err := m.loadState(ctx, walletID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.wallets[walletID]; ok {
		// Another goroutine loaded it first.
		return existing, nil
	}
	m.wallets[walletID] = state
	return state, nil
}

func (m *Manager) loadState(ctx context.Context, walletID string) (*walletState, error) {
	manifest, err := m.store.LoadManifest(ctx, walletID)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return nil, &interfaces.ProtocolError{
				Code:     interfaces.CodeWalletNotFound,
				WalletID: walletID,
				Msg:      "wallet not found",
			}
		}
		return nil, fmt.Errorf("loading wallet manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("stored manifest for wallet %s is invalid: %w", walletID, err)
	}

	reg, err := manifest.Registry()
	if err != nil {
		return nil, err
	}

	shares, err := m.store.LoadShares(ctx, walletID)
	if err != nil && !errors.Is(err, ErrWalletNotFound) {
		return nil, fmt.Errorf("loading guardian shares: %w", err)
	}

	exported, err := m.store.LoadChain(ctx, walletID)
	if err != nil {
		if !errors.Is(err, ErrWalletNotFound) {
			return nil, fmt.Errorf("loading audit chain: %w", err)
		}
		exported = nil
	}

	var chain *auditlog.Chain
	if exported != nil {
		chain, err = auditlog.Import(ctx, exported, m.crypto, manifest)
		if err != nil {
			return nil, err
		}
	} else {
		chain = auditlog.New(walletID, m.crypto)
	}

	stored, err := m.store.LoadAttempts(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("loading recovery attempts: %w", err)
	}
	attempts := make(map[string]*interfaces.RecoveryAttempt, len(stored))
	for i := range stored {
		attempts[stored[i].ID] = &stored[i]
	}

	return &walletState{
		manifest: manifest,
		registry: reg,
		chain:    chain,
		shares:   shares,
		attempts: attempts,
	}, nil
}

// persistWallet writes the manifest, shares and audit chain. Callers hold the
// wallet lock (or, at creation, exclusive ownership of the state).
func (m *Manager) persistWallet(ctx context.Context, state *walletState) error {
	if err := m.store.SaveManifest(ctx, state.manifest); err != nil {
		return fmt.Errorf("persisting manifest: %w", err)
	}
	if err := m.store.SaveShares(ctx, state.manifest.WalletID(), state.shares); err != nil {
		return fmt.Errorf("persisting guardian shares: %w", err)
	}
	if err := m.store.SaveChain(ctx, state.chain.Export()); err != nil {
		return fmt.Errorf("persisting audit chain: %w", err)
	}
	return nil
}

func (m *Manager) persistChain(ctx context.Context, state *walletState) error {
	if err := m.store.SaveChain(ctx, state.chain.Export()); err != nil {
		return fmt.Errorf("persisting audit chain: %w", err)
	}
	return nil
}

// resolveActorKey turns a credential into the signing key for an actor and
// rejects credentials whose public half does not match the key on record.
// The owner's key is re-derived from the credential; a guardian presents the
// PEM private key issued at wallet creation.
func (m *Manager) resolveActorKey(state *walletState, actorID string, credential []byte) (interfaces.AppPrivkey, error) {
	if actorID == "" {
		return nil, interfaces.NewValidationError("actor_id", "actor id is required with a credential")
	}
	expected, ok := state.manifest.PublicKeyFor(actorID)
	if !ok {
		return nil, &interfaces.GuardianError{
			Code:       interfaces.CodeGuardianNotFound,
			GuardianID: actorID,
			Msg:        "actor is not the owner or a registered guardian",
		}
	}

	key, err := cryptoutils.SigningKeyFromCredential(credential, []byte(state.manifest.WalletID()))
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeInvalidInput,
			Op:   "derive_actor_key",
			Msg:  "deriving signing key from credential",
			Err:  err,
		}
	}
	pub, err := cryptoutils.PublicKeyFor(key)
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeInvalidInput,
			Op:   "derive_actor_key",
			Msg:  "deriving public key from credential",
			Err:  err,
		}
	}
	if pub.Fingerprint() != expected.Fingerprint() {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeSignatureInvalid,
			Op:   "verify_credential",
			Msg:  fmt.Sprintf("credential does not match the key on record for actor %s", actorID),
		}
	}
	return key, nil
}

func (m *Manager) generateKeyPair(ctx context.Context) (interfaces.KeyPair, error) {
	cctx, cancel := context.WithTimeout(ctx, m.cryptoTimeout)
	defer cancel()
	keyPair, err := m.crypto.GenerateKeyPair(cctx)
	if err != nil {
		return interfaces.KeyPair{}, &interfaces.CryptoError{
			Code: interfaces.CodeEncryptionFailed,
			Op:   "generate_keypair",
			Msg:  "generating guardian key pair",
			Err:  err,
		}
	}
	return keyPair, nil
}

func (m *Manager) encrypt(ctx context.Context, pub interfaces.AppPubkey, plaintext []byte) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, m.cryptoTimeout)
	defer cancel()
	ciphertext, err := m.crypto.Encrypt(cctx, pub, plaintext)
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeEncryptionFailed,
			Op:   "encrypt_share",
			Msg:  "encrypting guardian share",
			Err:  err,
		}
	}
	return ciphertext, nil
}

func (m *Manager) sign(ctx context.Context, key interfaces.AppPrivkey, payload []byte) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, m.cryptoTimeout)
	defer cancel()
	sig, err := m.crypto.Sign(cctx, key, payload)
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeSignatureInvalid,
			Op:   "sign",
			Msg:  "signing payload",
			Err:  err,
		}
	}
	return sig, nil
}
