package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/wallet"
)

const (
	// DefaultOperationTimeout bounds each protocol operation when the caller
	// supplies a context without a deadline.
	DefaultOperationTimeout = 30 * time.Second

	probeBackoff = 250 * time.Millisecond
)

// Config carries the collaborators and bounds of a protocol client. Zero
// values select the in-memory store, the default crypto provider and
// DefaultOperationTimeout.
type Config struct {
	// Store holds wallet state. Defaults to wallet.NewMemoryStore().
	Store wallet.Store

	// Crypto performs all cryptographic operations. Defaults to
	// cryptoutils.NewProvider().
	Crypto interfaces.CryptoProvider

	// StorageFactory builds sync backends from SyncBackends URIs. Required
	// when SyncBackends is non-empty.
	StorageFactory interfaces.StorageBackendFactory

	// SyncBackends lists replication target URIs. Each backend is built and
	// probed for availability during New.
	SyncBackends []string

	// ServiceDomain optionally names a DNS SRV domain for the recovery
	// service. When set, New resolves it and fails if no endpoint answers.
	ServiceDomain string

	// Resolver resolves ServiceDomain. Defaults to NewResolver("").
	Resolver EndpointResolver

	// OperationTimeout bounds each operation. Zero selects the default,
	// negative values are rejected.
	OperationTimeout time.Duration

	// ProbeRetries is the number of additional availability probes per sync
	// backend before New gives up. Negative values are rejected.
	ProbeRetries int

	Log *slog.Logger
}

// Client is the protocol façade: one public operation per wallet manager,
// audit log and crypto provider capability. Operations return either a typed
// result or one of the typed protocol errors; failures from below are wrapped
// with a stable code and never carry secret material.
type Client struct {
	manager   *wallet.Manager
	crypto    interfaces.CryptoProvider
	backends  []interfaces.StorageBackend
	endpoints []string
	timeout   time.Duration
	log       *slog.Logger
}

// New validates the configuration and builds the client. Validation covers
// the timeout and retry bounds, reachability of every sync backend and,
// when a service domain is configured, SRV resolution of that domain.
func New(cfg Config) (*Client, error) {
	if cfg.OperationTimeout < 0 {
		return nil, configErr("operation timeout must be positive", nil)
	}
	if cfg.ProbeRetries < 0 {
		return nil, configErr("probe retries must not be negative", nil)
	}

	timeout := cfg.OperationTimeout
	if timeout == 0 {
		timeout = DefaultOperationTimeout
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	store := cfg.Store
	if store == nil {
		store = wallet.NewMemoryStore()
	}
	crypto := cfg.Crypto
	if crypto == nil {
		crypto = cryptoutils.NewProvider()
	}

	manager, err := wallet.NewManager(wallet.Config{
		Store:         store,
		Crypto:        crypto,
		Log:           log,
		CryptoTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		manager: manager,
		crypto:  crypto,
		timeout: timeout,
		log:     log,
	}

	if len(cfg.SyncBackends) > 0 && cfg.StorageFactory == nil {
		return nil, configErr("sync backends configured without a storage factory", nil)
	}
	for _, uri := range cfg.SyncBackends {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, configErr(fmt.Sprintf("invalid sync backend %q", uri), err)
		}
		backend, err := cfg.StorageFactory.StorageBackendFor(location)
		if err != nil {
			return nil, configErr(fmt.Sprintf("building sync backend %q", uri), err)
		}
		if err := probeBackend(backend, cfg.ProbeRetries, timeout); err != nil {
			return nil, err
		}
		c.backends = append(c.backends, backend)
	}

	if cfg.ServiceDomain != "" {
		resolver := cfg.Resolver
		if resolver == nil {
			resolver = NewResolver("")
		}
		endpoints, err := resolver.LookupEndpoints(cfg.ServiceDomain)
		if err != nil {
			return nil, configErr(fmt.Sprintf("resolving service domain %s", cfg.ServiceDomain), err)
		}
		c.endpoints = endpoints
		log.Info("Resolved recovery service domain",
			slog.String("domain", cfg.ServiceDomain),
			slog.Int("endpoints", len(endpoints)))
	}

	return c, nil
}

func configErr(msg string, err error) error {
	return &interfaces.ProtocolError{Code: interfaces.CodeConfigInvalid, Msg: msg, Err: err}
}

func probeBackend(backend interfaces.StorageBackend, retries int, timeout time.Duration) error {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		ok := backend.Available(ctx)
		cancel()
		if ok {
			return nil
		}
		if attempt >= retries {
			return &interfaces.ProtocolError{
				Code: interfaces.CodeStorageUnavailable,
				Msg:  fmt.Sprintf("storage backend %s is unreachable", backend.Name()),
			}
		}
		time.Sleep(probeBackoff)
	}
}

// Endpoints returns the service endpoints resolved from the configured
// service domain, if any.
func (c *Client) Endpoints() []string { return c.endpoints }

// opContext applies the configured operation timeout unless the caller's
// context already carries a deadline.
func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// wrapOpErr passes typed protocol errors through untouched and folds plain
// failures into a ProtocolError with a stable code.
func wrapOpErr(op, walletID string, err error) error {
	if interfaces.ErrorCode(err) != "" {
		return err
	}
	return &interfaces.ProtocolError{
		Code:     interfaces.CodeOperationFailed,
		WalletID: walletID,
		Msg:      op + " failed",
		Err:      err,
	}
}

// CreateWallet splits the secret, enrolls the guardians and returns the
// manifest together with the per-guardian key pairs and encrypted shares.
func (c *Client) CreateWallet(ctx context.Context, req wallet.CreateWalletRequest) (*wallet.CreateWalletResult, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	result, err := c.manager.CreateWallet(ctx, req)
	if err != nil {
		return nil, wrapOpErr("create wallet", "", err)
	}
	return result, nil
}

// LoadWallet returns the wallet manifest.
func (c *Client) LoadWallet(ctx context.Context, walletID string) (*wallet.Manifest, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	manifest, err := c.manager.LoadWallet(ctx, walletID)
	if err != nil {
		return nil, wrapOpErr("load wallet", walletID, err)
	}
	return manifest, nil
}

// InitiateRecovery opens a recovery attempt on behalf of a guardian.
func (c *Client) InitiateRecovery(ctx context.Context, req wallet.InitiateRecoveryRequest) (*interfaces.RecoveryAttempt, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	attempt, err := c.manager.InitiateRecovery(ctx, req)
	if err != nil {
		return nil, wrapOpErr("initiate recovery", req.WalletID, err)
	}
	return attempt, nil
}

// SignRecovery records a guardian's approval of a recovery attempt.
func (c *Client) SignRecovery(ctx context.Context, req wallet.SignRecoveryRequest) (*interfaces.GuardianSignature, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	signature, err := c.manager.SignRecovery(ctx, req)
	if err != nil {
		return nil, wrapOpErr("sign recovery", req.WalletID, err)
	}
	return signature, nil
}

// ReconstructSeed combines decrypted shares of a completed recovery into the
// master seed. The caller owns the returned seed and must wipe it.
func (c *Client) ReconstructSeed(ctx context.Context, req wallet.ReconstructSeedRequest) ([]byte, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	seed, err := c.manager.ReconstructSeed(ctx, req)
	if err != nil {
		return nil, wrapOpErr("reconstruct seed", req.WalletID, err)
	}
	return seed, nil
}

// GenerateGuardianKeyPair returns a fresh guardian key pair.
func (c *Client) GenerateGuardianKeyPair(ctx context.Context) (interfaces.KeyPair, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	pair, err := c.crypto.GenerateKeyPair(ctx)
	if err != nil {
		return interfaces.KeyPair{}, wrapOpErr("generate guardian key pair", "", err)
	}
	return pair, nil
}

// EncryptForGuardian seals plaintext to a guardian's public key.
func (c *Client) EncryptForGuardian(ctx context.Context, publicKey interfaces.AppPubkey, plaintext []byte) ([]byte, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	ciphertext, err := c.crypto.Encrypt(ctx, publicKey, plaintext)
	if err != nil {
		return nil, wrapOpErr("encrypt for guardian", "", err)
	}
	return ciphertext, nil
}

// DecryptForGuardian opens a ciphertext with a guardian's private key.
func (c *Client) DecryptForGuardian(ctx context.Context, privateKey interfaces.AppPrivkey, ciphertext []byte) ([]byte, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	plaintext, err := c.crypto.Decrypt(ctx, privateKey, ciphertext)
	if err != nil {
		return nil, wrapOpErr("decrypt for guardian", "", err)
	}
	return plaintext, nil
}

// SignData signs a payload with a guardian or owner private key.
func (c *Client) SignData(ctx context.Context, privateKey interfaces.AppPrivkey, payload []byte) ([]byte, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	signature, err := c.crypto.Sign(ctx, privateKey, payload)
	if err != nil {
		return nil, wrapOpErr("sign data", "", err)
	}
	return signature, nil
}

// VerifySignature checks a signature against a public key. A nil return
// means the signature is authentic.
func (c *Client) VerifySignature(ctx context.Context, publicKey interfaces.AppPubkey, payload, signature []byte) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.crypto.Verify(ctx, publicKey, payload, signature); err != nil {
		return wrapOpErr("verify signature", "", err)
	}
	return nil
}

// AuditLogChain returns a snapshot of the wallet's audit chain.
func (c *Client) AuditLogChain(ctx context.Context, walletID string) (*interfaces.AuditLogChain, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	chain, err := c.manager.GetAuditChain(ctx, walletID)
	if err != nil {
		return nil, wrapOpErr("get audit log chain", walletID, err)
	}
	return chain, nil
}

// VerifyAuditLogChain re-validates the hash links, Merkle root and entry
// signatures of the wallet's audit chain.
func (c *Client) VerifyAuditLogChain(ctx context.Context, walletID string) (interfaces.ChainVerification, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	verification, err := c.manager.VerifyAuditChain(ctx, walletID)
	if err != nil {
		return interfaces.ChainVerification{}, wrapOpErr("verify audit log chain", walletID, err)
	}
	return verification, nil
}

// SyncWallet replicates the wallet's manifest, shares, attempts and audit
// chain to every configured sync backend and returns one report per backend.
func (c *Client) SyncWallet(ctx context.Context, walletID string, ownerCredential []byte) ([]*wallet.SyncReport, error) {
	if len(c.backends) == 0 {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeConfigInvalid,
			WalletID: walletID,
			Msg:      "no sync backends configured",
		}
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	reports := make([]*wallet.SyncReport, 0, len(c.backends))
	for _, backend := range c.backends {
		report, err := c.manager.SyncWallet(ctx, walletID, backend, ownerCredential, nil)
		if err != nil {
			return reports, wrapOpErr("sync wallet", walletID, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Status summarizes the wallet: guardian counts, open recovery, audit chain
// size and Merkle root.
func (c *Client) Status(ctx context.Context, walletID string) (*wallet.Status, error) {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	status, err := c.manager.GetStatus(ctx, walletID)
	if err != nil {
		return nil, wrapOpErr("get status", walletID, err)
	}
	return status, nil
}
