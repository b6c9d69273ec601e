package recoveryhandler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vaultmesh/recovery-backend/api"
	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/metrics"
	"github.com/vaultmesh/recovery-backend/secretshare"
	"github.com/vaultmesh/recovery-backend/wallet"
)

// nonceCacheSize bounds the replay cache. Evicting the oldest nonces is
// acceptable because clients use fresh random nonces per request.
const nonceCacheSize = 16384

// Handler serves the wallet lifecycle and recovery ceremony endpoints.
//
// Read endpoints are open. Guardian endpoints authenticate through signed
// request headers verified against the guardian keys in the wallet manifest.
// Owner endpoints carry the owner credential in the body; the manager rejects
// credentials that do not match the owner key on record.
type Handler struct {
	manager *wallet.Manager
	factory interfaces.StorageBackendFactory
	log     *slog.Logger

	mu         sync.Mutex
	ceremonies map[string]*ceremony

	seenNonces *lru.Cache[string, struct{}]
}

// ceremony is the in-memory reconstruction state for one completed recovery
// attempt. The collector holds all share material; nothing is persisted.
type ceremony struct {
	walletID  string
	threshold int
	collector *secretshare.Collector
}

// Config wires the handler's collaborators. StorageFactory is optional; sync
// requests fail with 503 without it.
type Config struct {
	Manager        *wallet.Manager
	StorageFactory interfaces.StorageBackendFactory
	Log            *slog.Logger
}

// New validates the configuration and returns a handler with no open
// ceremonies.
func New(config Config) (*Handler, error) {
	if config.Manager == nil {
		return nil, errors.New("a wallet manager is required")
	}
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	seenNonces, err := lru.New[string, struct{}](nonceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating nonce cache: %w", err)
	}
	return &Handler{
		manager:    config.Manager,
		factory:    config.StorageFactory,
		log:        log,
		ceremonies: make(map[string]*ceremony),
		seenNonces: seenNonces,
	}, nil
}

// RegisterRoutes sets up all wallet and recovery endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/wallets", h.handleCreateWallet)
	r.Get("/api/wallets/{wallet_id}", h.handleStatus)
	r.Get("/api/wallets/{wallet_id}/guardians", h.handleListGuardians)
	r.Post("/api/wallets/{wallet_id}/guardians/{guardian_id}/revoke", h.handleRevokeGuardian)
	r.Get("/api/wallets/{wallet_id}/guardians/{guardian_id}/share", h.handleFetchShare)
	r.Post("/api/wallets/{wallet_id}/proof-of-life", h.handleProofOfLife)
	r.Post("/api/wallets/{wallet_id}/sync", h.handleSyncWallet)

	r.Get("/api/wallets/{wallet_id}/audit", h.handleAuditChain)
	r.Get("/api/wallets/{wallet_id}/audit/verify", h.handleVerifyAuditChain)
	r.Get("/api/wallets/{wallet_id}/audit/entries/{entry_id}/proof", h.handleAuditProof)

	r.Post("/api/wallets/{wallet_id}/recoveries", h.handleInitiateRecovery)
	r.Get("/api/wallets/{wallet_id}/recoveries", h.handleListRecoveries)
	r.Get("/api/wallets/{wallet_id}/recoveries/{recovery_id}", h.handleGetRecovery)
	r.Post("/api/wallets/{wallet_id}/recoveries/{recovery_id}/signatures", h.handleSignRecovery)
	r.Post("/api/wallets/{wallet_id}/recoveries/{recovery_id}/shares", h.handleSubmitShare)
	r.Get("/api/wallets/{wallet_id}/recoveries/{recovery_id}/shares", h.handleCeremonyStatus)
	r.Get("/api/wallets/{wallet_id}/recoveries/{recovery_id}/seed", h.handleFetchSeed)
	r.Delete("/api/wallets/{wallet_id}/recoveries/{recovery_id}/shares", h.handleDestroyCeremony)
}

// verifyGuardian authenticates a request against the wallet's guardian keys.
// The signature must cover SHA-256(path || nonce || body) and each nonce is
// accepted once per guardian. Revoked guardians still authenticate; the
// manager gates the operations revocation excludes.
func (h *Handler) verifyGuardian(r *http.Request, walletID string, body []byte) (*interfaces.Guardian, error) {
	guardianID := r.Header.Get(api.GuardianIDHeader)
	nonce := r.Header.Get(api.GuardianNonceHeader)
	signatureB64 := r.Header.Get(api.GuardianSignatureHeader)
	if guardianID == "" || nonce == "" || signatureB64 == "" {
		return nil, errors.New("missing guardian authentication headers")
	}
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return nil, fmt.Errorf("malformed signature header: %w", err)
	}

	manifest, err := h.manager.LoadWallet(r.Context(), walletID)
	if err != nil {
		return nil, err
	}
	guardian, ok := manifest.GuardianByID(guardianID)
	if !ok {
		return nil, fmt.Errorf("guardian %s is not registered on wallet %s", guardianID, walletID)
	}

	message := make([]byte, 0, len(r.URL.Path)+len(nonce)+len(body))
	message = append(message, r.URL.Path...)
	message = append(message, nonce...)
	message = append(message, body...)
	if err := cryptoutils.VerifyPayload(guardian.PublicKey, message, signature); err != nil {
		return nil, fmt.Errorf("request signature verification failed: %w", err)
	}

	if replayed, _ := h.seenNonces.ContainsOrAdd(guardianID+":"+nonce, struct{}{}); replayed {
		return nil, fmt.Errorf("nonce already used by guardian %s", guardianID)
	}
	return guardian, nil
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	metrics.AuthFailures.Inc()
	h.log.Warn("guardian authentication failed", "path", r.URL.Path, "err", err)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

func (h *Handler) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req api.CreateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	secret, err := base64.StdEncoding.DecodeString(req.Secret)
	if err != nil {
		http.Error(w, "Secret must be base64 encoded", http.StatusBadRequest)
		return
	}
	defer secretshare.Wipe(secret)

	recoveryTimeout, err := parseOptionalDuration(req.RecoveryTimeout)
	if err != nil {
		http.Error(w, "Invalid recovery_timeout", http.StatusBadRequest)
		return
	}
	proofOfLifeInterval, err := parseOptionalDuration(req.ProofOfLifeInterval)
	if err != nil {
		http.Error(w, "Invalid proof_of_life_interval", http.StatusBadRequest)
		return
	}

	result, err := h.manager.CreateWallet(r.Context(), wallet.CreateWalletRequest{
		Name:                   req.Name,
		Secret:                 secret,
		Guardians:              req.Guardians,
		Threshold:              req.Threshold,
		OwnerCredential:        []byte(req.OwnerCredential),
		RecoveryTimeout:        recoveryTimeout,
		ProofOfLifeInterval:    proofOfLifeInterval,
		AllowedRecoveryReasons: req.AllowedRecoveryReasons,
		Context:                clientContext(r),
	})
	if err != nil {
		h.writeError(w, "creating wallet", err)
		return
	}
	metrics.WalletsCreated.Inc()

	credentials := make([]api.GuardianCredential, 0, len(result.Manifest.Guardians))
	for _, g := range result.Manifest.Guardians {
		keyPair := result.GuardianKeys[g.ID]
		credentials = append(credentials, api.GuardianCredential{
			GuardianID: g.ID,
			Name:       g.Name,
			Email:      g.Email,
			ShareIndex: g.ShareIndex,
			KeyID:      keyPair.KeyID,
			PublicKey:  string(keyPair.PublicKey),
			PrivateKey: string(keyPair.PrivateKey),
		})
	}

	h.writeJSON(w, http.StatusCreated, &api.CreateWalletResponse{
		WalletID:            result.Manifest.WalletID(),
		OwnerID:             result.Manifest.OwnerID(),
		Manifest:            result.Manifest,
		GuardianCredentials: credentials,
		AuditEntries:        result.AuditEntries,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	status, err := h.manager.GetStatus(r.Context(), walletID)
	if err != nil {
		h.writeError(w, "fetching wallet status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleListGuardians(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	guardians, err := h.manager.ListGuardians(r.Context(), walletID)
	if err != nil {
		h.writeError(w, "listing guardians", err)
		return
	}
	h.writeJSON(w, http.StatusOK, guardians)
}

func (h *Handler) handleRevokeGuardian(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	guardianID := chi.URLParam(r, "guardian_id")

	var req api.RevokeGuardianRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.manager.RevokeGuardian(r.Context(), wallet.RevokeGuardianRequest{
		WalletID:        walletID,
		GuardianID:      guardianID,
		Reason:          req.Reason,
		OwnerCredential: []byte(req.OwnerCredential),
		Context:         clientContext(r),
	})
	if err != nil {
		h.writeError(w, "revoking guardian", err)
		return
	}
	metrics.GuardiansRevoked.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// handleFetchShare returns the authenticated guardian's own encrypted share.
func (h *Handler) handleFetchShare(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")

	guardian, err := h.verifyGuardian(r, walletID, nil)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}
	if guardian.ID != chi.URLParam(r, "guardian_id") {
		http.Error(w, "Guardians may only fetch their own share", http.StatusForbidden)
		return
	}

	shares, err := h.manager.GetGuardianShares(r.Context(), walletID)
	if err != nil {
		h.writeError(w, "fetching guardian shares", err)
		return
	}
	for _, share := range shares {
		if share.GuardianID != guardian.ID {
			continue
		}
		h.writeJSON(w, http.StatusOK, &api.EncryptedShareResponse{
			GuardianID:     share.GuardianID,
			ShareIndex:     share.ShareIndex,
			EncryptedShare: base64.StdEncoding.EncodeToString(share.EncryptedShare),
			CiphertextHash: share.CiphertextHash,
			Algorithm:      share.Algorithm,
		})
		return
	}
	http.Error(w, "No share stored for this guardian", http.StatusNotFound)
}

func (h *Handler) handleProofOfLife(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")

	var req api.ProofOfLifeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := h.manager.RecordProofOfLife(r.Context(), walletID, []byte(req.OwnerCredential), req.Method, clientContext(r))
	if err != nil {
		h.writeError(w, "recording proof of life", err)
		return
	}
	metrics.ProofsOfLife.Inc()
	h.writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleSyncWallet(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	if h.factory == nil {
		http.Error(w, "Sync is not configured on this server", http.StatusServiceUnavailable)
		return
	}

	var req api.SyncWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	location, err := interfaces.NewStorageBackendLocation(req.Backend)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid backend URI: %v", err), http.StatusBadRequest)
		return
	}
	backend, err := h.factory.StorageBackendFor(location)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid backend URI: %v", err), http.StatusBadRequest)
		return
	}

	report, err := h.manager.SyncWallet(r.Context(), walletID, backend, []byte(req.OwnerCredential), clientContext(r))
	if err != nil {
		if errors.Is(err, interfaces.ErrBackendUnavailable) {
			h.log.Warn("sync backend unavailable", "wallet_id", walletID, "backend", backend.Name())
			http.Error(w, "Storage backend unavailable", http.StatusServiceUnavailable)
			return
		}
		h.writeError(w, "syncing wallet", err)
		return
	}
	metrics.WalletSyncs.WithLabelValues(report.Backend).Inc()
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleAuditChain(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	chain, err := h.manager.GetAuditChain(r.Context(), walletID)
	if err != nil {
		h.writeError(w, "exporting audit chain", err)
		return
	}
	h.writeJSON(w, http.StatusOK, chain)
}

func (h *Handler) handleVerifyAuditChain(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	verification, err := h.manager.VerifyAuditChain(r.Context(), walletID)
	if err != nil {
		h.writeError(w, "verifying audit chain", err)
		return
	}
	h.writeJSON(w, http.StatusOK, verification)
}

func (h *Handler) handleAuditProof(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	entryID := chi.URLParam(r, "entry_id")
	proof, err := h.manager.AuditProof(r.Context(), walletID, entryID)
	if err != nil {
		h.writeError(w, "generating audit proof", err)
		return
	}
	h.writeJSON(w, http.StatusOK, proof)
}

// readBody consumes the request body for signature verification and decoding.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return body, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// clientContext captures the caller's network context for audit entries.
func clientContext(r *http.Request) *interfaces.ClientContext {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return &interfaces.ClientContext{
		IPAddress: host,
		UserAgent: r.UserAgent(),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encoding response", "err", err)
	}
}

// writeError maps protocol error codes onto HTTP statuses. Validation and
// lookup failures are the caller's problem; everything else is logged as a
// server error.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(op, "err", err)
	} else {
		h.log.Debug(op, "err", err)
	}
	http.Error(w, err.Error(), status)
}

func httpStatus(err error) int {
	switch interfaces.ErrorCode(err) {
	case interfaces.CodeInvalidInput, interfaces.CodeShareCorrupted:
		return http.StatusBadRequest
	case interfaces.CodeWalletNotFound, interfaces.CodeGuardianNotFound, interfaces.CodeRecoveryNotFound:
		return http.StatusNotFound
	case interfaces.CodeGuardianRevoked, interfaces.CodeSignatureInvalid:
		return http.StatusForbidden
	case interfaces.CodeDuplicateSignature, interfaces.CodeRecoveryNotActive, interfaces.CodeThresholdNotMet, interfaces.CodeChainBroken:
		return http.StatusConflict
	case interfaces.CodeRecoveryExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
