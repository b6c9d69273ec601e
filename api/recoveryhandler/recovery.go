package recoveryhandler

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vaultmesh/recovery-backend/api"
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/metrics"
	"github.com/vaultmesh/recovery-backend/secretshare"
	"github.com/vaultmesh/recovery-backend/wallet"
)

func (h *Handler) handleInitiateRecovery(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	guardian, err := h.verifyGuardian(r, walletID, body)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}

	var req api.InitiateRecoveryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	attempt, err := h.manager.InitiateRecovery(r.Context(), wallet.InitiateRecoveryRequest{
		WalletID:           walletID,
		GuardianID:         guardian.ID,
		Reason:             req.Reason,
		NewOwnerContact:    req.NewOwnerContact,
		GuardianCredential: []byte(req.GuardianCredential),
		Context:            clientContext(r),
	})
	if err != nil {
		h.writeError(w, "initiating recovery", err)
		return
	}
	metrics.RecoveriesInitiated.Inc()
	h.writeJSON(w, http.StatusCreated, attempt)
}

func (h *Handler) handleListRecoveries(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	attempts, err := h.manager.ListRecoveryAttempts(r.Context(), walletID)
	if err != nil {
		h.writeError(w, "listing recovery attempts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleGetRecovery(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	recoveryID := chi.URLParam(r, "recovery_id")
	attempt, err := h.manager.GetRecoveryAttempt(r.Context(), walletID, recoveryID)
	if err != nil {
		h.writeError(w, "fetching recovery attempt", err)
		return
	}
	h.writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) handleSignRecovery(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	recoveryID := chi.URLParam(r, "recovery_id")

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	guardian, err := h.verifyGuardian(r, walletID, body)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}

	var req api.SignRecoveryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	signature, err := h.manager.SignRecovery(r.Context(), wallet.SignRecoveryRequest{
		WalletID:           walletID,
		RecoveryID:         recoveryID,
		GuardianID:         guardian.ID,
		GuardianCredential: []byte(req.GuardianCredential),
		VerificationMethod: req.VerificationMethod,
		ProofNote:          req.ProofNote,
		Context:            clientContext(r),
	})
	if err != nil {
		if interfaces.ErrorCode(err) == interfaces.CodeRecoveryExpired {
			metrics.RecoveriesExpired.Inc()
		}
		h.writeError(w, "signing recovery", err)
		return
	}
	metrics.RecoverySignatures.Inc()

	attempt, err := h.manager.GetRecoveryAttempt(r.Context(), walletID, recoveryID)
	if err != nil {
		h.writeError(w, "fetching recovery attempt", err)
		return
	}
	if attempt.Status == interfaces.RecoveryCompleted && len(attempt.Signatures) > 0 &&
		attempt.Signatures[len(attempt.Signatures)-1].GuardianID == guardian.ID {
		metrics.RecoveriesCompleted.Inc()
	}

	h.writeJSON(w, http.StatusCreated, &api.SignRecoveryResponse{
		Signature: *signature,
		Attempt:   attempt,
	})
}

// ceremonyFor returns the reconstruction ceremony for a completed recovery
// attempt, opening it on first use. The collector is seeded with the
// manifest's threshold, seed commitment and the full guardian key set, so
// shares verify against the same keys the audit chain uses.
func (h *Handler) ceremonyFor(r *http.Request, walletID, recoveryID string) (*ceremony, error) {
	key := walletID + "/" + recoveryID

	h.mu.Lock()
	if c, ok := h.ceremonies[key]; ok {
		h.mu.Unlock()
		return c, nil
	}
	h.mu.Unlock()

	attempt, err := h.manager.GetRecoveryAttempt(r.Context(), walletID, recoveryID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != interfaces.RecoveryCompleted {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeRecoveryNotActive,
			WalletID: walletID,
			Msg:      fmt.Sprintf("recovery attempt %s is %s, reconstruction requires a completed attempt", recoveryID, attempt.Status),
		}
	}

	manifest, err := h.manager.LoadWallet(r.Context(), walletID)
	if err != nil {
		return nil, err
	}
	commitment, err := manifest.Commitment()
	if err != nil {
		return nil, err
	}
	pubKeys := make([][]byte, 0, len(manifest.Guardians))
	for _, g := range manifest.Guardians {
		pubKeys = append(pubKeys, g.PublicKey)
	}

	collector, err := secretshare.NewCollector(secretshare.CollectorConfig{
		Threshold:       manifest.Policy.Threshold,
		Commitment:      commitment,
		GuardianPubKeys: pubKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("opening reconstruction ceremony: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.ceremonies[key]; ok {
		return c, nil
	}
	c := &ceremony{
		walletID:  walletID,
		threshold: manifest.Policy.Threshold,
		collector: collector,
	}
	h.ceremonies[key] = c

	h.log.Info("reconstruction ceremony opened",
		"wallet_id", walletID,
		"recovery_id", recoveryID,
		"threshold", c.threshold)
	return c, nil
}

func (h *Handler) handleSubmitShare(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	recoveryID := chi.URLParam(r, "recovery_id")

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	guardian, err := h.verifyGuardian(r, walletID, body)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}

	var req api.SubmitShareRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ShareIndex != guardian.ShareIndex {
		http.Error(w, "Guardians may only submit their own share", http.StatusForbidden)
		return
	}
	share, err := base64.StdEncoding.DecodeString(req.Share)
	if err != nil {
		http.Error(w, "Share must be base64 encoded", http.StatusBadRequest)
		return
	}
	shareSignature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		http.Error(w, "Signature must be base64 encoded", http.StatusBadRequest)
		return
	}

	c, err := h.ceremonyFor(r, walletID, recoveryID)
	if err != nil {
		h.writeError(w, "opening ceremony", err)
		return
	}

	if err := c.collector.SubmitShare(req.ShareIndex, share, shareSignature, guardian.PublicKey); err != nil {
		h.log.Warn("share submission rejected",
			"wallet_id", walletID,
			"recovery_id", recoveryID,
			"guardian_id", guardian.ID,
			"err", err)
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	metrics.SharesSubmitted.Inc()

	complete := c.collector.Complete()
	if complete {
		metrics.SeedsReconstructed.Inc()
		h.log.Warn("master seed reconstructed in ceremony",
			"wallet_id", walletID,
			"recovery_id", recoveryID,
			"final_guardian", guardian.ID)
	} else {
		h.log.Info("ceremony share accepted",
			"wallet_id", walletID,
			"recovery_id", recoveryID,
			"guardian_id", guardian.ID,
			"received", c.collector.ShareCount(),
			"required", c.threshold)
	}

	h.writeJSON(w, http.StatusOK, &api.CeremonyStatusResponse{
		RecoveryID:     recoveryID,
		SharesReceived: c.collector.ShareCount(),
		SharesRequired: c.threshold,
		Complete:       complete,
	})
}

func (h *Handler) handleCeremonyStatus(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	recoveryID := chi.URLParam(r, "recovery_id")

	h.mu.Lock()
	c, ok := h.ceremonies[walletID+"/"+recoveryID]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "No reconstruction ceremony open for this recovery", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, &api.CeremonyStatusResponse{
		RecoveryID:     recoveryID,
		SharesReceived: c.collector.ShareCount(),
		SharesRequired: c.threshold,
		Complete:       c.collector.Complete(),
	})
}

func (h *Handler) handleFetchSeed(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	recoveryID := chi.URLParam(r, "recovery_id")

	guardian, err := h.verifyGuardian(r, walletID, nil)
	if err != nil {
		h.unauthorized(w, r, err)
		return
	}

	h.mu.Lock()
	c, ok := h.ceremonies[walletID+"/"+recoveryID]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "No reconstruction ceremony open for this recovery", http.StatusNotFound)
		return
	}

	seed, err := c.collector.Secret()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer secretshare.Wipe(seed)

	h.log.Warn("master seed served",
		"wallet_id", walletID,
		"recovery_id", recoveryID,
		"guardian_id", guardian.ID)

	h.writeJSON(w, http.StatusOK, &api.SeedResponse{
		RecoveryID: recoveryID,
		Seed:       base64.StdEncoding.EncodeToString(seed),
	})
}

// handleDestroyCeremony wipes the ceremony's seed and share material. It is
// idempotent so callers can destroy unconditionally after delivering the seed.
func (h *Handler) handleDestroyCeremony(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "wallet_id")
	recoveryID := chi.URLParam(r, "recovery_id")

	if _, err := h.verifyGuardian(r, walletID, nil); err != nil {
		h.unauthorized(w, r, err)
		return
	}

	key := walletID + "/" + recoveryID
	h.mu.Lock()
	c, ok := h.ceremonies[key]
	if ok {
		delete(h.ceremonies, key)
	}
	h.mu.Unlock()

	if ok {
		c.collector.Destroy()
		h.log.Info("reconstruction ceremony destroyed",
			"wallet_id", walletID,
			"recovery_id", recoveryID)
	}
	w.WriteHeader(http.StatusNoContent)
}
