package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaultmesh/recovery-backend/auditlog"
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/secretshare"
)

// InitiateRecoveryRequest opens a recovery attempt on behalf of a guardian.
// GuardianCredential is optional: initiation without it is accepted, but the
// attempt then starts without a signed recovery_initiated audit entry.
type InitiateRecoveryRequest struct {
	WalletID           string
	GuardianID         string
	Reason             string
	NewOwnerContact    string
	GuardianCredential []byte
	Context            *interfaces.ClientContext
}

// InitiateRecovery validates the initiating guardian and reason, opens a
// pending attempt with the policy's signature threshold and expiry window,
// and persists it.
func (m *Manager) InitiateRecovery(ctx context.Context, req InitiateRecoveryRequest) (*interfaces.RecoveryAttempt, error) {
	state, err := m.getState(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	if _, err := state.registry.RequireActive(req.GuardianID); err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	if !state.manifest.Policy.ReasonAllowed(reason) {
		return nil, interfaces.NewValidationError("reason",
			fmt.Sprintf("recovery reason %q is not allowed by the wallet policy", req.Reason))
	}

	var signingKey interfaces.AppPrivkey
	if len(req.GuardianCredential) > 0 {
		signingKey, err = m.resolveActorKey(state, req.GuardianID, req.GuardianCredential)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	attempt := &interfaces.RecoveryAttempt{
		ID:                 uuid.New().String(),
		WalletID:           req.WalletID,
		InitiatorID:        req.GuardianID,
		Reason:             reason,
		NewOwnerContact:    req.NewOwnerContact,
		Status:             interfaces.RecoveryPending,
		RequiredSignatures: state.manifest.Policy.Threshold,
		Signatures:         []interfaces.GuardianSignature{},
		CreatedAt:          now,
		ExpiresAt:          now.Add(state.manifest.Policy.RecoveryTimeout),
	}

	if signingKey != nil {
		_, err = state.chain.Append(ctx, interfaces.AuditRecoveryInitiated, req.GuardianID, interfaces.RecoveryInitiatedEvent{
			RecoveryID:         attempt.ID,
			InitiatorID:        req.GuardianID,
			Reason:             reason,
			RequiredSignatures: attempt.RequiredSignatures,
			ExpiresAt:          attempt.ExpiresAt,
		}, signingKey, req.Context)
		if err != nil {
			return nil, err
		}
	}

	state.attempts[attempt.ID] = attempt
	if err := m.store.SaveAttempt(ctx, req.WalletID, attempt); err != nil {
		return nil, fmt.Errorf("persisting recovery attempt: %w", err)
	}
	if signingKey != nil {
		if err := m.persistChain(ctx, state); err != nil {
			return nil, err
		}
	}

	m.log.Info("recovery initiated",
		"wallet_id", req.WalletID,
		"recovery_id", attempt.ID,
		"reason", reason,
		"audited", signingKey != nil)

	return cloneAttempt(attempt), nil
}

// SignRecoveryRequest adds one guardian's approval to an open attempt. The
// credential is mandatory here: every approval is a verifiable signature.
type SignRecoveryRequest struct {
	WalletID           string
	RecoveryID         string
	GuardianID         string
	GuardianCredential []byte
	VerificationMethod interfaces.VerificationMethod
	ProofNote          string
	Context            *interfaces.ClientContext
}

// SignRecovery verifies the guardian and credential, signs the approval
// payload, applies the status transition and appends the audit entries.
// Reaching the threshold moves the attempt to completed in the same call.
// The wallet lock serializes concurrent signers, so exactly one of them
// observes the transition past the threshold.
func (m *Manager) SignRecovery(ctx context.Context, req SignRecoveryRequest) (*interfaces.GuardianSignature, error) {
	if req.VerificationMethod == "" {
		req.VerificationMethod = interfaces.VerificationEmail
	}
	if !req.VerificationMethod.Valid() {
		return nil, interfaces.NewValidationError("verification_method",
			fmt.Sprintf("unknown verification method %q", req.VerificationMethod))
	}
	if len(req.GuardianCredential) == 0 {
		return nil, interfaces.NewValidationError("guardian_credential", "signing requires the guardian credential")
	}

	state, err := m.getState(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	attempt, ok := state.attempts[req.RecoveryID]
	if !ok {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeRecoveryNotFound,
			WalletID: req.WalletID,
			Msg:      fmt.Sprintf("recovery attempt %s not found", req.RecoveryID),
		}
	}

	if _, err := state.registry.RequireActive(req.GuardianID); err != nil {
		return nil, err
	}
	signingKey, err := m.resolveActorKey(state, req.GuardianID, req.GuardianCredential)
	if err != nil {
		return nil, err
	}

	expired, err := m.expireIfNeeded(ctx, state, attempt, req.GuardianID, signingKey, req.Context)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeRecoveryExpired,
			WalletID: req.WalletID,
			Msg:      fmt.Sprintf("recovery attempt %s expired at %s", attempt.ID, attempt.ExpiresAt.Format(time.RFC3339)),
		}
	}

	switch attempt.Status {
	case interfaces.RecoveryPending, interfaces.RecoveryCollecting:
	default:
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeRecoveryNotActive,
			WalletID: req.WalletID,
			Msg:      fmt.Sprintf("recovery attempt %s is %s and accepts no further signatures", attempt.ID, attempt.Status),
		}
	}

	if attempt.HasSigned(req.GuardianID) {
		return nil, &interfaces.GuardianError{
			Code:       interfaces.CodeDuplicateSignature,
			GuardianID: req.GuardianID,
			Msg:        "guardian already signed this recovery attempt",
		}
	}

	now := time.Now().UTC()
	payload, err := RecoverySignaturePayload(req.WalletID, req.RecoveryID, req.GuardianID, now, req.VerificationMethod)
	if err != nil {
		return nil, err
	}
	sigBytes, err := m.sign(ctx, signingKey, payload)
	if err != nil {
		return nil, err
	}

	signature := interfaces.GuardianSignature{
		GuardianID:         req.GuardianID,
		Signature:          sigBytes,
		SignedAt:           now,
		VerificationMethod: req.VerificationMethod,
		ProofNote:          req.ProofNote,
	}
	attempt.Signatures = append(attempt.Signatures, signature)
	attempt.CurrentSignatures = len(attempt.Signatures)

	reached := attempt.CurrentSignatures >= attempt.RequiredSignatures
	if reached {
		attempt.Status = interfaces.RecoveryCompleted
		attempt.CompletedAt = &now
	} else {
		attempt.Status = interfaces.RecoveryCollecting
	}

	_, err = state.chain.Append(ctx, interfaces.AuditRecoverySigned, req.GuardianID, interfaces.RecoverySignedEvent{
		RecoveryID:         attempt.ID,
		GuardianID:         req.GuardianID,
		VerificationMethod: req.VerificationMethod,
		SignatureCount:     attempt.CurrentSignatures,
		ThresholdReached:   reached,
	}, signingKey, req.Context)
	if err != nil {
		return nil, err
	}
	if reached {
		_, err = state.chain.Append(ctx, interfaces.AuditRecoveryCompleted, req.GuardianID, interfaces.RecoveryCompletedEvent{
			RecoveryID:     attempt.ID,
			SignatureCount: attempt.CurrentSignatures,
		}, signingKey, req.Context)
		if err != nil {
			return nil, err
		}
	}

	if err := m.store.SaveAttempt(ctx, req.WalletID, attempt); err != nil {
		return nil, fmt.Errorf("persisting recovery attempt: %w", err)
	}
	if err := m.persistChain(ctx, state); err != nil {
		return nil, err
	}

	m.log.Info("recovery signed",
		"wallet_id", req.WalletID,
		"recovery_id", attempt.ID,
		"signatures", attempt.CurrentSignatures,
		"required", attempt.RequiredSignatures,
		"completed", reached)

	sigCopy := signature
	sigCopy.Signature = append([]byte(nil), signature.Signature...)
	return &sigCopy, nil
}

// ReconstructSeedRequest reassembles the master seed from decrypted shares.
// RecoveryID is optional; when set, the referenced attempt must have reached
// its signature threshold. ActorID and ActorCredential are optional and, when
// supplied, produce a signed seed_reconstructed audit entry.
type ReconstructSeedRequest struct {
	WalletID        string
	RecoveryID      string
	Shares          []secretshare.Share
	ActorID         string
	ActorCredential []byte
	Context         *interfaces.ClientContext
}

// ReconstructSeed combines the submitted shares and checks the result against
// the commitment recorded at wallet creation. Too few shares, an unknown
// share index or a commitment mismatch all fail without returning any seed
// material. The caller owns the returned seed and is responsible for wiping it.
func (m *Manager) ReconstructSeed(ctx context.Context, req ReconstructSeedRequest) ([]byte, error) {
	state, err := m.getState(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	threshold := state.manifest.Policy.Threshold
	if len(req.Shares) < threshold {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeThresholdNotMet,
			WalletID: req.WalletID,
			Msg:      fmt.Sprintf("have %d shares, need %d", len(req.Shares), threshold),
		}
	}
	for _, share := range req.Shares {
		if _, ok := state.manifest.GuardianByIndex(share.Index); !ok {
			return nil, &interfaces.GuardianError{
				Code: interfaces.CodeGuardianNotFound,
				Msg:  fmt.Sprintf("share index %d does not belong to any guardian of this wallet", share.Index),
			}
		}
	}

	if req.RecoveryID != "" {
		attempt, ok := state.attempts[req.RecoveryID]
		if !ok {
			return nil, &interfaces.ProtocolError{
				Code:     interfaces.CodeRecoveryNotFound,
				WalletID: req.WalletID,
				Msg:      fmt.Sprintf("recovery attempt %s not found", req.RecoveryID),
			}
		}
		if attempt.Status != interfaces.RecoveryCompleted {
			return nil, &interfaces.ProtocolError{
				Code:     interfaces.CodeRecoveryNotActive,
				WalletID: req.WalletID,
				Msg:      fmt.Sprintf("recovery attempt %s is %s, not completed", req.RecoveryID, attempt.Status),
			}
		}
	}

	var signingKey interfaces.AppPrivkey
	if len(req.ActorCredential) > 0 {
		signingKey, err = m.resolveActorKey(state, req.ActorID, req.ActorCredential)
		if err != nil {
			return nil, err
		}
	}

	commitment, err := state.manifest.Commitment()
	if err != nil {
		return nil, err
	}
	seed, err := secretshare.Reconstruct(req.Shares, threshold, commitment)
	if err != nil {
		m.log.Warn("seed reconstruction failed",
			"wallet_id", req.WalletID,
			"share_count", len(req.Shares),
			"err", err)
		return nil, err
	}

	if signingKey != nil {
		_, err = state.chain.Append(ctx, interfaces.AuditSeedReconstructed, req.ActorID, interfaces.SeedReconstructedEvent{
			RecoveryID: req.RecoveryID,
			ShareCount: len(req.Shares),
		}, signingKey, req.Context)
		if err != nil {
			secretshare.Wipe(seed)
			return nil, err
		}
		if err := m.persistChain(ctx, state); err != nil {
			secretshare.Wipe(seed)
			return nil, err
		}
	}

	m.log.Warn("master seed reconstructed",
		"wallet_id", req.WalletID,
		"share_count", len(req.Shares),
		"recovery_id", req.RecoveryID,
		"audited", signingKey != nil)

	return seed, nil
}

// GetRecoveryAttempt returns one attempt, applying the expiry transition if
// its deadline has passed. Detection during a credential-less read persists
// the status change but cannot append a signed audit entry.
func (m *Manager) GetRecoveryAttempt(ctx context.Context, walletID, recoveryID string) (*interfaces.RecoveryAttempt, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	attempt, ok := state.attempts[recoveryID]
	if !ok {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeRecoveryNotFound,
			WalletID: walletID,
			Msg:      fmt.Sprintf("recovery attempt %s not found", recoveryID),
		}
	}
	if _, err := m.expireIfNeeded(ctx, state, attempt, "", nil, nil); err != nil {
		return nil, err
	}
	return cloneAttempt(attempt), nil
}

// ListRecoveryAttempts returns all attempts for a wallet, newest first,
// applying expiry transitions along the way.
func (m *Manager) ListRecoveryAttempts(ctx context.Context, walletID string) ([]interfaces.RecoveryAttempt, error) {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	out := make([]interfaces.RecoveryAttempt, 0, len(state.attempts))
	for _, attempt := range state.attempts {
		if _, err := m.expireIfNeeded(ctx, state, attempt, "", nil, nil); err != nil {
			return nil, err
		}
		out = append(out, *cloneAttempt(attempt))
	}
	sortAttemptsNewestFirst(out)
	return out, nil
}

// expireIfNeeded transitions a past-deadline attempt to expired and persists
// it. With a signing key the transition is recorded in the audit chain; a
// credential-less caller still gets the transition, just without audit proof.
func (m *Manager) expireIfNeeded(ctx context.Context, state *walletState, attempt *interfaces.RecoveryAttempt, actorID string, signingKey interfaces.AppPrivkey, clientCtx *interfaces.ClientContext) (bool, error) {
	if attempt.Status.Terminal() {
		return attempt.Status == interfaces.RecoveryExpired, nil
	}
	if !attempt.ExpiredAt(time.Now().UTC()) {
		return false, nil
	}

	attempt.Status = interfaces.RecoveryExpired
	if signingKey != nil {
		_, err := state.chain.Append(ctx, interfaces.AuditRecoveryExpired, actorID, interfaces.RecoveryExpiredEvent{
			RecoveryID:     attempt.ID,
			SignatureCount: attempt.CurrentSignatures,
		}, signingKey, clientCtx)
		if err != nil {
			return false, err
		}
		if err := m.persistChain(ctx, state); err != nil {
			return false, err
		}
	}
	if err := m.store.SaveAttempt(ctx, state.manifest.WalletID(), attempt); err != nil {
		return false, fmt.Errorf("persisting expired attempt: %w", err)
	}

	m.log.Info("recovery attempt expired",
		"wallet_id", state.manifest.WalletID(),
		"recovery_id", attempt.ID,
		"signatures", attempt.CurrentSignatures,
		"audited", signingKey != nil)
	return true, nil
}

// RecoverySignaturePayload builds the canonical byte string a guardian signs
// when approving a recovery attempt. Verifiers rebuild it from the stored
// signature metadata.
func RecoverySignaturePayload(walletID, recoveryID, guardianID string, signedAt time.Time, method interfaces.VerificationMethod) ([]byte, error) {
	raw, err := json.Marshal(map[string]string{
		"wallet_id":           walletID,
		"recovery_id":         recoveryID,
		"guardian_id":         guardianID,
		"timestamp":           signedAt.UTC().Format(time.RFC3339Nano),
		"verification_method": string(method),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding recovery signature payload: %w", err)
	}
	return auditlog.CanonicalizeJSON(raw)
}

// VerifyRecoverySignatures checks every stored guardian signature on an
// attempt against the guardian keys in the manifest.
func (m *Manager) VerifyRecoverySignatures(ctx context.Context, walletID, recoveryID string) error {
	state, err := m.getState(ctx, walletID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	attempt, ok := state.attempts[recoveryID]
	if !ok {
		return &interfaces.ProtocolError{
			Code:     interfaces.CodeRecoveryNotFound,
			WalletID: walletID,
			Msg:      fmt.Sprintf("recovery attempt %s not found", recoveryID),
		}
	}

	for _, sig := range attempt.Signatures {
		pub, ok := state.manifest.PublicKeyFor(sig.GuardianID)
		if !ok {
			return &interfaces.GuardianError{
				Code:       interfaces.CodeGuardianNotFound,
				GuardianID: sig.GuardianID,
				Msg:        "signature from a guardian not in the manifest",
			}
		}
		payload, err := RecoverySignaturePayload(walletID, recoveryID, sig.GuardianID, sig.SignedAt, sig.VerificationMethod)
		if err != nil {
			return err
		}
		cctx, cancel := context.WithTimeout(ctx, m.cryptoTimeout)
		err = m.crypto.Verify(cctx, pub, payload, sig.Signature)
		cancel()
		if err != nil {
			return &interfaces.CryptoError{
				Code: interfaces.CodeSignatureInvalid,
				Op:   "verify_recovery_signature",
				Msg:  fmt.Sprintf("signature from guardian %s does not verify", sig.GuardianID),
				Err:  err,
			}
		}
	}
	return nil
}

func sortAttemptsNewestFirst(attempts []interfaces.RecoveryAttempt) {
	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].CreatedAt.After(attempts[j].CreatedAt)
	})
}
