package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/secretshare"
)

type recoveryFixture struct {
	manager *Manager
	store   *MemoryStore
	result  *CreateWalletResult
	secret  []byte
	owner   []byte
}

func newRecoveryFixture(t *testing.T, total, threshold int) *recoveryFixture {
	t.Helper()
	m, store := newTestManager(t)
	secret := testSecret(t)
	owner := []byte("correct-horse-battery")
	return &recoveryFixture{
		manager: m,
		store:   store,
		result:  createTestWallet(t, m, total, threshold, secret, owner),
		secret:  secret,
		owner:   owner,
	}
}

func (f *recoveryFixture) walletID() string {
	return f.result.Manifest.WalletID()
}

func (f *recoveryFixture) guardian(i int) interfaces.Guardian {
	return f.result.Manifest.Guardians[i]
}

// guardianCred returns the PEM private key issued to the i-th guardian, which
// doubles as their credential.
func (f *recoveryFixture) guardianCred(i int) []byte {
	return f.result.GuardianKeys[f.guardian(i).ID].PrivateKey
}

func (f *recoveryFixture) eventTypes(t *testing.T) []interfaces.AuditEventType {
	t.Helper()
	chain, err := f.manager.GetAuditChain(context.Background(), f.walletID())
	require.NoError(t, err, "Failed to export audit chain")
	types := make([]interfaces.AuditEventType, len(chain.Entries))
	for i, e := range chain.Entries {
		types[i] = e.EventType
	}
	return types
}

func TestManager_InitiateRecovery(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)

	attempt, err := f.manager.InitiateRecovery(context.Background(), InitiateRecoveryRequest{
		WalletID:           f.walletID(),
		GuardianID:         f.guardian(0).ID,
		Reason:             "keys_lost",
		GuardianCredential: f.guardianCred(0),
	})
	require.NoError(t, err, "Failed to initiate recovery")

	assert.Equal(t, interfaces.RecoveryPending, attempt.Status, "New attempt should be pending")
	assert.Equal(t, 2, attempt.RequiredSignatures, "Required signatures should equal the threshold")
	assert.Zero(t, attempt.CurrentSignatures, "No signatures yet")
	assert.Equal(t, f.guardian(0).ID, attempt.InitiatorID, "Initiator should be recorded")
	assert.Equal(t, attempt.CreatedAt.Add(DefaultRecoveryTimeout), attempt.ExpiresAt, "Expiry follows the policy window")

	types := f.eventTypes(t)
	assert.Equal(t, interfaces.AuditRecoveryInitiated, types[len(types)-1],
		"Credentialed initiation should append recovery_initiated")
}

func TestManager_InitiateRecovery_WithoutCredential(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	before := len(f.eventTypes(t))

	attempt, err := f.manager.InitiateRecovery(context.Background(), InitiateRecoveryRequest{
		WalletID:   f.walletID(),
		GuardianID: f.guardian(0).ID,
		Reason:     "owner_deceased",
	})
	require.NoError(t, err, "Credential-less initiation should be accepted")
	assert.Equal(t, interfaces.RecoveryPending, attempt.Status, "Attempt should still open")

	// Accepted, but with no signed audit proof of the initiation.
	assert.Len(t, f.eventTypes(t), before, "No audit entry without a credential")
}

func TestManager_InitiateRecovery_Validation(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	ctx := context.Background()

	_, err := f.manager.InitiateRecovery(ctx, InitiateRecoveryRequest{
		WalletID:   f.walletID(),
		GuardianID: "nobody",
		Reason:     "keys_lost",
	})
	assert.Equal(t, interfaces.CodeGuardianNotFound, interfaces.ErrorCode(err), "Unknown guardian should be rejected")

	_, err = f.manager.InitiateRecovery(ctx, InitiateRecoveryRequest{
		WalletID:   f.walletID(),
		GuardianID: f.guardian(0).ID,
		Reason:     "wants_the_money",
	})
	assert.Equal(t, interfaces.CodeInvalidInput, interfaces.ErrorCode(err), "Disallowed reason should be rejected")

	// A credential that belongs to a different guardian must not pass.
	_, err = f.manager.InitiateRecovery(ctx, InitiateRecoveryRequest{
		WalletID:           f.walletID(),
		GuardianID:         f.guardian(0).ID,
		Reason:             "keys_lost",
		GuardianCredential: f.guardianCred(1),
	})
	assert.Equal(t, interfaces.CodeSignatureInvalid, interfaces.ErrorCode(err), "Mismatched credential should be rejected")

	require.NoError(t, f.manager.RevokeGuardian(ctx, RevokeGuardianRequest{
		WalletID:        f.walletID(),
		GuardianID:      f.guardian(2).ID,
		OwnerCredential: f.owner,
	}), "Failed to revoke guardian")
	_, err = f.manager.InitiateRecovery(ctx, InitiateRecoveryRequest{
		WalletID:   f.walletID(),
		GuardianID: f.guardian(2).ID,
		Reason:     "keys_lost",
	})
	assert.Equal(t, interfaces.CodeGuardianRevoked, interfaces.ErrorCode(err), "Revoked guardian cannot initiate")
}

func TestManager_SignRecovery_ThresholdFlow(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	ctx := context.Background()

	attempt, err := f.manager.InitiateRecovery(ctx, InitiateRecoveryRequest{
		WalletID:           f.walletID(),
		GuardianID:         f.guardian(0).ID,
		Reason:             "keys_lost",
		GuardianCredential: f.guardianCred(0),
	})
	require.NoError(t, err, "Failed to initiate recovery")

	// First signature: pending moves to collecting_signatures.
	sig, err := f.manager.SignRecovery(ctx, SignRecoveryRequest{
		WalletID:           f.walletID(),
		RecoveryID:         attempt.ID,
		GuardianID:         f.guardian(0).ID,
		GuardianCredential: f.guardianCred(0),
		VerificationMethod: interfaces.VerificationVideo,
	})
	require.NoError(t, err, "First signature should succeed")
	assert.NotEmpty(t, sig.Signature, "Signature bytes should be returned")

	current, err := f.manager.GetRecoveryAttempt(ctx, f.walletID(), attempt.ID)
	require.NoError(t, err, "Failed to fetch attempt")
	assert.Equal(t, interfaces.RecoveryCollecting, current.Status, "One of two signatures collected")
	assert.Equal(t, 1, current.CurrentSignatures, "Signature count should be one")
	assert.Nil(t, current.CompletedAt, "Attempt is not complete yet")

	// The same guardian cannot sign twice.
	_, err = f.manager.SignRecovery(ctx, SignRecoveryRequest{
		WalletID:           f.walletID(),
		RecoveryID:         attempt.ID,
		GuardianID:         f.guardian(0).ID,
		GuardianCredential: f.guardianCred(0),
	})
	assert.Equal(t, interfaces.CodeDuplicateSignature, interfaces.ErrorCode(err), "Duplicate signature should be rejected")

	// Second signature reaches the threshold.
	_, err = f.manager.SignRecovery(ctx, SignRecoveryRequest{
		WalletID:           f.walletID(),
		RecoveryID:         attempt.ID,
		GuardianID:         f.guardian(1).ID,
		GuardianCredential: f.guardianCred(1),
		VerificationMethod: interfaces.VerificationInPerson,
	})
	require.NoError(t, err, "Second signature should succeed")

	current, err = f.manager.GetRecoveryAttempt(ctx, f.walletID(), attempt.ID)
	require.NoError(t, err, "Failed to fetch attempt")
	assert.Equal(t, interfaces.RecoveryCompleted, current.Status, "Threshold reached, attempt completed")
	assert.Equal(t, 2, current.CurrentSignatures, "Both signatures recorded")
	require.NotNil(t, current.CompletedAt, "Completion time should be set")

	// A third signature after completion is refused.
	_, err = f.manager.SignRecovery(ctx, SignRecoveryRequest{
		WalletID:           f.walletID(),
		RecoveryID:         attempt.ID,
		GuardianID:         f.guardian(2).ID,
		GuardianCredential: f.guardianCred(2),
	})
	assert.Equal(t, interfaces.CodeRecoveryNotActive, interfaces.ErrorCode(err), "Completed attempt accepts no more signatures")

	// recovery_signed twice, then recovery_completed, all chained and signed.
	types := f.eventTypes(t)
	n := len(types)
	assert.Equal(t, interfaces.AuditRecoveryCompleted, types[n-1], "Last entry should be recovery_completed")
	assert.Equal(t, interfaces.AuditRecoverySigned, types[n-2], "Entry before should be recovery_signed")
	assert.Equal(t, interfaces.AuditRecoverySigned, types[n-3], "Entry before should be recovery_signed")

	require.NoError(t, f.manager.VerifyRecoverySignatures(ctx, f.walletID(), attempt.ID),
		"Stored guardian signatures should verify against the manifest keys")

	verification, err := f.manager.VerifyAuditChain(ctx, f.walletID())
	require.NoError(t, err, "Failed to verify chain")
	assert.True(t, verification.IsValid, "Chain should verify after the full flow: %v", verification.Errors)
}

func TestManager_SignRecovery_Expiry(t *testing.T) {
	m, _ := newTestManager(t)
	secret := testSecret(t)
	result, err := m.CreateWallet(context.Background(), CreateWalletRequest{
		Name:            "family-vault",
		Secret:          secret,
		Guardians:       guardianInfos(3),
		Threshold:       2,
		OwnerCredential: []byte("correct-horse-battery"),
		RecoveryTimeout: time.Nanosecond,
	})
	require.NoError(t, err, "Failed to create wallet")
	walletID := result.Manifest.WalletID()
	guardian := result.Manifest.Guardians[0]
	cred := result.GuardianKeys[guardian.ID].PrivateKey

	attempt, err := m.InitiateRecovery(context.Background(), InitiateRecoveryRequest{
		WalletID:   walletID,
		GuardianID: guardian.ID,
		Reason:     "keys_lost",
	})
	require.NoError(t, err, "Failed to initiate recovery")

	time.Sleep(2 * time.Millisecond)

	_, err = m.SignRecovery(context.Background(), SignRecoveryRequest{
		WalletID:           walletID,
		RecoveryID:         attempt.ID,
		GuardianID:         guardian.ID,
		GuardianCredential: cred,
	})
	assert.Equal(t, interfaces.CodeRecoveryExpired, interfaces.ErrorCode(err), "Signing an expired attempt should fail")

	current, err := m.GetRecoveryAttempt(context.Background(), walletID, attempt.ID)
	require.NoError(t, err, "Failed to fetch attempt")
	assert.Equal(t, interfaces.RecoveryExpired, current.Status, "Attempt should be marked expired")

	// The signer's credential was available, so the transition is audited.
	chain, err := m.GetAuditChain(context.Background(), walletID)
	require.NoError(t, err, "Failed to export chain")
	assert.Equal(t, interfaces.AuditRecoveryExpired, chain.Entries[len(chain.Entries)-1].EventType,
		"Expiry detected during signing should append recovery_expired")
}

func TestManager_SignRecovery_Validation(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	ctx := context.Background()

	attempt, err := f.manager.InitiateRecovery(ctx, InitiateRecoveryRequest{
		WalletID:   f.walletID(),
		GuardianID: f.guardian(0).ID,
		Reason:     "keys_lost",
	})
	require.NoError(t, err, "Failed to initiate recovery")

	_, err = f.manager.SignRecovery(ctx, SignRecoveryRequest{
		WalletID:   f.walletID(),
		RecoveryID: attempt.ID,
		GuardianID: f.guardian(0).ID,
	})
	assert.Equal(t, interfaces.CodeInvalidInput, interfaces.ErrorCode(err), "Missing credential should be rejected")

	_, err = f.manager.SignRecovery(ctx, SignRecoveryRequest{
		WalletID:           f.walletID(),
		RecoveryID:         "no-such-attempt",
		GuardianID:         f.guardian(0).ID,
		GuardianCredential: f.guardianCred(0),
	})
	assert.Equal(t, interfaces.CodeRecoveryNotFound, interfaces.ErrorCode(err), "Unknown attempt should be rejected")

	_, err = f.manager.SignRecovery(ctx, SignRecoveryRequest{
		WalletID:           f.walletID(),
		RecoveryID:         attempt.ID,
		GuardianID:         f.guardian(0).ID,
		GuardianCredential: f.guardianCred(1),
	})
	assert.Equal(t, interfaces.CodeSignatureInvalid, interfaces.ErrorCode(err), "Wrong guardian's credential should be rejected")

	_, err = f.manager.SignRecovery(ctx, SignRecoveryRequest{
		WalletID:           f.walletID(),
		RecoveryID:         attempt.ID,
		GuardianID:         f.guardian(0).ID,
		GuardianCredential: f.guardianCred(0),
		VerificationMethod: "telepathy",
	})
	assert.Equal(t, interfaces.CodeInvalidInput, interfaces.ErrorCode(err), "Unknown verification method should be rejected")
}

func TestManager_ReconstructSeed(t *testing.T) {
	f := newRecoveryFixture(t, 5, 3)
	ctx := context.Background()

	shares := decryptShares(t, f.result, 3)
	seed, err := f.manager.ReconstructSeed(ctx, ReconstructSeedRequest{
		WalletID: f.walletID(),
		Shares:   shares,
	})
	require.NoError(t, err, "Failed to reconstruct from a threshold subset")
	assert.Equal(t, f.secret, seed, "Reconstructed seed should equal the original")

	// Below the threshold nothing comes back.
	_, err = f.manager.ReconstructSeed(ctx, ReconstructSeedRequest{
		WalletID: f.walletID(),
		Shares:   shares[:2],
	})
	assert.Equal(t, interfaces.CodeThresholdNotMet, interfaces.ErrorCode(err), "Too few shares should be rejected")

	// A share index no guardian holds is rejected before any combination.
	bogus := append([]secretshare.Share(nil), shares...)
	bogus[0].Index = 9
	_, err = f.manager.ReconstructSeed(ctx, ReconstructSeedRequest{
		WalletID: f.walletID(),
		Shares:   bogus,
	})
	assert.Equal(t, interfaces.CodeGuardianNotFound, interfaces.ErrorCode(err), "Unknown share index should be rejected")

	// A corrupted share value fails the commitment check.
	corrupted := decryptShares(t, f.result, 3)
	corrupted[1].Value[0] ^= 0xFF
	_, err = f.manager.ReconstructSeed(ctx, ReconstructSeedRequest{
		WalletID: f.walletID(),
		Shares:   corrupted,
	})
	assert.Equal(t, interfaces.CodeShareCorrupted, interfaces.ErrorCode(err), "Corrupted share should fail the commitment check")
}

func TestManager_ReconstructSeed_WithRecoveryAttempt(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	ctx := context.Background()

	attempt, err := f.manager.InitiateRecovery(ctx, InitiateRecoveryRequest{
		WalletID:           f.walletID(),
		GuardianID:         f.guardian(0).ID,
		Reason:             "owner_incapacitated",
		GuardianCredential: f.guardianCred(0),
	})
	require.NoError(t, err, "Failed to initiate recovery")

	shares := decryptShares(t, f.result, 2)

	// The attempt has not reached its threshold, so reconstruction that
	// cites it is refused even with enough shares in hand.
	_, err = f.manager.ReconstructSeed(ctx, ReconstructSeedRequest{
		WalletID:   f.walletID(),
		RecoveryID: attempt.ID,
		Shares:     shares,
	})
	assert.Equal(t, interfaces.CodeRecoveryNotActive, interfaces.ErrorCode(err), "Incomplete attempt should block reconstruction")

	for i := 0; i < 2; i++ {
		_, err = f.manager.SignRecovery(ctx, SignRecoveryRequest{
			WalletID:           f.walletID(),
			RecoveryID:         attempt.ID,
			GuardianID:         f.guardian(i).ID,
			GuardianCredential: f.guardianCred(i),
		})
		require.NoError(t, err, "Failed to sign recovery")
	}

	seed, err := f.manager.ReconstructSeed(ctx, ReconstructSeedRequest{
		WalletID:        f.walletID(),
		RecoveryID:      attempt.ID,
		Shares:          shares,
		ActorID:         f.guardian(0).ID,
		ActorCredential: f.guardianCred(0),
	})
	require.NoError(t, err, "Failed to reconstruct after completion")
	assert.Equal(t, f.secret, seed, "Reconstructed seed should equal the original")

	types := f.eventTypes(t)
	assert.Equal(t, interfaces.AuditSeedReconstructed, types[len(types)-1],
		"Credentialed reconstruction should append seed_reconstructed")

	verification, err := f.manager.VerifyAuditChain(ctx, f.walletID())
	require.NoError(t, err, "Failed to verify chain")
	assert.True(t, verification.IsValid, "Chain should verify end to end: %v", verification.Errors)
}
