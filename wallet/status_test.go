package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

func TestManager_RevokeGuardian(t *testing.T) {
	f := newRecoveryFixture(t, 4, 2)
	ctx := context.Background()

	err := f.manager.RevokeGuardian(ctx, RevokeGuardianRequest{
		WalletID:        f.walletID(),
		GuardianID:      f.guardian(3).ID,
		Reason:          "lost contact",
		OwnerCredential: f.owner,
	})
	require.NoError(t, err, "Failed to revoke guardian")

	status, err := f.manager.GetStatus(ctx, f.walletID())
	require.NoError(t, err, "Failed to get status")
	assert.Equal(t, 3, status.ActiveGuardians, "Active count should drop")
	assert.Equal(t, 1, status.RevokedGuardians, "Revoked count should rise")

	types := f.eventTypes(t)
	assert.Equal(t, interfaces.AuditGuardianRevoked, types[len(types)-1], "Revocation should be audited")

	verification, err := f.manager.VerifyAuditChain(ctx, f.walletID())
	require.NoError(t, err, "Failed to verify chain")
	assert.True(t, verification.IsValid, "Chain should verify after revocation: %v", verification.Errors)

	// The revoked guardian's share index stays reserved in the manifest.
	manifest, err := f.manager.LoadWallet(ctx, f.walletID())
	require.NoError(t, err, "Failed to load wallet")
	g, ok := manifest.GuardianByID(f.guardian(3).ID)
	require.True(t, ok, "Revoked guardian should stay in the manifest")
	assert.Equal(t, interfaces.GuardianRevoked, g.Status, "Status should be revoked")
	require.NoError(t, manifest.Validate(), "Manifest should still validate with a revoked guardian")
}

func TestManager_RevokeGuardian_KeepsThreshold(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	ctx := context.Background()

	require.NoError(t, f.manager.RevokeGuardian(ctx, RevokeGuardianRequest{
		WalletID:        f.walletID(),
		GuardianID:      f.guardian(0).ID,
		OwnerCredential: f.owner,
	}), "First revocation keeps two active guardians and should pass")

	// A second revocation would leave one active guardian against a
	// threshold of two.
	err := f.manager.RevokeGuardian(ctx, RevokeGuardianRequest{
		WalletID:        f.walletID(),
		GuardianID:      f.guardian(1).ID,
		OwnerCredential: f.owner,
	})
	require.Error(t, err, "Revocation below the threshold should fail")
	assert.Equal(t, interfaces.CodeInvalidInput, interfaces.ErrorCode(err), "Should be a validation error")
}

func TestManager_RevokeGuardian_RequiresOwnerCredential(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	ctx := context.Background()

	err := f.manager.RevokeGuardian(ctx, RevokeGuardianRequest{
		WalletID:        f.walletID(),
		GuardianID:      f.guardian(0).ID,
		OwnerCredential: []byte("not-the-owner-credential"),
	})
	require.Error(t, err, "Wrong credential should fail")
	assert.Equal(t, interfaces.CodeSignatureInvalid, interfaces.ErrorCode(err), "Should be a signature mismatch")

	err = f.manager.RevokeGuardian(ctx, RevokeGuardianRequest{
		WalletID:   f.walletID(),
		GuardianID: f.guardian(0).ID,
	})
	assert.Equal(t, interfaces.CodeInvalidInput, interfaces.ErrorCode(err), "Missing credential should be rejected")
}

func TestManager_RecordProofOfLife(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	ctx := context.Background()

	entry, err := f.manager.RecordProofOfLife(ctx, f.walletID(), f.owner, interfaces.VerificationVideo, nil)
	require.NoError(t, err, "Failed to record proof of life")
	assert.Equal(t, interfaces.AuditProofOfLife, entry.EventType, "Entry type should be proof_of_life")
	assert.Equal(t, f.result.Manifest.OwnerID(), entry.ActorID, "Owner should be the actor")

	verification, err := f.manager.VerifyAuditChain(ctx, f.walletID())
	require.NoError(t, err, "Failed to verify chain")
	assert.True(t, verification.IsValid, "Chain should verify after proof of life: %v", verification.Errors)

	_, err = f.manager.RecordProofOfLife(ctx, f.walletID(), []byte("wrong-credential-here"), interfaces.VerificationEmail, nil)
	assert.Equal(t, interfaces.CodeSignatureInvalid, interfaces.ErrorCode(err), "Wrong credential should be rejected")
}

func TestManager_AuditProofRoundTrip(t *testing.T) {
	f := newRecoveryFixture(t, 3, 2)
	ctx := context.Background()

	chain, err := f.manager.GetAuditChain(ctx, f.walletID())
	require.NoError(t, err, "Failed to export chain")

	for _, entry := range chain.Entries {
		proof, err := f.manager.AuditProof(ctx, f.walletID(), entry.ID)
		require.NoError(t, err, "Failed to build proof for entry %s", entry.ID)
		ok, err := f.manager.VerifyAuditProof(ctx, f.walletID(), proof)
		require.NoError(t, err, "Failed to verify proof for entry %s", entry.ID)
		assert.True(t, ok, "Proof for entry %s should verify against the live root", entry.ID)
	}
}
