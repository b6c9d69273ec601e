package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

func testGuardian(t *testing.T, walletID string, index int) *interfaces.Guardian {
	t.Helper()
	keyPair, err := cryptoutils.NewKeyPair()
	require.NoError(t, err, "Failed to generate guardian key pair")

	return &interfaces.Guardian{
		ID:         fmt.Sprintf("guardian-%d", index),
		WalletID:   walletID,
		Name:       fmt.Sprintf("Guardian %d", index),
		Email:      fmt.Sprintf("guardian%d@example.com", index),
		PublicKey:  keyPair.PublicKey,
		KeyID:      keyPair.KeyID,
		ShareIndex: index,
		Status:     interfaces.GuardianActive,
	}
}

func TestRegistry_Add(t *testing.T) {
	reg := New("wallet-1")

	for i := 1; i <= 3; i++ {
		require.NoError(t, reg.Add(testGuardian(t, "wallet-1", i)), "Adding guardian %d should succeed", i)
	}
	assert.Equal(t, 3, reg.Len())
	assert.NoError(t, reg.VerifyBijection(3))

	// Duplicate id
	dup := testGuardian(t, "wallet-1", 4)
	dup.ID = "guardian-1"
	assert.Error(t, reg.Add(dup), "Duplicate guardian id should be rejected")

	// Duplicate share index
	dup = testGuardian(t, "wallet-1", 4)
	dup.ShareIndex = 2
	assert.Error(t, reg.Add(dup), "Duplicate share index should be rejected")

	// Duplicate email, case-insensitive
	dup = testGuardian(t, "wallet-1", 4)
	dup.Email = "Guardian1@Example.com"
	assert.Error(t, reg.Add(dup), "Duplicate email should be rejected case-insensitively")

	// Wrong wallet
	assert.Error(t, reg.Add(testGuardian(t, "wallet-2", 4)), "Guardian for another wallet should be rejected")

	// Invalid key
	bad := testGuardian(t, "wallet-1", 4)
	bad.PublicKey = interfaces.AppPubkey("not-a-pem")
	assert.Error(t, reg.Add(bad), "Invalid public key should be rejected")

	// Index out of range
	bad = testGuardian(t, "wallet-1", 4)
	bad.ShareIndex = 0
	assert.Error(t, reg.Add(bad), "Share index below 1 should be rejected")
}

func TestRegistry_Lookups(t *testing.T) {
	reg := New("wallet-1")
	original := testGuardian(t, "wallet-1", 1)
	require.NoError(t, reg.Add(original))

	byID, err := reg.Get("guardian-1")
	require.NoError(t, err)
	assert.Equal(t, original.ShareIndex, byID.ShareIndex)

	byIndex, err := reg.GetByIndex(1)
	require.NoError(t, err)
	assert.Equal(t, "guardian-1", byIndex.ID)

	byEmail, err := reg.GetByEmail("GUARDIAN1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "guardian-1", byEmail.ID)

	_, err = reg.Get("missing")
	assert.Error(t, err)
	var guardianErr *interfaces.GuardianError
	require.ErrorAs(t, err, &guardianErr)
	assert.Equal(t, interfaces.CodeGuardianNotFound, guardianErr.Code)

	_, err = reg.GetByIndex(9)
	assert.Error(t, err)

	// Mutating a returned copy must not affect the registry
	byID.Status = interfaces.GuardianRevoked
	fresh, err := reg.Get("guardian-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.GuardianActive, fresh.Status)
}

func TestRegistry_Lifecycle(t *testing.T) {
	reg := New("wallet-1")

	invited := testGuardian(t, "wallet-1", 1)
	invited.Status = interfaces.GuardianInvited
	require.NoError(t, reg.Add(invited))
	require.NoError(t, reg.Add(testGuardian(t, "wallet-1", 2)))

	assert.Equal(t, 1, reg.ActiveCount(), "Invited guardians are not active")

	_, err := reg.RequireActive("guardian-1")
	assert.Error(t, err, "Invited guardian should not pass RequireActive")

	require.NoError(t, reg.Activate("guardian-1"))
	assert.Equal(t, 2, reg.ActiveCount())

	_, err = reg.RequireActive("guardian-1")
	assert.NoError(t, err)

	require.NoError(t, reg.Revoke("guardian-1"))
	assert.Equal(t, 1, reg.ActiveCount())

	_, err = reg.RequireActive("guardian-1")
	assert.Error(t, err, "Revoked guardian should not pass RequireActive")

	assert.Error(t, reg.Activate("guardian-1"), "Revoked guardians cannot be reactivated")
}

func TestRegistry_FromGuardians(t *testing.T) {
	records := []interfaces.Guardian{
		*testGuardian(t, "wallet-1", 1),
		*testGuardian(t, "wallet-1", 2),
		*testGuardian(t, "wallet-1", 3),
	}

	reg, err := FromGuardians("wallet-1", records)
	require.NoError(t, err, "Restoring valid guardians should succeed")
	assert.NoError(t, reg.VerifyBijection(3))

	listed := reg.List()
	require.Len(t, listed, 3)
	for i, guardian := range listed {
		assert.Equal(t, i+1, guardian.ShareIndex, "List should be ordered by share index")
	}

	// A conflicting record fails the whole restore
	records[2].ShareIndex = 1
	_, err = FromGuardians("wallet-1", records)
	assert.Error(t, err, "Restore with a duplicate share index should fail")
}

func TestRegistry_VerifyBijection(t *testing.T) {
	reg := New("wallet-1")
	require.NoError(t, reg.Add(testGuardian(t, "wallet-1", 1)))

	// Index 3 present but index 2 missing
	require.NoError(t, reg.Add(testGuardian(t, "wallet-1", 3)))

	assert.Error(t, reg.VerifyBijection(2), "Extra guardian should fail the bijection check")
	assert.Error(t, reg.VerifyBijection(3), "Missing index should fail the bijection check")
}

func TestRegistry_PublicKeyFor(t *testing.T) {
	reg := New("wallet-1")
	guardian := testGuardian(t, "wallet-1", 1)
	require.NoError(t, reg.Add(guardian))

	key, found := reg.PublicKeyFor("guardian-1")
	require.True(t, found)
	assert.Equal(t, guardian.PublicKey, key)

	_, found = reg.PublicKeyFor("missing")
	assert.False(t, found)
}
