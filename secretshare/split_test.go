package secretshare

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	// Test successful split
	result, err := Split(secret, 5, 3)
	require.NoError(t, err, "Split should succeed with valid parameters")
	assert.Equal(t, 5, len(result.Shares), "Should generate 5 shares")
	assert.Equal(t, 3, result.Threshold)
	assert.Len(t, result.Commitment, 32, "Commitment should be a SHA-256 digest")

	for i, share := range result.Shares {
		assert.Equal(t, i+1, share.Index, "Share indices should be dense and 1-based")
		assert.Equal(t, len(secret)+1, len(share.Value), "Share value should carry the x-coordinate byte")
	}

	// Test with invalid parameters
	_, err = Split(secret, 3, 5)
	assert.Error(t, err, "Should fail when threshold > total shares")

	_, err = Split(secret, 5, 1)
	assert.Error(t, err, "Should fail when threshold < 2")

	_, err = Split(secret, 300, 3)
	assert.Error(t, err, "Should fail when total > 255")

	shortSecret := make([]byte, 8)
	_, err = Split(shortSecret, 5, 3)
	assert.Error(t, err, "Should fail with secret < 16 bytes")
}

func TestReconstruct(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	result, err := Split(secret, 5, 3)
	require.NoError(t, err, "Failed to split secret")

	// Exactly threshold shares reconstruct the secret
	recovered, err := Reconstruct(result.Shares[:3], 3, result.Commitment)
	require.NoError(t, err, "Reconstruction with threshold shares should succeed")
	assert.Equal(t, secret, recovered)

	// Any subset of threshold size works
	subset := []Share{result.Shares[1], result.Shares[3], result.Shares[4]}
	recovered, err = Reconstruct(subset, 3, result.Commitment)
	require.NoError(t, err, "Reconstruction with a different subset should succeed")
	assert.Equal(t, secret, recovered)

	// All shares work too
	recovered, err = Reconstruct(result.Shares, 3, result.Commitment)
	require.NoError(t, err, "Reconstruction with all shares should succeed")
	assert.Equal(t, secret, recovered)

	// Below threshold is rejected before combining
	_, err = Reconstruct(result.Shares[:2], 3, result.Commitment)
	assert.Error(t, err, "Should fail with fewer shares than threshold")

	// Duplicate share indices are rejected
	dup := []Share{result.Shares[0], result.Shares[0], result.Shares[1]}
	_, err = Reconstruct(dup, 3, result.Commitment)
	assert.Error(t, err, "Should fail with duplicate share indices")

	// Invalid commitment length
	_, err = Reconstruct(result.Shares[:3], 3, []byte("short"))
	assert.Error(t, err, "Should fail with malformed commitment")
}

// subsets returns every k-sized combination of shares.
func subsets(shares []Share, k int) [][]Share {
	var out [][]Share
	var walk func(start int, picked []Share)
	walk = func(start int, picked []Share) {
		if len(picked) == k {
			out = append(out, append([]Share(nil), picked...))
			return
		}
		for i := start; i < len(shares); i++ {
			walk(i+1, append(picked, shares[i]))
		}
	}
	walk(0, nil)
	return out
}

func TestReconstructEveryThresholdSubset(t *testing.T) {
	cases := []struct {
		total     int
		threshold int
	}{
		{total: 4, threshold: 2},
		{total: 5, threshold: 3},
		{total: 7, threshold: 4},
	}

	for _, tc := range cases {
		secret := make([]byte, 32)
		_, err := rand.Read(secret)
		require.NoError(t, err, "Failed to generate test secret")

		result, err := Split(secret, tc.total, tc.threshold)
		require.NoError(t, err, "Failed to split secret")

		for _, subset := range subsets(result.Shares, tc.threshold) {
			recovered, err := Reconstruct(subset, tc.threshold, result.Commitment)
			require.NoErrorf(t, err, "Every %d-share subset of %d should reconstruct", tc.threshold, tc.total)
			require.Equal(t, secret, recovered, "Reconstructed secret should match for every subset")
		}

		for _, subset := range subsets(result.Shares, tc.threshold-1) {
			_, err := Reconstruct(subset, tc.threshold-1, result.Commitment)
			require.Errorf(t, err, "No %d-share subset of %d may reconstruct", tc.threshold-1, tc.total)
		}
	}
}

func TestReconstructDetectsCorruption(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	result, err := Split(secret, 5, 3)
	require.NoError(t, err, "Failed to split secret")

	// Flip one byte in one share. Combining still succeeds but produces a
	// different secret, which the commitment check must catch.
	tampered := make([]Share, 3)
	copy(tampered, result.Shares[:3])
	corrupted := make([]byte, len(tampered[1].Value))
	copy(corrupted, tampered[1].Value)
	corrupted[0] ^= 0xff
	tampered[1] = Share{Index: tampered[1].Index, Value: corrupted}

	_, err = Reconstruct(tampered, 3, result.Commitment)
	assert.Error(t, err, "Tampered share should fail the commitment check")
}

func TestReconstructBelowOriginalThreshold(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	result, err := Split(secret, 5, 3)
	require.NoError(t, err, "Failed to split secret")

	// Two shares of a 3-threshold split combine into garbage without any
	// error from the underlying algorithm. The commitment check is the only
	// line of defense.
	_, err = Reconstruct(result.Shares[:2], 2, result.Commitment)
	assert.Error(t, err, "Combining below the original threshold should fail the commitment check")
}

func TestVerifyCommitment(t *testing.T) {
	secret := []byte("a master seed of sufficient size")

	result, err := Split(secret, 3, 2)
	require.NoError(t, err, "Failed to split secret")

	assert.True(t, VerifyCommitment(secret, result.Commitment))
	assert.False(t, VerifyCommitment([]byte("some other secret entirely here!"), result.Commitment))
}

func TestWipe(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	Wipe(data)
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, data)
}
