package auditlog

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomLeaves(t *testing.T, n int) [][]byte {
	t.Helper()
	leaves := make([][]byte, n)
	for i := range leaves {
		leaves[i] = make([]byte, HashSize)
		_, err := rand.Read(leaves[i])
		require.NoError(t, err, "Failed to generate test leaf")
	}
	return leaves
}

func TestMerkleRoot(t *testing.T) {
	leaves := randomLeaves(t, 2)

	// Single leaf: root is the leaf itself
	root, err := MerkleRoot(leaves[:1])
	require.NoError(t, err)
	assert.Equal(t, leaves[0], root)

	// Two leaves: root is their pair hash
	root, err = MerkleRoot(leaves)
	require.NoError(t, err)
	assert.Equal(t, nodeHash(leaves[0], leaves[1]), root)

	// Empty tree and malformed leaves are rejected
	_, err = MerkleRoot(nil)
	assert.ErrorIs(t, err, ErrEmptyTree)

	_, err = MerkleRoot([][]byte{[]byte("short")})
	assert.ErrorIs(t, err, ErrInvalidHashLen)
}

func TestMerkleRootDuplicatesOddNode(t *testing.T) {
	leaves := randomLeaves(t, 3)

	// With three leaves the last one is paired with itself
	left := nodeHash(leaves[0], leaves[1])
	right := nodeHash(leaves[2], leaves[2])
	expected := nodeHash(left, right)

	root, err := MerkleRoot(leaves)
	require.NoError(t, err)
	assert.Equal(t, expected, root)
}

func TestMerkleInclusionProof(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 5, 7, 8} {
		leaves := randomLeaves(t, size)
		root, err := MerkleRoot(leaves)
		require.NoError(t, err, "Failed to compute root for size %d", size)

		for index := 0; index < size; index++ {
			path, sides, err := MerkleInclusionProof(leaves, index)
			require.NoError(t, err, "Failed to build proof for leaf %d of %d", index, size)

			valid, err := VerifyMerkleInclusion(leaves[index], path, sides, root)
			require.NoError(t, err)
			assert.True(t, valid, "Proof for leaf %d of %d should verify", index, size)

			// Flipping a byte of the leaf must break the proof
			flipped := sha256.Sum256(leaves[index])
			valid, err = VerifyMerkleInclusion(flipped[:], path, sides, root)
			require.NoError(t, err)
			assert.False(t, valid, "Proof should fail for a different leaf")
		}
	}
}

func TestMerkleInclusionProof_InvalidInputs(t *testing.T) {
	leaves := randomLeaves(t, 4)

	_, _, err := MerkleInclusionProof(leaves, -1)
	assert.ErrorIs(t, err, ErrInvalidIndex)

	_, _, err = MerkleInclusionProof(leaves, 4)
	assert.ErrorIs(t, err, ErrInvalidIndex)

	root, err := MerkleRoot(leaves)
	require.NoError(t, err)

	path, sides, err := MerkleInclusionProof(leaves, 0)
	require.NoError(t, err)

	// Path and side lists must line up
	_, err = VerifyMerkleInclusion(leaves[0], path, sides[:len(sides)-1], root)
	assert.ErrorIs(t, err, ErrInvalidProof)

	_, err = VerifyMerkleInclusion([]byte("short"), path, sides, root)
	assert.ErrorIs(t, err, ErrInvalidHashLen)
}
