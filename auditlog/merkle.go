package auditlog

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

// HashSize is the length of every leaf and node hash in the tree.
const HashSize = 32

var (
	ErrEmptyTree      = errors.New("empty merkle tree")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidIndex   = errors.New("invalid leaf index")
	ErrInvalidProof   = errors.New("invalid merkle proof")
)

// The tree is built bottom-up in pairs, duplicating the last node of any
// odd-sized level. Proof generation and verification must share this
// duplication rule or proofs for the trailing leaves fail to validate.

func nodeHash(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// MerkleRoot computes the root over the given leaf hashes.
func MerkleRoot(leaves [][]byte) ([]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, cloneHash(level[len(level)-1]))
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		level = next
	}
	return level[0], nil
}

// MerkleInclusionProof produces the sibling path from leaf leafIndex to the
// root. sides[i] is true when the i-th sibling sits to the right of the
// running hash.
func MerkleInclusionProof(leaves [][]byte, leafIndex int) (path [][]byte, sides []bool, err error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, nil, err
	}
	if leafIndex < 0 || leafIndex >= len(level) {
		return nil, nil, ErrInvalidIndex
	}

	index := leafIndex
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, cloneHash(level[len(level)-1]))
		}

		sibling := index ^ 1
		path = append(path, cloneHash(level[sibling]))
		sides = append(sides, sibling > index)

		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		level = next
		index /= 2
	}
	return path, sides, nil
}

// VerifyMerkleInclusion folds a leaf hash up the sibling path and compares
// the result against the expected root.
func VerifyMerkleInclusion(leafHash []byte, path [][]byte, sides []bool, expectedRoot []byte) (bool, error) {
	if len(path) != len(sides) {
		return false, ErrInvalidProof
	}
	if err := validateHash(leafHash); err != nil {
		return false, err
	}
	if err := validateHash(expectedRoot); err != nil {
		return false, err
	}
	for _, p := range path {
		if err := validateHash(p); err != nil {
			return false, err
		}
	}

	hash := cloneHash(leafHash)
	for i, sibling := range path {
		if sides[i] {
			hash = nodeHash(hash, sibling)
		} else {
			hash = nodeHash(sibling, hash)
		}
	}
	return bytes.Equal(hash, expectedRoot), nil
}

func cloneAndValidateLeaves(leaves [][]byte) ([][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if err := validateHash(leaf); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}

func validateHash(hash []byte) error {
	if len(hash) != HashSize {
		return ErrInvalidHashLen
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	if hash == nil {
		return nil
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}
