// Package secretshare wraps Shamir secret sharing with a commitment scheme so
// reconstruction can detect an insufficient or corrupted share set. The
// underlying algorithm silently produces garbage when combined below
// threshold, so every split records a SHA-256 commitment of the secret and
// every reconstruction is checked against it.
package secretshare

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

// Share is one fragment of a split secret. Index is the logical 1-based
// position assigned at split time; Value carries the raw share bytes with the
// polynomial x-coordinate in the trailing byte.
type Share struct {
	Index int    `json:"index"`
	Value []byte `json:"value"`
}

// SplitResult is the full output of splitting a secret.
type SplitResult struct {
	Shares    []Share
	Threshold int
	Total     int

	// Commitment is the SHA-256 digest of the original secret. It must be
	// kept alongside the shares and passed back to Reconstruct.
	Commitment []byte
}

// Split divides secret into total shares of which threshold are required to
// reconstruct it. The secret itself is never persisted; callers should wipe
// it once the shares are distributed.
func Split(secret []byte, total, threshold int) (*SplitResult, error) {
	if len(secret) < interfaces.MinSecretLen {
		return nil, &interfaces.ValidationError{
			Code:  interfaces.CodeInvalidInput,
			Field: "secret",
			Msg:   fmt.Sprintf("secret must be at least %d bytes", interfaces.MinSecretLen),
		}
	}
	if threshold < interfaces.MinThreshold {
		return nil, &interfaces.ValidationError{
			Code:  interfaces.CodeInvalidInput,
			Field: "threshold",
			Msg:   fmt.Sprintf("threshold must be at least %d", interfaces.MinThreshold),
		}
	}
	if total < threshold {
		return nil, &interfaces.ValidationError{
			Code:  interfaces.CodeInvalidInput,
			Field: "total",
			Msg:   "total shares must be at least equal to threshold",
		}
	}
	if total > 255 {
		return nil, &interfaces.ValidationError{
			Code:  interfaces.CodeInvalidInput,
			Field: "total",
			Msg:   "total shares must not exceed 255",
		}
	}

	raw, err := shamir.Split(secret, total, threshold)
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeEncryptionFailed,
			Op:   "split",
			Msg:  "splitting secret failed",
			Err:  err,
		}
	}

	shares := make([]Share, len(raw))
	for i, value := range raw {
		shares[i] = Share{Index: i + 1, Value: value}
	}

	commitment := sha256.Sum256(secret)

	return &SplitResult{
		Shares:     shares,
		Threshold:  threshold,
		Total:      total,
		Commitment: commitment[:],
	}, nil
}

// Reconstruct combines shares back into the original secret and verifies the
// result against the commitment recorded at split time. Returns a corruption
// error when the combined value does not match, which is also what happens
// when the share set is below the original threshold.
func Reconstruct(shares []Share, threshold int, commitment []byte) ([]byte, error) {
	if threshold < interfaces.MinThreshold {
		return nil, &interfaces.ValidationError{
			Code:  interfaces.CodeInvalidInput,
			Field: "threshold",
			Msg:   fmt.Sprintf("threshold must be at least %d", interfaces.MinThreshold),
		}
	}
	if len(commitment) != sha256.Size {
		return nil, &interfaces.ValidationError{
			Code:  interfaces.CodeInvalidInput,
			Field: "commitment",
			Msg:   "commitment must be a 32-byte SHA-256 digest",
		}
	}
	if len(shares) < threshold {
		return nil, &interfaces.ProtocolError{
			Code: interfaces.CodeThresholdNotMet,
			Msg:  fmt.Sprintf("need %d shares, have %d", threshold, len(shares)),
		}
	}

	seen := make(map[int]bool, len(shares))
	values := make([][]byte, 0, len(shares))
	for _, share := range shares {
		if share.Index < 1 {
			return nil, &interfaces.ValidationError{
				Code:  interfaces.CodeInvalidInput,
				Field: "shares",
				Msg:   fmt.Sprintf("share index %d out of range", share.Index),
			}
		}
		if seen[share.Index] {
			return nil, &interfaces.ValidationError{
				Code:  interfaces.CodeInvalidInput,
				Field: "shares",
				Msg:   fmt.Sprintf("duplicate share index %d", share.Index),
			}
		}
		if len(share.Value) < 2 {
			return nil, &interfaces.CryptoError{
				Code: interfaces.CodeShareCorrupted,
				Op:   "reconstruct",
				Msg:  fmt.Sprintf("share %d is truncated", share.Index),
			}
		}
		seen[share.Index] = true
		values = append(values, share.Value)
	}

	secret, err := shamir.Combine(values)
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeShareCorrupted,
			Op:   "reconstruct",
			Msg:  "combining shares failed",
			Err:  err,
		}
	}

	digest := sha256.Sum256(secret)
	if !bytes.Equal(digest[:], commitment) {
		Wipe(secret)
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeShareCorrupted,
			Op:   "reconstruct",
			Msg:  "reconstructed secret does not match commitment",
		}
	}

	return secret, nil
}

// VerifyCommitment checks a secret against a commitment produced by Split.
func VerifyCommitment(secret, commitment []byte) bool {
	digest := sha256.Sum256(secret)
	return bytes.Equal(digest[:], commitment)
}

// Wipe zeroes sensitive data in place.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
