package secretshare

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/shamir"
	"github.com/vaultmesh/recovery-backend/cryptoutils"
)

// Collector accumulates signature-verified shares during a recovery ceremony
// and reconstructs the secret once the threshold is reached. The secret is
// never written to persistent storage. Shares are held only until
// reconstruction succeeds, then wiped from memory.
type Collector struct {
	mu             sync.RWMutex
	secret         []byte         // The reconstructed secret, stored only in memory
	complete       bool           // Whether enough shares arrived to reconstruct
	threshold      int            // Minimum number of shares required
	commitment     []byte         // SHA-256 of the original secret, recorded at split time
	receivedShares map[int][]byte // Shares received so far, keyed by share index

	guardianPubKeys map[string][]byte // Authorized guardian public keys by fingerprint
}

// CollectorConfig contains configuration parameters for creating a Collector.
type CollectorConfig struct {
	// Threshold is the minimum number of shares required to reconstruct the secret
	Threshold int
	// Commitment is the SHA-256 digest of the secret recorded when it was split
	Commitment []byte
	// GuardianPubKeys is the list of authorized guardian public keys in PEM format
	GuardianPubKeys [][]byte
}

// NewCollector creates a collector in the locked state. Shares are accepted
// through SubmitShare until the threshold is reached.
func NewCollector(config CollectorConfig) (*Collector, error) {
	if config.Threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if len(config.Commitment) != sha256.Size {
		return nil, errors.New("commitment must be a 32-byte SHA-256 digest")
	}
	if len(config.GuardianPubKeys) < config.Threshold {
		return nil, errors.New("authorized guardians must be at least equal to threshold")
	}

	collector := &Collector{
		threshold:       config.Threshold,
		commitment:      config.Commitment,
		receivedShares:  make(map[int][]byte),
		guardianPubKeys: make(map[string][]byte),
	}

	for _, publicKeyPEM := range config.GuardianPubKeys {
		if err := cryptoutils.AppPubkey(publicKeyPEM).Validate(); err != nil {
			return nil, fmt.Errorf("invalid guardian pubkey: %w", err)
		}
		fingerprint := sha256.Sum256(publicKeyPEM)
		collector.guardianPubKeys[hex.EncodeToString(fingerprint[:])] = publicKeyPEM
	}

	return collector, nil
}

// SubmitShare submits a decrypted share with cryptographic verification.
// The share must be signed by the submitting guardian's private key. When the
// threshold number of valid shares are received, the secret is automatically
// reconstructed, checked against the commitment, and the collector transitions
// to the complete state.
func (c *Collector) SubmitShare(shareIndex int, share, signature, guardianPubKeyPEM []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.complete {
		return errors.New("secret already reconstructed")
	}

	if shareIndex < 1 {
		return fmt.Errorf("share index %d out of range", shareIndex)
	}

	// Verify the guardian's public key is registered
	fingerprint := sha256.Sum256(guardianPubKeyPEM)
	fingerprintHex := hex.EncodeToString(fingerprint[:])
	pubkeyForFingerprint, found := c.guardianPubKeys[fingerprintHex]
	if !found {
		return errors.New("unregistered guardian public key")
	}

	if !bytes.Equal(pubkeyForFingerprint, guardianPubKeyPEM) {
		return errors.New("invalid pubkey passed for a matching fingerprint")
	}

	if err := cryptoutils.VerifyPayload(guardianPubKeyPEM, share, signature); err != nil {
		return fmt.Errorf("share signature verification failed: %w", err)
	}

	if existing, ok := c.receivedShares[shareIndex]; ok {
		if bytes.Equal(existing, share) {
			return nil // Idempotent resubmission
		}
		return fmt.Errorf("conflicting share already submitted for index %d", shareIndex)
	}

	c.receivedShares[shareIndex] = share

	return c.tryReconstruct()
}

// tryReconstruct attempts to reconstruct the secret from the received shares.
// Once the threshold is met the shares are combined, the result is checked
// against the commitment, and all shares are wiped from memory.
func (c *Collector) tryReconstruct() error {
	if len(c.receivedShares) < c.threshold {
		return nil // Not enough shares yet, but this is not an error
	}

	shares := make([][]byte, 0, len(c.receivedShares))
	for _, share := range c.receivedShares {
		shares = append(shares, share)
	}

	secret, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct secret: %w", err)
	}

	digest := sha256.Sum256(secret)
	if !bytes.Equal(digest[:], c.commitment) {
		Wipe(secret)
		return errors.New("reconstructed secret does not match commitment")
	}

	c.secret = secret
	c.complete = true

	// Clear shares from memory for security
	for i := range c.receivedShares {
		Wipe(c.receivedShares[i])
	}
	c.receivedShares = make(map[int][]byte) // Reset map

	return nil
}

// Complete returns whether the secret has been successfully reconstructed.
func (c *Collector) Complete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.complete
}

// ShareCount returns the number of shares received so far.
func (c *Collector) ShareCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.complete {
		return c.threshold
	}
	return len(c.receivedShares)
}

// Secret returns a copy of the reconstructed secret. Returns an error while
// the collector has not yet reached its threshold.
func (c *Collector) Secret() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.complete {
		return nil, errors.New("secret not reconstructed - need more shares")
	}

	out := make([]byte, len(c.secret))
	copy(out, c.secret)
	return out, nil
}

// Destroy wipes the reconstructed secret and any pending shares from memory.
// The collector cannot be reused afterwards.
func (c *Collector) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	Wipe(c.secret)
	c.secret = nil
	for i := range c.receivedShares {
		Wipe(c.receivedShares[i])
	}
	c.receivedShares = make(map[int][]byte)
	c.complete = false
}
