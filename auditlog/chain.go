package auditlog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

// KeyResolver maps audit actor ids to their recorded public keys so chain
// verification can check signatures cryptographically, not just for presence.
// A wallet manifest is the usual implementation.
type KeyResolver interface {
	PublicKeyFor(actorID string) (interfaces.AppPubkey, bool)
}

// Chain is an append-only, hash-linked, merkle-rooted log of protocol events
// for a single wallet. Every entry's PreviousHash is the preceding entry's
// signature, and the merkle root over all entry content hashes is restamped
// on each append. Entries are never mutated in place.
type Chain struct {
	mu         sync.RWMutex
	walletID   string
	entries    []interfaces.AuditLogEntry
	merkleRoot string
	chainHash  string
	firstAt    *time.Time
	lastAt     *time.Time
	updatedAt  time.Time

	crypto interfaces.CryptoProvider
}

// New creates an empty chain for a wallet.
func New(walletID string, crypto interfaces.CryptoProvider) *Chain {
	return &Chain{walletID: walletID, crypto: crypto}
}

// Import restores a chain from its export form. The chain is fully verified
// first, including cryptographic signature checks when a resolver is given,
// and rejected on any inconsistency.
func Import(ctx context.Context, exported *interfaces.AuditLogChain, crypto interfaces.CryptoProvider, resolver KeyResolver) (*Chain, error) {
	if exported == nil {
		return nil, interfaces.NewValidationError("chain", "chain is required")
	}
	if exported.Count != len(exported.Entries) {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeChainBroken,
			WalletID: exported.WalletID,
			Msg:      fmt.Sprintf("entry count %d does not match declared count %d", len(exported.Entries), exported.Count),
		}
	}

	report := verifyEntries(ctx, crypto, exported.WalletID, exported.Entries, exported.MerkleRoot, exported.ChainHash, resolver)
	if !report.IsValid {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeChainBroken,
			WalletID: exported.WalletID,
			Msg:      fmt.Sprintf("chain failed verification: %s", strings.Join(report.Errors, "; ")),
		}
	}

	chain := &Chain{
		walletID:   exported.WalletID,
		entries:    cloneEntries(exported.Entries),
		merkleRoot: exported.MerkleRoot,
		chainHash:  exported.ChainHash,
		updatedAt:  exported.UpdatedAt,
		crypto:     crypto,
	}
	if len(chain.entries) > 0 {
		first := chain.entries[0].Timestamp
		last := chain.entries[len(chain.entries)-1].Timestamp
		chain.firstAt, chain.lastAt = &first, &last
	}
	return chain, nil
}

// Append builds, signs and links a new entry. The payload is stored in
// canonical JSON form so exports round-trip byte for byte. The signing key
// is the acting party's private key; the resulting signature becomes the
// next entry's PreviousHash.
func (c *Chain) Append(ctx context.Context, eventType interfaces.AuditEventType, actorID string, payload any, signingKey interfaces.AppPrivkey, clientCtx *interfaces.ClientContext) (*interfaces.AuditLogEntry, error) {
	if !eventType.Valid() {
		return nil, interfaces.NewValidationError("event_type", fmt.Sprintf("unknown audit event type %q", eventType))
	}
	if actorID == "" {
		return nil, interfaces.NewValidationError("actor_id", "actor id is required")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, interfaces.NewValidationError("data", fmt.Sprintf("unserializable event payload: %v", err))
	}
	canonicalPayload, err := CanonicalizeJSON(payloadJSON)
	if err != nil {
		return nil, interfaces.NewValidationError("data", fmt.Sprintf("invalid event payload: %v", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	previousHash := ""
	if n := len(c.entries); n > 0 {
		previousHash = c.entries[n-1].Signature
	}

	entry := interfaces.AuditLogEntry{
		ID:           uuid.New().String(),
		WalletID:     c.walletID,
		Sequence:     len(c.entries),
		EventType:    eventType,
		ActorID:      actorID,
		Data:         canonicalPayload,
		Context:      clientCtx,
		Timestamp:    time.Now().UTC(),
		PreviousHash: previousHash,
	}

	content, err := signingContent(&entry)
	if err != nil {
		return nil, err
	}
	signature, err := c.crypto.Sign(ctx, signingKey, content)
	if err != nil {
		return nil, &interfaces.CryptoError{
			Code: interfaces.CodeSignatureInvalid,
			Op:   "audit_sign",
			Msg:  "signing audit entry failed",
			Err:  err,
		}
	}
	entry.Signature = hex.EncodeToString(signature)

	if err := c.appendAndRecompute(entry); err != nil {
		return nil, err
	}

	stamped := c.entries[len(c.entries)-1]
	return &stamped, nil
}

// appendAndRecompute links the entry and refreshes the merkle root, the
// per-entry root stamps and the chain summary hash. All fallible work runs
// before any state changes so a failed append leaves the chain untouched.
func (c *Chain) appendAndRecompute(entry interfaces.AuditLogEntry) error {
	leaves := make([][]byte, 0, len(c.entries)+1)
	for i := range c.entries {
		leaf, err := entryContentHash(&c.entries[i])
		if err != nil {
			return err
		}
		leaves = append(leaves, leaf)
	}
	newLeaf, err := entryContentHash(&entry)
	if err != nil {
		return err
	}
	leaves = append(leaves, newLeaf)

	root, err := MerkleRoot(leaves)
	if err != nil {
		return &interfaces.ProtocolError{
			Code:     interfaces.CodeChainBroken,
			WalletID: c.walletID,
			Msg:      "recomputing merkle root failed",
			Err:      err,
		}
	}
	rootHex := hex.EncodeToString(root)

	chainHash, err := computeChainHash(len(c.entries)+1, entry.ID, entry.Signature, rootHex)
	if err != nil {
		return err
	}

	c.entries = append(c.entries, entry)
	for i := range c.entries {
		c.entries[i].MerkleRoot = rootHex
	}
	c.merkleRoot = rootHex
	c.chainHash = chainHash

	first := c.entries[0].Timestamp
	last := c.entries[len(c.entries)-1].Timestamp
	c.firstAt, c.lastAt = &first, &last
	c.updatedAt = time.Now().UTC()
	return nil
}

// VerifyChain recomputes every digest and link in the chain and reports all
// violations found. With a resolver, each entry's signature is additionally
// verified against the actor's recorded public key; without one only
// signature presence is checked. The report is computed on a snapshot so
// concurrent appends do not interleave with verification.
func (c *Chain) VerifyChain(ctx context.Context, resolver KeyResolver) interfaces.ChainVerification {
	c.mu.RLock()
	entries := cloneEntries(c.entries)
	walletID, merkleRoot, chainHash := c.walletID, c.merkleRoot, c.chainHash
	c.mu.RUnlock()

	return verifyEntries(ctx, c.crypto, walletID, entries, merkleRoot, chainHash, resolver)
}

func verifyEntries(ctx context.Context, crypto interfaces.CryptoProvider, walletID string, entries []interfaces.AuditLogEntry, merkleRoot, chainHash string, resolver KeyResolver) interfaces.ChainVerification {
	report := interfaces.ChainVerification{
		WalletID:        walletID,
		EntryCount:      len(entries),
		ChainHashValid:  true,
		MerkleRootValid: true,
		SignaturesValid: true,
		VerifiedAt:      time.Now().UTC(),
	}
	addError := func(format string, args ...any) {
		report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
	}

	for i := range entries {
		entry := &entries[i]
		if entry.WalletID != walletID {
			addError("entry %d: wallet id %q does not match chain wallet %q", i, entry.WalletID, walletID)
		}
		if entry.Sequence != i {
			addError("entry %d: sequence %d out of order", i, entry.Sequence)
		}
		if i == 0 {
			if entry.PreviousHash != "" {
				addError("entry 0: previous hash must be empty")
			}
		} else if entry.PreviousHash != entries[i-1].Signature {
			addError("entry %d: previous hash does not match preceding signature", i)
		}
		if entry.Signature == "" {
			report.SignaturesValid = false
			addError("entry %d: missing signature", i)
		}
	}

	if len(entries) == 0 {
		if merkleRoot != "" {
			report.MerkleRootValid = false
			addError("merkle root set on empty chain")
		}
		if chainHash != "" {
			report.ChainHashValid = false
			addError("chain hash set on empty chain")
		}
	} else {
		leaves := make([][]byte, len(entries))
		leavesOK := true
		for i := range entries {
			leaf, err := entryContentHash(&entries[i])
			if err != nil {
				leavesOK = false
				addError("entry %d: content hash failed: %v", i, err)
				continue
			}
			leaves[i] = leaf
		}

		if leavesOK {
			root, err := MerkleRoot(leaves)
			if err != nil {
				report.MerkleRootValid = false
				addError("merkle root recomputation failed: %v", err)
			} else {
				rootHex := hex.EncodeToString(root)
				if rootHex != merkleRoot {
					report.MerkleRootValid = false
					addError("merkle root mismatch: computed %s, stored %s", rootHex, merkleRoot)
				}
				if last := entries[len(entries)-1]; last.MerkleRoot != rootHex {
					report.MerkleRootValid = false
					addError("last entry merkle root stamp does not match recomputed root")
				}
			}
		} else {
			report.MerkleRootValid = false
		}

		last := entries[len(entries)-1]
		expectedChainHash, err := computeChainHash(len(entries), last.ID, last.Signature, merkleRoot)
		if err != nil {
			report.ChainHashValid = false
			addError("chain hash recomputation failed: %v", err)
		} else if expectedChainHash != chainHash {
			report.ChainHashValid = false
			addError("chain hash mismatch: computed %s, stored %s", expectedChainHash, chainHash)
		}
	}

	if resolver != nil {
		for i := range entries {
			entry := &entries[i]
			if entry.Signature == "" {
				continue // already reported
			}
			pubkey, found := resolver.PublicKeyFor(entry.ActorID)
			if !found {
				report.SignaturesValid = false
				addError("entry %d: no public key recorded for actor %q", i, entry.ActorID)
				continue
			}
			content, err := signingContent(entry)
			if err != nil {
				report.SignaturesValid = false
				addError("entry %d: signing content failed: %v", i, err)
				continue
			}
			signature, err := hex.DecodeString(entry.Signature)
			if err != nil {
				report.SignaturesValid = false
				addError("entry %d: malformed signature encoding", i)
				continue
			}
			if err := crypto.Verify(ctx, pubkey, content, signature); err != nil {
				report.SignaturesValid = false
				addError("entry %d: signature verification failed for actor %q", i, entry.ActorID)
			}
		}
	}

	report.IsValid = len(report.Errors) == 0
	return report
}

// GenerateMerkleProof produces an inclusion proof for one entry against the
// chain's current root.
func (c *Chain) GenerateMerkleProof(entryID string) (*interfaces.MerkleProof, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	index := -1
	for i := range c.entries {
		if c.entries[i].ID == entryID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, interfaces.NewValidationError("entry_id", fmt.Sprintf("audit entry %q not found", entryID))
	}

	leaves := make([][]byte, len(c.entries))
	for i := range c.entries {
		leaf, err := entryContentHash(&c.entries[i])
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
	}

	path, sides, err := MerkleInclusionProof(leaves, index)
	if err != nil {
		return nil, &interfaces.ProtocolError{
			Code:     interfaces.CodeChainBroken,
			WalletID: c.walletID,
			Msg:      "building inclusion proof failed",
			Err:      err,
		}
	}

	proof := &interfaces.MerkleProof{
		EntryID:   entryID,
		LeafHash:  hex.EncodeToString(leaves[index]),
		Path:      make([]string, len(path)),
		PathSides: sides,
		Root:      c.merkleRoot,
	}
	for i, sibling := range path {
		proof.Path[i] = hex.EncodeToString(sibling)
	}
	return proof, nil
}

// VerifyMerkleProof checks a proof against the chain's current root. Proofs
// generated before later appends carry a stale root and fail.
func (c *Chain) VerifyMerkleProof(proof *interfaces.MerkleProof) bool {
	if proof == nil {
		return false
	}

	c.mu.RLock()
	root := c.merkleRoot
	c.mu.RUnlock()

	if proof.Root != root {
		return false
	}
	valid, err := VerifyProof(proof)
	return err == nil && valid
}

// VerifyProof checks a proof's internal consistency: the leaf hash folded up
// the sibling path must reproduce the proof's root. Callers holding a trusted
// root must additionally compare it against proof.Root.
func VerifyProof(proof *interfaces.MerkleProof) (bool, error) {
	if proof == nil {
		return false, ErrInvalidProof
	}
	leaf, err := hex.DecodeString(proof.LeafHash)
	if err != nil {
		return false, fmt.Errorf("malformed leaf hash: %w", err)
	}
	root, err := hex.DecodeString(proof.Root)
	if err != nil {
		return false, fmt.Errorf("malformed root: %w", err)
	}
	path := make([][]byte, len(proof.Path))
	for i, sibling := range proof.Path {
		path[i], err = hex.DecodeString(sibling)
		if err != nil {
			return false, fmt.Errorf("malformed proof path element %d: %w", i, err)
		}
	}
	return VerifyMerkleInclusion(leaf, path, proof.PathSides, root)
}

// Export returns a deep copy of the chain for backup or transfer.
func (c *Chain) Export() *interfaces.AuditLogChain {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &interfaces.AuditLogChain{
		WalletID:   c.walletID,
		Entries:    cloneEntries(c.entries),
		Count:      len(c.entries),
		MerkleRoot: c.merkleRoot,
		ChainHash:  c.chainHash,
		UpdatedAt:  c.updatedAt,
	}
	if c.firstAt != nil {
		first := *c.firstAt
		out.FirstAt = &first
	}
	if c.lastAt != nil {
		last := *c.lastAt
		out.LastAt = &last
	}
	return out
}

// WalletID returns the wallet this chain belongs to.
func (c *Chain) WalletID() string {
	return c.walletID
}

// Count returns the number of entries.
func (c *Chain) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MerkleRoot returns the current root, empty for an empty chain.
func (c *Chain) MerkleRoot() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.merkleRoot
}

// ChainHash returns the current chain summary hash.
func (c *Chain) ChainHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainHash
}

// Entries returns a copy of all entries in order.
func (c *Chain) Entries() []interfaces.AuditLogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneEntries(c.entries)
}

// signingContent is the canonical encoding an entry's signature covers:
// every field except the signature itself and the merkle root stamp, which
// changes on every append.
func signingContent(entry *interfaces.AuditLogEntry) ([]byte, error) {
	return canonicalEntry(entry, "signature", "merkle_root")
}

// entryContentHash is the merkle leaf for an entry: SHA-256 over the
// canonical encoding including the signature but excluding the root stamp.
func entryContentHash(entry *interfaces.AuditLogEntry) ([]byte, error) {
	content, err := canonicalEntry(entry, "merkle_root")
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(content)
	return digest[:], nil
}

func canonicalEntry(entry *interfaces.AuditLogEntry, omit ...string) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("serializing audit entry: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decoding audit entry: %w", err)
	}
	for _, field := range omit {
		delete(obj, field)
	}
	return CanonicalizeValue(obj)
}

func computeChainHash(count int, lastEntryID, lastSignature, merkleRoot string) (string, error) {
	summary := map[string]any{
		"count":          count,
		"last_entry_id":  lastEntryID,
		"last_signature": lastSignature,
		"merkle_root":    merkleRoot,
	}
	canonical, err := CanonicalizeValue(summary)
	if err != nil {
		return "", fmt.Errorf("canonicalizing chain summary: %w", err)
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

func cloneEntries(entries []interfaces.AuditLogEntry) []interfaces.AuditLogEntry {
	out := make([]interfaces.AuditLogEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if entries[i].Data != nil {
			out[i].Data = append(json.RawMessage(nil), entries[i].Data...)
		}
		if entries[i].Context != nil {
			clientCtx := *entries[i].Context
			out[i].Context = &clientCtx
		}
	}
	return out
}
