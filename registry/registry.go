// Package registry maintains the guardian set of a wallet: every guardian is
// bound to exactly one share index and one public key, and share indices form
// a dense 1..N bijection with guardians.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

// Registry is the in-memory guardian index for a single wallet. Lookup by
// guardian id, share index or email; all mutation preserves the share-index
// bijection. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	walletID  string
	guardians map[string]*interfaces.Guardian
	byIndex   map[int]string
	byEmail   map[string]string
}

// New creates an empty registry for a wallet.
func New(walletID string) *Registry {
	return &Registry{
		walletID:  walletID,
		guardians: make(map[string]*interfaces.Guardian),
		byIndex:   make(map[int]string),
		byEmail:   make(map[string]string),
	}
}

// FromGuardians rebuilds a registry from persisted guardian records,
// validating every record on the way in.
func FromGuardians(walletID string, guardians []interfaces.Guardian) (*Registry, error) {
	registry := New(walletID)
	for i := range guardians {
		if err := registry.Add(&guardians[i]); err != nil {
			return nil, fmt.Errorf("restoring guardian %d: %w", i, err)
		}
	}
	return registry, nil
}

// Add validates and inserts a guardian. The guardian's id, email, share index
// and public key must all be unique within the wallet.
func (r *Registry) Add(guardian *interfaces.Guardian) error {
	if guardian == nil {
		return interfaces.NewValidationError("guardian", "guardian is required")
	}
	if guardian.ID == "" {
		return interfaces.NewValidationError("guardian.id", "guardian id is required")
	}
	if guardian.WalletID != r.walletID {
		return interfaces.NewValidationError("guardian.wallet_id",
			fmt.Sprintf("guardian wallet %q does not match registry wallet %q", guardian.WalletID, r.walletID))
	}
	if guardian.Name == "" {
		return interfaces.NewValidationError("guardian.name", "guardian name is required")
	}
	if guardian.Email == "" {
		return interfaces.NewValidationError("guardian.email", "guardian email is required")
	}
	if guardian.ShareIndex < 1 {
		return interfaces.NewValidationError("guardian.share_index",
			fmt.Sprintf("share index %d out of range", guardian.ShareIndex))
	}
	if !guardian.Status.Valid() {
		return interfaces.NewValidationError("guardian.status",
			fmt.Sprintf("unknown guardian status %q", guardian.Status))
	}
	if err := guardian.PublicKey.Validate(); err != nil {
		return &interfaces.ValidationError{
			Code:  interfaces.CodeInvalidInput,
			Field: "guardian.public_key",
			Msg:   "invalid guardian public key",
			Err:   err,
		}
	}

	email := normalizeEmail(guardian.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.guardians[guardian.ID]; exists {
		return interfaces.NewValidationError("guardian.id",
			fmt.Sprintf("guardian %q already registered", guardian.ID))
	}
	if holder, taken := r.byIndex[guardian.ShareIndex]; taken {
		return interfaces.NewValidationError("guardian.share_index",
			fmt.Sprintf("share index %d already held by guardian %q", guardian.ShareIndex, holder))
	}
	if holder, taken := r.byEmail[email]; taken {
		return interfaces.NewValidationError("guardian.email",
			fmt.Sprintf("email already used by guardian %q", holder))
	}

	stored := *guardian
	r.guardians[stored.ID] = &stored
	r.byIndex[stored.ShareIndex] = stored.ID
	r.byEmail[email] = stored.ID
	return nil
}

// Get returns the guardian with the given id.
func (r *Registry) Get(guardianID string) (*interfaces.Guardian, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(guardianID)
}

// GetByIndex returns the guardian holding a share index.
func (r *Registry) GetByIndex(shareIndex int) (*interfaces.Guardian, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	guardianID, found := r.byIndex[shareIndex]
	if !found {
		return nil, &interfaces.GuardianError{
			Code: interfaces.CodeGuardianNotFound,
			Msg:  fmt.Sprintf("no guardian holds share index %d", shareIndex),
		}
	}
	return r.lookup(guardianID)
}

// GetByEmail returns the guardian registered under an email address.
func (r *Registry) GetByEmail(email string) (*interfaces.Guardian, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	guardianID, found := r.byEmail[normalizeEmail(email)]
	if !found {
		return nil, &interfaces.GuardianError{
			Code: interfaces.CodeGuardianNotFound,
			Msg:  fmt.Sprintf("no guardian registered for %q", email),
		}
	}
	return r.lookup(guardianID)
}

// RequireActive returns the guardian only if its status is active.
func (r *Registry) RequireActive(guardianID string) (*interfaces.Guardian, error) {
	guardian, err := r.Get(guardianID)
	if err != nil {
		return nil, err
	}
	if guardian.Status != interfaces.GuardianActive {
		return nil, &interfaces.GuardianError{
			Code:       interfaces.CodeGuardianRevoked,
			GuardianID: guardianID,
			Msg:        fmt.Sprintf("guardian is %s, not active", guardian.Status),
		}
	}
	return guardian, nil
}

// Activate transitions an invited guardian to active.
func (r *Registry) Activate(guardianID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	guardian, err := r.lookupStored(guardianID)
	if err != nil {
		return err
	}
	if guardian.Status == interfaces.GuardianRevoked {
		return &interfaces.GuardianError{
			Code:       interfaces.CodeGuardianRevoked,
			GuardianID: guardianID,
			Msg:        "revoked guardians cannot be reactivated",
		}
	}
	guardian.Status = interfaces.GuardianActive
	return nil
}

// Revoke marks a guardian revoked. The guardian keeps its share index; the
// caller is responsible for checking the active count stays at or above the
// wallet threshold.
func (r *Registry) Revoke(guardianID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	guardian, err := r.lookupStored(guardianID)
	if err != nil {
		return err
	}
	guardian.Status = interfaces.GuardianRevoked
	return nil
}

// List returns all guardians ordered by share index.
func (r *Registry) List() []interfaces.Guardian {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]interfaces.Guardian, 0, len(r.guardians))
	for _, guardian := range r.guardians {
		out = append(out, *guardian)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShareIndex < out[j].ShareIndex })
	return out
}

// ActiveCount returns the number of guardians able to sign recoveries.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, guardian := range r.guardians {
		if guardian.Status == interfaces.GuardianActive {
			count++
		}
	}
	return count
}

// Len returns the total number of guardians regardless of status.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.guardians)
}

// VerifyBijection checks that share indices are exactly {1..total} with one
// guardian each.
func (r *Registry) VerifyBijection(total int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.guardians) != total {
		return interfaces.NewValidationError("guardians",
			fmt.Sprintf("have %d guardians, expected %d", len(r.guardians), total))
	}
	for index := 1; index <= total; index++ {
		if _, held := r.byIndex[index]; !held {
			return interfaces.NewValidationError("guardians",
				fmt.Sprintf("share index %d has no guardian", index))
		}
	}
	return nil
}

// PublicKeyFor resolves a guardian id to its public key. Satisfies the audit
// chain's KeyResolver for guardian-signed entries.
func (r *Registry) PublicKeyFor(actorID string) (interfaces.AppPubkey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	guardian, found := r.guardians[actorID]
	if !found {
		return nil, false
	}
	return guardian.PublicKey, true
}

func (r *Registry) lookup(guardianID string) (*interfaces.Guardian, error) {
	guardian, err := r.lookupStored(guardianID)
	if err != nil {
		return nil, err
	}
	out := *guardian
	return &out, nil
}

func (r *Registry) lookupStored(guardianID string) (*interfaces.Guardian, error) {
	guardian, found := r.guardians[guardianID]
	if !found {
		return nil, &interfaces.GuardianError{
			Code:       interfaces.CodeGuardianNotFound,
			GuardianID: guardianID,
			Msg:        "guardian not found",
		}
	}
	return guardian, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
