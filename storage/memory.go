package storage

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

type memoryKey struct {
	id          interfaces.ContentID
	contentType interfaces.ContentType
}

// MemoryBackend implements an in-process storage backend. It is used in
// tests and for single-process deployments that do not need durability.
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[memoryKey][]byte
	name  string
}

// NewMemoryBackend creates an empty in-memory storage backend. The name
// distinguishes multiple instances in multi-backend configurations.
func NewMemoryBackend(name string) *MemoryBackend {
	if name == "" {
		name = "default"
	}
	return &MemoryBackend{
		blobs: make(map[memoryKey][]byte),
		name:  name,
	}
}

// Fetch retrieves a blob by its content identifier and artifact kind.
// Returns ErrContentNotFound if no blob was stored under the identifier.
func (b *MemoryBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.blobs[memoryKey{id: id, contentType: contentType}]
	if !ok {
		return nil, interfaces.ErrContentNotFound
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Store saves a blob and returns its content identifier, the SHA-256 hash of
// the data.
func (b *MemoryBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	hash := sha256.Sum256(data)
	id := interfaces.ContentID(hash)

	stored := make([]byte, len(data))
	copy(stored, data)

	b.mu.Lock()
	b.blobs[memoryKey{id: id, contentType: contentType}] = stored
	b.mu.Unlock()

	return id, nil
}

// Available always reports true for an in-memory backend.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *MemoryBackend) Name() string {
	return "mem-" + b.name
}

// LocationURI returns the URI that identifies this storage backend.
func (b *MemoryBackend) LocationURI() string {
	return "mem://" + b.name
}

// Len reports the number of stored blobs across all artifact kinds.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
