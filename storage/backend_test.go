package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackend_RoundTrip(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err, "Failed to create file backend")

	ctx := context.Background()
	assert.True(t, backend.Available(ctx), "File backend should be available")

	data := []byte(`{"wallet_name":"family-vault","threshold":3}`)

	id, err := backend.Store(ctx, data, interfaces.ManifestType)
	require.NoError(t, err, "Failed to store content")
	assert.Equal(t, interfaces.ComputeID(data), id, "Content ID should be the SHA-256 of the data")

	fetched, err := backend.Fetch(ctx, id, interfaces.ManifestType)
	require.NoError(t, err, "Failed to fetch content")
	assert.Equal(t, data, fetched)

	// Artifact kinds are separate namespaces, the same ID under a different
	// kind must not resolve.
	_, err = backend.Fetch(ctx, id, interfaces.AuditType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = backend.Fetch(ctx, interfaces.ComputeID([]byte("missing")), interfaces.ManifestType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFileBackend_AllContentTypes(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err, "Failed to create file backend")

	ctx := context.Background()
	data := []byte("shared payload")

	for _, ct := range []interfaces.ContentType{
		interfaces.ManifestType,
		interfaces.ShareType,
		interfaces.AttemptType,
		interfaces.AuditType,
	} {
		id, err := backend.Store(ctx, data, ct)
		require.NoError(t, err, "Failed to store %s content", ct.String())

		fetched, err := backend.Fetch(ctx, id, ct)
		require.NoError(t, err, "Failed to fetch %s content", ct.String())
		assert.Equal(t, data, fetched)
	}
}

func TestFileBackend_Identity(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, testLogger())
	require.NoError(t, err, "Failed to create file backend")

	assert.Contains(t, backend.Name(), "file-")
	assert.Equal(t, "file://"+dir, backend.LocationURI())
}

func TestMemoryBackend_RoundTrip(t *testing.T) {
	backend := NewMemoryBackend("test")

	ctx := context.Background()
	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "mem-test", backend.Name())
	assert.Equal(t, "mem://test", backend.LocationURI())

	data := []byte("encrypted guardian share")

	id, err := backend.Store(ctx, data, interfaces.ShareType)
	require.NoError(t, err, "Failed to store content")
	assert.Equal(t, interfaces.ComputeID(data), id)
	assert.Equal(t, 1, backend.Len())

	fetched, err := backend.Fetch(ctx, id, interfaces.ShareType)
	require.NoError(t, err, "Failed to fetch content")
	assert.Equal(t, data, fetched)

	_, err = backend.Fetch(ctx, id, interfaces.ManifestType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound, "Kinds should not share a namespace")

	// The backend must hand out copies, mutating a fetched blob must not
	// corrupt the stored one.
	fetched[0] ^= 0xff
	refetched, err := backend.Fetch(ctx, id, interfaces.ShareType)
	require.NoError(t, err)
	assert.Equal(t, data, refetched)
}
