package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

func mustLocation(t *testing.T, uri string) interfaces.StorageBackendLocation {
	t.Helper()
	loc, err := interfaces.NewStorageBackendLocation(uri)
	require.NoError(t, err, "Failed to parse location URI %s", uri)
	return loc
}

func TestStorageBackendFactory_FileURI(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())
	dir := t.TempDir()

	backend, err := factory.StorageBackendFor(mustLocation(t, "file://"+dir))
	require.NoError(t, err, "Failed to create file backend")

	ctx := context.Background()
	data := []byte("manifest payload")

	id, err := backend.Store(ctx, data, interfaces.ManifestType)
	require.NoError(t, err, "Failed to store through factory-created backend")

	fetched, err := backend.Fetch(ctx, id, interfaces.ManifestType)
	require.NoError(t, err, "Failed to fetch through factory-created backend")
	assert.Equal(t, data, fetched)
}

func TestStorageBackendFactory_MemURI(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	backend, err := factory.StorageBackendFor(mustLocation(t, "mem://replica"))
	require.NoError(t, err, "Failed to create memory backend")

	assert.Equal(t, "mem-replica", backend.Name())
	assert.Equal(t, "mem://replica", backend.LocationURI())
}

func TestStorageBackendFactory_S3URI(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	backend, err := factory.StorageBackendFor(mustLocation(t,
		"s3://AKIAEXAMPLE:secretkey@wallet-replicas/prod/?region=eu-west-1&endpoint=minio.internal:9000"))
	require.NoError(t, err, "Failed to create S3 backend")

	assert.Equal(t, "s3-wallet-replicas", backend.Name())
	assert.Contains(t, backend.LocationURI(), "s3://AKIAEXAMPLE:***@wallet-replicas")
}

func TestStorageBackendFactory_IPFSURI(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	backend, err := factory.StorageBackendFor(mustLocation(t, "ipfs://127.0.0.1:5001/?timeout=10s"))
	require.NoError(t, err, "Failed to create IPFS backend")

	assert.Equal(t, "ipfs-127.0.0.1-5001", backend.Name())

	_, err = factory.StorageBackendFor(mustLocation(t, "ipfs://127.0.0.1:5001/?timeout=bogus"))
	assert.Error(t, err, "Invalid timeout should be rejected")
}

func TestStorageBackendFactory_VaultURI(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	backend, err := factory.StorageBackendFor(mustLocation(t,
		"vault://vault.example.com:8200/secret/wallets?token=dev-token"))
	require.NoError(t, err, "Failed to create Vault backend")

	assert.Equal(t, "vault-secret-wallets", backend.Name())
	assert.Equal(t, "vault://vault.example.com:8200/secret/wallets", backend.LocationURI())

	_, err = factory.StorageBackendFor(mustLocation(t, "vault://vault.example.com:8200/?token=dev-token"))
	assert.Error(t, err, "Vault URI without a mount path should be rejected")
}

func TestStorageBackendFactory_GitHubURI(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	backend, err := factory.StorageBackendFor(mustLocation(t, "github://vaultmesh/audit-mirror"))
	require.NoError(t, err, "Failed to create GitHub backend")

	assert.Equal(t, "github-vaultmesh-audit-mirror", backend.Name())
	assert.Equal(t, "github://vaultmesh/audit-mirror", backend.LocationURI())

	_, err = factory.StorageBackendFor(mustLocation(t, "github://owner-only"))
	assert.Error(t, err, "GitHub URI without a repo should be rejected")
}

func TestStorageBackendFactory_UnsupportedScheme(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	_, err := factory.StorageBackendFor(interfaces.StorageBackendLocation{Scheme: "redis", Host: "localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported backend scheme")
}

func TestStorageBackendFactory_CreateMultiBackend(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	locations := []interfaces.StorageBackendLocation{
		mustLocation(t, "mem://primary"),
		mustLocation(t, "file://"+t.TempDir()),
	}

	backend, err := factory.CreateMultiBackend(locations)
	require.NoError(t, err, "Failed to create multi backend")
	assert.Equal(t, "multi-storage", backend.Name())
	assert.Contains(t, backend.LocationURI(), "mem://primary")

	ctx := context.Background()
	data := []byte("replicated snapshot")

	id, err := backend.Store(ctx, data, interfaces.AuditType)
	require.NoError(t, err, "Failed to store through multi backend")

	fetched, err := backend.Fetch(ctx, id, interfaces.AuditType)
	require.NoError(t, err, "Failed to fetch through multi backend")
	assert.Equal(t, data, fetched)
}

func TestStorageBackendFactory_CreateMultiBackend_SkipsInvalid(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	locations := []interfaces.StorageBackendLocation{
		{Scheme: "bogus"},
		mustLocation(t, "mem://survivor"),
	}

	backend, err := factory.CreateMultiBackend(locations)
	require.NoError(t, err, "One valid location should be enough")
	assert.Contains(t, backend.LocationURI(), "mem://survivor")

	_, err = factory.CreateMultiBackend([]interfaces.StorageBackendLocation{{Scheme: "bogus"}})
	require.Error(t, err, "All-invalid locations should fail")
}
