package client

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/secretshare"
	"github.com/vaultmesh/recovery-backend/storage"
	"github.com/vaultmesh/recovery-backend/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGuardians() []interfaces.GuardianInfo {
	return []interfaces.GuardianInfo{
		{Name: "Alice Chen", Email: "alice@example.com"},
		{Name: "Bob Osei", Email: "bob@example.com"},
		{Name: "Carol Diaz", Email: "carol@example.com"},
	}
}

// stubBackend satisfies interfaces.StorageBackend but never becomes
// available, to exercise the probe failure path.
type stubBackend struct{ probes int }

func (b *stubBackend) Fetch(ctx context.Context, id interfaces.ContentID, ct interfaces.ContentType) ([]byte, error) {
	return nil, interfaces.ErrContentNotFound
}

func (b *stubBackend) Store(ctx context.Context, data []byte, ct interfaces.ContentType) (interfaces.ContentID, error) {
	return interfaces.ContentID{}, errors.New("stub backend is write-only unavailable")
}

func (b *stubBackend) Available(ctx context.Context) bool {
	b.probes++
	return false
}

func (b *stubBackend) Name() string        { return "stub" }
func (b *stubBackend) LocationURI() string { return "stub://" }

type stubFactory struct{ backend interfaces.StorageBackend }

func (f *stubFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	return f.backend, nil
}

func (f *stubFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	return f.backend, nil
}

func (f *stubFactory) WithTLSAuth(func() (tls.Certificate, error)) interfaces.StorageBackendFactory {
	return f
}

type stubResolver struct {
	endpoints []string
	err       error
}

func (r *stubResolver) LookupEndpoints(domain string) ([]string, error) {
	return r.endpoints, r.err
}

func TestNew_ValidatesBounds(t *testing.T) {
	_, err := New(Config{OperationTimeout: -1, Log: testLogger()})
	require.Error(t, err)
	assert.Equal(t, interfaces.CodeConfigInvalid, interfaces.ErrorCode(err))

	_, err = New(Config{ProbeRetries: -1, Log: testLogger()})
	require.Error(t, err)
	assert.Equal(t, interfaces.CodeConfigInvalid, interfaces.ErrorCode(err))

	_, err = New(Config{SyncBackends: []string{"mem://x"}, Log: testLogger()})
	require.Error(t, err, "Sync backends without a factory must be rejected")
	assert.Equal(t, interfaces.CodeConfigInvalid, interfaces.ErrorCode(err))

	_, err = New(Config{
		StorageFactory: storage.NewStorageBackendFactory(testLogger()),
		SyncBackends:   []string{"not a uri"},
		Log:            testLogger(),
	})
	require.Error(t, err)
	assert.Equal(t, interfaces.CodeConfigInvalid, interfaces.ErrorCode(err))
}

func TestNew_ProbesBackends(t *testing.T) {
	backend := &stubBackend{}
	_, err := New(Config{
		StorageFactory: &stubFactory{backend: backend},
		SyncBackends:   []string{"stub://anywhere"},
		ProbeRetries:   1,
		Log:            testLogger(),
	})
	require.Error(t, err)
	assert.Equal(t, interfaces.CodeStorageUnavailable, interfaces.ErrorCode(err))
	assert.Equal(t, 2, backend.probes, "Expected the initial probe plus one retry")
}

func TestNew_ResolvesServiceDomain(t *testing.T) {
	c, err := New(Config{
		ServiceDomain: "_recovery._tcp.example.com",
		Resolver:      &stubResolver{endpoints: []string{"vault-1.example.com:8443"}},
		Log:           testLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vault-1.example.com:8443"}, c.Endpoints())

	_, err = New(Config{
		ServiceDomain: "_recovery._tcp.example.com",
		Resolver:      &stubResolver{err: errors.New("no records")},
		Log:           testLogger(),
	})
	require.Error(t, err)
	assert.Equal(t, interfaces.CodeConfigInvalid, interfaces.ErrorCode(err))
}

func TestClient_WalletLifecycle(t *testing.T) {
	c, err := New(Config{
		StorageFactory: storage.NewStorageBackendFactory(testLogger()),
		SyncBackends:   []string{"mem://primary", "mem://replica"},
		Log:            testLogger(),
	})
	require.NoError(t, err, "Failed to create client")

	ctx := context.Background()
	seed := []byte("facade-test-master-seed-11aa22bb")
	ownerCredential := []byte("owner-facade-passphrase")

	created, err := c.CreateWallet(ctx, wallet.CreateWalletRequest{
		Name:            "Facade Vault",
		Secret:          seed,
		Threshold:       2,
		Guardians:       testGuardians(),
		OwnerCredential: ownerCredential,
	})
	require.NoError(t, err, "Failed to create wallet")
	walletID := created.Manifest.Policy.WalletID

	manifest, err := c.LoadWallet(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, "Facade Vault", manifest.Name)

	status, err := c.Status(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalGuardians)

	guardians := created.Manifest.Guardians
	firstKey := created.GuardianKeys[guardians[0].ID]
	secondKey := created.GuardianKeys[guardians[1].ID]

	attempt, err := c.InitiateRecovery(ctx, wallet.InitiateRecoveryRequest{
		WalletID:        walletID,
		GuardianID:      guardians[0].ID,
		Reason:          "keys_lost",
		NewOwnerContact: "heir@example.com",
	})
	require.NoError(t, err, "Failed to initiate recovery")

	_, err = c.SignRecovery(ctx, wallet.SignRecoveryRequest{
		WalletID:           walletID,
		RecoveryID:         attempt.ID,
		GuardianID:         guardians[0].ID,
		GuardianCredential: firstKey.PrivateKey,
		VerificationMethod: interfaces.VerificationVideo,
	})
	require.NoError(t, err, "First signature failed")

	_, err = c.SignRecovery(ctx, wallet.SignRecoveryRequest{
		WalletID:           walletID,
		RecoveryID:         attempt.ID,
		GuardianID:         guardians[1].ID,
		GuardianCredential: secondKey.PrivateKey,
		VerificationMethod: interfaces.VerificationInPerson,
	})
	require.NoError(t, err, "Second signature failed")

	shares := make([]secretshare.Share, 0, 2)
	for _, guardian := range guardians[:2] {
		var encrypted interfaces.GuardianShare
		for _, share := range created.Shares {
			if share.GuardianID == guardian.ID {
				encrypted = share
				break
			}
		}
		plaintext, err := c.DecryptForGuardian(ctx, created.GuardianKeys[guardian.ID].PrivateKey, encrypted.EncryptedShare)
		require.NoError(t, err, "Failed to decrypt share for %s", guardian.Name)
		shares = append(shares, secretshare.Share{Index: encrypted.ShareIndex, Value: plaintext})
	}

	recovered, err := c.ReconstructSeed(ctx, wallet.ReconstructSeedRequest{
		WalletID:        walletID,
		RecoveryID:      attempt.ID,
		Shares:          shares,
		ActorID:         guardians[0].ID,
		ActorCredential: firstKey.PrivateKey,
	})
	require.NoError(t, err, "Failed to reconstruct seed")
	assert.Equal(t, seed, recovered)

	chain, err := c.AuditLogChain(ctx, walletID)
	require.NoError(t, err)
	assert.Greater(t, chain.Count, 5)

	verification, err := c.VerifyAuditLogChain(ctx, walletID)
	require.NoError(t, err)
	assert.True(t, verification.IsValid, "Audit chain failed verification: %v", verification.Errors)

	reports, err := c.SyncWallet(ctx, walletID, ownerCredential)
	require.NoError(t, err, "Failed to sync wallet")
	require.Len(t, reports, 2)
	assert.Equal(t, "mem-primary", reports[0].Backend)
	assert.Equal(t, "mem-replica", reports[1].Backend)
}

func TestClient_SyncWithoutBackends(t *testing.T) {
	c, err := New(Config{Log: testLogger()})
	require.NoError(t, err)

	_, err = c.SyncWallet(context.Background(), "w", []byte("cred"))
	require.Error(t, err)
	assert.Equal(t, interfaces.CodeConfigInvalid, interfaces.ErrorCode(err))
}

func TestClient_CryptoOperations(t *testing.T) {
	c, err := New(Config{Log: testLogger()})
	require.NoError(t, err)

	ctx := context.Background()
	pair, err := c.GenerateGuardianKeyPair(ctx)
	require.NoError(t, err, "Failed to generate key pair")
	assert.NotEmpty(t, pair.KeyID)

	plaintext := []byte("ciphertext round trip payload")
	sealed, err := c.EncryptForGuardian(ctx, pair.PublicKey, plaintext)
	require.NoError(t, err)
	opened, err := c.DecryptForGuardian(ctx, pair.PrivateKey, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	payload := []byte("signature round trip payload")
	signature, err := c.SignData(ctx, pair.PrivateKey, payload)
	require.NoError(t, err)
	require.NoError(t, c.VerifySignature(ctx, pair.PublicKey, payload, signature))

	err = c.VerifySignature(ctx, pair.PublicKey, append(payload, '!'), signature)
	require.Error(t, err, "Tampered payload must not verify")
}

func TestClient_TypedErrorsPassThrough(t *testing.T) {
	c, err := New(Config{Log: testLogger()})
	require.NoError(t, err)

	_, err = c.LoadWallet(context.Background(), "missing-wallet")
	require.Error(t, err)
	assert.Equal(t, interfaces.CodeWalletNotFound, interfaces.ErrorCode(err))

	_, err = c.CreateWallet(context.Background(), wallet.CreateWalletRequest{
		Name:            "Bad Vault",
		Secret:          []byte("facade-test-master-seed-33cc44dd"),
		Threshold:       5,
		Guardians:       testGuardians(),
		OwnerCredential: []byte("owner"),
	})
	require.Error(t, err, "Threshold above guardian count must be rejected")
	assert.Equal(t, interfaces.CodeInvalidInput, interfaces.ErrorCode(err))
}
