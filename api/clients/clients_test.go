package clients

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmesh/recovery-backend/api/recoveryhandler"
	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/storage"
	"github.com/vaultmesh/recovery-backend/wallet"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := wallet.NewManager(wallet.Config{
		Store:  wallet.NewMemoryStore(),
		Crypto: cryptoutils.NewProvider(),
		Log:    log,
	})
	require.NoError(t, err, "Failed to create wallet manager")

	handler, err := recoveryhandler.New(recoveryhandler.Config{
		Manager:        manager,
		StorageFactory: storage.NewStorageBackendFactory(log),
		Log:            log,
	})
	require.NoError(t, err, "Failed to create handler")

	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestClients_FullRecoveryFlow drives the whole protocol through the HTTP
// clients: wallet setup, guardian approvals, share submission, seed
// retrieval and the owner's maintenance operations.
func TestClients_FullRecoveryFlow(t *testing.T) {
	srv := newTestServer(t)
	seed := []byte("client-test-master-seed-55aa55aa")

	owner := NewOwnerClient(srv.URL, "owner-roundtrip-passphrase")
	created, err := owner.CreateWallet("Roundtrip Vault", seed, []interfaces.GuardianInfo{
		{Name: "Alice Chen", Email: "alice@example.com"},
		{Name: "Bob Osei", Email: "bob@example.com"},
		{Name: "Carol Diaz", Email: "carol@example.com"},
	}, 2)
	require.NoError(t, err, "Failed to create wallet")
	require.Len(t, created.GuardianCredentials, 3)

	guardians := make([]*GuardianClient, 0, 3)
	for _, cred := range created.GuardianCredentials {
		guardians = append(guardians, NewGuardianClient(srv.URL, cred.GuardianID, []byte(cred.PrivateKey)))
	}

	attempt, err := guardians[0].InitiateRecovery(created.WalletID, "keys_lost", "heir@example.com")
	require.NoError(t, err, "Failed to initiate recovery")
	assert.Equal(t, interfaces.RecoveryPending, attempt.Status)

	first, err := guardians[0].SignRecovery(created.WalletID, attempt.ID, interfaces.VerificationVideo, "verified on call")
	require.NoError(t, err)
	assert.Equal(t, interfaces.RecoveryCollecting, first.Attempt.Status)

	second, err := guardians[1].SignRecovery(created.WalletID, attempt.ID, interfaces.VerificationInPerson, "")
	require.NoError(t, err)
	assert.Equal(t, interfaces.RecoveryCompleted, second.Attempt.Status)

	completed, err := guardians[2].WaitForCompletion(created.WalletID, attempt.ID, time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, completed.CurrentSignatures)

	progress, err := guardians[0].SubmitOwnShare(created.WalletID, attempt.ID)
	require.NoError(t, err, "Failed to submit first share")
	assert.False(t, progress.Complete)

	progress, err = guardians[1].SubmitOwnShare(created.WalletID, attempt.ID)
	require.NoError(t, err, "Failed to submit second share")
	assert.True(t, progress.Complete)

	fetched, err := guardians[2].FetchSeed(created.WalletID, attempt.ID)
	require.NoError(t, err, "Failed to fetch seed")
	assert.Equal(t, seed, fetched)

	require.NoError(t, guardians[0].DestroyCeremony(created.WalletID, attempt.ID))
	_, err = guardians[0].FetchSeed(created.WalletID, attempt.ID)
	require.Error(t, err)
	assert.ErrorContains(t, err, "404")

	verification, err := owner.VerifyAuditChain(created.WalletID)
	require.NoError(t, err)
	assert.True(t, verification.IsValid)

	report, err := owner.SyncWallet(created.WalletID, "mem://client-replica")
	require.NoError(t, err, "Failed to sync wallet")
	assert.True(t, report.Audited)
	assert.Equal(t, "mem-client-replica", report.Backend)

	entry, err := owner.RecordProofOfLife(created.WalletID, interfaces.VerificationEmail)
	require.NoError(t, err)
	assert.Equal(t, interfaces.AuditProofOfLife, entry.EventType)

	require.NoError(t, owner.RevokeGuardian(created.WalletID, guardians[2].GuardianID(), "relocated abroad"))
	status, err := owner.Status(created.WalletID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.RevokedGuardians)

	chain, err := owner.AuditChain(created.WalletID)
	require.NoError(t, err)
	assert.Greater(t, chain.Count, 4)
}

func TestGuardianClient_DecryptShare_RejectsTamper(t *testing.T) {
	srv := newTestServer(t)
	seed := []byte("client-test-master-seed-66bb66bb")

	owner := NewOwnerClient(srv.URL, "owner-tamper-passphrase")
	created, err := owner.CreateWallet("Tamper Vault", seed, []interfaces.GuardianInfo{
		{Name: "Alice Chen", Email: "alice@example.com"},
		{Name: "Bob Osei", Email: "bob@example.com"},
	}, 2)
	require.NoError(t, err)

	cred := created.GuardianCredentials[0]
	client := NewGuardianClient(srv.URL, cred.GuardianID, []byte(cred.PrivateKey))

	share, err := client.FetchEncryptedShare(created.WalletID)
	require.NoError(t, err)

	share.CiphertextHash = "0000" + share.CiphertextHash[4:]
	_, err = client.DecryptShare(share)
	require.Error(t, err)
	assert.ErrorContains(t, err, "ciphertext hash mismatch")
}

func TestGuardianClient_UnauthenticatedRejected(t *testing.T) {
	srv := newTestServer(t)
	seed := []byte("client-test-master-seed-77cc77cc")

	owner := NewOwnerClient(srv.URL, "owner-auth-passphrase")
	created, err := owner.CreateWallet("Auth Vault", seed, []interfaces.GuardianInfo{
		{Name: "Alice Chen", Email: "alice@example.com"},
		{Name: "Bob Osei", Email: "bob@example.com"},
	}, 2)
	require.NoError(t, err)

	// A key that does not belong to any guardian of the wallet.
	stranger, err := cryptoutils.NewKeyPair()
	require.NoError(t, err)
	client := NewGuardianClient(srv.URL, created.GuardianCredentials[0].GuardianID, stranger.PrivateKey)

	_, err = client.FetchEncryptedShare(created.WalletID)
	require.Error(t, err)
	assert.ErrorContains(t, err, "401")

	// The open status endpoint still works without guardian auth.
	status, err := client.Status(created.WalletID)
	require.NoError(t, err)
	assert.Equal(t, created.WalletID, status.WalletID)
}
