package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultmesh/recovery-backend/cryptoutils"
	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/wallet"
)

type fakeBackend struct {
	mu      sync.Mutex
	sent    []*types.Transaction
	sendErr error
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1337), nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func newTestCheckpointer(t *testing.T, backend Backend, source ChainSource) *Checkpointer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err, "Failed to generate signing key")

	c, err := New(Config{
		Backend:    backend,
		PrivateKey: key,
		To:         common.HexToAddress("0x000000000000000000000000000000000000c0de"),
		Source:     source,
		Interval:   10 * time.Millisecond,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err, "Failed to create checkpointer")
	return c
}

func TestNew_Validation(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0x000000000000000000000000000000000000c0de")

	_, err = New(Config{Backend: &fakeBackend{}, To: to})
	require.Error(t, err, "Missing key must be rejected")

	_, err = New(Config{Backend: &fakeBackend{}, PrivateKey: key})
	require.Error(t, err, "Missing checkpoint address must be rejected")

	_, err = New(Config{PrivateKey: key, To: to})
	require.Error(t, err, "Missing backend and RPC URL must be rejected")
}

func TestCheckpointer_Anchor(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCheckpointer(t, backend, nil)

	checkpoint := Checkpoint{
		WalletID:   "wallet-1",
		EntryCount: 7,
		MerkleRoot: "ab12cd34",
		AnchoredAt: time.Now().Unix(),
	}
	receipt := c.Anchor(context.Background(), checkpoint)

	assert.Equal(t, StatusAnchored, receipt.Status)
	assert.NotEmpty(t, receipt.TxHash)
	require.Equal(t, 1, backend.sentCount())

	tx := backend.sent[0]
	assert.Equal(t, c.to, *tx.To())

	var decoded Checkpoint
	require.NoError(t, json.Unmarshal(tx.Data(), &decoded), "Calldata must decode back to the checkpoint")
	assert.Equal(t, checkpoint, decoded)

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), tx)
	require.NoError(t, err)
	assert.Equal(t, c.From(), sender, "Transaction must be signed by the checkpointer key")
}

func TestCheckpointer_SkipsUnchangedRoot(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCheckpointer(t, backend, nil)
	ctx := context.Background()

	first := c.Anchor(ctx, Checkpoint{WalletID: "wallet-1", EntryCount: 3, MerkleRoot: "root-a"})
	assert.Equal(t, StatusAnchored, first.Status)

	second := c.Anchor(ctx, Checkpoint{WalletID: "wallet-1", EntryCount: 3, MerkleRoot: "root-a"})
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, 1, backend.sentCount(), "Unchanged root must not produce a transaction")

	third := c.Anchor(ctx, Checkpoint{WalletID: "wallet-1", EntryCount: 4, MerkleRoot: "root-b"})
	assert.Equal(t, StatusAnchored, third.Status)
	assert.Equal(t, 2, backend.sentCount())
}

func TestCheckpointer_SubmitFailure(t *testing.T) {
	backend := &fakeBackend{sendErr: errors.New("rpc timeout")}
	c := newTestCheckpointer(t, backend, nil)

	receipt := c.Anchor(context.Background(), Checkpoint{WalletID: "wallet-1", MerkleRoot: "root-a"})
	assert.Equal(t, StatusFailed, receipt.Status)
	assert.Contains(t, receipt.Reason, "rpc timeout")

	// A failed submission must not mark the root as anchored.
	backend.sendErr = nil
	retry := c.Anchor(context.Background(), Checkpoint{WalletID: "wallet-1", MerkleRoot: "root-a"})
	assert.Equal(t, StatusAnchored, retry.Status)
}

func walletStoreWithChain(t *testing.T) (wallet.Store, string, int) {
	t.Helper()
	store := wallet.NewMemoryStore()
	manager, err := wallet.NewManager(wallet.Config{
		Store:  store,
		Crypto: cryptoutils.NewProvider(),
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	created, err := manager.CreateWallet(context.Background(), wallet.CreateWalletRequest{
		Name:   "Anchored Vault",
		Secret: []byte("anchor-test-master-seed-77ee88ff"),
		Guardians: []interfaces.GuardianInfo{
			{Name: "Alice Chen", Email: "alice@example.com"},
			{Name: "Bob Osei", Email: "bob@example.com"},
		},
		Threshold:       2,
		OwnerCredential: []byte("owner-anchor-passphrase"),
	})
	require.NoError(t, err, "Failed to create wallet")
	return store, created.Manifest.Policy.WalletID, len(created.AuditEntries)
}

func TestCheckpointer_AnchorAll(t *testing.T) {
	store, walletID, entryCount := walletStoreWithChain(t)
	backend := &fakeBackend{}
	c := newTestCheckpointer(t, backend, store)

	receipts, err := c.AnchorAll(context.Background())
	require.NoError(t, err, "Failed to anchor wallets")
	require.Len(t, receipts, 1)

	assert.Equal(t, walletID, receipts[0].WalletID)
	assert.Equal(t, StatusAnchored, receipts[0].Status)
	assert.Equal(t, entryCount, receipts[0].EntryCount)
	assert.NotEmpty(t, receipts[0].MerkleRoot)

	// A second round with no new audit entries skips every wallet.
	receipts, err = c.AnchorAll(context.Background())
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, StatusSkipped, receipts[0].Status)
	assert.Equal(t, 1, backend.sentCount())
}

func TestCheckpointer_Run(t *testing.T) {
	store, _, _ := walletStoreWithChain(t)
	backend := &fakeBackend{}
	c := newTestCheckpointer(t, backend, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for backend.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Run never anchored a wallet")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestLoadKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexkey := common.Bytes2Hex(crypto.FromECDSA(key))

	parsed, err := LoadKey(hexkey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(parsed.PublicKey))

	parsed, err = LoadKey("0x" + hexkey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(parsed.PublicKey))

	_, err = LoadKey("not-a-key")
	require.Error(t, err)
}
