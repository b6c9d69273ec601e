package anchor

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vaultmesh/recovery-backend/interfaces"
	"github.com/vaultmesh/recovery-backend/metrics"
)

// DefaultInterval is the checkpoint period used when the config leaves it
// unset.
const DefaultInterval = 15 * time.Minute

const defaultGasLimit = 100_000

// Status classifies the outcome of one checkpoint submission.
type Status string

const (
	StatusAnchored Status = "anchored"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Checkpoint is the payload published for one wallet: enough for a third
// party holding a Merkle proof to confirm an audit entry existed at the
// anchoring time.
type Checkpoint struct {
	WalletID   string `json:"wallet_id"`
	EntryCount int    `json:"entry_count"`
	MerkleRoot string `json:"merkle_root"`
	AnchoredAt int64  `json:"anchored_at"`
}

// Receipt describes the outcome of one checkpoint submission.
type Receipt struct {
	WalletID   string    `json:"wallet_id"`
	MerkleRoot string    `json:"merkle_root"`
	EntryCount int       `json:"entry_count"`
	Status     Status    `json:"status"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Time       time.Time `json:"time"`
}

// Backend is the slice of an Ethereum client the checkpointer needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// ChainSource yields the wallets and audit chains eligible for anchoring.
// wallet.Store satisfies it.
type ChainSource interface {
	ListWallets(ctx context.Context) ([]string, error)
	LoadChain(ctx context.Context, walletID string) (*interfaces.AuditLogChain, error)
}

// Config carries the checkpointer collaborators. Either Backend or RPCURL
// must be set.
type Config struct {
	RPCURL  string
	Backend Backend

	// PrivateKey signs checkpoint transactions.
	PrivateKey *ecdsa.PrivateKey

	// To is the address checkpoint calldata is sent to.
	To common.Address

	// GasLimit per checkpoint transaction. Zero selects a default that
	// comfortably covers calldata-only transactions.
	GasLimit uint64

	// Interval between periodic anchoring rounds in Run. Zero selects
	// DefaultInterval.
	Interval time.Duration

	Source ChainSource
	Log    *slog.Logger
}

// Checkpointer publishes audit chain Merkle roots as calldata in signed
// Ethereum transactions. Roots already anchored are skipped until they
// change.
type Checkpointer struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	from     common.Address
	to       common.Address
	gasLimit uint64
	interval time.Duration
	source   ChainSource
	log      *slog.Logger

	mu        sync.Mutex
	lastRoots map[string]string
}

// New validates the configuration, dialing the RPC endpoint when no backend
// is injected.
func New(cfg Config) (*Checkpointer, error) {
	if cfg.PrivateKey == nil {
		return nil, errors.New("anchor: a signing key is required")
	}
	if cfg.To == (common.Address{}) {
		return nil, errors.New("anchor: a checkpoint address is required")
	}

	backend := cfg.Backend
	if backend == nil {
		if cfg.RPCURL == "" {
			return nil, errors.New("anchor: either a backend or an RPC URL is required")
		}
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("anchor: dialing %s: %w", cfg.RPCURL, err)
		}
		backend = client
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Checkpointer{
		backend:   backend,
		key:       cfg.PrivateKey,
		from:      crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		to:        cfg.To,
		gasLimit:  gasLimit,
		interval:  interval,
		source:    cfg.Source,
		log:       log,
		lastRoots: make(map[string]string),
	}, nil
}

// From returns the address checkpoints are sent from.
func (c *Checkpointer) From() common.Address { return c.from }

// Anchor submits one checkpoint. An unchanged root is reported as skipped
// without touching the chain; every other failure is reported in the receipt
// rather than returned, so one bad wallet cannot stall an anchoring round.
func (c *Checkpointer) Anchor(ctx context.Context, checkpoint Checkpoint) Receipt {
	receipt := Receipt{
		WalletID:   checkpoint.WalletID,
		MerkleRoot: checkpoint.MerkleRoot,
		EntryCount: checkpoint.EntryCount,
		Time:       time.Now().UTC(),
	}

	c.mu.Lock()
	unchanged := c.lastRoots[checkpoint.WalletID] == checkpoint.MerkleRoot
	c.mu.Unlock()
	if unchanged {
		receipt.Status = StatusSkipped
		receipt.Reason = "merkle root unchanged since last checkpoint"
		metrics.Checkpoints.WithLabelValues(string(StatusSkipped)).Inc()
		return receipt
	}

	txHash, err := c.submit(ctx, checkpoint)
	if err != nil {
		receipt.Status = StatusFailed
		receipt.Reason = err.Error()
		metrics.Checkpoints.WithLabelValues(string(StatusFailed)).Inc()
		c.log.Error("Checkpoint submission failed",
			slog.String("wallet_id", checkpoint.WalletID), "err", err)
		return receipt
	}

	c.mu.Lock()
	c.lastRoots[checkpoint.WalletID] = checkpoint.MerkleRoot
	c.mu.Unlock()

	receipt.Status = StatusAnchored
	receipt.TxHash = txHash
	metrics.Checkpoints.WithLabelValues(string(StatusAnchored)).Inc()
	c.log.Info("Audit root anchored",
		slog.String("wallet_id", checkpoint.WalletID),
		slog.String("merkle_root", checkpoint.MerkleRoot),
		slog.String("tx", txHash))
	return receipt
}

func (c *Checkpointer) submit(ctx context.Context, checkpoint Checkpoint) (string, error) {
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return "", fmt.Errorf("encoding checkpoint: %w", err)
	}

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching chain id: %w", err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.to,
		Value:    big.NewInt(0),
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     payload,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("sending transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// AnchorAll checkpoints the current audit root of every wallet in the source.
func (c *Checkpointer) AnchorAll(ctx context.Context) ([]Receipt, error) {
	if c.source == nil {
		return nil, errors.New("anchor: no chain source configured")
	}

	walletIDs, err := c.source.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("anchor: listing wallets: %w", err)
	}

	receipts := make([]Receipt, 0, len(walletIDs))
	for _, walletID := range walletIDs {
		chain, err := c.source.LoadChain(ctx, walletID)
		if err != nil {
			receipts = append(receipts, Receipt{
				WalletID: walletID,
				Status:   StatusFailed,
				Reason:   fmt.Sprintf("loading audit chain: %v", err),
				Time:     time.Now().UTC(),
			})
			metrics.Checkpoints.WithLabelValues(string(StatusFailed)).Inc()
			continue
		}
		receipts = append(receipts, c.Anchor(ctx, Checkpoint{
			WalletID:   walletID,
			EntryCount: chain.Count,
			MerkleRoot: chain.MerkleRoot,
			AnchoredAt: time.Now().UTC().Unix(),
		}))
	}
	return receipts, nil
}

// Run anchors every wallet on the configured interval until the context is
// cancelled.
func (c *Checkpointer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.AnchorAll(ctx); err != nil {
				c.log.Error("Anchoring round failed", "err", err)
			}
		}
	}
}

// LoadKey parses a hex-encoded secp256k1 private key, with or without the
// 0x prefix.
func LoadKey(hexkey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexkey, "0x"))
}
