package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

// IPFSBackend implements a storage backend using the InterPlanetary File
// System. Artifacts are added as single raw blocks, so the block CID digest
// is the SHA-256 of the content and fetches can be keyed by content ID
// without a separate index.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the
// specified API host and port. The timeout applies to every shell request.
func NewIPFSBackend(host, port string, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	uri := fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout)

	sh := shell.NewShell(apiURL)
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid IPFS timeout %q: %w", timeout, err)
		}
		sh.SetTimeout(d)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		log:         log,
		locationURI: uri,
	}, nil
}

// Fetch retrieves data from IPFS by its content identifier.
// Returns ErrContentNotFound if the content doesn't exist or
// ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	path := "/ipfs/" + cidForContent(id)
	contentIDStr := fmt.Sprintf("%x", id[:8])

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.Cat(path)
	if err != nil {
		if strings.Contains(err.Error(), "no link named") || strings.Contains(err.Error(), "not found") {
			b.log.Debug("Content not found in IPFS",
				slog.String("path", path),
				slog.String("content_id", contentIDStr),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		b.log.Error("Failed to fetch data from IPFS",
			slog.String("path", path),
			slog.String("content_id", contentIDStr),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		b.log.Error("Failed to read data from IPFS",
			slog.String("path", path),
			slog.String("content_id", contentIDStr),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", path),
		slog.String("content_id", contentIDStr),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store adds data to IPFS as a pinned raw block and returns its content
// identifier, the SHA-256 hash of the data. Returns ErrBackendUnavailable
// if the IPFS node is not accessible.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	hash := sha256.Sum256(data)
	id := interfaces.ContentID(hash)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data),
		shell.Pin(true),
		shell.RawLeaves(true),
		shell.CidVersion(1))
	if err != nil {
		return id, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	// A multi-block add would produce a root CID that no longer matches the
	// content hash, making the blob unfetchable by content ID.
	if expected := cidForContent(id); cid != expected {
		return id, fmt.Errorf("IPFS returned CID %s, expected %s (content too large for a single block?)", cid, expected)
	}

	b.log.Debug("Stored content in IPFS",
		slog.String("ipfsCID", cid),
		slog.String("contentID", id.String()),
		slog.String("contentType", contentType.String()))

	return id, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// cidForContent builds the CIDv1 string for a raw block whose SHA-256 digest
// is the content ID: multibase base32, version 1, raw codec, sha2-256
// multihash.
func cidForContent(id interfaces.ContentID) string {
	raw := make([]byte, 0, 4+len(id))
	raw = append(raw, 0x01, 0x55, 0x12, 0x20)
	raw = append(raw, id[:]...)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	return "b" + strings.ToLower(enc)
}
