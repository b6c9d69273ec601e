package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Each wallet artifact kind lives in its own subdirectory, with blobs named
// by their content hash.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir, creating
// one subdirectory per artifact kind.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	for _, ct := range []interfaces.ContentType{
		interfaces.ManifestType,
		interfaces.ShareType,
		interfaces.AttemptType,
		interfaces.AuditType,
	} {
		if err := os.MkdirAll(filepath.Join(baseDir, contentDir(ct)), 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", ct.String(), err)
		}
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch retrieves a blob by its content identifier and artifact kind.
// Returns ErrContentNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	filePath := b.getFilePath(id, contentType)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, interfaces.ErrContentNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched content from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store saves a blob and returns its content identifier, the SHA-256 hash of
// the data.
func (b *FileBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	hash := sha256.Sum256(data)
	id := interfaces.ContentID(hash)

	filePath := b.getFilePath(id, contentType)

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return id, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return id, fmt.Errorf("failed to write file: %w", err)
	}

	b.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.String("contentID", id.String()))

	return id, nil
}

// Available checks if the file backend is accessible by verifying the base
// directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// getFilePath generates a file path for a content ID and artifact kind.
func (b *FileBackend) getFilePath(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return filepath.Join(b.baseDir, contentDir(contentType), id.String())
}

// contentDir maps an artifact kind to its subdirectory name.
func contentDir(contentType interfaces.ContentType) string {
	return contentType.String() + "s"
}
