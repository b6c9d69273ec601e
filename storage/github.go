package storage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

// GitHubBackend implements a read-only storage backend using GitHub's Git
// blob API. It serves audit-log mirrors published to a repository, using the
// ContentID hex string as the git blob SHA.
type GitHubBackend struct {
	owner       string
	repo        string
	token       string
	client      *http.Client
	log         *slog.Logger
	locationURI string
}

// GitHubBlob represents a Git blob object from GitHub's API
type GitHubBlob struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	URL      string `json:"url"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
}

// NewGitHubBackend creates a new GitHub storage backend for reading mirrored
// artifacts. The token is optional; it is required only for private
// repositories.
func NewGitHubBackend(owner, repo, token string, log *slog.Logger) *GitHubBackend {
	return &GitHubBackend{
		owner:       owner,
		repo:        repo,
		token:       token,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
		locationURI: fmt.Sprintf("github://%s/%s", owner, repo),
	}
}

// Fetch retrieves data from GitHub by directly using the ContentID as a blob SHA.
func (b *GitHubBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	blobSHA := hex.EncodeToString(id[:])

	blob, err := b.fetchBlob(ctx, blobSHA)
	if err != nil {
		return nil, err
	}

	if blob.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected blob encoding: %s", blob.Encoding)
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode blob content: %w", err)
	}

	// The git blob SHA is not a SHA-256 of the raw content, so the fetched
	// bytes must be re-verified against the requested content ID.
	hash := sha256.Sum256(data)
	if hash != id {
		b.log.Warn("Content hash mismatch",
			slog.String("expected", hex.EncodeToString(id[:])),
			slog.String("actual", hex.EncodeToString(hash[:])))
		return nil, fmt.Errorf("content hash mismatch")
	}

	b.log.Debug("Fetched content from GitHub",
		slog.String("blobSHA", blobSHA),
		slog.Int("size", len(data)))

	return data, nil
}

// Store is not implemented for this read-only backend.
func (b *GitHubBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	hash := sha256.Sum256(data)
	id := interfaces.ContentID(hash)

	return id, fmt.Errorf("GitHub backend is read-only")
}

// Available checks if the GitHub backend is accessible.
func (b *GitHubBackend) Available(ctx context.Context) bool {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s", b.owner, b.repo)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		b.log.Debug("Failed to create request", "err", err)
		return false
	}

	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Debug("GitHub backend unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b.log.Debug("GitHub backend unavailable",
			slog.String("status", resp.Status))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *GitHubBackend) Name() string {
	return fmt.Sprintf("github-%s-%s", b.owner, b.repo)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *GitHubBackend) LocationURI() string {
	return b.locationURI
}

func (b *GitHubBackend) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
}

// fetchBlob fetches a Git blob directly by its SHA.
func (b *GitHubBackend) fetchBlob(ctx context.Context, sha string) (*GitHubBlob, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/git/blobs/%s",
		b.owner, b.repo, sha)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	b.setHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, interfaces.ErrContentNotFound
	}

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error: %s, %s", resp.Status, string(body))
	}

	var blob GitHubBlob
	if err := json.NewDecoder(resp.Body).Decode(&blob); err != nil {
		return nil, fmt.Errorf("failed to decode blob: %w", err)
	}

	return &blob, nil
}
