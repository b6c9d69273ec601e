package storage

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs and
// assembles multi-backend configurations for redundant wallet replication.
type StorageBackendFactory struct {
	log        *slog.Logger
	certGetter func() (tls.Certificate, error)
}

// NewStorageBackendFactory creates a new factory instance that can create
// storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log: logger,
	}
}

// WithTLSAuth returns a factory whose vault:// backends authenticate with a
// TLS client certificate obtained from certGetter instead of a token. The
// getter is invoked lazily, once per backend created.
func (sf *StorageBackendFactory) WithTLSAuth(certGetter func() (tls.Certificate, error)) interfaces.StorageBackendFactory {
	return &StorageBackendFactory{
		log:        sf.log,
		certGetter: certGetter,
	}
}

// StorageBackendFor creates a storage backend from a parsed location URI.
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - mem:// - In-process storage for tests and single-node deployments
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS distributed storage
//   - vault:// - HashiCorp Vault KV v2 secrets engine
//   - github:// - Read-only mirror using GitHub's Git blob API
//
// Returns an error if the scheme is unsupported or the URI is malformed.
func (sf *StorageBackendFactory) StorageBackendFor(locationURI interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	switch strings.ToLower(locationURI.Scheme) {
	case "github":
		return sf.createGitHubBackend(locationURI)
	case "ipfs":
		return sf.createIPFSBackend(locationURI)
	case "s3":
		return sf.createS3Backend(locationURI)
	case "vault":
		return sf.createVaultBackend(locationURI)
	case "file":
		return sf.createFileBackend(locationURI)
	case "mem":
		return sf.createMemoryBackend(locationURI)
	default:
		return nil, fmt.Errorf("unsupported backend scheme: %s", locationURI.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location
// URIs. It stores content to all available backends and fetches from the
// first one that has the content. Invalid URIs are skipped with a warning;
// an error is returned only when no valid backend could be created.
func (sf *StorageBackendFactory) CreateMultiBackend(locationURIs []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locationURIs))

	for _, uri := range locationURIs {
		backend, err := sf.StorageBackendFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", uri.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createGitHubBackend creates a read-only GitHub storage backend.
// URI format: github://owner/repo?token=TOKEN
func (sf *StorageBackendFactory) createGitHubBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating GitHub backend", slog.String("uri", loc.String()))

	owner := loc.Host
	repo := strings.Trim(loc.Path, "/")
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid GitHub URI format, expected github://owner/repo")
	}

	return NewGitHubBackend(owner, repo, loc.GetParam("token"), sf.log), nil
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", loc.String()))

	host, port, err := net.SplitHostPort(loc.Host)
	if err != nil {
		host = loc.Host
		port = "5001"
	}

	timeout := loc.GetParam("timeout")
	if timeout == "" {
		timeout = "30s"
	}

	return NewIPFSBackend(host, port, timeout, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=custom.s3.com
// Without credentials the backend is read-only.
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", loc.String()))

	bucketName := loc.Host
	if bucketName == "" {
		return nil, fmt.Errorf("missing bucket name in S3 URI: %s", loc.String())
	}

	prefix := strings.TrimPrefix(loc.Path, "/")

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	endpoint := loc.GetParam("endpoint")

	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
		sf.log.Debug("Using embedded credentials for write access")
	} else {
		sf.log.Debug("No credentials provided, S3 write operations may fail")
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, sf.log)
}

// createVaultBackend creates a HashiCorp Vault storage backend.
// URI format: vault://host:port/mount/path?token=TOKEN&scheme=https
// When the factory carries a TLS certificate getter, certificate
// authentication is used and the token is ignored.
func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", loc.String()))

	scheme := loc.GetParam("scheme")
	if scheme == "" {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s", scheme, loc.Host)

	mountPath, dataPath, _ := strings.Cut(strings.Trim(loc.Path, "/"), "/")
	if mountPath == "" {
		return nil, fmt.Errorf("vault URI missing mount path, expected vault://host:port/mount/path")
	}
	if dataPath == "" {
		dataPath = "wallets"
	}

	if sf.certGetter != nil {
		cert, err := sf.certGetter()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain TLS client certificate: %w", err)
		}
		return NewVaultTLSBackend(address, mountPath, dataPath, cert, sf.log)
	}

	token := loc.GetParam("token")
	if token == "" {
		token = loc.Auth
	}

	return NewVaultBackend(address, token, mountPath, dataPath, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://relative/path
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", loc.String())
	}

	return NewFileBackend(path, sf.log)
}

// createMemoryBackend creates an in-process storage backend.
// URI format: mem://name
func (sf *StorageBackendFactory) createMemoryBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating memory backend", slog.String("uri", loc.String()))

	return NewMemoryBackend(loc.Host), nil
}
