// Package storage provides content-addressed storage for wallet artifacts
// with pluggable backends.
//
// The storage package offers a unified interface for replicating and
// retrieving wallet artifacts identified by SHA-256 hash across multiple
// storage backends:
//
//   - File system storage for local deployments
//   - In-memory storage for tests and single-node setups
//   - S3-compatible storage for cloud deployments
//   - IPFS storage for decentralized replication
//   - Vault storage backed by the KV v2 secrets engine
//   - GitHub storage for read-only audit-log mirrors
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/vaultmesh/wallets/
//   - mem://scratch
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/?timeout=30s
//   - vault://vault.example.com:8200/secret/wallets?token=TOKEN
//   - github://owner/repo?token=TOKEN
//
// # Content Addressing
//
// Every artifact is stored and retrieved by content address: the identifier
// is the SHA-256 hash of the serialized artifact. A wallet snapshot is a set
// of content IDs (manifest, encrypted shares, recovery attempts, audit
// chain), so replicas fetched from any backend can be verified against the
// IDs recorded at sync time.
//
// Artifact kinds are kept in separate namespaces:
//
//	const (
//	    ManifestType ContentType = iota
//	    ShareType
//	    AttemptType
//	    AuditType
//	)
//
// Separate namespaces let a deployment grant different access per kind, for
// example guardians may read audit replicas but never the encrypted shares
// of other guardians.
//
// # Vault Storage
//
// The VaultBackend stores artifacts in HashiCorp Vault using the KV v2
// secret engine with path format {mount}/data/{path}/{kind}/{content_id}.
// It authenticates with a client token, or with a TLS client certificate
// when the factory is configured via WithTLSAuth.
//
// # GitHub Storage (Read-Only)
//
// The GitHubBackend fetches artifacts directly from Git blobs in a GitHub
// repository, using the ContentID hex string as the blob SHA. Fetched bytes
// are re-hashed and checked against the requested ID since Git blob SHAs are
// not content SHA-256 hashes. Store is not supported; mirrors are published
// out of band.
//
// # Multi-Backend Replication
//
//	factory := storage.NewStorageBackendFactory(logger)
//
//	locations := []interfaces.StorageBackendLocation{fileLoc, s3Loc, vaultLoc}
//	multiBackend, err := factory.CreateMultiBackend(locations)
//	if err != nil {
//	    log.Fatalf("Failed to create multi-backend: %v", err)
//	}
//
// The multi-backend stores to every available location and fetches from the
// first one holding the content, so a wallet snapshot survives the loss of
// any single location.
package storage
