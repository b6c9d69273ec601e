// Package interfaces defines core interfaces and types for the guardian
// recovery system, separating interface definitions from implementations.
//
// The package provides interfaces for the key components of the system:
//
// # Protocol Types
//
// WalletPolicy: Recovery parameters fixed at wallet creation, including the
// signature threshold, guardian count, attempt timeout and the set of
// recovery reasons the wallet accepts.
//
// Guardian: A trusted party bound to one share index and one public key on a
// wallet, moving through the invited, active and revoked lifecycle states.
//
// GuardianShare: One Shamir share of the master seed, stored only in its
// ECIES-encrypted form together with a ciphertext hash for transport checks.
//
// RecoveryAttempt: A bounded-lifetime signature collection process with the
// pending, collecting_signatures, completed, failed and expired states.
//
// # Audit Types
//
// AuditLogEntry: One link in a wallet's hash chain, carrying a typed event
// payload, the previous entry's signature and the chain's merkle root.
//
// AuditLogChain: A wallet's full ordered history plus the merkle root and
// chain hash recomputed on every append.
//
// ChainVerification: The structured report produced by chain verification,
// with per-check flags and the list of detected violations.
//
// # Crypto Interfaces
//
// CryptoProvider: Key generation, ECIES encryption, ECDSA signing and
// hashing behind one interface so protocol logic stays cipher-agnostic.
//
// # Storage Interfaces
//
// StorageBackend: Provides content-addressed storage for wallet manifests,
// encrypted shares, recovery attempts and audit chains across multiple
// backend types (file, S3, IPFS, GitHub, Vault, memory).
//
// StorageBackendFactory: Creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Error Taxonomy
//
// ValidationError, GuardianError, CryptoError and ProtocolError carry stable
// machine-readable codes so HTTP handlers and clients can dispatch on failure
// kind without string matching.
package interfaces
