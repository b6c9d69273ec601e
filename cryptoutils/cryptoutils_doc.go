// Package cryptoutils provides the cryptographic operations for the guardian
// recovery protocol.
//
// This package implements asymmetric encryption and decryption operations using
// elliptic curve cryptography and AES-GCM, ECDSA/ed25519 signing and verification,
// and deterministic credential-derived signing keys. It protects guardian shares
// throughout their lifecycle, from wallet creation to eventual use during seed
// reconstruction.
//
// The encryption scheme uses ECIES (Elliptic Curve Integrated Encryption Scheme)
// with the following components:
//
//   - Elliptic curve (NIST P-256) for key exchange
//   - ECDH for shared secret derivation
//   - SHA-256 for key derivation
//   - AES-GCM for symmetric encryption with authenticated encryption
//   - Unique ephemeral keys for each encryption operation
//
// # Key Functions
//
// # EncryptWithPublicKey - Encrypts data using a public key in PEM format
//
// # DecryptWithPrivateKey - Decrypts data using a private key in PEM format
//
// # SignPayload / VerifyPayload - ECDSA (ASN.1, over the SHA-256 digest) or ed25519
//
// # SigningKeyFromCredential - Expands an opaque credential into a P-256 signing key
//
// # Encryption Format
//
// The encrypted data follows this binary format:
//
//	[ephemeral key length (2 bytes)][ephemeral key][iv (12 bytes)][ciphertext]
//
// Where:
//   - Ephemeral key length: uint16 in big-endian format
//   - Ephemeral key: Elliptic curve point encoded using elliptic.Marshal()
//   - IV: 12-byte nonce for AES-GCM
//   - Ciphertext: The encrypted data with GCM authentication tag
//
// # Security Considerations
//
// This package implements several security best practices:
//
//   - Fresh ephemeral keys for each encryption operation (forward secrecy)
//   - Authenticated encryption using AES-GCM
//   - No static IVs or predictable values
//   - Argon2id expansion for passphrase credentials
//
// However, users should be aware of these considerations:
//
//   - The security depends on the secrecy of the private key
//   - Data encrypted with a public key can only be decrypted with the corresponding private key
//   - Error messages are intentionally vague to prevent leaking information
//
// # Usage Example
//
//	// Generate a guardian key pair
//	keyPair, err := cryptoutils.NewKeyPair()
//	if err != nil {
//	    log.Fatalf("Failed to generate key pair: %v", err)
//	}
//
//	// Encrypt a share for the guardian
//	encryptedShare, err := cryptoutils.EncryptWithPublicKey(keyPair.PublicKey, share)
//	if err != nil {
//	    log.Fatalf("Failed to encrypt: %v", err)
//	}
//
//	// The guardian later decrypts it with their private key
//	share, err := cryptoutils.DecryptWithPrivateKey(keyPair.PrivateKey, encryptedShare)
//	if err != nil {
//	    log.Fatalf("Failed to decrypt: %v", err)
//	}
package cryptoutils
