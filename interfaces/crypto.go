package interfaces

import "context"

// CryptoProvider abstracts the cryptographic operations the protocol needs so
// that wallet and audit logic never touch key parsing or cipher construction
// directly. The canonical implementation lives in cryptoutils.
type CryptoProvider interface {
	// GenerateKeyPair returns a fresh P-256 key pair with the key id set to
	// the public key fingerprint.
	GenerateKeyPair(ctx context.Context) (KeyPair, error)

	// Encrypt seals plaintext to the holder of the given public key.
	Encrypt(ctx context.Context, publicKey AppPubkey, plaintext []byte) ([]byte, error)

	// Decrypt opens a ciphertext produced by Encrypt.
	Decrypt(ctx context.Context, privateKey AppPrivkey, ciphertext []byte) ([]byte, error)

	// Sign produces a signature over the SHA-256 digest of payload.
	Sign(ctx context.Context, privateKey AppPrivkey, payload []byte) ([]byte, error)

	// Verify checks a signature produced by Sign. A nil return means the
	// signature is authentic.
	Verify(ctx context.Context, publicKey AppPubkey, payload, signature []byte) error

	// Hash returns the SHA-256 digest of data.
	Hash(data []byte) []byte
}
