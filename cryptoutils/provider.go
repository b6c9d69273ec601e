package cryptoutils

import (
	"context"
	"fmt"
)

// Provider bundles the package's key, cipher and signature helpers behind a
// single value. Its method set satisfies the CryptoProvider interface defined
// in the interfaces package.
type Provider struct{}

// NewProvider returns a stateless crypto provider.
func NewProvider() *Provider {
	return &Provider{}
}

// GenerateKeyPair returns a fresh P-256 key pair with the key id set to the
// public key fingerprint.
func (p *Provider) GenerateKeyPair(_ context.Context) (KeyPair, error) {
	return NewKeyPair()
}

// Encrypt seals plaintext to the holder of publicKey using ECIES.
func (p *Provider) Encrypt(_ context.Context, publicKey AppPubkey, plaintext []byte) ([]byte, error) {
	ciphertext, err := EncryptWithPublicKey(publicKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting payload: %w", err)
	}
	return ciphertext, nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (p *Provider) Decrypt(_ context.Context, privateKey AppPrivkey, ciphertext []byte) ([]byte, error) {
	plaintext, err := DecryptWithPrivateKey(privateKey, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypting payload: %w", err)
	}
	return plaintext, nil
}

// Sign produces an ASN.1 ECDSA signature over the SHA-256 digest of payload.
func (p *Provider) Sign(_ context.Context, privateKey AppPrivkey, payload []byte) ([]byte, error) {
	return SignPayload(privateKey, payload)
}

// Verify checks a signature produced by Sign.
func (p *Provider) Verify(_ context.Context, publicKey AppPubkey, payload, signature []byte) error {
	return VerifyPayload(publicKey, payload, signature)
}

// Hash returns the SHA-256 digest of data.
func (p *Provider) Hash(data []byte) []byte {
	return HashData(data)
}
