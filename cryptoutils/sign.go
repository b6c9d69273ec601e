package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/argon2"
)

// HashData computes the SHA-256 digest of data.
func HashData(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// SignPayload signs a payload with a PEM private key. ECDSA keys sign the
// SHA-256 digest of the payload with an ASN.1 encoded signature; ed25519 keys
// sign the payload directly.
func SignPayload(privateKeyPEM AppPrivkey, payload []byte) ([]byte, error) {
	parsed, err := privateKeyPEM.GetPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	switch key := parsed.(type) {
	case *ecdsa.PrivateKey:
		digest := sha256.Sum256(payload)
		return ecdsa.SignASN1(rand.Reader, key, digest[:])
	case ed25519.PrivateKey:
		return ed25519.Sign(key, payload), nil
	default:
		return nil, fmt.Errorf("unsupported signing key type: %T", parsed)
	}
}

// VerifyPayload verifies a signature over a payload against a PEM public key.
// Returns nil when the signature is valid.
func VerifyPayload(publicKeyPEM AppPubkey, payload, signature []byte) error {
	parsed, err := publicKeyPEM.GetPublicKey()
	if err != nil {
		return fmt.Errorf("failed to parse verification key: %w", err)
	}

	switch key := parsed.(type) {
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(payload)
		if !ecdsa.VerifyASN1(key, digest[:], signature) {
			return errors.New("invalid signature")
		}
		return nil
	case ed25519.PublicKey:
		if !ed25519.Verify(key, payload, signature) {
			return errors.New("invalid signature")
		}
		return nil
	default:
		return fmt.Errorf("public key is neither ECDSA nor ED25519 key")
	}
}

// DeriveCredentialKey expands a low-entropy credential into a 32-byte key
// using Argon2id. The scope bytes salt the derivation so the same credential
// yields unrelated keys for unrelated wallets.
func DeriveCredentialKey(credential, scope []byte) []byte {
	salt := append([]byte("guardian-recovery-"), scope...)

	// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
	return argon2.IDKey(credential, salt, 1, 64*1024, 4, 32)
}

// SigningKeyFromCredential returns a PEM private key for an opaque credential.
// A credential that already parses as a PEM private key is used directly.
// Anything else is treated as a passphrase: it is expanded with Argon2id and
// mapped onto a deterministic P-256 scalar, so the same credential and scope
// always reproduce the same signing key.
func SigningKeyFromCredential(credential, scope []byte) (AppPrivkey, error) {
	if key, err := NewAppPrivkey(credential); err == nil {
		return key, nil
	}

	seed := DeriveCredentialKey(credential, scope)

	curve := elliptic.P256()
	n := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d := new(big.Int).SetBytes(seed)
	d.Mod(d, n)
	d.Add(d, big.NewInt(1))

	privateKey := new(ecdsa.PrivateKey)
	privateKey.Curve = curve
	privateKey.D = d
	privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal derived key: %w", err)
	}

	return AppPrivkey(pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	})), nil
}

// PublicKeyFor returns the PEM public key matching a PEM private key.
func PublicKeyFor(privateKeyPEM AppPrivkey) (AppPubkey, error) {
	parsed, err := privateKeyPEM.GetPublicKey()
	if err != nil {
		return nil, err
	}

	pubkeyBytes, err := x509.MarshalPKIXPublicKey(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return AppPubkey(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubkeyBytes,
	})), nil
}
