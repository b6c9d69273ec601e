package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// AlgorithmECDSAP256 identifies keys generated by this package.
const AlgorithmECDSAP256 = "ECDSA-P256"

// AppPubkey represents a public key in PEM format.
type AppPubkey []byte

// NewAppPubkey creates a new public key object from PEM-encoded data with validation.
func NewAppPubkey(data []byte) (AppPubkey, error) {
	// Validate PEM format
	block, _ := pem.Decode(data)
	if block == nil || (block.Type != "PUBLIC KEY" && block.Type != "RSA PUBLIC KEY") {
		return AppPubkey{}, errors.New("invalid public key: not in PEM format or not a public key")
	}

	// Validate public key structure
	_, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return AppPubkey{}, fmt.Errorf("invalid public key structure: %w", err)
	}

	return AppPubkey(data), nil
}

// Validate checks if the public key is properly formed.
func (pub AppPubkey) Validate() error {
	_, err := NewAppPubkey(pub)
	return err
}

// GetPublicKey returns the parsed public key interface.
func (pub AppPubkey) GetPublicKey() (interface{}, error) {
	block, _ := pem.Decode(pub)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

// Fingerprint returns the hex-encoded SHA-256 hash of the PEM bytes.
// Fingerprints identify guardian keys in registries and signature checks.
func (pub AppPubkey) Fingerprint() string {
	h := sha256.Sum256(pub)
	return hex.EncodeToString(h[:])
}

// AppPrivkey represents a private key in PEM format.
type AppPrivkey []byte

// NewAppPrivkey creates a new private key object from PEM-encoded data with validation.
func NewAppPrivkey(data []byte) (AppPrivkey, error) {
	// Validate PEM format
	block, _ := pem.Decode(data)
	if block == nil || (block.Type != "PRIVATE KEY" && block.Type != "EC PRIVATE KEY") {
		return AppPrivkey{}, errors.New("invalid private key: not in PEM format or not a private key")
	}

	// Try to parse it as a PKCS8 private key
	_, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try to parse it as an EC private key
		_, err = x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return AppPrivkey{}, fmt.Errorf("invalid private key structure: %w", err)
		}
	}

	return AppPrivkey(data), nil
}

// Validate checks if the private key is properly formed.
func (priv AppPrivkey) Validate() error {
	_, err := NewAppPrivkey(priv)
	return err
}

// GetPrivateKey returns the parsed private key interface.
func (priv AppPrivkey) GetPrivateKey() (interface{}, error) {
	block, _ := pem.Decode(priv)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// Try to parse it as a PKCS8 private key
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}

	// Try to parse it as an EC private key
	key, err = x509.ParseECPrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}

	return nil, errors.New("failed to parse private key")
}

func (priv AppPrivkey) GetPublicKey() (interface{}, error) {
	parsedPriv, err := priv.GetPrivateKey()
	if err != nil {
		return nil, err
	}

	// Extract public key based on the private key type
	switch key := parsedPriv.(type) {
	case *ecdsa.PrivateKey:
		return &key.PublicKey, nil
	case ed25519.PrivateKey:
		return key.Public(), nil
	default:
		return nil, fmt.Errorf("unsupported private key type: %T", parsedPriv)
	}
}

// KeyPair bundles a generated key pair with its identifier and algorithm tag.
// The key id is the fingerprint of the public key.
type KeyPair struct {
	KeyID      string     `json:"key_id"`
	Algorithm  string     `json:"algorithm"`
	PublicKey  AppPubkey  `json:"public_key"`
	PrivateKey AppPrivkey `json:"private_key,omitempty"`
}

// RandomP256Keypair generates a fresh P-256 key pair in PEM encoding.
func RandomP256Keypair() (AppPubkey, AppPrivkey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	pubkeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	pubkeyKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubkeyBytes,
	})

	return AppPubkey(pubkeyKeyPEM), AppPrivkey(privateKeyPEM), nil
}

// NewKeyPair generates a P-256 key pair and wraps it with its key id.
func NewKeyPair() (KeyPair, error) {
	pub, priv, err := RandomP256Keypair()
	if err != nil {
		return KeyPair{}, err
	}

	return KeyPair{
		KeyID:      pub.Fingerprint(),
		Algorithm:  AlgorithmECDSAP256,
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}
