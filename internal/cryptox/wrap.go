package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// DefaultKeyBits is the RSA modulus size used for user keypairs.
const DefaultKeyBits = 2048

var wrapLabel = []byte("notekeeper/content-key")

// GenerateKeyPair creates an RSA keypair of the given size.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// WrapKey encrypts a content key for the holder of pub using RSA-OAEP/SHA-256.
func WrapKey(pub *rsa.PublicKey, contentKey []byte) ([]byte, error) {
	if pub == nil {
		return nil, errors.New("nil public key")
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, contentKey, wrapLabel)
}

// UnwrapKey reverses WrapKey. OAEP padding is verified, so a non-matching
// private key or a corrupted blob yields ErrIntegrity rather than a wrong key.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if priv == nil {
		return nil, errors.New("nil private key")
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, wrapLabel)
	if err != nil {
		return nil, ErrIntegrity
	}
	if len(key) != ContentKeySize {
		return nil, ErrIntegrity
	}
	return key, nil
}

// MarshalPrivateKey encodes priv as a PKCS#1 PEM block.
func MarshalPrivateKey(priv *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
}

// ParsePrivateKey decodes a PEM block produced by MarshalPrivateKey.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// MarshalPublicKey encodes pub as a PKIX PEM block.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKey decodes a PEM block produced by MarshalPublicKey.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}
