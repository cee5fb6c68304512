package cryptox

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// LinkKeySize is the length of a share-link key.
const LinkKeySize = 32

const secretboxNonceSize = 24

// GenerateLinkKey returns a fresh random link key.
func GenerateLinkKey() ([]byte, error) {
	return randomBytes(LinkKeySize)
}

// SealWithLinkKey wraps a content key under a link key with NaCl secretbox.
// The output is nonce || box.
func SealWithLinkKey(linkKey, contentKey []byte) ([]byte, error) {
	key, err := toKey(linkKey)
	if err != nil {
		return nil, err
	}
	var nonce [secretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], contentKey, &nonce, key), nil
}

// OpenWithLinkKey reverses SealWithLinkKey.
func OpenWithLinkKey(linkKey, sealed []byte) ([]byte, error) {
	key, err := toKey(linkKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < secretboxNonceSize+secretbox.Overhead {
		return nil, ErrIntegrity
	}
	var nonce [secretboxNonceSize]byte
	copy(nonce[:], sealed[:secretboxNonceSize])

	contentKey, ok := secretbox.Open(nil, sealed[secretboxNonceSize:], &nonce, key)
	if !ok {
		return nil, ErrIntegrity
	}
	return contentKey, nil
}

func toKey(b []byte) (*[LinkKeySize]byte, error) {
	if len(b) != LinkKeySize {
		return nil, fmt.Errorf("invalid link key length %d", len(b))
	}
	var key [LinkKeySize]byte
	copy(key[:], b)
	return &key, nil
}
