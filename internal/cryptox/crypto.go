// Package cryptox contains the cryptographic primitives of the notes server:
// authenticated field encryption under per-note content keys, RSA-OAEP
// wrapping of those keys, secretbox wrapping under share-link keys, and
// one-way digests for tokens and passwords.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dmitrijs2005/notekeeper/internal/common"
)

// ContentKeySize is the length of a note content key (AES-256).
const ContentKeySize = 32

// Field limits, counted in characters.
const (
	MaxHeaderLen = 30
	MaxTextLen   = 200
	MaxTagsLen   = 50
)

// ErrIntegrity is returned when ciphertext fails authentication, which also
// covers decryption under the wrong key.
var ErrIntegrity = errors.New("integrity check failed")

// Fields is the plaintext content of a note.
type Fields struct {
	Header string
	Text   string
	Tags   string
}

// SealedFields is the ciphertext counterpart of Fields. Each value is
// nonce || AES-GCM ciphertext.
type SealedFields struct {
	Header []byte
	Text   []byte
	Tags   []byte
}

// GenerateContentKey returns a fresh random content key.
func GenerateContentKey() ([]byte, error) {
	return randomBytes(ContentKeySize)
}

// CheckFieldLimits validates f against the field limits.
func CheckFieldLimits(f Fields) error {
	switch {
	case utf8.RuneCountInString(f.Header) > MaxHeaderLen:
		return fmt.Errorf("%w: header longer than %d characters", common.ErrorInvalidArgument, MaxHeaderLen)
	case utf8.RuneCountInString(f.Text) > MaxTextLen:
		return fmt.Errorf("%w: text longer than %d characters", common.ErrorInvalidArgument, MaxTextLen)
	case utf8.RuneCountInString(f.Tags) > MaxTagsLen:
		return fmt.Errorf("%w: tags longer than %d characters", common.ErrorInvalidArgument, MaxTagsLen)
	}
	return nil
}

// EncryptFields seals every field of f under key. Limits are checked before
// anything is encrypted. The field name is bound as associated data so sealed
// values cannot be swapped between columns.
func EncryptFields(key []byte, f Fields) (*SealedFields, error) {
	if err := CheckFieldLimits(f); err != nil {
		return nil, err
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	out := &SealedFields{}
	if out.Header, err = seal(aead, []byte(f.Header), "header"); err != nil {
		return nil, err
	}
	if out.Text, err = seal(aead, []byte(f.Text), "text"); err != nil {
		return nil, err
	}
	if out.Tags, err = seal(aead, []byte(f.Tags), "tags"); err != nil {
		return nil, err
	}
	return out, nil
}

// DecryptFields is the inverse of EncryptFields. It fails with ErrIntegrity
// if any field was sealed under a different key or has been modified.
func DecryptFields(key []byte, s *SealedFields) (*Fields, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	header, err := open(aead, s.Header, "header")
	if err != nil {
		return nil, err
	}
	text, err := open(aead, s.Text, "text")
	if err != nil {
		return nil, err
	}
	tags, err := open(aead, s.Tags, "tags")
	if err != nil {
		return nil, err
	}
	return &Fields{Header: string(header), Text: string(text), Tags: string(tags)}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != ContentKeySize {
		return nil, fmt.Errorf("invalid content key length %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(aead cipher.AEAD, plaintext []byte, field string) ([]byte, error) {
	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(field)), nil
}

func open(aead cipher.AEAD, sealed []byte, field string) ([]byte, error) {
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrIntegrity
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(field))
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
