// Package cryptox wraps the authenticated ciphers and key derivation used for
// file encryption.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Algorithm identifies an AEAD construction. The value is persisted next to
// every ciphertext.
type Algorithm string

const (
	AES256GCM         Algorithm = "AES-256-GCM"
	XChaCha20Poly1305 Algorithm = "XCHACHA20-POLY1305"
)

// KeySize is the key length every supported algorithm expects.
const KeySize = 32

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrAuthentication means the ciphertext, nonce or additional data were
	// altered, or the wrong key was used.
	ErrAuthentication = errors.New("message authentication failed")
)

// ParseAlgorithm validates a stored or configured algorithm name. Empty maps
// to AES-256-GCM.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", AES256GCM:
		return AES256GCM, nil
	case XChaCha20Poly1305:
		return XChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	switch alg {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case XChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

// Seal encrypts plaintext under key with a fresh random nonce. The additional
// data is authenticated but not stored; Open must be given the same value.
func Seal(alg Algorithm, key, plaintext, additionalData []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, additionalData)
	return ciphertext, nonce, nil
}

// Open reverses Seal. Any tampering surfaces as ErrAuthentication.
func Open(alg Algorithm, key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrAuthentication, len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// DeriveSubkey expands a master key into an independent KeySize key for the
// given purpose using HKDF-SHA256.
func DeriveSubkey(master []byte, info string) ([]byte, error) {
	if len(master) < 16 {
		return nil, errors.New("master key too short")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveMasterKey stretches a passphrase into a 32 byte key with Argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}
