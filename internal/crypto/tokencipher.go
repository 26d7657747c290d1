// Package crypto seals connection-token payloads with XChaCha20-Poly1305.
//
// The cipher takes a caller-supplied 24-byte nonce and additional data so the
// game server, which holds the same 32-byte key, can rebuild the associated
// data from the cleartext part of the token and authenticate it.
package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the symmetric key length in bytes.
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the XChaCha20 nonce length in bytes.
	NonceSize = chacha20poly1305.NonceSizeX
	// TagSize is the Poly1305 authentication tag length appended by Seal.
	TagSize = chacha20poly1305.Overhead
)

var (
	// ErrKeyLengthInvalid is returned when a key is not exactly KeySize bytes.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes")
	// ErrNonceLengthInvalid is returned when a nonce is not exactly NonceSize bytes.
	ErrNonceLengthInvalid = errors.New("crypto: nonce must be exactly 24 bytes")
	// ErrCiphertextCorrupted is returned when a ciphertext is shorter than the tag.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when authentication fails: wrong key, nonce or additional data.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
)

// TokenCipher encrypts and decrypts token payloads under one key.
type TokenCipher struct {
	key []byte
}

// NewTokenCipher creates a cipher with a 32-byte key. The key is copied.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeyLengthInvalid
	}
	keyCopy := make([]byte, KeySize)
	copy(keyCopy, key)
	return &TokenCipher{key: keyCopy}, nil
}

// Seal encrypts plaintext and returns ciphertext||tag, len(plaintext)+TagSize bytes.
// additionalData is authenticated but not encrypted.
func (tc *TokenCipher) Seal(nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrNonceLengthInvalid
	}

	aead, err := chacha20poly1305.NewX(tc.key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(plaintext)+TagSize)
	return aead.Seal(out, nonce, plaintext, additionalData), nil
}

// Open authenticates and decrypts a Seal output.
func (tc *TokenCipher) Open(nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrNonceLengthInvalid
	}
	if len(ciphertext) < TagSize {
		return nil, ErrCiphertextCorrupted
	}

	aead, err := chacha20poly1305.NewX(tc.key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// GenerateKey creates a cryptographically secure random 32-byte key.
func GenerateKey() ([]byte, error) {
	return randomBytes(rand.Reader, KeySize)
}

// GenerateNonce creates a cryptographically secure random 24-byte nonce.
func GenerateNonce() ([]byte, error) {
	return randomBytes(rand.Reader, NonceSize)
}

// ReadKey reads a key from r. It lets callers substitute the random source.
func ReadKey(r io.Reader) ([]byte, error) {
	return randomBytes(r, KeySize)
}

// ReadNonce reads a nonce from r.
func ReadNonce(r io.Reader) ([]byte, error) {
	return randomBytes(r, NonceSize)
}

func randomBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
