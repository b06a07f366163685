// Package clientcrypto contains client-side primitives for sealing persisted session state.
package clientcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// sessionPurpose binds passphrase-derived keys to session sealing.
var sessionPurpose = []byte("social-client/session")

// ErrSealedTooShort is returned when a sealed blob cannot hold salt and nonce.
var ErrSealedTooShort = errors.New("sealed blob too short")

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives a sealing key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// DeriveSubkey derives a purpose-bound key via HKDF-SHA256 using purpose as info.
func DeriveSubkey(key, purpose []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, key, nil, purpose)
	out := make([]byte, KeyLen)
	_, err := r.Read(out)
	return out, err
}

// Seal encrypts plaintext with XChaCha20-Poly1305; output is nonce||ciphertext.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, aad)...)
	return out, nil
}

// Open decrypts a blob produced by Seal with the same key and aad.
func Open(key, blob, aad []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, ErrSealedTooShort
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, aad)
}

// SealWithPassphrase derives a fresh key per call; output is salt||nonce||ciphertext.
func SealWithPassphrase(passphrase, plaintext, aad []byte) ([]byte, error) {
	salt, err := Rand(SaltLen)
	if err != nil {
		return nil, err
	}
	key, err := DeriveSubkey(DeriveKey(passphrase, salt), sessionPurpose)
	if err != nil {
		return nil, err
	}
	sealed, err := Seal(key, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(passphrase, blob, aad []byte) ([]byte, error) {
	if len(blob) < SaltLen+chacha20poly1305.NonceSizeX {
		return nil, ErrSealedTooShort
	}
	key, err := DeriveSubkey(DeriveKey(passphrase, blob[:SaltLen]), sessionPurpose)
	if err != nil {
		return nil, err
	}
	return Open(key, blob[SaltLen:], aad)
}
