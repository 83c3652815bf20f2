package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of every key handled here (AES-256).
const KeySize = 32

// ErrCiphertextTooShort is returned when a sealed blob cannot even hold a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// GenerateMasterKey generates a random vault master key. On a device this
// comes from the platform keystore; the daemon generates one in dev mode.
func GenerateMasterKey() ([]byte, error) {
	return randomKey("master key")
}

// GenerateDEK generates a random Data Encryption Key for a single vault value.
func GenerateDEK() ([]byte, error) {
	return randomKey("DEK")
}

func randomKey(what string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating %s: %w", what, err)
	}
	return key, nil
}

// DeriveKEK derives a Key Encryption Key from the master key using HKDF-SHA256.
func DeriveKEK(masterKey []byte, context string) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	kek := make([]byte, KeySize)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(context))
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("deriving KEK: %w", err)
	}
	return kek, nil
}

// Seal encrypts plaintext with AES-256-GCM, binding it to aad.
// The result is nonce||ciphertext.
func Seal(plaintext, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal. A different key or aad fails authentication.
func Open(sealed, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(sealed) < n {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := gcm.Open(nil, sealed[:n], sealed[n:], aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

// WrapDEK encrypts a DEK under the KEK.
func WrapDEK(dek, kek []byte) ([]byte, error) {
	wrapped, err := Seal(dek, kek, nil)
	if err != nil {
		return nil, fmt.Errorf("wrapping DEK: %w", err)
	}
	return wrapped, nil
}

// UnwrapDEK recovers a DEK wrapped by WrapDEK.
func UnwrapDEK(wrapped, kek []byte) ([]byte, error) {
	dek, err := Open(wrapped, kek, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrapping DEK: %w", err)
	}
	return dek, nil
}

// Zero overwrites key material in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
