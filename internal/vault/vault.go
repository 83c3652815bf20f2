package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/org/applock/internal/crypto"
	"github.com/org/applock/internal/storage"
)

// Well-known keys.
const (
	KeyCredentialRecord = "credential.record"
	KeySessionToken     = "session.access_token"
)

const envelopeVersion = "v1"

// ErrCorrupt is returned when a stored value cannot be decoded or authenticated.
var ErrCorrupt = errors.New("vault value corrupt")

// Vault is the encrypted key/value store everything else persists through.
// Each value gets its own DEK; the DEK is wrapped by the key ring's KEK and
// the ciphertext is bound to its key name.
type Vault struct {
	backend storage.Backend
	keys    *KeyRing
}

// New wraps a backend. The key ring must be unsealed before use.
func New(backend storage.Backend, keys *KeyRing) *Vault {
	return &Vault{backend: backend, keys: keys}
}

// Open builds a vault and unseals it with masterKey in one step.
func Open(backend storage.Backend, masterKey []byte) (*Vault, error) {
	keys := NewKeyRing()
	if err := keys.Unseal(masterKey); err != nil {
		return nil, fmt.Errorf("unsealing vault: %w", err)
	}
	return New(backend, keys), nil
}

// Get returns the decrypted value, or storage.ErrNotFound.
func (v *Vault) Get(ctx context.Context, key string) (string, error) {
	kek, err := v.keys.KEK()
	if err != nil {
		return "", err
	}
	defer crypto.Zero(kek)

	raw, err := v.backend.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return open(raw, key, kek)
}

// Set encrypts and stores value under key.
func (v *Vault) Set(ctx context.Context, key, value string) error {
	kek, err := v.keys.KEK()
	if err != nil {
		return err
	}
	defer crypto.Zero(kek)

	sealed, err := seal(value, key, kek)
	if err != nil {
		return err
	}
	return v.backend.Set(ctx, key, sealed)
}

// MultiGet decrypts all present keys. Absent keys are omitted.
func (v *Vault) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	kek, err := v.keys.KEK()
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(kek)

	raw, err := v.backend.MultiGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, sealed := range raw {
		plain, err := open(sealed, k, kek)
		if err != nil {
			return nil, err
		}
		out[k] = plain
	}
	return out, nil
}

// MultiSet encrypts all pairs and writes them atomically.
func (v *Vault) MultiSet(ctx context.Context, pairs map[string]string) error {
	kek, err := v.keys.KEK()
	if err != nil {
		return err
	}
	defer crypto.Zero(kek)

	sealed := make(map[string]string, len(pairs))
	for k, val := range pairs {
		s, err := seal(val, k, kek)
		if err != nil {
			return err
		}
		sealed[k] = s
	}
	return v.backend.MultiSet(ctx, sealed)
}

// Remove deletes keys. Removing a missing key is not an error.
func (v *Vault) Remove(ctx context.Context, keys ...string) error {
	if v.keys.IsSealed() {
		return ErrSealed
	}
	return v.backend.Remove(ctx, keys...)
}

// Sealed reports whether the vault has no key loaded.
func (v *Vault) Sealed() bool {
	return v.keys.IsSealed()
}

// Backend exposes the underlying store for audit persistence.
func (v *Vault) Backend() storage.Backend {
	return v.backend
}

// Close seals the vault and closes the backend.
func (v *Vault) Close() {
	v.keys.Seal()
	v.backend.Close()
}

func seal(value, key string, kek []byte) (string, error) {
	dek, err := crypto.GenerateDEK()
	if err != nil {
		return "", err
	}
	defer crypto.Zero(dek)

	ciphertext, err := crypto.Seal([]byte(value), dek, []byte(key))
	if err != nil {
		return "", fmt.Errorf("encrypting %s: %w", key, err)
	}
	wrapped, err := crypto.WrapDEK(dek, kek)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return envelopeVersion + "." + enc.EncodeToString(wrapped) + "." + enc.EncodeToString(ciphertext), nil
}

func open(stored, key string, kek []byte) (string, error) {
	parts := strings.Split(stored, ".")
	if len(parts) != 3 || parts[0] != envelopeVersion {
		return "", fmt.Errorf("%w: %s: bad envelope", ErrCorrupt, key)
	}
	enc := base64.RawURLEncoding
	wrapped, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	dek, err := crypto.UnwrapDEK(wrapped, kek)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	defer crypto.Zero(dek)

	plain, err := crypto.Open(ciphertext, dek, []byte(key))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return string(plain), nil
}
