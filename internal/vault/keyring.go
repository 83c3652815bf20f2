package vault

import (
	"errors"
	"sync"

	"github.com/org/applock/internal/crypto"
)

const kekContext = "applock-vault-kek-v1"

// ErrSealed is returned by every vault operation while no key is loaded.
var ErrSealed = errors.New("vault is sealed")

// KeyRing holds the vault KEK in memory only while the vault is unsealed.
type KeyRing struct {
	mu     sync.RWMutex
	kek    []byte
	sealed bool
}

// NewKeyRing creates a KeyRing in sealed state.
func NewKeyRing() *KeyRing {
	return &KeyRing{sealed: true}
}

// IsSealed returns whether the key ring currently holds no key.
func (k *KeyRing) IsSealed() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.sealed
}

// Unseal derives the KEK from the platform-provided master key.
func (k *KeyRing) Unseal(masterKey []byte) error {
	kek, err := crypto.DeriveKEK(masterKey, kekContext)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	crypto.Zero(k.kek)
	k.kek = kek
	k.sealed = false
	return nil
}

// Seal wipes the KEK from memory.
func (k *KeyRing) Seal() {
	k.mu.Lock()
	defer k.mu.Unlock()
	crypto.Zero(k.kek)
	k.kek = nil
	k.sealed = true
}

// KEK returns a copy of the current KEK; callers zero it when done.
func (k *KeyRing) KEK() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.sealed {
		return nil, ErrSealed
	}
	kekCopy := make([]byte, len(k.kek))
	copy(kekCopy, k.kek)
	return kekCopy, nil
}
