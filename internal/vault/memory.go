package vault

import (
	"sync"

	"github.com/abelt/coinflip-services/internal/commit"
)

// MemoryVault is a non-durable Vault for tests.
type MemoryVault struct {
	mu      sync.Mutex
	secrets map[string]commit.Secret
}

func NewMemory() *MemoryVault {
	return &MemoryVault{secrets: make(map[string]commit.Secret)}
}

func (v *MemoryVault) Put(key string, s commit.Secret) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[key] = s
	return nil
}

func (v *MemoryVault) Get(key string) (commit.Secret, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.secrets[key]
	if !ok {
		return commit.Secret{}, ErrSecretNotFound
	}
	return s, nil
}

func (v *MemoryVault) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.secrets, key)
	return nil
}

func (v *MemoryVault) Close() error {
	return nil
}
