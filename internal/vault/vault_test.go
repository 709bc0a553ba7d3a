package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelt/coinflip-services/internal/commit"
)

func testVaults(t *testing.T) map[string]Vault {
	t.Helper()

	badgerVault, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { badgerVault.Close() })

	return map[string]Vault{
		"memory": NewMemory(),
		"badger": badgerVault,
	}
}

func TestPutGetDelete(t *testing.T) {
	for name, v := range testVaults(t) {
		t.Run(name, func(t *testing.T) {
			s, err := commit.GenerateSecret()
			require.NoError(t, err)

			key := MatchKey("alice", 42)
			require.NoError(t, v.Put(key, s))

			got, err := v.Get(key)
			require.NoError(t, err)
			assert.Equal(t, s, got)

			require.NoError(t, v.Delete(key))
			_, err = v.Get(key)
			assert.ErrorIs(t, err, ErrSecretNotFound)

			// delete is idempotent
			assert.NoError(t, v.Delete(key))
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, v := range testVaults(t) {
		t.Run(name, func(t *testing.T) {
			_, err := v.Get(MatchKey("alice", 9999))
			assert.ErrorIs(t, err, ErrSecretNotFound)
		})
	}
}

func TestOverwriteReplacesSecret(t *testing.T) {
	for name, v := range testVaults(t) {
		t.Run(name, func(t *testing.T) {
			first, err := commit.GenerateSecret()
			require.NoError(t, err)
			second, err := commit.GenerateSecret()
			require.NoError(t, err)

			key := MatchKey("alice", 1)
			require.NoError(t, v.Put(key, first))
			require.NoError(t, v.Put(key, second))

			got, err := v.Get(key)
			require.NoError(t, err)
			assert.Equal(t, second, got)
		})
	}
}

func TestKeysAreScopedPerMatch(t *testing.T) {
	for name, v := range testVaults(t) {
		t.Run(name, func(t *testing.T) {
			s1, err := commit.GenerateSecret()
			require.NoError(t, err)
			s2, err := commit.GenerateSecret()
			require.NoError(t, err)

			require.NoError(t, v.Put(MatchKey("alice", 1), s1))
			require.NoError(t, v.Put(MatchKey("alice", 2), s2))

			got, err := v.Get(MatchKey("alice", 1))
			require.NoError(t, err)
			assert.Equal(t, s1, got)
		})
	}
}

func TestKeysAreScopedPerAccount(t *testing.T) {
	for name, v := range testVaults(t) {
		t.Run(name, func(t *testing.T) {
			s1, err := commit.GenerateSecret()
			require.NoError(t, err)
			s2, err := commit.GenerateSecret()
			require.NoError(t, err)

			// both sides of one match sharing a vault
			require.NoError(t, v.Put(MatchKey("alice", 7), s1))
			require.NoError(t, v.Put(MatchKey("bob", 7), s2))

			got, err := v.Get(MatchKey("alice", 7))
			require.NoError(t, err)
			assert.Equal(t, s1, got)

			got, err = v.Get(MatchKey("bob", 7))
			require.NoError(t, err)
			assert.Equal(t, s2, got)
		})
	}
}

func TestBadgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	v, err := OpenBadger(dir)
	require.NoError(t, err)

	s, err := commit.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, v.Put(MatchKey("alice", 5), s))
	require.NoError(t, v.Close())

	reopened, err := OpenBadger(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(MatchKey("alice", 5))
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
