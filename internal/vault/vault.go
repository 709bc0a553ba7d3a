package vault

import (
	"errors"
	"fmt"

	"github.com/abelt/coinflip-services/internal/commit"
)

var ErrSecretNotFound = errors.New("no secret stored for this match")

// Vault keeps a participant's secrets between the commit and reveal
// phases, keyed by match. Implementations must be durable if a reveal
// can happen in a later process (badger); the in-memory one is for
// tests and throwaway bots.
type Vault interface {
	Put(key string, s commit.Secret) error
	Get(key string) (commit.Secret, error)
	Delete(key string) error
	Close() error
}

// MatchKey is the vault key for a secret bound to a known match id.
// Keys carry the owning account so two sessions sharing one vault
// (both sides of a match, say) can never clobber each other's secret.
func MatchKey(account string, matchID uint64) string {
	return fmt.Sprintf("seed_%s_%d", account, matchID)
}

// PendingKey holds a CREATE secret until the engine assigns a match id.
func PendingKey(account, submissionID string) string {
	return fmt.Sprintf("pending_%s_%s", account, submissionID)
}
