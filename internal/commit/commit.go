package commit

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
)

// SecretSize is the length of a participant secret in bytes.
const SecretSize = 32

// CommitmentSize is the length of a commitment digest in bytes.
const CommitmentSize = sha256.Size

type Secret [SecretSize]byte

type Commitment [CommitmentSize]byte

var ErrCommitMismatch = errors.New("secret does not match commitment")

// GenerateSecret returns a fresh 32-byte secret from the system CSPRNG.
func GenerateSecret() (Secret, error) {
	var s Secret
	if _, err := io.ReadFull(rand.Reader, s[:]); err != nil {
		return Secret{}, err
	}
	return s, nil
}

// Commit derives the binding commitment for a secret.
func Commit(s Secret) Commitment {
	return Commitment(sha256.Sum256(s[:]))
}

// Verify checks that secret hashes to c.
func Verify(c Commitment, s Secret) error {
	if Commit(s) != c {
		return ErrCommitMismatch
	}
	return nil
}

// SecretFromBytes copies b into a Secret. It fails on any other length,
// a truncated secret would silently weaken the commitment.
func SecretFromBytes(b []byte) (Secret, error) {
	var s Secret
	if len(b) != SecretSize {
		return s, errors.New("secret must be exactly 32 bytes")
	}
	copy(s[:], b)
	return s, nil
}

// CommitmentFromBytes copies b into a Commitment.
func CommitmentFromBytes(b []byte) (Commitment, error) {
	var c Commitment
	if len(b) != CommitmentSize {
		return c, errors.New("commitment must be exactly 32 bytes")
	}
	copy(c[:], b)
	return c, nil
}
