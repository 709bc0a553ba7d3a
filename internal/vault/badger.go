package vault

import (
	"github.com/dgraph-io/badger"

	"github.com/abelt/coinflip-services/internal/commit"
)

// BadgerVault is a durable Vault backed by a local badger database.
// Secrets survive process restarts, which matters because reveal may
// happen days after commit.
type BadgerVault struct {
	db *badger.DB
}

func OpenBadger(dir string) (*BadgerVault, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerVault{db: db}, nil
}

func (v *BadgerVault) Put(key string, s commit.Secret) error {
	return v.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), s[:])
	})
}

func (v *BadgerVault) Get(key string) (commit.Secret, error) {
	var s commit.Secret
	err := v.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrSecretNotFound
			}
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		s, err = commit.SecretFromBytes(raw)
		return err
	})
	if err != nil {
		return commit.Secret{}, err
	}
	return s, nil
}

func (v *BadgerVault) Delete(key string) error {
	return v.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (v *BadgerVault) Close() error {
	return v.db.Close()
}
