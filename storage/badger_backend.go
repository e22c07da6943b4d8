package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	"go.uber.org/zap"
)

// badgerZapLogger routes badger's internal logging through zap.
type badgerZapLogger struct {
	log *zap.SugaredLogger
}

func (l badgerZapLogger) Errorf(msg string, args ...interface{}) {
	l.log.Errorf(msg, args...)
}

func (l badgerZapLogger) Warningf(msg string, args ...interface{}) {
	l.log.Warnf(msg, args...)
}

func (l badgerZapLogger) Infof(msg string, args ...interface{}) {
	l.log.Infof(msg, args...)
}

func (l badgerZapLogger) Debugf(msg string, args ...interface{}) {
	l.log.Debugf(msg, args...)
}

func TestBadgerDB() *badger.DB {
	option := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(option)
	if err != nil {
		panic(err)
	}
	return db
}

// OpenBadger opens (or creates) a badger database at path. An empty path
// keeps everything in memory.
func OpenBadger(path string, logger *zap.Logger) (*badger.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	option := badger.DefaultOptions(path).
		WithLogger(badgerZapLogger{logger.Named("badger").Sugar()})
	if path == "" {
		option = option.WithInMemory(true)
	}
	db, err := badger.Open(option)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at '%s': %w", path, err)
	}
	return db, nil
}

type BadgerBackend struct {
	db *badger.DB
}

func NewBadgerBackend(db *badger.DB) *BadgerBackend {
	return &BadgerBackend{db: db}
}

func (backend *BadgerBackend) Close() error {
	return backend.db.Close()
}

func (backend *BadgerBackend) txnGet(key []byte) ([]byte, error) {
	var snapshotBytes []byte
	err := backend.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		snapshotBytes, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotNotFound, err)
	}
	return snapshotBytes, err
}

func (backend *BadgerBackend) txnPut(key, buf []byte) error {
	return backend.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

func (backend *BadgerBackend) txnDelete(key []byte) error {
	return backend.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (backend *BadgerBackend) Get(key uint64) ([]byte, error) {
	return backend.txnGet(GetKey(key))
}

func (backend *BadgerBackend) Put(key uint64, buf []byte) error {
	return backend.txnPut(GetKey(key), buf)
}

func (backend *BadgerBackend) Delete(key uint64) error {
	return backend.txnDelete(GetKey(key))
}

// IterateKeys calls lambda with every stored snapshot key.
func (backend *BadgerBackend) IterateKeys(lambda func(uint64) error) error {
	iterOpts := badger.IteratorOptions{Prefix: []byte{snapshotPrefix}}
	return backend.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Seek(iterOpts.Prefix); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if len(key) != keyLength {
				continue
			}
			if err := lambda(GetHashFromKey(key)); err != nil {
				return err
			}
		}
		return nil
	})
}
