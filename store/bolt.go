package store

import (
	"bytes"
	"time"

	"github.com/iov-one/msvault/errors"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("msvault")

// BoltStore is a TxKVStore persisting data in a single bbolt file. All keys
// share one bucket.
type BoltStore struct {
	db *bolt.DB
}

var _ TxKVStore = (*BoltStore)(nil)

// OpenBoltStore opens or creates the database file at given path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open bbolt %q: %s", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(errors.ErrDatabase, "create bucket: %s", err)
	}
	return &BoltStore{db: db}, nil
}

// View calls fn within a read only bbolt transaction.
func (s *BoltStore) View(fn func(ReadOnlyKVStore) error) error {
	var fnErr error
	err := s.db.View(func(tx *bolt.Tx) error {
		fnErr = fn(boltKV{b: tx.Bucket(boltBucket)})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Update calls fn within a read write bbolt transaction. The transaction is
// committed only if fn returns no error.
func (s *BoltStore) Update(fn func(KVStore) error) error {
	var fnErr error
	err := s.db.Update(func(tx *bolt.Tx) error {
		fnErr = fn(boltKV{b: tx.Bucket(boltBucket)})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// boltKV is valid only for the lifetime of the transaction owning the bucket.
// Returned values are copied because bbolt memory is reused after the
// transaction ends.
type boltKV struct {
	b *bolt.Bucket
}

var _ KVStore = boltKV{}

func (kv boltKV) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.Wrap(errors.ErrHuman, "empty key")
	}
	return copyBytes(kv.b.Get(key)), nil
}

func (kv boltKV) Has(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, errors.Wrap(errors.ErrHuman, "empty key")
	}
	return kv.b.Get(key) != nil, nil
}

func (kv boltKV) Set(key, value []byte) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrHuman, "empty key")
	}
	if err := kv.b.Put(key, value); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (kv boltKV) Delete(key []byte) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrHuman, "empty key")
	}
	if err := kv.b.Delete(key); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (kv boltKV) Iterator(start, end []byte) (Iterator, error) {
	var models []Model
	c := kv.b.Cursor()
	var k, v []byte
	if start == nil {
		k, v = c.First()
	} else {
		k, v = c.Seek(start)
	}
	for ; k != nil; k, v = c.Next() {
		if end != nil && bytes.Compare(k, end) >= 0 {
			break
		}
		models = append(models, Model{Key: copyBytes(k), Value: copyBytes(v)})
	}
	return newSliceIterator(models), nil
}

func (kv boltKV) ReverseIterator(start, end []byte) (Iterator, error) {
	var models []Model
	c := kv.b.Cursor()
	var k, v []byte
	if end == nil {
		k, v = c.Last()
	} else {
		// Seek positions at the first key >= end, which is excluded.
		k, v = c.Seek(end)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
	}
	for ; k != nil; k, v = c.Prev() {
		if start != nil && bytes.Compare(k, start) < 0 {
			break
		}
		models = append(models, Model{Key: copyBytes(k), Value: copyBytes(v)})
	}
	return newSliceIterator(models), nil
}
