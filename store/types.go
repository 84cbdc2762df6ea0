package store

// ReadOnlyKVStore is a simple interface to query data.
type ReadOnlyKVStore interface {
	// Get returns nil iff key doesn't exist. Returns error on nil key.
	Get(key []byte) ([]byte, error)

	// Has checks if a key exists. Returns error on nil key.
	Has(key []byte) (bool, error)

	// Iterator over a domain of keys in ascending order. End is exclusive.
	// Start must be less than end, or the Iterator is invalid.
	// A nil start or end means an unbounded side of the range.
	Iterator(start, end []byte) (Iterator, error)

	// ReverseIterator over a domain of keys in descending order. End is
	// exclusive.
	ReverseIterator(start, end []byte) (Iterator, error)
}

// KVStore is a simple interface to get/set data.
type KVStore interface {
	ReadOnlyKVStore

	// Set sets the key. Returns error on nil key.
	Set(key, value []byte) error

	// Delete deletes the key. Returns error on nil key.
	Delete(key []byte) error
}

/*
Iterator allows us to access a set of items within a range of
keys. These may all be preloaded, or loaded on demand.

  Usage:

  var itr Iterator = ...
  defer itr.Release()

  for {
    k, v, err := itr.Next()
    if errors.ErrIteratorDone.Is(err) {
      break
    }
    if err != nil {
      return err
    }
    // ...
  }
*/
type Iterator interface {
	// Next moves the iterator to the next sequential key in the database, as
	// defined by order of iteration.
	//
	// Returns (nil, nil, errors.ErrIteratorDone) if there is no more data
	Next() (key, value []byte, err error)

	// Release releases the Iterator, allowing it to do any needed cleanup.
	Release()
}

// TxKVStore is a store that serializes access to its content. All writes
// made inside of an Update callback are applied atomically if the callback
// returns no error and discarded otherwise. A View callback observes a
// consistent snapshot.
type TxKVStore interface {
	View(fn func(ReadOnlyKVStore) error) error
	Update(fn func(KVStore) error) error
	Close() error
}
