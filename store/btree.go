package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/iov-one/msvault/errors"
)

const (
	// DefaultFreeListSize is the size we hold for free node in btree
	DefaultFreeListSize = btree.DefaultFreeListSize
)

// MemStore is a TxKVStore keeping all data in a btree. There is no
// persistence here. Update works on a copy on write clone of the tree that
// replaces the current one only when the callback succeeds.
type MemStore struct {
	mu sync.Mutex
	bt *btree.BTree
}

var _ TxKVStore = (*MemStore)(nil)

// NewMemStore returns an empty in memory store.
func NewMemStore() *MemStore {
	free := btree.NewFreeList(DefaultFreeListSize)
	return &MemStore{bt: btree.NewWithFreeList(2, free)}
}

// View calls fn with the state as it is at the time of the call.
func (m *MemStore) View(fn func(ReadOnlyKVStore) error) error {
	// Clone modifies the copy on write context of the source tree, so it
	// requires an exclusive lock.
	m.mu.Lock()
	bt := m.bt.Clone()
	m.mu.Unlock()
	return fn(btreeKV{bt: bt})
}

// Update calls fn with a writable store. Updates are serialized.
func (m *MemStore) Update(fn func(KVStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.bt.Clone()
	if err := fn(btreeKV{bt: work}); err != nil {
		return err
	}
	m.bt = work
	return nil
}

// Close is a noop.
func (m *MemStore) Close() error {
	return nil
}

// btreeKV exposes a btree as a KVStore.
type btreeKV struct {
	bt *btree.BTree
}

var _ KVStore = btreeKV{}

func (b btreeKV) Get(key []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.Wrap(errors.ErrHuman, "nil key")
	}
	if res := b.bt.Get(bkey{key}); res != nil {
		item, ok := res.(setItem)
		if !ok {
			return nil, errors.Wrapf(errors.ErrDatabase, "unknown item in btree: %#v", res)
		}
		return item.value, nil
	}
	return nil, nil
}

func (b btreeKV) Has(key []byte) (bool, error) {
	if key == nil {
		return false, errors.Wrap(errors.ErrHuman, "nil key")
	}
	return b.bt.Has(bkey{key}), nil
}

func (b btreeKV) Set(key, value []byte) error {
	if key == nil {
		return errors.Wrap(errors.ErrHuman, "nil key")
	}
	b.bt.ReplaceOrInsert(newSetItem(copyBytes(key), copyBytes(value)))
	return nil
}

func (b btreeKV) Delete(key []byte) error {
	if key == nil {
		return errors.Wrap(errors.ErrHuman, "nil key")
	}
	b.bt.Delete(bkey{key})
	return nil
}

// Iterator over a domain of keys in ascending order.
func (b btreeKV) Iterator(start, end []byte) (Iterator, error) {
	var models []Model
	collect := func(i btree.Item) bool {
		item := i.(setItem)
		models = append(models, Model{Key: item.key, Value: item.value})
		return true
	}
	switch {
	case start == nil && end == nil:
		b.bt.Ascend(collect)
	case start == nil:
		b.bt.AscendLessThan(bkey{end}, collect)
	case end == nil:
		b.bt.AscendGreaterOrEqual(bkey{start}, collect)
	default:
		b.bt.AscendRange(bkey{start}, bkey{end}, collect)
	}
	return newSliceIterator(models), nil
}

// ReverseIterator over a domain of keys in descending order. Start is
// inclusive and end exclusive, same as for Iterator.
func (b btreeKV) ReverseIterator(start, end []byte) (Iterator, error) {
	var models []Model
	collect := func(i btree.Item) bool {
		item := i.(setItem)
		if start != nil && bytes.Compare(item.key, start) < 0 {
			return false
		}
		models = append(models, Model{Key: item.key, Value: item.value})
		return true
	}
	if end == nil {
		b.bt.Descend(collect)
	} else {
		// DescendLessOrEqual includes the pivot, end is exclusive.
		b.bt.DescendLessOrEqual(bkey{end}, func(i btree.Item) bool {
			if bytes.Equal(i.(setItem).key, end) {
				return true
			}
			return collect(i)
		})
	}
	return newSliceIterator(models), nil
}

/////////////////////////////////////////////////////////
// Items to write to btree

// we enforce all data in our btree implements keyer so we
// can compare nicely
type keyer interface {
	Key() []byte
}

// bkey implements keyer and btree.Item
// and may be used for queries or embedded in data to store
type bkey struct {
	key []byte
}

var _ keyer = bkey{}
var _ btree.Item = bkey{}

func (k bkey) Key() []byte {
	return k.key
}

// Less returns true iff second argument is greater than first
//
// panics if the item to compare doesn't implement keyer.
func (k bkey) Less(item btree.Item) bool {
	cmp := item.(keyer).Key()
	return bytes.Compare(k.key, cmp) < 0
}

type setItem struct {
	bkey
	value []byte
}

func newSetItem(key, value []byte) setItem {
	return setItem{bkey{key}, value}
}
