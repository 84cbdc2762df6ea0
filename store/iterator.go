package store

import (
	"github.com/iov-one/msvault/errors"
)

// Model is a key value pair as returned by iterators.
type Model struct {
	Key   []byte
	Value []byte
}

// sliceIterator iterates over a preloaded list of models. Backends whose
// native cursors are only valid inside of a transaction load the range
// eagerly.
type sliceIterator struct {
	models []Model
	pos    int
}

var _ Iterator = (*sliceIterator)(nil)

func newSliceIterator(models []Model) *sliceIterator {
	return &sliceIterator{models: models}
}

func (it *sliceIterator) Next() (key, value []byte, err error) {
	if it.pos >= len(it.models) {
		return nil, nil, errors.Wrap(errors.ErrIteratorDone, "slice iterator")
	}
	m := it.models[it.pos]
	it.pos++
	return m.Key, m.Value, nil
}

func (it *sliceIterator) Release() {
	it.models = nil
}

// Collect reads all remaining pairs of given iterator and releases it.
func Collect(it Iterator) ([]Model, error) {
	defer it.Release()
	var res []Model
	for {
		k, v, err := it.Next()
		if errors.ErrIteratorDone.Is(err) {
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		res = append(res, Model{Key: k, Value: v})
	}
}

// PrefixEnd returns the end of the range of all keys starting with given
// prefix. It returns nil, meaning no end, when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
