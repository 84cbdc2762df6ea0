package store

import (
	"testing"

	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/vaulttest/assert"
)

/*
TestSuite provides many methods that can be called in package-specific test
code. We just customize the store being tested (pass in constructor), the rest
of the logic is generic to the TxKVStore interface.

This removes duplication between the btree and the bbolt tests, but can be
used for any implementation of TxKVStore.
*/
type TestSuite struct {
	makeBase TestStoreConstructor
}

// TestStoreConstructor returns a new empty store and a function releasing it.
type TestStoreConstructor func(t testing.TB) (base TxKVStore, cleanup func())

func NewTestSuite(constructor TestStoreConstructor) *TestSuite {
	return &TestSuite{
		makeBase: constructor,
	}
}

// GetSet does basic sanity checks of reads and writes.
func (s *TestSuite) GetSet(t *testing.T) {
	base, cleanup := s.makeBase(t)
	defer cleanup()

	k, v := []byte("french"), []byte("fry")
	s.AssertGetHas(t, base, k, nil, false)
	assert.Nil(t, base.Update(func(db KVStore) error {
		return db.Set(k, v)
	}))
	s.AssertGetHas(t, base, k, v, true)

	assert.Nil(t, base.Update(func(db KVStore) error {
		return db.Delete(k)
	}))
	s.AssertGetHas(t, base, k, nil, false)
}

// Rollback checks that a failed update leaves no trace.
func (s *TestSuite) Rollback(t *testing.T) {
	base, cleanup := s.makeBase(t)
	defer cleanup()

	k, v := []byte("kept"), []byte("value")
	assert.Nil(t, base.Update(func(db KVStore) error {
		return db.Set(k, v)
	}))

	err := base.Update(func(db KVStore) error {
		if err := db.Set([]byte("lost"), []byte("x")); err != nil {
			return err
		}
		if err := db.Delete(k); err != nil {
			return err
		}
		// Writes are visible within the same update.
		got, err := db.Get([]byte("lost"))
		if err != nil {
			return err
		}
		assert.EqualBytes(t, []byte("x"), got)
		return errors.ErrConflict.New("abort")
	})
	assert.IsErr(t, errors.ErrConflict, err)

	s.AssertGetHas(t, base, k, v, true)
	s.AssertGetHas(t, base, []byte("lost"), nil, false)
}

// Iterators checks range boundaries and ordering of both iterator kinds.
func (s *TestSuite) Iterators(t *testing.T) {
	base, cleanup := s.makeBase(t)
	defer cleanup()

	keys := []string{"a1", "a2", "a3", "b1", "c1"}
	// Insert out of order.
	assert.Nil(t, base.Update(func(db KVStore) error {
		for i := len(keys) - 1; i >= 0; i-- {
			if err := db.Set([]byte(keys[i]), []byte("v"+keys[i])); err != nil {
				return err
			}
		}
		return nil
	}))

	cases := map[string]struct {
		reverse    bool
		start, end []byte
		want       []string
	}{
		"all ascending": {
			want: []string{"a1", "a2", "a3", "b1", "c1"},
		},
		"all descending": {
			reverse: true,
			want:    []string{"c1", "b1", "a3", "a2", "a1"},
		},
		"prefix ascending": {
			start: []byte("a"), end: PrefixEnd([]byte("a")),
			want: []string{"a1", "a2", "a3"},
		},
		"prefix descending": {
			reverse: true,
			start:   []byte("a"), end: PrefixEnd([]byte("a")),
			want: []string{"a3", "a2", "a1"},
		},
		"end is exclusive": {
			start: []byte("a2"), end: []byte("b1"),
			want: []string{"a2", "a3"},
		},
		"end is exclusive descending": {
			reverse: true,
			start:   []byte("a2"), end: []byte("b1"),
			want: []string{"a3", "a2"},
		},
		"open start": {
			end:  []byte("a3"),
			want: []string{"a1", "a2"},
		},
		"open end descending": {
			reverse: true,
			start:   []byte("b"),
			want:    []string{"c1", "b1"},
		},
		"empty range": {
			start: []byte("x"), end: []byte("z"),
			want: nil,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var got []string
			assert.Nil(t, base.View(func(db ReadOnlyKVStore) error {
				var it Iterator
				var err error
				if tc.reverse {
					it, err = db.ReverseIterator(tc.start, tc.end)
				} else {
					it, err = db.Iterator(tc.start, tc.end)
				}
				if err != nil {
					return err
				}
				models, err := Collect(it)
				if err != nil {
					return err
				}
				for _, m := range models {
					assert.EqualBytes(t, append([]byte("v"), m.Key...), m.Value)
					got = append(got, string(m.Key))
				}
				return nil
			}))
			assert.Equal(t, tc.want, got)
		})
	}
}

// SnapshotIsolation checks that values read in a view do not change when
// the store is updated later.
func (s *TestSuite) SnapshotIsolation(t *testing.T) {
	base, cleanup := s.makeBase(t)
	defer cleanup()

	k := []byte("key")
	assert.Nil(t, base.Update(func(db KVStore) error {
		return db.Set(k, []byte("one"))
	}))

	var read []byte
	assert.Nil(t, base.View(func(db ReadOnlyKVStore) error {
		v, err := db.Get(k)
		read = v
		return err
	}))
	assert.Nil(t, base.Update(func(db KVStore) error {
		return db.Set(k, []byte("two"))
	}))
	assert.EqualBytes(t, []byte("one"), read)
	s.AssertGetHas(t, base, k, []byte("two"), true)
}

// AssertGetHas makes sure that both Get and Has return the expected result.
func (s *TestSuite) AssertGetHas(t testing.TB, st TxKVStore, key, value []byte, has bool) {
	t.Helper()
	err := st.View(func(db ReadOnlyKVStore) error {
		got, err := db.Get(key)
		if err != nil {
			return err
		}
		assert.EqualBytes(t, value, got)
		exists, err := db.Has(key)
		if err != nil {
			return err
		}
		assert.Equal(t, has, exists)
		return nil
	})
	assert.Nil(t, err)
}
