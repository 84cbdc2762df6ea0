package metatx

import (
	"context"

	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/orm"
	"github.com/iov-one/msvault/store"
)

const bucketName = "metatx"

// BucketStore keeps transactions as versioned snapshots in a key value store.
// Writes are serialized by the underlying store.
type BucketStore struct {
	db     store.TxKVStore
	bucket orm.VersioningBucket
	feed   *Feed
}

var _ Store = (*BucketStore)(nil)

// NewBucketStore returns a store using given database.
func NewBucketStore(db store.TxKVStore) *BucketStore {
	return &BucketStore{
		db: db,
		bucket: orm.NewVersioningBucket(bucketName, func() orm.VersionedModel {
			return &ProposedTransaction{}
		}),
		feed: NewFeed(DefaultFeedBuffer),
	}
}

// Create implements Store.
func (s *BucketStore) Create(ctx context.Context, tx *ProposedTransaction) (*ProposedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx.ID != 0 {
		return nil, errors.Wrap(errors.ErrInput, "id is assigned by the store")
	}
	created := tx.Copy()
	err := s.db.Update(func(db store.KVStore) error {
		ref, err := s.bucket.Create(db, created)
		if err != nil {
			return err
		}
		created.ID = ref.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.feed.Publish(Event{Kind: EventCreated, Transaction: created})
	return created.Copy(), nil
}

// Get implements Store.
func (s *BucketStore) Get(ctx context.Context, id uint64) (*ProposedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tx *ProposedTransaction
	err := s.db.View(func(db store.ReadOnlyKVStore) error {
		ref, obj, err := s.bucket.GetLatestVersion(db, id)
		if err != nil {
			return err
		}
		tx, err = asTransaction(*ref, obj)
		return err
	})
	return tx, err
}

// Update implements Store.
func (s *BucketStore) Update(ctx context.Context, tx *ProposedTransaction) (*ProposedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next := tx.Copy()
	var prev *ProposedTransaction
	err := s.db.Update(func(db store.KVStore) error {
		ref, obj, err := s.bucket.GetLatestVersion(db, tx.ID)
		if err != nil {
			return err
		}
		if prev, err = asTransaction(*ref, obj); err != nil {
			return err
		}
		if prev.Version != next.Version {
			return errors.Wrapf(errors.ErrConflict,
				"transaction %d: read version %d, latest is %d", tx.ID, next.Version, prev.Version)
		}
		if err := CheckUpdate(prev, next); err != nil {
			return err
		}
		_, err = s.bucket.Update(db, tx.ID, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.feed.Publish(updateEvent(prev, next))
	return next.Copy(), nil
}

// List implements Store.
func (s *BucketStore) List(ctx context.Context, f Filter) ([]*ProposedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.State.Validate(); err != nil {
		return nil, err
	}
	var res []*ProposedTransaction
	err := s.db.View(func(db store.ReadOnlyKVStore) error {
		return s.bucket.IterateLatest(db, func(ref orm.VersionedIDRef, obj orm.VersionedModel) error {
			tx, err := asTransaction(ref, obj)
			if err != nil {
				return err
			}
			if f.Match(tx) {
				res = append(res, tx)
			}
			return nil
		})
	})
	return res, err
}

// History returns every stored snapshot of a transaction, oldest first.
func (s *BucketStore) History(ctx context.Context, id uint64) ([]*ProposedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res []*ProposedTransaction
	err := s.db.View(func(db store.ReadOnlyKVStore) error {
		objs, err := s.bucket.History(db, id)
		if err != nil {
			return err
		}
		for _, obj := range objs {
			tx, err := asTransaction(orm.VersionedIDRef{ID: id, Version: obj.GetVersion()}, obj)
			if err != nil {
				return err
			}
			res = append(res, tx)
		}
		return nil
	})
	return res, err
}

// Subscribe implements Store.
func (s *BucketStore) Subscribe(ctx context.Context, f Filter) (<-chan Event, error) {
	if err := f.State.Validate(); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, f), nil
}

func asTransaction(ref orm.VersionedIDRef, obj orm.VersionedModel) (*ProposedTransaction, error) {
	tx, ok := obj.(*ProposedTransaction)
	if !ok {
		return nil, errors.WithType(errors.ErrType, obj)
	}
	tx.ID = ref.ID
	if tx.Version != ref.Version {
		return nil, errors.Wrapf(errors.ErrDatabase, "transaction %d: stored version %d under key of %d", ref.ID, tx.Version, ref.Version)
	}
	return tx, nil
}
