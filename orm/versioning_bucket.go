package orm

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/store"
)

const (
	idSize      = 8
	versionSize = 4
)

// VersionedIDRef points to a single version of an entity.
type VersionedIDRef struct {
	ID      uint64
	Version uint32
}

// NextVersion returns a reference to the version following this one.
func (r VersionedIDRef) NextVersion() (VersionedIDRef, error) {
	if r.Version == math.MaxUint32 {
		return VersionedIDRef{}, errors.Wrap(errors.ErrState, "version overflow")
	}
	return VersionedIDRef{ID: r.ID, Version: r.Version + 1}, nil
}

// VersioningBucket stores entities as immutable versions. Objects can not be
// overwritten, instead Create and Update methods are provided to support a
// history of object versions.
type VersioningBucket struct {
	name     string
	prefix   []byte
	seq      Sequence
	newModel func() VersionedModel
}

// NewVersioningBucket returns a bucket of given name. newModel must return a
// new, empty instance of the stored model.
func NewVersioningBucket(name string, newModel func() VersionedModel) VersioningBucket {
	return VersioningBucket{
		name:     name,
		prefix:   []byte(name + ":"),
		seq:      NewSequence(name, "id"),
		newModel: newModel,
	}
}

// Name returns the bucket name.
func (b VersioningBucket) Name() string {
	return b.name
}

// DBKey is the full key of given version in the database.
func (b VersioningBucket) DBKey(ref VersionedIDRef) []byte {
	key := make([]byte, 0, len(b.prefix)+idSize+versionSize)
	key = append(key, b.prefix...)
	return append(key, MarshalVersionedID(ref)...)
}

func (b VersioningBucket) parseKey(key []byte) (VersionedIDRef, error) {
	if !bytes.HasPrefix(key, b.prefix) {
		return VersionedIDRef{}, errors.Wrapf(errors.ErrDatabase, "key %x outside of bucket %s", key, b.name)
	}
	return UnmarshalVersionedID(key[len(b.prefix):])
}

func (b VersioningBucket) parse(raw []byte) (VersionedModel, error) {
	m := b.newModel()
	if err := m.Unmarshal(raw); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "unmarshal %s: %s", b.name, err)
	}
	return m, nil
}

// GetLatestVersion finds the latest version for the given id and returns the
// VersionedIDRef and loaded object. ErrNotFound is returned when no entity
// with given id exists.
func (b VersioningBucket) GetLatestVersion(db store.ReadOnlyKVStore, id uint64) (*VersionedIDRef, VersionedModel, error) {
	start := b.DBKey(VersionedIDRef{ID: id, Version: 0})
	end := store.PrefixEnd(b.DBKey(VersionedIDRef{ID: id, Version: math.MaxUint32}))
	iter, err := db.ReverseIterator(start, end)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to setup iterator")
	}
	defer iter.Release()

	k, v, err := iter.Next()
	if errors.ErrIteratorDone.Is(err) {
		return nil, nil, errors.Wrapf(errors.ErrNotFound, "%s %d", b.name, id)
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "iterating for latest version")
	}
	ref, err := b.parseKey(k)
	if err != nil {
		return nil, nil, err
	}
	obj, err := b.parse(v)
	if err != nil {
		return nil, nil, err
	}
	return &ref, obj, nil
}

// GetVersion returns the stored object for the given VersionedIDRef.
func (b VersioningBucket) GetVersion(db store.ReadOnlyKVStore, ref VersionedIDRef) (VersionedModel, error) {
	raw, err := db.Get(b.DBKey(ref))
	switch {
	case err != nil:
		return nil, err
	case raw == nil:
		return nil, errors.Wrapf(errors.ErrNotFound, "%s %d version %d", b.name, ref.ID, ref.Version)
	}
	return b.parse(raw)
}

// Create assigns the next sequence id and the initial version to given object
// and stores it.
func (b VersioningBucket) Create(db store.KVStore, data VersionedModel) (*VersionedIDRef, error) {
	if data.GetVersion() != 0 {
		return nil, errors.Wrap(errors.ErrInput, "version is set on create")
	}
	id, err := b.seq.NextInt(db)
	if err != nil {
		return nil, errors.Wrap(err, "sequence")
	}
	ref := VersionedIDRef{ID: id, Version: 1}
	data.SetVersion(ref.Version)
	if err := b.save(db, ref, data); err != nil {
		data.SetVersion(0)
		return nil, err
	}
	return &ref, nil
}

// Update persists given object as the version following the one it carries.
// The carried version must be the latest one stored, otherwise ErrConflict
// is returned. This is how a writer detects that someone else updated the
// object since it was read.
//
// On success the object version is updated.
func (b VersioningBucket) Update(db store.KVStore, id uint64, data VersionedModel) (*VersionedIDRef, error) {
	if data.GetVersion() == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "version not set")
	}
	latest, _, err := b.GetLatestVersion(db, id)
	if err != nil {
		return nil, err
	}
	if latest.Version != data.GetVersion() {
		return nil, errors.Wrapf(errors.ErrConflict,
			"%s %d: read version %d, latest is %d", b.name, id, data.GetVersion(), latest.Version)
	}
	next, err := latest.NextVersion()
	if err != nil {
		return nil, err
	}
	prev := data.GetVersion()
	data.SetVersion(next.Version)
	if err := b.save(db, next, data); err != nil {
		data.SetVersion(prev)
		return nil, err
	}
	return &next, nil
}

func (b VersioningBucket) save(db store.KVStore, ref VersionedIDRef, data VersionedModel) error {
	if err := data.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}
	raw, err := data.Marshal()
	if err != nil {
		return errors.Wrapf(errors.ErrModel, "marshal: %s", err)
	}
	return db.Set(b.DBKey(ref), raw)
}

// History returns all versions of an entity, oldest first.
func (b VersioningBucket) History(db store.ReadOnlyKVStore, id uint64) ([]VersionedModel, error) {
	start := b.DBKey(VersionedIDRef{ID: id, Version: 0})
	end := store.PrefixEnd(b.DBKey(VersionedIDRef{ID: id, Version: math.MaxUint32}))
	iter, err := db.Iterator(start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup iterator")
	}
	models, err := store.Collect(iter)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "%s %d", b.name, id)
	}
	res := make([]VersionedModel, len(models))
	for i, m := range models {
		if res[i], err = b.parse(m.Value); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// IterateLatest calls fn with the latest version of every entity, ordered by
// id. Returning ErrIteratorDone from fn stops the iteration without an error.
func (b VersioningBucket) IterateLatest(db store.ReadOnlyKVStore, fn func(VersionedIDRef, VersionedModel) error) error {
	iter, err := db.Iterator(b.prefix, store.PrefixEnd(b.prefix))
	if err != nil {
		return errors.Wrap(err, "failed to setup iterator")
	}
	models, err := store.Collect(iter)
	if err != nil {
		return err
	}
	for i, m := range models {
		ref, err := b.parseKey(m.Key)
		if err != nil {
			return err
		}
		// Versions of one entity are stored next to each other, only the
		// last one of a run is the latest.
		if i+1 < len(models) {
			nextRef, err := b.parseKey(models[i+1].Key)
			if err != nil {
				return err
			}
			if nextRef.ID == ref.ID {
				continue
			}
		}
		obj, err := b.parse(m.Value)
		if err != nil {
			return err
		}
		if err := fn(ref, obj); err != nil {
			if errors.ErrIteratorDone.Is(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

// MarshalVersionedID is used to guarantee determinism while serializing a
// VersionedIDRef. Keys sort by id first and version second.
func MarshalVersionedID(ref VersionedIDRef) []byte {
	res := make([]byte, idSize+versionSize)
	binary.BigEndian.PutUint64(res, ref.ID)
	binary.BigEndian.PutUint32(res[idSize:], ref.Version)
	return res
}

// UnmarshalVersionedID is used to deserialize a VersionedIDRef from a
// deterministic format.
func UnmarshalVersionedID(b []byte) (VersionedIDRef, error) {
	if len(b) != idSize+versionSize {
		return VersionedIDRef{}, errors.Wrapf(errors.ErrState, "versioned id of %d bytes", len(b))
	}
	return VersionedIDRef{
		ID:      binary.BigEndian.Uint64(b),
		Version: binary.BigEndian.Uint32(b[idSize:]),
	}, nil
}
