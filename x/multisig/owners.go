package multisig

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/errors"
)

// OwnerSet is a set of vault owner addresses. Order is irrelevant.
type OwnerSet map[common.Address]struct{}

// NewOwnerSet returns a set of given addresses. Duplicates are collapsed.
func NewOwnerSet(owners ...common.Address) OwnerSet {
	set := make(OwnerSet, len(owners))
	for _, o := range owners {
		set[o] = struct{}{}
	}
	return set
}

// Has returns true if given address is an owner.
func (s OwnerSet) Has(a common.Address) bool {
	_, ok := s[a]
	return ok
}

// Len returns the number of owners.
func (s OwnerSet) Len() int {
	return len(s)
}

// Sorted returns all owners in ascending byte order.
func (s OwnerSet) Sorted() []common.Address {
	res := make([]common.Address, 0, len(s))
	for a := range s {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i][:], res[j][:]) < 0
	})
	return res
}

// ValidateThreshold returns an error if given threshold cannot be satisfied
// by this owner set.
func (s OwnerSet) ValidateThreshold(threshold uint64) error {
	switch {
	case len(s) == 0:
		return errors.Wrap(errors.ErrState, "no owners")
	case threshold < 1:
		return errors.Wrap(errors.ErrState, "threshold must be greater than 0")
	case threshold > uint64(len(s)):
		return errors.Wrapf(errors.ErrState,
			"threshold is %d and must not be greater than %d owners", threshold, len(s))
	}
	return nil
}
