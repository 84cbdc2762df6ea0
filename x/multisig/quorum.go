package multisig

import (
	"github.com/ethereum/go-ethereum/common"
)

// Actions describes what a caller is allowed to do with a transaction.
// CanConfirm and CanRevoke are never both true.
type Actions struct {
	CanConfirm bool `json:"canConfirm"`
	CanExecute bool `json:"canExecute"`
	CanRevoke  bool `json:"canRevoke"`
}

// Evaluate returns the actions caller may take on a transaction confirmed by
// given signers.
//
// An executed transaction permits nothing and neither does a caller that is
// not a current owner. Otherwise a caller may revoke its own confirmation, may
// confirm while the quorum is not met and it did not confirm yet, and may
// execute once at least threshold current owners confirmed.
func Evaluate(owners OwnerSet, threshold uint64, signers []common.Address, executed bool, caller common.Address) Actions {
	if executed || !owners.Has(caller) {
		return Actions{}
	}
	confirmedSelf := contains(signers, caller)
	if MeetsQuorum(owners, threshold, signers) {
		return Actions{
			CanExecute: true,
			CanRevoke:  confirmedSelf,
		}
	}
	return Actions{
		CanConfirm: !confirmedSelf,
		CanRevoke:  confirmedSelf,
	}
}

// ValidConfirmations returns the number of distinct signers that are current
// owners.
func ValidConfirmations(owners OwnerSet, signers []common.Address) int {
	seen := make(map[common.Address]struct{}, len(signers))
	var n int
	for _, s := range signers {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		if owners.Has(s) {
			n++
		}
	}
	return n
}

// MeetsQuorum returns true if at least threshold current owners are among the
// signers. A zero threshold never meets the quorum.
func MeetsQuorum(owners OwnerSet, threshold uint64, signers []common.Address) bool {
	if threshold == 0 {
		return false
	}
	return uint64(ValidConfirmations(owners, signers)) >= threshold
}

// Confirmation tells if an owner confirmed a transaction.
type Confirmation struct {
	Owner     common.Address `json:"owner"`
	Confirmed bool           `json:"confirmed"`
}

// Confirmations returns the confirmation state of every current owner, in
// ascending address order.
func Confirmations(owners OwnerSet, signers []common.Address) []Confirmation {
	sorted := owners.Sorted()
	res := make([]Confirmation, len(sorted))
	for i, o := range sorted {
		res[i] = Confirmation{Owner: o, Confirmed: contains(signers, o)}
	}
	return res
}

func contains(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
