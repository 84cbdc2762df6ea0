package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/x/multisig"
)

// Vault is a single deployed multisig vault contract.
type Vault interface {
	Address() common.Address

	// Owners returns the current owner set.
	Owners(ctx context.Context) ([]common.Address, error)
	// ConfirmationsRequired returns the current threshold.
	ConfirmationsRequired(ctx context.Context) (uint64, error)
	// State returns owners and threshold as observed at a single point.
	State(ctx context.Context) (*State, error)

	GetTransactionHash(ctx context.Context, calldata []byte) (common.Hash, error)
	Recover(ctx context.Context, hash common.Hash, sig []byte) (common.Address, error)
	IsOwner(ctx context.Context, addr common.Address) (bool, error)

	// ExecuteTransaction submits calldata together with signatures ordered
	// ascending by signer. A rejected execution returns ErrExecutionFailed or,
	// when the calldata was executed before, ErrAlreadyExecuted.
	ExecuteTransaction(ctx context.Context, calldata []byte, sigs [][]byte) (*Receipt, error)
}

// Connector resolves vaults by their address.
type Connector interface {
	// Vault returns ErrNotFound if no vault is deployed at given address.
	Vault(ctx context.Context, addr common.Address) (Vault, error)
}

// State is the owner set and threshold of a vault.
type State struct {
	Address   common.Address   `json:"address"`
	Owners    []common.Address `json:"owners"`
	Threshold uint64           `json:"threshold"`
}

// Validate returns an error if this state cannot belong to a working vault.
func (s *State) Validate() error {
	var errs error
	if s.Address == (common.Address{}) {
		errs = errors.AppendField(errs, "Address", errors.ErrEmpty)
	}
	set := multisig.NewOwnerSet(s.Owners...)
	if set.Len() != len(s.Owners) {
		errs = errors.Append(errs, errors.Field("Owners", errors.ErrDuplicate, "repeated owner"))
	}
	if _, ok := set[common.Address{}]; ok {
		errs = errors.Append(errs, errors.Field("Owners", errors.ErrInput, "zero address"))
	}
	errs = errors.AppendField(errs, "Threshold", set.ValidateThreshold(s.Threshold))
	return errs
}

// OwnerSet returns the owners as a set.
func (s *State) OwnerSet() multisig.OwnerSet {
	return multisig.NewOwnerSet(s.Owners...)
}

// IsOwner returns true if given address is a current owner.
func (s *State) IsOwner(a common.Address) bool {
	for _, o := range s.Owners {
		if o == a {
			return true
		}
	}
	return false
}

// Receipt describes a mined execution.
type Receipt struct {
	TxHash      common.Hash      `json:"txHash"`
	BlockNumber uint64           `json:"blockNumber"`
	ConfirmedAt msvault.UnixTime `json:"confirmedAt"`
}
