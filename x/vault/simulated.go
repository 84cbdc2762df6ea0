package vault

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/crypto"
	"github.com/iov-one/msvault/errors"
)

// SimulatedVault is an in memory model of the vault contract. It applies the
// same checks the contract does before executing calldata: every signature
// must recover to an owner, signers must be strictly ascending, at least
// threshold signatures must be present and a transaction hash executes only
// once. Executed owner changes and transfers are applied to its state.
type SimulatedVault struct {
	address common.Address
	now     func() time.Time

	mu        sync.Mutex
	owners    []common.Address
	threshold uint64
	balance   *big.Int
	executed  map[common.Hash]bool
	block     uint64
	transfers []Transfer
}

var _ Vault = (*SimulatedVault)(nil)

// Transfer is a transferFunds execution applied by a simulated vault.
type Transfer struct {
	Recipient common.Address
	Amount    *big.Int
}

// NewSimulatedVault returns a vault with given owners and threshold. A nil
// clock defaults to time.Now.
func NewSimulatedVault(addr common.Address, owners []common.Address, threshold uint64, now func() time.Time) (*SimulatedVault, error) {
	st := State{Address: addr, Owners: owners, Threshold: threshold}
	if err := st.Validate(); err != nil {
		return nil, errors.Wrap(err, "vault state")
	}
	if now == nil {
		now = time.Now
	}
	return &SimulatedVault{
		address:   addr,
		now:       now,
		owners:    append([]common.Address(nil), owners...),
		threshold: threshold,
		balance:   new(big.Int),
		executed:  make(map[common.Hash]bool),
	}, nil
}

func (v *SimulatedVault) Address() common.Address {
	return v.address
}

// Fund increases the vault balance.
func (v *SimulatedVault) Fund(amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance.Add(v.balance, amount)
}

// Balance returns the current vault balance.
func (v *SimulatedVault) Balance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balance)
}

// Transfers returns all executed transfers, oldest first.
func (v *SimulatedVault) Transfers() []Transfer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Transfer(nil), v.transfers...)
}

// SetOwners replaces the owner set and threshold, as if an owner change was
// executed outside of this coordinator.
func (v *SimulatedVault) SetOwners(owners []common.Address, threshold uint64) error {
	st := State{Address: v.address, Owners: owners, Threshold: threshold}
	if err := st.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.owners = append([]common.Address(nil), owners...)
	v.threshold = threshold
	return nil
}

func (v *SimulatedVault) Owners(ctx context.Context) ([]common.Address, error) {
	st, err := v.State(ctx)
	if err != nil {
		return nil, err
	}
	return st.Owners, nil
}

func (v *SimulatedVault) ConfirmationsRequired(ctx context.Context) (uint64, error) {
	st, err := v.State(ctx)
	if err != nil {
		return 0, err
	}
	return st.Threshold, nil
}

func (v *SimulatedVault) State(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return &State{
		Address:   v.address,
		Owners:    append([]common.Address(nil), v.owners...),
		Threshold: v.threshold,
	}, nil
}

func (v *SimulatedVault) GetTransactionHash(ctx context.Context, data []byte) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	return crypto.TransactionHash(v.address, data), nil
}

func (v *SimulatedVault) Recover(ctx context.Context, hash common.Hash, sig []byte) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	return crypto.Recover(hash, sig)
}

func (v *SimulatedVault) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	st, err := v.State(ctx)
	if err != nil {
		return false, err
	}
	return st.IsOwner(addr), nil
}

func (v *SimulatedVault) ExecuteTransaction(ctx context.Context, data []byte, sigs [][]byte) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	hash := crypto.TransactionHash(v.address, data)
	if v.executed[hash] {
		return nil, errors.Wrapf(errors.ErrAlreadyExecuted, "transaction %s", hash.Hex())
	}
	if err := v.verify(hash, sigs); err != nil {
		return nil, err
	}
	if err := v.apply(data); err != nil {
		return nil, err
	}

	v.executed[hash] = true
	v.block++
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], v.block)
	return &Receipt{
		TxHash:      crypto.TransactionHash(v.address, append(hash.Bytes(), num[:]...)),
		BlockNumber: v.block,
		ConfirmedAt: msvault.AsUnixTime(v.now()),
	}, nil
}

func (v *SimulatedVault) verify(hash common.Hash, sigs [][]byte) error {
	if uint64(len(sigs)) < v.threshold {
		return errors.Wrapf(errors.ErrExecutionFailed,
			"reverted: %d signatures, %d required", len(sigs), v.threshold)
	}
	var prev common.Address
	for i, sig := range sigs {
		// ecrecover only knows recovery ids 27 and 28.
		if !crypto.IsCanonical(sig) {
			return errors.Wrapf(errors.ErrExecutionFailed, "reverted: signature %d: invalid recovery id", i)
		}
		signer, err := crypto.Recover(hash, sig)
		if err != nil {
			return errors.Wrapf(errors.ErrExecutionFailed, "reverted: signature %d: %s", i, err)
		}
		if !v.isOwner(signer) {
			return errors.Wrapf(errors.ErrExecutionFailed, "reverted: signer %s is not an owner", signer.Hex())
		}
		if i > 0 && bytes.Compare(signer[:], prev[:]) <= 0 {
			return errors.Wrapf(errors.ErrExecutionFailed, "reverted: signature %d out of order or duplicated", i)
		}
		prev = signer
	}
	return nil
}

func (v *SimulatedVault) apply(data []byte) error {
	in, err := calldata.Decode(data)
	if err != nil {
		return errors.Wrapf(errors.ErrExecutionFailed, "reverted: %s", err)
	}
	switch in.Method {
	case calldata.TransferFunds:
		p := in.Transfer()
		if v.balance.Cmp(p.Amount) < 0 {
			return errors.Wrapf(errors.ErrExecutionFailed,
				"reverted: balance %s lower than %s", v.balance, p.Amount)
		}
		v.balance.Sub(v.balance, p.Amount)
		v.transfers = append(v.transfers, Transfer{Recipient: p.Recipient, Amount: new(big.Int).Set(p.Amount)})
	case calldata.AddSigner:
		p := in.Signer()
		if v.isOwner(p.Signer) {
			return errors.Wrapf(errors.ErrExecutionFailed, "reverted: %s is an owner", p.Signer.Hex())
		}
		owners := append(append([]common.Address(nil), v.owners...), p.Signer)
		return v.replaceOwners(owners, p.NewThreshold)
	case calldata.RemoveSigner:
		p := in.Signer()
		owners := make([]common.Address, 0, len(v.owners))
		for _, o := range v.owners {
			if o != p.Signer {
				owners = append(owners, o)
			}
		}
		if len(owners) == len(v.owners) {
			return errors.Wrapf(errors.ErrExecutionFailed, "reverted: %s is not an owner", p.Signer.Hex())
		}
		return v.replaceOwners(owners, p.NewThreshold)
	}
	return nil
}

func (v *SimulatedVault) replaceOwners(owners []common.Address, threshold uint64) error {
	st := State{Address: v.address, Owners: owners, Threshold: threshold}
	if err := st.Validate(); err != nil {
		return errors.Wrapf(errors.ErrExecutionFailed, "reverted: %s", err)
	}
	v.owners = owners
	v.threshold = threshold
	return nil
}

func (v *SimulatedVault) isOwner(a common.Address) bool {
	for _, o := range v.owners {
		if o == a {
			return true
		}
	}
	return false
}

// SimulatedConnector keeps a registry of simulated vaults.
type SimulatedConnector struct {
	mu     sync.RWMutex
	vaults map[common.Address]*SimulatedVault
}

var _ Connector = (*SimulatedConnector)(nil)

// NewSimulatedConnector returns a connector with no vaults deployed.
func NewSimulatedConnector() *SimulatedConnector {
	return &SimulatedConnector{vaults: make(map[common.Address]*SimulatedVault)}
}

// Register makes given vault resolvable by its address.
func (c *SimulatedConnector) Register(v *SimulatedVault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vaults[v.Address()] = v
}

func (c *SimulatedConnector) Vault(ctx context.Context, addr common.Address) (Vault, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vaults[addr]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "vault %s", addr.Hex())
	}
	return v, nil
}
