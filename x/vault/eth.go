package vault

import (
	"context"
	"math/big"
	"strings"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/errors"
)

// Backend is the subset of an Ethereum node client the vault binding needs.
// *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

var _ Backend = (*ethclient.Client)(nil)

// EthVault is a vault contract deployed on an Ethereum compatible chain.
type EthVault struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	auth     *bind.TransactOpts
	attempts uint
}

var _ Vault = (*EthVault)(nil)

// NewEthVault binds the vault deployed at given address. Executions are sent
// with auth, which may be nil for a read only binding.
func NewEthVault(addr common.Address, backend Backend, auth *bind.TransactOpts) *EthVault {
	return &EthVault{
		address:  addr,
		backend:  backend,
		contract: bind.NewBoundContract(addr, calldata.ABI(), backend, backend, backend),
		auth:     auth,
		attempts: 3,
	}
}

func (v *EthVault) Address() common.Address {
	return v.address
}

// call invokes a view method, retrying transport failures. A reverted call
// is not retried.
func (v *EthVault) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	err := retry.Do(func() error {
		out = nil
		return v.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	},
		retry.Attempts(v.attempts),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool { return !isRevert(err) }),
	)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "vault %s %s: %s", v.address.Hex(), method, err)
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(errors.ErrType, "%s returned no values", method)
	}
	return out, nil
}

func (v *EthVault) Owners(ctx context.Context) ([]common.Address, error) {
	out, err := v.call(ctx, "getOwners")
	if err != nil {
		return nil, err
	}
	owners, ok := out[0].([]common.Address)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "getOwners returned %T", out[0])
	}
	return owners, nil
}

func (v *EthVault) ConfirmationsRequired(ctx context.Context) (uint64, error) {
	out, err := v.call(ctx, "confirmationsRequired")
	if err != nil {
		return 0, err
	}
	n, ok := out[0].(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, errors.Wrapf(errors.ErrType, "confirmationsRequired returned %v", out[0])
	}
	return n.Uint64(), nil
}

func (v *EthVault) State(ctx context.Context) (*State, error) {
	owners, err := v.Owners(ctx)
	if err != nil {
		return nil, err
	}
	threshold, err := v.ConfirmationsRequired(ctx)
	if err != nil {
		return nil, err
	}
	st := &State{Address: v.address, Owners: owners, Threshold: threshold}
	if err := st.Validate(); err != nil {
		return nil, errors.Wrapf(err, "vault %s", v.address.Hex())
	}
	return st, nil
}

func (v *EthVault) GetTransactionHash(ctx context.Context, data []byte) (common.Hash, error) {
	out, err := v.call(ctx, "getTransactionHash", data)
	if err != nil {
		return common.Hash{}, err
	}
	h, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, errors.Wrapf(errors.ErrType, "getTransactionHash returned %T", out[0])
	}
	return common.Hash(h), nil
}

func (v *EthVault) Recover(ctx context.Context, hash common.Hash, sig []byte) (common.Address, error) {
	out, err := v.call(ctx, "recover", [32]byte(hash), sig)
	if err != nil {
		return common.Address{}, err
	}
	a, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Wrapf(errors.ErrType, "recover returned %T", out[0])
	}
	return a, nil
}

func (v *EthVault) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	out, err := v.call(ctx, "isOwner", addr)
	if err != nil {
		return false, err
	}
	b, ok := out[0].(bool)
	if !ok {
		return false, errors.Wrapf(errors.ErrType, "isOwner returned %T", out[0])
	}
	return b, nil
}

// ExecuteTransaction sends the execution and waits until it is mined. The
// block timestamp is the confirmation time. Sending is never retried.
func (v *EthVault) ExecuteTransaction(ctx context.Context, data []byte, sigs [][]byte) (*Receipt, error) {
	if v.auth == nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, "read only vault binding")
	}
	opts := *v.auth
	opts.Context = ctx

	tx, err := v.contract.Transact(&opts, "executeTransaction", data, sigs)
	if err != nil {
		return nil, revertError(err)
	}
	rec, err := bind.WaitMined(ctx, v.backend, tx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExecutionFailed, "wait for %s: %s", tx.Hash().Hex(), err)
	}
	if rec.Status != types.ReceiptStatusSuccessful {
		return nil, errors.Wrapf(errors.ErrExecutionFailed, "transaction %s reverted", tx.Hash().Hex())
	}
	header, err := v.backend.HeaderByNumber(ctx, rec.BlockNumber)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "block %s: %s", rec.BlockNumber, err)
	}
	return &Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: rec.BlockNumber.Uint64(),
		ConfirmedAt: msvault.UnixTime(header.Time),
	}, nil
}

func isRevert(err error) bool {
	return strings.Contains(err.Error(), "execution reverted")
}

// revertError maps a failed submission to the error taxonomy. The node
// reports the revert reason while estimating gas.
func revertError(err error) error {
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "already executed") {
		return errors.Wrap(errors.ErrAlreadyExecuted, msg)
	}
	return errors.Wrap(errors.ErrExecutionFailed, msg)
}

// EthConnector resolves vaults deployed on one chain.
type EthConnector struct {
	backend Backend
	auth    *bind.TransactOpts
}

var _ Connector = (*EthConnector)(nil)

// NewEthConnector returns a connector using given backend. auth may be nil.
func NewEthConnector(backend Backend, auth *bind.TransactOpts) *EthConnector {
	return &EthConnector{backend: backend, auth: auth}
}

// DialEthConnector connects to the node at given RPC URL.
func DialEthConnector(ctx context.Context, url string, auth *bind.TransactOpts) (*EthConnector, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "dial %s: %s", url, err)
	}
	return NewEthConnector(client, auth), nil
}

func (c *EthConnector) Vault(ctx context.Context, addr common.Address) (Vault, error) {
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "code at %s: %s", addr.Hex(), err)
	}
	if len(code) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "no contract at %s", addr.Hex())
	}
	return NewEthVault(addr, c.backend, c.auth), nil
}
