package vault

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/crypto"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/vaulttest"
	"github.com/iov-one/msvault/vaulttest/assert"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestVault(t *testing.T, owners []*crypto.Signer, threshold uint64) *SimulatedVault {
	t.Helper()
	v, err := NewSimulatedVault(vaulttest.SequenceAddress(0xaa), vaulttest.Addresses(owners...), threshold,
		func() time.Time { return fixedNow })
	assert.Nil(t, err)
	return v
}

func signAll(t *testing.T, hash common.Hash, signers ...*crypto.Signer) [][]byte {
	t.Helper()
	sigs := make([][]byte, len(signers))
	for i, s := range signers {
		sigs[i] = vaulttest.Sign(t, s, hash)
	}
	return sigs
}

func TestSimulatedVaultTransfer(t *testing.T) {
	keys := vaulttest.NewSigners(t, 3)
	v := newTestVault(t, keys, 2)
	v.Fund(big.NewInt(100))
	ctx := context.Background()

	recipient := vaulttest.SequenceAddress(7)
	data, err := calldata.Encode(calldata.TransferFunds, &calldata.TransferParams{Recipient: recipient, Amount: big.NewInt(10)})
	assert.Nil(t, err)
	hash, err := v.GetTransactionHash(ctx, data)
	assert.Nil(t, err)
	assert.Equal(t, crypto.TransactionHash(v.Address(), data), hash)

	rec, err := v.ExecuteTransaction(ctx, data, signAll(t, hash, keys[0], keys[2]))
	assert.Nil(t, err)
	assert.Equal(t, uint64(1), rec.BlockNumber)
	assert.Equal(t, msvault.AsUnixTime(fixedNow), rec.ConfirmedAt)
	assert.Equal(t, big.NewInt(90), v.Balance())
	assert.Equal(t, []Transfer{{Recipient: recipient, Amount: big.NewInt(10)}}, v.Transfers())

	_, err = v.ExecuteTransaction(ctx, data, signAll(t, hash, keys[0], keys[2]))
	assert.IsErr(t, errors.ErrAlreadyExecuted, err)
}

func TestSimulatedVaultRejects(t *testing.T) {
	keys := vaulttest.NewSigners(t, 3)
	stranger := vaulttest.NewSigner(t)
	ctx := context.Background()

	data, err := calldata.Encode(calldata.TransferFunds, &calldata.TransferParams{
		Recipient: vaulttest.SequenceAddress(7), Amount: big.NewInt(10)})
	assert.Nil(t, err)

	cases := map[string]struct {
		fund    int64
		sigs    func(hash common.Hash) [][]byte
		wantErr *errors.Error
	}{
		"not enough signatures": {
			fund:    100,
			sigs:    func(h common.Hash) [][]byte { return signAll(t, h, keys[0]) },
			wantErr: errors.ErrExecutionFailed,
		},
		"descending order": {
			fund:    100,
			sigs:    func(h common.Hash) [][]byte { return signAll(t, h, keys[2], keys[0]) },
			wantErr: errors.ErrExecutionFailed,
		},
		"duplicated signer": {
			fund:    100,
			sigs:    func(h common.Hash) [][]byte { return signAll(t, h, keys[1], keys[1]) },
			wantErr: errors.ErrExecutionFailed,
		},
		"foreign signer": {
			fund: 100,
			sigs: func(h common.Hash) [][]byte {
				return signAll(t, h, keys[0], stranger)
			},
			wantErr: errors.ErrExecutionFailed,
		},
		"signature over another hash": {
			fund: 100,
			sigs: func(h common.Hash) [][]byte {
				return signAll(t, common.HexToHash("0x01"), keys[0], keys[1])
			},
			wantErr: errors.ErrExecutionFailed,
		},
		"recovery id 0 or 1": {
			fund: 100,
			sigs: func(h common.Hash) [][]byte {
				sigs := signAll(t, h, keys[0], keys[1])
				sigs[1][64] -= 27
				return sigs
			},
			wantErr: errors.ErrExecutionFailed,
		},
		"insufficient balance": {
			fund:    5,
			sigs:    func(h common.Hash) [][]byte { return signAll(t, h, keys[0], keys[1]) },
			wantErr: errors.ErrExecutionFailed,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			v := newTestVault(t, keys, 2)
			v.Fund(big.NewInt(tc.fund))
			hash := crypto.TransactionHash(v.Address(), data)
			_, err := v.ExecuteTransaction(ctx, data, tc.sigs(hash))
			assert.IsErr(t, tc.wantErr, err)
			assert.Equal(t, big.NewInt(tc.fund), v.Balance())
		})
	}
}

func TestSimulatedVaultOwnerChanges(t *testing.T) {
	keys := vaulttest.NewSigners(t, 2)
	v := newTestVault(t, keys, 1)
	ctx := context.Background()
	newcomer := vaulttest.SequenceAddress(9)

	data, err := calldata.Encode(calldata.AddSigner, &calldata.SignerParams{Signer: newcomer, NewThreshold: 2})
	assert.Nil(t, err)
	hash := crypto.TransactionHash(v.Address(), data)
	_, err = v.ExecuteTransaction(ctx, data, signAll(t, hash, keys[0]))
	assert.Nil(t, err)

	st, err := v.State(ctx)
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), st.Threshold)
	assert.Equal(t, 3, len(st.Owners))
	isOwner, err := v.IsOwner(ctx, newcomer)
	assert.Nil(t, err)
	assert.Equal(t, true, isOwner)

	// Removing an owner so that the threshold cannot be met reverts.
	data, err = calldata.Encode(calldata.RemoveSigner, &calldata.SignerParams{Signer: newcomer, NewThreshold: 3})
	assert.Nil(t, err)
	hash = crypto.TransactionHash(v.Address(), data)
	_, err = v.ExecuteTransaction(ctx, data, signAll(t, hash, keys[0], keys[1]))
	assert.IsErr(t, errors.ErrExecutionFailed, err)

	data, err = calldata.Encode(calldata.RemoveSigner, &calldata.SignerParams{Signer: newcomer, NewThreshold: 2})
	assert.Nil(t, err)
	hash = crypto.TransactionHash(v.Address(), data)
	_, err = v.ExecuteTransaction(ctx, data, signAll(t, hash, keys[0], keys[1]))
	assert.Nil(t, err)
	owners, err := v.Owners(ctx)
	assert.Nil(t, err)
	assert.Equal(t, vaulttest.Addresses(keys...), owners)
}

func TestSimulatedVaultRecover(t *testing.T) {
	keys := vaulttest.NewSigners(t, 1)
	v := newTestVault(t, keys, 1)
	hash := common.HexToHash("0x1234")
	got, err := v.Recover(context.Background(), hash, vaulttest.Sign(t, keys[0], hash))
	assert.Nil(t, err)
	assert.Equal(t, keys[0].Address(), got)
}

func TestSimulatedVaultCanceledContext(t *testing.T) {
	keys := vaulttest.NewSigners(t, 1)
	v := newTestVault(t, keys, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.State(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestStateValidate(t *testing.T) {
	a := vaulttest.SequenceAddress(1)
	b := vaulttest.SequenceAddress(2)

	cases := map[string]struct {
		state     State
		wantField string
		wantErr   *errors.Error
	}{
		"valid": {
			state: State{Address: a, Owners: []common.Address{a, b}, Threshold: 2},
		},
		"missing address": {
			state:     State{Owners: []common.Address{a}, Threshold: 1},
			wantField: "Address", wantErr: errors.ErrEmpty,
		},
		"repeated owner": {
			state:     State{Address: a, Owners: []common.Address{a, a}, Threshold: 1},
			wantField: "Owners", wantErr: errors.ErrDuplicate,
		},
		"threshold above owners": {
			state:     State{Address: a, Owners: []common.Address{a}, Threshold: 2},
			wantField: "Threshold", wantErr: errors.ErrState,
		},
		"zero threshold": {
			state:     State{Address: a, Owners: []common.Address{a}},
			wantField: "Threshold", wantErr: errors.ErrState,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.state.Validate()
			if tc.wantErr == nil {
				assert.Nil(t, err)
				return
			}
			assert.FieldError(t, err, tc.wantField, tc.wantErr)
		})
	}
}

func TestSimulatedConnector(t *testing.T) {
	keys := vaulttest.NewSigners(t, 1)
	v := newTestVault(t, keys, 1)
	c := NewSimulatedConnector()
	c.Register(v)

	got, err := c.Vault(context.Background(), v.Address())
	assert.Nil(t, err)
	assert.Equal(t, v.Address(), got.Address())

	_, err = c.Vault(context.Background(), vaulttest.SequenceAddress(1234))
	assert.IsErr(t, errors.ErrNotFound, err)
}
