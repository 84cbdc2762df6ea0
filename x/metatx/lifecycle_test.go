package metatx

import (
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
	"github.com/iov-one/msvault/x/multisig"
	"github.com/iov-one/msvault/x/vault"
)

var now = msvault.AsUnixTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

func transferData(t testing.TB, amount int64) []byte {
	t.Helper()
	data, err := calldata.Encode(calldata.TransferFunds, &calldata.TransferParams{
		Recipient: vaulttest.SequenceAddress(0x7e),
		Amount:    big.NewInt(amount),
	})
	assert.Nil(t, err)
	return data
}

func newState(keys []*crypto.Signer, threshold uint64) *vault.State {
	return &vault.State{
		Address:   vaulttest.SequenceAddress(0xaa),
		Owners:    vaulttest.Addresses(keys...),
		Threshold: threshold,
	}
}

func propose(t *testing.T, vs *vault.State, creator *crypto.Signer) *ProposedTransaction {
	t.Helper()
	tx, err := Propose(vs, ProposeMsg{Name: "payout", Calldata: transferData(t, 10), Creator: creator.Address()}, now)
	assert.Nil(t, err)
	tx.ID, tx.Version = 1, 1
	return tx
}

func confirm(t *testing.T, vs *vault.State, tx *ProposedTransaction, signer *crypto.Signer) *ProposedTransaction {
	t.Helper()
	next, err := Confirm(vs, tx, signer.Address(), vaulttest.Sign(t, signer, tx.Hash))
	assert.Nil(t, err)
	return next
}

func TestPropose(t *testing.T) {
	keys := vaulttest.NewSigners(t, 3)
	vs := newState(keys, 2)
	stranger := vaulttest.NewSigner(t)
	data := transferData(t, 10)

	cases := map[string]struct {
		msg     ProposeMsg
		state   *vault.State
		wantErr *errors.Error
	}{
		"valid": {
			msg:   ProposeMsg{Name: "payout", Calldata: data, Creator: keys[1].Address()},
			state: vs,
		},
		"creator is not an owner": {
			msg:     ProposeMsg{Name: "payout", Calldata: data, Creator: stranger.Address()},
			state:   vs,
			wantErr: errors.ErrNotAnOwner,
		},
		"malformed calldata": {
			msg:     ProposeMsg{Name: "payout", Calldata: data[:20], Creator: keys[1].Address()},
			state:   vs,
			wantErr: errors.ErrMalformedPayload,
		},
		"name missing": {
			msg:     ProposeMsg{Calldata: data, Creator: keys[1].Address()},
			state:   vs,
			wantErr: errors.ErrInvalidParams,
		},
		"name too long": {
			msg:     ProposeMsg{Name: string(make([]rune, MaxNameLength+1)), Calldata: data, Creator: keys[1].Address()},
			state:   vs,
			wantErr: errors.ErrInvalidParams,
		},
		"broken vault state": {
			msg:     ProposeMsg{Name: "payout", Calldata: data, Creator: keys[1].Address()},
			state:   newState(keys, 4),
			wantErr: errors.ErrState,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			tx, err := Propose(tc.state, tc.msg, now)
			assert.IsErr(t, tc.wantErr, err)
			if tc.wantErr != nil {
				return
			}
			assert.Nil(t, tx.Validate())
			assert.Equal(t, calldata.TransferFunds, tx.Method)
			assert.Equal(t, crypto.TransactionHash(vs.Address, data), tx.Hash)
			assert.Equal(t, now, tx.CreatedAt)
			// Proposing does not confirm.
			assert.Equal(t, 0, len(tx.Signers))
			assert.Equal(t, multisig.Actions{CanConfirm: true}, Actions(vs, tx, keys[1].Address()))
		})
	}
}

func TestConfirm(t *testing.T) {
	keys := vaulttest.NewSigners(t, 3)
	vs := newState(keys, 2)
	stranger := vaulttest.NewSigner(t)
	tx := propose(t, vs, keys[0])
	once := confirm(t, vs, tx, keys[0])
	quorum := confirm(t, vs, once, keys[1])

	executed, err := MarkExecuted(quorum, now.Add(time.Minute), common.Hash{1})
	assert.Nil(t, err)

	badSig := vaulttest.Sign(t, keys[1], tx.Hash)
	badSig[64] = 9

	lowV := vaulttest.Sign(t, keys[1], tx.Hash)
	lowV[64] -= 27

	cases := map[string]struct {
		tx      *ProposedTransaction
		signer  common.Address
		sig     []byte
		wantSig []byte
		wantErr *errors.Error
	}{
		"first confirmation": {
			tx:     tx,
			signer: keys[1].Address(),
			sig:    vaulttest.Sign(t, keys[1], tx.Hash),
		},
		"second confirmation": {
			tx:     once,
			signer: keys[2].Address(),
			sig:    vaulttest.Sign(t, keys[2], tx.Hash),
		},
		"recovery id 0 or 1 is stored as 27 or 28": {
			tx:      tx,
			signer:  keys[1].Address(),
			sig:     lowV,
			wantSig: vaulttest.Sign(t, keys[1], tx.Hash),
		},
		"confirm twice": {
			tx:      once,
			signer:  keys[0].Address(),
			sig:     vaulttest.Sign(t, keys[0], tx.Hash),
			wantErr: errors.ErrAlreadyConfirmed,
		},
		"not an owner": {
			tx:      tx,
			signer:  stranger.Address(),
			sig:     vaulttest.Sign(t, stranger, tx.Hash),
			wantErr: errors.ErrNotAnOwner,
		},
		"signature of another owner": {
			tx:      tx,
			signer:  keys[1].Address(),
			sig:     vaulttest.Sign(t, keys[2], tx.Hash),
			wantErr: errors.ErrInvalidSignature,
		},
		"signature of another hash": {
			tx:      tx,
			signer:  keys[1].Address(),
			sig:     vaulttest.Sign(t, keys[1], common.Hash{0x42}),
			wantErr: errors.ErrInvalidSignature,
		},
		"invalid recovery id": {
			tx:      tx,
			signer:  keys[1].Address(),
			sig:     badSig,
			wantErr: errors.ErrInvalidSignatureFormat,
		},
		"short signature": {
			tx:      tx,
			signer:  keys[1].Address(),
			sig:     badSig[:64],
			wantErr: errors.ErrInvalidSignatureFormat,
		},
		"quorum already met": {
			tx:      quorum,
			signer:  keys[2].Address(),
			sig:     vaulttest.Sign(t, keys[2], tx.Hash),
			wantErr: errors.ErrUnauthorized,
		},
		"executed": {
			tx:      executed,
			signer:  keys[2].Address(),
			sig:     vaulttest.Sign(t, keys[2], tx.Hash),
			wantErr: errors.ErrNotPending,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			before := tc.tx.Copy()
			next, err := Confirm(vs, tc.tx, tc.signer, tc.sig)
			assert.IsErr(t, tc.wantErr, err)
			// The input snapshot never changes.
			assert.Equal(t, before, tc.tx)
			if tc.wantErr != nil {
				return
			}
			assert.Equal(t, len(tc.tx.Signers)+1, len(next.Signers))
			assert.Equal(t, tc.signer, next.Signers[len(next.Signers)-1])
			wantSig := tc.wantSig
			if wantSig == nil {
				wantSig = tc.sig
			}
			assert.EqualBytes(t, wantSig, next.Signatures[len(next.Signatures)-1])
			assert.Nil(t, next.Validate())
		})
	}
}

func TestRevoke(t *testing.T) {
	keys := vaulttest.NewSigners(t, 3)
	vs := newState(keys, 2)
	tx := propose(t, vs, keys[0])
	confirmed := confirm(t, vs, confirm(t, vs, tx, keys[2]), keys[0])

	next, err := Revoke(vs, confirmed, keys[2].Address())
	assert.Nil(t, err)
	assert.Equal(t, []common.Address{keys[0].Address()}, next.Signers)
	assert.EqualBytes(t, confirmed.Signatures[1], next.Signatures[0])
	assert.Equal(t, 2, len(confirmed.Signers))

	_, err = Revoke(vs, next, keys[2].Address())
	assert.IsErr(t, errors.ErrNotConfirmed, err)
	_, err = Revoke(vs, next, vaulttest.NewSigner(t).Address())
	assert.IsErr(t, errors.ErrNotAnOwner, err)

	executed, err := MarkExecuted(confirmed, now, common.Hash{})
	assert.Nil(t, err)
	_, err = Revoke(vs, executed, keys[0].Address())
	assert.IsErr(t, errors.ErrNotPending, err)
}

func TestAmend(t *testing.T) {
	keys := vaulttest.NewSigners(t, 2)
	vs := newState(keys, 2)
	tx := propose(t, vs, keys[0])

	data := transferData(t, 11)
	next, err := Amend(tx, data)
	assert.Nil(t, err)
	assert.EqualBytes(t, data, next.Calldata)
	assert.Equal(t, crypto.TransactionHash(vs.Address, data), next.Hash)
	assert.Nil(t, next.Validate())

	signer, err := calldata.Encode(calldata.AddSigner, &calldata.SignerParams{
		Signer:       vaulttest.SequenceAddress(5),
		NewThreshold: 2,
	})
	assert.Nil(t, err)
	_, err = Amend(tx, signer)
	assert.IsErr(t, errors.ErrCannotBeModified, err)

	_, err = Amend(tx, data[:7])
	assert.IsErr(t, errors.ErrMalformedPayload, err)

	_, err = Amend(confirm(t, vs, tx, keys[1]), data)
	assert.IsErr(t, errors.ErrImmutableCalldata, err)
}

func TestMarkExecuted(t *testing.T) {
	keys := vaulttest.NewSigners(t, 1)
	vs := newState(keys, 1)
	tx := confirm(t, vs, propose(t, vs, keys[0]), keys[0])

	_, err := MarkExecuted(tx, 0, common.Hash{})
	assert.IsErr(t, errors.ErrEmpty, err)

	executed, err := MarkExecuted(tx, now.Add(time.Hour), common.Hash{7})
	assert.Nil(t, err)
	if !executed.Executed() || tx.Executed() {
		t.Fatal("only the new snapshot is executed")
	}
	assert.Equal(t, multisig.Actions{}, Actions(vs, executed, keys[0].Address()))

	_, err = MarkExecuted(executed, now.Add(2*time.Hour), common.Hash{8})
	assert.IsErr(t, errors.ErrNotPending, err)
}

func TestExecutionSignatures(t *testing.T) {
	keys := vaulttest.NewSigners(t, 3)
	vs := newState(keys, 2)
	tx := propose(t, vs, keys[0])

	// Confirmed by the higher address first.
	confirmed := confirm(t, vs, confirm(t, vs, tx, keys[1]), keys[0])
	sigs, err := ExecutionSignatures(vs, confirmed)
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{confirmed.Signatures[1], confirmed.Signatures[0]}, sigs)

	// Removed owners do not count and their signatures are not submitted.
	withThird := confirm(t, newState(keys, 3), confirmed, keys[2])
	shrunk := newState(keys[1:], 2)
	sigs, err = ExecutionSignatures(shrunk, withThird)
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{withThird.Signatures[0], withThird.Signatures[2]}, sigs)

	_, err = ExecutionSignatures(newState(keys[1:], 2), confirmed)
	assert.IsErr(t, errors.ErrQuorum, err)

	lowV := vaulttest.Sign(t, keys[2], tx.Hash)
	lowV[64] -= 27
	viaLowV, err := Confirm(vs, confirm(t, vs, tx, keys[0]), keys[2].Address(), lowV)
	assert.Nil(t, err)
	sigs, err = ExecutionSignatures(vs, viaLowV)
	assert.Nil(t, err)
	for i, sig := range sigs {
		if !crypto.IsCanonical(sig) {
			t.Fatalf("signature %d has recovery id %d", i, sig[64])
		}
	}
}

func TestScenarioConfirmRevoke(t *testing.T) {
	keys := vaulttest.NewSigners(t, 3)
	vs := newState(keys, 2)
	a := keys[0]
	tx := propose(t, vs, a)

	confirmed := confirm(t, vs, tx, a)
	assert.Equal(t, multisig.Actions{CanRevoke: true}, Actions(vs, confirmed, a.Address()))

	revoked, err := Revoke(vs, confirmed, a.Address())
	assert.Nil(t, err)
	assert.Equal(t, 0, len(revoked.Signers))
	assert.Equal(t, 0, len(revoked.Signatures))
	assert.Equal(t, multisig.Actions{CanConfirm: true}, Actions(vs, revoked, a.Address()))
}

func TestScenarioOwnerRemoved(t *testing.T) {
	keys := vaulttest.NewSigners(t, 3)
	vs := newState(keys, 2)
	tx := confirm(t, vs, confirm(t, vs, propose(t, vs, keys[0]), keys[0]), keys[2])
	assert.Equal(t, true, Actions(vs, tx, keys[1].Address()).CanExecute)

	// keys[2] is removed after confirming.
	removed := newState(keys[:2], 2)
	assert.Equal(t, multisig.Actions{CanConfirm: true}, Actions(removed, tx, keys[1].Address()))
	assert.Equal(t, multisig.Actions{}, Actions(removed, tx, keys[2].Address()))
}

func TestCheckUpdate(t *testing.T) {
	keys := vaulttest.NewSigners(t, 2)
	vs := newState(keys, 2)
	tx := propose(t, vs, keys[0])
	confirmed := confirm(t, vs, tx, keys[0])
	executed, err := MarkExecuted(confirmed, now, common.Hash{})
	assert.Nil(t, err)

	cases := map[string]struct {
		prev, next func() *ProposedTransaction
		wantErr    *errors.Error
	}{
		"confirmation": {
			prev: func() *ProposedTransaction { return tx },
			next: func() *ProposedTransaction { return confirmed },
		},
		"amend unconfirmed": {
			prev: func() *ProposedTransaction { return tx },
			next: func() *ProposedTransaction {
				next, err := Amend(tx, transferData(t, 99))
				assert.Nil(t, err)
				return next
			},
		},
		"amend confirmed": {
			prev: func() *ProposedTransaction { return confirmed },
			next: func() *ProposedTransaction {
				next := confirmed.Copy()
				next.Calldata = transferData(t, 99)
				return next
			},
			wantErr: errors.ErrImmutableCalldata,
		},
		"change creator": {
			prev: func() *ProposedTransaction { return tx },
			next: func() *ProposedTransaction {
				next := tx.Copy()
				next.Creator = keys[1].Address()
				return next
			},
			wantErr: errors.ErrCannotBeModified,
		},
		"change vault": {
			prev: func() *ProposedTransaction { return tx },
			next: func() *ProposedTransaction {
				next := tx.Copy()
				next.Vault = vaulttest.SequenceAddress(1)
				return next
			},
			wantErr: errors.ErrCannotBeModified,
		},
		"leave executed": {
			prev:    func() *ProposedTransaction { return executed },
			next:    func() *ProposedTransaction { return confirmed },
			wantErr: errors.ErrNotPending,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.IsErr(t, tc.wantErr, CheckUpdate(tc.prev(), tc.next()))
		})
	}
}
