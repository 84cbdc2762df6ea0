package metatx

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/vaulttest"
	"github.com/iov-one/msvault/vaulttest/assert"
)

func TestProposedTransactionValidate(t *testing.T) {
	keys := vaulttest.NewSigners(t, 2)
	vs := newState(keys, 2)
	valid := confirm(t, vs, propose(t, vs, keys[0]), keys[1])

	cases := map[string]struct {
		mutate   func(*ProposedTransaction)
		wantErrs map[string]*errors.Error
	}{
		"valid": {
			mutate: func(*ProposedTransaction) {},
			wantErrs: map[string]*errors.Error{
				"Name":         nil,
				"Hash":         nil,
				"Signatures.0": nil,
			},
		},
		"missing fields": {
			mutate: func(tx *ProposedTransaction) {
				tx.Name = ""
				tx.Creator = common.Address{}
				tx.CreatedAt = 0
			},
			wantErrs: map[string]*errors.Error{
				"Name":      errors.ErrInvalidParams,
				"Creator":   errors.ErrEmpty,
				"CreatedAt": errors.ErrEmpty,
			},
		},
		"hash of other calldata": {
			mutate: func(tx *ProposedTransaction) {
				tx.Calldata = transferData(t, 999)
			},
			wantErrs: map[string]*errors.Error{
				"Hash": errors.ErrHashMismatch,
			},
		},
		"signature of another signer": {
			mutate: func(tx *ProposedTransaction) {
				tx.Signers[0] = keys[0].Address()
			},
			wantErrs: map[string]*errors.Error{
				"Signatures.0": errors.ErrInvalidSignature,
			},
		},
		"recovery id 0 or 1": {
			mutate: func(tx *ProposedTransaction) {
				tx.Signatures[0][64] -= 27
			},
			wantErrs: map[string]*errors.Error{
				"Signatures.0": errors.ErrInvalidSignatureFormat,
			},
		},
		"duplicated signer": {
			mutate: func(tx *ProposedTransaction) {
				tx.Signers = append(tx.Signers, tx.Signers[0])
				tx.Signatures = append(tx.Signatures, tx.Signatures[0])
			},
			wantErrs: map[string]*errors.Error{
				"Signers.1": errors.ErrDuplicateSigner,
			},
		},
		"signatures out of step": {
			mutate: func(tx *ProposedTransaction) {
				tx.Signatures = nil
			},
			wantErrs: map[string]*errors.Error{
				"Signatures": errors.ErrModel,
			},
		},
		"method does not match calldata": {
			mutate: func(tx *ProposedTransaction) {
				tx.Method = "addSigner"
			},
			wantErrs: map[string]*errors.Error{
				"Calldata": errors.ErrModel,
			},
		},
		"execution hash on pending": {
			mutate: func(tx *ProposedTransaction) {
				tx.ExecutionTx = common.Hash{1}
			},
			wantErrs: map[string]*errors.Error{
				"ExecutionTx": errors.ErrState,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			tx := valid.Copy()
			tc.mutate(tx)
			err := tx.Validate()
			for field, want := range tc.wantErrs {
				assert.FieldError(t, err, field, want)
			}
		})
	}
}

func TestProposedTransactionMarshal(t *testing.T) {
	keys := vaulttest.NewSigners(t, 2)
	vs := newState(keys, 2)
	tx := confirm(t, vs, confirm(t, vs, propose(t, vs, keys[0]), keys[1]), keys[0])
	tx.Version = 7

	raw, err := tx.Marshal()
	assert.Nil(t, err)

	got := &ProposedTransaction{ID: tx.ID}
	assert.Nil(t, got.Unmarshal(raw))
	assert.Equal(t, tx, got)
	assert.Nil(t, got.Validate())

	assert.IsErr(t, errors.ErrModel, got.Unmarshal([]byte{0x0a, 0x05, 0x01}))
}
