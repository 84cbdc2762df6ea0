package metatx

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/crypto"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/x/multisig"
	"github.com/iov-one/msvault/x/vault"
)

// ProposeMsg carries everything an owner provides to propose a transaction.
type ProposeMsg struct {
	Name     string         `json:"name"`
	Calldata []byte         `json:"calldata"`
	Creator  common.Address `json:"creator"`
}

// Propose returns a new pending transaction for given vault. The transaction
// has no confirmations, the creator must confirm it like any other owner.
func Propose(vs *vault.State, msg ProposeMsg, now msvault.UnixTime) (*ProposedTransaction, error) {
	if err := vs.Validate(); err != nil {
		return nil, errors.Wrap(err, "vault state")
	}
	in, err := decodeCalldata(msg.Calldata)
	if err != nil {
		return nil, err
	}
	if err := validateName(msg.Name); err != nil {
		return nil, errors.Field("Name", err, "")
	}
	if !vs.IsOwner(msg.Creator) {
		return nil, errors.Wrapf(errors.ErrNotAnOwner, "creator %s", msg.Creator.Hex())
	}
	tx := &ProposedTransaction{
		Name:      msg.Name,
		Vault:     vs.Address,
		Method:    in.Method,
		Calldata:  append([]byte(nil), msg.Calldata...),
		Hash:      crypto.TransactionHash(vs.Address, msg.Calldata),
		Creator:   msg.Creator,
		CreatedAt: now,
	}
	return tx, nil
}

// Confirm returns a snapshot with the confirmation of signer appended. The
// signature must recover to the signer and the signer must be allowed to
// confirm.
func Confirm(vs *vault.State, tx *ProposedTransaction, signer common.Address, sig []byte) (*ProposedTransaction, error) {
	if err := checkVault(vs, tx); err != nil {
		return nil, err
	}
	if tx.Executed() {
		return nil, errors.Wrapf(errors.ErrNotPending, "transaction %d", tx.ID)
	}
	if !vs.IsOwner(signer) {
		return nil, errors.Wrapf(errors.ErrNotAnOwner, "signer %s", signer.Hex())
	}
	if tx.SignerIndex(signer) >= 0 {
		return nil, errors.Wrapf(errors.ErrAlreadyConfirmed, "signer %s", signer.Hex())
	}
	got, err := crypto.Recover(tx.Hash, sig)
	if err != nil {
		return nil, err
	}
	if got != signer {
		return nil, errors.Wrapf(errors.ErrInvalidSignature,
			"signature of %s provided for %s", got.Hex(), signer.Hex())
	}
	if !Actions(vs, tx, signer).CanConfirm {
		return nil, errors.Wrap(errors.ErrUnauthorized, "quorum already met")
	}
	// Stored in the form the vault accepts on execution.
	canonical, err := crypto.Canonical(sig)
	if err != nil {
		return nil, err
	}

	next := tx.Copy()
	next.Signers = append(next.Signers, signer)
	next.Signatures = append(next.Signatures, canonical)
	return next, nil
}

// Revoke returns a snapshot without the confirmation of signer.
func Revoke(vs *vault.State, tx *ProposedTransaction, signer common.Address) (*ProposedTransaction, error) {
	if err := checkVault(vs, tx); err != nil {
		return nil, err
	}
	if tx.Executed() {
		return nil, errors.Wrapf(errors.ErrNotPending, "transaction %d", tx.ID)
	}
	if !vs.IsOwner(signer) {
		return nil, errors.Wrapf(errors.ErrNotAnOwner, "signer %s", signer.Hex())
	}
	i := tx.SignerIndex(signer)
	if i < 0 {
		return nil, errors.Wrapf(errors.ErrNotConfirmed, "signer %s", signer.Hex())
	}

	next := tx.Copy()
	next.Signers = append(next.Signers[:i], next.Signers[i+1:]...)
	next.Signatures = append(next.Signatures[:i], next.Signatures[i+1:]...)
	if len(next.Signers) == 0 {
		next.Signers, next.Signatures = nil, nil
	}
	return next, nil
}

// Amend returns a snapshot with the calldata replaced. It is only allowed
// while nobody confirmed the transaction and the method stays the same.
func Amend(tx *ProposedTransaction, data []byte) (*ProposedTransaction, error) {
	if tx.Executed() {
		return nil, errors.Wrapf(errors.ErrNotPending, "transaction %d", tx.ID)
	}
	if len(tx.Signers) > 0 {
		return nil, errors.Wrapf(errors.ErrImmutableCalldata, "%d confirmations", len(tx.Signers))
	}
	in, err := decodeCalldata(data)
	if err != nil {
		return nil, err
	}
	if in.Method != tx.Method {
		return nil, errors.Wrapf(errors.ErrCannotBeModified, "method %s cannot become %s", tx.Method, in.Method)
	}
	next := tx.Copy()
	next.Calldata = append([]byte(nil), data...)
	next.Hash = crypto.TransactionHash(tx.Vault, data)
	return next, nil
}

// MarkExecuted returns the final snapshot of an executed transaction.
func MarkExecuted(tx *ProposedTransaction, at msvault.UnixTime, executionTx common.Hash) (*ProposedTransaction, error) {
	if tx.Executed() {
		return nil, errors.Wrapf(errors.ErrNotPending, "transaction %d", tx.ID)
	}
	if at.IsZero() {
		return nil, errors.Wrap(errors.ErrEmpty, "execution time")
	}
	next := tx.Copy()
	next.ExecutedAt = at
	next.ExecutionTx = executionTx
	return next, nil
}

// Actions returns what caller may do with the transaction given the current
// vault state.
func Actions(vs *vault.State, tx *ProposedTransaction, caller common.Address) multisig.Actions {
	return multisig.Evaluate(vs.OwnerSet(), vs.Threshold, tx.Signers, tx.Executed(), caller)
}

// ExecutionSignatures returns the signatures to submit to the vault. Only
// confirmations of current owners are kept, ordered ascending by signer.
// ErrQuorum is returned when they do not meet the threshold.
func ExecutionSignatures(vs *vault.State, tx *ProposedTransaction) ([][]byte, error) {
	if tx.Executed() {
		return nil, errors.Wrapf(errors.ErrNotPending, "transaction %d", tx.ID)
	}
	owners := vs.OwnerSet()
	var sigs [][]byte
	for i, s := range tx.Signers {
		if owners.Has(s) {
			sigs = append(sigs, tx.Signatures[i])
		}
	}
	if !multisig.MeetsQuorum(owners, vs.Threshold, tx.Signers) {
		return nil, errors.Wrapf(errors.ErrQuorum, "%d of %d confirmations", len(sigs), vs.Threshold)
	}
	return multisig.OrderSignatures(sigs, tx.Hash)
}

// CheckUpdate returns an error if next cannot follow prev, the latest stored
// snapshot of the same transaction. Stores call it before writing so that
// immutability holds for every writer.
func CheckUpdate(prev, next *ProposedTransaction) error {
	if prev.Executed() {
		return errors.Wrapf(errors.ErrNotPending, "transaction %d", prev.ID)
	}
	switch {
	case prev.ID != next.ID:
		return errors.Field("ID", errors.ErrCannotBeModified, "")
	case prev.Name != next.Name:
		return errors.Field("Name", errors.ErrCannotBeModified, "")
	case prev.Vault != next.Vault:
		return errors.Field("Vault", errors.ErrCannotBeModified, "")
	case prev.Method != next.Method:
		return errors.Field("Method", errors.ErrCannotBeModified, "")
	case prev.Creator != next.Creator:
		return errors.Field("Creator", errors.ErrCannotBeModified, "")
	case prev.CreatedAt != next.CreatedAt:
		return errors.Field("CreatedAt", errors.ErrCannotBeModified, "")
	}
	if !bytes.Equal(prev.Calldata, next.Calldata) && len(prev.Signers) > 0 {
		return errors.Wrapf(errors.ErrImmutableCalldata, "transaction %d", prev.ID)
	}
	return nil
}

func checkVault(vs *vault.State, tx *ProposedTransaction) error {
	if vs.Address != tx.Vault {
		return errors.Wrapf(errors.ErrInput, "transaction of vault %s, state of %s", tx.Vault.Hex(), vs.Address.Hex())
	}
	return nil
}

func decodeCalldata(data []byte) (*calldata.Intent, error) {
	in, err := calldata.Decode(data)
	if err != nil {
		return nil, errors.Field("Calldata", err, "")
	}
	return in, nil
}
