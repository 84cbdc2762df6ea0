package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/x/metatx"
	"github.com/iov-one/msvault/x/multisig"
	"github.com/iov-one/msvault/x/vault"
)

// transactionView is the JSON representation of a proposed transaction.
// Binary values are 0x prefixed hex strings.
type transactionView struct {
	ID          uint64           `json:"id"`
	Version     uint32           `json:"version"`
	Name        string           `json:"name"`
	Vault       common.Address   `json:"vault"`
	Method      calldata.Method  `json:"method"`
	Calldata    hexutil.Bytes    `json:"calldata"`
	Hash        common.Hash      `json:"hash"`
	Creator     common.Address   `json:"creator"`
	Signers     []common.Address `json:"signers"`
	Signatures  []hexutil.Bytes  `json:"signatures"`
	CreatedAt   msvault.UnixTime `json:"createdAt"`
	Executed    bool             `json:"executed"`
	ExecutedAt  msvault.UnixTime `json:"executedAt,omitempty"`
	ExecutionTx *common.Hash     `json:"executionTx,omitempty"`
}

func newTransactionView(tx *metatx.ProposedTransaction) transactionView {
	v := transactionView{
		ID:         tx.ID,
		Version:    tx.Version,
		Name:       tx.Name,
		Vault:      tx.Vault,
		Method:     tx.Method,
		Calldata:   tx.Calldata,
		Hash:       tx.Hash,
		Creator:    tx.Creator,
		Signers:    tx.Signers,
		Signatures: make([]hexutil.Bytes, len(tx.Signatures)),
		CreatedAt:  tx.CreatedAt,
		Executed:   tx.Executed(),
		ExecutedAt: tx.ExecutedAt,
	}
	if v.Signers == nil {
		v.Signers = []common.Address{}
	}
	for i, sig := range tx.Signatures {
		v.Signatures[i] = sig
	}
	if tx.Executed() {
		h := tx.ExecutionTx
		v.ExecutionTx = &h
	}
	return v
}

func newTransactionViews(txs []*metatx.ProposedTransaction) []transactionView {
	res := make([]transactionView, len(txs))
	for i, tx := range txs {
		res[i] = newTransactionView(tx)
	}
	return res
}

type statusView struct {
	Transaction        transactionView         `json:"transaction"`
	Intent             string                  `json:"intent"`
	Vault              *vault.State            `json:"vault"`
	Actions            multisig.Actions        `json:"actions"`
	Confirmations      []multisig.Confirmation `json:"confirmations"`
	ValidConfirmations int                     `json:"validConfirmations"`
}

func newStatusView(s *metatx.Status) statusView {
	return statusView{
		Transaction:        newTransactionView(s.Transaction),
		Intent:             s.Intent,
		Vault:              s.Vault,
		Actions:            s.Actions,
		Confirmations:      s.Confirmations,
		ValidConfirmations: s.ValidConfirmations,
	}
}

type executionView struct {
	Transaction *transactionView `json:"transaction,omitempty"`
	Receipt     *vault.Receipt   `json:"receipt,omitempty"`
}

type eventView struct {
	Kind        metatx.EventKind `json:"kind"`
	Transaction transactionView  `json:"transaction"`
}

// Request bodies.

type proposeRequest struct {
	Name     string        `json:"name"`
	Calldata hexutil.Bytes `json:"calldata"`
	Creator  string        `json:"creator"`
	// Signature of the creator. When given, the proposal is confirmed by
	// the creator right away.
	Signature hexutil.Bytes `json:"signature"`
}

type confirmRequest struct {
	Signer    string        `json:"signer"`
	Signature hexutil.Bytes `json:"signature"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type amendRequest struct {
	Caller   string        `json:"caller"`
	Calldata hexutil.Bytes `json:"calldata"`
}

type revokeRequest struct {
	Signer string `json:"signer"`
}
