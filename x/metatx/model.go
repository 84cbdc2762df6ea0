package metatx

import (
	"strconv"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/crypto"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/orm"
)

// MaxNameLength is the longest accepted transaction name, in characters.
const MaxNameLength = 128

// ProposedTransaction is a single snapshot of a transaction awaiting (or
// past) execution by a vault.
type ProposedTransaction struct {
	ID      uint64 `json:"id"`
	Version uint32 `json:"version"`
	Name    string `json:"name"`

	Vault    common.Address  `json:"vault"`
	Method   calldata.Method `json:"method"`
	Calldata []byte          `json:"calldata"`
	Hash     common.Hash     `json:"hash"`
	Creator  common.Address  `json:"creator"`

	// Signers and Signatures are kept in lock-step, the signature at index
	// i was made by the signer at index i.
	Signers    []common.Address `json:"signers"`
	Signatures [][]byte         `json:"signatures"`

	CreatedAt   msvault.UnixTime `json:"createdAt"`
	ExecutedAt  msvault.UnixTime `json:"executedAt,omitempty"`
	ExecutionTx common.Hash      `json:"executionTx,omitempty"`
}

var _ orm.VersionedModel = (*ProposedTransaction)(nil)

// Executed returns true once the vault confirmed the execution.
func (tx *ProposedTransaction) Executed() bool {
	return !tx.ExecutedAt.IsZero()
}

// SignerIndex returns the position of given signer confirmation or -1.
func (tx *ProposedTransaction) SignerIndex(signer common.Address) int {
	for i, s := range tx.Signers {
		if s == signer {
			return i
		}
	}
	return -1
}

// Intent decodes the calldata.
func (tx *ProposedTransaction) Intent() (*calldata.Intent, error) {
	return calldata.Decode(tx.Calldata)
}

// Copy returns a deep copy. Transitions always work on a copy so that the
// snapshot they were given stays untouched.
func (tx *ProposedTransaction) Copy() *ProposedTransaction {
	c := *tx
	c.Calldata = append([]byte(nil), tx.Calldata...)
	c.Signers = append([]common.Address(nil), tx.Signers...)
	if tx.Signatures != nil {
		c.Signatures = make([][]byte, len(tx.Signatures))
		for i, s := range tx.Signatures {
			c.Signatures[i] = append([]byte(nil), s...)
		}
	}
	return &c
}

// GetVersion implements orm.VersionedModel.
func (tx *ProposedTransaction) GetVersion() uint32 {
	return tx.Version
}

// SetVersion implements orm.VersionedModel.
func (tx *ProposedTransaction) SetVersion(v uint32) {
	tx.Version = v
}

// Validate ensures the snapshot is internally consistent. It does not know
// the vault state, owner membership is checked by the transitions.
func (tx *ProposedTransaction) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Name", validateName(tx.Name))
	if tx.Vault == (common.Address{}) {
		errs = errors.AppendField(errs, "Vault", errors.ErrEmpty)
	}
	if tx.Creator == (common.Address{}) {
		errs = errors.AppendField(errs, "Creator", errors.ErrEmpty)
	}
	if err := tx.Method.Validate(); err != nil {
		errs = errors.AppendField(errs, "Method", err)
	} else if in, err := tx.Intent(); err != nil {
		errs = errors.AppendField(errs, "Calldata", err)
	} else if in.Method != tx.Method {
		errs = errors.Append(errs, errors.Field("Calldata", errors.ErrModel, "encodes %s, not %s", in.Method, tx.Method))
	}
	if want := crypto.TransactionHash(tx.Vault, tx.Calldata); tx.Hash != want {
		errs = errors.Append(errs, errors.Field("Hash", errors.ErrHashMismatch, "want %s", want.Hex()))
	}
	errs = errors.AppendField(errs, "CreatedAt", tx.CreatedAt.Validate())
	if tx.CreatedAt.IsZero() {
		errs = errors.AppendField(errs, "CreatedAt", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "ExecutedAt", tx.ExecutedAt.Validate())
	if !tx.Executed() && tx.ExecutionTx != (common.Hash{}) {
		errs = errors.Append(errs, errors.Field("ExecutionTx", errors.ErrState, "set on a pending transaction"))
	}
	errs = errors.Append(errs, tx.validateConfirmations())
	return errs
}

func (tx *ProposedTransaction) validateConfirmations() error {
	if len(tx.Signers) != len(tx.Signatures) {
		return errors.Field("Signatures", errors.ErrModel,
			"%d signatures for %d signers", len(tx.Signatures), len(tx.Signers))
	}
	var errs error
	seen := make(map[common.Address]struct{}, len(tx.Signers))
	for i, s := range tx.Signers {
		if _, ok := seen[s]; ok {
			errs = errors.AppendField(errs, fieldIndex("Signers", i), errors.ErrDuplicateSigner)
			continue
		}
		seen[s] = struct{}{}
		got, err := crypto.Recover(tx.Hash, tx.Signatures[i])
		if err == nil && !crypto.IsCanonical(tx.Signatures[i]) {
			err = errors.Wrap(errors.ErrInvalidSignatureFormat, "recovery id must be 27 or 28")
		}
		if err != nil {
			errs = errors.AppendField(errs, fieldIndex("Signatures", i), err)
		} else if got != s {
			errs = errors.Append(errs, errors.Field(fieldIndex("Signatures", i), errors.ErrInvalidSignature, "signed by %s", got.Hex()))
		}
	}
	return errs
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	switch {
	case !utf8.ValidString(name):
		return errors.Wrap(errors.ErrInvalidParams, "not utf8")
	case n == 0:
		return errors.Wrap(errors.ErrInvalidParams, "name required")
	case n > MaxNameLength:
		return errors.Wrapf(errors.ErrInvalidParams, "name longer than %d characters", MaxNameLength)
	}
	return nil
}

func fieldIndex(name string, i int) string {
	return name + "." + strconv.Itoa(i)
}

// txRecord is the stored form of a transaction. The id is not part of it, it
// is a part of the database key.
type txRecord struct {
	Version     uint32
	Name        string
	Vault       []byte
	Method      string
	Calldata    []byte
	Hash        []byte
	Creator     []byte
	Signers     [][]byte
	Signatures  [][]byte
	CreatedAt   int64
	ExecutedAt  int64
	ExecutionTx []byte
}

// Marshal implements orm.Model.
func (tx *ProposedTransaction) Marshal() ([]byte, error) {
	rec := txRecord{
		Version:     tx.Version,
		Name:        tx.Name,
		Vault:       tx.Vault.Bytes(),
		Method:      string(tx.Method),
		Calldata:    tx.Calldata,
		Hash:        tx.Hash.Bytes(),
		Creator:     tx.Creator.Bytes(),
		Signers:     make([][]byte, 0, len(tx.Signers)),
		Signatures:  tx.Signatures,
		CreatedAt:   int64(tx.CreatedAt),
		ExecutedAt:  int64(tx.ExecutedAt),
		ExecutionTx: tx.ExecutionTx.Bytes(),
	}
	for _, s := range tx.Signers {
		rec.Signers = append(rec.Signers, s.Bytes())
	}
	return orm.MarshalRecord(rec)
}

// Unmarshal implements orm.Model. The ID is left untouched.
func (tx *ProposedTransaction) Unmarshal(raw []byte) error {
	var rec txRecord
	if err := orm.UnmarshalRecord(raw, &rec); err != nil {
		return errors.Wrap(errors.ErrModel, err.Error())
	}
	if len(rec.Vault) != common.AddressLength || len(rec.Creator) != common.AddressLength {
		return errors.Wrap(errors.ErrModel, "address length")
	}
	if len(rec.Hash) != common.HashLength || len(rec.ExecutionTx) != common.HashLength {
		return errors.Wrap(errors.ErrModel, "hash length")
	}
	var signers []common.Address
	for i, s := range rec.Signers {
		if len(s) != common.AddressLength {
			return errors.Wrapf(errors.ErrModel, "signer %d address length", i)
		}
		signers = append(signers, common.BytesToAddress(s))
	}
	*tx = ProposedTransaction{
		ID:          tx.ID,
		Version:     rec.Version,
		Name:        rec.Name,
		Vault:       common.BytesToAddress(rec.Vault),
		Method:      calldata.Method(rec.Method),
		Calldata:    rec.Calldata,
		Hash:        common.BytesToHash(rec.Hash),
		Creator:     common.BytesToAddress(rec.Creator),
		Signers:     signers,
		Signatures:  rec.Signatures,
		CreatedAt:   msvault.UnixTime(rec.CreatedAt),
		ExecutedAt:  msvault.UnixTime(rec.ExecutedAt),
		ExecutionTx: common.BytesToHash(rec.ExecutionTx),
	}
	return nil
}
