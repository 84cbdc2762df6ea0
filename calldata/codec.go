package calldata

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/errors"
)

// Method is the name of a vault method that can be proposed for execution.
type Method string

const (
	TransferFunds Method = "transferFunds"
	AddSigner     Method = "addSigner"
	RemoveSigner  Method = "removeSigner"
)

// Methods lists all methods that can be proposed.
var Methods = []Method{TransferFunds, AddSigner, RemoveSigner}

// Validate returns an error if this is not a method that can be proposed.
func (m Method) Validate() error {
	switch m {
	case TransferFunds, AddSigner, RemoveSigner:
		return nil
	}
	return errors.Wrapf(errors.ErrInvalidParams, "unknown method %q", string(m))
}

// ChangesOwners returns true for methods that modify the owner set.
func (m Method) ChangesOwners() bool {
	return m == AddSigner || m == RemoveSigner
}

// ParseMethod returns the method of given name.
func ParseMethod(name string) (Method, error) {
	m := Method(strings.TrimSpace(name))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// Params are the method specific arguments of an intent.
type Params interface {
	Validate() error
	method(Method) error
	args() []interface{}
}

// TransferParams are the arguments of transferFunds.
type TransferParams struct {
	Recipient common.Address
	// Amount is in wei.
	Amount *big.Int
}

var _ Params = (*TransferParams)(nil)

func (p *TransferParams) Validate() error {
	var errs error
	if p.Recipient == (common.Address{}) {
		errs = errors.AppendField(errs, "Recipient", errors.ErrInvalidParams)
	}
	switch {
	case p.Amount == nil:
		errs = errors.Append(errs, errors.Field("Amount", errors.ErrInvalidParams, "required"))
	case p.Amount.Sign() < 0:
		errs = errors.Append(errs, errors.Field("Amount", errors.ErrInvalidParams, "negative"))
	case p.Amount.BitLen() > 256:
		errs = errors.Append(errs, errors.Field("Amount", errors.ErrInvalidParams, "overflows uint256"))
	}
	return errs
}

func (p *TransferParams) method(m Method) error {
	if m != TransferFunds {
		return errors.Wrapf(errors.ErrInvalidParams, "transfer params for %s", m)
	}
	return nil
}

func (p *TransferParams) args() []interface{} {
	return []interface{}{p.Recipient, p.Amount}
}

// SignerParams are the arguments of addSigner and removeSigner.
type SignerParams struct {
	Signer common.Address
	// NewThreshold is the confirmations count required once the owner set
	// change is executed.
	NewThreshold uint64
}

var _ Params = (*SignerParams)(nil)

func (p *SignerParams) Validate() error {
	var errs error
	if p.Signer == (common.Address{}) {
		errs = errors.AppendField(errs, "Signer", errors.ErrInvalidParams)
	}
	if p.NewThreshold < 1 {
		errs = errors.Append(errs, errors.Field("NewThreshold", errors.ErrInvalidParams, "must be at least 1"))
	}
	return errs
}

func (p *SignerParams) method(m Method) error {
	if !m.ChangesOwners() {
		return errors.Wrapf(errors.ErrInvalidParams, "signer params for %s", m)
	}
	return nil
}

func (p *SignerParams) args() []interface{} {
	return []interface{}{p.Signer, new(big.Int).SetUint64(p.NewThreshold)}
}

// Intent is a decoded calldata payload.
type Intent struct {
	Method Method
	Params Params
}

// Transfer returns the transfer arguments or nil if this is not a transfer.
func (in *Intent) Transfer() *TransferParams {
	p, _ := in.Params.(*TransferParams)
	return p
}

// Signer returns the owner change arguments or nil if this intent does not
// modify owners.
func (in *Intent) Signer() *SignerParams {
	p, _ := in.Params.(*SignerParams)
	return p
}

// Describe returns a human readable form of the intent: the function
// signature followed by one named argument per line.
func (in *Intent) Describe() string {
	m, ok := vaultABI.Methods[string(in.Method)]
	if !ok {
		return string(in.Method)
	}
	var b strings.Builder
	b.WriteString(m.Sig)
	for i, arg := range in.Params.args() {
		name := m.Inputs[i].Name
		switch v := arg.(type) {
		case common.Address:
			fmt.Fprintf(&b, "\n  %s: %s", name, v.Hex())
		default:
			fmt.Fprintf(&b, "\n  %s: %v", name, v)
		}
	}
	return b.String()
}

// Encode returns the calldata invoking given vault method.
func Encode(m Method, p Params) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.Wrap(errors.ErrInvalidParams, "missing params")
	}
	if err := p.method(m); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := vaultABI.Pack(string(m), p.args()...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidParams, err.Error())
	}
	return data, nil
}

// Decode parses calldata of one of the proposable vault methods. Only the
// canonical encoding is accepted: address words with dirty high bytes or
// trailing data are rejected, because signers approve the exact bytes and not
// the decoded values.
func Decode(data []byte) (*Intent, error) {
	if len(data) < 4 {
		return nil, errors.Wrapf(errors.ErrMalformedPayload, "data too short: %d bytes", len(data))
	}
	abiMethod, err := vaultABI.MethodById(data[:4])
	if err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedPayload, "unknown selector %x", data[:4])
	}
	m := Method(abiMethod.RawName)
	if m.Validate() != nil {
		return nil, errors.Wrapf(errors.ErrMalformedPayload, "method %s cannot be proposed", abiMethod.RawName)
	}
	values, err := abiMethod.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformedPayload, err.Error())
	}
	if len(values) != 2 {
		return nil, errors.Wrapf(errors.ErrMalformedPayload, "want 2 arguments, got %d", len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return nil, errors.Wrapf(errors.ErrMalformedPayload, "argument 0: unexpected %T", values[0])
	}
	num, ok := values[1].(*big.Int)
	if !ok {
		return nil, errors.Wrapf(errors.ErrMalformedPayload, "argument 1: unexpected %T", values[1])
	}

	var p Params
	if m == TransferFunds {
		p = &TransferParams{Recipient: addr, Amount: num}
	} else {
		if !num.IsUint64() || num.Uint64() < 1 {
			return nil, errors.Wrapf(errors.ErrMalformedPayload, "threshold %s out of range", num)
		}
		p = &SignerParams{Signer: addr, NewThreshold: num.Uint64()}
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedPayload, err.Error())
	}

	canonical, err := vaultABI.Pack(string(m), p.args()...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrMalformedPayload, err.Error())
	}
	if !bytes.Equal(canonical, data) {
		return nil, errors.Wrap(errors.ErrMalformedPayload, "non canonical encoding")
	}
	return &Intent{Method: m, Params: p}, nil
}

// NextThreshold returns the confirmations count to encode for an owner set
// change. When change is requested the count follows the owner set size, up
// for addSigner and down for removeSigner, otherwise it stays the same.
func NextThreshold(m Method, current uint64, change bool) (uint64, error) {
	if !m.ChangesOwners() {
		return 0, errors.Wrapf(errors.ErrInvalidParams, "%s does not change owners", m)
	}
	if !change {
		return current, nil
	}
	if m == AddSigner {
		return current + 1, nil
	}
	if current <= 1 {
		return 0, errors.Wrap(errors.ErrInvalidParams, "threshold cannot drop below 1")
	}
	return current - 1, nil
}
