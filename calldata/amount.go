package calldata

import (
	"math/big"
	"strings"

	"github.com/iov-one/msvault/errors"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ParseEther converts a decimal ether amount, for example "0.1", into wei.
// More than 18 fractional digits is an error.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	r, ok := new(big.Rat).SetString(s)
	if !ok || strings.ContainsAny(s, "/eE") {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "invalid amount %q", s)
	}
	if r.Sign() < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "negative amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "amount %q more precise than wei", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatEther returns the decimal ether representation of a wei amount.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, weiPerEther)
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
