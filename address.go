package msvault

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/errors"
)

// ParseAddress decodes a hex encoded, 0x prefixed, 20 byte address. The zero
// address is rejected because it is never a valid owner, recipient or vault.
//
// Mixed case input must carry a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, errors.Wrapf(errors.ErrInput, "invalid address %q", s)
	}
	a := common.HexToAddress(s)
	if a == (common.Address{}) {
		return a, errors.Wrap(errors.ErrInput, "zero address")
	}
	body := s[2:]
	if strings.ToLower(body) != body && strings.ToUpper(body) != body && a.Hex()[2:] != body {
		return common.Address{}, errors.Wrapf(errors.ErrInput, "invalid checksum %q", s)
	}
	return a, nil
}

// ParseAddresses decodes a comma separated list of addresses.
func ParseAddresses(s string) ([]common.Address, error) {
	var res []common.Address
	for i, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		a, err := ParseAddress(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "address %d", i)
		}
		res = append(res, a)
	}
	return res, nil
}
