package vaulttest

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
)

// ParseAddress takes an address in a human readable format and returns its
// binary representation. This function is a test helper that is using
// msvault.ParseAddress function functionality.
func ParseAddress(t testing.TB, encodedAddress string) common.Address {
	t.Helper()

	addr, err := msvault.ParseAddress(encodedAddress)
	if err != nil {
		t.Fatalf("cannot parse %q address: %s", encodedAddress, err)
	}
	return addr
}

// SequenceAddress returns a deterministic address for given number. Use it for
// vaults and recipients that never sign.
func SequenceAddress(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}
