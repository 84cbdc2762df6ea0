package vaulttest

import (
	"bytes"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/crypto"
)

// NewSigner returns a signer with a random key.
func NewSigner(t testing.TB) *crypto.Signer {
	t.Helper()
	s, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("cannot generate key: %s", err)
	}
	return s
}

// NewSigners returns n signers with random keys, sorted ascending by their
// address. The first signer has the lowest address.
func NewSigners(t testing.TB, n int) []*crypto.Signer {
	t.Helper()
	res := make([]*crypto.Signer, n)
	for i := range res {
		res[i] = NewSigner(t)
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i].Address(), res[j].Address()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return res
}

// Addresses returns the addresses of given signers, in the same order.
func Addresses(signers ...*crypto.Signer) []common.Address {
	res := make([]common.Address, len(signers))
	for i, s := range signers {
		res[i] = s.Address()
	}
	return res
}

// Sign returns the signature of given hash, failing the test on error.
func Sign(t testing.TB, s *crypto.Signer, hash common.Hash) []byte {
	t.Helper()
	sig, err := s.SignHash(hash)
	if err != nil {
		t.Fatalf("cannot sign %s: %s", hash.Hex(), err)
	}
	return sig
}
