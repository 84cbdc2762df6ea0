package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// TransactionHash returns the hash owners sign over to approve calldata for
// execution by the given vault. It is keccak256(vault || calldata), the same
// value the vault computes with keccak256(abi.encodePacked(address(this), data)).
func TransactionHash(vault common.Address, calldata []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(vault.Bytes())
	_, _ = h.Write(calldata)
	var res common.Hash
	h.Sum(res[:0])
	return res
}
