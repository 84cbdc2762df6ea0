package calldata

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// VaultABI is the interface of the multisig vault contract as far as the
// coordinator is concerned. The three mutating owner methods can only be
// called by the vault itself, through executeTransaction.
const VaultABI = `[
	{"type":"function","name":"transferFunds","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"addSigner","stateMutability":"nonpayable",
	 "inputs":[{"name":"signer","type":"address"},{"name":"newConfirmationsRequired","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"removeSigner","stateMutability":"nonpayable",
	 "inputs":[{"name":"signer","type":"address"},{"name":"newConfirmationsRequired","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getTransactionHash","stateMutability":"view",
	 "inputs":[{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"recover","stateMutability":"pure",
	 "inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"isOwner","stateMutability":"view",
	 "inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getOwners","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"confirmationsRequired","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"executeTransaction","stateMutability":"nonpayable",
	 "inputs":[{"name":"data","type":"bytes"},{"name":"signatures","type":"bytes[]"}],"outputs":[]}
]`

var vaultABI = mustParseABI(VaultABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("cannot parse vault abi: " + err.Error())
	}
	return parsed
}

// ABI returns the parsed vault contract interface.
func ABI() abi.ABI {
	return vaultABI
}
