package multisig

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/crypto"
	"github.com/iov-one/msvault/errors"
)

// OrderSignatures returns given signatures sorted by the address they recover
// to, ascending by raw address bytes. This is the order the vault verifies
// signatures in, rejecting duplicates by requiring every signer to be greater
// than the previous one.
//
// Ordering an already ordered set returns the same set.
func OrderSignatures(sigs [][]byte, hash common.Hash) ([][]byte, error) {
	ordered, _, err := OrderedSigners(sigs, hash)
	return ordered, err
}

// OrderedSigners works like OrderSignatures and additionally returns the
// recovered signer of every returned signature.
func OrderedSigners(sigs [][]byte, hash common.Hash) ([][]byte, []common.Address, error) {
	if len(sigs) == 0 {
		return nil, nil, errors.ErrEmptySignatureSet.New("no signatures")
	}

	type pair struct {
		sig    []byte
		signer common.Address
	}
	pairs := make([]pair, len(sigs))
	for i, sig := range sigs {
		signer, err := crypto.Recover(hash, sig)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "signature %d", i)
		}
		pairs[i] = pair{sig: sig, signer: signer}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].signer[:], pairs[j].signer[:]) < 0
	})

	ordered := make([][]byte, len(pairs))
	signers := make([]common.Address, len(pairs))
	for i, p := range pairs {
		if i > 0 && p.signer == pairs[i-1].signer {
			return nil, nil, errors.Wrapf(errors.ErrDuplicateSigner, "%s", p.signer.Hex())
		}
		ordered[i] = p.sig
		signers[i] = p.signer
	}
	return ordered, signers, nil
}
