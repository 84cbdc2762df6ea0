package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/msvault/errors"
)

// SignatureLength is the size of a serialized r || s || v signature.
const SignatureLength = 65

// MessageDigest returns the EIP-191 personal message digest of given message.
// A wallet signMessage call signs this digest and not the message itself.
func MessageDigest(msg []byte) []byte {
	return accounts.TextHash(msg)
}

// Recover returns the address of the key that signed given transaction hash
// as a personal message.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	return RecoverMessage(hash.Bytes(), sig)
}

// RecoverMessage returns the address of the key that signed given message
// with a personal message signature.
func RecoverMessage(msg []byte, sig []byte) (common.Address, error) {
	norm, err := normalize(sig)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := ethcrypto.SigToPub(MessageDigest(msg), norm)
	if err != nil {
		return common.Address{}, errors.Wrap(errors.ErrInvalidSignatureFormat, err.Error())
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Canonical returns a copy of the signature with the recovery id in the 27 or
// 28 form. This is the only form accepted by the vault ecrecover check.
func Canonical(sig []byte) ([]byte, error) {
	norm, err := normalize(sig)
	if err != nil {
		return nil, err
	}
	norm[64] += 27
	return norm, nil
}

// IsCanonical returns true when the recovery id of sig is 27 or 28.
func IsCanonical(sig []byte) bool {
	return len(sig) == SignatureLength && (sig[64] == 27 || sig[64] == 28)
}

// normalize validates the signature encoding and returns a copy with the
// recovery id in the 0 or 1 form expected by the secp256k1 library.
func normalize(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, errors.Wrapf(errors.ErrInvalidSignatureFormat,
			"want %d bytes, got %d", SignatureLength, len(sig))
	}
	norm := make([]byte, SignatureLength)
	copy(norm, sig)
	switch v := norm[64]; v {
	case 0, 1:
	case 27, 28:
		norm[64] = v - 27
	default:
		return nil, errors.Wrapf(errors.ErrInvalidSignatureFormat, "recovery id %d", v)
	}
	r := new(big.Int).SetBytes(norm[:32])
	s := new(big.Int).SetBytes(norm[32:64])
	// Only the lower half of s is accepted, same as the ecrecover wrapper
	// used by the vault.
	if !ethcrypto.ValidateSignatureValues(norm[64], r, s, true) {
		return nil, errors.Wrap(errors.ErrInvalidSignatureFormat, "signature values out of range")
	}
	return norm, nil
}
