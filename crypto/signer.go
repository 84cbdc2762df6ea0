package crypto

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/msvault/errors"
)

// Signer holds a secp256k1 private key and produces signatures in the same
// form a wallet signMessage call does. It exists for tests and development
// tooling, owners keep their keys in their own wallets.
type Signer struct {
	key *ecdsa.PrivateKey
}

// GenerateKey returns a signer with a new random key.
func GenerateKey() (*Signer, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}
	return &Signer{key: key}, nil
}

// LoadKey reads a hex encoded private key file.
func LoadKey(path string) (*Signer, error) {
	key, err := ethcrypto.LoadECDSA(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "load key %q: %s", path, err)
	}
	return &Signer{key: key}, nil
}

// HexToSigner parses a hex encoded private key. An optional 0x prefix is
// accepted.
func HexToSigner(s string) (*Signer, error) {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	key, err := ethcrypto.HexToECDSA(s)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "private key: %s", err)
	}
	return &Signer{key: key}, nil
}

// Save writes the private key hex encoded into given file.
func (s *Signer) Save(path string) error {
	if err := ethcrypto.SaveECDSA(path, s.key); err != nil {
		return errors.Wrapf(errors.ErrInput, "save key %q: %s", path, err)
	}
	return nil
}

// Address returns the address controlled by this signer.
func (s *Signer) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.key.PublicKey)
}

// PrivateKey returns the underlying key, for example to build transaction
// options for a vault execution.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}

// SignMessage signs the EIP-191 digest of given message. The recovery id is
// returned in the 27 or 28 form.
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(MessageDigest(msg), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}
	sig[64] += 27
	return sig, nil
}

// SignHash signs a transaction hash, as a confirming owner does.
func (s *Signer) SignHash(hash common.Hash) ([]byte, error) {
	return s.SignMessage(hash.Bytes())
}
