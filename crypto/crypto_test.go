package crypto

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/vaulttest/assert"
)

const (
	vectorKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	vectorAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	// Signature of "Some data" as a personal message.
	vectorSig = "b91467e570a6466aa9e9876cbcd013baba02900b8979d43fe208a4a4f339f5fd6007e74cd82e037b800186422fc2da167c747ef045e5d18a5f5d4300f8e1a0291c"
)

func TestTransactionHash(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	data := []byte{0xde, 0xad, 0xbe, 0xef}

	want := ethcrypto.Keccak256Hash(vault.Bytes(), data)
	got := TransactionHash(vault, data)
	assert.Equal(t, want, got)
	assert.Equal(t, got, TransactionHash(vault, data))

	other := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	if TransactionHash(other, data) == got {
		t.Fatal("hash must depend on the vault")
	}
	if TransactionHash(vault, data[:3]) == got {
		t.Fatal("hash must depend on the calldata")
	}
}

func TestMessageDigest(t *testing.T) {
	got := MessageDigest([]byte("Some data"))
	assert.Equal(t, "1da44b586eb0729ff70a73c326926f6ed5a25f5b056e7f47fbc6e58d86871655", hex.EncodeToString(got))
}

func TestKnownSignatureVector(t *testing.T) {
	signer, err := HexToSigner("0x" + vectorKey)
	assert.Nil(t, err)
	assert.Equal(t, vectorAddress, signer.Address().Hex())

	sig, err := signer.SignMessage([]byte("Some data"))
	assert.Nil(t, err)
	assert.Equal(t, vectorSig, hex.EncodeToString(sig))

	addr, err := RecoverMessage([]byte("Some data"), sig)
	assert.Nil(t, err)
	assert.Equal(t, signer.Address(), addr)
}

func TestRecover(t *testing.T) {
	signer, err := GenerateKey()
	assert.Nil(t, err)
	hash := TransactionHash(common.HexToAddress("0x01"), []byte("payload"))
	sig, err := signer.SignHash(hash)
	assert.Nil(t, err)

	lowV := append([]byte(nil), sig...)
	lowV[64] -= 27

	highS := append([]byte(nil), sig...)
	for i := 32; i < 64; i++ {
		highS[i] = 0xff
	}

	cases := map[string]struct {
		sig      []byte
		wantAddr bool
		wantErr  *errors.Error
	}{
		"recovery id 27 or 28": {
			sig:      sig,
			wantAddr: true,
		},
		"recovery id 0 or 1": {
			sig:      lowV,
			wantAddr: true,
		},
		"too short": {
			sig:     sig[:64],
			wantErr: errors.ErrInvalidSignatureFormat,
		},
		"too long": {
			sig:     append(append([]byte(nil), sig...), 0),
			wantErr: errors.ErrInvalidSignatureFormat,
		},
		"unknown recovery id": {
			sig:     append(append([]byte(nil), sig[:64]...), 5),
			wantErr: errors.ErrInvalidSignatureFormat,
		},
		"high s value": {
			sig:     highS,
			wantErr: errors.ErrInvalidSignatureFormat,
		},
		"zero signature": {
			sig:     make([]byte, SignatureLength),
			wantErr: errors.ErrInvalidSignatureFormat,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := Recover(hash, tc.sig)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if tc.wantAddr && got != signer.Address() {
				t.Fatalf("want %s, got %s", signer.Address().Hex(), got.Hex())
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	signer, err := GenerateKey()
	assert.Nil(t, err)
	sig, err := signer.SignHash(common.HexToHash("0x01"))
	assert.Nil(t, err)
	assert.Equal(t, true, IsCanonical(sig))

	lowV := append([]byte(nil), sig...)
	lowV[64] -= 27
	assert.Equal(t, false, IsCanonical(lowV))

	got, err := Canonical(lowV)
	assert.Nil(t, err)
	assert.EqualBytes(t, sig, got)
	assert.Equal(t, sig[64]-27, lowV[64])

	got, err = Canonical(sig)
	assert.Nil(t, err)
	assert.EqualBytes(t, sig, got)

	_, err = Canonical(sig[:64])
	assert.IsErr(t, errors.ErrInvalidSignatureFormat, err)
	assert.Equal(t, false, IsCanonical(sig[:64]))
}

func TestRecoverDoesNotModifyInput(t *testing.T) {
	signer, err := GenerateKey()
	assert.Nil(t, err)
	hash := common.HexToHash("0x01")
	sig, err := signer.SignHash(hash)
	assert.Nil(t, err)
	orig := append([]byte(nil), sig...)

	_, err = Recover(hash, sig)
	assert.Nil(t, err)
	if !bytes.Equal(orig, sig) {
		t.Fatal("signature was modified")
	}
}

func TestRecoverOtherHash(t *testing.T) {
	signer, err := GenerateKey()
	assert.Nil(t, err)
	sig, err := signer.SignHash(common.HexToHash("0x01"))
	assert.Nil(t, err)

	// A signature over a different hash still recovers, just to someone else.
	got, err := Recover(common.HexToHash("0x02"), sig)
	assert.Nil(t, err)
	if got == signer.Address() {
		t.Fatal("recovered the signer from a foreign hash")
	}
}

func TestSignerSaveLoad(t *testing.T) {
	signer, err := GenerateKey()
	assert.Nil(t, err)
	path := filepath.Join(t.TempDir(), "owner.key")
	assert.Nil(t, signer.Save(path))

	loaded, err := LoadKey(path)
	assert.Nil(t, err)
	assert.Equal(t, signer.Address(), loaded.Address())

	_, err = LoadKey(filepath.Join(t.TempDir(), "missing.key"))
	assert.IsErr(t, errors.ErrInput, err)

	_, err = HexToSigner("zz")
	assert.IsErr(t, errors.ErrInput, err)
}
