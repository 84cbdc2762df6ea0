package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/vaulttest"
	"github.com/iov-one/msvault/vaulttest/assert"
)

func TestCmdEncode(t *testing.T) {
	recipient := vaulttest.SequenceAddress(0x7e).Hex()

	cases := map[string]struct {
		args    []string
		wantErr *errors.Error
		check   func(*testing.T, *calldata.Intent)
	}{
		"transfer in ether": {
			args: []string{"-recipient", recipient, "-amount", "0.5"},
			check: func(t *testing.T, in *calldata.Intent) {
				assert.Equal(t, "0.5", calldata.FormatEther(in.Transfer().Amount))
			},
		},
		"transfer in wei": {
			args: []string{"-recipient", recipient, "-amount", "42", "-wei"},
			check: func(t *testing.T, in *calldata.Intent) {
				assert.Equal(t, int64(42), in.Transfer().Amount.Int64())
			},
		},
		"negative amount": {
			args:    []string{"-recipient", recipient, "-amount", "-1", "-wei"},
			wantErr: errors.ErrInvalidParams,
		},
		"missing recipient": {
			args:    []string{"-amount", "1"},
			wantErr: errors.ErrInvalidParams,
		},
		"add signer following the owner count": {
			args: []string{"-method", "addSigner", "-signer", recipient, "-threshold", "2", "-follow"},
			check: func(t *testing.T, in *calldata.Intent) {
				assert.Equal(t, calldata.AddSigner, in.Method)
				assert.Equal(t, uint64(3), in.Signer().NewThreshold)
			},
		},
		"remove signer keeping the threshold": {
			args: []string{"-method", "removeSigner", "-signer", recipient, "-threshold", "2"},
			check: func(t *testing.T, in *calldata.Intent) {
				assert.Equal(t, uint64(2), in.Signer().NewThreshold)
			},
		},
		"remove the last confirmation": {
			args:    []string{"-method", "removeSigner", "-signer", recipient, "-threshold", "1", "-follow"},
			wantErr: errors.ErrInvalidParams,
		},
		"unknown method": {
			args:    []string{"-method", "selfDestruct"},
			wantErr: errors.ErrInvalidParams,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var output bytes.Buffer
			err := cmdEncode(nil, &output, tc.args)
			assert.IsErr(t, tc.wantErr, err)
			if tc.wantErr != nil {
				return
			}
			data, err := readHex(&output)
			assert.Nil(t, err)
			in, err := calldata.Decode(data)
			assert.Nil(t, err)
			tc.check(t, in)
		})
	}
}

func TestCmdDecode(t *testing.T) {
	var encoded bytes.Buffer
	args := []string{"-recipient", vaulttest.SequenceAddress(0x7e).Hex(), "-amount", "1.25"}
	assert.Nil(t, cmdEncode(nil, &encoded, args))

	var output bytes.Buffer
	assert.Nil(t, cmdDecode(&encoded, &output, nil))
	out := output.String()
	if !strings.HasPrefix(out, "transferFunds(address,uint256)\n") || !strings.Contains(out, "(1.25 ether)") {
		t.Fatalf("unexpected output %q", out)
	}

	err := cmdDecode(strings.NewReader("0x12345678\n"), &output, nil)
	assert.IsErr(t, errors.ErrMalformedPayload, err)

	if err := cmdDecode(strings.NewReader("0x12\n0x34\n"), &output, nil); err == nil {
		t.Fatal("more than one value accepted")
	}
}
