package multisig

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/vaulttest"
	"github.com/iov-one/msvault/vaulttest/assert"
)

func TestEvaluate(t *testing.T) {
	a := vaulttest.SequenceAddress(1)
	b := vaulttest.SequenceAddress(2)
	c := vaulttest.SequenceAddress(3)
	stranger := vaulttest.SequenceAddress(4)
	owners := NewOwnerSet(a, b, c)

	cases := map[string]struct {
		owners    OwnerSet
		threshold uint64
		signers   []common.Address
		executed  bool
		caller    common.Address
		want      Actions
	}{
		"no confirmations": {
			owners: owners, threshold: 2, caller: a,
			want: Actions{CanConfirm: true},
		},
		"confirmed self below quorum": {
			owners: owners, threshold: 2, signers: []common.Address{a}, caller: a,
			want: Actions{CanRevoke: true},
		},
		"other confirmed below quorum": {
			owners: owners, threshold: 2, signers: []common.Address{a}, caller: b,
			want: Actions{CanConfirm: true},
		},
		"quorum met and confirmed self": {
			owners: owners, threshold: 2, signers: []common.Address{a, b}, caller: a,
			want: Actions{CanExecute: true, CanRevoke: true},
		},
		"quorum met without own confirmation": {
			owners: owners, threshold: 2, signers: []common.Address{a, b}, caller: c,
			want: Actions{CanExecute: true},
		},
		"quorum exceeded": {
			owners: owners, threshold: 2, signers: []common.Address{a, b, c}, caller: c,
			want: Actions{CanExecute: true, CanRevoke: true},
		},
		"executed permits nothing": {
			owners: owners, threshold: 2, signers: []common.Address{a, b}, executed: true, caller: a,
			want: Actions{},
		},
		"not an owner": {
			owners: owners, threshold: 1, signers: []common.Address{a}, caller: stranger,
			want: Actions{},
		},
		"signer removed from owners does not count": {
			owners: NewOwnerSet(a, b), threshold: 2, signers: []common.Address{a, c}, caller: a,
			want: Actions{CanRevoke: true},
		},
		"removed signer cannot act": {
			owners: NewOwnerSet(a, b), threshold: 1, signers: []common.Address{c}, caller: c,
			want: Actions{},
		},
		"zero threshold never executes": {
			owners: owners, threshold: 0, signers: []common.Address{a}, caller: b,
			want: Actions{CanConfirm: true},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got := Evaluate(tc.owners, tc.threshold, tc.signers, tc.executed, tc.caller)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateConfirmRevokeExclusive(t *testing.T) {
	owners := make([]common.Address, 5)
	for i := range owners {
		owners[i] = vaulttest.SequenceAddress(int64(i + 1))
	}
	set := NewOwnerSet(owners...)

	// Every subset of confirming owners, every threshold and every caller.
	for mask := 0; mask < 1<<len(owners); mask++ {
		var signers []common.Address
		for i, o := range owners {
			if mask&(1<<i) != 0 {
				signers = append(signers, o)
			}
		}
		for threshold := uint64(1); threshold <= uint64(len(owners)); threshold++ {
			for _, caller := range owners {
				got := Evaluate(set, threshold, signers, false, caller)
				if got.CanConfirm && got.CanRevoke {
					t.Fatalf("confirm and revoke both allowed: signers %v, threshold %d, caller %s",
						signers, threshold, caller.Hex())
				}
				if got.CanExecute != (len(signers) >= int(threshold)) {
					t.Fatalf("unexpected execute flag for %d of %d", len(signers), threshold)
				}
			}
		}
	}
}

func TestQuorumFollowsOwnerChanges(t *testing.T) {
	a := vaulttest.SequenceAddress(1)
	b := vaulttest.SequenceAddress(2)
	c := vaulttest.SequenceAddress(3)
	signers := []common.Address{a, c}

	before := Evaluate(NewOwnerSet(a, b, c), 2, signers, false, b)
	assert.Equal(t, Actions{CanExecute: true}, before)

	// C is removed from owners after confirming. No revoke happened but the
	// confirmation no longer counts.
	after := Evaluate(NewOwnerSet(a, b), 2, signers, false, b)
	assert.Equal(t, Actions{CanConfirm: true}, after)
}

func TestValidConfirmations(t *testing.T) {
	a := vaulttest.SequenceAddress(1)
	b := vaulttest.SequenceAddress(2)
	c := vaulttest.SequenceAddress(3)
	owners := NewOwnerSet(a, b)

	assert.Equal(t, 0, ValidConfirmations(owners, nil))
	assert.Equal(t, 1, ValidConfirmations(owners, []common.Address{a, a}))
	assert.Equal(t, 2, ValidConfirmations(owners, []common.Address{c, b, a}))
	if MeetsQuorum(owners, 3, []common.Address{a, b, c}) {
		t.Fatal("foreign confirmation counted")
	}
}

func TestConfirmations(t *testing.T) {
	a := vaulttest.SequenceAddress(1)
	b := vaulttest.SequenceAddress(2)
	got := Confirmations(NewOwnerSet(b, a), []common.Address{b})
	assert.Equal(t, []Confirmation{
		{Owner: a, Confirmed: false},
		{Owner: b, Confirmed: true},
	}, got)
}

func TestValidateThreshold(t *testing.T) {
	owners := NewOwnerSet(vaulttest.SequenceAddress(1), vaulttest.SequenceAddress(2), vaulttest.SequenceAddress(1))
	assert.Equal(t, 2, owners.Len())

	cases := map[string]struct {
		owners    OwnerSet
		threshold uint64
		wantErr   *errors.Error
	}{
		"one of two":   {owners: owners, threshold: 1},
		"all":          {owners: owners, threshold: 2},
		"zero":         {owners: owners, threshold: 0, wantErr: errors.ErrState},
		"above owners": {owners: owners, threshold: 3, wantErr: errors.ErrState},
		"no owners":    {owners: NewOwnerSet(), threshold: 1, wantErr: errors.ErrState},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.IsErr(t, tc.wantErr, tc.owners.ValidateThreshold(tc.threshold))
		})
	}
}
