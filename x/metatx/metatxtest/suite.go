/*
Package metatxtest provides fixtures and a generic test suite for
implementations of metatx.Store.
*/
package metatxtest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/calldata"
	"github.com/iov-one/msvault/crypto"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/vaulttest"
	"github.com/iov-one/msvault/vaulttest/assert"
	"github.com/iov-one/msvault/x/metatx"
)

// CreatedAt is the creation time of all fixture transactions.
var CreatedAt = msvault.AsUnixTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

// TransferCalldata returns the calldata of a transfer of amount wei to a
// fixed recipient.
func TransferCalldata(t testing.TB, amount int64) []byte {
	t.Helper()
	data, err := calldata.Encode(calldata.TransferFunds, &calldata.TransferParams{
		Recipient: vaulttest.SequenceAddress(0x7e),
		Amount:    big.NewInt(amount),
	})
	assert.Nil(t, err)
	return data
}

// NewTransaction returns a valid pending transaction of given vault, without
// the id and version assigned.
func NewTransaction(t testing.TB, vaultAddr common.Address, creator *crypto.Signer, amount int64) *metatx.ProposedTransaction {
	t.Helper()
	data := TransferCalldata(t, amount)
	return &metatx.ProposedTransaction{
		Name:      "payout",
		Vault:     vaultAddr,
		Method:    calldata.TransferFunds,
		Calldata:  data,
		Hash:      crypto.TransactionHash(vaultAddr, data),
		Creator:   creator.Address(),
		CreatedAt: CreatedAt,
	}
}

// WithConfirmation returns a copy of tx confirmed by signer.
func WithConfirmation(t testing.TB, tx *metatx.ProposedTransaction, signer *crypto.Signer) *metatx.ProposedTransaction {
	t.Helper()
	next := tx.Copy()
	next.Signers = append(next.Signers, signer.Address())
	next.Signatures = append(next.Signatures, vaulttest.Sign(t, signer, tx.Hash))
	return next
}

// StoreConstructor returns a new empty store and a function releasing it.
type StoreConstructor func(t *testing.T) (metatx.Store, func())

// StoreSuite runs the same checks against any metatx.Store implementation.
type StoreSuite struct {
	makeStore StoreConstructor
}

// NewStoreSuite returns a suite creating a fresh store for every test.
func NewStoreSuite(constructor StoreConstructor) *StoreSuite {
	return &StoreSuite{makeStore: constructor}
}

// Run executes all tests of the suite as subtests.
func (s *StoreSuite) Run(t *testing.T) {
	t.Run("CreateGet", s.CreateGet)
	t.Run("ConditionalUpdate", s.ConditionalUpdate)
	t.Run("Immutability", s.Immutability)
	t.Run("List", s.List)
	t.Run("Subscribe", s.Subscribe)
}

// CreateGet checks that created transactions can be read back.
func (s *StoreSuite) CreateGet(t *testing.T) {
	st, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	owner := vaulttest.NewSigner(t)
	vaultAddr := vaulttest.SequenceAddress(0xaa)

	_, err := st.Get(ctx, 1)
	assert.IsErr(t, errors.ErrNotFound, err)

	tx := NewTransaction(t, vaultAddr, owner, 10)
	created, err := st.Create(ctx, tx)
	assert.Nil(t, err)
	if created.ID == 0 {
		t.Fatal("id not assigned")
	}
	assert.Equal(t, uint32(1), created.Version)
	assert.Equal(t, uint32(0), tx.Version)

	got, err := st.Get(ctx, created.ID)
	assert.Nil(t, err)
	assert.Equal(t, created, got)

	second, err := st.Create(ctx, NewTransaction(t, vaultAddr, owner, 20))
	assert.Nil(t, err)
	if second.ID == created.ID {
		t.Fatalf("id %d assigned twice", second.ID)
	}

	invalid := NewTransaction(t, vaultAddr, owner, 30)
	invalid.Hash = common.Hash{1}
	_, err = st.Create(ctx, invalid)
	assert.IsErr(t, errors.ErrHashMismatch, err)

	versioned := NewTransaction(t, vaultAddr, owner, 30)
	versioned.Version = 4
	_, err = st.Create(ctx, versioned)
	assert.IsErr(t, errors.ErrInput, err)
}

// ConditionalUpdate checks that only the latest version can be updated.
func (s *StoreSuite) ConditionalUpdate(t *testing.T) {
	st, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	keys := vaulttest.NewSigners(t, 2)
	created, err := st.Create(ctx, NewTransaction(t, vaulttest.SequenceAddress(0xaa), keys[0], 10))
	assert.Nil(t, err)

	first, err := st.Update(ctx, WithConfirmation(t, created, keys[0]))
	assert.Nil(t, err)
	assert.Equal(t, uint32(2), first.Version)

	// A writer that read version 1 lost the race.
	_, err = st.Update(ctx, WithConfirmation(t, created, keys[1]))
	assert.IsErr(t, errors.ErrConflict, err)

	second, err := st.Update(ctx, WithConfirmation(t, first, keys[1]))
	assert.Nil(t, err)
	assert.Equal(t, uint32(3), second.Version)
	assert.Equal(t, vaulttest.Addresses(keys...), second.Signers)

	got, err := st.Get(ctx, created.ID)
	assert.Nil(t, err)
	assert.Equal(t, second, got)

	missing := second.Copy()
	missing.ID = created.ID + 100
	_, err = st.Update(ctx, missing)
	assert.IsErr(t, errors.ErrNotFound, err)
}

// Immutability checks that the store refuses writes breaking the lifecycle
// rules, whoever the writer is.
func (s *StoreSuite) Immutability(t *testing.T) {
	st, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	owner := vaulttest.NewSigner(t)
	vaultAddr := vaulttest.SequenceAddress(0xaa)
	created, err := st.Create(ctx, NewTransaction(t, vaultAddr, owner, 10))
	assert.Nil(t, err)
	confirmed, err := st.Update(ctx, WithConfirmation(t, created, owner))
	assert.Nil(t, err)

	amended := confirmed.Copy()
	amended.Calldata = TransferCalldata(t, 999)
	amended.Hash = crypto.TransactionHash(vaultAddr, amended.Calldata)
	amended.Signers, amended.Signatures = nil, nil
	_, err = st.Update(ctx, amended)
	assert.IsErr(t, errors.ErrImmutableCalldata, err)

	renamed := confirmed.Copy()
	renamed.Name = "other"
	_, err = st.Update(ctx, renamed)
	assert.IsErr(t, errors.ErrCannotBeModified, err)

	executed := confirmed.Copy()
	executed.ExecutedAt = CreatedAt.Add(time.Minute)
	executed.ExecutionTx = common.Hash{0xee}
	executed, err = st.Update(ctx, executed)
	assert.Nil(t, err)

	again := executed.Copy()
	again.ExecutionTx = common.Hash{0xef}
	_, err = st.Update(ctx, again)
	assert.IsErr(t, errors.ErrNotPending, err)
}

// List checks filtering of the latest snapshots.
func (s *StoreSuite) List(t *testing.T) {
	st, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	owner := vaulttest.NewSigner(t)
	vaultA := vaulttest.SequenceAddress(0xaa)
	vaultB := vaulttest.SequenceAddress(0xbb)

	a1, err := st.Create(ctx, NewTransaction(t, vaultA, owner, 1))
	assert.Nil(t, err)
	a2, err := st.Create(ctx, NewTransaction(t, vaultA, owner, 2))
	assert.Nil(t, err)
	b1, err := st.Create(ctx, NewTransaction(t, vaultB, owner, 3))
	assert.Nil(t, err)

	executed := WithConfirmation(t, a2, owner)
	executed.ExecutedAt = CreatedAt.Add(time.Minute)
	a2, err = st.Update(ctx, executed)
	assert.Nil(t, err)

	cases := map[string]struct {
		filter metatx.Filter
		want   []*metatx.ProposedTransaction
	}{
		"everything": {
			filter: metatx.Filter{},
			want:   []*metatx.ProposedTransaction{a1, a2, b1},
		},
		"single vault": {
			filter: metatx.Filter{Vault: vaultA},
			want:   []*metatx.ProposedTransaction{a1, a2},
		},
		"pending of vault": {
			filter: metatx.Filter{Vault: vaultA, State: metatx.StatePending},
			want:   []*metatx.ProposedTransaction{a1},
		},
		"executed": {
			filter: metatx.Filter{State: metatx.StateExecuted},
			want:   []*metatx.ProposedTransaction{a2},
		},
		"unknown vault": {
			filter: metatx.Filter{Vault: vaulttest.SequenceAddress(0xcc)},
			want:   nil,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := st.List(ctx, tc.filter)
			assert.Nil(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = st.List(ctx, metatx.Filter{State: "archived"})
	assert.IsErr(t, errors.ErrInput, err)
}

// Subscribe checks that stored changes are streamed to matching subscribers.
func (s *StoreSuite) Subscribe(t *testing.T) {
	st, cleanup := s.makeStore(t)
	defer cleanup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner := vaulttest.NewSigner(t)
	vaultA := vaulttest.SequenceAddress(0xaa)

	all, err := st.Subscribe(ctx, metatx.Filter{})
	assert.Nil(t, err)
	pending, err := st.Subscribe(ctx, metatx.Filter{Vault: vaultA, State: metatx.StatePending})
	assert.Nil(t, err)
	other, err := st.Subscribe(ctx, metatx.Filter{Vault: vaulttest.SequenceAddress(0xbb)})
	assert.Nil(t, err)

	created, err := st.Create(ctx, NewTransaction(t, vaultA, owner, 1))
	assert.Nil(t, err)
	confirmed, err := st.Update(ctx, WithConfirmation(t, created, owner))
	assert.Nil(t, err)
	executed := confirmed.Copy()
	executed.ExecutedAt = CreatedAt.Add(time.Minute)
	executed, err = st.Update(ctx, executed)
	assert.Nil(t, err)

	want := []metatx.Event{
		{Kind: metatx.EventCreated, Transaction: created},
		{Kind: metatx.EventUpdated, Transaction: confirmed},
		{Kind: metatx.EventExecuted, Transaction: executed},
	}
	for _, ch := range []<-chan metatx.Event{all, pending} {
		for i, w := range want {
			ev := receive(t, ch)
			if ev.Kind != w.Kind {
				t.Fatalf("event %d: want %s, got %s", i, w.Kind, ev.Kind)
			}
			assert.Equal(t, w.Transaction, ev.Transaction)
		}
	}

	select {
	case ev := <-other:
		t.Fatalf("unexpected event for another vault: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	for range all {
		// Drain until the store closes the channel.
	}
}

func receive(t *testing.T, ch <-chan metatx.Event) metatx.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
	return metatx.Event{}
}
