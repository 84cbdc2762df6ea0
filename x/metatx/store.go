package metatx

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/msvault/errors"
)

// Store persists transaction snapshots.
type Store interface {
	// Create stores a new transaction. The returned snapshot has the id and
	// the first version assigned. Given snapshot must not carry a version.
	Create(ctx context.Context, tx *ProposedTransaction) (*ProposedTransaction, error)

	// Get returns the latest snapshot or ErrNotFound.
	Get(ctx context.Context, id uint64) (*ProposedTransaction, error)

	// Update stores tx as the next snapshot. It succeeds only if tx carries
	// the version of the latest stored snapshot, otherwise ErrConflict is
	// returned. The returned snapshot carries the new version.
	Update(ctx context.Context, tx *ProposedTransaction) (*ProposedTransaction, error)

	// List returns the latest snapshots of all transactions matching the
	// filter, ordered by id.
	List(ctx context.Context, f Filter) ([]*ProposedTransaction, error)

	// Subscribe streams changes matching the filter until the context is
	// cancelled, then the channel is closed. The channel is closed early if
	// the consumer falls behind.
	Subscribe(ctx context.Context, f Filter) (<-chan Event, error)
}

// State selects transactions by their lifecycle state.
type State string

const (
	StateAny      State = ""
	StatePending  State = "pending"
	StateExecuted State = "executed"
)

// Validate returns an error for unknown states.
func (s State) Validate() error {
	switch s {
	case StateAny, StatePending, StateExecuted:
		return nil
	}
	return errors.Wrapf(errors.ErrInput, "unknown state %q", string(s))
}

// Filter narrows down listed and streamed transactions. The zero value
// matches everything.
type Filter struct {
	// Vault matches transactions of a single vault, if set.
	Vault common.Address
	State State
}

// Match returns true if tx passes the filter.
func (f Filter) Match(tx *ProposedTransaction) bool {
	if f.Vault != (common.Address{}) && f.Vault != tx.Vault {
		return false
	}
	switch f.State {
	case StatePending:
		return !tx.Executed()
	case StateExecuted:
		return tx.Executed()
	}
	return true
}

// MatchEvent works like Match. A pending filter also accepts the execution
// event, so that consumers of pending transactions learn when one leaves
// their view.
func (f Filter) MatchEvent(ev Event) bool {
	if f.State == StatePending && ev.Kind == EventExecuted {
		return Filter{Vault: f.Vault}.Match(ev.Transaction)
	}
	return f.Match(ev.Transaction)
}

// EventKind tells what happened to a transaction.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventUpdated  EventKind = "updated"
	EventExecuted EventKind = "executed"
)

// Event is a single stored change.
type Event struct {
	Kind        EventKind            `json:"kind"`
	Transaction *ProposedTransaction `json:"transaction"`
}

// updateEvent returns the event describing the change from prev to next.
func updateEvent(prev, next *ProposedTransaction) Event {
	if !prev.Executed() && next.Executed() {
		return Event{Kind: EventExecuted, Transaction: next}
	}
	return Event{Kind: EventUpdated, Transaction: next}
}
