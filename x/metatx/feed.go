package metatx

import (
	"context"
	"sync"
)

// DefaultFeedBuffer is the number of events a subscriber may lag behind
// before it is dropped.
const DefaultFeedBuffer = 64

// Feed distributes events to in-process subscribers.
type Feed struct {
	buffer int

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

type subscription struct {
	filter Filter
	ch     chan Event
	// done is closed together with ch and releases the context watcher.
	done chan struct{}
}

// NewFeed returns a feed with given subscriber buffer size. Non positive
// values select DefaultFeedBuffer.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Feed{
		buffer: buffer,
		subs:   make(map[*subscription]struct{}),
	}
}

// Subscribe returns a channel receiving all published events matching the
// filter. The channel is closed when ctx is done or when the subscriber does
// not keep up with published events.
func (f *Feed) Subscribe(ctx context.Context, filter Filter) <-chan Event {
	sub := &subscription{
		filter: filter,
		ch:     make(chan Event, f.buffer),
		done:   make(chan struct{}),
	}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			f.drop(sub)
		case <-sub.done:
		}
	}()
	return sub.ch
}

// Publish sends the event to every matching subscriber without blocking.
func (f *Feed) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if !sub.filter.MatchEvent(ev) {
			continue
		}
		select {
		case sub.ch <- Event{Kind: ev.Kind, Transaction: ev.Transaction.Copy()}:
		default:
			f.remove(sub)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) drop(sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		f.remove(sub)
	}
}

// remove must be called with the lock held.
func (f *Feed) remove(sub *subscription) {
	delete(f.subs, sub)
	close(sub.ch)
	close(sub.done)
}
