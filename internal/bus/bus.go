// Package bus implements a bounded, multi-consumer broadcast channel with
// per-subscriber lag detection. A single publisher writes into a fixed-size
// ring; each subscriber holds its own cursor into that ring, so a slow
// subscriber loses old messages (and learns how many) instead of ever
// stalling the publisher or its peers.
package bus

import (
	"context"
	"sync"

	"github.com/arung-agamani/wavecast/internal/wire"
)

// Bus is a bounded multi-consumer broadcast channel. The zero value is not
// usable; construct with New. Publish never blocks: a subscriber that falls
// more than Capacity messages behind the head loses the oldest unread
// messages, and its next Recv reports how many were skipped.
type Bus[T any] struct {
	mu       sync.RWMutex
	capacity uint64
	ring     []T
	seq      uint64
	nextID   uint64
	subs     map[uint64]*Subscription[T]
}

// New creates a Bus with the given fixed capacity. Capacity is set once at
// construction and never changes.
func New[T any](capacity uint64) *Bus[T] {
	if capacity == 0 {
		capacity = 1
	}
	return &Bus[T]{
		capacity: capacity,
		ring:     make([]T, capacity),
		subs:     make(map[uint64]*Subscription[T]),
	}
}

// Publish appends msg to the bus and wakes every current subscriber. It
// never blocks on a slow subscriber — subscribers that cannot keep up simply
// lag.
func (b *Bus[T]) Publish(msg T) {
	b.mu.Lock()
	b.ring[b.seq%b.capacity] = msg
	b.seq++
	subs := make([]*Subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a new Subscription positioned at the current head —
// it will only observe messages published after this call.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	s := &Subscription[T]{
		bus:    b,
		id:     id,
		cursor: b.seq,
		notify: make(chan struct{}, 1),
	}
	b.subs[id] = s
	return s
}

// Unsubscribe removes a Subscription. The Bus retains no state for it past
// this call — subscribers are weak relative to the Bus.
func (b *Bus[T]) Unsubscribe(s *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s.id)
}

// SubscriberCount returns the number of currently attached subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// HasSubscribers lets an upstream publisher skip work when nobody is
// listening.
func (b *Bus[T]) HasSubscribers() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) > 0
}

// Subscription is one subscriber's receive cursor into a Bus.
type Subscription[T any] struct {
	bus    *Bus[T]
	id     uint64
	cursor uint64
	notify chan struct{}
}

// Recv blocks until a message is available, the subscriber has lagged, or
// ctx is cancelled. A lagged subscriber's cursor is fast-forwarded to the
// oldest message still retained, and the returned error is *wire.LagError
// reporting how many messages were skipped; the publisher is unaffected.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	for {
		s.bus.mu.RLock()
		seq := s.bus.seq
		capacity := s.bus.capacity

		if seq-s.cursor > capacity {
			s.bus.mu.RUnlock()
			skipped := seq - s.cursor - capacity
			s.cursor = seq - capacity
			var zero T
			return zero, &wire.LagError{Skipped: skipped}
		}

		if s.cursor < seq {
			// Read under the same lock as the lag check so a concurrent
			// Publish cannot overwrite this slot between check and read.
			v := s.bus.ring[s.cursor%capacity]
			s.bus.mu.RUnlock()
			s.cursor++
			return v, nil
		}
		s.bus.mu.RUnlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-s.notify:
		}
	}
}

// Len reports how many unread messages are currently queued for this
// subscriber — the backlog depth used by lag-eviction policy.
func (s *Subscription[T]) Len() int {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	return int(s.bus.seq - s.cursor)
}
