// Package hub is the process-wide fan-out broker. It retains nothing: a
// subscriber that connects after a broadcast never sees it and must fetch
// current state before subscribing.
package hub

import (
	"sync"

	"go-attentionmap/metrics"
	"go-attentionmap/types"
)

// DefaultBufferSize bounds a subscription's pending notifications.
const DefaultBufferSize = 64

// Subscription ties one live connection to a bounded delivery buffer. It is
// exclusively owned by its session; only that session may receive from C()
// or call TakeMissed.
type Subscription struct {
	id uint64
	ch chan types.ChangeNotification

	// mu serializes enqueues so drop-oldest stays well-defined under
	// concurrent broadcasters.
	mu     sync.Mutex
	missed bool
	closed bool
}

// C is the delivery channel, drained by the owning session in broadcast
// order.
func (s *Subscription) C() <-chan types.ChangeNotification {
	return s.ch
}

// TakeMissed reports and clears the missed-updates flag. A true return means
// notifications were dropped and the session must resync from a fresh
// snapshot instead of trusting the incremental stream.
func (s *Subscription) TakeMissed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	missed := s.missed
	s.missed = false
	return missed
}

// enqueue never blocks: when the buffer is full it drops this subscription's
// oldest pending notification and marks the subscription as having missed
// updates.
func (s *Subscription) enqueue(n types.ChangeNotification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- n:
			return
		default:
		}
		select {
		case <-s.ch:
			s.missed = true
			metrics.IncDropped()
		default:
			// Consumer drained between the two selects; try the send again.
		}
	}
}

// Hub holds the subscriber registry. The registry is the only shared state;
// delivery buffers are per-subscription, so one slow consumer never affects
// another and Broadcast never blocks.
type Hub struct {
	bufferSize int

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

// New creates a hub with the given per-subscription buffer size; size <= 0
// falls back to DefaultBufferSize.
func New(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		bufferSize: bufferSize,
		subs:       make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new delivery buffer. The caller owns the returned
// subscription and must Unsubscribe it when the session ends.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		id: h.nextID,
		ch: make(chan types.ChangeNotification, h.bufferSize),
	}
	h.subs[sub.id] = sub
	metrics.IncSubscriptions()
	return sub
}

// Unsubscribe removes the subscription; nothing buffers for it afterwards.
// Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	_, present := h.subs[sub.id]
	delete(h.subs, sub.id)
	h.mu.Unlock()

	if present {
		metrics.DecSubscriptions()
	}
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
}

// Len returns the number of registered subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast enqueues the notification onto every current subscription's
// buffer. Per-subscription order matches call order; there is no ordering
// across subscriptions.
func (h *Hub) Broadcast(n types.ChangeNotification) {
	h.mu.RLock()
	snapshot := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	// Enqueue outside the registry lock so a subscription's drop-oldest
	// work never delays Subscribe/Unsubscribe.
	for _, sub := range snapshot {
		sub.enqueue(n)
	}
	metrics.IncBroadcasts()
}

// Publish hands a committed mutation to the hub. Callers invoke it exactly
// once per commit, strictly after the commit, so no subscriber ever observes
// a notification for data that is not yet durably readable.
func (h *Hub) Publish(n types.ChangeNotification) {
	h.Broadcast(n)
}
