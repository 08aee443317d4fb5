// Package events is Cardigan's event bus (spec §4.8): every SessionEvent
// is persisted durably and fanned out to live subscribers (the control
// API's SSE stream). Grounded on tarsy's pkg/events/{manager,listener,
// publisher}.go, which fan out over Postgres LISTEN/NOTIFY to reach other
// pods; Cardigan is explicitly single-process (spec §5/§9), so the NOTIFY
// transport is replaced by an in-process channel broadcaster and the
// persist step no longer needs to carry a NOTIFY payload in the same
// transaction.
package events

import (
	"sync"

	"github.com/codeready-toolchain/cardigan/pkg/models"
)

// subscriberBuffer bounds how many events a slow subscriber can fall
// behind before it is dropped, mirroring tarsy's manager.go choice that a
// disconnected/slow WebSocket client must never block event producers.
const subscriberBuffer = 64

// Broadcaster fans out published events to any number of live
// subscribers (e.g. SSE connections), best-effort: a subscriber that
// cannot keep up is dropped rather than allowed to block publishers
// (spec §4.8 "best-effort fan-out").
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan models.EventWithData]struct{}
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan models.EventWithData]struct{})}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function the caller must invoke when done (typically on SSE
// client disconnect).
func (b *Broadcaster) Subscribe() (<-chan models.EventWithData, func()) {
	ch := make(chan models.EventWithData, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Broadcast fans event out to every live subscriber without blocking: a
// subscriber whose channel is full is dropped (removed and its channel
// closed) rather than stalling the publisher (the event is still durably
// recorded by the store — only the live push is lost).
func (b *Broadcaster) Broadcast(event models.EventWithData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// SubscriberCount reports the current number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
