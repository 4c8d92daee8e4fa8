package cartsync

import "sync"

const defaultSubscriptionBuffer = 16

// Bus fans signals out to subscribers with per-subscriber FIFO delivery.
// Subscriptions have an explicit lifecycle: Subscribe on mount, Close on
// unmount.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBus constructs an empty signal bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. The caller must Close the
// subscription when done.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan Signal, defaultSubscriptionBuffer),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers the signal to every live subscription. Publish never
// blocks: a subscriber whose buffer is full latches a pending refresh
// instead, so a slow consumer converges on the authoritative count rather
// than missing updates.
func (b *Bus) Publish(sig Signal) {
	if sig == nil {
		return
	}
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(sig)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscription is a single subscriber's FIFO signal stream.
type Subscription struct {
	bus *Bus
	ch  chan Signal

	mu             sync.Mutex
	closed         bool
	pendingRefresh bool
}

// C returns the signal stream. The channel is closed by Close.
func (s *Subscription) C() <-chan Signal {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.unsubscribe(s)
	close(s.ch)
}

func (s *Subscription) deliver(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.pendingRefresh {
		select {
		case s.ch <- Refresh{}:
			s.pendingRefresh = false
		default:
			// Buffer still full. The latched refresh subsumes sig
			// because refresh always overrides prior guesses.
			return
		}
	}

	select {
	case s.ch <- sig:
	default:
		s.pendingRefresh = true
	}
}
