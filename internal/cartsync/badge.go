package cartsync

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// CountSource supplies the authoritative cart count. An unauthenticated
// source reports zero rather than an error.
type CountSource interface {
	CartCount(ctx context.Context) (int, error)
}

// Badge maintains the displayed cart item count. A single goroutine owns the
// count: optimistic signals adjust it immediately, refresh signals overwrite
// it with the server's answer.
type Badge struct {
	bus    *Bus
	source CountSource
	logger *zap.Logger

	mu    sync.RWMutex
	count int
}

// BadgeOption customises Badge construction.
type BadgeOption func(*Badge)

// WithBadgeLogger attaches a logger for refresh failures.
func WithBadgeLogger(logger *zap.Logger) BadgeOption {
	return func(b *Badge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBadge constructs a badge fed by the bus and reconciled against source.
func NewBadge(bus *Bus, source CountSource, opts ...BadgeOption) *Badge {
	b := &Badge{
		bus:    bus,
		source: source,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Count returns the currently displayed value.
func (b *Badge) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Run subscribes to the bus, seeds the count from the server, and applies
// signals in arrival order until ctx is cancelled. At most one signal is
// processed at a time; nothing else mutates the count.
func (b *Badge) Run(ctx context.Context) {
	sub := b.bus.Subscribe()
	defer sub.Close()

	b.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.C():
			if !ok {
				return
			}
			b.apply(ctx, sig)
		}
	}
}

func (b *Badge) apply(ctx context.Context, sig Signal) {
	switch s := sig.(type) {
	case Increment:
		b.adjust(s.Magnitude)
	case Decrement:
		b.adjust(-s.Magnitude)
	default:
		// Refresh, and anything unrecognized, re-reads server truth.
		b.refresh(ctx)
	}
}

func (b *Badge) adjust(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count += delta
	if b.count < 0 {
		b.count = 0
	}
}

func (b *Badge) refresh(ctx context.Context) {
	count, err := b.source.CartCount(ctx)
	if err != nil {
		// Keep the current guess; the next refresh will reconcile.
		b.logger.Warn("cart count refresh failed", zap.Error(err))
		return
	}
	if count < 0 {
		count = 0
	}
	b.mu.Lock()
	b.count = count
	b.mu.Unlock()
}
