package cartsync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// ErrLoginRequired reports that a mutation was attempted without a session.
// Use errors.As with *RedirectError to recover the login destination.
var ErrLoginRequired = errors.New("cartsync: login required")

var errInvalidQuantity = errors.New("cartsync: quantity must be at least 1")

// ErrItemNotFound reports that the item is absent from the local list.
var ErrItemNotFound = errors.New("cartsync: item not in local cart")

// RedirectError carries the login destination, including the return path.
type RedirectError struct {
	Location string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("login required, redirect to %s", e.Location)
}

func (e *RedirectError) Unwrap() error { return ErrLoginRequired }

// Item is a row of the local cart list the actions keep for optimistic
// updates and rollback.
type Item struct {
	ID        string
	ProductID int64
	Quantity  int
}

// Backend is the cart API surface the actions mutate through.
type Backend interface {
	SignedIn() bool
	FetchCart(ctx context.Context) ([]Item, error)
	AddToCart(ctx context.Context, productID int64, quantity int) error
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error
	DeleteItem(ctx context.Context, itemID string) error
}

// Actions implements the cart mutations with the optimistic signal protocol:
// emit a guess, issue the request, then either confirm with a refresh or roll
// back with the inverse signal.
type Actions struct {
	api       Backend
	bus       *Bus
	loginPath string

	mu    sync.Mutex
	items []Item
}

// ActionsOption customises Actions construction.
type ActionsOption func(*Actions)

// WithLoginPath overrides the login redirect destination (default /login).
func WithLoginPath(path string) ActionsOption {
	return func(a *Actions) {
		if path != "" {
			a.loginPath = path
		}
	}
}

// NewActions constructs the mutation actions over the given backend and bus.
func NewActions(api Backend, bus *Bus, opts ...ActionsOption) *Actions {
	a := &Actions{
		api:       api,
		bus:       bus,
		loginPath: "/login",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Load replaces the local item list with the server's cart contents.
func (a *Actions) Load(ctx context.Context) error {
	items, err := a.api.FetchCart(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.items = items
	a.mu.Unlock()
	return nil
}

// Items returns a copy of the local item list.
func (a *Actions) Items() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Item, len(a.items))
	copy(out, a.items)
	return out
}

// Add puts one unit of the product in the cart. Unauthenticated callers get
// a login redirect and no mutation or signal happens.
func (a *Actions) Add(ctx context.Context, productID int64, returnTo string) error {
	if !a.api.SignedIn() {
		return &RedirectError{Location: a.loginURL(returnTo)}
	}

	a.bus.Publish(Increment{Magnitude: 1})
	if err := a.api.AddToCart(ctx, productID, 1); err != nil {
		a.bus.Publish(Decrement{Magnitude: 1})
		a.bus.Publish(Refresh{})
		return err
	}
	a.bus.Publish(Refresh{})
	return nil
}

// UpdateQuantity sets the item's quantity. The badge moves by the local
// delta immediately and is reconciled by a trailing refresh on every
// outcome.
func (a *Actions) UpdateQuantity(ctx context.Context, itemID string, newQuantity int) error {
	if newQuantity < 1 {
		return errInvalidQuantity
	}

	a.mu.Lock()
	idx := a.indexLocked(itemID)
	if idx < 0 {
		a.mu.Unlock()
		return ErrItemNotFound
	}
	previous := a.items[idx].Quantity
	snapshot := make([]Item, len(a.items))
	copy(snapshot, a.items)
	a.items[idx].Quantity = newQuantity
	a.mu.Unlock()

	delta := newQuantity - previous
	switch {
	case delta > 0:
		a.bus.Publish(Increment{Magnitude: delta})
	case delta < 0:
		a.bus.Publish(Decrement{Magnitude: -delta})
	}

	err := a.api.UpdateItemQuantity(ctx, itemID, newQuantity)
	if err != nil {
		a.mu.Lock()
		a.items = snapshot
		a.mu.Unlock()
		switch {
		case delta > 0:
			a.bus.Publish(Decrement{Magnitude: delta})
		case delta < 0:
			a.bus.Publish(Increment{Magnitude: -delta})
		}
	}
	a.bus.Publish(Refresh{})
	return err
}

// Delete removes the item. The badge drops by the item's quantity
// immediately; on failure the list and badge are restored by the inverse
// signal alone, with no trailing refresh, so the badge is only as accurate
// as the compensating increment until the next operation refreshes it.
func (a *Actions) Delete(ctx context.Context, itemID string) error {
	a.mu.Lock()
	idx := a.indexLocked(itemID)
	if idx < 0 {
		a.mu.Unlock()
		return ErrItemNotFound
	}
	removed := a.items[idx]
	snapshot := make([]Item, len(a.items))
	copy(snapshot, a.items)
	a.items = append(a.items[:idx:idx], a.items[idx+1:]...)
	a.mu.Unlock()

	a.bus.Publish(Decrement{Magnitude: removed.Quantity})

	if err := a.api.DeleteItem(ctx, itemID); err != nil {
		a.mu.Lock()
		a.items = snapshot
		a.mu.Unlock()
		a.bus.Publish(Increment{Magnitude: removed.Quantity})
		return err
	}
	a.bus.Publish(Refresh{})
	return nil
}

func (a *Actions) indexLocked(itemID string) int {
	for i, item := range a.items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func (a *Actions) loginURL(returnTo string) string {
	if returnTo == "" {
		return a.loginPath
	}
	return a.loginPath + "?returnUrl=" + url.QueryEscape(returnTo)
}
