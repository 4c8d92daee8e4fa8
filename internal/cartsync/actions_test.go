package cartsync

import (
	"context"
	"errors"
	"testing"
)

type stubBackend struct {
	signedIn bool
	fetchFn  func(ctx context.Context) ([]Item, error)
	addFn    func(ctx context.Context, productID int64, quantity int) error
	updateFn func(ctx context.Context, itemID string, quantity int) error
	deleteFn func(ctx context.Context, itemID string) error
}

func (s *stubBackend) SignedIn() bool { return s.signedIn }

func (s *stubBackend) FetchCart(ctx context.Context) ([]Item, error) {
	if s.fetchFn == nil {
		return nil, nil
	}
	return s.fetchFn(ctx)
}

func (s *stubBackend) AddToCart(ctx context.Context, productID int64, quantity int) error {
	if s.addFn == nil {
		return nil
	}
	return s.addFn(ctx, productID, quantity)
}

func (s *stubBackend) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, itemID, quantity)
}

func (s *stubBackend) DeleteItem(ctx context.Context, itemID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, itemID)
}

var _ Backend = (*stubBackend)(nil)

func newActionsHarness(backend *stubBackend) (*Actions, *Subscription) {
	bus := NewBus()
	sub := bus.Subscribe()
	return NewActions(backend, bus), sub
}

func loadItems(t *testing.T, actions *Actions, backend *stubBackend, items []Item) {
	t.Helper()
	backend.fetchFn = func(context.Context) ([]Item, error) {
		return items, nil
	}
	if err := actions.Load(context.Background()); err != nil {
		t.Fatalf("load cart: %v", err)
	}
}

func TestAddEmitsOptimisticThenRefresh(t *testing.T) {
	var gotProductID int64
	var gotQuantity int
	backend := &stubBackend{
		signedIn: true,
		addFn: func(ctx context.Context, productID int64, quantity int) error {
			gotProductID = productID
			gotQuantity = quantity
			return nil
		},
	}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()

	if err := actions.Add(context.Background(), 3, "/products/3"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if gotProductID != 3 || gotQuantity != 1 {
		t.Fatalf("expected add(3, 1), got add(%d, %d)", gotProductID, gotQuantity)
	}

	got := drainSignals(sub)
	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %d: %#v", len(got), got)
	}
	if inc, ok := got[0].(Increment); !ok || inc.Magnitude != 1 {
		t.Fatalf("expected Increment{1} first, got %#v", got[0])
	}
	if _, ok := got[1].(Refresh); !ok {
		t.Fatalf("expected Refresh second, got %#v", got[1])
	}
}

func TestAddFailureRollsBackThenRefreshes(t *testing.T) {
	backend := &stubBackend{
		signedIn: true,
		addFn: func(context.Context, int64, int) error {
			return errors.New("boom")
		},
	}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()

	if err := actions.Add(context.Background(), 3, ""); err == nil {
		t.Fatal("expected error")
	}

	got := drainSignals(sub)
	if len(got) != 3 {
		t.Fatalf("expected 3 signals, got %d: %#v", len(got), got)
	}
	if inc, ok := got[0].(Increment); !ok || inc.Magnitude != 1 {
		t.Fatalf("expected Increment{1} first, got %#v", got[0])
	}
	if dec, ok := got[1].(Decrement); !ok || dec.Magnitude != 1 {
		t.Fatalf("expected compensating Decrement{1}, got %#v", got[1])
	}
	if _, ok := got[2].(Refresh); !ok {
		t.Fatalf("expected trailing Refresh, got %#v", got[2])
	}
}

func TestAddRequiresLogin(t *testing.T) {
	called := false
	backend := &stubBackend{
		signedIn: false,
		addFn: func(context.Context, int64, int) error {
			called = true
			return nil
		},
	}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()

	err := actions.Add(context.Background(), 3, "/products/3")
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}

	var redirect *RedirectError
	if !errors.As(err, &redirect) {
		t.Fatalf("expected RedirectError, got %T", err)
	}
	if redirect.Location != "/login?returnUrl=%2Fproducts%2F3" {
		t.Fatalf("unexpected redirect %q", redirect.Location)
	}
	if called {
		t.Fatal("backend must not be invoked without a session")
	}
	if got := drainSignals(sub); len(got) != 0 {
		t.Fatalf("expected no signals, got %#v", got)
	}
}

func TestUpdateQuantityEmitsDelta(t *testing.T) {
	backend := &stubBackend{signedIn: true}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()
	loadItems(t, actions, backend, []Item{{ID: "item-1", ProductID: 3, Quantity: 2}})
	drainSignals(sub)

	if err := actions.UpdateQuantity(context.Background(), "item-1", 5); err != nil {
		t.Fatalf("update: %v", err)
	}

	got := drainSignals(sub)
	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %d: %#v", len(got), got)
	}
	if inc, ok := got[0].(Increment); !ok || inc.Magnitude != 3 {
		t.Fatalf("expected Increment{3}, got %#v", got[0])
	}
	if _, ok := got[1].(Refresh); !ok {
		t.Fatalf("expected Refresh second, got %#v", got[1])
	}

	items := actions.Items()
	if len(items) != 1 || items[0].Quantity != 5 {
		t.Fatalf("expected local quantity 5, got %+v", items)
	}
}

func TestUpdateQuantityDecreaseEmitsDecrement(t *testing.T) {
	backend := &stubBackend{signedIn: true}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()
	loadItems(t, actions, backend, []Item{{ID: "item-1", ProductID: 3, Quantity: 4}})

	if err := actions.UpdateQuantity(context.Background(), "item-1", 1); err != nil {
		t.Fatalf("update: %v", err)
	}

	got := drainSignals(sub)
	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %d: %#v", len(got), got)
	}
	if dec, ok := got[0].(Decrement); !ok || dec.Magnitude != 3 {
		t.Fatalf("expected Decrement{3}, got %#v", got[0])
	}
}

func TestUpdateQuantityUnchangedEmitsOnlyRefresh(t *testing.T) {
	backend := &stubBackend{signedIn: true}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()
	loadItems(t, actions, backend, []Item{{ID: "item-1", ProductID: 3, Quantity: 2}})

	if err := actions.UpdateQuantity(context.Background(), "item-1", 2); err != nil {
		t.Fatalf("update: %v", err)
	}

	got := drainSignals(sub)
	if len(got) != 1 {
		t.Fatalf("expected only Refresh, got %#v", got)
	}
	if _, ok := got[0].(Refresh); !ok {
		t.Fatalf("expected Refresh, got %#v", got[0])
	}
}

func TestUpdateQuantityFailureRestoresSnapshot(t *testing.T) {
	backend := &stubBackend{
		signedIn: true,
		updateFn: func(context.Context, string, int) error {
			return errors.New("boom")
		},
	}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()
	loadItems(t, actions, backend, []Item{{ID: "item-1", ProductID: 3, Quantity: 2}})

	if err := actions.UpdateQuantity(context.Background(), "item-1", 5); err == nil {
		t.Fatal("expected error")
	}

	got := drainSignals(sub)
	if len(got) != 3 {
		t.Fatalf("expected 3 signals, got %d: %#v", len(got), got)
	}
	if inc, ok := got[0].(Increment); !ok || inc.Magnitude != 3 {
		t.Fatalf("expected Increment{3} first, got %#v", got[0])
	}
	if dec, ok := got[1].(Decrement); !ok || dec.Magnitude != 3 {
		t.Fatalf("expected compensating Decrement{3}, got %#v", got[1])
	}
	if _, ok := got[2].(Refresh); !ok {
		t.Fatalf("expected trailing Refresh, got %#v", got[2])
	}

	items := actions.Items()
	if len(items) != 1 || items[0].Quantity != 2 {
		t.Fatalf("expected snapshot restored, got %+v", items)
	}
}

func TestUpdateQuantityRejectsBelowOne(t *testing.T) {
	backend := &stubBackend{signedIn: true}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()
	loadItems(t, actions, backend, []Item{{ID: "item-1", ProductID: 3, Quantity: 2}})

	if err := actions.UpdateQuantity(context.Background(), "item-1", 0); err == nil {
		t.Fatal("expected error")
	}
	if got := drainSignals(sub); len(got) != 0 {
		t.Fatalf("expected no signals, got %#v", got)
	}
}

func TestDeleteEmitsQuantityDecrement(t *testing.T) {
	backend := &stubBackend{signedIn: true}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()
	loadItems(t, actions, backend, []Item{
		{ID: "item-1", ProductID: 3, Quantity: 2},
		{ID: "item-2", ProductID: 9, Quantity: 1},
	})

	if err := actions.Delete(context.Background(), "item-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got := drainSignals(sub)
	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %d: %#v", len(got), got)
	}
	if dec, ok := got[0].(Decrement); !ok || dec.Magnitude != 2 {
		t.Fatalf("expected Decrement{2}, got %#v", got[0])
	}
	if _, ok := got[1].(Refresh); !ok {
		t.Fatalf("expected Refresh second, got %#v", got[1])
	}

	items := actions.Items()
	if len(items) != 1 || items[0].ID != "item-2" {
		t.Fatalf("expected item removed, got %+v", items)
	}
}

func TestDeleteFailureRestoresWithoutRefresh(t *testing.T) {
	backend := &stubBackend{
		signedIn: true,
		deleteFn: func(context.Context, string) error {
			return errors.New("boom")
		},
	}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()
	loadItems(t, actions, backend, []Item{{ID: "item-1", ProductID: 3, Quantity: 2}})

	if err := actions.Delete(context.Background(), "item-1"); err == nil {
		t.Fatal("expected error")
	}

	got := drainSignals(sub)
	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %d: %#v", len(got), got)
	}
	if dec, ok := got[0].(Decrement); !ok || dec.Magnitude != 2 {
		t.Fatalf("expected Decrement{2} first, got %#v", got[0])
	}
	if inc, ok := got[1].(Increment); !ok || inc.Magnitude != 2 {
		t.Fatalf("expected compensating Increment{2} as the last signal, got %#v", got[1])
	}

	items := actions.Items()
	if len(items) != 1 || items[0].ID != "item-1" {
		t.Fatalf("expected snapshot restored, got %+v", items)
	}
}

func TestDeleteUnknownItem(t *testing.T) {
	backend := &stubBackend{signedIn: true}
	actions, sub := newActionsHarness(backend)
	defer sub.Close()

	if err := actions.Delete(context.Background(), "missing"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if got := drainSignals(sub); len(got) != 0 {
		t.Fatalf("expected no signals, got %#v", got)
	}
}
