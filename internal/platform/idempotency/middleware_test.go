package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopfront/api/internal/platform/auth"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func cartRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/cart", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func jsonHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls != nil {
			*calls++
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestMiddleware_MissingHeaderPassesThrough(t *testing.T) {
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))

	var calls int
	rr := httptest.NewRecorder()
	middleware(jsonHandler(&calls, http.StatusOK, `{}`)).ServeHTTP(rr, cartRequest("", `{"productId":3,"quantity":1}`))

	if calls != 1 {
		t.Fatal("handler should run when no idempotency key is supplied")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	var calls int
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))
	handler := middleware(jsonHandler(&calls, http.StatusCreated, `{"id":"row-1","quantity":1}`))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, cartRequest("add-7", `{"productId":7,"quantity":1}`))
	if calls != 1 {
		t.Fatalf("expected handler to be called once, got %d", calls)
	}
	if rr1.Code != http.StatusCreated {
		t.Fatalf("unexpected first response status: %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, cartRequest("add-7", `{"productId":7,"quantity":1}`))

	if calls != 1 {
		t.Fatalf("expected handler not to be called again, got %d calls", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed status 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatal("expected replay header on second response")
	}
	if got := rr2.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type json, got %s", got)
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("replayed body %q differs from original %q", rr2.Body.String(), rr1.Body.String())
	}
}

func TestMiddleware_KeysScopedPerRequester(t *testing.T) {
	var calls int
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))
	handler := middleware(jsonHandler(&calls, http.StatusCreated, `{"ok":true}`))

	for _, uid := range []string{"shopper-a", "shopper-b"} {
		req := cartRequest("shared-key", `{"productId":9,"quantity":2}`)
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected fresh execution for %s, got %d", uid, rr.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected one execution per shopper, got %d", calls)
	}
}

func TestMiddleware_ConflictingFingerprintReturnsConflict(t *testing.T) {
	middleware := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))
	handler := middleware(jsonHandler(nil, http.StatusOK, `{}`))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, cartRequest("same-key", `{"productId":7,"quantity":1}`))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request success, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, cartRequest("same-key", `{"productId":8,"quantity":1}`))

	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected conflict status, got %d", rr2.Code)
	}
	assertErrorCode(t, rr2.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_PendingReservationReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))
	handler := middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be invoked while a reservation is pending")
	}))

	req := cartRequest("pending-key", `{"productId":7,"quantity":1}`)
	body, err := readAndReplayBody(req)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	requester := extractRequester(req.Context())
	fingerprint := requestFingerprint(req, body, requester)
	if _, err := store.Reserve(req.Context(), scopedKey("pending-key", requester), fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("failed to seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending reservation, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddleware_SaveFailureRollsBackReservation(t *testing.T) {
	store := &stubStore{failSave: true}
	middleware := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	rr := httptest.NewRecorder()
	middleware(jsonHandler(nil, http.StatusCreated, `{"ok":true}`)).ServeHTTP(rr, cartRequest("fail-key", `{"productId":7}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 response, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_store_error")
	if !store.released {
		t.Fatal("expected reservation to be released on failure")
	}
}

type stubStore struct {
	failSave bool
	released bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew, Record: Record{}}, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Code != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Code)
	}
}
