package handlers

import (
	"testing"
	"time"
)

func TestSimpleRateLimiterWindowReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := newSimpleRateLimiter(2, time.Minute, clock)

	if !limiter.Allow("user-1") || !limiter.Allow("user-1") {
		t.Fatal("expected first two requests to pass")
	}
	if limiter.Allow("user-1") {
		t.Fatal("expected third request within window to be rejected")
	}
	if !limiter.Allow("user-2") {
		t.Fatal("expected independent key to pass")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("user-1") {
		t.Fatal("expected request after window reset to pass")
	}
}

func TestSimpleRateLimiterDisabled(t *testing.T) {
	if limiter := newSimpleRateLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatal("expected nil limiter for zero limit")
	}
}

func TestSimpleRateLimiterBlankKeyBucketsAnonymous(t *testing.T) {
	limiter := newSimpleRateLimiter(1, time.Minute, nil)
	if !limiter.Allow("") {
		t.Fatal("expected first anonymous request to pass")
	}
	if limiter.Allow("  ") {
		t.Fatal("expected blank keys to share the anonymous bucket")
	}
}
