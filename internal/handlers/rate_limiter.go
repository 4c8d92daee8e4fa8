package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// simpleRateLimiter is a fixed-window counter per key. Windows are lazily
// created on first use and stale ones are swept whenever a new window opens,
// so memory stays bounded by the number of active users.
type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]*rateBucket
}

type rateBucket struct {
	hits    int
	expires time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]*rateBucket),
	}
}

func (l *simpleRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.buckets[key]
	if bucket == nil || !now.Before(bucket.expires) {
		l.sweepLocked(now)
		l.buckets[key] = &rateBucket{hits: 1, expires: now.Add(l.window)}
		return true
	}
	if bucket.hits >= l.limit {
		return false
	}
	bucket.hits++
	return true
}

func (l *simpleRateLimiter) sweepLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if !now.Before(bucket.expires) {
			delete(l.buckets, key)
		}
	}
}
