// Package idempotency deduplicates retried cart mutations keyed by the
// Idempotency-Key request header.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long completed records are retained for replay.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a record.
type Status string

const (
	// StatusPending marks a key reserved by an in-flight request.
	StatusPending Status = "pending"
	// StatusCompleted marks a key whose response is stored and replayable.
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of attempting to reserve a key.
type ReservationState int

const (
	// ReservationStateNew: no prior reservation, the caller proceeds.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted: a stored response exists and is replayed.
	ReservationStateCompleted
	// ReservationStatePending: another request holds the key right now.
	ReservationStatePending
)

// Reservation is the result of reserving a key, with the stored record when
// one exists.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted state for one idempotency key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

func (r Record) expiredAt(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is the HTTP response captured for future replays.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and captured responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused with a different
// request fingerprint.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// recordID derives the storage document id. Keys are hashed so user-supplied
// values never become raw Firestore document names.
func recordID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// hopByHopHeaders are connection-scoped and must not be replayed.
var hopByHopHeaders = map[string]struct{}{
	"content-length":      {},
	"date":                {},
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func sanitizeHeaders(header http.Header) map[string][]string {
	var filtered map[string][]string
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, omit := hopByHopHeaders[strings.ToLower(canonical)]; omit {
			continue
		}
		if filtered == nil {
			filtered = make(map[string][]string, len(header))
		}
		filtered[canonical] = append([]string(nil), values...)
	}
	return filtered
}

func headersFromRecord(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[name] = append([]string(nil), vals...)
	}
	return header
}
