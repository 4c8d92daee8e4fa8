package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopfront/api/internal/platform/auth"
	"github.com/shopfront/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

type clockFunc func() time.Time

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	methods    map[string]struct{}
	clock      clockFunc
	logger     *zap.Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header name used to extract the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		name = strings.TrimSpace(name)
		if name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods restricts the HTTP methods guarded by the middleware.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if len(methods) == 0 {
			return
		}
		cfg.methods = make(map[string]struct{}, len(methods))
		for _, method := range methods {
			method = strings.ToUpper(strings.TrimSpace(method))
			if method == "" {
				continue
			}
			cfg.methods[method] = struct{}{}
		}
	}
}

// WithLogger injects a logger for store and flush failures.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock clockFunc) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

func mutationMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodPost:   {},
		http.MethodPut:    {},
		http.MethodPatch:  {},
		http.MethodDelete: {},
	}
}

// Middleware deduplicates cart mutations that carry an Idempotency-Key.
// Deduplication is opt-in: requests without a key run normally and rely on
// the badge's refresh reconciliation instead. Replayed responses are marked
// with X-Idempotent-Replay.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		methods:    mutationMethods(),
		clock:      time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}
	if len(cfg.methods) == 0 {
		cfg.methods = mutationMethods()
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := cfg.methods[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			cfg.serve(store, next, w, r, key)
		})
	}
}

func (cfg *middlewareConfig) serve(store Store, next http.Handler, w http.ResponseWriter, r *http.Request, key string) {
	body, err := readAndReplayBody(r)
	if err != nil {
		writeFailure(r.Context(), w, "idempotency_read_body_failed", "unable to read request body", http.StatusInternalServerError)
		return
	}

	requester := extractRequester(r.Context())
	fingerprint := requestFingerprint(r, body, requester)
	scoped := scopedKey(key, requester)
	now := cfg.clock().UTC()

	reservation, err := store.Reserve(r.Context(), scoped, fingerprint, now, cfg.ttl)
	if err != nil {
		if errors.Is(err, ErrFingerprintMismatch) {
			writeFailure(r.Context(), w, "idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict)
			return
		}
		cfg.logger.Error("idempotency reservation failed", zap.Error(err))
		writeFailure(r.Context(), w, "idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError)
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		writeStoredResponse(w, reservation.Record)
		return
	case ReservationStatePending:
		writeFailure(r.Context(), w, "idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict)
		return
	case ReservationStateNew:
	default:
		writeFailure(r.Context(), w, "idempotency_unknown_state", "unexpected idempotency state", http.StatusInternalServerError)
		return
	}

	capture := newCaptureWriter(w)
	next.ServeHTTP(capture, r)

	response := Response{
		Status:  capture.Status(),
		Headers: capture.HeaderSnapshot(),
		Body:    capture.Body(),
	}

	if err := store.SaveResponse(r.Context(), scoped, fingerprint, response, cfg.clock().UTC(), cfg.ttl); err != nil {
		cfg.logger.Error("idempotency response persist failed",
			zap.String("key", key),
			zap.String("requester", requester),
			zap.Error(err))
		if releaseErr := store.Release(r.Context(), scoped, fingerprint); releaseErr != nil {
			cfg.logger.Error("idempotency reservation release failed", zap.String("key", key), zap.Error(releaseErr))
		}
		writeFailure(r.Context(), w, "idempotency_store_error", "unable to persist idempotency state", http.StatusInternalServerError)
		return
	}

	if err := capture.Commit(); err != nil {
		cfg.logger.Warn("idempotency response flush failed", zap.String("key", key), zap.Error(err))
	}
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// requestFingerprint binds the key to the request's shape so a reused key
// with a different payload is rejected instead of replayed.
func requestFingerprint(r *http.Request, body []byte, requester string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Host,
		r.Header.Get("Content-Type"),
		requester,
		hashBody(body),
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

func extractRequester(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

func hashBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return sha256Hex(body)
}

func scopedKey(key, requester string) string {
	key = strings.TrimSpace(key)
	requester = strings.TrimSpace(requester)
	if requester == "" {
		requester = "anonymous"
	}
	if key == "" {
		return requester
	}
	return key + "|" + requester
}

func writeFailure(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	headers := headersFromRecord(record.ResponseHeaders)
	for key := range w.Header() {
		w.Header().Del(key)
	}
	for key, values := range headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// captureWriter buffers the downstream response so it can be persisted
// before being flushed to the client.
type captureWriter struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter(parent http.ResponseWriter) *captureWriter {
	return &captureWriter{
		parent: parent,
		header: make(http.Header),
	}
}

func (c *captureWriter) Header() http.Header {
	return c.header
}

func (c *captureWriter) WriteHeader(status int) {
	if status <= 0 {
		status = http.StatusOK
	}
	c.status = status
}

func (c *captureWriter) Write(data []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(data)
}

func (c *captureWriter) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *captureWriter) Body() []byte {
	if c.body.Len() == 0 {
		return nil
	}
	return c.body.Bytes()
}

func (c *captureWriter) HeaderSnapshot() http.Header {
	return cloneHeader(c.header)
}

func (c *captureWriter) Commit() error {
	dst := c.parent.Header()
	for key := range dst {
		dst.Del(key)
	}
	for key, values := range c.header {
		for _, value := range values {
			dst.Add(key, value)
		}
	}

	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	c.parent.WriteHeader(status)
	if c.body.Len() == 0 {
		return nil
	}
	_, err := c.parent.Write(c.body.Bytes())
	return err
}

func cloneHeader(src http.Header) http.Header {
	if len(src) == 0 {
		return http.Header{}
	}
	dst := make(http.Header, len(src))
	for key, values := range src {
		copied := make([]string, len(values))
		copy(copied, values)
		dst[key] = copied
	}
	return dst
}
