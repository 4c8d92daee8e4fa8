// Package secrets resolves secret:// references through Google Secret
// Manager, with an in-memory cache and a local fallback file for offline
// development.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/shopfront/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// secretRef is a parsed secret:// reference. Canonical strips the query so
// secret://name and secret://name?version=2 share an identity.
type secretRef struct {
	Canonical string
	Name      string
	Version   string
	Project   string
}

func (r secretRef) version() string {
	if r.Version == "" {
		return "latest"
	}
	return r.Version
}

func parseRef(ref string) (secretRef, error) {
	if strings.TrimSpace(ref) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""
	query := u.Query()

	return secretRef{
		Canonical: canonical.String(),
		Name:      name,
		Version:   strings.TrimSpace(query.Get("version")),
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func refCacheKey(canonical, version string) string {
	return canonical + "#" + version
}

// Fetcher implements config.SecretResolver over Secret Manager.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger

	env            string
	defaultProject string

	fallback fallbackFile

	mu    sync.RWMutex
	cache map[string]string

	metrics fetchMetrics
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithEnvironment selects the environment label attached to metrics.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) { cfg.env = strings.ToLower(strings.TrimSpace(env)) }
}

// WithDefaultProject sets the project used when a reference has no
// ?project= override.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.defaultProj = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the path of the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a preconfigured client, primarily for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards Cloud client options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. When no Secret Manager client can be created
// the fetcher still works in fallback-only mode, which is how local
// development without cloud credentials runs.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          strings.ToLower(strings.TrimSpace(os.Getenv("API_SECURITY_ENVIRONMENT"))),
		fallbackPath: defaultFallbackPath,
	}
	if cfg.env == "" {
		cfg.env = defaultEnvironment
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	f := &Fetcher{
		logger:         cfg.logger,
		env:            cfg.env,
		defaultProject: cfg.defaultProj,
		fallback:       fallbackFile{path: cfg.fallbackPath},
		cache:          make(map[string]string),
		metrics:        newFetchMetrics(meter, cfg.logger, cfg.env),
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the secret value for ref, consulting in order: cache,
// Secret Manager, then the fallback file for auth and availability failures.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseRef(ref)
	if err != nil {
		return "", err
	}
	key := refCacheKey(parsed.Canonical, parsed.version())

	if value, ok := f.cached(key); ok {
		f.metrics.cacheHit(ctx, parsed.Canonical)
		f.metrics.latency(ctx, time.Since(start), "cache", nil)
		return value, nil
	}

	project := parsed.Project
	if project == "" {
		project = strings.TrimSpace(f.defaultProject)
	}

	if project != "" && f.client != nil {
		value, fetchErr := f.fetchRemote(ctx, project, parsed)
		if fetchErr == nil {
			f.remember(key, value)
			f.metrics.latency(ctx, time.Since(start), "remote", nil)
			return value, nil
		}
		if !eligibleForFallback(fetchErr) {
			f.metrics.latency(ctx, time.Since(start), "error", fetchErr)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.Canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", parsed.Canonical), zap.Error(fetchErr))
	}

	value, ok := f.fallback.lookup(f.logger, parsed)
	if !ok {
		err := fmt.Errorf("secrets: fallback value not found for %s", parsed.Canonical)
		f.metrics.latency(ctx, time.Since(start), "error", err)
		return "", err
	}
	f.remember(key, value)
	f.metrics.latency(ctx, time.Since(start), "fallback", nil)
	return value, nil
}

// Invalidate clears cached values for every version of the reference.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseRef(ref)
	if err != nil {
		return
	}
	prefix := parsed.Canonical + "#"
	f.mu.Lock()
	for key := range f.cache {
		if strings.HasPrefix(key, prefix) {
			delete(f.cache, key)
		}
	}
	f.mu.Unlock()
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.cache[key]
	return value, ok
}

func (f *Fetcher) remember(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, project string, ref secretRef) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.Name, ref.version())
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return string(resp.Payload.GetData()), nil
}

func eligibleForFallback(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// fallbackFile is the lazily-parsed local secrets file. Lines are
// KEY=value, where KEY is a secret:// or sm:// reference.
type fallbackFile struct {
	path   string
	once   sync.Once
	values map[string]string
	err    error
}

func (fb *fallbackFile) lookup(logger *zap.Logger, ref secretRef) (string, bool) {
	fb.once.Do(func() { fb.load() })
	if fb.err != nil {
		logger.Debug("secrets: fallback load error", zap.Error(fb.err))
		return "", false
	}
	if value, ok := fb.values[refCacheKey(ref.Canonical, ref.version())]; ok {
		return value, true
	}
	value, ok := fb.values[ref.Canonical]
	return value, ok
}

func (fb *fallbackFile) load() {
	fb.values = map[string]string{}
	path := strings.TrimSpace(fb.path)
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fb.err = fmt.Errorf("secrets: unable to open fallback file %s: %w", path, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			continue
		}
		if strings.HasPrefix(name, "sm://") {
			name = "secret://" + strings.TrimPrefix(name, "sm://")
		}
		if parsed, err := parseRef(name); err == nil {
			fb.values[parsed.Canonical] = value
			fb.values[refCacheKey(parsed.Canonical, parsed.version())] = value
		} else {
			fb.values[name] = value
		}
	}
	if err := scanner.Err(); err != nil {
		fb.err = fmt.Errorf("secrets: failed reading %s: %w", path, err)
	}
}

// fetchMetrics wraps the OTel instruments; a failed registration disables
// that instrument rather than the fetcher.
type fetchMetrics struct {
	env    string
	hist   metric.Float64Histogram
	histOK bool
	hits   metric.Int64Counter
	hitsOK bool
}

func newFetchMetrics(meter metric.Meter, logger *zap.Logger, env string) fetchMetrics {
	m := fetchMetrics{env: env}

	hist, err := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	} else {
		m.hist, m.histOK = hist, true
	}

	hits, err := meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	} else {
		m.hits, m.hitsOK = hits, true
	}
	return m
}

func (m fetchMetrics) latency(ctx context.Context, d time.Duration, source string, err error) {
	if !m.histOK {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("source", source),
		attribute.String("environment", m.env),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	m.hist.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (m fetchMetrics) cacheHit(ctx context.Context, canonical string) {
	if !m.hitsOK {
		return
	}
	sum := sha256.Sum256([]byte(canonical))
	m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", hex.EncodeToString(sum[:8]))))
}
