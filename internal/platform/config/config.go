package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopfront/api/internal/platform/textutil"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultCatalogBaseURL      = "https://fakestoreapi.com"
	defaultCatalogTimeout      = 10 * time.Second
	defaultCatalogCacheTTL     = 60 * time.Second
	defaultRateLimitDefault    = 120
	defaultRateLimitAuth       = 240
	defaultSecurityEnvironment = "local"
	defaultLoginPath           = "/login"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	Catalog    CatalogConfig
	RateLimits RateLimitConfig
	Security   SecurityConfig
	Client     ClientConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings used for session verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// CatalogConfig locates the upstream product API.
type CatalogConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	APIKey   string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute       int
	AuthenticatedPerMinute int
}

// SecurityConfig groups deployment environment settings.
type SecurityConfig struct {
	Environment string
}

// ClientConfig carries settings consumed by the embedded storefront client.
type ClientConfig struct {
	LoginPath string
}

// SecretResolver turns secret:// references into their plaintext values.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError reports configuration fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes a failure while resolving one secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secrets that resolved to nothing. Names
// are hashed before they are printed so logs never carry secret identifiers.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	redacted := e.RedactedNames()
	if len(redacted) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// RedactedNames returns the hashed identifiers of the unresolved secrets.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that wins over the system
// environment and any .env file.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = textutil.NormalizeStringMap(values)
	}
}

// WithoutSystemEnv ignores os.Getenv so only maps and .env files apply.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// envSource resolves keys with the precedence explicit map > system
// environment > .env file.
type envSource struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
}

func newEnvSource(options loaderOptions) (envSource, error) {
	dotenv, err := loadDotEnv(options.envFile)
	if err != nil {
		return envSource{}, err
	}
	return envSource{
		explicit: options.envMap,
		system:   options.useSystemEnv,
		dotenv:   dotenv,
	}, nil
}

func (s envSource) lookup(key string) (string, bool) {
	if value, ok := s.explicit[key]; ok {
		return value, true
	}
	if s.system {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := s.dotenv[key]
	return value, ok
}

func (s envSource) str(key, fallback string) string {
	if value, ok := s.lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func (s envSource) duration(key string, fallback time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (s envSource) integer(key string, fallback int) int {
	if value, ok := s.lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// flatten materialises the effective environment, lowest precedence first.
func (s envSource) flatten() map[string]string {
	values := make(map[string]string)
	for key, value := range s.dotenv {
		values[key] = value
	}
	if s.system {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range s.explicit {
		values[key] = value
	}
	return values
}

// EnvironmentValues returns the effective key/value map after applying the
// same precedence rules as Load. Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	source, err := newEnvSource(applyOptions(opts))
	if err != nil {
		return nil, err
	}
	return source.flatten(), nil
}

func applyOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Load assembles the application configuration from defaults, the .env file,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := applyOptions(opts)
	if options.secret == nil {
		options.secret = SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		})
	}

	env, err := newEnvSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Catalog: CatalogConfig{
			BaseURL:  env.str("API_CATALOG_BASE_URL", defaultCatalogBaseURL),
			Timeout:  env.duration("API_CATALOG_TIMEOUT", defaultCatalogTimeout),
			CacheTTL: env.duration("API_CATALOG_CACHE_TTL", defaultCatalogCacheTTL),
			APIKey:   env.str("API_CATALOG_API_KEY", ""),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:       env.integer("API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			AuthenticatedPerMinute: env.integer("API_RATELIMIT_AUTH_PER_MIN", defaultRateLimitAuth),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
		Client: ClientConfig{
			LoginPath: env.str("API_CLIENT_LOGIN_PATH", defaultLoginPath),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	resolveField := func(name string, field *string) error {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return err
		}
		*field = resolved
		resolvedSecrets[name] = strings.TrimSpace(resolved)
		return nil
	}

	if err := resolveField("Catalog.APIKey", &cfg.Catalog.APIKey); err != nil {
		return Config{}, err
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string
	requireString := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	requireString("Server.Port", cfg.Server.Port)
	requireString("Firebase.ProjectID", cfg.Firebase.ProjectID)
	requireString("Firestore.ProjectID", cfg.Firestore.ProjectID)
	requireString("Catalog.BaseURL", cfg.Catalog.BaseURL)
	if cfg.Catalog.Timeout <= 0 {
		missing = append(missing, "Catalog.Timeout")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var missing []string
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		if strings.TrimSpace(resolved[trimmed]) == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

// loadDotEnv parses KEY=value lines, skipping comments and blanks. A missing
// file is not an error; local overrides are optional.
func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if ok {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	if rest, ok := strings.CutPrefix(line, "export "); ok {
		line = strings.TrimSpace(rest)
	}
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	return key, strings.Trim(strings.TrimSpace(value), "\"'"), true
}
