package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const (
	defaultEmailClaim    = "email"
	defaultSessionCookie = "__session"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase credential has expired.
	ErrTokenExpired = errors.New("auth: firebase credential expired")
	// ErrTokenInvalid signals that the provided Firebase credential is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase credential invalid")
)

// CredentialVerifier verifies Firebase ID tokens and session cookies.
type CredentialVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifySessionCookie(ctx context.Context, cookie string) (*firebaseauth.Token, error)
}

// Authenticator wires Firebase credential verification into HTTP middleware.
type Authenticator struct {
	verifier CredentialVerifier

	sessionCookie string
	timeout       time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithSessionCookieName overrides the cookie consulted when no bearer token is present.
func WithSessionCookieName(name string) Option {
	return func(a *Authenticator) {
		name = strings.TrimSpace(name)
		if name != "" {
			a.sessionCookie = name
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying credentials.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier CredentialVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:      verifier,
		sessionCookie: defaultSessionCookie,
		timeout:       defaultVerifyTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// RequireSession rejects requests that do not carry a verifiable Firebase credential.
// The credential is read from the Authorization bearer header first, then from the
// session cookie.
func (a *Authenticator) RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.authenticate(r)
			if err != nil {
				respondUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalSession attaches an identity when a valid credential is present and lets
// the request through untouched otherwise.
func (a *Authenticator) OptionalSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.authenticate(r)
			if err == nil && identity != nil {
				r = r.WithContext(WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

var errNoCredential = errors.New("auth: no credential presented")

func (a *Authenticator) authenticate(r *http.Request) (*Identity, error) {
	if a == nil || a.verifier == nil {
		return nil, ErrTokenInvalid
	}

	ctx, cancel := a.contextWithTimeout(r.Context())
	if cancel != nil {
		defer cancel()
	}

	if tokenStr, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		token, err := a.verifier.VerifyIDToken(ctx, tokenStr)
		if err != nil {
			return nil, classifyVerificationError(err)
		}
		return identityFromToken(token), nil
	}

	if cookie, err := r.Cookie(a.sessionCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
		token, err := a.verifier.VerifySessionCookie(ctx, cookie.Value)
		if err != nil {
			return nil, classifyVerificationError(err)
		}
		return identityFromToken(token), nil
	}

	return nil, errNoCredential
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}

func identityFromToken(token *firebaseauth.Token) *Identity {
	return &Identity{
		UID:   token.UID,
		Email: claimAsString(token.Claims, defaultEmailClaim),
	}
}

func classifyVerificationError(err error) error {
	switch {
	case firebaseauth.IsIDTokenExpired(err), firebaseauth.IsSessionCookieExpired(err):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

func claimAsString(claims map[string]interface{}, key string) string {
	raw, ok := claims[key]
	if !ok {
		return ""
	}
	if v, ok := raw.(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  "Unauthorized",
		"status": http.StatusUnauthorized,
	})
}
