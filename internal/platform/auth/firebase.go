package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/shopfront/api/internal/platform/config"
	"google.golang.org/api/option"
)

var errVerifierNotInitialised = errors.New("firebase verifier not initialised")

// FirebaseVerifier wraps the Firebase Admin SDK auth client. Every call runs
// under a bounded context so a slow Admin API cannot stall request handling.
type FirebaseVerifier struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseVerifier instances.
type FirebaseOption func(*FirebaseVerifier)

// WithFirebaseTimeout overrides the per-call timeout for Admin SDK requests.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewFirebaseVerifier initialises the Admin SDK app and its auth client.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	verifier := &FirebaseVerifier{
		client:  authClient,
		timeout: defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier, nil
}

// VerifyIDToken validates a Firebase ID token presented as a bearer credential.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	ctx, done, err := v.callCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return v.client.VerifyIDToken(ctx, idToken)
}

// VerifySessionCookie validates a Firebase session cookie minted at sign-in.
func (v *FirebaseVerifier) VerifySessionCookie(ctx context.Context, cookie string) (*firebaseauth.Token, error) {
	ctx, done, err := v.callCtx(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return v.client.VerifySessionCookie(ctx, cookie)
}

// SignOut revokes the user's refresh tokens, invalidating future session cookies.
func (v *FirebaseVerifier) SignOut(ctx context.Context, uid string) error {
	ctx, done, err := v.callCtx(ctx)
	if err != nil {
		return err
	}
	defer done()
	return v.client.RevokeRefreshTokens(ctx, uid)
}

func (v *FirebaseVerifier) callCtx(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if v == nil || v.client == nil {
		return ctx, func() {}, errVerifierNotInitialised
	}
	if v.timeout <= 0 {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	return ctx, cancel, nil
}
