package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront/api/internal/platform/auth"
	"github.com/shopfront/api/internal/platform/httpx"
)

// SessionRevoker invalidates a user's active sessions.
type SessionRevoker interface {
	SignOut(ctx context.Context, uid string) error
}

// SessionHandlers exposes session lifecycle endpoints.
type SessionHandlers struct {
	authn   *auth.Authenticator
	revoker SessionRevoker
}

// NewSessionHandlers constructs handlers for authenticated session management.
func NewSessionHandlers(authn *auth.Authenticator, revoker SessionRevoker) *SessionHandlers {
	return &SessionHandlers{authn: authn, revoker: revoker}
}

// Routes wires the /session endpoints onto the provided router.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireSession())
		}
		group.Post("/signout", h.signOut)
	})
}

// signOut revokes the caller's refresh tokens so existing session cookies
// stop verifying once their current ID token expires.
func (h *SessionHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.revoker == nil {
		httpx.WriteError(ctx, w, httpx.NewError("signout_unavailable", "Sign-out is not available", http.StatusServiceUnavailable))
		return
	}

	if err := h.revoker.SignOut(ctx, identity.UID); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("signout_failed", "Failed to sign out", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
}
