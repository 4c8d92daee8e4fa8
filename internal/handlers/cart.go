package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopfront/api/internal/domain"
	"github.com/shopfront/api/internal/platform/auth"
	"github.com/shopfront/api/internal/platform/httpx"
	"github.com/shopfront/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the per-user cart endpoints.
type CartHandlers struct {
	authn   *auth.Authenticator
	carts   services.CartService
	limiter rateLimiter
}

// CartHandlersOption customises CartHandlers construction.
type CartHandlersOption func(*CartHandlers)

// WithCartRateLimiter throttles cart mutations per user.
func WithCartRateLimiter(limit int, window time.Duration) CartHandlersOption {
	return func(h *CartHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewCartHandlers constructs handlers enforcing session authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, opts ...CartHandlersOption) *CartHandlers {
	h := &CartHandlers{
		authn: authn,
		carts: carts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /cart endpoints onto the provided router. The count
// endpoint tolerates anonymous requests; everything else requires a session.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	countGroup := func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.OptionalSession())
		}
		group.Get("/count", h.getCount)
	}
	r.Group(countGroup)

	r.Group(func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireSession())
		}
		group.Get("/", h.getCart)
		group.Post("/", h.postItem)
		group.Put("/{itemID}", h.putItem)
		group.Delete("/{itemID}", h.deleteItem)
	})
}

type cartLinePayload struct {
	ID        string          `json:"id"`
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Product   *productPayload `json:"product"`
}

type cartItemPayload struct {
	ID        string `json:"id"`
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func buildCartItemPayload(item domain.CartItem) cartItemPayload {
	payload := cartItemPayload{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	}
	if !item.CreatedAt.IsZero() {
		payload.CreatedAt = item.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !item.UpdatedAt.IsZero() {
		payload.UpdatedAt = item.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return payload
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	lines, err := h.carts.ListLines(ctx, identity.UID)
	if err != nil {
		h.writeCartError(ctx, w, err, "Failed to fetch cart")
		return
	}

	payload := make([]cartLinePayload, 0, len(lines))
	for _, line := range lines {
		entry := cartLinePayload{
			ID:        line.Item.ID,
			ProductID: line.Item.ProductID,
			Quantity:  line.Item.Quantity,
		}
		if line.Product != nil {
			p := buildProductPayload(*line.Product)
			entry.Product = &p
		}
		payload = append(payload, entry)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type addItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  *int  `json:"quantity"`
}

func (h *CartHandlers) postItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !h.allowMutation(ctx, w, identity.UID) {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req addItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if req.ProductID <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("product_required", "Product ID is required", http.StatusBadRequest))
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "Quantity must be at least 1", http.StatusBadRequest))
		return
	}

	item, err := h.carts.AddItem(ctx, identity.UID, req.ProductID, quantity)
	if err != nil {
		h.writeCartError(ctx, w, err, "Failed to add to cart")
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartItemPayload(item))
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) putItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !h.allowMutation(ctx, w, identity.UID) {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "Cart item not found", http.StatusNotFound))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req setQuantityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if req.Quantity == nil || *req.Quantity < 1 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "Quantity must be at least 1", http.StatusBadRequest))
		return
	}

	item, err := h.carts.SetItemQuantity(ctx, identity.UID, itemID, *req.Quantity)
	if err != nil {
		h.writeCartError(ctx, w, err, "Failed to update cart item")
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartItemPayload(item))
}

func (h *CartHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !h.allowMutation(ctx, w, identity.UID) {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "Cart item not found", http.StatusNotFound))
		return
	}

	if err := h.carts.RemoveItem(ctx, identity.UID, itemID); err != nil {
		h.writeCartError(ctx, w, err, "Failed to delete cart item")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
}

// getCount reports the badge count. It never hard-fails: anonymous sessions
// and backend outages both degrade to zero.
func (h *CartHandlers) getCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		writeJSONResponse(w, http.StatusOK, map[string]int{"count": 0})
		return
	}

	count, err := h.carts.Count(ctx, identity.UID)
	if err != nil {
		writeJSONResponse(w, http.StatusOK, map[string]int{"count": 0})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"count": count})
}

func (h *CartHandlers) allowMutation(ctx context.Context, w http.ResponseWriter, userID string) bool {
	if h.limiter == nil {
		return true
	}
	if h.limiter.Allow(userID) {
		return true
	}
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many cart mutations, retry later", http.StatusTooManyRequests))
	return false
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "Cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Quantity must be at least 1", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", fallback, http.StatusInternalServerError))
	}
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "Unauthorized", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest))
	}
}
