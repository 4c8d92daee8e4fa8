package cartsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	defaultAPITimeout  = 15 * time.Second
	maxAPIResponseSize = 1 << 20
)

// APIClient talks to the cart HTTP surface. A network failure and a
// non-2xx response are indistinguishable to callers: both come back as a
// plain error, which is all the rollback protocol needs.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	token      string
	cookie     *http.Cookie
}

// APIClientOption customises APIClient construction.
type APIClientOption func(*APIClient)

// WithAPIHTTPClient overrides the transport.
func WithAPIHTTPClient(client *http.Client) APIClientOption {
	return func(c *APIClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSessionToken authenticates requests with a bearer token.
func WithSessionToken(token string) APIClientOption {
	return func(c *APIClient) {
		c.token = strings.TrimSpace(token)
	}
}

// WithSessionCookie authenticates requests with a session cookie.
func WithSessionCookie(cookie *http.Cookie) APIClientOption {
	return func(c *APIClient) {
		c.cookie = cookie
	}
}

// NewAPIClient constructs a client rooted at baseURL (e.g. http://host:8080).
func NewAPIClient(baseURL string, opts ...APIClientOption) *APIClient {
	c := &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultAPITimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SignedIn reports whether the client carries a credential. It does not
// validate the credential; the server is the judge of that.
func (c *APIClient) SignedIn() bool {
	return c.token != "" || c.cookie != nil
}

type cartItemResponse struct {
	ID        string `json:"id"`
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// FetchCart returns the user's cart rows.
func (c *APIClient) FetchCart(ctx context.Context) ([]Item, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/cart/", nil)
	if err != nil {
		return nil, err
	}

	var rows []cartItemResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode cart response: %w", err)
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{ID: row.ID, ProductID: row.ProductID, Quantity: row.Quantity})
	}
	return items, nil
}

// AddToCart creates or merges a cart row for the product.
func (c *APIClient) AddToCart(ctx context.Context, productID int64, quantity int) error {
	payload := map[string]any{"productId": productID, "quantity": quantity}
	_, err := c.do(ctx, http.MethodPost, "/api/cart/", payload)
	return err
}

// UpdateItemQuantity replaces the item's quantity.
func (c *APIClient) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	payload := map[string]any{"quantity": quantity}
	_, err := c.do(ctx, http.MethodPut, "/api/cart/"+url.PathEscape(itemID), payload)
	return err
}

// DeleteItem removes the item.
func (c *APIClient) DeleteItem(ctx context.Context, itemID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/cart/"+url.PathEscape(itemID), nil)
	return err
}

// CartCount returns the badge count. The endpoint degrades to zero on the
// server side, so an error here means the request itself failed.
func (c *APIClient) CartCount(ctx context.Context) (int, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/cart/count", nil)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return payload.Count, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", ulid.Make().String())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseSize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("cart api: %s %s returned %s", method, path, resp.Status)
	}
	return body, nil
}
