package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/shopfront/api/internal/domain"
)

const (
	defaultBaseURL  = "https://fakestoreapi.com"
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 60 * time.Second

	// The upstream store rejects requests carrying default Go user agents.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxResponseBytes = 4 << 20
)

var (
	// ErrUpstreamStatus indicates the upstream store answered with a non-2xx status.
	ErrUpstreamStatus = errors.New("catalog: upstream returned error status")
	// ErrUpstreamFormat indicates the upstream payload did not match the expected shape.
	ErrUpstreamFormat = errors.New("catalog: upstream returned malformed payload")
	// ErrProductNotFound indicates the requested product does not exist upstream.
	ErrProductNotFound = errors.New("catalog: product not found")
)

// StatusError carries the upstream HTTP status alongside ErrUpstreamStatus.
type StatusError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: upstream status %d %s", e.StatusCode, e.Status)
}

// Unwrap ties StatusError into the ErrUpstreamStatus chain.
func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

type productPayload struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Rating      struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"rating"`
}

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Client fetches products and categories from the Fake Store API with a short
// TTL cache matching the upstream's revalidation window.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     *bluemonday.Policy
	cacheTTL   time.Duration
	now        func() time.Time

	mu         sync.Mutex
	products   map[string]cacheEntry[[]domain.Product]
	byID       map[int64]cacheEntry[domain.Product]
	categories *cacheEntry[[]string]
}

// ClientOption customises Client construction.
type ClientOption func(*Client)

// WithBaseURL points the client at a different upstream, primarily for tests.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base != "" {
			c.baseURL = base
		}
	}
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout when no custom HTTP client is supplied.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 && c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithCacheTTL overrides the response cache lifetime. Zero disables caching.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithAPIKey attaches an API key header to upstream requests when set.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithClock injects a custom clock, primarily for tests.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a Fake Store API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		policy:     bluemonday.StrictPolicy(),
		cacheTTL:   defaultCacheTTL,
		now:        time.Now,
		products:   make(map[string]cacheEntry[[]domain.Product]),
		byID:       make(map[int64]cacheEntry[domain.Product]),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ListProducts returns products, optionally filtered to a category. An empty or
// "all" category lists the whole store.
func (c *Client) ListProducts(ctx context.Context, category string) ([]domain.Product, error) {
	category = strings.TrimSpace(category)
	if strings.EqualFold(category, "all") {
		category = ""
	}

	if cached, ok := c.cachedProducts(category); ok {
		return cached, nil
	}

	path := "/products"
	if category != "" {
		path = "/products/category/" + url.PathEscape(category)
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var payloads []productPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, fmt.Errorf("%w: expected product array: %v", ErrUpstreamFormat, err)
	}

	products := make([]domain.Product, 0, len(payloads))
	for _, payload := range payloads {
		products = append(products, c.sanitizeProduct(payload))
	}

	c.storeProducts(category, products)
	return products, nil
}

// GetProduct fetches a single product by its upstream ID.
func (c *Client) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}

	if cached, ok := c.cachedProduct(id); ok {
		return cached, nil
	}

	body, err := c.get(ctx, fmt.Sprintf("/products/%d", id))
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return domain.Product{}, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
		}
		return domain.Product{}, err
	}

	// The upstream answers missing products with 200 and a null body.
	if len(body) == 0 || string(body) == "null" {
		return domain.Product{}, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}

	var payload productPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Product{}, fmt.Errorf("%w: expected product object: %v", ErrUpstreamFormat, err)
	}
	if payload.ID == 0 {
		return domain.Product{}, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}

	product := c.sanitizeProduct(payload)
	c.storeProduct(product)
	return product, nil
}

// ListCategories returns the store's category slugs.
func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	if cached, ok := c.cachedCategories(); ok {
		return cached, nil
	}

	body, err := c.get(ctx, "/products/categories")
	if err != nil {
		return nil, err
	}

	var categories []string
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, fmt.Errorf("%w: expected category array: %v", ErrUpstreamFormat, err)
	}

	sanitized := make([]string, 0, len(categories))
	for _, category := range categories {
		cleaned := c.sanitizeText(category)
		if cleaned != "" {
			sanitized = append(sanitized, cleaned)
		}
	}

	c.storeCategories(sanitized)
	return sanitized, nil
}

// Ping probes the upstream store for readiness reporting.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/products/categories")
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", c.baseURL+"/")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("catalog: read response %s: %w", path, err)
	}
	return body, nil
}

func (c *Client) sanitizeProduct(payload productPayload) domain.Product {
	product := domain.Product{
		ID:          payload.ID,
		Title:       c.sanitizeText(payload.Title),
		Price:       payload.Price,
		Description: c.sanitizeText(payload.Description),
		Category:    c.sanitizeText(payload.Category),
		Image:       strings.TrimSpace(payload.Image),
		Rating: domain.ProductRating{
			Rate:  payload.Rating.Rate,
			Count: payload.Rating.Count,
		},
	}
	if u, err := url.Parse(product.Image); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		product.Image = ""
	}
	return product
}

// sanitizeText strips markup and restores plain-text entities the policy escaped.
func (c *Client) sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}

func (c *Client) cachedProducts(category string) ([]domain.Product, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.products[category]
	if !ok || c.now().Sub(entry.fetchedAt) > c.cacheTTL {
		return nil, false
	}
	return entry.value, true
}

func (c *Client) storeProducts(category string, products []domain.Product) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[category] = cacheEntry[[]domain.Product]{value: products, fetchedAt: c.now()}
	for _, product := range products {
		c.byID[product.ID] = cacheEntry[domain.Product]{value: product, fetchedAt: c.now()}
	}
}

func (c *Client) cachedProduct(id int64) (domain.Product, bool) {
	if c.cacheTTL <= 0 {
		return domain.Product{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byID[id]
	if !ok || c.now().Sub(entry.fetchedAt) > c.cacheTTL {
		return domain.Product{}, false
	}
	return entry.value, true
}

func (c *Client) storeProduct(product domain.Product) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[product.ID] = cacheEntry[domain.Product]{value: product, fetchedAt: c.now()}
}

func (c *Client) cachedCategories() ([]string, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.categories == nil || c.now().Sub(c.categories.fetchedAt) > c.cacheTTL {
		return nil, false
	}
	return c.categories.value, true
}

func (c *Client) storeCategories(categories []string) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = &cacheEntry[[]string]{value: categories, fetchedAt: c.now()}
}
