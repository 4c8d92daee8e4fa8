package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const sampleProducts = `[
  {"id":1,"title":"Backpack","price":109.95,"description":"Fits <b>15 inch</b> laptops","category":"men's clothing","image":"https://img.example/1.png","rating":{"rate":3.9,"count":120}},
  {"id":2,"title":"<script>alert(1)</script>Shirt","price":22.3,"description":"Slim fit","category":"men's clothing","image":"javascript:alert(1)","rating":{"rate":4.1,"count":259}}
]`

func TestListProductsSanitizesUpstreamFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua == "" || ua == "Go-http-client/1.1" {
			t.Fatalf("expected browser-like user agent, got %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleProducts))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	products, err := client.ListProducts(context.Background(), "")
	if err != nil {
		t.Fatalf("ListProducts returned error: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
	if products[0].Description != "Fits 15 inch laptops" {
		t.Fatalf("expected markup stripped, got %q", products[0].Description)
	}
	if products[1].Title != "Shirt" {
		t.Fatalf("expected script stripped from title, got %q", products[1].Title)
	}
	if products[1].Image != "" {
		t.Fatalf("expected non-http image URL dropped, got %q", products[1].Image)
	}
	if products[0].Category != "men's clothing" {
		t.Fatalf("expected apostrophe preserved in category, got %q", products[0].Category)
	}
}

func TestListProductsCategoryPath(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.EscapedPath())
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	if _, err := client.ListProducts(context.Background(), "men's clothing"); err != nil {
		t.Fatalf("ListProducts returned error: %v", err)
	}
	if got := gotPath.Load().(string); got != "/products/category/men%27s%20clothing" {
		t.Fatalf("unexpected category path %s", got)
	}

	if _, err := client.ListProducts(context.Background(), "all"); err != nil {
		t.Fatalf("ListProducts(all) returned error: %v", err)
	}
	if got := gotPath.Load().(string); got != "/products" {
		t.Fatalf("expected all to map to /products, got %s", got)
	}
}

func TestListProductsCachesWithinTTL(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(sampleProducts))
	}))
	defer srv.Close()

	now := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	client := NewClient(
		WithBaseURL(srv.URL),
		WithCacheTTL(60*time.Second),
		WithClock(func() time.Time { return now }),
	)

	for i := 0; i < 3; i++ {
		if _, err := client.ListProducts(context.Background(), ""); err != nil {
			t.Fatalf("ListProducts call %d returned error: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single upstream call within TTL, got %d", got)
	}

	now = now.Add(61 * time.Second)
	if _, err := client.ListProducts(context.Background(), ""); err != nil {
		t.Fatalf("ListProducts after TTL returned error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected refetch after TTL, got %d calls", got)
	}
}

func TestListProductsUpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	_, err := client.ListProducts(context.Background(), "")
	if !errors.Is(err, ErrUpstreamStatus) {
		t.Fatalf("expected ErrUpstreamStatus, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected StatusError with 403, got %v", err)
	}
}

func TestListProductsUpstreamFormatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"not an array"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	_, err := client.ListProducts(context.Background(), "")
	if !errors.Is(err, ErrUpstreamFormat) {
		t.Fatalf("expected ErrUpstreamFormat, got %v", err)
	}
}

func TestGetProductNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	_, err := client.GetProduct(context.Background(), 999)
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestGetProductUsesListCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(sampleProducts))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	if _, err := client.ListProducts(context.Background(), ""); err != nil {
		t.Fatalf("ListProducts returned error: %v", err)
	}

	product, err := client.GetProduct(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProduct returned error: %v", err)
	}
	if product.Title != "Backpack" {
		t.Fatalf("unexpected product %q", product.Title)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected product served from list cache, got %d upstream calls", got)
	}
}

func TestListCategories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/categories" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`["electronics","jewelery","men's clothing","women's clothing"]`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))

	categories, err := client.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("ListCategories returned error: %v", err)
	}
	if len(categories) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(categories))
	}
	if categories[0] != "electronics" {
		t.Fatalf("unexpected first category %q", categories[0])
	}
}
