package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	domain "github.com/shopfront/api/internal/domain"
)

var errCatalogClientRequired = errors.New("catalog service: client is required")

// ErrCatalogUnavailable indicates the upstream store could not serve the request.
var ErrCatalogUnavailable = errors.New("catalog service: upstream unavailable")

type catalogClient interface {
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
}

// CatalogServiceDeps wires the upstream client for catalog browsing.
type CatalogServiceDeps struct {
	Client catalogClient
	Logger func(context.Context, string, map[string]any)
}

type catalogService struct {
	client catalogClient
	logger func(context.Context, string, map[string]any)
	fold   cases.Caser
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Client == nil {
		return nil, errCatalogClientRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		client: deps.Client,
		logger: logger,
		fold:   cases.Lower(language.English),
	}, nil
}

func (s *catalogService) Products(ctx context.Context, category string) ([]domain.Product, error) {
	// Category slugs upstream are lowercase; fold the filter so casing from
	// query strings never misses.
	normalized := s.fold.String(strings.TrimSpace(category))

	products, err := s.client.ListProducts(ctx, normalized)
	if err != nil {
		s.logger(ctx, "catalog products fetch failed", map[string]any{
			"category": normalized,
			"error":    err.Error(),
		})
		return nil, errors.Join(ErrCatalogUnavailable, err)
	}
	return products, nil
}

func (s *catalogService) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.client.ListCategories(ctx)
	if err != nil {
		s.logger(ctx, "catalog categories fetch failed", map[string]any{
			"error": err.Error(),
		})
		return nil, errors.Join(ErrCatalogUnavailable, err)
	}
	return categories, nil
}
