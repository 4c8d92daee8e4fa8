package services

import (
	"context"

	domain "github.com/shopfront/api/internal/domain"
)

// CartService exposes the cart operations consumed by HTTP handlers.
type CartService interface {
	// ListLines returns the user's cart rows hydrated with product details.
	// A failed product lookup degrades the line instead of failing the call.
	ListLines(ctx context.Context, userID string) ([]domain.CartLine, error)
	// AddItem merges quantity into the user's row for the product.
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (domain.CartItem, error)
	// SetItemQuantity replaces the quantity of an owned item.
	SetItemQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.CartItem, error)
	// RemoveItem deletes an owned item.
	RemoveItem(ctx context.Context, userID, itemID string) error
	// Count reports the number of cart rows the user owns.
	Count(ctx context.Context, userID string) (int, error)
}

// CatalogService exposes read-only product browsing operations.
type CatalogService interface {
	// Products lists products, optionally filtered by category.
	Products(ctx context.Context, category string) ([]domain.Product, error)
	// Categories lists the store's category slugs.
	Categories(ctx context.Context) ([]string, error)
}

// HealthService aggregates dependency probes for readiness reporting.
type HealthService interface {
	Check(ctx context.Context) (domain.SystemHealthReport, error)
}
