package repositories

import (
	"context"
	"errors"

	domain "github.com/shopfront/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	CartItems() CartItemRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartItemRepository persists per-user cart rows. Every operation is scoped to
// the owning user; items belonging to other users are indistinguishable from
// missing items.
type CartItemRepository interface {
	// ListForUser returns the user's cart items ordered by creation time.
	ListForUser(ctx context.Context, userID string) ([]domain.CartItem, error)
	// Upsert adds quantity to the user's item for the product, creating the
	// row when absent and summing quantities when present.
	Upsert(ctx context.Context, userID string, productID int64, quantity int) (domain.CartItem, error)
	// SetQuantity replaces the quantity of the identified item.
	SetQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.CartItem, error)
	// Delete removes the identified item.
	Delete(ctx context.Context, userID, itemID string) error
	// CountForUser reports the number of cart rows the user owns.
	CountForUser(ctx context.Context, userID string) (int, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether the error is classified as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether the error is classified as a conflicting update.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether the error is classified as a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
