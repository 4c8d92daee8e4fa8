package domain

import (
	"time"
)

// Product mirrors a catalog entry served by the upstream product API. The API
// owns the data; this type is the sanitised shape exposed to clients.
type Product struct {
	ID          int64
	Title       string
	Price       float64
	Description string
	Category    string
	Image       string
	Rating      ProductRating
}

// ProductRating carries the upstream review aggregate for a product.
type ProductRating struct {
	Rate  float64
	Count int
}

// CartItem is a single cart row owned by exactly one user. A (UserID,
// ProductID) pair maps to at most one item; repeated adds merge by summing
// quantity.
type CartItem struct {
	ID        string
	UserID    string
	ProductID int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine pairs a stored cart item with its hydrated product details.
// Product is nil when the catalog lookup failed; the item itself stays valid.
type CartLine struct {
	Item    CartItem
	Product *Product
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck captures the outcome of probing a single dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	Error     string
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks for readiness reporting.
type SystemHealthReport struct {
	Status      string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
	Checks      map[string]SystemHealthCheck
}
