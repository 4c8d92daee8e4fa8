package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/shopfront/api/internal/domain"
	"github.com/shopfront/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: item repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartItemNotFound indicates the item does not exist or belongs to another user.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

type productFetcher interface {
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Items   repositories.CartItemRepository
	Catalog productFetcher
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

type cartService struct {
	items   repositories.CartItemRepository
	catalog productFetcher
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Items == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		items:   deps.Items,
		catalog: deps.Catalog,
		now:     func() time.Time { return deps.Clock().UTC() },
		logger:  logger,
	}, nil
}

func (s *cartService) ListLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrCartInvalidInput
	}

	items, err := s.items.ListForUser(ctx, uid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	lines := make([]domain.CartLine, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))
	for i, item := range items {
		i, item := i, item
		go func() {
			defer wg.Done()
			lines[i] = domain.CartLine{Item: item}
			if s.catalog == nil {
				return
			}
			product, err := s.catalog.GetProduct(ctx, item.ProductID)
			if err != nil {
				s.logger(ctx, "cart product hydration failed", map[string]any{
					"item_id":    item.ID,
					"product_id": item.ProductID,
					"error":      err.Error(),
				})
				return
			}
			lines[i].Product = &product
		}()
	}
	wg.Wait()

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Item.CreatedAt.Before(lines[j].Item.CreatedAt)
	})
	return lines, nil
}

func (s *cartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) (domain.CartItem, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" || productID <= 0 {
		return domain.CartItem{}, ErrCartInvalidInput
	}
	if quantity < 1 {
		return domain.CartItem{}, ErrCartInvalidInput
	}

	item, err := s.items.Upsert(ctx, uid, productID, quantity)
	if err != nil {
		return domain.CartItem{}, s.translateRepoError(err)
	}
	return item, nil
}

func (s *cartService) SetItemQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.CartItem, error) {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(itemID)
	if uid == "" || id == "" {
		return domain.CartItem{}, ErrCartInvalidInput
	}
	if quantity < 1 {
		return domain.CartItem{}, ErrCartInvalidInput
	}

	item, err := s.items.SetQuantity(ctx, uid, id, quantity)
	if err != nil {
		return domain.CartItem{}, s.translateRepoError(err)
	}
	return item, nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID, itemID string) error {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(itemID)
	if uid == "" || id == "" {
		return ErrCartInvalidInput
	}

	if err := s.items.Delete(ctx, uid, id); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) Count(ctx context.Context, userID string) (int, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return 0, ErrCartInvalidInput
	}

	count, err := s.items.CountForUser(ctx, uid)
	if err != nil {
		return 0, s.translateRepoError(err)
	}
	return count, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartItemNotFound
		case repoErr.IsConflict(), repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}
