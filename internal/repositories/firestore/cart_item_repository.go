package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopfront/api/internal/domain"
	pfirestore "github.com/shopfront/api/internal/platform/firestore"
)

const (
	cartItemCollection = "cart_items"

	fieldUserID    = "userId"
	fieldProductID = "productId"
	fieldQuantity  = "quantity"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
)

type cartItemDocument struct {
	UserID    string    `firestore:"userId"`
	ProductID int64     `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CartItemRepository persists per-user cart rows within Firestore.
type CartItemRepository struct {
	base     *pfirestore.BaseRepository[cartItemDocument]
	provider *pfirestore.Provider
	idGen    func() string
	now      func() time.Time
}

// CartItemRepositoryOption customises repository construction.
type CartItemRepositoryOption func(*CartItemRepository)

// WithCartItemIDGenerator overrides the document ID generator, primarily for tests.
func WithCartItemIDGenerator(gen func() string) CartItemRepositoryOption {
	return func(r *CartItemRepository) {
		if gen != nil {
			r.idGen = gen
		}
	}
}

// WithCartItemClock injects a custom clock, primarily for tests.
func WithCartItemClock(clock func() time.Time) CartItemRepositoryOption {
	return func(r *CartItemRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewCartItemRepository constructs a Firestore-backed cart item repository.
func NewCartItemRepository(provider *pfirestore.Provider, opts ...CartItemRepositoryOption) (*CartItemRepository, error) {
	if provider == nil {
		return nil, errors.New("cart item repository requires firestore provider")
	}
	repo := &CartItemRepository{
		base:     pfirestore.NewBaseRepository[cartItemDocument](provider, cartItemCollection, nil, nil),
		provider: provider,
		idGen:    func() string { return ulid.Make().String() },
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// ListForUser returns the user's cart items ordered oldest first.
func (r *CartItemRepository) ListForUser(ctx context.Context, userID string) ([]domain.CartItem, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("cart item repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldUserID, "==", userID)
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, itemFromDocument(doc.ID, doc.Data))
	}
	// Ordering in memory keeps the query free of composite index requirements.
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Upsert merges quantity into the user's row for the product inside a transaction,
// creating the row when absent.
func (r *CartItemRepository) Upsert(ctx context.Context, userID string, productID int64, quantity int) (domain.CartItem, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CartItem{}, errors.New("cart item repository: user id is required")
	}
	if productID <= 0 {
		return domain.CartItem{}, errors.New("cart item repository: product id is required")
	}
	if quantity < 1 {
		return domain.CartItem{}, errors.New("cart item repository: quantity must be at least 1")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CartItem{}, err
	}

	var result domain.CartItem
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		coll := client.Collection(cartItemCollection)
		query := coll.Where(fieldUserID, "==", userID).Where(fieldProductID, "==", productID).Limit(1)

		iter := tx.Documents(query)
		defer iter.Stop()

		snap, err := iter.Next()
		now := r.now().UTC()

		switch {
		case err == nil:
			var existing cartItemDocument
			if decodeErr := snap.DataTo(&existing); decodeErr != nil {
				return decodeErr
			}
			merged := existing.Quantity + quantity
			if updateErr := tx.Update(snap.Ref, []firestore.Update{
				{Path: fieldQuantity, Value: merged},
				{Path: fieldUpdatedAt, Value: now},
			}); updateErr != nil {
				return updateErr
			}
			existing.Quantity = merged
			existing.UpdatedAt = now
			result = itemFromDocument(snap.Ref.ID, existing)
			return nil
		case errors.Is(err, iterator.Done):
			doc := cartItemDocument{
				UserID:    userID,
				ProductID: productID,
				Quantity:  quantity,
				CreatedAt: now,
				UpdatedAt: now,
			}
			ref := coll.Doc(r.idGen())
			if createErr := tx.Create(ref, doc); createErr != nil {
				return createErr
			}
			result = itemFromDocument(ref.ID, doc)
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return domain.CartItem{}, pfirestore.WrapError("cart_items.upsert", err)
	}
	return result, nil
}

// SetQuantity replaces the quantity of the identified item. Items owned by a
// different user surface as not found.
func (r *CartItemRepository) SetQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.CartItem, error) {
	userID = strings.TrimSpace(userID)
	itemID = strings.TrimSpace(itemID)
	if userID == "" || itemID == "" {
		return domain.CartItem{}, errors.New("cart item repository: user id and item id are required")
	}
	if quantity < 1 {
		return domain.CartItem{}, errors.New("cart item repository: quantity must be at least 1")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CartItem{}, err
	}

	var result domain.CartItem
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(cartItemCollection).Doc(itemID)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc cartItemDocument
		if decodeErr := snap.DataTo(&doc); decodeErr != nil {
			return decodeErr
		}
		if doc.UserID != userID {
			return status.Error(codes.NotFound, "cart item not found for user")
		}

		now := r.now().UTC()
		if updateErr := tx.Update(ref, []firestore.Update{
			{Path: fieldQuantity, Value: quantity},
			{Path: fieldUpdatedAt, Value: now},
		}); updateErr != nil {
			return updateErr
		}

		doc.Quantity = quantity
		doc.UpdatedAt = now
		result = itemFromDocument(ref.ID, doc)
		return nil
	})
	if err != nil {
		return domain.CartItem{}, pfirestore.WrapError("cart_items.set_quantity", err)
	}
	return result, nil
}

// Delete removes the identified item after verifying ownership.
func (r *CartItemRepository) Delete(ctx context.Context, userID, itemID string) error {
	userID = strings.TrimSpace(userID)
	itemID = strings.TrimSpace(itemID)
	if userID == "" || itemID == "" {
		return errors.New("cart item repository: user id and item id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(cartItemCollection).Doc(itemID)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc cartItemDocument
		if decodeErr := snap.DataTo(&doc); decodeErr != nil {
			return decodeErr
		}
		if doc.UserID != userID {
			return status.Error(codes.NotFound, "cart item not found for user")
		}

		return tx.Delete(ref)
	})
	return pfirestore.WrapError("cart_items.delete", err)
}

// CountForUser reports the number of cart rows the user owns via a server-side aggregation.
func (r *CartItemRepository) CountForUser(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("cart item repository: user id is required")
	}

	count, err := r.base.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldUserID, "==", userID)
	})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func itemFromDocument(id string, doc cartItemDocument) domain.CartItem {
	return domain.CartItem{
		ID:        id,
		UserID:    doc.UserID,
		ProductID: doc.ProductID,
		Quantity:  doc.Quantity,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
