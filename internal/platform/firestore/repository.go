package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded entity with the snapshot timestamps Firestore
// reported for it.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
	ReadTime   time.Time
}

// MutationResult carries the server-assigned update time of a write.
type MutationResult struct {
	UpdateTime time.Time
}

// Encoder converts an entity into the value handed to the Firestore client.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder builds an entity from a document snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder narrows a collection query before it runs.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository wraps one collection with typed read and write helpers.
// A nil Encoder stores the entity as-is and a nil Decoder uses Firestore's
// struct decoding.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository binds a repository to the named collection.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	repo := &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
	if repo.encode == nil {
		repo.encode = IdentityEncoder[T]()
	}
	if repo.decode == nil {
		repo.decode = StructDecoder[T]()
	}
	return repo
}

// Set writes the value under the given document ID, creating or replacing it.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) (MutationResult, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	payload, err := r.encode(ctx, value)
	if err != nil {
		return MutationResult{}, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	return r.mutate("set", func() (*firestore.WriteResult, error) {
		return doc.Set(ctx, payload, opts...)
	})
}

// Update applies field-level updates to an existing document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, opts ...firestore.Precondition) (MutationResult, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	return r.mutate("update", func() (*firestore.WriteResult, error) {
		return doc.Update(ctx, updates, opts...)
	})
}

// Delete removes the document. Missing documents are not an error.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string, opts ...firestore.Precondition) (MutationResult, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	return r.mutate("delete", func() (*firestore.WriteResult, error) {
		return doc.Delete(ctx, opts...)
	})
}

// Get loads and decodes a single document.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.hydrate(ctx, snapshot)
}

// Query runs the (optionally narrowed) collection query and decodes every hit.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	query, err := r.buildQuery(ctx, build)
	if err != nil {
		return nil, err
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.hydrate(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
}

// Count runs a server-side count aggregation instead of streaming documents.
func (r *BaseRepository[T]) Count(ctx context.Context, build QueryBuilder) (int64, error) {
	query, err := r.buildQuery(ctx, build)
	if err != nil {
		return 0, err
	}

	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, WrapError(r.op("count"), err)
	}
	value, ok := results["total"].(*firestorepb.Value)
	if !ok {
		return 0, WrapError(r.op("count"), fmt.Errorf("firestore: unexpected aggregation result %T", results["total"]))
	}
	return value.GetIntegerValue(), nil
}

// DocumentRef returns the raw reference, mainly for use inside transactions.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	return r.documentRef(ctx, id)
}

func (r *BaseRepository[T]) mutate(action string, write func() (*firestore.WriteResult, error)) (MutationResult, error) {
	result, err := write()
	if err != nil {
		return MutationResult{}, WrapError(r.op(action), err)
	}
	return MutationResult{UpdateTime: result.UpdateTime}, nil
}

func (r *BaseRepository[T]) hydrate(ctx context.Context, snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(ctx, snapshot)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
		ReadTime:   snapshot.ReadTime,
	}, nil
}

func (r *BaseRepository[T]) buildQuery(ctx context.Context, build QueryBuilder) (firestore.Query, error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	return query, nil
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return name + "." + action
}

// IdentityEncoder returns an encoder that writes the value unchanged.
func IdentityEncoder[T any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return value, nil
	}
}

// StructDecoder decodes the snapshot into T via Firestore's native mapping.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}
