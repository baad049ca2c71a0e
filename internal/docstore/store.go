// Package docstore provides the document store the gateway executes model
// operations against.
//
// Two backends implement Store: Memory, an in-process store used for tests,
// the CLI and single-user deployments, and Mongo, backed by a MongoDB
// deployment. Backends enforce no access rules; callers validate requests
// with the policy package first.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Document is a single stored document.
type Document = map[string]any

var (
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrCollectionExists = errors.New("collection already exists")
	ErrInvalidFilter    = errors.New("invalid filter")
	ErrInvalidUpdate    = errors.New("invalid update")
	ErrInvalidPipeline  = errors.New("invalid pipeline")
	ErrInvalidIndex     = errors.New("invalid index")
)

// SortField orders results by one field. Order is 1 for ascending and -1
// for descending.
type SortField struct {
	Field string
	Order int
}

// FindOptions controls a Find call. A zero Limit means no limit.
type FindOptions struct {
	Filter     Document
	Projection Document
	Sort       []SortField
	Skip       int64
	Limit      int64
}

// UpdateResult reports the effect of an update.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    any
}

// IndexSpec describes an index to create. An empty Name is derived from the
// keys.
type IndexSpec struct {
	Keys   []SortField
	Unique bool
	Name   string
}

// Store runs one operation per call. Implementations must be safe for
// concurrent use.
type Store interface {
	Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, collection string, filter, projection Document) (Document, error)
	Count(ctx context.Context, collection string, filter Document) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []json.RawMessage) ([]Document, error)
	ListCollections(ctx context.Context) ([]string, error)

	InsertOne(ctx context.Context, collection string, doc Document) (any, error)
	InsertMany(ctx context.Context, collection string, docs []Document) ([]any, error)
	UpdateOne(ctx context.Context, collection string, filter, update Document) (UpdateResult, error)
	UpdateMany(ctx context.Context, collection string, filter, update Document) (UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter Document) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter Document) (int64, error)
	CreateCollection(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, collection string, spec IndexSpec) (string, error)

	Close(ctx context.Context) error
}
