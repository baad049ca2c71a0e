// Package executor runs validated operation requests against a document
// store and turns the outcome into a result envelope.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/roelfdiedericks/toolgate/internal/docstore"
	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/operation"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

const (
	DefaultFindLimit = 50
	MaxFindLimit     = 500
)

// ErrCancelled is reported when the caller's context ends before or while
// an operation runs.
var ErrCancelled = errors.New("operation cancelled")

// Executor dispatches requests to a Store. It does not check collection
// tiers; callers must run the request through the policy first.
type Executor struct {
	store        docstore.Store
	defaultLimit int64
	maxLimit     int64
}

// Option configures an Executor.
type Option func(*Executor)

// WithFindLimits overrides the default and maximum find limits.
func WithFindLimits(def, max int64) Option {
	return func(e *Executor) {
		if def > 0 {
			e.defaultLimit = def
		}
		if max > 0 {
			e.maxLimit = max
		}
		if e.defaultLimit > e.maxLimit {
			e.defaultLimit = e.maxLimit
		}
	}
}

// New returns an Executor over store.
func New(store docstore.Store, opts ...Option) *Executor {
	e := &Executor{
		store:        store,
		defaultLimit: DefaultFindLimit,
		maxLimit:     MaxFindLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs req and returns its envelope. It never panics.
func (e *Executor) Execute(ctx context.Context, req operation.Request) (env types.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			L_error("executor: panic during operation", "op", req.String(), "panic", r, "stack", string(debug.Stack()))
			env = types.Failuref("internal error while executing %s", req.Kind())
		}
	}()

	if ctx.Err() != nil {
		return types.FromError(ErrCancelled)
	}

	fields, err := e.dispatch(ctx, req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return types.FromError(ErrCancelled)
		}
		L_debug("executor: operation failed", "op", req.String(), "error", err)
		return types.FromError(err)
	}
	return types.Success(fields)
}

func (e *Executor) dispatch(ctx context.Context, req operation.Request) (map[string]any, error) {
	target := req.Target()

	switch req.Kind() {
	case operation.Find:
		opts, err := e.findOptions(req)
		if err != nil {
			return nil, err
		}
		docs, err := e.store.Find(ctx, target, opts)
		if err != nil {
			return nil, fmt.Errorf("find failed: %w", err)
		}
		return documents(docs), nil

	case operation.FindOne:
		filter, projection, err := filterAndProjection(req)
		if err != nil {
			return nil, err
		}
		doc, err := e.store.FindOne(ctx, target, filter, projection)
		if err != nil {
			return nil, fmt.Errorf("findOne failed: %w", err)
		}
		return map[string]any{"document": doc}, nil

	case operation.Count:
		filter, err := docstore.ParseDocument(req.Filter())
		if err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		n, err := e.store.Count(ctx, target, filter)
		if err != nil {
			return nil, fmt.Errorf("count failed: %w", err)
		}
		return map[string]any{"count": n}, nil

	case operation.Aggregate:
		raw := req.Pipeline()
		if raw == nil {
			return nil, fmt.Errorf("pipeline is required for aggregate")
		}
		stages, err := docstore.ParsePipeline(raw)
		if err != nil {
			return nil, err
		}
		docs, err := e.store.Aggregate(ctx, target, stages)
		if err != nil {
			return nil, fmt.Errorf("aggregate failed: %w", err)
		}
		return documents(docs), nil

	case operation.ListCollections:
		names, err := e.store.ListCollections(ctx)
		if err != nil {
			return nil, fmt.Errorf("listCollections failed: %w", err)
		}
		if names == nil {
			names = []string{}
		}
		return map[string]any{"collections": names}, nil

	case operation.InsertOne:
		data := req.Data()
		if !operation.IsObject(data) {
			return nil, fmt.Errorf("insertOne requires data to be a single object, use insertMany for arrays")
		}
		doc, err := docstore.ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
		id, err := e.store.InsertOne(ctx, target, doc)
		if err != nil {
			return nil, fmt.Errorf("insertOne failed: %w", err)
		}
		return map[string]any{"insertedId": id}, nil

	case operation.InsertMany:
		data := req.Data()
		if !operation.IsArray(data) {
			return nil, fmt.Errorf("insertMany requires data to be an array of objects")
		}
		docs, err := docstore.ParseDocuments(data)
		if err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("insertMany requires at least one document")
		}
		ids, err := e.store.InsertMany(ctx, target, docs)
		if err != nil {
			return nil, fmt.Errorf("insertMany failed: %w", err)
		}
		return map[string]any{"insertedIds": ids, "insertedCount": len(ids)}, nil

	case operation.UpdateOne, operation.UpdateMany:
		filter, update, err := filterAndUpdate(req)
		if err != nil {
			return nil, err
		}
		var res docstore.UpdateResult
		if req.Kind() == operation.UpdateOne {
			res, err = e.store.UpdateOne(ctx, target, filter, update)
		} else {
			res, err = e.store.UpdateMany(ctx, target, filter, update)
		}
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", req.Kind(), err)
		}
		out := map[string]any{
			"matchedCount":  res.MatchedCount,
			"modifiedCount": res.ModifiedCount,
		}
		if res.UpsertedID != nil {
			out["upsertedId"] = res.UpsertedID
		}
		return out, nil

	case operation.DeleteOne, operation.DeleteMany:
		raw := req.Filter()
		if raw == nil {
			return nil, fmt.Errorf("filter is required for %s, pass {} to match every document", req.Kind())
		}
		filter, err := docstore.ParseDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		if filter == nil {
			filter = docstore.Document{}
		}
		var n int64
		if req.Kind() == operation.DeleteOne {
			n, err = e.store.DeleteOne(ctx, target, filter)
		} else {
			n, err = e.store.DeleteMany(ctx, target, filter)
		}
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", req.Kind(), err)
		}
		return map[string]any{"deletedCount": n}, nil

	case operation.CreateCollection:
		if err := e.store.CreateCollection(ctx, target); err != nil {
			return nil, fmt.Errorf("createCollection failed: %w", err)
		}
		return map[string]any{"created": target}, nil

	case operation.CreateIndex:
		spec, err := indexSpec(req)
		if err != nil {
			return nil, err
		}
		name, err := e.store.CreateIndex(ctx, target, spec)
		if err != nil {
			return nil, fmt.Errorf("createIndex failed: %w", err)
		}
		return map[string]any{"indexName": name}, nil
	}

	return nil, fmt.Errorf("unsupported operation %q", req.Kind())
}

func (e *Executor) findOptions(req operation.Request) (docstore.FindOptions, error) {
	filter, projection, err := filterAndProjection(req)
	if err != nil {
		return docstore.FindOptions{}, err
	}
	sort, err := docstore.ParseSort(req.Sort())
	if err != nil {
		return docstore.FindOptions{}, fmt.Errorf("invalid sort: %w", err)
	}

	limit := e.defaultLimit
	if l, ok := req.Limit(); ok && l > 0 {
		limit = l
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}
	skip, _ := req.Skip()

	return docstore.FindOptions{
		Filter:     filter,
		Projection: projection,
		Sort:       sort,
		Skip:       skip,
		Limit:      limit,
	}, nil
}

func filterAndProjection(req operation.Request) (docstore.Document, docstore.Document, error) {
	filter, err := docstore.ParseDocument(req.Filter())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid filter: %w", err)
	}
	projection, err := docstore.ParseDocument(req.Projection())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid projection: %w", err)
	}
	return filter, projection, nil
}

func filterAndUpdate(req operation.Request) (docstore.Document, docstore.Document, error) {
	rawFilter, rawUpdate := req.Filter(), req.Update()
	if rawFilter == nil {
		return nil, nil, fmt.Errorf("filter is required for %s", req.Kind())
	}
	if rawUpdate == nil {
		return nil, nil, fmt.Errorf("update is required for %s", req.Kind())
	}
	filter, err := docstore.ParseDocument(rawFilter)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid filter: %w", err)
	}
	update, err := docstore.ParseDocument(rawUpdate)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid update: %w", err)
	}
	for key := range update {
		if !strings.HasPrefix(key, "$") {
			return nil, nil, fmt.Errorf("update must use operators such as $set, found field %q", key)
		}
	}
	return filter, update, nil
}

// indexOptions are the index options the model may pass.
type indexOptions struct {
	Unique bool   `json:"unique"`
	Name   string `json:"name"`
}

func indexSpec(req operation.Request) (docstore.IndexSpec, error) {
	keys, err := docstore.ParseSort(req.Keys())
	if err != nil {
		return docstore.IndexSpec{}, fmt.Errorf("invalid keys: %w", err)
	}
	if len(keys) == 0 {
		return docstore.IndexSpec{}, fmt.Errorf("keys are required for createIndex")
	}
	var opts indexOptions
	if raw := req.Options(); raw != nil {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return docstore.IndexSpec{}, fmt.Errorf("invalid options: %w", err)
		}
	}
	return docstore.IndexSpec{Keys: keys, Unique: opts.Unique, Name: opts.Name}, nil
}

func documents(docs []docstore.Document) map[string]any {
	if docs == nil {
		docs = []docstore.Document{}
	}
	return map[string]any{"documents": docs, "count": len(docs)}
}
