package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Documents are copied on the way in and on
// the way out, so callers never share state with the store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	docs    []Document
	indexes []IndexSpec
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

// collection returns the named collection, creating it when create is set.
// Caller holds the appropriate lock.
func (m *Memory) collection(name string, create bool) *memCollection {
	c, ok := m.collections[name]
	if !ok && create {
		c = &memCollection{}
		m.collections[name] = c
	}
	return c
}

func (m *Memory) filtered(c *memCollection, filter Document) ([]Document, error) {
	if c == nil {
		return nil, nil
	}
	var out []Document
	for _, d := range c.docs {
		ok, err := matches(d, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	found, err := m.filtered(m.collection(collection, false), opts.Filter)
	if err != nil {
		return nil, err
	}
	found = append([]Document(nil), found...)
	sortDocuments(found, opts.Sort)
	found = window(found, opts.Skip, opts.Limit)

	out := make([]Document, 0, len(found))
	for _, d := range found {
		p, err := project(d, opts.Projection)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) FindOne(ctx context.Context, collection string, filter, projection Document) (Document, error) {
	docs, err := m.Find(ctx, collection, FindOptions{Filter: filter, Projection: projection, Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (m *Memory) Count(ctx context.Context, collection string, filter Document) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	found, err := m.filtered(m.collection(collection, false), filter)
	return int64(len(found)), err
}

func (m *Memory) Aggregate(ctx context.Context, collection string, pipeline []json.RawMessage) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var docs []Document
	if c := m.collection(collection, false); c != nil {
		docs = make([]Document, 0, len(c.docs))
		for _, d := range c.docs {
			docs = append(docs, copyDocument(d))
		}
	}
	m.mu.RUnlock()

	if err := CheckPipeline(pipeline); err != nil {
		return nil, err
	}
	for i, raw := range pipeline {
		var stage map[string]json.RawMessage
		if err := json.Unmarshal(raw, &stage); err != nil || len(stage) != 1 {
			return nil, fmt.Errorf("%w: stage %d must be an object with one operator", ErrInvalidPipeline, i)
		}
		for op, arg := range stage {
			var err error
			docs, err = runStage(docs, op, arg)
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): %w", i, op, err)
			}
		}
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func runStage(docs []Document, op string, arg json.RawMessage) ([]Document, error) {
	switch op {
	case "$match":
		filter, err := ParseDocument(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
		}
		var out []Document
		for _, d := range docs {
			ok, err := matches(d, filter)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, d)
			}
		}
		return out, nil
	case "$sort":
		fields, err := ParseSort(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
		}
		sortDocuments(docs, fields)
		return docs, nil
	case "$skip", "$limit":
		var n int64
		if err := json.Unmarshal(arg, &n); err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s needs a non-negative integer", ErrInvalidPipeline, op)
		}
		if op == "$skip" {
			return window(docs, n, 0), nil
		}
		return window(docs, 0, n), nil
	case "$project":
		projection, err := ParseDocument(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPipeline, err)
		}
		out := make([]Document, 0, len(docs))
		for _, d := range docs {
			p, err := project(d, projection)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	case "$count":
		var field string
		if err := json.Unmarshal(arg, &field); err != nil || field == "" || strings.HasPrefix(field, "$") {
			return nil, fmt.Errorf("%w: $count needs a field name", ErrInvalidPipeline)
		}
		return []Document{{field: float64(len(docs))}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported stage %s", ErrInvalidPipeline, op)
	}
}

func window(docs []Document, skip, limit int64) []Document {
	if skip >= int64(len(docs)) {
		return nil
	}
	docs = docs[skip:]
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

func (m *Memory) ListCollections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) InsertOne(ctx context.Context, collection string, doc Document) (any, error) {
	ids, err := m.InsertMany(ctx, collection, []Document{doc})
	if err != nil {
		return nil, err
	}
	return ids[0], nil
}

// InsertMany is all-or-nothing: a duplicate key anywhere in the batch
// inserts nothing.
func (m *Memory) InsertMany(ctx context.Context, collection string, docs []Document) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents to insert")
	}

	prepared := make([]Document, 0, len(docs))
	ids := make([]any, 0, len(docs))
	for _, d := range docs {
		cp := copyDocument(d)
		if cp == nil {
			cp = Document{}
		}
		if _, ok := cp["_id"]; !ok {
			cp["_id"] = uuid.NewString()
		}
		prepared = append(prepared, cp)
		ids = append(ids, cp["_id"])
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection, true)
	candidate := append(append([]Document(nil), c.docs...), prepared...)
	if err := checkUnique(candidate, c.indexes); err != nil {
		return nil, err
	}
	c.docs = candidate
	return ids, nil
}

func (m *Memory) UpdateOne(ctx context.Context, collection string, filter, update Document) (UpdateResult, error) {
	return m.update(ctx, collection, filter, update, false)
}

func (m *Memory) UpdateMany(ctx context.Context, collection string, filter, update Document) (UpdateResult, error) {
	return m.update(ctx, collection, filter, update, true)
}

func (m *Memory) update(ctx context.Context, collection string, filter, update Document, many bool) (UpdateResult, error) {
	var res UpdateResult
	if err := ctx.Err(); err != nil {
		return res, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection, false)
	if c == nil {
		return res, nil
	}

	next := make([]Document, len(c.docs))
	copy(next, c.docs)
	for i, d := range c.docs {
		ok, err := matches(d, filter)
		if err != nil {
			return UpdateResult{}, err
		}
		if !ok {
			continue
		}
		res.MatchedCount++

		updated := copyDocument(d)
		changed, err := applyUpdate(updated, update)
		if err != nil {
			return UpdateResult{}, err
		}
		if changed {
			next[i] = updated
			res.ModifiedCount++
		}
		if !many {
			break
		}
	}

	if res.ModifiedCount > 0 {
		if err := checkUnique(next, c.indexes); err != nil {
			return UpdateResult{}, err
		}
		c.docs = next
	}
	return res, nil
}

func (m *Memory) DeleteOne(ctx context.Context, collection string, filter Document) (int64, error) {
	return m.delete(ctx, collection, filter, false)
}

func (m *Memory) DeleteMany(ctx context.Context, collection string, filter Document) (int64, error) {
	return m.delete(ctx, collection, filter, true)
}

func (m *Memory) delete(ctx context.Context, collection string, filter Document, many bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection, false)
	if c == nil {
		return 0, nil
	}

	var deleted int64
	kept := c.docs[:0:0]
	for _, d := range c.docs {
		if many || deleted == 0 {
			ok, err := matches(d, filter)
			if err != nil {
				return 0, err
			}
			if ok {
				deleted++
				continue
			}
		}
		kept = append(kept, d)
	}
	c.docs = kept
	return deleted, nil
}

func (m *Memory) CreateCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	m.collections[name] = &memCollection{}
	return nil
}

func (m *Memory) CreateIndex(ctx context.Context, collection string, spec IndexSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(spec.Keys) == 0 {
		return "", fmt.Errorf("%w: keys are required", ErrInvalidIndex)
	}
	if spec.Name == "" {
		spec.Name = IndexName(spec.Keys)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection, true)
	for _, idx := range c.indexes {
		if idx.Name == spec.Name {
			return idx.Name, nil
		}
	}
	if spec.Unique {
		if err := checkUnique(c.docs, []IndexSpec{spec}); err != nil {
			return "", err
		}
	}
	c.indexes = append(c.indexes, spec)
	return spec.Name, nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}

// checkUnique verifies _id and every unique index over docs.
func checkUnique(docs []Document, indexes []IndexSpec) error {
	specs := append([]IndexSpec{{Name: "_id_", Keys: []SortField{{Field: "_id", Order: 1}}, Unique: true}}, indexes...)
	for _, spec := range specs {
		if !spec.Unique {
			continue
		}
		seen := make(map[string]struct{}, len(docs))
		for _, d := range docs {
			key := make([]any, len(spec.Keys))
			for i, k := range spec.Keys {
				v, _ := lookup(d, k.Field)
				key[i] = normalize(v)
			}
			enc, err := json.Marshal(key)
			if err != nil {
				return err
			}
			if _, dup := seen[string(enc)]; dup {
				return fmt.Errorf("%w: index %s, key %s", ErrDuplicateKey, spec.Name, enc)
			}
			seen[string(enc)] = struct{}{}
		}
	}
	return nil
}
