package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	_, err := m.InsertMany(context.Background(), "contacts", []Document{
		{"_id": "a", "name": "Ann", "age": 31.0, "tags": []any{"family"}, "address": map[string]any{"city": "Cape Town"}},
		{"_id": "b", "name": "Bob", "age": 45.0, "tags": []any{"work"}},
		{"_id": "c", "name": "Cid", "age": 22.0, "address": map[string]any{"city": "Durban"}},
	})
	require.NoError(t, err)
	return m
}

func ids(docs []Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d["_id"]
	}
	return out
}

func TestFindFilters(t *testing.T) {
	m := seed(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter string
		want   []any
	}{
		{"all", `{}`, []any{"a", "b", "c"}},
		{"equality", `{"name":"Bob"}`, []any{"b"}},
		{"numeric int matches float", `{"age":31}`, []any{"a"}},
		{"gt", `{"age":{"$gt":30}}`, []any{"a", "b"}},
		{"range", `{"age":{"$gte":22,"$lt":40}}`, []any{"a", "c"}},
		{"ne", `{"name":{"$ne":"Ann"}}`, []any{"b", "c"}},
		{"in", `{"name":{"$in":["Ann","Cid"]}}`, []any{"a", "c"}},
		{"nin", `{"name":{"$nin":["Ann","Cid"]}}`, []any{"b"}},
		{"exists", `{"address":{"$exists":true}}`, []any{"a", "c"}},
		{"not exists", `{"address":{"$exists":false}}`, []any{"b"}},
		{"dotted", `{"address.city":"Durban"}`, []any{"c"}},
		{"array contains", `{"tags":"work"}`, []any{"b"}},
		{"regex", `{"name":{"$regex":"^a","$options":"i"}}`, []any{"a"}},
		{"or", `{"$or":[{"name":"Ann"},{"age":{"$lt":25}}]}`, []any{"a", "c"}},
		{"and", `{"$and":[{"age":{"$gt":20}},{"age":{"$lt":40}}]}`, []any{"a", "c"}},
		{"nor", `{"$nor":[{"name":"Ann"},{"name":"Bob"}]}`, []any{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := ParseDocument(json.RawMessage(tt.filter))
			require.NoError(t, err)
			docs, err := m.Find(ctx, "contacts", FindOptions{Filter: filter})
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(docs))
		})
	}
}

func TestFindInvalidOperator(t *testing.T) {
	m := seed(t)
	_, err := m.Find(context.Background(), "contacts", FindOptions{Filter: Document{"age": map[string]any{"$near": 1.0}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestFindSortSkipLimitProjection(t *testing.T) {
	m := seed(t)
	docs, err := m.Find(context.Background(), "contacts", FindOptions{
		Sort:       []SortField{{Field: "age", Order: -1}},
		Skip:       1,
		Limit:      1,
		Projection: Document{"name": 1.0},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, Document{"_id": "a", "name": "Ann"}, docs[0])

	docs, err = m.Find(context.Background(), "contacts", FindOptions{
		Filter:     Document{"_id": "c"},
		Projection: Document{"address": 0.0, "_id": 0.0},
	})
	require.NoError(t, err)
	assert.Equal(t, Document{"name": "Cid", "age": 22.0}, docs[0])
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	m := seed(t)
	ctx := context.Background()

	doc, err := m.FindOne(ctx, "contacts", Document{"_id": "a"}, nil)
	require.NoError(t, err)
	doc["name"] = "Mutated"
	doc["address"].(map[string]any)["city"] = "Nowhere"

	again, err := m.FindOne(ctx, "contacts", Document{"_id": "a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ann", again["name"])
	assert.Equal(t, "Cape Town", again["address"].(map[string]any)["city"])
}

func TestFindOneMissing(t *testing.T) {
	m := seed(t)
	doc, err := m.FindOne(context.Background(), "contacts", Document{"name": "Zed"}, nil)
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = m.FindOne(context.Background(), "nope", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestInsertAssignsIDs(t *testing.T) {
	m := NewMemory()
	id, err := m.InsertOne(context.Background(), "ai_notes", Document{"text": "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	n, err := m.Count(context.Background(), "ai_notes", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = m.InsertOne(context.Background(), "ai_notes", Document{"_id": id})
	assert.True(t, errors.Is(err, ErrDuplicateKey))
}

func TestUpdate(t *testing.T) {
	m := seed(t)
	ctx := context.Background()

	res, err := m.UpdateMany(ctx, "contacts", Document{"age": map[string]any{"$gt": 30.0}},
		Document{"$inc": map[string]any{"age": 1.0}, "$push": map[string]any{"tags": "checked"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.MatchedCount)
	assert.EqualValues(t, 2, res.ModifiedCount)

	doc, err := m.FindOne(ctx, "contacts", Document{"_id": "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 46.0, doc["age"])
	assert.Equal(t, []any{"work", "checked"}, doc["tags"])

	res, err = m.UpdateOne(ctx, "contacts", Document{"_id": "c"}, Document{"$set": map[string]any{"name": "Cid"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.MatchedCount)
	assert.EqualValues(t, 0, res.ModifiedCount)

	res, err = m.UpdateOne(ctx, "contacts", Document{"_id": "c"}, Document{"$unset": map[string]any{"address": ""}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.ModifiedCount)
}

func TestUpdateRejectsReplacementDocuments(t *testing.T) {
	m := seed(t)
	_, err := m.UpdateOne(context.Background(), "contacts", Document{"_id": "a"}, Document{"name": "X"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidUpdate))

	_, err = m.UpdateOne(context.Background(), "contacts", Document{"_id": "a"}, Document{"$set": map[string]any{"_id": "z"}})
	assert.True(t, errors.Is(err, ErrInvalidUpdate))
}

func TestDelete(t *testing.T) {
	m := seed(t)
	ctx := context.Background()

	n, err := m.DeleteOne(ctx, "contacts", Document{"age": map[string]any{"$gt": 0.0}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = m.DeleteMany(ctx, "contacts", Document{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := m.Count(ctx, "contacts", nil)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestAggregate(t *testing.T) {
	m := seed(t)
	pipeline, err := ParsePipeline(json.RawMessage(`[
		{"$match": {"age": {"$gte": 25}}},
		{"$sort": {"age": 1}},
		{"$project": {"name": 1, "_id": 0}}
	]`))
	require.NoError(t, err)

	docs, err := m.Aggregate(context.Background(), "contacts", pipeline)
	require.NoError(t, err)
	assert.Equal(t, []Document{{"name": "Ann"}, {"name": "Bob"}}, docs)

	pipeline, err = ParsePipeline(json.RawMessage(`[{"$skip": 1}, {"$count": "total"}]`))
	require.NoError(t, err)
	docs, err = m.Aggregate(context.Background(), "contacts", pipeline)
	require.NoError(t, err)
	assert.Equal(t, []Document{{"total": 2.0}}, docs)

	_, err = ParsePipeline(json.RawMessage(`[{"$lookup": {}}]`))
	assert.True(t, errors.Is(err, ErrInvalidPipeline))

	_, err = m.Aggregate(context.Background(), "contacts", []json.RawMessage{json.RawMessage(`{"$out": "chats"}`)})
	assert.True(t, errors.Is(err, ErrInvalidPipeline))
}

func TestPipelineRejectsWritingStages(t *testing.T) {
	tests := []string{
		`[{"$match": {}}, {"$out": "chats"}]`,
		`[{"$merge": {"into": "settings"}}]`,
		`[{"$unionWith": "users"}]`,
		`[{"$match": {}, "$out": "chats"}]`,
		`[{}]`,
		`[1]`,
	}
	for _, raw := range tests {
		_, err := ParsePipeline(json.RawMessage(raw))
		assert.True(t, errors.Is(err, ErrInvalidPipeline), raw)
	}

	stages, err := ParsePipeline(json.RawMessage(`[{"$match": {}}, {"$limit": 2}]`))
	require.NoError(t, err)
	assert.Len(t, stages, 2)
}

func TestCollectionsAndIndexes(t *testing.T) {
	m := seed(t)
	ctx := context.Background()

	require.NoError(t, m.CreateCollection(ctx, "ai_log"))
	assert.True(t, errors.Is(m.CreateCollection(ctx, "ai_log"), ErrCollectionExists))

	names, err := m.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai_log", "contacts"}, names)

	name, err := m.CreateIndex(ctx, "contacts", IndexSpec{Keys: []SortField{{Field: "name", Order: 1}}, Unique: true})
	require.NoError(t, err)
	assert.Equal(t, "name_1", name)

	_, err = m.InsertOne(ctx, "contacts", Document{"name": "Ann"})
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	_, err = m.UpdateOne(ctx, "contacts", Document{"_id": "b"}, Document{"$set": map[string]any{"name": "Ann"}})
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	_, err = m.CreateIndex(ctx, "contacts", IndexSpec{Keys: []SortField{{Field: "missing", Order: 1}}, Unique: true})
	assert.True(t, errors.Is(err, ErrDuplicateKey), "three documents share the missing key")
}

func TestCancelledContext(t *testing.T) {
	m := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Find(ctx, "contacts", FindOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.InsertOne(ctx, "contacts", Document{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseSortKeepsOrder(t *testing.T) {
	fields, err := ParseSort(json.RawMessage(`{"b": -1, "a": "asc", "c": 1}`))
	require.NoError(t, err)
	assert.Equal(t, []SortField{{"b", -1}, {"a", 1}, {"c", 1}}, fields)

	_, err = ParseSort(json.RawMessage(`{"a": 0}`))
	assert.Error(t, err)
	_, err = ParseSort(json.RawMessage(`[1]`))
	assert.Error(t, err)

	assert.Equal(t, "b_-1_a_1", IndexName([]SortField{{"b", -1}, {"a", 1}}))
}
