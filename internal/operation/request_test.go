package operation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindSets(t *testing.T) {
	for _, k := range ReadKinds {
		assert.True(t, k.IsRead(), k)
		assert.False(t, k.IsWrite(), k)
		assert.True(t, k.Known(), k)
	}
	for _, k := range WriteKinds {
		assert.True(t, k.IsWrite(), k)
		assert.False(t, k.IsRead(), k)
	}
	assert.False(t, Kind("drop").Known())
	assert.False(t, Kind("Find").Known())
}

func TestParse(t *testing.T) {
	req, err := Parse(json.RawMessage(`{
		"operation": "find",
		"collection": " contacts ",
		"filter": {"name": "Ann"},
		"sort": {"age": -1},
		"limit": 10,
		"skip": 2
	}`))
	require.NoError(t, err)

	assert.Equal(t, Find, req.Kind())
	assert.Equal(t, "contacts", req.Target())
	assert.JSONEq(t, `{"name":"Ann"}`, string(req.Filter()))
	assert.JSONEq(t, `{"age":-1}`, string(req.Sort()))
	assert.Nil(t, req.Update())

	limit, ok := req.Limit()
	assert.True(t, ok)
	assert.EqualValues(t, 10, limit)
	skip, ok := req.Skip()
	assert.True(t, ok)
	assert.EqualValues(t, 2, skip)
	assert.Equal(t, "find(contacts)", req.String())
}

func TestParseNullFieldsAreAbsent(t *testing.T) {
	req, err := Parse(json.RawMessage(`{"operation":"count","collection":"x","filter":null}`))
	require.NoError(t, err)
	assert.Nil(t, req.Filter())
	_, ok := req.Limit()
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"not json", `{`, "invalid arguments"},
		{"missing operation", `{"collection":"x"}`, "operation is required"},
		{"filter array", `{"operation":"find","collection":"x","filter":[]}`, "filter must be an object"},
		{"update string", `{"operation":"updateOne","collection":"x","update":"y"}`, "update must be an object"},
		{"pipeline object", `{"operation":"aggregate","collection":"x","pipeline":{}}`, "pipeline must be an array"},
		{"negative limit", `{"operation":"find","collection":"x","limit":-1}`, "limit must not be negative"},
		{"negative skip", `{"operation":"find","collection":"x","skip":-3}`, "skip must not be negative"},
		{"limit string", `{"operation":"find","collection":"x","limit":"5"}`, "invalid arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(json.RawMessage(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArguments))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseUnknownKindIsNotAParseError(t *testing.T) {
	req, err := Parse(json.RawMessage(`{"operation":"dropDatabase","collection":"x"}`))
	require.NoError(t, err)
	assert.False(t, req.Kind().Known())
}

func TestRequestIsImmutable(t *testing.T) {
	filter := json.RawMessage(`{"a":1}`)
	limit := int64(5)
	req := New(Find, "x", Payload{Filter: filter, Limit: &limit})

	filter[5] = '9'
	limit = 99
	assert.JSONEq(t, `{"a":1}`, string(req.Filter()))
	got, _ := req.Limit()
	assert.EqualValues(t, 5, got)

	out := req.Filter()
	out[5] = '7'
	assert.JSONEq(t, `{"a":1}`, string(req.Filter()))
}

func TestShapeHelpers(t *testing.T) {
	assert.True(t, IsObject(json.RawMessage(`  {"a":1}`)))
	assert.False(t, IsObject(json.RawMessage(`[1]`)))
	assert.True(t, IsArray(json.RawMessage("\n[1]")))
	assert.False(t, IsArray(nil))
}
