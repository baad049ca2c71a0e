package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ParseDocument decodes a JSON object. Empty input yields nil.
func ParseDocument(raw json.RawMessage) (Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	return doc, nil
}

// ParseDocuments decodes a JSON array of objects.
func ParseDocuments(raw json.RawMessage) ([]Document, error) {
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("expected a JSON array of objects: %w", err)
	}
	for i, d := range docs {
		if d == nil {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
	}
	return docs, nil
}

// PipelineStages are the aggregate stages every backend accepts. Stages
// that write ($out, $merge) or read other collections are not among them.
var PipelineStages = []string{"$match", "$sort", "$skip", "$limit", "$project", "$count"}

// ParsePipeline splits a JSON array into its stages, keeping each stage's
// raw bytes so key order inside $sort survives.
func ParsePipeline(raw json.RawMessage) ([]json.RawMessage, error) {
	var stages []json.RawMessage
	if err := json.Unmarshal(raw, &stages); err != nil {
		return nil, fmt.Errorf("%w: expected an array of stages: %v", ErrInvalidPipeline, err)
	}
	if err := CheckPipeline(stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// CheckPipeline rejects any stage that is not a single-operator object
// naming one of PipelineStages.
func CheckPipeline(stages []json.RawMessage) error {
	for i, s := range stages {
		if t := bytes.TrimSpace(s); len(t) == 0 || t[0] != '{' {
			return fmt.Errorf("%w: stage %d is not an object", ErrInvalidPipeline, i)
		}
		var stage map[string]json.RawMessage
		if err := json.Unmarshal(s, &stage); err != nil || len(stage) != 1 {
			return fmt.Errorf("%w: stage %d must be an object with one operator", ErrInvalidPipeline, i)
		}
		for op := range stage {
			if !slices.Contains(PipelineStages, op) {
				return fmt.Errorf("%w: stage %d uses %s, allowed stages are %s",
					ErrInvalidPipeline, i, op, strings.Join(PipelineStages, ", "))
			}
		}
	}
	return nil
}

// ParseSort decodes a sort or index key document in key order. Values may be
// 1/-1 or "asc"/"desc".
func ParseSort(raw json.RawMessage) ([]SortField, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("sort must be an object")
	}

	var fields []SortField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string)

		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		order, err := sortOrder(val)
		if err != nil {
			return nil, fmt.Errorf("sort field %q: %w", key, err)
		}
		fields = append(fields, SortField{Field: key, Order: order})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func sortOrder(v any) (int, error) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		switch {
		case f > 0:
			return 1, nil
		case f < 0:
			return -1, nil
		}
	case string:
		switch strings.ToLower(x) {
		case "asc", "ascending":
			return 1, nil
		case "desc", "descending":
			return -1, nil
		}
	}
	return 0, fmt.Errorf("order must be 1, -1, \"asc\" or \"desc\"")
}

// IndexName derives the conventional index name, e.g. "email_1_age_-1".
func IndexName(keys []SortField) string {
	parts := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, k.Field, strconv.Itoa(k.Order))
	}
	return strings.Join(parts, "_")
}
