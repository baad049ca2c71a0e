package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// applyJQ runs query over a JSON document. Strings are printed raw, other
// values as compact JSON, one result per line.
func applyJQ(query, data string) (string, error) {
	var input any
	if err := json.Unmarshal([]byte(data), &input); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return "", fmt.Errorf("invalid jq query: %w", err)
	}

	var lines []string
	iter := parsed.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return "", fmt.Errorf("jq error: %w", err)
		}
		if s, ok := v.(string); ok {
			lines = append(lines, s)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		lines = append(lines, string(b))
	}
	return strings.Join(lines, "\n"), nil
}

// filterOutput applies query when one is set.
func filterOutput(query, data string) (string, error) {
	if query == "" {
		return data, nil
	}
	return applyJQ(query, data)
}
