// Package websearch provides the Brave-backed web search tool.
package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/metrics"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

const (
	DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"
	DefaultCount    = 5
	MaxCount        = 20
	DefaultCacheTTL = 10 * time.Minute
)

// Result is one search hit as returned to the model.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Tool searches the web using Brave Search API
type Tool struct {
	apiKey   string
	endpoint string
	client   *http.Client
	cache    Cache
	cacheTTL time.Duration
}

// Option configures a Tool.
type Option func(*Tool)

// WithEndpoint overrides the Brave endpoint.
func WithEndpoint(endpoint string) Option {
	return func(t *Tool) {
		if endpoint != "" {
			t.endpoint = endpoint
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.client = c }
}

// WithCache caches successful results for ttl (DefaultCacheTTL when zero).
func WithCache(c Cache, ttl time.Duration) Option {
	return func(t *Tool) {
		t.cache = c
		if ttl > 0 {
			t.cacheTTL = ttl
		}
	}
}

// NewTool creates a new web search tool
func NewTool(apiKey string, opts ...Option) *Tool {
	t := &Tool{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string {
	return "web_search"
}

func (t *Tool) Description() string {
	return "Search the web for information. Returns titles, URLs, and snippets from search results."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"count": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Number of results to return (default: %d, max: %d)", DefaultCount, MaxCount),
			},
		},
		"required": []string{"query"},
	}
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (types.Envelope, error) {
	var params struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return types.Envelope{}, fmt.Errorf("invalid input: %w", err)
	}

	query := strings.TrimSpace(params.Query)
	if query == "" {
		return types.Failure("query is required"), nil
	}

	count := params.Count
	if count <= 0 {
		count = DefaultCount
	}
	if count > MaxCount {
		count = MaxCount
	}

	key := cacheKey(query, count)
	if t.cache != nil {
		if cached, ok := t.cache.Get(ctx, key); ok {
			var results []Result
			if err := json.Unmarshal([]byte(cached), &results); err == nil {
				L_debug("web_search: cache hit", "query", query, "results", len(results))
				metrics.MetricHit("web_search", "cache")
				return resultEnvelope(results), nil
			}
		}
		metrics.MetricMiss("web_search", "cache")
	}

	L_debug("web_search: executing", "query", query, "count", count)

	results, env, err := t.search(ctx, query, count)
	if err != nil || env.IsError() {
		return env, err
	}

	if t.cache != nil {
		if data, err := json.Marshal(results); err == nil {
			t.cache.Set(ctx, key, string(data), t.cacheTTL)
		}
	}

	L_debug("web_search: completed", "results", len(results))
	return resultEnvelope(results), nil
}

func (t *Tool) search(ctx context.Context, query string, count int) ([]Result, types.Envelope, error) {
	reqURL, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, types.Envelope{}, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, types.Envelope{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		L_error("web_search: request failed", "error", err)
		return nil, types.Envelope{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, types.Envelope{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		L_error("web_search: API error", "status", resp.StatusCode, "body", string(body))
		return nil, types.Failuref("search API error: %d", resp.StatusCode), nil
	}

	var searchResp BraveSearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, types.Envelope{}, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]Result, 0, count)
	for _, r := range searchResp.Web.Results {
		if len(results) >= count {
			break
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, types.Success(nil), nil
}

func resultEnvelope(results []Result) types.Envelope {
	if results == nil {
		results = []Result{}
	}
	return types.Success(map[string]any{"results": results})
}

func cacheKey(query string, count int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", count, strings.ToLower(query))))
	return "toolgate:websearch:" + hex.EncodeToString(sum[:16])
}

// BraveSearchResponse represents the Brave Search API response
type BraveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}
