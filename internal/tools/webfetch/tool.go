// Package webfetch provides the tool that fetches a page and extracts its
// readable text.
package webfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

const (
	DefaultMaxLength = 10000
	maxRedirects     = 5
	// readability text shorter than this is treated as a failed extraction
	minReadableText = 200
)

// Validator decides whether a URL may be fetched.
type Validator func(ctx context.Context, rawURL string) error

// Tool fetches and extracts readable content from URLs
type Tool struct {
	client    *http.Client
	validate  Validator
	maxLength int
}

// Option configures a Tool.
type Option func(*Tool)

// WithValidator replaces the URL safety check.
func WithValidator(v Validator) Option {
	return func(t *Tool) { t.validate = v }
}

// WithMaxLength sets the default content length limit.
func WithMaxLength(n int) Option {
	return func(t *Tool) {
		if n > 0 {
			t.maxLength = n
		}
	}
}

// NewTool creates a new web fetch tool. Redirect targets go through the
// same URL check as the original request.
func NewTool(opts ...Option) *Tool {
	t := &Tool{
		validate:  ValidateURLSafety,
		maxLength: DefaultMaxLength,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.client = &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			return t.validate(req.Context(), req.URL.String())
		},
	}
	return t
}

func (t *Tool) Name() string {
	return "web_fetch"
}

func (t *Tool) Description() string {
	return "Fetch a web page and extract its readable text content. Some sites with bot protection may block requests - use web_search as fallback."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch",
			},
			"max_length": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum content length to return (default: %d)", t.maxLength),
			},
		},
		"required": []string{"url"},
	}
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (types.Envelope, error) {
	var params struct {
		URL       string `json:"url"`
		MaxLength int    `json:"max_length"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return types.Envelope{}, fmt.Errorf("invalid input: %w", err)
	}
	if params.URL == "" {
		return types.Failure("url is required"), nil
	}

	if err := t.validate(ctx, params.URL); err != nil {
		L_warn("web_fetch: url rejected", "url", params.URL, "error", err)
		return types.FromError(err), nil
	}
	parsedURL, err := url.Parse(params.URL)
	if err != nil {
		return types.Failuref("invalid URL: %v", err), nil
	}

	maxLen := params.MaxLength
	if maxLen <= 0 {
		maxLen = t.maxLength
	}

	L_debug("web_fetch: fetching", "url", params.URL, "maxLength", maxLen)

	page, err := t.fetch(ctx, params.URL, parsedURL)
	if err != nil {
		return types.Envelope{}, err
	}

	content, truncated := truncate(page.content, maxLen)
	L_debug("web_fetch: completed", "url", params.URL, "title", page.title, "chars", len(content), "truncated", truncated)
	return types.Success(map[string]any{
		"title":     page.title,
		"url":       params.URL,
		"content":   content,
		"truncated": truncated,
	}), nil
}

type page struct {
	title   string
	content string
}

func (t *Tool) fetch(ctx context.Context, urlStr string, parsedURL *url.URL) (page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return page{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; toolgate/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := t.client.Do(req)
	if err != nil {
		L_error("web_fetch: request failed", "error", err, "url", urlStr)
		return page{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		L_warn("web_fetch: non-200 status", "status", resp.StatusCode, "url", urlStr)
		return page{}, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return page{}, fmt.Errorf("failed to read response: %w", err)
	}
	bodyStr := string(body)

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		L_debug("web_fetch: non-HTML content", "contentType", contentType, "length", len(bodyStr))
		return page{content: bodyStr}, nil
	}

	article, err := readability.FromReader(strings.NewReader(bodyStr), parsedURL)
	if err == nil && len(strings.TrimSpace(article.TextContent)) >= minReadableText {
		return page{title: article.Title, content: strings.TrimSpace(article.TextContent)}, nil
	}
	if err != nil {
		L_debug("web_fetch: readability failed, converting whole page", "url", urlStr, "error", err)
	}

	markdown, mdErr := htmltomd.ConvertString(bodyStr)
	if mdErr != nil {
		return page{}, fmt.Errorf("failed to extract content: %w", mdErr)
	}
	title := article.Title
	return page{title: title, content: strings.TrimSpace(markdown)}, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
