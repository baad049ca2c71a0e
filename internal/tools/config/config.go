// Package config defines tool-specific configuration types.
// These types are defined here to avoid import cycles between config and tools packages.
package config

import "github.com/roelfdiedericks/toolgate/internal/imagegen"

// ToolsConfig contains tool-specific settings
type ToolsConfig struct {
	Web   WebToolsConfig   `json:"web" toml:"web" yaml:"web"`
	Query QueryToolsConfig `json:"query" toml:"query" yaml:"query"`
	Image ImageToolsConfig `json:"image" toml:"image" yaml:"image"`
}

// WebToolsConfig contains web tool settings
type WebToolsConfig struct {
	BraveAPIKey    string `json:"braveApiKey" toml:"brave_api_key" yaml:"braveApiKey"`
	SearchURL      string `json:"searchUrl,omitempty" toml:"search_url" yaml:"searchUrl,omitempty"`       // Brave endpoint override
	FetchMaxLength int    `json:"fetchMaxLength,omitempty" toml:"fetch_max_length" yaml:"fetchMaxLength"` // default: 10000
	RedisURL       string `json:"redisUrl,omitempty" toml:"redis_url" yaml:"redisUrl,omitempty"`          // search result cache, empty = no cache
	CacheTTL       int    `json:"cacheTtl,omitempty" toml:"cache_ttl" yaml:"cacheTtl,omitempty"`          // seconds, default: 600
}

// QueryToolsConfig contains limits for the data query tools
type QueryToolsConfig struct {
	DefaultLimit int64 `json:"defaultLimit,omitempty" toml:"default_limit" yaml:"defaultLimit,omitempty"` // find default (50)
	MaxLimit     int64 `json:"maxLimit,omitempty" toml:"max_limit" yaml:"maxLimit,omitempty"`             // find ceiling (500)
	MaxRows      int   `json:"maxRows,omitempty" toml:"max_rows" yaml:"maxRows,omitempty"`                // sql_query row cap (500)
}

// ImageToolsConfig holds default generation settings. A turn may carry its
// own settings, which take precedence.
type ImageToolsConfig struct {
	Enabled bool              `json:"enabled" toml:"enabled" yaml:"enabled"`
	Default imagegen.Settings `json:"default" toml:"default" yaml:"default"`
}
