// Package imagegen generates and edits images through a configured
// provider.
package imagegen

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted in Settings.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderXAI    = "xai"
)

// Settings selects and configures a provider. A missing Settings means
// generation is not available for the turn.
type Settings struct {
	Provider string `json:"provider" toml:"provider" yaml:"provider"`
	APIKey   string `json:"apiKey" toml:"api_key" yaml:"apiKey"`
	BaseURL  string `json:"baseUrl,omitempty" toml:"base_url" yaml:"baseUrl,omitempty"`
	Model    string `json:"model,omitempty" toml:"model" yaml:"model,omitempty"`
	Size     string `json:"size,omitempty" toml:"size" yaml:"size,omitempty"`
	Quality  string `json:"quality,omitempty" toml:"quality" yaml:"quality,omitempty"`
}

// Image is one encoded image returned by a provider.
type Image struct {
	Data          []byte
	RevisedPrompt string
}

// Provider generates new images and edits existing ones.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string) (*Image, error)
	Edit(ctx context.Context, prompt string, source []byte) (*Image, error)
}

// New returns the provider named by s.Provider. An empty provider name
// means openai.
func New(s Settings) (Provider, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("image generation requires an api key")
	}
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAI(s), nil
	case ProviderXAI:
		return NewXAI(s), nil
	default:
		return nil, fmt.Errorf("unknown image provider: %s", s.Provider)
	}
}

func preview(prompt string) string {
	return prompt[:min(50, len(prompt))]
}
