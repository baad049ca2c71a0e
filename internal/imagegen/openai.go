package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/media"
)

const defaultOpenAIModel = "gpt-image-1"

// OpenAI talks to the OpenAI images API or any compatible endpoint.
type OpenAI struct {
	client   *openai.Client
	http     *http.Client
	settings Settings
}

// NewOpenAI builds a client. A BaseURL without a /v1 suffix gets one.
func NewOpenAI(s Settings) *OpenAI {
	config := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		baseURL := s.BaseURL
		if !strings.HasSuffix(baseURL, "/v1") && !strings.HasSuffix(baseURL, "/v1/") {
			baseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
		}
		config.BaseURL = baseURL
	}
	if s.Model == "" {
		s.Model = defaultOpenAIModel
	}
	httpClient := &http.Client{Timeout: media.DownloadTimeout}
	config.HTTPClient = httpClient

	L_debug("imagegen: openai provider created", "model", s.Model, "baseUrl", config.BaseURL)
	return &OpenAI{client: openai.NewClientWithConfig(config), http: httpClient, settings: s}
}

func (p *OpenAI) Name() string  { return ProviderOpenAI }
func (p *OpenAI) Model() string { return p.settings.Model }

// dall-e models default to URL responses; gpt-image models always return
// base64 and reject the response_format field.
func (p *OpenAI) responseFormat() string {
	if strings.HasPrefix(p.settings.Model, "dall-e") {
		return openai.CreateImageResponseFormatB64JSON
	}
	return ""
}

func (p *OpenAI) Generate(ctx context.Context, prompt string) (*Image, error) {
	L_debug("imagegen: openai generate", "model", p.settings.Model, "prompt", preview(prompt))

	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.settings.Model,
		N:              1,
		Size:           p.settings.Size,
		Quality:        p.settings.Quality,
		ResponseFormat: p.responseFormat(),
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	return p.decode(ctx, resp)
}

// Edit sends source as a PNG. The edits endpoint takes a multipart file, so
// the normalised image is staged in a temp file.
func (p *OpenAI) Edit(ctx context.Context, prompt string, source []byte) (*Image, error) {
	img, err := media.Normalize(source)
	if err != nil {
		return nil, fmt.Errorf("invalid source image: %w", err)
	}

	f, err := os.CreateTemp("", ".toolgate-edit-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to stage source image: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(img.Data); err != nil {
		return nil, fmt.Errorf("failed to stage source image: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to stage source image: %w", err)
	}

	L_debug("imagegen: openai edit", "model", p.settings.Model, "prompt", preview(prompt), "sourceBytes", img.Size())

	resp, err := p.client.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          f,
		Prompt:         prompt,
		Model:          p.settings.Model,
		N:              1,
		Size:           p.settings.Size,
		ResponseFormat: p.responseFormat(),
	})
	if err != nil {
		return nil, fmt.Errorf("image edit failed: %w", err)
	}
	return p.decode(ctx, resp)
}

func (p *OpenAI) decode(ctx context.Context, resp openai.ImageResponse) (*Image, error) {
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no images generated")
	}
	item := resp.Data[0]
	out := &Image{RevisedPrompt: item.RevisedPrompt}

	switch {
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data: %w", err)
		}
		out.Data = data
	case item.URL != "":
		data, err := media.Download(ctx, p.http, item.URL, media.MaxBytes)
		if err != nil {
			return nil, err
		}
		out.Data = data
	default:
		return nil, fmt.Errorf("provider returned an empty image")
	}
	return out, nil
}
