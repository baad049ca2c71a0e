package imagegen

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/roelfdiedericks/xai-go"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/media"
)

const defaultXAIModel = "grok-2-image"

// XAI generates images with xAI's image API. The gRPC client is created on
// first use.
type XAI struct {
	settings Settings
	http     *http.Client

	clientMu sync.Mutex
	client   *xai.Client
}

// NewXAI returns a provider; no connection is made until the first call.
func NewXAI(s Settings) *XAI {
	if s.Model == "" {
		s.Model = defaultXAIModel
	}
	return &XAI{settings: s, http: &http.Client{Timeout: media.DownloadTimeout}}
}

func (p *XAI) Name() string  { return ProviderXAI }
func (p *XAI) Model() string { return p.settings.Model }

func (p *XAI) getClient() (*xai.Client, error) {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	client, err := xai.New(xai.Config{
		APIKey: xai.NewSecureString(p.settings.APIKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create xai client: %w", err)
	}
	p.client = client
	L_debug("imagegen: xai client initialized", "model", p.settings.Model)
	return p.client, nil
}

func (p *XAI) Generate(ctx context.Context, prompt string) (*Image, error) {
	return p.run(ctx, xai.NewImageRequest(prompt).WithModel(p.settings.Model).WithCount(1))
}

// Edit passes the source as a data URI input image.
func (p *XAI) Edit(ctx context.Context, prompt string, source []byte) (*Image, error) {
	img, err := media.Normalize(source)
	if err != nil {
		return nil, fmt.Errorf("invalid source image: %w", err)
	}
	req := xai.NewImageRequest(prompt).
		WithModel(p.settings.Model).
		WithCount(1).
		WithInputImage(img.DataURI())
	return p.run(ctx, req)
}

func (p *XAI) run(ctx context.Context, req *xai.ImageRequest) (*Image, error) {
	client, err := p.getClient()
	if err != nil {
		return nil, err
	}

	resp, err := client.GenerateImage(ctx, req)
	if err != nil {
		L_error("imagegen: xai call failed", "error", err, "model", p.settings.Model)
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	for _, img := range resp.Images {
		if img.URL == "" {
			continue
		}
		data, err := media.Download(ctx, p.http, img.URL, media.MaxBytes)
		if err != nil {
			return nil, err
		}
		return &Image{Data: data}, nil
	}
	return nil, fmt.Errorf("no images generated")
}
