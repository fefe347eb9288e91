// Package openai provides image generation backed by the OpenAI Images API.
//
// Video generation is not offered; use the gemini media provider for that.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/laith/pkg/provider/media"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-image-1"

// Provider implements [media.ImageProvider] using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Provider. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// GenerateImage implements [media.ImageProvider].
func (p *Provider) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.Image, error) {
	params := oai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  oai.ImageModel(p.model),
		N:      oai.Int(1),
		Size:   sizeFor(req.Aspect),
	}
	if strings.HasPrefix(p.model, "dall-e") {
		params.ResponseFormat = oai.ImageGenerateParamsResponseFormatB64JSON
	}
	resp, err := p.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: generate image: %w", err)
	}
	for _, img := range resp.Data {
		if img.B64JSON == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("openai: decode image: %w", err)
		}
		return &media.Image{Data: data, MIMEType: "image/png"}, nil
	}
	return nil, media.ErrNoImage
}

func sizeFor(a media.Aspect) oai.ImageGenerateParamsSize {
	switch a {
	case media.AspectLandscape:
		return oai.ImageGenerateParamsSize1536x1024
	case media.AspectPortrait:
		return oai.ImageGenerateParamsSize1024x1536
	default:
		return oai.ImageGenerateParamsSize1024x1024
	}
}

var _ media.ImageProvider = (*Provider)(nil)
