// Package gemini provides image and video generation backed by the Gemini
// API through google.golang.org/genai.
//
// Images come from a Gemini image model via GenerateContent; the first inline
// image part of the first candidate is returned. Videos come from Veo: the
// generation operation is polled until done and the first generated video is
// downloaded with the client's API key.
package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/laith/pkg/provider/media"
)

// Default models and polling cadence.
const (
	DefaultImageModel   = "gemini-2.5-flash-image"
	DefaultVideoModel   = "veo-3.1-fast-generate-preview"
	DefaultPollInterval = 10 * time.Second
	DefaultResolution   = "720p"
)

// ProgressMessage is reported on every poll of a running video operation.
const ProgressMessage = "Laith is directing your scene..."

// api is the subset of the genai client used here.
type api interface {
	generateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	generateVideos(ctx context.Context, model, prompt string, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	getVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
	download(ctx context.Context, v *genai.GeneratedVideo) ([]byte, error)
}

type clientAPI struct{ c *genai.Client }

func (a clientAPI) generateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return a.c.Models.GenerateContent(ctx, model, contents, cfg)
}

func (a clientAPI) generateVideos(ctx context.Context, model, prompt string, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return a.c.Models.GenerateVideos(ctx, model, prompt, nil, cfg)
}

func (a clientAPI) getVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return a.c.Operations.GetVideosOperation(ctx, op, nil)
}

func (a clientAPI) download(ctx context.Context, v *genai.GeneratedVideo) ([]byte, error) {
	return a.c.Files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(v), nil)
}

// Provider implements [media.ImageProvider] and [media.VideoProvider].
type Provider struct {
	api          api
	imageModel   string
	videoModel   string
	pollInterval time.Duration
}

type config struct {
	imageModel   string
	videoModel   string
	baseURL      string
	pollInterval time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithImageModel overrides [DefaultImageModel].
func WithImageModel(m string) Option {
	return func(c *config) {
		if m != "" {
			c.imageModel = m
		}
	}
}

// WithVideoModel overrides [DefaultVideoModel].
func WithVideoModel(m string) Option {
	return func(c *config) {
		if m != "" {
			c.videoModel = m
		}
	}
}

// WithPollInterval overrides [DefaultPollInterval].
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// New constructs a Provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	cfg := &config{
		imageModel:   DefaultImageModel,
		videoModel:   DefaultVideoModel,
		pollInterval: DefaultPollInterval,
	}
	for _, o := range opts {
		o(cfg)
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{
		api:          clientAPI{c: client},
		imageModel:   cfg.imageModel,
		videoModel:   cfg.videoModel,
		pollInterval: cfg.pollInterval,
	}, nil
}

// GenerateImage implements [media.ImageProvider].
func (p *Provider) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.Image, error) {
	aspect := req.Aspect
	if aspect == "" {
		aspect = media.DefaultAspect
	}
	cfg := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: string(aspect)},
	}
	resp, err := p.api.generateContent(ctx, p.imageModel, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate image: %w", err)
	}
	img := firstImage(resp)
	if img == nil {
		return nil, media.ErrNoImage
	}
	return img, nil
}

func firstImage(resp *genai.GenerateContentResponse) *media.Image {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return &media.Image{Data: part.InlineData.Data, MIMEType: mime}
	}
	return nil
}

// GenerateVideo implements [media.VideoProvider].
func (p *Provider) GenerateVideo(ctx context.Context, req media.VideoRequest, progress media.ProgressFunc) (*media.Video, error) {
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     req.Resolution,
		AspectRatio:    string(req.Aspect),
	}
	if cfg.Resolution == "" {
		cfg.Resolution = DefaultResolution
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = string(media.AspectLandscape)
	}

	op, err := p.api.generateVideos(ctx, p.videoModel, req.Prompt, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate video: %w", err)
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		if progress != nil {
			progress(ProgressMessage)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if op, err = p.api.getVideosOperation(ctx, op); err != nil {
			return nil, fmt.Errorf("gemini: poll video operation: %w", err)
		}
	}

	if op.Error != nil {
		return nil, fmt.Errorf("gemini: video operation failed: %v", op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, media.ErrNoVideo
	}
	gv := op.Response.GeneratedVideos[0]
	mime := gv.Video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	if len(gv.Video.VideoBytes) > 0 {
		return &media.Video{Data: gv.Video.VideoBytes, MIMEType: mime}, nil
	}
	data, err := p.api.download(ctx, gv)
	if err != nil {
		return nil, fmt.Errorf("gemini: download video: %w", err)
	}
	return &media.Video{Data: data, MIMEType: mime}, nil
}

var (
	_ media.ImageProvider = (*Provider)(nil)
	_ media.VideoProvider = (*Provider)(nil)
)
