package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jackzampolin/storyboard/internal/assets"
)

// DefaultVideoPrompt is sent for videos whose prompt is empty. The Videos
// API requires one; the conditioning frame carries the content.
const DefaultVideoPrompt = "Animate smoothly from the reference frame, keeping the subjects, framing and style consistent."

const (
	OpenAIRendererType         = "openai"
	openAIDefaultImageModel    = openai.ImageModelGPTImage1
	openAIDefaultVideoModel    = openai.VideoModelSora2
	openAIMaxImageReferences   = 16
	openAIVideoPollIntervalMs  = 5000
	openAIDefaultRenderRPS     = 0.5
	openAIDefaultRenderTimeout = 15 * time.Minute
)

// OpenAIRenderConfig holds configuration for the OpenAI renderer.
type OpenAIRenderConfig struct {
	Name       string
	APIKey     string
	ImageModel string        // "gpt-image-1" (default), "dall-e-3"
	VideoModel string        // "sora-2" (default), "sora-2-pro"
	ImageSize  string        // "1024x1024" (default)
	VideoSize  string        // "1280x720" (default)
	RateLimit  float64       // Requests per second
	Timeout    time.Duration // HTTP timeout
	Assets     *assets.Store // Where returned bytes are written
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIRenderer renders images with the Images API and clips with the
// Videos API. Rendered bytes are written to the asset store.
type OpenAIRenderer struct {
	name       string
	apiKey     string
	imageModel string
	videoModel string
	imageSize  string
	videoSize  string
	rateLimit  float64
	limiter    *RateLimiter
	assets     *assets.Store
	client     openai.Client
}

// NewOpenAIRenderer creates a new OpenAI renderer.
func NewOpenAIRenderer(cfg OpenAIRenderConfig) *OpenAIRenderer {
	if cfg.Name == "" {
		cfg.Name = OpenAIRendererType
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = string(openAIDefaultImageModel)
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = string(openAIDefaultVideoModel)
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = string(openai.ImageGenerateParamsSize1024x1024)
	}
	if cfg.VideoSize == "" {
		cfg.VideoSize = string(openai.VideoSize1280x720)
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = openAIDefaultRenderRPS
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = openAIDefaultRenderTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIRenderer{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		imageModel: cfg.ImageModel,
		videoModel: cfg.VideoModel,
		imageSize:  cfg.ImageSize,
		videoSize:  cfg.VideoSize,
		rateLimit:  cfg.RateLimit,
		limiter:    NewRateLimiter(cfg.RateLimit),
		assets:     cfg.Assets,
		client:     openai.NewClient(opts...),
	}
}

// Name returns the renderer identifier.
func (c *OpenAIRenderer) Name() string {
	return c.name
}

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAIRenderer) RequestsPerSecond() float64 {
	return c.rateLimit
}

// GenerateImage renders a still. With references it uses the edit endpoint
// so the references condition the output.
func (c *OpenAIRenderer) GenerateImage(ctx context.Context, req *ImageRequest) (*RenderResult, error) {
	start := time.Now()
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if c.assets == nil {
		return nil, fmt.Errorf("openai renderer has no asset store")
	}
	size := req.Size
	if size == "" {
		size = c.imageSize
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		resp *openai.ImagesResponse
		err  error
	)
	if len(req.References) == 0 {
		resp, err = c.client.Images.Generate(ctx, openai.ImageGenerateParams{
			Prompt: req.Prompt,
			Model:  openai.ImageModel(c.imageModel),
			N:      openai.Int(1),
			Size:   openai.ImageGenerateParamsSize(size),
		})
	} else {
		files, closeAll, openErr := c.openReferences(ctx, req.References)
		if openErr != nil {
			return nil, openErr
		}
		defer closeAll()
		resp, err = c.client.Images.Edit(ctx, openai.ImageEditParams{
			Image:         openai.ImageEditParamsImageUnion{OfFileArray: files},
			Prompt:        req.Prompt,
			Model:         openai.ImageModel(c.imageModel),
			N:             openai.Int(1),
			Size:          openai.ImageEditParamsSize(size),
			InputFidelity: openai.ImageEditParamsInputFidelityHigh,
		})
	}
	if err != nil {
		return nil, c.mapError(err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, fmt.Errorf("%s returned no images", c.name)
	}

	img := resp.Data[0]
	url := img.URL
	if img.B64JSON != "" {
		data, decErr := base64.StdEncoding.DecodeString(img.B64JSON)
		if decErr != nil {
			return nil, fmt.Errorf("failed to decode image: %w", decErr)
		}
		url, err = c.assets.Save(data, "png")
		if err != nil {
			return nil, err
		}
	}
	if url == "" {
		return nil, fmt.Errorf("%s returned an empty image", c.name)
	}

	return &RenderResult{
		URL:           url,
		RevisedPrompt: img.RevisedPrompt,
		Provider:      c.name,
		Model:         c.imageModel,
		RequestID:     req.RequestID,
		ExecutionTime: time.Since(start),
	}, nil
}

// GenerateVideo renders a clip and downloads it into the asset store. The
// Videos API accepts a single input reference: the start frame when given,
// otherwise the first reference.
func (c *OpenAIRenderer) GenerateVideo(ctx context.Context, req *VideoRequest) (*RenderResult, error) {
	start := time.Now()
	if req == nil {
		return nil, fmt.Errorf("video request is required")
	}
	if c.assets == nil {
		return nil, fmt.Errorf("openai renderer has no asset store")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultVideoPrompt
	}
	params := openai.VideoNewParams{
		Prompt:  prompt,
		Model:   openai.VideoModel(c.videoModel),
		Seconds: videoSeconds(req.DurationSeconds),
		Size:    openai.VideoSize(c.videoSize),
	}

	ref := req.StartRef
	if ref == "" && len(req.References) > 0 {
		ref = req.References[0]
	}
	if ref != "" {
		rc, err := c.assets.Open(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to open video reference: %w", err)
		}
		defer rc.Close()
		params.InputReference = openai.File(rc, "reference.png", "image/png")
	}

	video, err := c.client.Videos.NewAndPoll(ctx, params, openAIVideoPollIntervalMs)
	if err != nil {
		return nil, c.mapError(err)
	}
	if video.Status != openai.VideoStatusCompleted {
		msg := video.Error.Message
		if msg == "" {
			msg = string(video.Status)
		}
		return nil, fmt.Errorf("%s video %s failed: %s", c.name, video.ID, msg)
	}

	content, err := c.client.Videos.DownloadContent(ctx, video.ID, openai.VideoDownloadContentParams{
		Variant: openai.VideoDownloadContentParamsVariantVideo,
	})
	if err != nil {
		return nil, c.mapError(err)
	}
	defer content.Body.Close()

	url, err := c.assets.SaveReader(content.Body, "mp4")
	if err != nil {
		return nil, err
	}

	return &RenderResult{
		URL:           url,
		Provider:      c.name,
		Model:         c.videoModel,
		RequestID:     video.ID,
		ExecutionTime: time.Since(start),
	}, nil
}

// openReferences opens up to openAIMaxImageReferences reference images.
func (c *OpenAIRenderer) openReferences(ctx context.Context, urls []string) ([]io.Reader, func(), error) {
	if len(urls) > openAIMaxImageReferences {
		urls = urls[:openAIMaxImageReferences]
	}
	var closers []io.Closer
	closeAll := func() {
		for _, cl := range closers {
			cl.Close()
		}
	}
	files := make([]io.Reader, 0, len(urls))
	for i, url := range urls {
		rc, err := c.assets.Open(ctx, url)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open reference %d: %w", i, err)
		}
		closers = append(closers, rc)
		files = append(files, openai.File(rc, fmt.Sprintf("reference-%d.png", i), "image/png"))
	}
	return files, closeAll, nil
}

func (c *OpenAIRenderer) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			c.limiter.Record429(retryAfter)
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		return &StatusError{Provider: c.name, StatusCode: apiErr.StatusCode, Body: apiErr.Message}
	}
	return err
}

// videoSeconds rounds a requested duration to a supported clip length.
func videoSeconds(d int) openai.VideoSeconds {
	switch {
	case d <= 4:
		return openai.VideoSeconds4
	case d <= 8:
		return openai.VideoSeconds8
	default:
		return openai.VideoSeconds12
	}
}

var _ Renderer = (*OpenAIRenderer)(nil)
