package providers

import (
	"context"
	"time"
)

// Renderer is an external image/video generation service.
//
// Implementations make exactly one request per call and never retry on their
// own; the generation engine owns the retry policy.
type Renderer interface {
	// Name returns the renderer identifier (e.g., "openai", "studio").
	Name() string

	// GenerateImage renders a still image conditioned on reference images.
	GenerateImage(ctx context.Context, req *ImageRequest) (*RenderResult, error)

	// GenerateVideo renders a clip conditioned on references and optional
	// start/end frames.
	GenerateVideo(ctx context.Context, req *VideoRequest) (*RenderResult, error)

	// RequestsPerSecond returns the configured rate limit.
	RequestsPerSecond() float64
}

// ImageRequest is a still image generation request.
type ImageRequest struct {
	Prompt     string   `json:"prompt"`
	References []string `json:"references,omitempty"` // Ordered conditioning image urls
	Size       string   `json:"size,omitempty"`       // e.g. "1024x1024"; renderer default if empty

	RequestID string `json:"-"`
}

// VideoRequest is a video clip generation request.
type VideoRequest struct {
	Prompt          string   `json:"prompt"`
	References      []string `json:"references,omitempty"`
	StartRef        string   `json:"start_ref,omitempty"` // First-frame conditioning image
	EndRef          string   `json:"end_ref,omitempty"`   // Last-frame conditioning image
	DurationSeconds int      `json:"duration_seconds,omitempty"`

	RequestID string `json:"-"`
}

// RenderResult is the response from a renderer.
type RenderResult struct {
	URL           string        `json:"url"`
	RevisedPrompt string        `json:"revised_prompt,omitempty"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model,omitempty"`
	RequestID     string        `json:"request_id,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}
