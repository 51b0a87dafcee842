package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	RenderServiceType        = "render-service"
	renderServiceDefaultRPS  = 2.0
	renderServiceDefaultWait = 10 * time.Minute
)

// renderResponseSchema is the contract every render service response must meet.
const renderResponseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"enum": ["succeeded", "failed"]},
    "url": {"type": "string"},
    "error": {"type": "string"},
    "request_id": {"type": "string"},
    "model": {"type": "string"},
    "revised_prompt": {"type": "string"}
  },
  "if": {"properties": {"status": {"const": "succeeded"}}},
  "then": {"required": ["url"], "properties": {"url": {"minLength": 1}}}
}`

var (
	renderSchemaOnce sync.Once
	renderSchema     *jsonschema.Schema
	renderSchemaErr  error
)

func compiledRenderSchema() (*jsonschema.Schema, error) {
	renderSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("render_response.json", strings.NewReader(renderResponseSchema)); err != nil {
			renderSchemaErr = fmt.Errorf("failed to add render response schema: %w", err)
			return
		}
		renderSchema, renderSchemaErr = compiler.Compile("render_response.json")
	})
	return renderSchema, renderSchemaErr
}

// RenderServiceConfig holds configuration for a self-hosted render service.
type RenderServiceConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	RateLimit  float64       // Requests per second
	Timeout    time.Duration // Per-request HTTP timeout
	HTTPClient *http.Client  // Optional (tests)
}

// RenderServiceClient talks to a render service exposing
// POST /v1/images and POST /v1/videos.
type RenderServiceClient struct {
	name      string
	baseURL   string
	apiKey    string
	rateLimit float64
	limiter   *RateLimiter
	client    *http.Client
}

// NewRenderServiceClient creates a new render service client.
func NewRenderServiceClient(cfg RenderServiceConfig) *RenderServiceClient {
	if cfg.Name == "" {
		cfg.Name = RenderServiceType
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = renderServiceDefaultRPS
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = renderServiceDefaultWait
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &RenderServiceClient{
		name:      cfg.Name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		rateLimit: cfg.RateLimit,
		limiter:   NewRateLimiter(cfg.RateLimit),
		client:    httpClient,
	}
}

// Name returns the renderer identifier.
func (c *RenderServiceClient) Name() string {
	return c.name
}

// RequestsPerSecond returns the configured rate limit.
func (c *RenderServiceClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// GenerateImage renders a still image.
func (c *RenderServiceClient) GenerateImage(ctx context.Context, req *ImageRequest) (*RenderResult, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	return c.do(ctx, "/v1/images", req.RequestID, req)
}

// GenerateVideo renders a video clip. The prompt may be empty when the
// request carries conditioning frames.
func (c *RenderServiceClient) GenerateVideo(ctx context.Context, req *VideoRequest) (*RenderResult, error) {
	if req == nil {
		return nil, fmt.Errorf("video request is required")
	}
	if strings.TrimSpace(req.Prompt) == "" && req.StartRef == "" && req.EndRef == "" && len(req.References) == 0 {
		return nil, fmt.Errorf("prompt or reference frame is required")
	}
	return c.do(ctx, "/v1/videos", req.RequestID, req)
}

type renderServiceResponse struct {
	Status        string `json:"status"`
	URL           string `json:"url"`
	Error         string `json:"error"`
	RequestID     string `json:"request_id"`
	Model         string `json:"model"`
	RevisedPrompt string `json:"revised_prompt"`
}

func (c *RenderServiceClient) do(ctx context.Context, path, requestID string, body any) (*RenderResult, error) {
	start := time.Now()
	if requestID == "" {
		requestID = uuid.New().String()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.limiter.Record429(retryAfter)
		return nil, &RateLimitError{
			Message:    fmt.Sprintf("%s rate limited", c.name),
			RetryAfter: retryAfter,
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	parsed, err := decodeRenderResponse(respBody)
	if err != nil {
		return nil, err
	}
	if parsed.Status != "succeeded" {
		msg := parsed.Error
		if msg == "" {
			msg = "render failed"
		}
		return nil, fmt.Errorf("%s: %s", c.name, msg)
	}

	if parsed.RequestID != "" {
		requestID = parsed.RequestID
	}
	return &RenderResult{
		URL:           parsed.URL,
		RevisedPrompt: parsed.RevisedPrompt,
		Provider:      c.name,
		Model:         parsed.Model,
		RequestID:     requestID,
		ExecutionTime: time.Since(start),
	}, nil
}

func decodeRenderResponse(body []byte) (*renderServiceResponse, error) {
	schema, err := compiledRenderSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid render response JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("render response failed schema validation: %w", err)
	}

	var parsed renderServiceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode render response: %w", err)
	}
	return &parsed, nil
}

var _ Renderer = (*RenderServiceClient)(nil)
