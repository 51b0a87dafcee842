package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/storyboard/internal/assets"
)

// Registry holds the configured renderers.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
	logger    *slog.Logger
}

// NewRegistry creates a new empty renderer registry.
func NewRegistry() *Registry {
	return &Registry{
		renderers: make(map[string]Renderer),
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers a renderer by name.
func (r *Registry) Register(name string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[name] = renderer
	if r.logger != nil {
		r.logger.Info("registered renderer", "name", name)
	}
}

// Unregister removes a renderer by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.renderers, name)
	if r.logger != nil {
		r.logger.Info("unregistered renderer", "name", name)
	}
}

// Get returns a renderer by name.
func (r *Registry) Get(name string) (Renderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRendererNotFound, name)
	}
	return renderer, nil
}

// Has checks if a renderer is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.renderers[name]
	return ok
}

// List returns all registered renderer names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.renderers))
	for name := range r.renderers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfig defines the renderers to instantiate from config.
// This mirrors the config.Config structure for renderer setup.
type RegistryConfig struct {
	Renderers map[string]RendererConfig
	Assets    *assets.Store
}

// RendererConfig matches config.RendererCfg with resolved API key.
type RendererConfig struct {
	Type       string  // "openai", "render-service", "mock"
	BaseURL    string  // render-service endpoint
	APIKey     string  // Resolved API key
	ImageModel string  // openai
	VideoModel string  // openai
	RateLimit  float64 // Requests per second
	Timeout    time.Duration
	Enabled    bool
}

// NewRegistryFromConfig creates a registry with renderers based on configuration.
// Only enabled, usable renderers are registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Renderers that are no longer configured are unregistered and renderers
// with changed settings are recreated.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, rc := range cfg.Renderers {
		if !usable(rc) {
			continue
		}
		want[name] = true

		existing, hasExisting := r.renderers[name]
		if hasExisting && !needsUpdate(existing, rc) {
			continue
		}
		renderer := createRenderer(name, rc, cfg.Assets)
		if renderer == nil {
			continue
		}
		r.renderers[name] = renderer
		if r.logger != nil {
			if hasExisting {
				r.logger.Info("updated renderer", "name", name, "type", rc.Type)
			} else {
				r.logger.Info("registered renderer", "name", name, "type", rc.Type)
			}
		}
	}

	for name := range r.renderers {
		if !want[name] {
			delete(r.renderers, name)
			if r.logger != nil {
				r.logger.Info("unregistered renderer", "name", name)
			}
		}
	}
}

func usable(rc RendererConfig) bool {
	if !rc.Enabled {
		return false
	}
	switch rc.Type {
	case OpenAIRendererType:
		return rc.APIKey != ""
	case RenderServiceType:
		return rc.BaseURL != ""
	case MockRendererName:
		return true
	}
	return false
}

// createRenderer creates a renderer based on its type.
func createRenderer(name string, rc RendererConfig, store *assets.Store) Renderer {
	switch rc.Type {
	case OpenAIRendererType:
		return NewOpenAIRenderer(OpenAIRenderConfig{
			Name:       name,
			APIKey:     rc.APIKey,
			ImageModel: rc.ImageModel,
			VideoModel: rc.VideoModel,
			RateLimit:  rc.RateLimit,
			Timeout:    rc.Timeout,
			Assets:     store,
		})
	case RenderServiceType:
		return NewRenderServiceClient(RenderServiceConfig{
			Name:      name,
			BaseURL:   rc.BaseURL,
			APIKey:    rc.APIKey,
			RateLimit: rc.RateLimit,
			Timeout:   rc.Timeout,
		})
	case MockRendererName:
		m := NewMockRenderer()
		if rc.RateLimit > 0 {
			m.RPS = rc.RateLimit
		}
		return m
	default:
		return nil
	}
}

// needsUpdate checks if a renderer needs to be recreated.
func needsUpdate(renderer Renderer, rc RendererConfig) bool {
	switch c := renderer.(type) {
	case *OpenAIRenderer:
		return rc.Type != OpenAIRendererType ||
			c.apiKey != rc.APIKey ||
			(rc.ImageModel != "" && c.imageModel != rc.ImageModel) ||
			(rc.VideoModel != "" && c.videoModel != rc.VideoModel) ||
			(rc.RateLimit > 0 && c.rateLimit != rc.RateLimit)
	case *RenderServiceClient:
		return rc.Type != RenderServiceType ||
			c.apiKey != rc.APIKey ||
			c.baseURL != strings.TrimRight(rc.BaseURL, "/") ||
			(rc.RateLimit > 0 && c.rateLimit != rc.RateLimit)
	case *MockRenderer:
		return rc.Type != MockRendererName
	default:
		return true
	}
}

// Selector is a Renderer that resolves its delegate from a registry on
// every call, so a config reload takes effect without rebuilding callers.
type Selector struct {
	registry *Registry
	mu       sync.RWMutex
	name     string
}

// NewSelector creates a selector delegating to the named renderer.
func NewSelector(registry *Registry, name string) *Selector {
	return &Selector{registry: registry, name: name}
}

// SetName switches the delegate.
func (s *Selector) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Current returns the delegate renderer.
func (s *Selector) Current() (Renderer, error) {
	s.mu.RLock()
	name := s.name
	s.mu.RUnlock()
	return s.registry.Get(name)
}

// Name returns the delegate's configured name.
func (s *Selector) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// RequestsPerSecond returns the delegate's rate limit, or 0 when it is missing.
func (s *Selector) RequestsPerSecond() float64 {
	r, err := s.Current()
	if err != nil {
		return 0
	}
	return r.RequestsPerSecond()
}

// GenerateImage forwards to the delegate.
func (s *Selector) GenerateImage(ctx context.Context, req *ImageRequest) (*RenderResult, error) {
	r, err := s.Current()
	if err != nil {
		return nil, err
	}
	return r.GenerateImage(ctx, req)
}

// GenerateVideo forwards to the delegate.
func (s *Selector) GenerateVideo(ctx context.Context, req *VideoRequest) (*RenderResult, error) {
	r, err := s.Current()
	if err != nil {
		return nil, err
	}
	return r.GenerateVideo(ctx, req)
}

var _ Renderer = (*Selector)(nil)
