package providers

import (
	"os"

	"github.com/jackzampolin/storyboard/internal/assets"
)

// TestConfig holds renderer configurations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenAIAPIKey     string
	RenderServiceURL string
}

// LoadTestConfig loads renderer settings from environment variables.
// Returns a TestConfig with whatever settings are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		RenderServiceURL: os.Getenv("RENDER_SERVICE_URL"),
	}
}

// HasOpenAI returns true if an OpenAI API key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasRenderService returns true if a render service url is configured.
func (c TestConfig) HasRenderService() bool {
	return c.RenderServiceURL != ""
}

// NewOpenAIRenderer creates an OpenAI renderer from test config.
// Returns nil if not configured.
func (c TestConfig) NewOpenAIRenderer(store *assets.Store) *OpenAIRenderer {
	if !c.HasOpenAI() {
		return nil
	}
	return NewOpenAIRenderer(OpenAIRenderConfig{
		APIKey: c.OpenAIAPIKey,
		Assets: store,
	})
}

// ToRegistryConfig converts test config to a RegistryConfig for the renderer registry.
// The mock renderer is always included.
func (c TestConfig) ToRegistryConfig(store *assets.Store) RegistryConfig {
	cfg := RegistryConfig{
		Assets: store,
		Renderers: map[string]RendererConfig{
			MockRendererName: {Type: MockRendererName, Enabled: true},
		},
	}
	if c.HasOpenAI() {
		cfg.Renderers[OpenAIRendererType] = RendererConfig{
			Type:    OpenAIRendererType,
			APIKey:  c.OpenAIAPIKey,
			Enabled: true,
		}
	}
	if c.HasRenderService() {
		cfg.Renderers[RenderServiceType] = RendererConfig{
			Type:    RenderServiceType,
			BaseURL: c.RenderServiceURL,
			Enabled: true,
		}
	}
	return cfg
}
