package config

// Config holds storyboard configuration.
// Stored at: ~/.storyboard/config.yaml
type Config struct {
	Renderers  map[string]RendererCfg `mapstructure:"renderers" yaml:"renderers"`
	Defaults   DefaultsCfg            `mapstructure:"defaults" yaml:"defaults"`
	Generation GenerationCfg          `mapstructure:"generation" yaml:"generation"`
	Store      StoreCfg               `mapstructure:"store" yaml:"store"`
	Assets     AssetsCfg              `mapstructure:"assets" yaml:"assets"`
	Defra      DefraConfig            `mapstructure:"defra" yaml:"defra"`
}

// RendererCfg configures a render provider. Type is "openai",
// "render-service" or "mock"; APIKey and BaseURL support ${ENV_VAR} syntax.
// RateLimit is in requests per second.
type RendererCfg struct {
	Type           string  `mapstructure:"type" yaml:"type"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key,omitempty"`
	ImageModel     string  `mapstructure:"image_model" yaml:"image_model,omitempty"`
	VideoModel     string  `mapstructure:"video_model" yaml:"video_model,omitempty"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds,omitempty"`
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	Renderer string `mapstructure:"renderer" yaml:"renderer"`
}

// GenerationCfg tunes the generation engine.
type GenerationCfg struct {
	MaxAttempts        int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelayMS       int    `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	GlobalContext      bool   `mapstructure:"global_context" yaml:"global_context"`
	GlobalContextRunes int    `mapstructure:"global_context_runes" yaml:"global_context_runes"`
	ImageSize          string `mapstructure:"image_size" yaml:"image_size,omitempty"`
	VideoSeconds       int    `mapstructure:"video_seconds" yaml:"video_seconds"`
}

// StoreCfg selects the persistence backend.
type StoreCfg struct {
	// Backend is "sqlite" (default) or "defra".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path overrides the SQLite database file (default: ~/.storyboard/db/storyboard.db).
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// AssetsCfg configures locally hosted asset files.
type AssetsCfg struct {
	// PublicURL is the base url asset files are served under. When empty
	// the server derives it from its listen address.
	PublicURL string `mapstructure:"public_url" yaml:"public_url,omitempty"`
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// ContainerName is the Docker container name (default: storyboard-defra)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendDefra  = "defra"
)

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Renderers: map[string]RendererCfg{
			"openai": {
				Type:           "openai",
				APIKey:         "${OPENAI_API_KEY}",
				ImageModel:     "gpt-image-1",
				VideoModel:     "sora-2",
				RateLimit:      1.0,
				TimeoutSeconds: 600,
				Enabled:        true,
			},
			"studio": {
				Type:      "render-service",
				BaseURL:   "${RENDER_SERVICE_URL}",
				APIKey:    "${RENDER_SERVICE_API_KEY}",
				RateLimit: 2.0,
				Enabled:   true,
			},
			"mock": {
				Type:      "mock",
				RateLimit: 100,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			Renderer: "openai",
		},
		Generation: GenerationCfg{
			MaxAttempts:        3,
			RetryDelayMS:       2000,
			GlobalContextRunes: 160,
			VideoSeconds:       5,
		},
		Store: StoreCfg{
			Backend: BackendSQLite,
		},
		Defra: DefraConfig{
			ContainerName: "storyboard-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
		},
	}
}

// GetRenderer returns a renderer config by name.
func (c *Config) GetRenderer(name string) (RendererCfg, bool) {
	cfg, ok := c.Renderers[name]
	return cfg, ok
}

// EnabledRenderers returns all enabled renderers.
func (c *Config) EnabledRenderers() map[string]RendererCfg {
	result := make(map[string]RendererCfg)
	for name, cfg := range c.Renderers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
