package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/storyboard/internal/assets"
	"github.com/jackzampolin/storyboard/internal/generation"
	"github.com/jackzampolin/storyboard/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("renderers", defaults.Renderers)
	v.SetDefault("defaults.renderer", defaults.Defaults.Renderer)
	v.SetDefault("generation.max_attempts", defaults.Generation.MaxAttempts)
	v.SetDefault("generation.retry_delay_ms", defaults.Generation.RetryDelayMS)
	v.SetDefault("generation.global_context", defaults.Generation.GlobalContext)
	v.SetDefault("generation.global_context_runes", defaults.Generation.GlobalContextRunes)
	v.SetDefault("generation.video_seconds", defaults.Generation.VideoSeconds)
	v.SetDefault("store.backend", defaults.Store.Backend)
	v.SetDefault("defra.container_name", defaults.Defra.ContainerName)
	v.SetDefault("defra.image", defaults.Defra.Image)
	v.SetDefault("defra.port", defaults.Defra.Port)

	// Environment variables with STORYBOARD_ prefix
	v.SetEnvPrefix("STORYBOARD")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.storyboard")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the config file in use, or "" when running on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			slog.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		cm.Set(cfg)
	})
	cm.v.WatchConfig()
}

// Set replaces the current configuration and runs the change callbacks.
func (cm *Manager) Set(cfg *Config) {
	cm.mu.Lock()
	cm.config = cfg
	callbacks := make([]func(*Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

// envKeyReplacer maps nested keys to env names: generation.max_attempts
// reads STORYBOARD_GENERATION_MAX_ATTEMPTS.
var envKeyReplacer = strings.NewReplacer(".", "_")

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys and base urls.
func (c *Config) ToProviderRegistryConfig(store *assets.Store) providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Renderers: make(map[string]providers.RendererConfig),
		Assets:    store,
	}

	for name, r := range c.Renderers {
		cfg.Renderers[name] = providers.RendererConfig{
			Type:       r.Type,
			BaseURL:    ResolveEnvVars(r.BaseURL),
			APIKey:     ResolveEnvVars(r.APIKey),
			ImageModel: r.ImageModel,
			VideoModel: r.VideoModel,
			RateLimit:  r.RateLimit,
			Timeout:    time.Duration(r.TimeoutSeconds) * time.Second,
			Enabled:    r.Enabled,
		}
	}

	return cfg
}

// EngineConfig converts the generation section to a generation.Config.
// A zero retry delay in the file means no delay between attempts.
func (c *Config) EngineConfig(logger *slog.Logger) generation.Config {
	g := c.Generation
	delay := time.Duration(g.RetryDelayMS) * time.Millisecond
	if g.RetryDelayMS <= 0 {
		delay = -1
	}
	return generation.Config{
		MaxAttempts:        g.MaxAttempts,
		RetryDelay:         delay,
		GlobalContext:      g.GlobalContext,
		GlobalContextRunes: g.GlobalContextRunes,
		ImageSize:          g.ImageSize,
		VideoSeconds:       g.VideoSeconds,
		Logger:             logger,
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Storyboard configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx RENDER_SERVICE_URL=http://host:port

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
