package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackzampolin/storyboard/docs" // registers /swagger.json
	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/assets"
	"github.com/jackzampolin/storyboard/internal/config"
	"github.com/jackzampolin/storyboard/internal/defra"
	"github.com/jackzampolin/storyboard/internal/export"
	"github.com/jackzampolin/storyboard/internal/generation"
	"github.com/jackzampolin/storyboard/internal/home"
	"github.com/jackzampolin/storyboard/internal/jobs"
	"github.com/jackzampolin/storyboard/internal/providers"
	"github.com/jackzampolin/storyboard/internal/server/endpoints"
	"github.com/jackzampolin/storyboard/internal/store"
	"github.com/jackzampolin/storyboard/internal/svcctx"
)

const shutdownTimeout = 30 * time.Second

// Server is the main storyboard HTTP server.
// With the defra backend it also manages the DefraDB container lifecycle,
// starting it on server start and stopping it on shutdown.
type Server struct {
	cfg          Config
	conf         *config.Config
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	registry     *providers.Registry
	renderer     *providers.Selector
	assets       *assets.Store
	logger       *slog.Logger

	store     store.Store
	ownsStore bool
	jobs      *jobs.Manager

	// services holds all core services for context enrichment; nil until Init
	services atomic.Pointer[svcctx.Services]

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080, "0" picks a free port)
	Port string
	// Home is the storyboard home directory (required)
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support.
	// When nil, config.DefaultConfig() is used.
	ConfigManager *config.Manager
	// Store is an already opened store. When nil the configured backend is opened on Init.
	Store store.Store
	// DefraConfig overrides container settings for the defra backend
	DefraConfig defra.DockerConfig
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Home == nil {
		return nil, errors.New("server: home directory is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	conf := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		conf = cfg.ConfigManager.Get()
	}

	publicURL := conf.Assets.PublicURL
	if publicURL == "" {
		publicURL = "http://" + net.JoinHostPort(cfg.Host, cfg.Port)
	}
	assetStore := assets.New(cfg.Home.AssetsDir(), publicURL)

	// Create renderer registry and the selector the engine renders through
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(conf.ToProviderRegistryConfig(assetStore))
	selector := providers.NewSelector(registry, conf.Defaults.Renderer)

	// Watch for config changes
	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig(assetStore))
			selector.SetName(c.Defaults.Renderer)
			cfg.Logger.Info("renderer registry reloaded from config", "active", c.Defaults.Renderer)
		})
	}

	s := &Server{
		cfg:      cfg,
		conf:     conf,
		registry: registry,
		renderer: selector,
		assets:   assetStore,
		logger:   cfg.Logger,
	}

	if cfg.Store == nil && conf.Store.Backend == config.BackendDefra {
		dm, err := defra.NewDockerManager(s.defraDockerConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create defra manager: %w", err)
		}
		s.defraManager = dm
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DefraManager: s.defraManager}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// generate requests with wait=true block for the whole run
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) defraDockerConfig() defra.DockerConfig {
	dc := s.cfg.DefraConfig
	if dc.ContainerName == "" {
		dc.ContainerName = s.conf.Defra.ContainerName
	}
	if dc.Image == "" {
		dc.Image = s.conf.Defra.Image
	}
	if dc.HostPort == "" {
		dc.HostPort = s.conf.Defra.Port
	}
	if dc.DataPath == "" {
		dc.DataPath = s.cfg.Home.DefraDataPath()
	}
	return dc
}

// Init opens the store and builds the engine, job manager and exporter.
// Start calls it; tests may call it directly and serve Handler themselves.
func (s *Server) Init(ctx context.Context) error {
	if err := s.openStore(ctx); err != nil {
		return err
	}

	engine := generation.NewEngine(s.store, s.renderer, s.conf.EngineConfig(s.logger))
	s.jobs = jobs.NewManager(engine, s.cfg.Home.LocksDir(), s.logger)

	backend := s.conf.Store.Backend
	if s.cfg.Store != nil {
		backend = "external"
	}
	s.services.Store(&svcctx.Services{
		Store:       s.store,
		StoreKind:   backend,
		DefraClient: s.defraClient,
		Engine:      engine,
		JobManager:  s.jobs,
		Registry:    s.registry,
		Renderer:    s.renderer,
		Assets:      s.assets,
		Exporter:    export.New(s.store, s.assets, s.logger),
		Config:      s.cfg.ConfigManager,
		Logger:      s.logger,
		Home:        s.cfg.Home,
	})
	s.logger.Info("services ready", "store", backend, "renderer", s.renderer.Name())
	return nil
}

func (s *Server) openStore(ctx context.Context) error {
	if s.cfg.Store != nil {
		s.store = s.cfg.Store
		return nil
	}

	switch s.conf.Store.Backend {
	case config.BackendDefra:
		s.logger.Info("starting DefraDB")
		if err := s.defraManager.Ensure(ctx); err != nil {
			return fmt.Errorf("failed to start DefraDB: %w", err)
		}
		s.defraClient = s.defraManager.Client()
		st, err := store.OpenDefra(ctx, s.defraClient, s.logger)
		if err != nil {
			return err
		}
		s.logger.Info("DefraDB is ready", "url", s.defraManager.URL())
		s.store, s.ownsStore = st, true
	default:
		path := s.conf.Store.Path
		if path == "" {
			path = s.cfg.Home.DatabasePath()
		}
		st, err := store.OpenSQLite(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		s.logger.Info("sqlite store ready", "path", path)
		s.store, s.ownsStore = st, true
	}
	return nil
}

// Start initializes services and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Init(ctx); err != nil {
		_ = s.shutdown()
		return err
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	// Serve HTTP in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops HTTP, cancels running jobs, closes the store and stops DefraDB.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.jobs != nil {
		if err := s.jobs.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("job manager shutdown error", "error", err)
		}
	}

	if s.store != nil && s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	if s.defraManager != nil {
		s.logger.Info("stopping DefraDB")
		if err := s.defraManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("DefraDB stop error", "error", err)
		}
		if err := s.defraManager.Close(); err != nil {
			s.logger.Error("DefraDB manager close error", "error", err)
		}
	}

	s.mu.Lock()
	s.running = false
	s.listener = nil
	s.mu.Unlock()
	s.logger.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address. Once listening, this is the
// bound address, so a configured port of "0" resolves to the real port.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Handler returns the HTTP handler with service context enrichment.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// JobManager returns the job manager.
// Returns nil if the server hasn't been initialized yet.
func (s *Server) JobManager() *jobs.Manager {
	return s.jobs
}

// Registry returns the renderer registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Renderer returns the selector the engine renders through.
func (s *Server) Renderer() *providers.Selector {
	return s.renderer
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.services.Load(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the store and job manager are ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services.Load() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
