package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/config"
	"github.com/jackzampolin/storyboard/internal/home"
	"github.com/jackzampolin/storyboard/internal/server"
)

var (
	serveHost  string
	servePort  string
	serveDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Storyboard server",
	Long: `Start the Storyboard HTTP server.

The store backend comes from the config file: sqlite (default, a file in
the home directory) or defra. With defra the DefraDB container is started
with the server and stopped when it shuts down (Ctrl+C or SIGTERM).

Renderer settings are hot-reloaded when the config file changes.

The server provides:
  - /health       - Basic server health check
  - /ready        - Readiness check (includes the store)
  - /swagger      - API documentation

Examples:
  storyboard serve                    # Start on default port 8080
  storyboard serve --port 3000        # Start on custom port
  storyboard serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		level := slog.LevelInfo
		if serveDebug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := config.NewManager(configPath(h))
		if err != nil {
			return err
		}
		if used := cm.ConfigFile(); used != "" {
			logger.Info("loaded config", "file", used)
			cm.WatchConfig()
		} else {
			logger.Info("no config file found, using defaults (run 'storyboard config init')")
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: cm,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
}
