package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/config"
	"github.com/jackzampolin/storyboard/internal/defra"
	"github.com/jackzampolin/storyboard/internal/home"
)

var defraCmd = &cobra.Command{
	Use:   "defra",
	Short: "Manage the DefraDB container",
	Long: `Manage the DefraDB container used by the defra store backend.

Set store.backend: defra in the config file to keep projects in DefraDB.
Data is persisted to ~/.storyboard/defradb/. The server starts and stops
the container itself; these commands are for inspecting it.

Examples:
  storyboard defra start   # Start the DefraDB container
  storyboard defra stop    # Stop the container (data preserved)
  storyboard defra status  # Check container status
  storyboard defra logs    # View container logs`,
}

var defraStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DefraDB container",
	RunE: withDockerManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		fmt.Println("Starting DefraDB...")
		if err := mgr.Ensure(cmd.Context()); err != nil {
			return fmt.Errorf("failed to start DefraDB: %w", err)
		}
		fmt.Printf("DefraDB is running at %s\n", mgr.URL())
		return nil
	}),
}

var defraStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the DefraDB container",
	RunE: withDockerManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		fmt.Println("Stopping DefraDB...")
		if err := mgr.Stop(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop DefraDB: %w", err)
		}
		fmt.Println("DefraDB stopped")
		return nil
	}),
}

var defraStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show DefraDB container status",
	RunE: withDockerManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		ctx := cmd.Context()
		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case defra.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())
			if err := mgr.Client().HealthCheck(ctx); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case defra.StatusStopped:
			fmt.Printf("Status: %s (use 'storyboard defra start' to start)\n", status)
		case defra.StatusNotFound:
			fmt.Printf("Status: %s (use 'storyboard defra start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}
		return nil
	}),
}

var logsTail string

var defraLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show DefraDB container logs",
	RunE: withDockerManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		logs, err := mgr.Logs(cmd.Context(), logsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}
		fmt.Print(logs)
		return nil
	}),
}

var defraRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the DefraDB container (data is kept)",
	RunE: withDockerManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		fmt.Println("Removing DefraDB container...")
		if err := mgr.Remove(cmd.Context()); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}
		fmt.Println("DefraDB container removed (data preserved)")
		return nil
	}),
}

var defraWaitTimeout time.Duration

var defraWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for DefraDB to be ready",
	RunE: withDockerManager(func(cmd *cobra.Command, mgr *defra.DockerManager) error {
		fmt.Printf("Waiting for DefraDB (timeout: %s)...\n", defraWaitTimeout)
		if err := mgr.WaitReady(cmd.Context(), defraWaitTimeout); err != nil {
			return fmt.Errorf("DefraDB not ready: %w", err)
		}
		fmt.Println("DefraDB is ready")
		return nil
	}),
}

func init() {
	defraCmd.AddCommand(defraStartCmd)
	defraCmd.AddCommand(defraStopCmd)
	defraCmd.AddCommand(defraStatusCmd)
	defraCmd.AddCommand(defraLogsCmd)
	defraCmd.AddCommand(defraRemoveCmd)
	defraCmd.AddCommand(defraWaitCmd)

	defraLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")
	defraWaitCmd.Flags().DurationVar(&defraWaitTimeout, "timeout", 30*time.Second, "Timeout waiting for DefraDB")

	rootCmd.AddCommand(defraCmd)
}

// withDockerManager builds the container manager from the home directory
// and config file, runs fn and closes the manager.
func withDockerManager(fn func(*cobra.Command, *defra.DockerManager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		conf, err := loadConfig(h)
		if err != nil {
			return err
		}
		mgr, err := defra.NewDockerManager(defra.DockerConfig{
			ContainerName: conf.Defra.ContainerName,
			Image:         conf.Defra.Image,
			HostPort:      conf.Defra.Port,
			DataPath:      h.DefraDataPath(),
		})
		if err != nil {
			return err
		}
		defer mgr.Close()
		return fn(cmd, mgr)
	}
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// configPath returns --config, else the home config file when it exists.
// An empty result lets the config manager search its default paths.
func configPath(h *home.Dir) string {
	if cfgFile == "" && h.ConfigExists() {
		return h.ConfigPath()
	}
	return cfgFile
}

// loadConfig reads the config file once, without watching it.
func loadConfig(h *home.Dir) (*config.Config, error) {
	cm, err := config.NewManager(configPath(h))
	if err != nil {
		return nil, err
	}
	return cm.Get(), nil
}
