package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Storyboard server via HTTP.

These commands require a running server (storyboard serve).
Use --server to specify a custom server URL.

Examples:
  storyboard api health                          # Check server health
  storyboard api projects import pilot.yaml      # Load a project bundle
  storyboard api generate entities pilot         # Render all portraits
  storyboard api targets references s1/start     # Resolved reference list
  storyboard api jobs list -o table              # List runs`,
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Inspect and edit generation targets",
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Start generation runs",
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Project, entity and shot commands",
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Generation run commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func addAll(parent *cobra.Command, eps []api.Endpoint) {
	for _, ep := range eps {
		if cmd := ep.Command(getServerURL); cmd != nil {
			parent.AddCommand(cmd)
		}
	}
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// System endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerUIEndpoint{}).Command(getServerURL))

	addAll(targetsCmd, endpoints.TargetCommands())
	addAll(generateCmd, endpoints.GenerateCommands())
	addAll(projectsCmd, endpoints.ProjectCommands())
	addAll(jobsCmd, endpoints.JobCommands())

	apiCmd.AddCommand(targetsCmd)
	apiCmd.AddCommand(generateCmd)
	apiCmd.AddCommand(projectsCmd)
	apiCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(apiCmd)
}
