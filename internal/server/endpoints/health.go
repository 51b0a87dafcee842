package endpoints

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/defra"
	"github.com/jackzampolin/storyboard/internal/jobs"
	"github.com/jackzampolin/storyboard/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

var _ api.Endpoint = (*HealthEndpoint)(nil)

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Server health
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

var _ api.Endpoint = (*ReadyEndpoint)(nil)

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Server readiness
//	@Description	Returns 200 only when the store is reachable
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Store: storeHealth(r.Context())}
	if resp.Store != "ok" {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes the store)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			fmt.Printf("Store:  %s\n", resp.Store)
			return nil
		},
	}
}

// storeHealth pings the active store backend.
func storeHealth(ctx context.Context) string {
	st := svcctx.StoreFrom(ctx)
	if st == nil {
		return "not_initialized"
	}
	if client := svcctx.DefraClientFrom(ctx); client != nil {
		if err := client.HealthCheck(ctx); err != nil {
			return "unhealthy"
		}
		return "ok"
	}
	if _, err := st.ListProjects(ctx); err != nil {
		return "unhealthy"
	}
	return "ok"
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string          `json:"server"`
	Renderers RenderersStatus `json:"renderers"`
	Store     StoreStatus     `json:"store"`
	Defra     *DefraStatus    `json:"defra,omitempty"`
	Jobs      JobsStatus      `json:"jobs"`
}

// RenderersStatus shows registered renderers and the active one.
type RenderersStatus struct {
	Active    string   `json:"active"`
	Available []string `json:"available"`
}

// StoreStatus shows the store backend and its health.
type StoreStatus struct {
	Backend string `json:"backend"`
	Health  string `json:"health"`
}

// DefraStatus shows DefraDB container status.
type DefraStatus struct {
	Container string `json:"container"`
	URL       string `json:"url"`
}

// JobsStatus counts runs by state.
type JobsStatus struct {
	Running int `json:"running"`
	Total   int `json:"total"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	// DefraManager is set by the server when the defra backend is in use.
	DefraManager *defra.DockerManager
}

var _ api.Endpoint = (*StatusEndpoint)(nil)

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Detailed server status
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Server: "running"}

	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Renderers.Available = registry.List()
	}
	if sel := svcctx.RendererFrom(ctx); sel != nil {
		resp.Renderers.Active = sel.Name()
	}

	resp.Store.Health = storeHealth(ctx)
	if s := svcctx.ServicesFrom(ctx); s != nil {
		resp.Store.Backend = s.StoreKind
	}

	if e.DefraManager != nil {
		resp.Defra = &DefraStatus{URL: e.DefraManager.URL()}
		if status, err := e.DefraManager.Status(ctx); err != nil {
			resp.Defra.Container = "error"
		} else {
			resp.Defra.Container = string(status)
		}
	}

	if jm := svcctx.JobManagerFrom(ctx); jm != nil {
		resp.Jobs.Running = len(jm.List(jobs.ListFilter{Status: jobs.StatusRunning}))
		resp.Jobs.Total = len(jm.List(jobs.ListFilter{}))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() != api.OutputFormatTable {
				return api.Output(resp)
			}
			fmt.Printf("Server: %s\n", resp.Server)
			fmt.Printf("Store:  %s (%s)\n", resp.Store.Backend, resp.Store.Health)
			if resp.Defra != nil {
				fmt.Printf("Defra:  %s %s\n", resp.Defra.Container, resp.Defra.URL)
			}
			fmt.Printf("Renderer: %s (available: %v)\n", resp.Renderers.Active, resp.Renderers.Available)
			fmt.Printf("Jobs:   %d running, %d total\n", resp.Jobs.Running, resp.Jobs.Total)
			return nil
		},
	}
}
