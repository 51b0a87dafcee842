package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/jobs"
	"github.com/jackzampolin/storyboard/internal/svcctx"
)

// ListJobsResponse is the response for listing jobs.
type ListJobsResponse struct {
	Jobs []*jobs.Snapshot `json:"jobs"`
}

func (r ListJobsResponse) TableHeaders() []string {
	return []string{"ID", "KIND", "PROJECT", "STATUS", "PROGRESS", "CREATED"}
}

func (r ListJobsResponse) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Jobs))
	for _, j := range r.Jobs {
		rows = append(rows, []string{j.ID, string(j.Kind), j.ProjectID, string(j.Status), progress(j), j.CreatedAt.Local().Format(time.DateTime)})
	}
	return rows
}

func progress(j *jobs.Snapshot) string {
	switch {
	case j.Kind == jobs.KindShots && j.Shots != nil:
		return fmt.Sprintf("%d generated, %d failed", j.Shots.Generated, j.Shots.Failed)
	case j.Kind == jobs.KindEntities && j.Entities != nil:
		return fmt.Sprintf("%d generated, %d failed", j.Entities.Generated, j.Entities.Failed)
	case j.Result != nil:
		return string(j.Result.Outcome)
	}
	return j.TargetID
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

var _ api.Endpoint = (*ListJobsEndpoint)(nil)

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List jobs
//	@Description	List generation runs of this server process, newest first
//	@Tags			jobs
//	@Produce		json
//	@Param			status	query		string	false	"Filter by status"
//	@Param			project	query		string	false	"Filter by project"
//	@Param			limit	query		int		false	"Max results (default 100)"
//	@Success		200		{object}	ListJobsResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs [get]
func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}

	q := r.URL.Query()
	filter := jobs.ListFilter{
		Status:    jobs.Status(q.Get("status")),
		ProjectID: q.Get("project"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		filter.Limit = n
	}

	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: jm.List(filter)})
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status, project string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/jobs"
			params := url.Values{}
			if status != "" {
				params.Set("status", status)
			}
			if project != "" {
				params.Set("project", project)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp ListJobsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	cmd.Flags().StringVar(&project, "project", "", "Filter by project")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	return cmd
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct{}

var _ api.Endpoint = (*GetJobEndpoint)(nil)

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get job by ID
//	@Description	Job status with the live tally and per-slot states while it runs
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	jobs.Snapshot
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/jobs/{id} [get]
func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}
	snap, err := jm.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a job by ID",
		Long: `Get a job's status.

While the job runs this includes:
- Slots: the state of every (target, kind) slot touched so far
- Shots/Entities: running generated and failed counts with per-item results`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/jobs/" + url.PathEscape(args[0])
			for {
				var resp jobs.Snapshot
				if err := client.Get(cmd.Context(), path, &resp); err != nil {
					return err
				}
				if !wait || resp.Status.Terminal() {
					return api.Output(resp)
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(2 * time.Second):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	return cmd
}

// CancelJobEndpoint handles POST /api/jobs/{id}/cancel.
type CancelJobEndpoint struct{}

var _ api.Endpoint = (*CancelJobEndpoint)(nil)

func (e *CancelJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{id}/cancel", e.handler
}

func (e *CancelJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel a job
//	@Description	Stops the run before its next render attempt; a call already in flight completes
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	jobs.Snapshot
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/jobs/{id}/cancel [post]
func (e *CancelJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}
	snap, err := jm.Cancel(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *CancelJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp jobs.Snapshot
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/jobs/"+url.PathEscape(args[0])+"/cancel", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
