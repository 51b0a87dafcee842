package endpoints

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/jobs"
	"github.com/jackzampolin/storyboard/internal/svcctx"
)

// GenerateRequest starts a generation run. With Wait the response is
// returned when the run has finished; otherwise the job is returned as
// soon as it is queued.
type GenerateRequest struct {
	IDs            []string `json:"ids,omitempty"`             // batch runs: restrict to these shot or entity ids
	OverridePrompt string   `json:"override_prompt,omitempty"` // single runs only
	Wait           bool     `json:"wait,omitempty"`
}

// submit starts req and writes the job. Single runs that finish with an
// error under Wait get the error's status code.
func submit(w http.ResponseWriter, r *http.Request, req jobs.Request, wait bool) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}

	snap, err := jm.Submit(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, snap)
		return
	}

	snap, err = jm.Wait(r.Context(), snap.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if snap.Cause != nil {
		writeJSON(w, statusFor(snap.Cause), snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GenerateTargetEndpoint handles POST /api/targets/{owner}/{kind}/generate.
type GenerateTargetEndpoint struct{}

var _ api.Endpoint = (*GenerateTargetEndpoint)(nil)

func (e *GenerateTargetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/targets/{owner}/{kind}/generate", e.handler
}

func (e *GenerateTargetEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate one target
//	@Description	Renders a start frame, end frame, video or portrait with up to three attempts
//	@Tags			generate
//	@Accept			json
//	@Produce		json
//	@Param			owner	path		string			true	"Shot or entity ID"
//	@Param			kind	path		string			true	"start, end, video or portrait"
//	@Param			request	body		GenerateRequest	false	"Options"
//	@Success		200		{object}	jobs.Snapshot
//	@Success		202		{object}	jobs.Snapshot
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	jobs.Snapshot
//	@Failure		502		{object}	jobs.Snapshot
//	@Router			/api/targets/{owner}/{kind}/generate [post]
func (e *GenerateTargetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := targetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	submit(w, r, jobs.Request{
		Kind:           jobs.KindSingle,
		TargetID:       id,
		OverridePrompt: req.OverridePrompt,
	}, req.Wait)
}

func (e *GenerateTargetEndpoint) Command(getServerURL func() string) *cobra.Command {
	var prompt string
	var noWait bool
	cmd := &cobra.Command{
		Use:   "target <target-id>",
		Short: "Generate a single target",
		Example: `  storyboard api generate target s1/start
  storyboard api generate target hero/portrait --prompt "[Hero] in profile"
  storyboard api generate target s1/video --no-wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := targetPath(args[0], "/generate")
			if err != nil {
				return err
			}
			req := GenerateRequest{OverridePrompt: prompt, Wait: !noWait}
			var resp jobs.Snapshot
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt to use instead of the stored one (saved on success)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return as soon as the job is queued")
	return cmd
}

// GenerateEntitiesEndpoint handles POST /api/projects/{id}/generate/entities.
type GenerateEntitiesEndpoint struct{}

var _ api.Endpoint = (*GenerateEntitiesEndpoint)(nil)

func (e *GenerateEntitiesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/projects/{id}/generate/entities", e.handler
}

func (e *GenerateEntitiesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate entity portraits
//	@Description	Generates portraits in dependency order; entities with an image are skipped unless named in ids
//	@Tags			generate
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Project ID"
//	@Param			request	body		GenerateRequest	false	"Options"
//	@Success		200		{object}	jobs.Snapshot
//	@Success		202		{object}	jobs.Snapshot
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/projects/{id}/generate/entities [post]
func (e *GenerateEntitiesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	submit(w, r, jobs.Request{
		Kind:      jobs.KindEntities,
		ProjectID: r.PathValue("id"),
		IDs:       req.IDs,
	}, req.Wait)
}

func (e *GenerateEntitiesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return batchCommand(getServerURL, "entities", "Generate entity portraits in dependency order")
}

// GenerateShotsEndpoint handles POST /api/projects/{id}/generate/shots.
type GenerateShotsEndpoint struct{}

var _ api.Endpoint = (*GenerateShotsEndpoint)(nil)

func (e *GenerateShotsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/projects/{id}/generate/shots", e.handler
}

func (e *GenerateShotsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate shots
//	@Description	Generates start frame, end frame and video for each shot without a video, in sequence order
//	@Tags			generate
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Project ID"
//	@Param			request	body		GenerateRequest	false	"Options"
//	@Success		200		{object}	jobs.Snapshot
//	@Success		202		{object}	jobs.Snapshot
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/projects/{id}/generate/shots [post]
func (e *GenerateShotsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	submit(w, r, jobs.Request{
		Kind:      jobs.KindShots,
		ProjectID: r.PathValue("id"),
		IDs:       req.IDs,
	}, req.Wait)
}

func (e *GenerateShotsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return batchCommand(getServerURL, "shots", "Generate every shot that has no video yet")
}

func batchCommand(getServerURL func() string, what, short string) *cobra.Command {
	var ids []string
	var wait bool
	cmd := &cobra.Command{
		Use:   what + " <project-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/projects/%s/generate/%s", url.PathEscape(args[0]), what)
			var resp jobs.Snapshot
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), path, GenerateRequest{IDs: ids, Wait: wait}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Only these "+what)
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the run finishes")
	return cmd
}
