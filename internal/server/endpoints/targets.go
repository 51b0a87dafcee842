package endpoints

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/generation"
	"github.com/jackzampolin/storyboard/internal/svcctx"
)

// TargetResponse is a target with the references a generation would use.
type TargetResponse struct {
	*generation.TargetView
}

func (r TargetResponse) TableHeaders() []string {
	return []string{"#", "REFERENCE", "TOMBSTONED"}
}

func (r TargetResponse) TableRows() [][]string {
	rows := make([][]string, 0, len(r.References)+len(r.Target.Tombstones))
	for i, ref := range r.References {
		rows = append(rows, []string{strconv.Itoa(i + 1), ref, ""})
	}
	for _, t := range r.Target.Tombstones {
		rows = append(rows, []string{"-", t, "yes"})
	}
	return rows
}

// ReferencesResponse is the resolved reference list of a target.
type ReferencesResponse struct {
	TargetID   string   `json:"target_id"`
	References []string `json:"references"`
}

func (r ReferencesResponse) TableHeaders() []string { return []string{"#", "REFERENCE"} }

func (r ReferencesResponse) TableRows() [][]string {
	rows := make([][]string, 0, len(r.References))
	for i, ref := range r.References {
		rows = append(rows, []string{strconv.Itoa(i + 1), ref})
	}
	return rows
}

// GetTargetEndpoint handles GET /api/targets/{owner}/{kind}.
type GetTargetEndpoint struct{}

var _ api.Endpoint = (*GetTargetEndpoint)(nil)

func (e *GetTargetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/targets/{owner}/{kind}", e.handler
}

func (e *GetTargetEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a generation target
//	@Description	Returns the stored target (auto mode when never edited) and its resolved references
//	@Tags			targets
//	@Produce		json
//	@Param			owner	path		string	true	"Shot or entity ID"
//	@Param			kind	path		string	true	"start, end, video or portrait"
//	@Success		200		{object}	TargetResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Router			/api/targets/{owner}/{kind} [get]
func (e *GetTargetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := targetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	view, err := svcctx.EngineFrom(r.Context()).Target(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TargetResponse{view})
}

func (e *GetTargetEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <target-id>",
		Short: "Get a target, e.g. s1/start or hero/portrait",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := targetPath(args[0], "")
			if err != nil {
				return err
			}
			var resp TargetResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// UpdateTargetRequest edits a target. Nil fields are left unchanged.
// Setting References switches the target to manual mode with that order.
type UpdateTargetRequest struct {
	Prompt     *string  `json:"prompt,omitempty"`
	References []string `json:"references,omitempty"`
}

// UpdateTargetEndpoint handles PATCH /api/targets/{owner}/{kind}.
type UpdateTargetEndpoint struct{}

var _ api.Endpoint = (*UpdateTargetEndpoint)(nil)

func (e *UpdateTargetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/targets/{owner}/{kind}", e.handler
}

func (e *UpdateTargetEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update a target
//	@Description	Replace the prompt and/or set the reference order (switches to manual mode)
//	@Tags			targets
//	@Accept			json
//	@Produce		json
//	@Param			owner	path		string				true	"Shot or entity ID"
//	@Param			kind	path		string				true	"start, end, video or portrait"
//	@Param			request	body		UpdateTargetRequest	true	"Fields to change"
//	@Success		200		{object}	TargetResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/targets/{owner}/{kind} [patch]
func (e *UpdateTargetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := targetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req UpdateTargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := svcctx.EngineFrom(r.Context())
	view, err := engine.Target(r.Context(), id)
	if err == nil && req.Prompt != nil {
		view, err = engine.UpdatePrompt(r.Context(), id, *req.Prompt)
	}
	if err == nil && req.References != nil {
		view, err = engine.SetReferenceOrder(r.Context(), id, req.References)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TargetResponse{view})
}

func (e *UpdateTargetEndpoint) Command(getServerURL func() string) *cobra.Command {
	var prompt string
	var order []string
	cmd := &cobra.Command{
		Use:   "update <target-id>",
		Short: "Update a target's prompt or reference order",
		Example: `  storyboard api targets update s1/start --prompt "[Hero] at the gate"
  storyboard api targets update s1/start --order http://a.png,http://b.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := targetPath(args[0], "")
			if err != nil {
				return err
			}
			var req UpdateTargetRequest
			if cmd.Flags().Changed("prompt") {
				req.Prompt = &prompt
			}
			if cmd.Flags().Changed("order") {
				req.References = order
			}
			var resp TargetResponse
			if err := api.NewClient(getServerURL()).Patch(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "New prompt")
	cmd.Flags().StringSliceVar(&order, "order", nil, "Full reference list in order (manual mode)")
	return cmd
}

// ResolveReferencesEndpoint handles GET /api/targets/{owner}/{kind}/references.
type ResolveReferencesEndpoint struct{}

var _ api.Endpoint = (*ResolveReferencesEndpoint)(nil)

func (e *ResolveReferencesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/targets/{owner}/{kind}/references", e.handler
}

func (e *ResolveReferencesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Resolve a target's references
//	@Description	The ordered reference urls a generation of this target would send
//	@Tags			targets
//	@Produce		json
//	@Param			owner	path		string	true	"Shot or entity ID"
//	@Param			kind	path		string	true	"start, end, video or portrait"
//	@Success		200		{object}	ReferencesResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/targets/{owner}/{kind}/references [get]
func (e *ResolveReferencesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := targetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	refs, err := svcctx.EngineFrom(r.Context()).ResolveReferences(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if refs == nil {
		refs = []string{}
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{TargetID: id, References: refs})
}

func (e *ResolveReferencesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "references <target-id>",
		Short: "Show the references a generation would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := targetPath(args[0], "/references")
			if err != nil {
				return err
			}
			var resp ReferencesResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ReferenceRequest names one reference url.
type ReferenceRequest struct {
	URL string `json:"url"`
}

// AddReferenceEndpoint handles POST /api/targets/{owner}/{kind}/references.
type AddReferenceEndpoint struct{}

var _ api.Endpoint = (*AddReferenceEndpoint)(nil)

func (e *AddReferenceEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/targets/{owner}/{kind}/references", e.handler
}

func (e *AddReferenceEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Add a reference
//	@Description	Appends a url and switches the target to manual mode
//	@Tags			targets
//	@Accept			json
//	@Produce		json
//	@Param			owner	path		string				true	"Shot or entity ID"
//	@Param			kind	path		string				true	"start, end, video or portrait"
//	@Param			request	body		ReferenceRequest	true	"Reference url"
//	@Success		200		{object}	TargetResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/targets/{owner}/{kind}/references [post]
func (e *AddReferenceEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := targetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req ReferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	view, err := svcctx.EngineFrom(r.Context()).AddReference(r.Context(), id, req.URL)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TargetResponse{view})
}

func (e *AddReferenceEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "add-ref <target-id> <url>",
		Short: "Add a reference to a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := targetPath(args[0], "/references")
			if err != nil {
				return err
			}
			var resp TargetResponse
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), path, ReferenceRequest{URL: args[1]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RemoveReferenceEndpoint handles DELETE /api/targets/{owner}/{kind}/references.
type RemoveReferenceEndpoint struct{}

var _ api.Endpoint = (*RemoveReferenceEndpoint)(nil)

func (e *RemoveReferenceEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/targets/{owner}/{kind}/references", e.handler
}

func (e *RemoveReferenceEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Remove a reference
//	@Description	Removes and tombstones a url so auto-matching never brings it back
//	@Tags			targets
//	@Produce		json
//	@Param			owner	path		string	true	"Shot or entity ID"
//	@Param			kind	path		string	true	"start, end, video or portrait"
//	@Param			url		query		string	true	"Reference url"
//	@Success		200		{object}	TargetResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/targets/{owner}/{kind}/references [delete]
func (e *RemoveReferenceEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := targetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	ref := r.URL.Query().Get("url")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	view, err := svcctx.EngineFrom(r.Context()).RemoveReference(r.Context(), id, ref)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TargetResponse{view})
}

func (e *RemoveReferenceEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm-ref <target-id> <url>",
		Short: "Remove (and tombstone) a reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := targetPath(args[0], "/references")
			if err != nil {
				return err
			}
			var resp TargetResponse
			if err := api.NewClient(getServerURL()).Delete(cmd.Context(), path+"?url="+url.QueryEscape(args[1]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ClearTombstonesEndpoint handles DELETE /api/targets/{owner}/{kind}/tombstones.
type ClearTombstonesEndpoint struct{}

var _ api.Endpoint = (*ClearTombstonesEndpoint)(nil)

func (e *ClearTombstonesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/targets/{owner}/{kind}/tombstones", e.handler
}

func (e *ClearTombstonesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Clear tombstones
//	@Description	Lifts the tombstone on one url, or on all urls when url is omitted
//	@Tags			targets
//	@Produce		json
//	@Param			owner	path		string	true	"Shot or entity ID"
//	@Param			kind	path		string	true	"start, end, video or portrait"
//	@Param			url		query		string	false	"Reference url"
//	@Success		200		{object}	TargetResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/targets/{owner}/{kind}/tombstones [delete]
func (e *ClearTombstonesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := targetID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	view, err := svcctx.EngineFrom(r.Context()).ClearTombstones(r.Context(), id, r.URL.Query().Get("url"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TargetResponse{view})
}

func (e *ClearTombstonesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-tombstones <target-id> [url]",
		Short: "Allow removed references to be auto-matched again",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := targetPath(args[0], "/tombstones")
			if err != nil {
				return err
			}
			if len(args) == 2 {
				path += "?url=" + url.QueryEscape(args[1])
			}
			var resp TargetResponse
			if err := api.NewClient(getServerURL()).Delete(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
