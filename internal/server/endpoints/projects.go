package endpoints

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/export"
	"github.com/jackzampolin/storyboard/internal/store"
	"github.com/jackzampolin/storyboard/internal/svcctx"
	"github.com/jackzampolin/storyboard/internal/types"
)

// ListProjectsResponse is the response for listing projects.
type ListProjectsResponse struct {
	Projects []types.Project `json:"projects"`
}

func (r ListProjectsResponse) TableHeaders() []string {
	return []string{"ID", "NAME", "STYLE"}
}

func (r ListProjectsResponse) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Projects))
	for _, p := range r.Projects {
		rows = append(rows, []string{p.ID, p.Name, p.GlobalStyle})
	}
	return rows
}

// ListProjectsEndpoint handles GET /api/projects.
type ListProjectsEndpoint struct{}

var _ api.Endpoint = (*ListProjectsEndpoint)(nil)

func (e *ListProjectsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/projects", e.handler
}

func (e *ListProjectsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List projects
//	@Tags		projects
//	@Produce	json
//	@Success	200	{object}	ListProjectsResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/projects [get]
func (e *ListProjectsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	projects, err := svcctx.StoreFrom(r.Context()).ListProjects(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if projects == nil {
		projects = []types.Project{}
	}
	writeJSON(w, http.StatusOK, ListProjectsResponse{Projects: projects})
}

func (e *ListProjectsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ListProjectsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/projects", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListEntitiesResponse is the response for listing a project's entities.
type ListEntitiesResponse struct {
	Entities []types.Entity `json:"entities"`
}

func (r ListEntitiesResponse) TableHeaders() []string {
	return []string{"ID", "NAME", "KIND", "DEPENDS ON", "IMAGE"}
}

func (r ListEntitiesResponse) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Entities))
	for _, e := range r.Entities {
		rows = append(rows, []string{e.ID, e.Name, string(e.Kind), strings.Join(e.Dependencies, ", "), e.ImageURL})
	}
	return rows
}

// ListEntitiesEndpoint handles GET /api/projects/{id}/entities.
type ListEntitiesEndpoint struct{}

var _ api.Endpoint = (*ListEntitiesEndpoint)(nil)

func (e *ListEntitiesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/projects/{id}/entities", e.handler
}

func (e *ListEntitiesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List entities
//	@Tags		projects
//	@Produce	json
//	@Param		id	path		string	true	"Project ID"
//	@Success	200	{object}	ListEntitiesResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/projects/{id}/entities [get]
func (e *ListEntitiesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	id := r.PathValue("id")
	if _, err := st.GetProject(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	entities, err := st.ListEntities(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if entities == nil {
		entities = []types.Entity{}
	}
	writeJSON(w, http.StatusOK, ListEntitiesResponse{Entities: entities})
}

func (e *ListEntitiesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "entities <project-id>",
		Short: "List a project's entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ListEntitiesResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/projects/"+url.PathEscape(args[0])+"/entities", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListShotsResponse is the response for listing a project's shots.
type ListShotsResponse struct {
	Shots []types.Shot `json:"shots"`
}

func (r ListShotsResponse) TableHeaders() []string {
	return []string{"SEQ", "ID", "SCENE", "MODE", "START", "END", "VIDEO"}
}

func (r ListShotsResponse) TableRows() [][]string {
	mark := func(url string) string {
		if url == "" {
			return "-"
		}
		return "yes"
	}
	rows := make([][]string, 0, len(r.Shots))
	for _, s := range r.Shots {
		rows = append(rows, []string{strconv.Itoa(s.Sequence), s.ID, s.SceneID, string(s.Mode()), mark(s.StartFrameURL), mark(s.EndFrameURL), mark(s.VideoURL)})
	}
	return rows
}

// ListShotsEndpoint handles GET /api/projects/{id}/shots.
type ListShotsEndpoint struct{}

var _ api.Endpoint = (*ListShotsEndpoint)(nil)

func (e *ListShotsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/projects/{id}/shots", e.handler
}

func (e *ListShotsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List shots in sequence order
//	@Tags		projects
//	@Produce	json
//	@Param		id	path		string	true	"Project ID"
//	@Success	200	{object}	ListShotsResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/projects/{id}/shots [get]
func (e *ListShotsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := svcctx.StoreFrom(ctx)
	id := r.PathValue("id")
	if _, err := st.GetProject(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	shots, err := st.ListShots(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if shots == nil {
		shots = []types.Shot{}
	}
	writeJSON(w, http.StatusOK, ListShotsResponse{Shots: shots})
}

func (e *ListShotsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "shots <project-id>",
		Short: "List a project's shots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ListShotsResponse
			if err := api.NewClient(getServerURL()).Get(cmd.Context(), "/api/projects/"+url.PathEscape(args[0])+"/shots", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// InjectRequest is text to expand.
type InjectRequest struct {
	Text string `json:"text"`
}

// InjectResponse is the expanded text.
type InjectResponse struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`
}

// InjectEndpoint handles POST /api/projects/{id}/inject.
type InjectEndpoint struct{}

var _ api.Endpoint = (*InjectEndpoint)(nil)

func (e *InjectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/projects/{id}/inject", e.handler
}

func (e *InjectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Expand entity mentions
//	@Description	Rewrites [Name] as [Name](anchor) and expands the {Global Style} macro; expanding twice changes nothing
//	@Tags			projects
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Project ID"
//	@Param			request	body		InjectRequest	true	"Text"
//	@Success		200		{object}	InjectResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/projects/{id}/inject [post]
func (e *InjectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req InjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text, changed, err := svcctx.EngineFrom(r.Context()).InjectFeatures(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InjectResponse{Text: text, Changed: changed})
}

func (e *InjectEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "inject <project-id> <text>",
		Short: "Expand entity mentions in text",
		Example: `  storyboard api projects inject pilot "Meet [Hero] at dawn"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp InjectResponse
			if err := api.NewClient(getServerURL()).Post(cmd.Context(), "/api/projects/"+url.PathEscape(args[0])+"/inject", InjectRequest{Text: args[1]}, &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatTable {
				fmt.Println(resp.Text)
				return nil
			}
			return api.Output(resp)
		},
	}
}

// ImportBundleEndpoint handles POST /api/projects/import.
type ImportBundleEndpoint struct{}

var _ api.Endpoint = (*ImportBundleEndpoint)(nil)

func (e *ImportBundleEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/projects/import", e.handler
}

func (e *ImportBundleEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Import a project bundle
//	@Description	Creates or updates a project, its entities and shots from a YAML or JSON bundle. Existing target prompts and references are kept.
//	@Tags			projects
//	@Accept			json
//	@Accept			x-yaml
//	@Produce		json
//	@Success		200	{object}	store.ImportResult
//	@Failure		400	{object}	ErrorResponse
//	@Router			/api/projects/import [post]
func (e *ImportBundleEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	format := store.FormatYAML
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		format = store.FormatJSON
	}
	res, err := store.ImportBundle(r.Context(), svcctx.StoreFrom(r.Context()), io.LimitReader(r.Body, maxBodyBytes), format)
	if err != nil {
		if errors.Is(err, store.ErrInvalidBundle) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *ImportBundleEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle.yaml|bundle.json>",
		Short: "Import a project bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			contentType := "application/x-yaml"
			if strings.EqualFold(filepath.Ext(args[0]), ".json") {
				contentType = "application/json"
			}
			var resp store.ImportResult
			if err := api.NewClient(getServerURL()).PostRaw(cmd.Context(), "/api/projects/import", contentType, bytes.NewReader(data), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ExportStoryboardEndpoint handles GET /api/projects/{id}/storyboard.pdf.
type ExportStoryboardEndpoint struct{}

var _ api.Endpoint = (*ExportStoryboardEndpoint)(nil)

func (e *ExportStoryboardEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/projects/{id}/storyboard.pdf", e.handler
}

func (e *ExportStoryboardEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Export storyboard PDF
//	@Description	One page per generated start and end frame, in shot order
//	@Tags			projects
//	@Produce		application/pdf
//	@Param			id	path		string	true	"Project ID"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	ErrorResponse
//	@Failure		422	{object}	ErrorResponse
//	@Router			/api/projects/{id}/storyboard.pdf [get]
func (e *ExportStoryboardEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	x := svcctx.ExporterFrom(r.Context())
	if x == nil {
		writeError(w, http.StatusServiceUnavailable, "exporter not initialized")
		return
	}
	id := r.PathValue("id")
	var buf bytes.Buffer
	res, err := x.Storyboard(r.Context(), id, &buf)
	if err != nil {
		if errors.Is(err, export.ErrNoFrames) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"-storyboard.pdf"))
	w.Header().Set("X-Storyboard-Pages", strconv.Itoa(res.Pages))
	w.Header().Set("X-Storyboard-Skipped", strconv.Itoa(len(res.Skipped)))
	w.Write(buf.Bytes())
}

func (e *ExportStoryboardEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Download the storyboard PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = args[0] + "-storyboard.pdf"
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			n, err := api.NewClient(getServerURL()).Download(cmd.Context(), "/api/projects/"+url.PathEscape(args[0])+"/storyboard.pdf", f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(out)
				return err
			}
			fmt.Printf("Wrote %s (%d bytes)\n", out, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "file", "f", "", "Output file (default <project>-storyboard.pdf)")
	return cmd
}
