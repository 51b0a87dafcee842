package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/storyboard/internal/api"
	"github.com/jackzampolin/storyboard/internal/svcctx"
)

// AssetEndpoint serves rendered files from the home assets directory.
type AssetEndpoint struct{}

var _ api.Endpoint = (*AssetEndpoint)(nil)

func (e *AssetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/assets/{name}", e.handler
}

func (e *AssetEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Download a generated asset
//	@Tags		assets
//	@Produce	octet-stream
//	@Param		name	path	string	true	"Asset file name"
//	@Success	200		{file}	binary
//	@Failure	404		{object}	ErrorResponse
//	@Router		/assets/{name} [get]
func (e *AssetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.AssetsFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "asset store not initialized")
		return
	}
	p, err := store.Path(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, p)
}

func (e *AssetEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}
