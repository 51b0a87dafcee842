package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jackzampolin/storyboard/internal/generation"
	"github.com/jackzampolin/storyboard/internal/jobs"
	"github.com/jackzampolin/storyboard/internal/store"
	"github.com/jackzampolin/storyboard/internal/types"
)

const maxBodyBytes = 8 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeErr maps err to a status code and writes it.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor maps engine, store and job errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, generation.ErrSlotBusy), errors.Is(err, jobs.ErrProjectBusy):
		return http.StatusConflict
	case errors.Is(err, generation.ErrNothingToInherit),
		errors.Is(err, generation.ErrMissingFrame),
		errors.Is(err, generation.ErrEmptyPrompt),
		errors.Is(err, generation.ErrInvalidTarget):
		return http.StatusUnprocessableEntity
	case errors.Is(err, jobs.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, generation.ErrRenderFailed):
		return http.StatusBadGateway
	case errors.Is(err, generation.ErrCancelled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// targetID rebuilds a target id from the {owner} and {kind} path segments.
func targetID(r *http.Request) (string, error) {
	owner, kind := r.PathValue("owner"), types.TargetKind(r.PathValue("kind"))
	if owner == "" || !kind.Valid() {
		return "", fmt.Errorf("%w: %s/%s", generation.ErrInvalidTarget, owner, kind)
	}
	return owner + "/" + string(kind), nil
}

// targetPath builds the API path of a target id such as "s1/start".
func targetPath(id string, suffix string) (string, error) {
	owner, kind, ok := types.SplitTargetID(id)
	if !ok {
		return "", fmt.Errorf("%w: %s (want <shot>/start|end|video or <entity>/portrait)", generation.ErrInvalidTarget, id)
	}
	return "/api/targets/" + url.PathEscape(owner) + "/" + string(kind) + suffix, nil
}
