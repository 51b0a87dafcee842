// Package export renders a project's generated frames into a PDF storyboard.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/jackzampolin/storyboard/internal/assets"
	"github.com/jackzampolin/storyboard/internal/store"
)

// ErrNoFrames is returned when a project has no frame that could be read.
var ErrNoFrames = errors.New("no generated frames to export")

const (
	pageLayout   = "form:A4L, pos:c, sc:0.85 rel"
	captionStyle = "font:Helvetica, points:12, pos:bc, off:0 14, sc:1 abs, rot:0, fillc:#202020, op:1"
)

// Frame is one page of the storyboard.
type Frame struct {
	ShotID  string `json:"shot_id"`
	Kind    string `json:"kind"`
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// Result describes a written storyboard.
type Result struct {
	ProjectID string   `json:"project_id"`
	Pages     int      `json:"pages"`
	Frames    []Frame  `json:"frames"`
	Skipped   []string `json:"skipped,omitempty"` // urls that could not be read
}

// Exporter builds storyboards from stored shots.
type Exporter struct {
	store  store.Store
	assets *assets.Store
	logger *slog.Logger
}

// New creates an exporter that reads frames through as.
func New(st store.Store, as *assets.Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: st, assets: as, logger: logger}
}

// Frames lists the frames a storyboard for projectID would contain, in
// shot order: each shot's start frame, then its end frame.
func (x *Exporter) Frames(ctx context.Context, projectID string) ([]Frame, error) {
	if _, err := x.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	shots, err := x.store.ListShots(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var frames []Frame
	for _, s := range shots {
		if s.StartFrameURL != "" {
			frames = append(frames, Frame{ShotID: s.ID, Kind: "start", URL: s.StartFrameURL, Caption: caption(s.SceneID, s.ID, s.Sequence, "start")})
		}
		if s.EndFrameURL != "" {
			frames = append(frames, Frame{ShotID: s.ID, Kind: "end", URL: s.EndFrameURL, Caption: caption(s.SceneID, s.ID, s.Sequence, "end")})
		}
	}
	return frames, nil
}

func caption(sceneID, shotID string, seq int, kind string) string {
	if sceneID == "" {
		return fmt.Sprintf("#%d %s (%s)", seq, shotID, kind)
	}
	return fmt.Sprintf("#%d %s / %s (%s)", seq, sceneID, shotID, kind)
}

// Storyboard writes the project's storyboard PDF to w. Frames that cannot
// be read are skipped and reported in the result.
func (x *Exporter) Storyboard(ctx context.Context, projectID string, w io.Writer) (*Result, error) {
	frames, err := x.Frames(ctx, projectID)
	if err != nil {
		return nil, err
	}

	res := &Result{ProjectID: projectID}
	var images []io.Reader
	for _, f := range frames {
		data, err := x.read(ctx, f.URL)
		if err != nil {
			x.logger.Warn("skipping frame", "shot", f.ShotID, "kind", f.Kind, "url", f.URL, "error", err)
			res.Skipped = append(res.Skipped, f.URL)
			continue
		}
		images = append(images, bytes.NewReader(data))
		res.Frames = append(res.Frames, f)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNoFrames)
	}

	conf := model.NewDefaultConfiguration()
	imp, err := api.Import(pageLayout, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("page layout: %w", err)
	}

	var doc bytes.Buffer
	if err := api.ImportImages(nil, &doc, images, imp, conf); err != nil {
		return nil, fmt.Errorf("build storyboard: %w", err)
	}

	captioned, err := addCaptions(doc.Bytes(), res.Frames, conf)
	if err != nil {
		return nil, err
	}
	res.Pages = len(res.Frames)

	if _, err := w.Write(captioned); err != nil {
		return nil, fmt.Errorf("write storyboard: %w", err)
	}
	x.logger.Info("storyboard exported", "project", projectID, "pages", res.Pages, "skipped", len(res.Skipped))
	return res, nil
}

// addCaptions stamps each page with its frame caption.
func addCaptions(doc []byte, frames []Frame, conf *model.Configuration) ([]byte, error) {
	for i, f := range frames {
		wm, err := api.TextWatermark(f.Caption, captionStyle, true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("caption for %s: %w", f.ShotID, err)
		}
		var out bytes.Buffer
		if err := api.AddWatermarks(bytes.NewReader(doc), &out, []string{fmt.Sprint(i + 1)}, wm, conf); err != nil {
			return nil, fmt.Errorf("caption page %d: %w", i+1, err)
		}
		doc = out.Bytes()
	}
	return doc, nil
}

func (x *Exporter) read(ctx context.Context, url string) ([]byte, error) {
	rc, err := x.assets.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
