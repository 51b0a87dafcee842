package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/storyboard/internal/types"
)

// ErrInvalidBundle is returned when a bundle cannot be parsed or fails validation.
var ErrInvalidBundle = errors.New("invalid bundle")

// Bundle formats accepted by ImportBundle.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Bundle seeds a project with its entities and shots.
type Bundle struct {
	Project  types.Project  `json:"project"`
	Entities []BundleEntity `json:"entities"`
	Shots    []BundleShot   `json:"shots"`
}

// BundleEntity is an entity plus the prompt for its portrait target.
type BundleEntity struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	AltName        string   `json:"alt_name"`
	Kind           string   `json:"kind"`
	Anchor         string   `json:"anchor"`
	Description    string   `json:"description"`
	ImageURL       string   `json:"image_url"`
	Dependencies   []string `json:"dependencies"`
	PortraitPrompt string   `json:"portrait_prompt"`
}

// BundleShot is a shot plus the prompts for its three targets.
type BundleShot struct {
	ID              string   `json:"id"`
	EpisodeID       string   `json:"episode_id"`
	SceneID         string   `json:"scene_id"`
	Sequence        int      `json:"sequence"`
	VideoMode       string   `json:"video_mode"`
	DurationSeconds int      `json:"duration_seconds"`
	Keyframes       []string `json:"keyframes"`
	StartPrompt     string   `json:"start_prompt"`
	EndPrompt       string   `json:"end_prompt"`
	VideoPrompt     string   `json:"video_prompt"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	ProjectID string `json:"project_id"`
	Entities  int    `json:"entities"`
	Shots     int    `json:"shots"`
	Targets   int    `json:"targets"`
}

const bundleSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["project"],
  "properties": {
    "project": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "global_style": {"type": "string"},
        "tone": {"type": "string"},
        "lighting": {"type": "string"}
      }
    },
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "alt_name": {"type": "string"},
          "kind": {"enum": ["character", "prop", "environment"]},
          "anchor": {"type": "string"},
          "description": {"type": "string"},
          "image_url": {"type": "string"},
          "dependencies": {"type": "array", "items": {"type": "string"}},
          "portrait_prompt": {"type": "string"}
        }
      }
    },
    "shots": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "sequence"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "episode_id": {"type": "string"},
          "scene_id": {"type": "string"},
          "sequence": {"type": "integer"},
          "video_mode": {"enum": ["start_end", "start_only", "end_only", "references"]},
          "duration_seconds": {"type": "integer", "minimum": 0},
          "keyframes": {"type": "array", "items": {"type": "string"}},
          "start_prompt": {"type": "string"},
          "end_prompt": {"type": "string"},
          "video_prompt": {"type": "string"}
        }
      }
    }
  }
}`

var (
	bundleSchemaOnce sync.Once
	bundleSchema     *jsonschema.Schema
	bundleSchemaErr  error
)

func compiledBundleSchema() (*jsonschema.Schema, error) {
	bundleSchemaOnce.Do(func() {
		bundleSchema, bundleSchemaErr = jsonschema.CompileString("bundle.json", bundleSchemaJSON)
	})
	return bundleSchema, bundleSchemaErr
}

// ParseBundle decodes and validates a bundle in the given format.
func ParseBundle(r io.Reader, format string) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}

	var doc any
	switch strings.ToLower(format) {
	case FormatYAML, "yml", "":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %w", ErrInvalidBundle, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: parse json: %w", ErrInvalidBundle, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidBundle, format)
	}

	schema, err := compiledBundleSchema()
	if err != nil {
		return nil, fmt.Errorf("compile bundle schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}

	// Round-trip through JSON so both formats share the struct tags.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(normalized, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

// ImportBundle parses a bundle and writes it into s. Existing records with
// the same ids are replaced; existing targets keep their reference lists and
// tombstones and only take the bundle's prompt.
func ImportBundle(ctx context.Context, s Store, r io.Reader, format string) (*ImportResult, error) {
	b, err := ParseBundle(r, format)
	if err != nil {
		return nil, err
	}

	projectID := b.Project.ID
	if err := s.SaveProject(ctx, &b.Project); err != nil {
		return nil, err
	}
	res := &ImportResult{ProjectID: projectID}

	for _, be := range b.Entities {
		e := types.Entity{
			ID:             be.ID,
			ProjectID:      projectID,
			Name:           be.Name,
			AltName:        be.AltName,
			Kind:           types.ParseEntityKind(be.Kind),
			Anchor:         be.Anchor,
			Description:    be.Description,
			ImageURL:       be.ImageURL,
			Dependencies:   be.Dependencies,
			PortraitPrompt: be.PortraitPrompt,
		}
		if e.ImageURL == "" {
			existing, err := s.GetEntity(ctx, e.ID)
			switch {
			case err == nil:
				e.ImageURL = existing.ImageURL
			case !errors.Is(err, ErrNotFound):
				return nil, err
			}
		}
		if err := s.SaveEntity(ctx, &e); err != nil {
			return nil, err
		}
		res.Entities++

		if be.PortraitPrompt != "" {
			if err := upsertTargetPrompt(ctx, s, projectID, e.ID, types.TargetPortrait, types.PortraitTargetID(e.ID), be.PortraitPrompt); err != nil {
				return nil, err
			}
			res.Targets++
		}
	}

	for _, bs := range b.Shots {
		sh := types.Shot{
			ID:              bs.ID,
			ProjectID:       projectID,
			EpisodeID:       bs.EpisodeID,
			SceneID:         bs.SceneID,
			Sequence:        bs.Sequence,
			Keyframes:       bs.Keyframes,
			VideoMode:       types.ParseVideoMode(bs.VideoMode),
			DurationSeconds: bs.DurationSeconds,
		}
		existing, err := s.GetShot(ctx, bs.ID)
		switch {
		case err == nil:
			sh.StartFrameURL = existing.StartFrameURL
			sh.EndFrameURL = existing.EndFrameURL
			sh.VideoURL = existing.VideoURL
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		if err := s.SaveShot(ctx, &sh); err != nil {
			return nil, err
		}
		res.Shots++

		prompts := []struct {
			kind   types.TargetKind
			prompt string
		}{
			{types.TargetStart, bs.StartPrompt},
			{types.TargetEnd, bs.EndPrompt},
			{types.TargetVideo, bs.VideoPrompt},
		}
		for _, p := range prompts {
			if p.prompt == "" {
				continue
			}
			if err := upsertTargetPrompt(ctx, s, projectID, sh.ID, p.kind, types.ShotTargetID(sh.ID, p.kind), p.prompt); err != nil {
				return nil, err
			}
			res.Targets++
		}
	}

	return res, nil
}

func upsertTargetPrompt(ctx context.Context, s Store, projectID, ownerID string, kind types.TargetKind, id, prompt string) error {
	t, err := s.GetTarget(ctx, id)
	if errors.Is(err, ErrNotFound) {
		t = &types.Target{ID: id, ProjectID: projectID, OwnerID: ownerID, Kind: kind}
	} else if err != nil {
		return err
	}
	t.Prompt = prompt
	return s.SaveTarget(ctx, t)
}
