package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/storyboard/internal/defra"
	"github.com/jackzampolin/storyboard/internal/types"
)

// createdAtLayout is fixed width so created_at sorts lexically.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// Defra is a Store backed by DefraDB collections (see internal/schema).
// Record ids are held in each document's key field.
type Defra struct {
	client *defra.Client
}

// NewDefra creates a store over an initialized DefraDB.
func NewDefra(client *defra.Client) *Defra {
	return &Defra{client: client}
}

// Close is a no-op; the container lifecycle belongs to the server.
func (d *Defra) Close() error {
	return nil
}

type projectDoc struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	GlobalStyle string `json:"global_style"`
	Tone        string `json:"tone"`
	Lighting    string `json:"lighting"`
}

var projectFields = []string{"key", "name", "global_style", "tone", "lighting"}

func (p projectDoc) toType() types.Project {
	return types.Project{ID: p.Key, Name: p.Name, GlobalStyle: p.GlobalStyle, Tone: p.Tone, Lighting: p.Lighting}
}

type entityDoc struct {
	Key            string   `json:"key"`
	ProjectKey     string   `json:"project_key"`
	Name           string   `json:"name"`
	AltName        string   `json:"alt_name"`
	Kind           string   `json:"kind"`
	Anchor         string   `json:"anchor"`
	Description    string   `json:"description"`
	ImageURL       string   `json:"image_url"`
	Dependencies   []string `json:"dependencies"`
	PortraitPrompt string   `json:"portrait_prompt"`
}

var entityFields = []string{"key", "project_key", "name", "alt_name", "kind", "anchor",
	"description", "image_url", "dependencies", "portrait_prompt"}

func (e entityDoc) toType() types.Entity {
	return types.Entity{
		ID:             e.Key,
		ProjectID:      e.ProjectKey,
		Name:           e.Name,
		AltName:        e.AltName,
		Kind:           types.ParseEntityKind(e.Kind),
		Anchor:         e.Anchor,
		Description:    e.Description,
		ImageURL:       e.ImageURL,
		Dependencies:   e.Dependencies,
		PortraitPrompt: e.PortraitPrompt,
	}
}

type shotDoc struct {
	Key             string   `json:"key"`
	ProjectKey      string   `json:"project_key"`
	EpisodeKey      string   `json:"episode_key"`
	SceneKey        string   `json:"scene_key"`
	Sequence        int      `json:"sequence"`
	StartFrameURL   string   `json:"start_frame_url"`
	EndFrameURL     string   `json:"end_frame_url"`
	VideoURL        string   `json:"video_url"`
	Keyframes       []string `json:"keyframes"`
	VideoMode       string   `json:"video_mode"`
	DurationSeconds int      `json:"duration_seconds"`
}

var shotFields = []string{"key", "project_key", "episode_key", "scene_key", "sequence",
	"start_frame_url", "end_frame_url", "video_url", "keyframes", "video_mode", "duration_seconds"}

func (s shotDoc) toType() types.Shot {
	return types.Shot{
		ID:              s.Key,
		ProjectID:       s.ProjectKey,
		EpisodeID:       s.EpisodeKey,
		SceneID:         s.SceneKey,
		Sequence:        s.Sequence,
		StartFrameURL:   s.StartFrameURL,
		EndFrameURL:     s.EndFrameURL,
		VideoURL:        s.VideoURL,
		Keyframes:       s.Keyframes,
		VideoMode:       types.ParseVideoMode(s.VideoMode),
		DurationSeconds: s.DurationSeconds,
	}
}

type targetDoc struct {
	Key        string   `json:"key"`
	ProjectKey string   `json:"project_key"`
	OwnerKey   string   `json:"owner_key"`
	Kind       string   `json:"kind"`
	Prompt     string   `json:"prompt"`
	Manual     bool     `json:"manual"`
	References []string `json:"references"`
	Tombstones []string `json:"tombstones"`
	AssetURL   string   `json:"asset_url"`
	UpdatedAt  string   `json:"updated_at"`
}

var targetFields = []string{"key", "project_key", "owner_key", "kind", "prompt", "manual",
	"references", "tombstones", "asset_url", "updated_at"}

func (t targetDoc) toType() types.Target {
	out := types.Target{
		ID:         t.Key,
		ProjectID:  t.ProjectKey,
		OwnerID:    t.OwnerKey,
		Kind:       types.TargetKind(t.Kind),
		Prompt:     t.Prompt,
		Manual:     t.Manual,
		Tombstones: t.Tombstones,
		AssetURL:   t.AssetURL,
	}
	if t.Manual {
		out.References = t.References
	}
	if ts, err := time.Parse(time.RFC3339Nano, t.UpdatedAt); err == nil {
		out.UpdatedAt = ts
	}
	return out
}

// getOne fetches the single document in collection whose key is id.
func getOne[T any](ctx context.Context, d *Defra, collection, kind, id string, fields []string) (*T, error) {
	resp, err := defra.NewQuery(collection).Filter("key", id).Fields(fields...).Limit(1).Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	var docs []T
	if err := resp.Docs(collection, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, notFound(kind, id)
	}
	return &docs[0], nil
}

func listBy[T any](ctx context.Context, d *Defra, collection, projectID, orderField string, fields []string) ([]T, error) {
	resp, err := defra.NewQuery(collection).
		Filter("project_key", projectID).
		Fields(fields...).
		OrderBy(orderField, "ASC").
		Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	var docs []T
	if err := resp.Docs(collection, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (d *Defra) upsert(ctx context.Context, collection, id string, create, update map[string]any) error {
	if _, err := d.client.Upsert(ctx, collection, map[string]any{"key": map[string]any{"_eq": id}}, create, update); err != nil {
		return fmt.Errorf("save %s: %w", collection, err)
	}
	return nil
}

// GetProject fetches a project by id.
func (d *Defra) GetProject(ctx context.Context, id string) (*types.Project, error) {
	doc, err := getOne[projectDoc](ctx, d, "Project", "project", id, projectFields)
	if err != nil {
		return nil, err
	}
	p := doc.toType()
	return &p, nil
}

// SaveProject inserts or replaces a project.
func (d *Defra) SaveProject(ctx context.Context, p *types.Project) error {
	if err := validateID("project", p.ID); err != nil {
		return err
	}
	input := map[string]any{
		"key":          p.ID,
		"name":         p.Name,
		"global_style": p.GlobalStyle,
		"tone":         p.Tone,
		"lighting":     p.Lighting,
	}
	return d.upsert(ctx, "Project", p.ID, input, input)
}

// ListProjects returns every project ordered by id.
func (d *Defra) ListProjects(ctx context.Context) ([]types.Project, error) {
	resp, err := defra.NewQuery("Project").Fields(projectFields...).OrderBy("key", "ASC").Execute(ctx, d.client)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var docs []projectDoc
	if err := resp.Docs("Project", &docs); err != nil {
		return nil, err
	}
	out := make([]types.Project, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toType())
	}
	return out, nil
}

// ListEntities returns a project's entities in the order they were first saved.
func (d *Defra) ListEntities(ctx context.Context, projectID string) ([]types.Entity, error) {
	docs, err := listBy[entityDoc](ctx, d, "Entity", projectID, "created_at", entityFields)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entity, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toType())
	}
	return out, nil
}

// GetEntity fetches an entity by id.
func (d *Defra) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	doc, err := getOne[entityDoc](ctx, d, "Entity", "entity", id, entityFields)
	if err != nil {
		return nil, err
	}
	e := doc.toType()
	return &e, nil
}

// SaveEntity inserts or replaces an entity. created_at is only written on
// insert so registry order survives updates.
func (d *Defra) SaveEntity(ctx context.Context, e *types.Entity) error {
	if err := validateID("entity", e.ID); err != nil {
		return err
	}
	kind := e.Kind
	if kind == "" {
		kind = types.KindCharacter
	}
	update := map[string]any{
		"key":             e.ID,
		"project_key":     e.ProjectID,
		"name":            e.Name,
		"alt_name":        e.AltName,
		"kind":            string(kind),
		"anchor":          e.Anchor,
		"description":     e.Description,
		"image_url":       e.ImageURL,
		"dependencies":    stringList(e.Dependencies),
		"portrait_prompt": e.PortraitPrompt,
	}
	create := make(map[string]any, len(update)+1)
	for k, v := range update {
		create[k] = v
	}
	create["created_at"] = time.Now().UTC().Format(createdAtLayout)
	return d.upsert(ctx, "Entity", e.ID, create, update)
}

// GetTarget fetches a target by id.
func (d *Defra) GetTarget(ctx context.Context, id string) (*types.Target, error) {
	doc, err := getOne[targetDoc](ctx, d, "Target", "target", id, targetFields)
	if err != nil {
		return nil, err
	}
	t := doc.toType()
	return &t, nil
}

// SaveTarget inserts or replaces a target. The reference list is written
// as null while the target is in auto mode.
func (d *Defra) SaveTarget(ctx context.Context, t *types.Target) error {
	if err := validateID("target", t.ID); err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()
	var refs any
	if t.Manual {
		refs = stringList(t.References)
	}
	input := map[string]any{
		"key":         t.ID,
		"project_key": t.ProjectID,
		"owner_key":   t.OwnerID,
		"kind":        string(t.Kind),
		"prompt":      t.Prompt,
		"manual":      t.Manual,
		"references":  refs,
		"tombstones":  stringList(t.Tombstones),
		"asset_url":   t.AssetURL,
		"updated_at":  t.UpdatedAt.Format(time.RFC3339Nano),
	}
	return d.upsert(ctx, "Target", t.ID, input, input)
}

// GetShot fetches a shot by id.
func (d *Defra) GetShot(ctx context.Context, id string) (*types.Shot, error) {
	doc, err := getOne[shotDoc](ctx, d, "Shot", "shot", id, shotFields)
	if err != nil {
		return nil, err
	}
	sh := doc.toType()
	return &sh, nil
}

// ListShots returns a project's shots ordered by sequence.
func (d *Defra) ListShots(ctx context.Context, projectID string) ([]types.Shot, error) {
	docs, err := listBy[shotDoc](ctx, d, "Shot", projectID, "sequence", shotFields)
	if err != nil {
		return nil, err
	}
	out := make([]types.Shot, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toType())
	}
	types.SortShots(out)
	return out, nil
}

// SaveShot inserts or replaces a shot.
func (d *Defra) SaveShot(ctx context.Context, sh *types.Shot) error {
	if err := validateID("shot", sh.ID); err != nil {
		return err
	}
	input := map[string]any{
		"key":              sh.ID,
		"project_key":      sh.ProjectID,
		"episode_key":      sh.EpisodeID,
		"scene_key":        sh.SceneID,
		"sequence":         sh.Sequence,
		"start_frame_url":  sh.StartFrameURL,
		"end_frame_url":    sh.EndFrameURL,
		"video_url":        sh.VideoURL,
		"keyframes":        stringList(sh.Keyframes),
		"video_mode":       string(sh.Mode()),
		"duration_seconds": sh.DurationSeconds,
	}
	return d.upsert(ctx, "Shot", sh.ID, input, input)
}

func stringList(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

var _ Store = (*Defra)(nil)
