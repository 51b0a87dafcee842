package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jackzampolin/storyboard/internal/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLite is a Store backed by a local SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) applyMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// GetProject fetches a project by id.
func (s *SQLite) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, global_style, tone, lighting FROM projects WHERE id = ?`, id)
	var p types.Project
	if err := row.Scan(&p.ID, &p.Name, &p.GlobalStyle, &p.Tone, &p.Lighting); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("project", id)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// SaveProject inserts or replaces a project.
func (s *SQLite) SaveProject(ctx context.Context, p *types.Project) error {
	if err := validateID("project", p.ID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, global_style, tone, lighting) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   global_style = excluded.global_style,
		   tone = excluded.tone,
		   lighting = excluded.lighting`,
		p.ID, p.Name, p.GlobalStyle, p.Tone, p.Lighting)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// ListProjects returns every project ordered by id.
func (s *SQLite) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, global_style, tone, lighting FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.GlobalStyle, &p.Tone, &p.Lighting); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const entityColumns = "id, project_id, name, alt_name, kind, anchor, description, image_url, dependencies_json, portrait_prompt"

func scanEntity(scanner interface{ Scan(dest ...any) error }) (*types.Entity, error) {
	var (
		e        types.Entity
		kind     string
		depsJSON string
	)
	if err := scanner.Scan(&e.ID, &e.ProjectID, &e.Name, &e.AltName, &kind, &e.Anchor,
		&e.Description, &e.ImageURL, &depsJSON, &e.PortraitPrompt); err != nil {
		return nil, err
	}
	e.Kind = types.ParseEntityKind(kind)
	if err := decodeList(depsJSON, &e.Dependencies); err != nil {
		return nil, fmt.Errorf("decode dependencies for %s: %w", e.ID, err)
	}
	return &e, nil
}

// ListEntities returns a project's entities in the order they were first saved.
func (s *SQLite) ListEntities(ctx context.Context, projectID string) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetEntity fetches an entity by id.
func (s *SQLite) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("entity", id)
		}
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

// SaveEntity inserts or replaces an entity, keeping its registry position.
func (s *SQLite) SaveEntity(ctx context.Context, e *types.Entity) error {
	if err := validateID("entity", e.ID); err != nil {
		return err
	}
	deps, err := encodeList(e.Dependencies)
	if err != nil {
		return err
	}
	kind := e.Kind
	if kind == "" {
		kind = types.KindCharacter
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (`+entityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   project_id = excluded.project_id,
		   name = excluded.name,
		   alt_name = excluded.alt_name,
		   kind = excluded.kind,
		   anchor = excluded.anchor,
		   description = excluded.description,
		   image_url = excluded.image_url,
		   dependencies_json = excluded.dependencies_json,
		   portrait_prompt = excluded.portrait_prompt`,
		e.ID, e.ProjectID, e.Name, e.AltName, string(kind), e.Anchor,
		e.Description, e.ImageURL, deps, e.PortraitPrompt)
	if err != nil {
		return fmt.Errorf("save entity: %w", err)
	}
	return nil
}

// GetTarget fetches a target by id.
func (s *SQLite) GetTarget(ctx context.Context, id string) (*types.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, owner_id, kind, prompt, references_json, tombstones_json, asset_url, updated_at
		 FROM targets WHERE id = ?`, id)

	var (
		t          types.Target
		kind       string
		refsJSON   sql.NullString
		tombsJSON  string
		updatedRaw sql.NullString
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.OwnerID, &kind, &t.Prompt,
		&refsJSON, &tombsJSON, &t.AssetURL, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("target", id)
		}
		return nil, fmt.Errorf("get target: %w", err)
	}
	t.Kind = types.TargetKind(kind)
	if refsJSON.Valid {
		t.Manual = true
		if err := decodeList(refsJSON.String, &t.References); err != nil {
			return nil, fmt.Errorf("decode references for %s: %w", id, err)
		}
	}
	if err := decodeList(tombsJSON, &t.Tombstones); err != nil {
		return nil, fmt.Errorf("decode tombstones for %s: %w", id, err)
	}
	if updatedRaw.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, updatedRaw.String); err == nil {
			t.UpdatedAt = ts
		}
	}
	return &t, nil
}

// SaveTarget inserts or replaces a target. The reference list is stored
// only when the target is manual.
func (s *SQLite) SaveTarget(ctx context.Context, t *types.Target) error {
	if err := validateID("target", t.ID); err != nil {
		return err
	}
	var refs sql.NullString
	if t.Manual {
		encoded, err := encodeList(t.References)
		if err != nil {
			return err
		}
		refs = sql.NullString{String: encoded, Valid: true}
	}
	tombs, err := encodeList(t.Tombstones)
	if err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO targets (id, project_id, owner_id, kind, prompt, references_json, tombstones_json, asset_url, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   project_id = excluded.project_id,
		   owner_id = excluded.owner_id,
		   kind = excluded.kind,
		   prompt = excluded.prompt,
		   references_json = excluded.references_json,
		   tombstones_json = excluded.tombstones_json,
		   asset_url = excluded.asset_url,
		   updated_at = excluded.updated_at`,
		t.ID, t.ProjectID, t.OwnerID, string(t.Kind), t.Prompt, refs, tombs, t.AssetURL,
		t.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save target: %w", err)
	}
	return nil
}

const shotColumns = "id, project_id, episode_id, scene_id, sequence, start_frame_url, end_frame_url, video_url, keyframes_json, video_mode, duration_seconds"

func scanShot(scanner interface{ Scan(dest ...any) error }) (*types.Shot, error) {
	var (
		sh        types.Shot
		keyframes string
		mode      string
	)
	if err := scanner.Scan(&sh.ID, &sh.ProjectID, &sh.EpisodeID, &sh.SceneID, &sh.Sequence,
		&sh.StartFrameURL, &sh.EndFrameURL, &sh.VideoURL, &keyframes, &mode, &sh.DurationSeconds); err != nil {
		return nil, err
	}
	sh.VideoMode = types.ParseVideoMode(mode)
	if err := decodeList(keyframes, &sh.Keyframes); err != nil {
		return nil, fmt.Errorf("decode keyframes for %s: %w", sh.ID, err)
	}
	return &sh, nil
}

// GetShot fetches a shot by id.
func (s *SQLite) GetShot(ctx context.Context, id string) (*types.Shot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shotColumns+` FROM shots WHERE id = ?`, id)
	sh, err := scanShot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("shot", id)
		}
		return nil, fmt.Errorf("get shot: %w", err)
	}
	return sh, nil
}

// ListShots returns a project's shots ordered by sequence.
func (s *SQLite) ListShots(ctx context.Context, projectID string) ([]types.Shot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shotColumns+` FROM shots WHERE project_id = ? ORDER BY sequence, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list shots: %w", err)
	}
	defer rows.Close()

	var out []types.Shot
	for rows.Next() {
		sh, err := scanShot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shot: %w", err)
		}
		out = append(out, *sh)
	}
	return out, rows.Err()
}

// SaveShot inserts or replaces a shot.
func (s *SQLite) SaveShot(ctx context.Context, sh *types.Shot) error {
	if err := validateID("shot", sh.ID); err != nil {
		return err
	}
	keyframes, err := encodeList(sh.Keyframes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shots (`+shotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   project_id = excluded.project_id,
		   episode_id = excluded.episode_id,
		   scene_id = excluded.scene_id,
		   sequence = excluded.sequence,
		   start_frame_url = excluded.start_frame_url,
		   end_frame_url = excluded.end_frame_url,
		   video_url = excluded.video_url,
		   keyframes_json = excluded.keyframes_json,
		   video_mode = excluded.video_mode,
		   duration_seconds = excluded.duration_seconds`,
		sh.ID, sh.ProjectID, sh.EpisodeID, sh.SceneID, sh.Sequence,
		sh.StartFrameURL, sh.EndFrameURL, sh.VideoURL, keyframes,
		string(sh.Mode()), sh.DurationSeconds)
	if err != nil {
		return fmt.Errorf("save shot: %w", err)
	}
	return nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string, out *[]string) error {
	if strings.TrimSpace(raw) == "" {
		*out = nil
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return err
	}
	if len(items) == 0 {
		items = nil
	}
	*out = items
	return nil
}

var _ Store = (*SQLite)(nil)
