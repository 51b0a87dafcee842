// Package store persists projects, entities, shots and generation targets.
//
// Two backends implement Store: SQLite (the default, a single local file)
// and DefraDB (a document store run in a managed container).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackzampolin/storyboard/internal/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendDefra  = "defra"
)

// Store is the data store the generation engine reads and writes.
//
// SaveTarget writes the whole persisted layout of a target in one call:
// prompt, reference list (absent while the target is in auto mode),
// tombstones and the last asset url.
type Store interface {
	GetProject(ctx context.Context, id string) (*types.Project, error)
	SaveProject(ctx context.Context, p *types.Project) error
	ListProjects(ctx context.Context) ([]types.Project, error)

	// ListEntities returns a project's entities in registry order
	// (the order they were first saved).
	ListEntities(ctx context.Context, projectID string) ([]types.Entity, error)
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
	SaveEntity(ctx context.Context, e *types.Entity) error

	GetTarget(ctx context.Context, id string) (*types.Target, error)
	SaveTarget(ctx context.Context, t *types.Target) error

	GetShot(ctx context.Context, id string) (*types.Shot, error)
	// ListShots returns a project's shots ordered by sequence.
	ListShots(ctx context.Context, projectID string) ([]types.Shot, error)
	SaveShot(ctx context.Context, s *types.Shot) error

	Close() error
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func validateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id is required", kind)
	}
	return nil
}
