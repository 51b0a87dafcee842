// Package schema holds the DefraDB collection definitions for the defra
// store backend.
package schema

import (
	"embed"
	"fmt"
	"slices"
	"strings"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Schema is one DefraDB collection.
type Schema struct {
	Name string
	SDL  string
}

// collections in the order they are added. They reference each other by
// key fields only.
var collections = []string{"Project", "Entity", "Shot", "Target"}

// All returns every collection schema in the order they are added.
func All() ([]Schema, error) {
	out := make([]Schema, 0, len(collections))
	for _, name := range collections {
		s, err := load(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Get returns a single collection schema by name.
func Get(name string) (*Schema, error) {
	if !slices.Contains(collections, name) {
		return nil, fmt.Errorf("schema not found: %s", name)
	}
	s, err := load(name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func load(name string) (Schema, error) {
	sdl, err := schemaFS.ReadFile("schemas/" + strings.ToLower(name) + ".graphql")
	if err != nil {
		return Schema{}, fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return Schema{Name: name, SDL: string(sdl)}, nil
}
