package mentions

import (
	"slices"

	"github.com/jackzampolin/storyboard/internal/types"
)

// Registry matches normalized mentions against a fixed list of entities.
//
// Matching is strict equality against each entity's primary or alternate
// name; when names collide the entity listed first wins. Entities returned by
// a Registry are shared and must not be modified.
type Registry struct {
	entities []types.Entity
	byName   map[string]int
	byID     map[string]int
}

// NewRegistry indexes entities in the given order.
func NewRegistry(entities []types.Entity) *Registry {
	r := &Registry{
		entities: entities,
		byName:   make(map[string]int, len(entities)*2),
		byID:     make(map[string]int, len(entities)),
	}
	for i := range entities {
		e := &entities[i]
		if _, ok := r.byID[e.ID]; !ok && e.ID != "" {
			r.byID[e.ID] = i
		}
		for _, name := range r.names(e) {
			if _, ok := r.byName[name]; !ok {
				r.byName[name] = i
			}
		}
	}
	return r
}

func (r *Registry) names(e *types.Entity) []string {
	var out []string
	if n := Normalize(e.Name); n != "" {
		out = append(out, n)
	}
	alt := e.AltName
	if alt == "" {
		alt = AliasFromDescription(e.Description)
	}
	if n := Normalize(alt); n != "" {
		out = append(out, n)
	}
	return out
}

// Len returns the number of entities in the registry.
func (r *Registry) Len() int {
	return len(r.entities)
}

// Entities returns the registry's entities in order.
func (r *Registry) Entities() []types.Entity {
	return r.entities
}

// Get returns the entity with the given id, or nil.
func (r *Registry) Get(id string) *types.Entity {
	if i, ok := r.byID[id]; ok {
		return &r.entities[i]
	}
	return nil
}

// Match returns the entity whose normalized primary or alternate name equals
// normalized, or nil.
func (r *Registry) Match(normalized string) *types.Entity {
	if normalized == "" {
		return nil
	}
	if i, ok := r.byName[normalized]; ok {
		return &r.entities[i]
	}
	return nil
}

// MatchToken normalizes a raw mention body and matches it.
func (r *Registry) MatchToken(raw string) *types.Entity {
	return r.Match(Normalize(raw))
}

// Resolve looks up a dependency reference, which may be an entity id or a
// name. Ids are checked first.
func (r *Registry) Resolve(ref string) *types.Entity {
	if e := r.Get(ref); e != nil {
		return e
	}
	return r.MatchToken(ref)
}

// MatchText extracts every mention in text and returns the distinct matched
// entities in order of first appearance in the text.
func (r *Registry) MatchText(text string) []*types.Entity {
	tokens := Extract(text)
	if len(tokens) == 0 {
		return nil
	}
	slices.SortStableFunc(tokens, func(a, b Token) int { return a.Start - b.Start })
	seen := make(map[string]bool, len(tokens))
	var out []*types.Entity
	for _, tok := range tokens {
		e := r.MatchToken(tok.Body)
		if e == nil || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}
