// Package refs computes the ordered list of conditioning reference urls for a
// generation target.
//
// A target starts in auto mode, where the list is recomputed from its prompt
// on every call. The first explicit user edit snapshots the visible list and
// switches the target to manual mode for good. Urls the user removes are
// tombstoned and never re-added automatically.
package refs

import (
	"slices"

	"github.com/jackzampolin/storyboard/internal/mentions"
	"github.com/jackzampolin/storyboard/internal/types"
)

// Images looks up an entity's current image url.
type Images func(entityID string) (string, bool)

// Resolver resolves reference lists against one project's entities.
type Resolver struct {
	registry *mentions.Registry
	images   Images
}

// NewResolver creates a resolver over registry.
func NewResolver(registry *mentions.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// WithImages returns a resolver that takes matched entities' image urls
// from images, falling back to the registry's stored url.
func (r *Resolver) WithImages(images Images) *Resolver {
	return &Resolver{registry: r.registry, images: images}
}

func (r *Resolver) imageURL(e *types.Entity) string {
	if r.images != nil {
		if url, ok := r.images(e.ID); ok && url != "" {
			return url
		}
	}
	return e.ImageURL
}

// AutoMatches returns the distinct image urls of entities mentioned in the
// target's prompt. Video targets never match text.
func (r *Resolver) AutoMatches(t *types.Target) []string {
	if t.Kind.IsVideo() || r.registry == nil {
		return nil
	}
	var urls []string
	for _, e := range r.registry.MatchText(t.Prompt) {
		if url := r.imageURL(e); url != "" {
			urls = append(urls, url)
		}
	}
	return dedupe(urls)
}

// Resolve returns the target's reference list.
//
// In manual mode the persisted list comes first, followed by any auto
// matches that are neither already listed nor tombstoned. In auto mode the
// mandatory injections come first, followed by auto matches, with tombstoned
// urls filtered out. The result never contains duplicates or empty strings.
func (r *Resolver) Resolve(t *types.Target, mandatory []string) []string {
	auto := r.AutoMatches(t)

	if t.Manual {
		out := slices.Clone(t.References)
		for _, url := range auto {
			if slices.Contains(t.References, url) || t.Tombstoned(url) {
				continue
			}
			out = append(out, url)
		}
		return dedupe(out)
	}

	out := make([]string, 0, len(mandatory)+len(auto))
	for _, url := range slices.Concat(mandatory, auto) {
		if t.Tombstoned(url) {
			continue
		}
		out = append(out, url)
	}
	return dedupe(out)
}

// Add appends url to the target's reference list and returns the edited
// target. An explicit add clears any tombstone on url.
func (r *Resolver) Add(t types.Target, mandatory []string, url string) types.Target {
	t = r.snapshot(t, mandatory)
	if url == "" {
		return t
	}
	if !slices.Contains(t.References, url) {
		t.References = append(t.References, url)
	}
	t.Tombstones = remove(t.Tombstones, url)
	return t
}

// Remove drops url from the target's reference list and tombstones it.
func (r *Resolver) Remove(t types.Target, mandatory []string, url string) types.Target {
	t = r.snapshot(t, mandatory)
	if url == "" {
		return t
	}
	t.References = remove(t.References, url)
	if !slices.Contains(t.Tombstones, url) {
		t.Tombstones = append(t.Tombstones, url)
	}
	return t
}

// SetOrder replaces the target's list with urls, for user reordering.
// Urls previously visible but missing from urls are tombstoned.
func (r *Resolver) SetOrder(t types.Target, mandatory []string, urls []string) types.Target {
	t = r.snapshot(t, mandatory)
	next := dedupe(urls)
	for _, url := range t.References {
		if !slices.Contains(next, url) && !slices.Contains(t.Tombstones, url) {
			t.Tombstones = append(t.Tombstones, url)
		}
	}
	for _, url := range next {
		t.Tombstones = remove(t.Tombstones, url)
	}
	t.References = next
	return t
}

// ClearTombstone lifts the tombstone on url so auto matching may add it
// again. The target stays in manual mode.
func ClearTombstone(t types.Target, url string) types.Target {
	t = t.Clone()
	t.Tombstones = remove(t.Tombstones, url)
	return t
}

// ClearTombstones lifts every tombstone on the target.
func ClearTombstones(t types.Target) types.Target {
	t = t.Clone()
	t.Tombstones = nil
	return t
}

// snapshot returns a copy of t in manual mode. A target leaving auto mode
// keeps every reference that was visible a moment before.
func (r *Resolver) snapshot(t types.Target, mandatory []string) types.Target {
	t = t.Clone()
	if t.Manual {
		return t
	}
	t.References = r.Resolve(&t, mandatory)
	t.Manual = true
	return t
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, url)
	}
	return out
}

func remove(urls []string, url string) []string {
	return slices.DeleteFunc(urls, func(u string) bool { return u == url })
}
