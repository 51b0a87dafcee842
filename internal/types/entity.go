// Package types provides shared types used across multiple packages.
// This package has no dependencies on other storyboard packages to avoid import cycles.
package types

// EntityKind classifies a reusable visual subject.
type EntityKind string

const (
	// KindCharacter is a person or creature that appears across shots.
	KindCharacter EntityKind = "character"
	// KindProp is an object carried or used in shots.
	KindProp EntityKind = "prop"
	// KindEnvironment is a location or setting.
	KindEnvironment EntityKind = "environment"
)

// ParseEntityKind converts a string to an EntityKind.
// Returns KindCharacter if the string is not recognized.
func ParseEntityKind(s string) EntityKind {
	switch s {
	case "prop":
		return KindProp
	case "environment":
		return KindEnvironment
	default:
		return KindCharacter
	}
}

// Entity is a reusable visual subject owned by a project.
type Entity struct {
	ID             string     `json:"id" yaml:"id"`
	ProjectID      string     `json:"project_id" yaml:"project_id"`
	Name           string     `json:"name" yaml:"name"`
	AltName        string     `json:"alt_name,omitempty" yaml:"alt_name,omitempty"`
	Kind           EntityKind `json:"kind" yaml:"kind"`
	Anchor         string     `json:"anchor,omitempty" yaml:"anchor,omitempty"`           // Concise visual description used when expanding mentions
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"` // Free text, may carry an "Alias:" line
	ImageURL       string     `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Dependencies   []string   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"` // Names or ids of other entities
	PortraitPrompt string     `json:"portrait_prompt,omitempty" yaml:"portrait_prompt,omitempty"`
}

// HasImage reports whether the entity already has a generated image.
func (e *Entity) HasImage() bool {
	return e.ImageURL != ""
}

// PortraitTargetID returns the id of the entity's portrait target.
func PortraitTargetID(entityID string) string {
	return entityID + "/" + string(TargetPortrait)
}
