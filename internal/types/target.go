package types

import (
	"slices"
	"time"
)

// TargetKind identifies what a generation target produces.
type TargetKind string

const (
	TargetStart    TargetKind = "start"
	TargetEnd      TargetKind = "end"
	TargetVideo    TargetKind = "video"
	TargetPortrait TargetKind = "portrait"
)

// IsVideo reports whether the target produces a video clip.
func (k TargetKind) IsVideo() bool {
	return k == TargetVideo
}

// Valid reports whether k is a known target kind.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetStart, TargetEnd, TargetVideo, TargetPortrait:
		return true
	}
	return false
}

// Target is a single generation slot: a shot's start frame, end frame or
// video, or an entity's portrait.
//
// A target is in auto mode until the user edits its reference list. Manual
// is never cleared once set; References holds the persisted list only while
// Manual is true.
type Target struct {
	ID         string     `json:"id" yaml:"id"`
	ProjectID  string     `json:"project_id" yaml:"project_id"`
	OwnerID    string     `json:"owner_id" yaml:"owner_id"` // Shot or entity id
	Kind       TargetKind `json:"kind" yaml:"kind"`
	Prompt     string     `json:"prompt" yaml:"prompt"`
	Manual     bool       `json:"manual" yaml:"manual"`
	References []string   `json:"references,omitempty" yaml:"references,omitempty"`
	Tombstones []string   `json:"tombstones,omitempty" yaml:"tombstones,omitempty"`
	AssetURL   string     `json:"asset_url,omitempty" yaml:"asset_url,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
}

// Tombstoned reports whether url was explicitly removed by the user.
func (t *Target) Tombstoned(url string) bool {
	return slices.Contains(t.Tombstones, url)
}

// Clone returns a deep copy of the target.
func (t Target) Clone() Target {
	t.References = slices.Clone(t.References)
	t.Tombstones = slices.Clone(t.Tombstones)
	return t
}
