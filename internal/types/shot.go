package types

import (
	"slices"
	"strings"
)

// VideoMode selects which frames condition a shot's video.
type VideoMode string

const (
	// ModeStartEnd conditions on the start frame, keyframes and end frame.
	ModeStartEnd VideoMode = "start_end"
	// ModeStartOnly conditions on the start frame and keyframes.
	ModeStartOnly VideoMode = "start_only"
	// ModeEndOnly conditions on keyframes and the end frame.
	ModeEndOnly VideoMode = "end_only"
	// ModeReferences uses the video target's own reference list verbatim.
	ModeReferences VideoMode = "references"
)

// ParseVideoMode converts a string to a VideoMode.
// Returns ModeStartEnd if the string is not recognized.
func ParseVideoMode(s string) VideoMode {
	switch VideoMode(s) {
	case ModeStartOnly, ModeEndOnly, ModeReferences:
		return VideoMode(s)
	default:
		return ModeStartEnd
	}
}

// NeedsStart reports whether the mode uses a generated start frame.
func (m VideoMode) NeedsStart() bool {
	return m == ModeStartEnd || m == ModeStartOnly || m == ""
}

// NeedsEnd reports whether the mode uses a generated end frame.
func (m VideoMode) NeedsEnd() bool {
	return m == ModeStartEnd || m == ModeEndOnly || m == ""
}

// Shot is one clip in a scene.
type Shot struct {
	ID              string    `json:"id" yaml:"id"`
	ProjectID       string    `json:"project_id" yaml:"project_id"`
	EpisodeID       string    `json:"episode_id,omitempty" yaml:"episode_id,omitempty"`
	SceneID         string    `json:"scene_id,omitempty" yaml:"scene_id,omitempty"`
	Sequence        int       `json:"sequence" yaml:"sequence"`
	StartFrameURL   string    `json:"start_frame_url,omitempty" yaml:"start_frame_url,omitempty"`
	EndFrameURL     string    `json:"end_frame_url,omitempty" yaml:"end_frame_url,omitempty"`
	VideoURL        string    `json:"video_url,omitempty" yaml:"video_url,omitempty"`
	Keyframes       []string  `json:"keyframes,omitempty" yaml:"keyframes,omitempty"`
	VideoMode       VideoMode `json:"video_mode,omitempty" yaml:"video_mode,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
}

// Mode returns the shot's video mode, defaulting to ModeStartEnd.
func (s *Shot) Mode() VideoMode {
	return ParseVideoMode(string(s.VideoMode))
}

// Done reports whether the shot already has a finished video.
func (s *Shot) Done() bool {
	return s.VideoURL != ""
}

// AssetURL returns the shot's current url for a target kind.
func (s *Shot) AssetURL(kind TargetKind) string {
	switch kind {
	case TargetStart:
		return s.StartFrameURL
	case TargetEnd:
		return s.EndFrameURL
	case TargetVideo:
		return s.VideoURL
	}
	return ""
}

// SetAssetURL overwrites the shot's url for a target kind.
func (s *Shot) SetAssetURL(kind TargetKind, url string) {
	switch kind {
	case TargetStart:
		s.StartFrameURL = url
	case TargetEnd:
		s.EndFrameURL = url
	case TargetVideo:
		s.VideoURL = url
	}
}

// Clone returns a deep copy of the shot.
func (s Shot) Clone() Shot {
	s.Keyframes = slices.Clone(s.Keyframes)
	return s
}

// ShotTargetID returns the id of one of a shot's generation targets.
func ShotTargetID(shotID string, kind TargetKind) string {
	return shotID + "/" + string(kind)
}

// SplitTargetID splits a target id into owner id and kind.
// ok is false when the id does not carry a known kind suffix.
func SplitTargetID(id string) (ownerID string, kind TargetKind, ok bool) {
	i := strings.LastIndex(id, "/")
	if i <= 0 {
		return "", "", false
	}
	kind = TargetKind(id[i+1:])
	if !kind.Valid() {
		return "", "", false
	}
	return id[:i], kind, true
}

// SortShots orders shots by sequence, then id.
func SortShots(shots []Shot) {
	slices.SortStableFunc(shots, func(a, b Shot) int {
		if a.Sequence != b.Sequence {
			return a.Sequence - b.Sequence
		}
		return strings.Compare(a.ID, b.ID)
	})
}
