package types

import "strings"

// Project holds the settings shared by every shot and entity in a project.
type Project struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	GlobalStyle string `json:"global_style,omitempty" yaml:"global_style,omitempty"`
	Tone        string `json:"tone,omitempty" yaml:"tone,omitempty"`
	Lighting    string `json:"lighting,omitempty" yaml:"lighting,omitempty"`
}

// GlobalContext returns a short "tone, lighting, style" summary, truncated
// to maxRunes runes. maxRunes <= 0 disables truncation.
func (p *Project) GlobalContext(maxRunes int) string {
	if p == nil {
		return ""
	}
	var parts []string
	if v := strings.TrimSpace(p.Tone); v != "" {
		parts = append(parts, "tone: "+v)
	}
	if v := strings.TrimSpace(p.Lighting); v != "" {
		parts = append(parts, "lighting: "+v)
	}
	if v := strings.TrimSpace(p.GlobalStyle); v != "" {
		parts = append(parts, "style: "+v)
	}
	out := strings.Join(parts, "; ")
	if maxRunes > 0 {
		if r := []rune(out); len(r) > maxRunes {
			out = strings.TrimSpace(string(r[:maxRunes]))
		}
	}
	return out
}
