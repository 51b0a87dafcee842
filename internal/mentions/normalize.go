package mentions

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// punctuation maps visually equivalent punctuation that width folding leaves
// alone onto one canonical form.
var punctuation = strings.NewReplacer(
	"【", "[", "】", "]",
	"“", `"`, "”", `"`, "「", `"`, "」", `"`,
	"‘", "'", "’", "'",
	"—", "-", "–", "-", "‐", "-",
	"・", "·", "•", "·",
)

// typePrefixes are the entity-type markers stripped from the front of a
// mention, checked after width folding and lowercasing.
var typePrefixes = []string{
	"character:", "char:",
	"environment:", "env:", "location:",
	"prop:", "item:",
	"角色:", "人物:", "场景:", "道具:",
}

// aliasLabels prefix the one structured description line an alternate name
// may be read from.
var aliasLabels = []string{"alias:", "别名:"}

// Normalize reduces a raw mention or entity name to its comparison form:
// full-width characters folded, punctuation canonicalized, a leading "@"
// and a known type prefix stripped, lowercased, whitespace collapsed.
func Normalize(raw string) string {
	s := fold(raw)
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	s = cases.Lower(language.Und).String(s)
	s = strings.Join(strings.Fields(s), " ")
	for _, p := range typePrefixes {
		if rest, ok := strings.CutPrefix(s, p); ok {
			s = strings.TrimSpace(rest)
			break
		}
	}
	return s
}

// AliasFromDescription returns the value of the first "Alias:" line in a
// description, or "" when there is none.
func AliasFromDescription(description string) string {
	for _, line := range strings.Split(description, "\n") {
		folded := strings.TrimSpace(fold(line))
		lower := cases.Lower(language.Und).String(folded)
		for _, label := range aliasLabels {
			if strings.HasPrefix(lower, label) {
				return strings.TrimSpace(folded[len(label):])
			}
		}
	}
	return ""
}

func fold(s string) string {
	return punctuation.Replace(width.Fold.String(s))
}
