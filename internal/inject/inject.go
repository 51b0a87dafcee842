// Package inject expands entity mentions in a prompt into inline
// descriptions, e.g. "Meet [Hero] at dawn" becomes
// "Meet [Hero](tall, red cloak) at dawn".
//
// A token already followed by a parenthetical is left alone, so running the
// injector over its own output changes nothing.
package inject

import (
	"slices"
	"strings"

	"github.com/jackzampolin/storyboard/internal/mentions"
)

// globalStyleNames are the normalized forms of the reserved style macro.
var globalStyleNames = []string{"global style", "全局风格"}

// Injector expands mentions for one project.
type Injector struct {
	registry    *mentions.Registry
	globalStyle string
}

// New creates an injector. globalStyle may be empty, in which case the
// Global Style macro is left untouched.
func New(registry *mentions.Registry, globalStyle string) *Injector {
	return &Injector{registry: registry, globalStyle: strings.TrimSpace(globalStyle)}
}

// Inject returns text with every expandable mention followed by its
// description, and whether anything changed.
func (in *Injector) Inject(text string) (string, bool) {
	tokens := mentions.Extract(text)
	if len(tokens) == 0 {
		return text, false
	}
	slices.SortStableFunc(tokens, func(a, b mentions.Token) int { return a.Start - b.Start })
	protected := expansionSpans(text, tokens)

	var b strings.Builder
	last := 0
	changed := false
	for _, tok := range tokens {
		if tok.Start < last || !tok.Injectable() || insideAny(protected, tok.Start) {
			continue
		}
		expansion := in.expansion(tok.Body)
		if expansion == "" {
			continue
		}
		b.WriteString(text[last:tok.End])
		b.WriteString("(")
		b.WriteString(expansion)
		b.WriteString(")")
		last = tok.End
		changed = true
	}
	if !changed {
		return text, false
	}
	b.WriteString(text[last:])
	return b.String(), true
}

func (in *Injector) expansion(body string) string {
	n := mentions.Normalize(body)
	if slices.Contains(globalStyleNames, n) {
		return in.globalStyle
	}
	if in.registry == nil {
		return ""
	}
	e := in.registry.Match(n)
	if e == nil {
		return ""
	}
	if anchor := strings.TrimSpace(e.Anchor); anchor != "" {
		return anchor
	}
	return strings.TrimSpace(e.Description)
}

type span struct{ start, end int }

// expansionSpans returns the byte ranges of the parentheticals that follow
// already-expanded tokens. Mentions inside them belong to an earlier
// expansion and are not expanded again.
func expansionSpans(text string, tokens []mentions.Token) []span {
	var spans []span
	for _, tok := range tokens {
		if !tok.Expanded {
			continue
		}
		spans = append(spans, span{start: tok.End, end: closingParen(text, tok.End)})
	}
	return spans
}

// closingParen returns the offset just past the parenthesis that closes the
// one opening at start, or len(text) when it is never closed.
func closingParen(text string, start int) int {
	depth := 0
	for i, r := range text[start:] {
		switch r {
		case '(', '（':
			depth++
		case ')', '）':
			depth--
			if depth == 0 {
				return start + i + len(string(r))
			}
		}
	}
	return len(text)
}

func insideAny(spans []span, offset int) bool {
	for _, s := range spans {
		if offset >= s.start && offset < s.end {
			return true
		}
	}
	return false
}
