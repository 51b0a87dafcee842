// Package mentions finds entity mentions in free-form prompt text and matches
// them against a project's entities.
//
// Extraction is a fixed, ordered list of independent matchers, one per
// delimiter style. Each matcher is pure and never fails: unbalanced or empty
// delimiters simply produce no token.
package mentions

import (
	"regexp"
	"strings"
)

// Style identifies the delimiter style a token was written in.
type Style string

const (
	StyleSquare     Style = "square"      // [name]
	StyleCurly      Style = "curly"       // {name}
	StyleFullSquare Style = "full_square" // 【name】 or ［name］
	StyleFullCurly  Style = "full_curly"  // ｛name｝
	StyleMention    Style = "mention"     // @name
)

// Token is one mention found in text.
type Token struct {
	Raw   string // Full match including delimiters or sigil
	Body  string // Text between the delimiters, not normalized
	Start int    // Byte offset of Raw in the source text
	End   int    // Byte offset just past Raw
	Style Style

	// Expanded is set when the token is immediately followed by an opening
	// parenthesis, i.e. it already carries an inline description.
	Expanded bool
	// Possessive is set when the token is immediately followed by a
	// possessive marker ('s, ’s, 的).
	Possessive bool
}

// Injectable reports whether a description may be inserted after the token.
func (t Token) Injectable() bool {
	return !t.Expanded && !t.Possessive
}

// Matcher finds tokens of a single delimiter style.
type Matcher struct {
	Style Style
	re    *regexp.Regexp
	// sigil is true when the regexp consumes one separator before the token.
	sigil bool
}

// Find returns every token of the matcher's style in text, in order.
func (m Matcher) Find(text string) []Token {
	var tokens []Token
	for _, loc := range m.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		body := ""
		for g := 2; g+1 < len(loc); g += 2 {
			if loc[g] >= 0 {
				body = text[loc[g]:loc[g+1]]
				break
			}
		}
		if m.sigil {
			start = loc[2] - 1
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		rest := text[end:]
		tokens = append(tokens, Token{
			Raw:        text[start:end],
			Body:       body,
			Start:      start,
			End:        end,
			Style:      m.Style,
			Expanded:   hasAnyPrefix(rest, "(", "（"),
			Possessive: hasAnyPrefix(rest, "'s", "’s", "的"),
		})
	}
	return tokens
}

const mentionStop = `\s@,.;:!?，。、；：！？\[\]{}()（）【】［］｛｝"'“”‘’`

var (
	SquareMatcher     = Matcher{Style: StyleSquare, re: regexp.MustCompile(`\[([^\[\]]+)\]`)}
	CurlyMatcher      = Matcher{Style: StyleCurly, re: regexp.MustCompile(`\{([^{}]+)\}`)}
	FullSquareMatcher = Matcher{Style: StyleFullSquare, re: regexp.MustCompile(`【([^【】]+)】|［([^［］]+)］`)}
	FullCurlyMatcher  = Matcher{Style: StyleFullCurly, re: regexp.MustCompile(`｛([^｛｝]+)｝`)}
	MentionMatcher    = Matcher{
		Style: StyleMention,
		re:    regexp.MustCompile(`(?:^|[\s,.;:!?，。、；：！？"“‘(（])@([^` + mentionStop + `]+)`),
		sigil: true,
	}
)

// Matchers is the fixed extraction order.
var Matchers = []Matcher{
	SquareMatcher,
	CurlyMatcher,
	FullSquareMatcher,
	FullCurlyMatcher,
	MentionMatcher,
}

// Extract runs every matcher over text and concatenates the results in
// matcher order.
func Extract(text string) []Token {
	var tokens []Token
	for _, m := range Matchers {
		tokens = append(tokens, m.Find(text)...)
	}
	return tokens
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
