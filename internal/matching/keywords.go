// Package matching implements the pairing engine for lost and found
// reports: keyword extraction from free text and the additive
// similarity score that drives match recording.
package matching

import "strings"

// MaxKeywords bounds the keyword set derived from a report.
const MaxKeywords = 10

// stopwords are dropped during extraction regardless of position.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "with": {}, "by": {},
}

// Extract derives a bounded, ordered keyword set from free text.
// Tokens are lowercased, stripped of non-alphanumerics, split on
// whitespace; tokens of length <= 2 and stopwords are dropped;
// duplicates keep their first occurrence; at most MaxKeywords survive.
func Extract(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n', r == '\r':
			b.WriteRune(' ')
		}
	}

	seen := make(map[string]struct{})
	keywords := make([]string, 0, MaxKeywords)
	for _, token := range strings.Fields(b.String()) {
		if len(token) <= 2 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}
