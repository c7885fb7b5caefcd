package retrieval

import (
	"strings"

	"streetlight/internal/config"
)

// Tokenize turns a free-text query into the expanded token set used for
// matching. Lowercase, non [a-z0-9 -] characters replaced by spaces, split on
// whitespace and hyphens, tokens shorter than 2 characters and stopwords
// dropped, then alias rules inject extra synonym tokens. The result is
// de-duplicated and keeps first-seen order.
func Tokenize(query string, rules *config.Rules) []string {
	normalized := normalizeQuery(query)

	stopwords := make(map[string]bool, len(rules.Stopwords))
	for _, w := range rules.Stopwords {
		stopwords[w] = true
	}

	seen := make(map[string]bool)
	var tokens []string
	add := func(tok string) {
		if len(tok) < 2 || stopwords[tok] || seen[tok] {
			return
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	for _, tok := range splitTokens(normalized) {
		add(tok)
	}

	// Alias expansion is additive: matched phrases inject tokens, nothing is
	// removed. Single-word phrases must match a whole token so that e.g. "la"
	// does not fire on "place".
	rawTokens := splitTokens(normalized)
	for _, rule := range rules.Aliases {
		if aliasMatches(rule, normalized, rawTokens) {
			for _, tok := range rule.Tokens {
				add(tok)
			}
		}
	}

	return tokens
}

func aliasMatches(rule config.AliasRule, normalized string, rawTokens []string) bool {
	for _, phrase := range rule.Phrases {
		phrase = strings.ToLower(phrase)
		if strings.ContainsAny(phrase, " -") {
			// Multi-word phrases match anywhere; hyphens and spaces are
			// interchangeable after normalization.
			flat := strings.ReplaceAll(phrase, "-", " ")
			if strings.Contains(strings.ReplaceAll(normalized, "-", " "), flat) {
				return true
			}
		} else {
			for _, tok := range rawTokens {
				if tok == phrase {
					return true
				}
			}
		}
	}
	return false
}

// normalizeQuery lowercases and replaces everything outside [a-z0-9\s-]
// with a space.
func normalizeQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	for _, r := range strings.ToLower(query) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == ' ', r == '\t', r == '\n', r == '\r':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// splitTokens splits on whitespace and hyphen runs.
func splitTokens(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '-'
	})
}
