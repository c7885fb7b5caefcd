package retrieval

import (
	"testing"

	"streetlight/internal/config"
)

func tokenSet(t *testing.T, query string) map[string]bool {
	t.Helper()
	set := make(map[string]bool)
	for _, tok := range Tokenize(query, config.DefaultRules()) {
		set[tok] = true
	}
	return set
}

func TestTokenize_MedicaidAliasExpansion(t *testing.T) {
	queries := []string{
		"medi-cal dental",
		"medi cal dental",
		"Medicaid dental",
		"MEDI-CAL dental",
	}
	for _, q := range queries {
		set := tokenSet(t, q)
		for _, want := range []string{"medi", "cal", "medicaid"} {
			if !set[want] {
				t.Errorf("Tokenize(%q) missing token %q, got %v", q, want, set)
			}
		}
	}
}

func TestTokenize_StopwordsAndShortTokensDropped(t *testing.T) {
	set := tokenSet(t, "I need to find a shelter for the night")
	for _, banned := range []string{"i", "need", "to", "find", "a", "the", "for"} {
		if set[banned] {
			t.Errorf("Token %q should have been dropped, got %v", banned, set)
		}
	}
	if !set["shelter"] || !set["night"] {
		t.Errorf("Content words should survive, got %v", set)
	}
}

func TestTokenize_KoreatownScenario(t *testing.T) {
	set := tokenSet(t, "medi-cal clinic near Koreatown")

	for _, want := range []string{"medi", "cal", "medicaid", "koreatown", "los", "angeles", "clinic"} {
		if !set[want] {
			t.Errorf("Expected token %q in expansion, got %v", want, set)
		}
	}
	if set["near"] {
		t.Errorf("Stopword 'near' must be excluded, got %v", set)
	}
}

func TestTokenize_LAWholeTokenOnly(t *testing.T) {
	// "la" inside another word must not fire the Los Angeles alias.
	set := tokenSet(t, "place to sleep")
	if set["los"] || set["angeles"] {
		t.Errorf("'place' must not trigger the LA alias, got %v", set)
	}

	set = tokenSet(t, "shelter in LA")
	if !set["los"] || !set["angeles"] {
		t.Errorf("Whole-token 'LA' should trigger the alias, got %v", set)
	}
}

func TestTokenize_Punctuation(t *testing.T) {
	set := tokenSet(t, "food?! pantry, (open)")
	for _, want := range []string{"food", "pantry", "open"} {
		if !set[want] {
			t.Errorf("Expected token %q after punctuation stripping, got %v", want, set)
		}
	}
}

func TestTokenize_Deduplication(t *testing.T) {
	tokens := Tokenize("shelter shelter SHELTER", config.DefaultRules())
	if len(tokens) != 1 || tokens[0] != "shelter" {
		t.Errorf("Expected deduplicated [shelter], got %v", tokens)
	}
}

func TestTokenize_Empty(t *testing.T) {
	if tokens := Tokenize("", config.DefaultRules()); len(tokens) != 0 {
		t.Errorf("Expected no tokens for empty query, got %v", tokens)
	}
	if tokens := Tokenize("a I ??", config.DefaultRules()); len(tokens) != 0 {
		t.Errorf("Expected no tokens for stopword-only query, got %v", tokens)
	}
}
