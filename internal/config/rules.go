package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// AliasRule injects extra tokens into a query's token set when any of its
// phrases appears in the query. Injection is additive, nothing is replaced.
type AliasRule struct {
	Phrases []string `yaml:"phrases"`
	Tokens  []string `yaml:"tokens"`
}

// CategoryRule maps filename substrings to a topical category.
type CategoryRule struct {
	Substrings []string `yaml:"substrings"`
	Category   string   `yaml:"category"`
}

// Rules are the tunable heuristics: query stopwords, alias expansion,
// document categorization, and the grounding trigger keywords. They ship with
// compiled-in defaults and can be overridden from a YAML file.
type Rules struct {
	Stopwords         []string       `yaml:"stopwords"`
	Aliases           []AliasRule    `yaml:"aliases"`
	Categories        []CategoryRule `yaml:"categories"`
	GroundingTriggers []string       `yaml:"grounding_triggers"`
}

// DefaultRules returns the built-in rule tables.
func DefaultRules() *Rules {
	return &Rules{
		Stopwords: []string{
			"a", "an", "the", "i", "im", "me", "my", "we", "our", "you", "your",
			"he", "she", "it", "they", "them", "is", "are", "was", "be", "been",
			"do", "does", "did", "can", "could", "would", "should", "will",
			"to", "of", "in", "on", "at", "for", "with", "and", "or", "but",
			"need", "needs", "want", "wants", "help", "find", "looking", "get",
			"near", "nearby", "please", "some", "any", "there", "this", "that",
		},
		Aliases: []AliasRule{
			{
				Phrases: []string{"medi-cal", "medi cal", "medicaid"},
				Tokens:  []string{"medi", "cal", "medicaid"},
			},
			{
				Phrases: []string{"la", "los angeles"},
				Tokens:  []string{"los", "angeles"},
			},
			{
				Phrases: []string{"koreatown", "k-town", "ktown"},
				Tokens:  []string{"koreatown", "los", "angeles"},
			},
		},
		Categories: []CategoryRule{
			{Substrings: []string{"dental"}, Category: "health"},
			{Substrings: []string{"parenting", "couples", "family"}, Category: "family"},
			{Substrings: []string{"aa", "na", "meeting", "recovery"}, Category: "recovery"},
			{Substrings: []string{"housing", "shelter"}, Category: "housing"},
			{Substrings: []string{"legal", "court"}, Category: "legal"},
			{Substrings: []string{"benefits", "snap", "calfresh"}, Category: "benefits"},
			{Substrings: []string{"employment", "job"}, Category: "employment"},
		},
		GroundingTriggers: []string{
			"treatment", "rehab", "detox", "sober", "recovery",
			"shelter", "housing", "bed", "food", "meal", "pantry",
			"clinic", "doctor", "dentist", "program", "services",
			"medi-cal", "medi cal", "medicaid", "insurance",
			"near", "nearby", "where", "tonight", "today",
			"los angeles", "koreatown", " la ", "downtown", "hollywood",
		},
	}
}

// LoadRules reads a YAML rules file. Sections absent from the file keep
// their defaults.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var overlay Rules
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	if len(overlay.Stopwords) > 0 {
		rules.Stopwords = overlay.Stopwords
	}
	if len(overlay.Aliases) > 0 {
		rules.Aliases = overlay.Aliases
	}
	if len(overlay.Categories) > 0 {
		rules.Categories = overlay.Categories
	}
	if len(overlay.GroundingTriggers) > 0 {
		rules.GroundingTriggers = overlay.GroundingTriggers
	}

	return rules, nil
}

// RuleSet holds the live rule tables and supports atomic replacement on
// hot reload. All readers go through Current.
type RuleSet struct {
	mu    sync.RWMutex
	rules *Rules
}

// NewRuleSet wraps rules; a nil argument starts from the defaults.
func NewRuleSet(rules *Rules) *RuleSet {
	if rules == nil {
		rules = DefaultRules()
	}
	return &RuleSet{rules: rules}
}

// Current returns the active rule tables.
func (rs *RuleSet) Current() *Rules {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.rules
}

// Replace swaps in a new rules snapshot.
func (rs *RuleSet) Replace(rules *Rules) {
	if rules == nil {
		return
	}
	rs.mu.Lock()
	rs.rules = rules
	rs.mu.Unlock()
}
