package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	if len(rules.Stopwords) == 0 || len(rules.Aliases) == 0 ||
		len(rules.Categories) == 0 || len(rules.GroundingTriggers) == 0 {
		t.Fatal("Default rules must populate every section")
	}
}

func TestLoadRules_OverlaySemantics(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
stopwords:
  - foo
  - bar
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write rules file: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	if len(rules.Stopwords) != 2 || rules.Stopwords[0] != "foo" {
		t.Errorf("Stopwords should come from the file, got %v", rules.Stopwords)
	}
	// Sections absent from the file keep the compiled-in defaults.
	if len(rules.Aliases) == 0 {
		t.Error("Aliases should fall back to defaults")
	}
	if len(rules.GroundingTriggers) == 0 {
		t.Error("Grounding triggers should fall back to defaults")
	}
}

func TestLoadRules_MissingFile(t *testing.T) {
	if _, err := LoadRules("/nonexistent/rules.yaml"); err == nil {
		t.Fatal("Expected error for missing rules file")
	}
}

func TestRuleSet_Replace(t *testing.T) {
	rs := NewRuleSet(nil)
	before := rs.Current()

	custom := DefaultRules()
	custom.Stopwords = []string{"only"}
	rs.Replace(custom)

	after := rs.Current()
	if len(after.Stopwords) != 1 {
		t.Errorf("Replace should swap the snapshot, got %v", after.Stopwords)
	}
	if len(before.Stopwords) == 1 {
		t.Error("Previously read snapshots must not be mutated")
	}

	rs.Replace(nil)
	if rs.Current() != after {
		t.Error("Replace(nil) must keep the current snapshot")
	}
}
