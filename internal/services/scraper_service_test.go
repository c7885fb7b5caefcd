package services

import (
	"context"
	"strings"
	"testing"
)

func TestScrape_EmptyURL(t *testing.T) {
	svc := NewScraperService()
	result := svc.Scrape(context.Background(), "")
	if result.Success {
		t.Error("Expected failure envelope for empty URL")
	}
	if result.Error == "" {
		t.Error("Failure envelope must carry an error message")
	}
}

func TestScrape_PrivateTargetRefused(t *testing.T) {
	svc := NewScraperService()

	urls := []string{
		"http://127.0.0.1/admin",
		"http://localhost:8080/",
		"http://169.254.169.254/latest/meta-data/",
		"http://192.168.1.1/",
		"ftp://example.org/file",
	}
	for _, u := range urls {
		result := svc.Scrape(context.Background(), u)
		if result.Success {
			t.Errorf("Scrape(%q) must be refused", u)
		}
		if result.URL != u {
			t.Errorf("Envelope should echo the requested URL, got %q", result.URL)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	in := "line   one\n\n\n\nline    two\n"
	want := "line one\n\nline two"
	if got := collapseWhitespace(in); got != want {
		t.Errorf("collapseWhitespace = %q, want %q", got, want)
	}
}

func TestFirstChars(t *testing.T) {
	if got := firstChars("short", 300); got != "short" {
		t.Errorf("firstChars should return short input unchanged, got %q", got)
	}
	long := strings.Repeat("x", 500)
	if got := firstChars(long, 300); len(got) != 300 {
		t.Errorf("firstChars should cut to 300, got %d", len(got))
	}
}
