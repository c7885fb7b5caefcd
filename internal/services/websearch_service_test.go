package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearch_NotConfigured(t *testing.T) {
	svc := NewWebSearchService("", nil)

	result := svc.Search(context.Background(), "shelters los angeles", 5)
	if result.Success {
		t.Error("Expected Success=false without a provider credential")
	}
	if len(result.Results) != 0 {
		t.Errorf("Expected empty results, got %d", len(result.Results))
	}
	if !strings.Contains(result.Error, "not configured") {
		t.Errorf("Error should say the provider is not configured, got %q", result.Error)
	}
}

func TestWebSearch_EmptyQuery(t *testing.T) {
	svc := NewWebSearchService("key", nil)
	result := svc.Search(context.Background(), "", 5)
	if result.Success {
		t.Error("Expected Success=false for empty query")
	}
}

func TestWebSearch_MapsOrganicResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "test-key" {
			t.Errorf("Expected X-API-KEY header, got %q", r.Header.Get("X-API-KEY"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic":[
			{"title":"LA Mission","link":"https://example.org/mission","snippet":"Emergency shelter","position":1},
			{"title":"Midnight Mission","link":"https://example.org/midnight","snippet":"Meals and beds","position":2}
		]}`))
	}))
	defer server.Close()

	svc := NewWebSearchService("test-key", nil)
	svc.endpoint = server.URL

	result := svc.Search(context.Background(), "shelter", 5)
	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if len(result.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(result.Results))
	}
	if result.Results[0].Title != "LA Mission" || result.Results[0].Position != 1 {
		t.Errorf("Unexpected first result: %+v", result.Results[0])
	}
}

func TestWebSearch_ZeroResultsIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organic":[]}`))
	}))
	defer server.Close()

	svc := NewWebSearchService("test-key", nil)
	svc.endpoint = server.URL

	result := svc.Search(context.Background(), "nonexistent query", 5)
	if !result.Success {
		t.Errorf("Zero results from a reachable provider must be Success=true, got error %q", result.Error)
	}
	if len(result.Results) != 0 {
		t.Errorf("Expected no results, got %d", len(result.Results))
	}
}

func TestWebSearch_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	svc := NewWebSearchService("bad-key", nil)
	svc.endpoint = server.URL

	result := svc.Search(context.Background(), "shelter", 5)
	if result.Success {
		t.Error("Expected Success=false on provider HTTP error")
	}
	if !strings.Contains(result.Error, "403") {
		t.Errorf("Error should carry the status code, got %q", result.Error)
	}
}

func TestWebSearch_CachesResults(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"organic":[{"title":"Hit","link":"https://example.org","snippet":"s","position":1}]}`))
	}))
	defer server.Close()

	svc := NewWebSearchService("test-key", nil)
	svc.endpoint = server.URL

	svc.Search(context.Background(), "food pantry", 5)
	svc.Search(context.Background(), "food pantry", 5)
	if calls != 1 {
		t.Errorf("Expected second identical search to hit the cache, provider saw %d calls", calls)
	}
}
