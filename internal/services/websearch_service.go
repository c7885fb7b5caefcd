package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	cache "github.com/patrickmn/go-cache"
)

const (
	serperEndpoint    = "https://google.serper.dev/search"
	searchCacheTTL    = 15 * time.Minute
	defaultNumResults = 5
	maxNumResults     = 10
)

// WebResult is one search hit mapped from the provider response.
type WebResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// SearchResult is the uniform envelope for web search. A missing provider
// key yields Success=false with an explanatory error, which is distinct from
// "provider reached but zero results" (Success=true, empty Results).
type SearchResult struct {
	Success bool        `json:"success"`
	Results []WebResult `json:"results"`
	Error   string      `json:"error,omitempty"`
}

// WebSearchService queries the Serper search API. Failures never propagate
// as errors; they land in the envelope.
type WebSearchService struct {
	apiKey   string
	endpoint string
	client   *http.Client
	cache    *cache.Cache
	redis    *RedisService // optional shared cache
}

// NewWebSearchService creates the search client. An empty apiKey is allowed;
// every search then reports the provider as not configured.
func NewWebSearchService(apiKey string, redis *RedisService) *WebSearchService {
	return &WebSearchService{
		apiKey:   apiKey,
		endpoint: serperEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		cache:    cache.New(searchCacheTTL, 5*time.Minute),
		redis:    redis,
	}
}

// Configured reports whether a provider credential is present.
func (w *WebSearchService) Configured() bool {
	return w.apiKey != ""
}

// Search runs a web search and maps provider hits into WebResults.
func (w *WebSearchService) Search(ctx context.Context, query string, num int) SearchResult {
	if w.apiKey == "" {
		return SearchResult{
			Success: false,
			Results: []WebResult{},
			Error:   "web search not configured: missing SERPER_API_KEY",
		}
	}
	if query == "" {
		return SearchResult{Success: false, Results: []WebResult{}, Error: "query is required"}
	}
	if num <= 0 {
		num = defaultNumResults
	}
	if num > maxNumResults {
		num = maxNumResults
	}

	cacheKey := fmt.Sprintf("websearch:%s:%d", query, num)
	if cached, found := w.cache.Get(cacheKey); found {
		return cached.(SearchResult)
	}
	if w.redis != nil {
		if raw, err := w.redis.Get(ctx, cacheKey); err == nil && raw != "" {
			var result SearchResult
			if json.Unmarshal([]byte(raw), &result) == nil {
				w.cache.Set(cacheKey, result, cache.DefaultExpiration)
				return result
			}
		}
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"q":   query,
		"num": num,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return SearchResult{Success: false, Results: []WebResult{}, Error: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("X-API-KEY", w.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return SearchResult{Success: false, Results: []WebResult{}, Error: fmt.Sprintf("search request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return SearchResult{Success: false, Results: []WebResult{}, Error: fmt.Sprintf("failed to read search response: %v", err)}
	}

	if resp.StatusCode != 200 {
		return SearchResult{Success: false, Results: []WebResult{}, Error: fmt.Sprintf("search provider returned HTTP %d", resp.StatusCode)}
	}

	var parsed struct {
		Organic []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Position int    `json:"position"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SearchResult{Success: false, Results: []WebResult{}, Error: fmt.Sprintf("failed to parse search response: %v", err)}
	}

	results := make([]WebResult, 0, len(parsed.Organic))
	for i, hit := range parsed.Organic {
		if i >= num {
			break
		}
		position := hit.Position
		if position == 0 {
			position = i + 1
		}
		results = append(results, WebResult{
			Title:    hit.Title,
			Link:     hit.Link,
			Snippet:  hit.Snippet,
			Position: position,
		})
	}

	result := SearchResult{Success: true, Results: results}

	w.cache.Set(cacheKey, result, cache.DefaultExpiration)
	if w.redis != nil {
		if raw, err := json.Marshal(result); err == nil {
			if err := w.redis.Set(ctx, cacheKey, raw, searchCacheTTL); err != nil {
				log.Printf("⚠️ [SEARCH] Failed to write shared cache: %v", err)
			}
		}
	}

	return result
}
