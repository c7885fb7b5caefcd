package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"streetlight/internal/security"
)

const (
	scraperUserAgent = "StreetlightBot/1.0"
	maxScrapeBody    = 10 * 1024 * 1024
	excerptLength    = 300
)

// ScrapeResult is the uniform envelope for page scraping. Failures are
// reported in the envelope, never as a returned error.
type ScrapeResult struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ScraperService fetches and extracts readable content from web pages.
// Respects robots.txt and rate limits, and refuses private network targets.
type ScraperService struct {
	cache       *cache.Cache
	rateLimiter *rate.Limiter
	client      *http.Client
}

// NewScraperService creates the scraper with its cache and limiter.
func NewScraperService() *ScraperService {
	return &ScraperService{
		cache:       cache.New(1*time.Hour, 10*time.Minute),
		rateLimiter: rate.NewLimiter(rate.Limit(10.0), 20), // 10 req/s global
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Scrape fetches urlStr and extracts title, body text, and a short excerpt.
func (s *ScraperService) Scrape(ctx context.Context, urlStr string) ScrapeResult {
	fail := func(format string, args ...interface{}) ScrapeResult {
		return ScrapeResult{URL: urlStr, Success: false, Error: fmt.Sprintf(format, args...)}
	}

	if urlStr == "" {
		return fail("url is required")
	}
	if err := security.ValidateURLForSSRF(urlStr); err != nil {
		return fail("invalid url: %v", err)
	}

	if cached, found := s.cache.Get(urlStr); found {
		return cached.(ScrapeResult)
	}

	if allowed, err := s.checkRobots(ctx, urlStr); err == nil && !allowed {
		return fail("blocked by robots.txt")
	}

	if err := s.rateLimiter.Wait(ctx); err != nil {
		return fail("rate limit exceeded, try again later")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return fail("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", scraperUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return fail("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fail("HTTP error %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBody))
	if err != nil {
		return fail("failed to read response: %v", err)
	}

	parsedURL, _ := url.Parse(urlStr)
	extracted, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{
		OriginalURL: parsedURL,
	})
	if err != nil || extracted == nil || extracted.ContentText == "" {
		return fail("failed to extract content from page")
	}

	content := collapseWhitespace(extracted.ContentText)
	result := ScrapeResult{
		URL:     urlStr,
		Title:   strings.TrimSpace(extracted.Metadata.Title),
		Content: content,
		Excerpt: firstChars(content, excerptLength),
		Success: true,
	}

	s.cache.Set(urlStr, result, cache.DefaultExpiration)

	return result
}

func (s *ScraperService) checkRobots(ctx context.Context, urlStr string) (bool, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return true, err
	}

	robotsURL := parsedURL.Scheme + "://" + parsedURL.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, "GET", robotsURL, nil)
	if err != nil {
		return true, nil
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		// Missing robots.txt means allowed
		return true, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return true, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1*1024*1024))
	if err != nil {
		return true, nil
	}

	robotsData, err := robotstxt.FromBytes(body)
	if err != nil {
		return true, nil
	}

	group := robotsData.FindGroup(scraperUserAgent)
	if group == nil {
		group = robotsData.FindGroup("*")
	}
	if group != nil {
		return group.Test(parsedURL.Path), nil
	}
	return true, nil
}

// collapseWhitespace squeezes runs of spaces and blank lines while keeping
// paragraph breaks.
func collapseWhitespace(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	joined := strings.Join(out, "\n")
	for strings.Contains(joined, "\n\n\n") {
		joined = strings.ReplaceAll(joined, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(joined)
}

func firstChars(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}
