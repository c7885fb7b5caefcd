package services

import (
	"context"
	"fmt"
	"strings"

	"streetlight/internal/models"
	"streetlight/internal/tools"
)

// scrapeContentLimit bounds the page body fed back to the model.
const scrapeContentLimit = 3000

// NewScraperTool creates the scrape_url tool.
func NewScraperTool(scraper *ScraperService) *tools.Tool {
	return &tools.Tool{
		Name:        tools.ToolScrapeURL,
		Description: "Fetch a web page and extract its readable content. Use this to read a specific page, such as a shelter's website or a program description, when you already have the URL.",
		Parameters:  tools.StringParam("url", "The HTTP or HTTPS URL of the page to read"),
		Execute: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			urlStr, ok := args["url"].(string)
			if !ok || strings.TrimSpace(urlStr) == "" {
				return &tools.Result{Content: "Error: url parameter is required"}, nil
			}

			result := scraper.Scrape(ctx, urlStr)
			if !result.Success {
				return &tools.Result{Content: fmt.Sprintf("Could not read %s: %s", urlStr, result.Error)}, nil
			}

			content := result.Content
			if len(content) > scrapeContentLimit {
				content = content[:scrapeContentLimit] + "\n\n[Content truncated]"
			}

			title := result.Title
			if title == "" {
				title = urlStr
			}

			return &tools.Result{
				Content: fmt.Sprintf("# %s\nSource: %s\n\n%s", title, urlStr, content),
				Sources: []models.Source{{Type: "page", Title: title, URL: urlStr}},
			}, nil
		},
	}
}
