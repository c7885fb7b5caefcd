package services

import (
	"context"
	"fmt"
	"strings"

	"streetlight/internal/models"
	"streetlight/internal/tools"
)

const webSearchResultCount = 5

// NewSearchTool creates the search_google tool.
func NewSearchTool(search *WebSearchService) *tools.Tool {
	return &tools.Tool{
		Name:        tools.ToolSearchGoogle,
		Description: "Search the web for current information. Use this for anything not covered by the internal knowledge base, like hours, phone numbers, or services outside the directory.",
		Parameters:  tools.StringParam("query", "The web search query"),
		Execute: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			query, ok := args["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return &tools.Result{Content: "Error: query parameter is required"}, nil
			}

			result := search.Search(ctx, query, webSearchResultCount)
			if !result.Success {
				return &tools.Result{Content: fmt.Sprintf("Web search failed: %s", result.Error)}, nil
			}
			if len(result.Results) == 0 {
				return &tools.Result{Content: fmt.Sprintf("No web results found for %q.", query)}, nil
			}

			var b strings.Builder
			var sources []models.Source
			b.WriteString(fmt.Sprintf("Web results for %q:\n\n", query))
			for i, hit := range result.Results {
				b.WriteString(fmt.Sprintf("%d. %s\n   %s\n   %s\n\n", i+1, hit.Title, hit.Snippet, hit.Link))
				sources = append(sources, models.Source{Type: "web", Title: hit.Title, URL: hit.Link})
			}

			b.WriteString("SOURCES FOR CITATION:\n")
			for i, hit := range result.Results {
				b.WriteString(fmt.Sprintf("[%d] %s - %s\n", i+1, hit.Title, hit.Link))
			}

			return &tools.Result{Content: strings.TrimSpace(b.String()), Sources: sources}, nil
		},
	}
}
