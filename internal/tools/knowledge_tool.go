package tools

import (
	"context"
	"fmt"
	"strings"

	"streetlight/internal/models"
	"streetlight/internal/retrieval"
)

const knowledgeResultLimit = 5

// NewKnowledgeTool creates the search_knowledge tool over the chunk store.
func NewKnowledgeTool(engine *retrieval.Engine) *Tool {
	return &Tool{
		Name:        ToolSearchKnowledge,
		Description: "Search the internal knowledge base of ingested documents (guides, program descriptions, benefit rules). Returns the most relevant passages with their source documents. Use this before searching the web for questions about local services and programs.",
		Parameters:  StringParam("query", "What to look up in the knowledge base"),
		Execute: func(ctx context.Context, args map[string]interface{}) (*Result, error) {
			query, ok := args["query"].(string)
			if !ok || strings.TrimSpace(query) == "" {
				return &Result{Content: "Error: query parameter is required"}, nil
			}

			matches, err := engine.SearchChunks(ctx, query, knowledgeResultLimit)
			if err != nil {
				return &Result{Content: fmt.Sprintf("Knowledge search failed: %v", err)}, nil
			}
			if len(matches) == 0 {
				return &Result{Content: "No matching passages found in the knowledge base."}, nil
			}

			var b strings.Builder
			var sources []models.Source
			b.WriteString(fmt.Sprintf("Found %d relevant passages:\n\n", len(matches)))
			for i, m := range matches {
				b.WriteString(fmt.Sprintf("[%d] %s (%s)\n%s\n\n", i+1, m.DocumentTitle, m.Category, m.Chunk.Content))
				sources = append(sources, models.Source{
					Type:  "knowledge",
					Title: m.DocumentTitle,
				})
			}

			return &Result{Content: strings.TrimSpace(b.String()), Sources: sources}, nil
		},
	}
}
