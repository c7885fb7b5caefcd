package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"streetlight/internal/config"
	"streetlight/internal/models"
	"streetlight/internal/retrieval"
)

const (
	groundingInternalLimit = 12
	groundingWebLimit      = 5
	groundingRelaxedLimit  = 20
)

// GroundedContext is the assembled context blob for a forced-grounding call,
// plus the citation metadata collected while building it.
type GroundedContext struct {
	Context string
	Sources []models.Source
}

// Empty reports whether no lookup produced any usable row.
func (g *GroundedContext) Empty() bool {
	return strings.TrimSpace(g.Context) == ""
}

// GroundingService supplies verified directory and web data to the model when
// a resource-shaped query was answered without any tool call.
type GroundingService struct {
	engine *retrieval.Engine
	search *WebSearchService
	rules  *config.RuleSet
}

// NewGroundingService creates the grounder.
func NewGroundingService(engine *retrieval.Engine, search *WebSearchService, rules *config.RuleSet) *GroundingService {
	return &GroundingService{engine: engine, search: search, rules: rules}
}

// ShouldGround tests the raw user message against the trigger phrase list.
func (g *GroundingService) ShouldGround(message string) bool {
	lower := " " + strings.ToLower(message) + " "
	for _, trigger := range g.rules.Current().GroundingTriggers {
		if strings.Contains(lower, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

// localityHint derives the web-search scope from the message. An explicit
// Koreatown mention beats a generic LA mention; otherwise search the raw query.
func localityHint(message string) string {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "koreatown") || strings.Contains(lower, "k-town") || strings.Contains(lower, "ktown") {
		return "Koreatown Los Angeles"
	}
	if mentionsLosAngeles(lower) {
		return "Los Angeles"
	}
	return message
}

// mentionsLosAngeles matches "los angeles" or "la" as a whole word in an
// already-lowercased message.
func mentionsLosAngeles(lower string) bool {
	if strings.Contains(lower, "los angeles") {
		return true
	}
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}) {
		if word == "la" {
			return true
		}
	}
	return false
}

// mentionsMedicaid matches the Medi-Cal spellings used by the alias rules.
func mentionsMedicaid(lower string) bool {
	return strings.Contains(lower, "medi-cal") ||
		strings.Contains(lower, "medi cal") ||
		strings.Contains(lower, "medicaid")
}

// Gather runs the four lookups concurrently and assembles the context blob.
// Section order is fixed regardless of completion order. Individual lookup
// failures drop their section rather than failing the whole grounding pass.
func (g *GroundingService) Gather(ctx context.Context, message string) *GroundedContext {
	lower := strings.ToLower(message)

	var (
		wg         sync.WaitGroup
		centers    []models.TreatmentCenter
		resources  []models.Resource
		providers  []models.Provider
		webResult  SearchResult
		centersErr error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		centers, centersErr = g.engine.SearchTreatmentCenters(ctx, message, groundingInternalLimit)
	}()
	go func() {
		defer wg.Done()
		resources, _ = g.engine.SearchResources(ctx, message, groundingInternalLimit)
	}()
	go func() {
		defer wg.Done()
		providers, _ = g.engine.SearchProviders(ctx, message, groundingInternalLimit)
	}()
	go func() {
		defer wg.Done()
		webResult = g.search.Search(ctx, localityHint(message), groundingWebLimit)
	}()
	wg.Wait()

	// Medicaid fallback when the scored lookup came up empty.
	var fallback []models.TreatmentCenter
	if centersErr == nil && len(centers) == 0 && mentionsMedicaid(lower) {
		cityFilter := ""
		if mentionsLosAngeles(lower) || strings.Contains(lower, "koreatown") {
			cityFilter = "Los Angeles"
		}
		fallback, _ = g.engine.SearchTreatmentCentersRelaxed(ctx, cityFilter, groundingRelaxedLimit)
	}

	out := &GroundedContext{}
	var b strings.Builder

	if len(centers) > 0 {
		b.WriteString("TREATMENT CENTERS (verified directory):\n")
		for _, c := range centers {
			b.WriteString(formatTreatmentCenter(c))
			out.Sources = append(out.Sources, models.Source{Type: "treatment_center", Title: c.Name})
		}
		b.WriteString("\n")
	}
	if len(resources) > 0 {
		b.WriteString("COMMUNITY RESOURCES (verified directory):\n")
		for _, r := range resources {
			b.WriteString(fmt.Sprintf("- [resource] %s (%s): %s\n", r.Name, r.City, r.Description))
			out.Sources = append(out.Sources, models.Source{Type: "resource", Title: r.Name})
		}
		b.WriteString("\n")
	}
	if len(providers) > 0 {
		b.WriteString("PROVIDERS (verified directory):\n")
		for _, p := range providers {
			b.WriteString(fmt.Sprintf("- [provider] %s, %s (%s): %s\n", p.Name, p.Specialty, p.City, p.Description))
			out.Sources = append(out.Sources, models.Source{Type: "provider", Title: p.Name})
		}
		b.WriteString("\n")
	}
	if webResult.Success && len(webResult.Results) > 0 {
		b.WriteString("WEB SEARCH RESULTS:\n")
		for _, w := range webResult.Results {
			b.WriteString(fmt.Sprintf("- [web] %s: %s (%s)\n", w.Title, w.Snippet, w.Link))
			out.Sources = append(out.Sources, models.Source{Type: "web", Title: w.Title, URL: w.Link})
		}
		b.WriteString("\n")
	} else if !webResult.Success && webResult.Error != "" {
		b.WriteString("WEB SEARCH: unavailable (" + webResult.Error + ")\n\n")
	}
	if len(fallback) > 0 {
		b.WriteString("MEDI-CAL ACCEPTING CENTERS (relaxed match):\n")
		for _, c := range fallback {
			b.WriteString(formatTreatmentCenter(c))
			out.Sources = append(out.Sources, models.Source{Type: "treatment_center", Title: c.Name})
		}
		b.WriteString("\n")
	}

	// A web-search-unavailable note with no data rows is not usable context.
	if len(out.Sources) == 0 {
		return &GroundedContext{}
	}
	out.Context = b.String()
	return out
}

func formatTreatmentCenter(c models.TreatmentCenter) string {
	medicaid := "no"
	if c.AcceptsMedicaid {
		medicaid = "yes"
	}
	return fmt.Sprintf("- [treatment] %s (%s, Medi-Cal: %s): %s. Services: %s\n",
		c.Name, c.City, medicaid, c.Description, c.Services)
}
