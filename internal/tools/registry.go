package tools

import (
	"context"
	"fmt"
	"sync"

	"streetlight/internal/models"
)

// Tool names. The registry is closed: only these resolve.
const (
	ToolSearchKnowledge = "search_knowledge"
	ToolScrapeURL       = "scrape_url"
	ToolSearchGoogle    = "search_google"
)

// Result is a tool's output. Sources carry citation metadata collected as a
// side effect of execution.
type Result struct {
	Content string
	Sources []models.Source
}

// ExecuteFunc is the function signature for tool execution
type ExecuteFunc func(ctx context.Context, args map[string]interface{}) (*Result, error)

// Tool represents a callable tool with its schema and execution function
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Execute     ExecuteFunc
}

// Registry holds the fixed tool set offered to the model. Tools are
// registered once at startup; lookup is by name.
type Registry struct {
	tools map[string]*Tool
	order []string
	mutex sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool *Tool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s must have an Execute function", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s is already registered", tool.Name)
	}

	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tools in OpenAI tool format, in registration
// order.
func (r *Registry) List() []map[string]interface{} {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	tools := make([]map[string]interface{}, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		tools = append(tools, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return tools
}

// Execute runs a tool by name with given arguments
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (*Result, error) {
	tool, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return tool.Execute(ctx, args)
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.tools)
}

// StringParam builds the schema for a tool taking a single required string
// argument and nothing else.
func StringParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			name: map[string]interface{}{
				"type":        "string",
				"description": description,
			},
		},
		"required":             []string{name},
		"additionalProperties": false,
	}
}
