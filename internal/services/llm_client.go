package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LLMToolCall is one tool invocation requested by the model.
type LLMToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// LLMResponse is the collected output of one model call, streamed or not.
type LLMResponse struct {
	Content      string
	ToolCalls    []LLMToolCall
	FinishReason string
}

// LLMClient talks to an OpenAI-compatible chat completions endpoint.
type LLMClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewLLMClient creates the model client.
func NewLLMClient(baseURL, apiKey, model string) *LLMClient {
	return &LLMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Model returns the configured model name.
func (c *LLMClient) Model() string {
	return c.model
}

func (c *LLMClient) newRequest(ctx context.Context, messages []map[string]interface{}, toolDefs []map[string]interface{}, stream bool) (*http.Request, error) {
	payload := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"stream":      stream,
		"temperature": 0.7,
	}
	// Some APIs reject an empty tools array
	if len(toolDefs) > 0 {
		payload["tools"] = toolDefs
		payload["tool_choice"] = "auto"
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Complete performs a whole-response model call.
func (c *LLMClient) Complete(ctx context.Context, messages []map[string]interface{}, toolDefs []map[string]interface{}) (*LLMResponse, error) {
	req, err := c.newRequest(ctx, messages, toolDefs, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	choice := parsed.Choices[0]
	result := &LLMResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, LLMToolCall{
			ID:        truncateToolCallID(tc.ID),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// toolCallAccumulator accumulates streaming tool call deltas for one index.
type toolCallAccumulator struct {
	ID        string
	Name      string
	Arguments strings.Builder
}

// Stream performs a streamed model call. Content deltas are passed to
// onDelta as they arrive; tool-call deltas are accumulated by index and only
// become part of the returned response once the stream completes.
func (c *LLMClient) Stream(ctx context.Context, messages []map[string]interface{}, toolDefs []map[string]interface{}, onDelta func(content string)) (*LLMResponse, error) {
	req, err := c.newRequest(ctx, messages, toolDefs, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)

	// 1MB buffer; large tool call arguments overflow the 64KB default
	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	var fullContent strings.Builder
	toolCallsMap := make(map[int]*toolCallAccumulator)
	maxIndex := -1
	var finishReason string

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk map[string]interface{}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		choices, ok := chunk["choices"].([]interface{})
		if !ok || len(choices) == 0 {
			continue
		}
		choice, ok := choices[0].(map[string]interface{})
		if !ok {
			continue
		}

		if reason, ok := choice["finish_reason"].(string); ok && reason != "" {
			finishReason = reason
		}

		delta, ok := choice["delta"].(map[string]interface{})
		if !ok {
			continue
		}

		if content, ok := delta["content"].(string); ok && content != "" {
			fullContent.WriteString(content)
			if onDelta != nil {
				onDelta(content)
			}
		}

		// Accumulate tool calls, never execute mid-stream
		if toolCallsData, ok := delta["tool_calls"].([]interface{}); ok {
			for _, tc := range toolCallsData {
				toolCallChunk, ok := tc.(map[string]interface{})
				if !ok {
					continue
				}

				var index int
				if idx, ok := toolCallChunk["index"].(float64); ok {
					index = int(idx)
				}
				if _, exists := toolCallsMap[index]; !exists {
					toolCallsMap[index] = &toolCallAccumulator{}
				}
				if index > maxIndex {
					maxIndex = index
				}

				acc := toolCallsMap[index]
				if id, ok := toolCallChunk["id"].(string); ok && id != "" {
					acc.ID = truncateToolCallID(id)
				}
				if function, ok := toolCallChunk["function"].(map[string]interface{}); ok {
					if name, ok := function["name"].(string); ok && name != "" {
						acc.Name = name
					}
					if args, ok := function["arguments"].(string); ok {
						acc.Arguments.WriteString(args)
					}
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream scanner error: %w", err)
	}

	result := &LLMResponse{
		Content:      fullContent.String(),
		FinishReason: finishReason,
	}
	for i := 0; i <= maxIndex; i++ {
		acc, ok := toolCallsMap[i]
		if !ok || acc.Name == "" {
			continue
		}
		result.ToolCalls = append(result.ToolCalls, LLMToolCall{
			ID:        acc.ID,
			Name:      acc.Name,
			Arguments: acc.Arguments.String(),
		})
	}
	return result, nil
}

// truncateToolCallID enforces the 40 character OpenAI tool call ID limit.
func truncateToolCallID(id string) string {
	if len(id) > 40 {
		return id[:40]
	}
	return id
}
