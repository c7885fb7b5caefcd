package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"streetlight/internal/logging"
	"streetlight/internal/models"
	"streetlight/internal/tools"
)

// systemPrompt frames every conversation. Tool guidance stays short; the
// catalog itself is supplied separately on each call.
const systemPrompt = `You are Streetlight, an assistant that helps people experiencing homelessness in Los Angeles find shelter, food, treatment, healthcare, and other services.

Guidelines:
- Be warm, direct, and practical. People may be in crisis; get to the useful part fast.
- Prefer verified information. Use search_knowledge for program details from the knowledge base, search_google for current availability or anything time-sensitive, and scrape_url when the user shares a link.
- When you list a service, include what you know about location, hours, and eligibility (especially Medi-Cal acceptance).
- If you do not know something, say so and suggest who to call. Never invent addresses or phone numbers.`

// groundingPrompt frames the forced-grounding call. The context blob is
// appended to this frame; conversation history is not replayed.
const groundingPrompt = `You are Streetlight, an assistant that helps people experiencing homelessness in Los Angeles find services.

Answer the user's question using ONLY the verified directory data and search results below. Cite the specific organizations you mention. If the data does not answer the question, say what is closest and suggest calling 211.`

// apologyMessage is returned whenever a turn cannot produce a real answer.
// The caller never sees an empty assistant message or an error page.
const apologyMessage = "I'm sorry, I ran into a problem answering that. Please try again in a moment, or call 211 for immediate help finding services."

// StreamEvents receives incremental progress during a streaming turn. Any
// callback may be nil.
type StreamEvents struct {
	OnDelta func(content string)
	OnTool  func(name string)
}

// ChatService runs one conversation turn end to end: persistence, the model
// call, tool dispatch, forced grounding, and the non-empty answer guarantee.
type ChatService struct {
	llm        *LLMClient
	store      ConversationStore
	registry   *tools.Registry
	grounder   *GroundingService
	maxHistory int

	// history caches each conversation's replayed message log, invalidated
	// on every append.
	history *cache.Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewChatService creates the orchestrator. A maxHistory of 0 replays the
// full message log on every turn.
func NewChatService(llm *LLMClient, store ConversationStore, registry *tools.Registry, grounder *GroundingService, maxHistory int) *ChatService {
	return &ChatService{
		llm:        llm,
		store:      store,
		registry:   registry,
		grounder:   grounder,
		maxHistory: maxHistory,
		history:    cache.New(30*time.Minute, 10*time.Minute),
		locks:      make(map[string]*sync.Mutex),
	}
}

// appendMessage persists one message and drops the conversation's cached
// history.
func (s *ChatService) appendMessage(ctx context.Context, conversationID, role, content string) error {
	err := s.store.AppendMessage(ctx, conversationID, role, content)
	s.history.Delete(conversationID)
	return err
}

// loadHistory serves the message log from cache when possible. Only called
// under the conversation lock.
func (s *ChatService) loadHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	if cached, found := s.history.Get(conversationID); found {
		return cached.([]models.Message), nil
	}
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.history.Set(conversationID, messages, cache.DefaultExpiration)
	return messages, nil
}

// conversationLock returns the mutex serializing turns for one conversation.
// Two concurrent sends on the same conversation process strictly in order;
// sends on different conversations never block each other.
func (s *ChatService) conversationLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}

// SendMessage runs a synchronous turn.
func (s *ChatService) SendMessage(ctx context.Context, userID string, req *models.ChatRequest) (*models.ChatResponse, error) {
	return s.runTurn(ctx, userID, req, nil)
}

// StreamMessage runs a streaming turn. Content deltas and tool notifications
// are delivered through events; the returned response carries the same final
// payload as the synchronous path.
func (s *ChatService) StreamMessage(ctx context.Context, userID string, req *models.ChatRequest, events *StreamEvents) (*models.ChatResponse, error) {
	if events == nil {
		events = &StreamEvents{}
	}
	return s.runTurn(ctx, userID, req, events)
}

// runTurn is the shared turn state machine. A nil events means synchronous
// mode. Store failures before the model call return an error; everything
// after the user message is persisted degrades to the apology answer.
func (s *ChatService) runTurn(ctx context.Context, userID string, req *models.ChatRequest, events *StreamEvents) (*models.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	// Resolve the conversation before locking so the lock key is stable.
	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := s.store.CreateConversation(ctx, userID, message)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conv.ID.Hex()
	} else {
		if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
			return nil, err
		}
	}

	lock := s.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	logger := logging.WithTurn(conversationID, userID)

	if err := s.appendMessage(ctx, conversationID, models.RoleUser, message); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	history, err := s.loadHistory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	answer, sources, turnErr := s.answer(ctx, logger, message, history, events)
	mode := "sync"
	if events != nil {
		mode = "stream"
	}
	if turnErr != nil {
		// Turn-level failure never reaches the caller as an error.
		logger.Error("Turn failed, degrading to fallback answer", "error", turnErr)
		answer = apologyMessage
		sources = nil
		chatTurnsTotal.WithLabelValues(mode, "error").Inc()
	} else {
		chatTurnsTotal.WithLabelValues(mode, "ok").Inc()
	}
	if strings.TrimSpace(answer) == "" {
		answer = apologyMessage
		sources = nil
	}

	if err := s.appendMessage(ctx, conversationID, models.RoleAssistant, answer); err != nil {
		logger.Error("Failed to persist assistant message", "error", err)
	}

	return &models.ChatResponse{
		ConversationID: conversationID,
		Message:        answer,
		Sources:        sources,
	}, nil
}

// answer runs the model phases for one turn and returns the raw answer text
// plus collected citations. Errors here are caught by runTurn.
func (s *ChatService) answer(ctx context.Context, logger *slog.Logger, message string, history []models.Message, events *StreamEvents) (string, []models.Source, error) {
	messages := buildMessages(history, s.maxHistory)
	toolDefs := s.registry.List()

	first, err := s.callModel(ctx, "first", messages, toolDefs, events)
	if err != nil {
		return "", nil, fmt.Errorf("first model call failed: %w", err)
	}

	if len(first.ToolCalls) > 0 {
		return s.runToolPhase(ctx, logger, messages, first, events)
	}

	// No tools requested. Resource-shaped queries still get grounded data.
	answer := first.Content
	if s.grounder.ShouldGround(message) {
		groundingTriggersTotal.Inc()
		grounded := s.grounder.Gather(ctx, message)
		if !grounded.Empty() {
			logger.Info("Forcing grounded answer", "sources", len(grounded.Sources))
			groundedAnswer, err := s.callGrounded(ctx, message, grounded.Context, events)
			if err != nil {
				logger.Warn("Grounding call failed, keeping direct answer", "error", err)
				return answer, nil, nil
			}
			if strings.TrimSpace(groundedAnswer) != "" {
				return groundedAnswer, grounded.Sources, nil
			}
		}
	}
	return answer, nil, nil
}

// runToolPhase executes the model's requested tools and issues the final call.
func (s *ChatService) runToolPhase(ctx context.Context, logger *slog.Logger, messages []map[string]interface{}, first *LLMResponse, events *StreamEvents) (string, []models.Source, error) {
	// The assistant's tool_calls message must precede the tool results.
	assistantCalls := make([]map[string]interface{}, 0, len(first.ToolCalls))
	for _, tc := range first.ToolCalls {
		assistantCalls = append(assistantCalls, map[string]interface{}{
			"id":   tc.ID,
			"type": "function",
			"function": map[string]interface{}{
				"name":      tc.Name,
				"arguments": tc.Arguments,
			},
		})
	}
	assistantMsg := map[string]interface{}{
		"role":       "assistant",
		"tool_calls": assistantCalls,
	}
	if first.Content != "" {
		assistantMsg["content"] = first.Content
	}
	messages = append(messages, assistantMsg)

	var sources []models.Source
	for _, tc := range first.ToolCalls {
		if events != nil && events.OnTool != nil {
			events.OnTool(tc.Name)
		}

		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			args = map[string]interface{}{}
		}

		toolLogger := logging.WithTool(logger, tc.Name, tc.ID)

		log.Printf("🔧 [TOOL] Executing %s (call %s)", tc.Name, tc.ID)
		result, err := s.registry.Execute(ctx, tc.Name, args)
		content := ""
		if err != nil {
			// Unknown tool or execution error: the model still needs a
			// tool-role message for this call ID.
			toolExecutionsTotal.WithLabelValues(tc.Name, "error").Inc()
			toolLogger.Warn("Tool execution failed", "error", err)
			content = fmt.Sprintf("Tool error: %v", err)
		} else {
			toolExecutionsTotal.WithLabelValues(tc.Name, "ok").Inc()
			content = result.Content
			sources = append(sources, result.Sources...)
		}

		messages = append(messages, map[string]interface{}{
			"role":         "tool",
			"tool_call_id": tc.ID,
			"content":      content,
		})
	}

	// Final call: no tool catalog, the model must answer with text now.
	final, err := s.callModel(ctx, "final", messages, nil, events)
	if err != nil {
		return "", nil, fmt.Errorf("final model call failed: %w", err)
	}
	return final.Content, sources, nil
}

// callModel dispatches to the streaming or whole-response client path.
func (s *ChatService) callModel(ctx context.Context, phase string, messages []map[string]interface{}, toolDefs []map[string]interface{}, events *StreamEvents) (*LLMResponse, error) {
	start := time.Now()
	defer func() {
		llmRequestDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}()

	if events != nil {
		onDelta := events.OnDelta
		if onDelta == nil {
			onDelta = func(string) {}
		}
		return s.llm.Stream(ctx, messages, toolDefs, onDelta)
	}
	return s.llm.Complete(ctx, messages, toolDefs)
}

// callGrounded issues the forced-grounding call with a fresh instruction
// frame rather than the conversation history.
func (s *ChatService) callGrounded(ctx context.Context, message, context string, events *StreamEvents) (string, error) {
	messages := []map[string]interface{}{
		{"role": "system", "content": groundingPrompt + "\n\nVERIFIED DATA:\n" + context},
		{"role": "user", "content": message},
	}
	resp, err := s.callModel(ctx, "grounding", messages, nil, events)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// buildMessages converts persisted history into the wire message list,
// keeping at most maxHistory of the most recent messages after the system
// prompt. Zero keeps everything.
func buildMessages(history []models.Message, maxHistory int) []map[string]interface{} {
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	messages := make([]map[string]interface{}, 0, len(history)+1)
	messages = append(messages, map[string]interface{}{
		"role":    "system",
		"content": systemPrompt,
	})
	for _, msg := range history {
		messages = append(messages, map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}
	return messages
}
