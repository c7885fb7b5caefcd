package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"streetlight/internal/models"
	"streetlight/internal/tools"
)

// fakeStore is an in-memory ConversationStore for orchestrator tests.
type fakeStore struct {
	mu    sync.Mutex
	convs map[string]*models.Conversation
	msgs  map[string][]models.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs: make(map[string]*models.Conversation),
		msgs:  make(map[string][]models.Message),
	}
}

func (s *fakeStore) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &models.Conversation{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		Title:          TruncateTitle(title),
		CreatedAt:      time.Now(),
		LastActivityAt: time.Now(),
	}
	s.convs[conv.ID.Hex()] = conv
	return conv, nil
}

func (s *fakeStore) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation not found")
	}
	return conv, nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return err
	}
	s.msgs[conversationID] = append(s.msgs[conversationID], models.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: oid,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	})
	return nil
}

func (s *fakeStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.msgs[conversationID]...), nil
}

func (s *fakeStore) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// completionResponse builds an OpenAI-shaped whole-response body.
func completionResponse(content string, toolCalls []map[string]interface{}) []byte {
	message := map[string]interface{}{"content": content}
	finish := "stop"
	if len(toolCalls) > 0 {
		message["tool_calls"] = toolCalls
		finish = "tool_calls"
	}
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": message, "finish_reason": finish},
		},
	})
	return body
}

func newTestChatService(t *testing.T, handler http.HandlerFunc, registry *tools.Registry) (*ChatService, *fakeStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if registry == nil {
		registry = tools.NewRegistry()
	}
	grounder, _ := newTestGrounder(t)
	store := newFakeStore()
	llm := NewLLMClient(server.URL, "test-key", "test-model")
	return NewChatService(llm, store, registry, grounder, 0), store
}

func TestSendMessage_FreshConversationAndAppend(t *testing.T) {
	svc, store := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionResponse("Hello! How can I help?", nil))
	}, nil)

	resp, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{Message: "hi there"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if resp.ConversationID == "" {
		t.Fatal("Expected a freshly assigned conversationId")
	}
	if resp.Message != "Hello! How can I help?" {
		t.Errorf("Unexpected answer: %q", resp.Message)
	}

	msgs, _ := store.ListMessages(context.Background(), resp.ConversationID)
	if len(msgs) != 2 {
		t.Fatalf("Expected user+assistant persisted, got %d messages", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Errorf("Unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}

	// Second send with the identifier appends to the same history.
	resp2, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{
		ConversationID: resp.ConversationID,
		Message:        "thanks",
	})
	if err != nil {
		t.Fatalf("Second SendMessage failed: %v", err)
	}
	if resp2.ConversationID != resp.ConversationID {
		t.Error("Conversation identifier should be stable across turns")
	}
	msgs, _ = store.ListMessages(context.Background(), resp.ConversationID)
	if len(msgs) != 4 {
		t.Errorf("Expected 4 messages after two turns, got %d", len(msgs))
	}
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	svc, _ := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionResponse("hi", nil))
	}, nil)

	_, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{
		ConversationID: primitive.NewObjectID().Hex(),
		Message:        "hello",
	})
	if err == nil {
		t.Fatal("Expected error for unknown conversation identifier")
	}
}

func TestSendMessage_EmptyAnswerFallback(t *testing.T) {
	svc, store := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionResponse("   ", nil))
	}, nil)

	resp, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{Message: "tell me a joke"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if strings.TrimSpace(resp.Message) == "" {
		t.Fatal("Assistant message must never be empty")
	}
	if resp.Message != apologyMessage {
		t.Errorf("Expected fallback answer, got %q", resp.Message)
	}

	msgs, _ := store.ListMessages(context.Background(), resp.ConversationID)
	if len(msgs) != 2 || strings.TrimSpace(msgs[1].Content) == "" {
		t.Error("Fallback answer must still be persisted")
	}
}

func TestSendMessage_ModelFailureDegradesToApology(t *testing.T) {
	svc, store := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	resp, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{Message: "hello there"})
	if err != nil {
		t.Fatalf("Model failure must not propagate as an error: %v", err)
	}
	if resp.Message != apologyMessage {
		t.Errorf("Expected apology answer on model failure, got %q", resp.Message)
	}

	msgs, _ := store.ListMessages(context.Background(), resp.ConversationID)
	if len(msgs) != 2 {
		t.Errorf("User and fallback messages must both persist, got %d", len(msgs))
	}
	if msgs[0].Content != "hello there" {
		t.Error("User message must persist even when the turn fails")
	}
}

func TestSendMessage_ToolPhase(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(&tools.Tool{
		Name:        "search_knowledge",
		Description: "Search the knowledge base",
		Parameters:  map[string]interface{}{"type": "object"},
		Execute: func(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
			if args["query"] != "detox programs" {
				t.Errorf("Tool received wrong arguments: %v", args)
			}
			return &tools.Result{
				Content: "[1] Detox Guide: walk-ins accepted",
				Sources: []models.Source{{Type: "knowledge", Title: "Detox Guide"}},
			}, nil
		},
	})

	var requests int
	svc, _ := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		body, _ := io.ReadAll(r.Body)
		switch requests {
		case 1:
			w.Write(completionResponse("", []map[string]interface{}{{
				"id":   "call_1",
				"type": "function",
				"function": map[string]interface{}{
					"name":      "search_knowledge",
					"arguments": `{"query":"detox programs"}`,
				},
			}}))
		case 2:
			// The final call must carry the tool result back to the model.
			if !strings.Contains(string(body), "walk-ins accepted") {
				t.Error("Final call missing tool result content")
			}
			if !strings.Contains(string(body), "call_1") {
				t.Error("Final call missing tool_call_id linkage")
			}
			w.Write(completionResponse("Detox programs accept walk-ins.", nil))
		default:
			t.Errorf("Unexpected extra model call %d", requests)
		}
	}, registry)

	resp, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{Message: "tell me about detox options"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if requests != 2 {
		t.Errorf("Expected exactly two model calls, got %d", requests)
	}
	if resp.Message != "Detox programs accept walk-ins." {
		t.Errorf("Unexpected final answer: %q", resp.Message)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Detox Guide" {
		t.Errorf("Expected tool sources on the response, got %+v", resp.Sources)
	}
}

func TestSendMessage_GroundingPreferred(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "VERIFIED DATA") {
			w.Write(completionResponse("New Start Recovery in Los Angeles takes Medi-Cal.", nil))
			return
		}
		w.Write(completionResponse("You could look online for detox centers.", nil))
	}))
	t.Cleanup(server.Close)

	grounder, db := newTestGrounder(t)
	if _, err := db.Exec(
		`INSERT INTO treatment_centers (id, name, description, services, city, accepts_medicaid, verified, updated_at)
		 VALUES ('t1', 'New Start Recovery', 'residential detox', 'detox', 'Los Angeles', 1, 1, ?)`,
		time.Now().Format(time.RFC3339),
	); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	store := newFakeStore()
	llm := NewLLMClient(server.URL, "test-key", "test-model")
	svc := NewChatService(llm, store, tools.NewRegistry(), grounder, 0)

	resp, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{Message: "detox treatment in LA"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if requests != 2 {
		t.Fatalf("Expected first call plus grounding call, got %d", requests)
	}
	if !strings.Contains(resp.Message, "New Start Recovery") {
		t.Errorf("Grounded answer should replace the ungrounded one, got %q", resp.Message)
	}
	if len(resp.Sources) == 0 {
		t.Error("Grounded turn should carry sources")
	}
}

func TestSendMessage_GroundingAllEmptyKeepsDirectAnswer(t *testing.T) {
	svc, _ := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionResponse("Try calling 211 for shelter openings.", nil))
	}, nil)

	// Message triggers grounding, but the directory is empty and web search
	// is unconfigured, so the direct answer must survive.
	resp, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{Message: "shelter tonight"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if resp.Message != "Try calling 211 for shelter openings." {
		t.Errorf("Direct answer should be kept when grounding finds nothing, got %q", resp.Message)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("No sources expected, got %+v", resp.Sources)
	}
}

func TestSendMessage_HistoryReplayedAfterAppend(t *testing.T) {
	var bodies []string
	svc, _ := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.Write(completionResponse("ok", nil))
	}, nil)

	first, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{Message: "my name is Sam"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{
		ConversationID: first.ConversationID,
		Message:        "what did I just say",
	}); err != nil {
		t.Fatalf("Second SendMessage failed: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("Expected 2 model calls, got %d", len(bodies))
	}
	// The second call replays the whole log: first turn's user message and
	// the persisted assistant reply, not just the new message.
	if !strings.Contains(bodies[1], "my name is Sam") {
		t.Error("Second call missing the first user message from history")
	}
	if !strings.Contains(bodies[1], `"ok"`) {
		t.Error("Second call missing the persisted assistant reply from history")
	}
}

func TestStreamMessage_EmitsDeltasAndComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hello"}}]}`,
			`{"choices":[{"delta":{"content":" there"}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)

	grounder, _ := newTestGrounder(t)
	store := newFakeStore()
	llm := NewLLMClient(server.URL, "test-key", "test-model")
	svc := NewChatService(llm, store, tools.NewRegistry(), grounder, 0)

	var deltas []string
	resp, err := svc.StreamMessage(context.Background(), "u1", &models.ChatRequest{Message: "say hello"}, &StreamEvents{
		OnDelta: func(content string) { deltas = append(deltas, content) },
	})
	if err != nil {
		t.Fatalf("StreamMessage failed: %v", err)
	}
	if strings.Join(deltas, "") != "Hello there" {
		t.Errorf("Expected streamed deltas to concatenate to the answer, got %v", deltas)
	}
	if resp.Message != "Hello there" {
		t.Errorf("Final payload should match aggregated deltas, got %q", resp.Message)
	}

	msgs, _ := store.ListMessages(context.Background(), resp.ConversationID)
	if len(msgs) != 2 || msgs[1].Content != "Hello there" {
		t.Error("Streamed turn must persist the aggregated answer")
	}
}

func TestSendMessage_ConcurrentSendsSameConversation(t *testing.T) {
	svc, store := newTestChatService(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.Write(completionResponse("ok", nil))
	}, nil)

	first, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{Message: "start"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.SendMessage(context.Background(), "u1", &models.ChatRequest{
				ConversationID: first.ConversationID,
				Message:        fmt.Sprintf("message %d", n),
			})
			if err != nil {
				t.Errorf("Concurrent send failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	msgs, _ := store.ListMessages(context.Background(), first.ConversationID)
	if len(msgs) != 12 {
		t.Fatalf("Expected 12 messages (6 turns), got %d", len(msgs))
	}
	// Turns are serialized per conversation: user and assistant messages
	// strictly alternate, no interleaving.
	for i, msg := range msgs {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleAssistant
		}
		if msg.Role != want {
			t.Fatalf("Message %d has role %s, want %s (interleaved turn)", i, msg.Role, want)
		}
	}
}
