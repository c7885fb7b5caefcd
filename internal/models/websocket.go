package models

// ClientMessage is an incoming websocket frame on the streaming chat path.
type ClientMessage struct {
	Type           string `json:"type"` // "chat"
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message,omitempty"`
}

// ServerMessage is an outgoing websocket frame. The final "complete" frame
// carries the same payload shape as the synchronous response.
type ServerMessage struct {
	Type           string   `json:"type"` // "stream_chunk", "tool_call", "complete", "error"
	ConversationID string   `json:"conversationId,omitempty"`
	Content        string   `json:"content,omitempty"`
	Tool           string   `json:"tool,omitempty"`
	Message        string   `json:"message,omitempty"`
	Sources        []Source `json:"sources,omitempty"`
	Error          string   `json:"error,omitempty"`
}
