package models

// ChatRequest is the input contract for both the synchronous and streaming
// chat paths.
type ChatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
}

// Source is one citation collected from tool results or forced grounding.
type Source struct {
	Type  string `json:"type"` // "knowledge", "web", "treatment_center", "resource", "provider", "page"
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// ChatResponse is the output of one completed turn. Sources is present only
// when tool or grounding citations were collected.
type ChatResponse struct {
	ConversationID string   `json:"conversationId"`
	Message        string   `json:"message"`
	Sources        []Source `json:"sources,omitempty"`
}

// IngestRequest is the JSON body accepted by the ingestion endpoint.
// Data is base64-encoded file content.
type IngestRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// IngestResponse reports a completed ingestion.
type IngestResponse struct {
	DocumentID string `json:"documentId"`
	Category   string `json:"category"`
	WordCount  int    `json:"wordCount"`
	ChunkCount int    `json:"chunkCount"`
}
