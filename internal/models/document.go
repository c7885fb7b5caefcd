package models

import "time"

// Document is an ingested knowledge document. ChunkCount is written once
// chunking completes; deleting a document cascades to its chunks.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storage_path"`
	MediaType   string    `json:"media_type"`
	Category    string    `json:"category"`
	Summary     string    `json:"summary"`
	WordCount   int       `json:"word_count"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk is a bounded contiguous slice of a document's text, the unit of
// retrieval. Indices are contiguous per document starting at 0. Immutable
// once written. Embedding is reserved and stays empty on the ingestion path.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Content    string `json:"content"`
	Embedding  string `json:"embedding,omitempty"`
	TokenCount int    `json:"token_count"`
}
