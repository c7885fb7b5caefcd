package document

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"streetlight/internal/config"
	"streetlight/internal/database"
	"streetlight/internal/models"
)

// Ingestion rejection errors, checked by handlers to pick a status code.
var (
	ErrPayloadTooLarge      = errors.New("payload exceeds size limit")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// Service ingests raw files into searchable chunks.
type Service struct {
	db           *database.DB
	rules        *config.RuleSet
	maxBytes     int
	maxChunkSize int
}

// NewService creates the ingestion service.
func NewService(db *database.DB, rules *config.RuleSet, maxBytes int) *Service {
	if maxBytes <= 0 {
		maxBytes = 20 * 1024 * 1024
	}
	return &Service{
		db:           db,
		rules:        rules,
		maxBytes:     maxBytes,
		maxChunkSize: DefaultMaxChunkSize,
	}
}

// Ingest validates, extracts, chunks, and persists one document. Size and
// media-type checks run before any extraction work. A zero-chunk document
// (empty input) is valid and persists with chunk_count 0.
func (s *Service) Ingest(ctx context.Context, filename, mimeType string, data []byte) (*models.Document, error) {
	if len(data) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(data), s.maxBytes)
	}

	text, err := ExtractText(mimeType, data)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:        uuid.New().String(),
		Title:     titleFromFilename(filename),
		Filename:  filename,
		MediaType: normalizeMediaType(mimeType),
		Category:  Categorize(filename, s.rules.Current().Categories),
		WordCount: CountTokens(text),
		CreatedAt: time.Now().UTC(),
	}

	chunks := Chunk(text, s.maxChunkSize)
	if len(chunks) > 0 {
		doc.Summary = excerpt(chunks[0], 300)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, filename, storage_path, media_type, category, summary, word_count, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Filename, doc.StoragePath, doc.MediaType, doc.Category,
		doc.Summary, doc.WordCount, 0, doc.CreatedAt.Format(time.RFC3339),
	); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	for i, content := range chunks {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content, token_count)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), doc.ID, i, content, CountTokens(content),
		); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	doc.ChunkCount = len(chunks)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE documents SET chunk_count = ? WHERE id = ?`, doc.ChunkCount, doc.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update chunk count: %w", err)
	}

	documentsIngestedTotal.WithLabelValues(doc.Category).Inc()
	chunksIngestedTotal.Add(float64(doc.ChunkCount))
	log.Printf("📄 [INGEST] %s: %d words, %d chunks, category=%s", filename, doc.WordCount, doc.ChunkCount, doc.Category)

	return doc, nil
}

// Delete removes a document and cascades to its chunks.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Get returns one document by ID.
func (s *Service) Get(ctx context.Context, documentID string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, filename, storage_path, media_type, category, summary, word_count, chunk_count, created_at
		 FROM documents WHERE id = ?`, documentID)

	var doc models.Document
	var createdAt string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Filename, &doc.StoragePath, &doc.MediaType,
		&doc.Category, &doc.Summary, &doc.WordCount, &doc.ChunkCount, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	doc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &doc, nil
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return strings.TrimSpace(base)
}

func excerpt(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if lastSpace := strings.LastIndex(cut, " "); lastSpace > maxChars/2 {
		cut = cut[:lastSpace]
	}
	return cut + "..."
}
