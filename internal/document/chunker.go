package document

import (
	"strings"

	"streetlight/internal/config"
)

// DefaultMaxChunkSize is the nominal chunk size in characters.
const DefaultMaxChunkSize = 1500

// Chunk splits text into paragraph-aligned segments of roughly maxChunkSize
// characters. A paragraph is appended while the buffer has room and the
// buffer is flushed once it reaches maxChunkSize, so a chunk can exceed the
// nominal size by at most one paragraph. Paragraphs are never split.
// Zero-length input yields no chunks.
func Chunk(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder

	for _, para := range paragraphs {
		if buf.Len() > 0 && buf.Len() >= maxChunkSize {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}

	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}

	return chunks
}

// splitParagraphs breaks text on blank-line boundaries, dropping empty runs.
func splitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	for _, block := range strings.Split(normalized, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	return paragraphs
}

// CountTokens counts whitespace-separated non-empty tokens.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// Categorize buckets a document by filename substrings. Best effort, falls
// back to "general".
func Categorize(filename string, rules []config.CategoryRule) string {
	name := strings.ToLower(filename)
	for _, rule := range rules {
		for _, sub := range rule.Substrings {
			if strings.Contains(name, sub) {
				return rule.Category
			}
		}
	}
	return "general"
}
