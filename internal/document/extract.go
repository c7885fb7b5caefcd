package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	// MaxPDFPages limits the number of pages to process
	MaxPDFPages = 100

	// MaxExtractedTextSize limits the extracted text size (1MB)
	MaxExtractedTextSize = 1024 * 1024
)

// ExtractText converts raw file bytes to plain text according to the media
// type. Only PDF, markdown, and plain text are supported.
func ExtractText(mimeType string, data []byte) (string, error) {
	switch normalizeMediaType(mimeType) {
	case "application/pdf":
		return extractPDFText(data)
	case "text/markdown":
		return extractMarkdownText(data)
	case "text/plain":
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mimeType)
	}
}

// normalizeMediaType strips parameters like "; charset=utf-8".
func normalizeMediaType(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// extractPDFText pulls plain text from a PDF, page by page. Pages that fail
// extraction are skipped rather than failing the whole document.
func extractPDFText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := pdfReader.NumPage()
	if totalPages == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}
	if totalPages > MaxPDFPages {
		return "", fmt.Errorf("PDF has too many pages (%d), max allowed is %d", totalPages, MaxPDFPages)
	}

	var textBuilder strings.Builder
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		content = strings.TrimSpace(strings.ReplaceAll(content, "\x00", ""))
		if content != "" {
			if textBuilder.Len() > 0 {
				textBuilder.WriteString("\n\n")
			}
			textBuilder.WriteString(content)
		}

		if textBuilder.Len() > MaxExtractedTextSize {
			break
		}
	}

	extracted := textBuilder.String()
	if len(extracted) > MaxExtractedTextSize {
		extracted = extracted[:MaxExtractedTextSize]
	}

	return extracted, nil
}

// extractMarkdownText walks the markdown AST and collects the text of
// block-level nodes, one paragraph per block, so chunking sees the same
// blank-line structure a plain-text document would have.
func extractMarkdownText(data []byte) (string, error) {
	md := goldmark.New()
	reader := text.NewReader(data)
	root := md.Parser().Parse(reader)

	var blocks []string
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		// TextBlock is what tight list items wrap their content in
		case ast.KindParagraph, ast.KindHeading, ast.KindBlockquote, ast.KindTextBlock:
			if block := nodeText(n, data); block != "" {
				blocks = append(blocks, block)
			}
			return ast.WalkSkipChildren, nil
		case ast.KindCodeBlock, ast.KindFencedCodeBlock:
			var buf strings.Builder
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(data))
			}
			if block := strings.TrimSpace(buf.String()); block != "" {
				blocks = append(blocks, block)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse markdown: %w", err)
	}

	return strings.Join(blocks, "\n\n"), nil
}

// nodeText concatenates the source text of a node's inline children.
func nodeText(n ast.Node, source []byte) string {
	var buf strings.Builder
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		collectText(child, source, &buf)
	}
	return strings.TrimSpace(buf.String())
}

func collectText(n ast.Node, source []byte, buf *strings.Builder) {
	switch t := n.(type) {
	case *ast.Text:
		buf.Write(t.Segment.Value(source))
		if t.SoftLineBreak() || t.HardLineBreak() {
			buf.WriteString(" ")
		}
	case *ast.String:
		buf.Write(t.Value)
	default:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			collectText(child, source, buf)
		}
	}
}
