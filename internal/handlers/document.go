package handlers

import (
	"errors"
	"io"
	"log"

	"github.com/gofiber/fiber/v2"

	"streetlight/internal/document"
	"streetlight/internal/models"
)

// DocumentHandler exposes the ingestion pipeline.
type DocumentHandler struct {
	service *document.Service
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(service *document.Service) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Ingest accepts a document as multipart form data (field "file") or as a
// JSON body with base64 data, and runs it through extraction and chunking.
// POST /api/ingest
func (h *DocumentHandler) Ingest(c *fiber.Ctx) error {
	filename, mimeType, data, err := readUpload(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if filename == "" || len(data) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "filename and data are required",
		})
	}

	doc, err := h.service.Ingest(c.Context(), filename, mimeType, data)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrPayloadTooLarge):
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, document.ErrUnsupportedMediaType):
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			log.Printf("❌ Failed to ingest %s: %v", filename, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to ingest document",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(models.IngestResponse{
		DocumentID: doc.ID,
		Category:   doc.Category,
		WordCount:  doc.WordCount,
		ChunkCount: doc.ChunkCount,
	})
}

// Get returns document metadata.
// GET /api/documents/:id
func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	doc, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}
	return c.JSON(doc)
}

// Delete removes a document and its chunks.
// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		log.Printf("❌ Failed to delete document %s: %v", c.Params("id"), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// readUpload pulls the file out of a multipart form when one is present,
// otherwise falls back to the JSON body contract.
func readUpload(c *fiber.Ctx) (filename, mimeType string, data []byte, err error) {
	if fileHeader, formErr := c.FormFile("file"); formErr == nil {
		f, openErr := fileHeader.Open()
		if openErr != nil {
			return "", "", nil, openErr
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		if err != nil {
			return "", "", nil, err
		}
		return fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data, nil
	}

	var req models.IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return "", "", nil, err
	}
	return req.Filename, req.MimeType, req.Data, nil
}
