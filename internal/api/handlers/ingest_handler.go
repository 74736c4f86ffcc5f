package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/ingestion"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// IngestHandler seeds the corpus from scraped knowledge-base HTML.
type IngestHandler struct {
	ingester *ingestion.Ingester
}

func NewIngestHandler(ingester *ingestion.Ingester) *IngestHandler {
	return &IngestHandler{ingester: ingester}
}

func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	var req struct {
		URL     string `json:"url"`
		Content string `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("failed to parse ingest request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.URL == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url and content are required"})
	}

	article, err := h.ingester.IngestHTML(c.Context(), req.URL, req.Content)
	if err != nil {
		logger.Error("ingest failed", zap.String("url", req.URL), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to ingest content"})
	}

	return c.Status(fiber.StatusCreated).JSON(article)
}
