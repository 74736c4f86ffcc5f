package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/core"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

type SuggestHandler struct {
	service *core.Service
}

func NewSuggestHandler(service *core.Service) *SuggestHandler {
	return &SuggestHandler{service: service}
}

func (h *SuggestHandler) HandleSuggest(c *fiber.Ctx) error {
	var req struct {
		ConversationID string   `json:"conversation_id"`
		Query          string   `json:"query"`
		Category       string   `json:"category"`
		SourceKinds    []string `json:"source_kinds"`
		TopK           *int     `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("failed to parse suggest request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
	}

	sourceKinds := make([]domain.SourceKind, len(req.SourceKinds))
	for i, k := range req.SourceKinds {
		sourceKinds[i] = domain.SourceKind(k)
	}

	resp, err := h.service.Suggest(c.Context(), core.SuggestRequest{
		ConversationID: req.ConversationID,
		Query:          req.Query,
		Category:       req.Category,
		SourceKinds:    sourceKinds,
		TopK:           req.TopK,
	})
	if err != nil {
		logger.Error("suggest failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process suggestion"})
	}

	return c.JSON(resp)
}
