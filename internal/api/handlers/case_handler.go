package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/core"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// CaseHandler exposes close_case and learn: closing a support case runs the
// self-learning pipeline immediately, learn re-runs it for a case already closed.
type CaseHandler struct {
	service *core.Service
}

func NewCaseHandler(service *core.Service) *CaseHandler {
	return &CaseHandler{service: service}
}

func (h *CaseHandler) HandleCloseCase(c *fiber.Ctx) error {
	var req struct {
		ConversationID string   `json:"conversation_id"`
		Subject        string   `json:"subject"`
		Description    string   `json:"description"`
		Resolution     string   `json:"resolution"`
		RootCause      string   `json:"root_cause"`
		Category       string   `json:"category"`
		Tags           []string `json:"tags"`
		ScriptID       string   `json:"script_id"`
		ClosureSummary string   `json:"closure_summary"`
		Outcome        string   `json:"outcome"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("failed to parse close_case request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.Subject == "" || req.Resolution == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "subject and resolution are required"})
	}

	outcome := domain.OutcomeResolved
	if req.Outcome != "" {
		outcome = domain.RetrievalOutcome(req.Outcome)
	}

	resp, err := h.service.CloseCase(c.Context(), core.CloseCaseRequest{
		ConversationID: req.ConversationID,
		Subject:        req.Subject,
		Description:    req.Description,
		Resolution:     req.Resolution,
		RootCause:      req.RootCause,
		Category:       req.Category,
		Tags:           req.Tags,
		ScriptID:       req.ScriptID,
		ClosureSummary: req.ClosureSummary,
		OutcomeHint:    outcome,
	})
	if err != nil {
		logger.Error("close_case failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to close case"})
	}

	return c.JSON(resp)
}

func (h *CaseHandler) HandleLearn(c *fiber.Ctx) error {
	caseID := c.Params("case_id")
	if caseID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "case_id is required"})
	}

	result, err := h.service.Learn(c.Context(), caseID)
	if err != nil {
		logger.Error("learn failed", zap.String("case_id", caseID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to re-run learning pipeline"})
	}

	return c.JSON(result)
}
