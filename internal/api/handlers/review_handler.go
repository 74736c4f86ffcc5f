package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/larrycoder123/supportmind/internal/core"
	"github.com/larrycoder123/supportmind/internal/domain"
	"github.com/larrycoder123/supportmind/internal/review"
	"github.com/larrycoder123/supportmind/pkg/logger"
)

// ReviewHandler applies a human reviewer's decision to a pending learning
// event — the only entry point allowed to flip a drafted article's status.
type ReviewHandler struct {
	service *core.Service
}

func NewReviewHandler(service *core.Service) *ReviewHandler {
	return &ReviewHandler{service: service}
}

func (h *ReviewHandler) HandleReview(c *fiber.Ctx) error {
	var req struct {
		EventID      string `json:"event_id"`
		Approved     bool   `json:"approved"`
		ReviewerRole string `json:"reviewer_role"`
		Reason       string `json:"reason"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("failed to parse review request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.EventID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event_id is required"})
	}

	reviewerRole := domain.ReviewerOps
	if req.ReviewerRole != "" {
		reviewerRole = domain.ReviewerRole(req.ReviewerRole)
	}

	event, err := h.service.Review(c.Context(), review.Decision{
		EventID:      req.EventID,
		Approved:     req.Approved,
		ReviewerRole: reviewerRole,
		Reason:       req.Reason,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyReviewed) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "learning event already reviewed"})
		}
		logger.Error("review decision failed", zap.String("event_id", req.EventID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to apply review decision"})
	}

	return c.JSON(event)
}
