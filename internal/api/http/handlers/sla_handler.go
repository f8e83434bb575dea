package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-orchestrator/internal/api/dto"
	"github.com/spec-kit/conversation-orchestrator/internal/sla"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// SLAHandler exposes SLA reads and the breach sweep.
type SLAHandler struct {
	tracker *sla.Tracker
}

// NewSLAHandler constructs handler.
func NewSLAHandler(tracker *sla.Tracker) *SLAHandler {
	return &SLAHandler{tracker: tracker}
}

// Status GET /conversations/:id/sla.
func (h *SLAHandler) Status(c *fiber.Ctx) error {
	id := c.Params("id")
	check, err := h.tracker.CheckSLAStatus(c.UserContext(), id)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.SLAStatusResponse{
		ConversationID: id,
		FirstResponse:  string(check.FirstResponse),
		Resolution:     string(check.Resolution),
	}})
}

// AtRisk GET /sla/at-risk.
func (h *SLAHandler) AtRisk(c *fiber.Ctx) error {
	conversations, err := h.tracker.GetSLARiskConversations(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		items = append(items, conversationResponse(&conversations[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Sweep POST /sla/sweep. Normally driven by the internal ticker; exposed for
// operational runs.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	flagged, err := h.tracker.UpdateSLABreaches(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.SLASweepResponse{Flagged: flagged}})
}
