package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-orchestrator/internal/api/dto"
	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/policy"
	"github.com/spec-kit/conversation-orchestrator/internal/service"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// DecisionsHandler exposes handoff-decision evaluation for callers that hold a
// raw automated-response payload.
type DecisionsHandler struct {
	engine        *policy.Engine
	conversations *service.ConversationService
}

// NewDecisionsHandler constructs handler.
func NewDecisionsHandler(engine *policy.Engine, conversations *service.ConversationService) *DecisionsHandler {
	return &DecisionsHandler{engine: engine, conversations: conversations}
}

// Evaluate POST /decisions/evaluate. A payload that fails schema validation
// reports the fallback outcome rather than an error; that mirrors what the
// automation loop does with the same input.
func (h *DecisionsHandler) Evaluate(c *fiber.Ctx) error {
	var req dto.EvaluateDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Payload) == 0 {
		return apperrors.NewValidationError("payload required", nil)
	}

	var conv *domain.Conversation
	if req.ConversationID != "" {
		loaded, err := h.conversations.GetConversation(c.UserContext(), req.ConversationID)
		if err != nil {
			return err
		}
		conv = loaded
	}

	payload, err := policy.ValidateResponse(req.Payload)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeSchemaValidation) {
			return c.JSON(fiber.Map{"data": decisionResponse(policy.FallbackDecision(), true)})
		}
		return err
	}

	decision, err := h.engine.Evaluate(c.UserContext(), payload, conv)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": decisionResponse(decision, false)})
}

func decisionResponse(decision *policy.Decision, fallback bool) dto.DecisionResponse {
	return dto.DecisionResponse{
		ShouldHandoff:  decision.ShouldHandoff,
		Reason:         decision.Reason,
		Confidence:     decision.Confidence,
		PolicyHits:     decision.PolicyHits,
		RequiredSkills: decision.RequiredSkills,
		Fallback:       fallback,
	}
}
