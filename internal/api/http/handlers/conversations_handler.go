package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-orchestrator/internal/api/dto"
	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/fsm"
	"github.com/spec-kit/conversation-orchestrator/internal/orchestrator"
	"github.com/spec-kit/conversation-orchestrator/internal/service"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// ConversationsHandler exposes conversation intake, reads, and lifecycle
// transitions.
type ConversationsHandler struct {
	conversations *service.ConversationService
	orch          *orchestrator.Orchestrator
}

// NewConversationsHandler constructs handler.
func NewConversationsHandler(conversations *service.ConversationService, orch *orchestrator.Orchestrator) *ConversationsHandler {
	return &ConversationsHandler{conversations: conversations, orch: orch}
}

// Create POST /conversations.
func (h *ConversationsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	conv, err := h.conversations.CreateConversation(c.UserContext(), service.ConversationCreateInput{
		ExternalKey: req.ExternalKey,
		Channel:     req.Channel,
		Subject:     req.Subject,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": conversationResponse(conv)})
}

// Get GET /conversations/:id.
func (h *ConversationsHandler) Get(c *fiber.Ctx) error {
	conv, err := h.conversations.GetConversation(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": conversationResponse(conv)})
}

// ApplyTransition POST /conversations/:id/transitions/:name.
func (h *ConversationsHandler) ApplyTransition(c *fiber.Ctx) error {
	var req dto.TransitionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	tc, err := transitionContext(req.Context)
	if err != nil {
		return err
	}
	actor := orchestrator.Actor{OperatorID: req.OperatorID, Channel: req.Channel}

	conv, err := h.orch.Apply(c.UserContext(), c.Params("id"), fsm.Transition(c.Params("name")), actor, tc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": conversationResponse(conv)})
}

// CheckTransition GET /conversations/:id/transitions/:name.
func (h *ConversationsHandler) CheckTransition(c *fiber.Ctx) error {
	name := c.Params("name")
	allowed, err := h.orch.CanApply(c.UserContext(), c.Params("id"), fsm.Transition(name))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TransitionCheckResponse{Transition: name, Allowed: allowed}})
}

// ListAudit GET /conversations/:id/audit.
func (h *ConversationsHandler) ListAudit(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 50)
	offset := parseInt(c.Query("offset"), 0)
	events, err := h.conversations.ListAudit(c.UserContext(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.AuditEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, dto.AuditEventResponse{
			ID:         event.ID,
			EventType:  event.EventType,
			ActorID:    event.ActorID,
			Channel:    event.Channel,
			Payload:    event.Payload,
			OccurredAt: event.OccurredAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// transitionContext converts the JSON context bag into typed transition
// context values. Unknown keys pass through untouched.
func transitionContext(raw map[string]any) (orchestrator.Context, error) {
	tc := orchestrator.Context{}
	for key, value := range raw {
		switch key {
		case orchestrator.KeyOccurredAt:
			str, ok := value.(string)
			if !ok {
				return nil, apperrors.NewValidationError("occurred_at must be an RFC3339 string", nil)
			}
			parsed, err := time.Parse(time.RFC3339, str)
			if err != nil {
				return nil, apperrors.NewValidationError("occurred_at must be an RFC3339 string", nil)
			}
			tc[key] = parsed
		case orchestrator.KeyRequiredSkills:
			skills, err := toSkills(value)
			if err != nil {
				return nil, err
			}
			tc[key] = skills
		case orchestrator.KeyPolicyHits:
			hits, err := toPolicyHits(value)
			if err != nil {
				return nil, err
			}
			tc[key] = hits
		default:
			tc[key] = value
		}
	}
	return tc, nil
}

func toSkills(value any) ([]int64, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, apperrors.NewValidationError("required_skills must be an array of integers", nil)
	}
	skills := make([]int64, 0, len(list))
	for _, entry := range list {
		num, ok := entry.(float64)
		if !ok || num != float64(int64(num)) {
			return nil, apperrors.NewValidationError("required_skills must be an array of integers", nil)
		}
		skills = append(skills, int64(num))
	}
	return skills, nil
}

func toPolicyHits(value any) ([]domain.PolicyHit, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, apperrors.NewValidationError("policy_hits must be an array", nil)
	}
	hits := make([]domain.PolicyHit, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, apperrors.NewValidationError("policy_hits entries must be objects", nil)
		}
		hit := domain.PolicyHit{}
		if ruleID, ok := m["rule_id"].(string); ok {
			hit.RuleID = ruleID
		}
		if trigger, ok := m["trigger"].(string); ok {
			hit.Trigger = domain.TriggerType(trigger)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func conversationResponse(conv *domain.Conversation) dto.ConversationResponse {
	return dto.ConversationResponse{
		ID:                 conv.ID,
		ExternalKey:        conv.ExternalKey,
		Channel:            conv.Channel,
		Subject:            conv.Subject,
		Status:             conv.Status,
		Priority:           conv.Priority,
		FirstResponseDueAt: conv.FirstResponseDueAt,
		ResolutionDueAt:    conv.ResolutionDueAt,
		FirstRespondedAt:   conv.FirstRespondedAt,
		SLABreachedAt:      conv.SLABreachedAt,
		ResolvedAt:         conv.ResolvedAt,
		LastActivityAt:     conv.LastActivityAt,
		CreatedAt:          conv.CreatedAt,
		UpdatedAt:          conv.UpdatedAt,
	}
}
