package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/conversation-orchestrator/internal/api/dto"
	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/routing"
	"github.com/spec-kit/conversation-orchestrator/internal/service"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// RoutingHandler exposes queue resolution and catalog cache control.
type RoutingHandler struct {
	router        *routing.Router
	catalog       routing.Catalog
	conversations *service.ConversationService
}

// NewRoutingHandler constructs handler.
func NewRoutingHandler(router *routing.Router, catalog routing.Catalog, conversations *service.ConversationService) *RoutingHandler {
	return &RoutingHandler{router: router, catalog: catalog, conversations: conversations}
}

// Resolve POST /routing/resolve.
func (h *RoutingHandler) Resolve(c *fiber.Ctx) error {
	var req dto.ResolveQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	var conv *domain.Conversation
	if req.ConversationID != "" {
		loaded, err := h.conversations.GetConversation(c.UserContext(), req.ConversationID)
		if err != nil {
			return err
		}
		conv = loaded
	}

	queue, err := h.router.ResolveQueue(c.UserContext(), req.RequiredSkills, conv, req.PreferredQueueID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if queue == nil {
		return apperrors.NewNotFound("queue", map[string]any{"reason": "catalog empty"})
	}
	return c.JSON(fiber.Map{"data": dto.QueueResponse{
		ID:             queue.ID,
		Name:           queue.Name,
		SkillsRequired: queue.SkillsRequired,
		IsDefault:      queue.IsDefault,
	}})
}

// InvalidateCatalog POST /queues/cache/invalidate.
func (h *RoutingHandler) InvalidateCatalog(c *fiber.Ctx) error {
	if err := h.catalog.Invalidate(c.UserContext()); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"invalidated": true}})
}
