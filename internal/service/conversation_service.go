package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// ConversationService owns conversation intake and read paths. All lifecycle
// mutations go through the orchestrator, never through this service.
type ConversationService struct {
	store  repository.Store
	logger *zap.Logger
	clock  func() time.Time
}

// ConversationCreateInput captures intake fields.
type ConversationCreateInput struct {
	ExternalKey string
	Channel     string
	Subject     string
	Priority    string
}

// NewConversationService creates the service.
func NewConversationService(store repository.Store, logger *zap.Logger, clock func() time.Time) *ConversationService {
	if clock == nil {
		clock = time.Now
	}
	return &ConversationService{store: store, logger: logger, clock: clock}
}

var validPriorities = map[domain.Priority]bool{
	domain.PriorityLow:      true,
	domain.PriorityStandard: true,
	domain.PriorityHigh:     true,
	domain.PriorityCritical: true,
}

// CreateConversation opens a conversation in the new state.
func (s *ConversationService) CreateConversation(ctx context.Context, input ConversationCreateInput) (*domain.Conversation, error) {
	if strings.TrimSpace(input.Channel) == "" {
		return nil, apperrors.NewValidationError("channel required", nil)
	}
	priority := domain.Priority(strings.ToLower(strings.TrimSpace(input.Priority)))
	if priority == "" {
		priority = domain.PriorityStandard
	}
	if !validPriorities[priority] {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{
			"priority": input.Priority,
		})
	}

	now := s.clock()
	conv := &domain.Conversation{
		ExternalKey:    strings.TrimSpace(input.ExternalKey),
		Channel:        strings.TrimSpace(input.Channel),
		Subject:        strings.TrimSpace(input.Subject),
		Status:         domain.StatusNew,
		Priority:       priority,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Repos().Conversations.Create(ctx, conv); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("channel", conv.Channel),
		zap.String("priority", string(conv.Priority)))
	return conv, nil
}

// GetConversation fetches one conversation.
func (s *ConversationService) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.store.Repos().Conversations.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return conv, nil
}

// ListAudit returns the conversation's audit trail in append order.
func (s *ConversationService) ListAudit(ctx context.Context, conversationID string, limit, offset int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	events, err := s.store.Repos().AuditEvents.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return events, nil
}
