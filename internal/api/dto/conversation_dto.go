package dto

import (
	"time"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// CreateConversationRequest opens a new conversation.
type CreateConversationRequest struct {
	ExternalKey string `json:"external_key"`
	Channel     string `json:"channel"`
	Subject     string `json:"subject"`
	Priority    string `json:"priority"`
}

// TransitionRequest carries the actor and the transition context bag.
type TransitionRequest struct {
	OperatorID *string        `json:"operator_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// ConversationResponse is the external view of a conversation.
type ConversationResponse struct {
	ID                 string                    `json:"id"`
	ExternalKey        string                    `json:"external_key"`
	Channel            string                    `json:"channel"`
	Subject            string                    `json:"subject"`
	Status             domain.ConversationStatus `json:"status"`
	Priority           domain.Priority           `json:"priority"`
	FirstResponseDueAt *time.Time                `json:"first_response_due_at,omitempty"`
	ResolutionDueAt    *time.Time                `json:"resolution_due_at,omitempty"`
	FirstRespondedAt   *time.Time                `json:"first_responded_at,omitempty"`
	SLABreachedAt      *time.Time                `json:"sla_breached_at,omitempty"`
	ResolvedAt         *time.Time                `json:"resolved_at,omitempty"`
	LastActivityAt     time.Time                 `json:"last_activity_at"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// TransitionCheckResponse answers a legality probe.
type TransitionCheckResponse struct {
	Transition string `json:"transition"`
	Allowed    bool   `json:"allowed"`
}

// AuditEventResponse is one audit trail entry.
type AuditEventResponse struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	ActorID    *string        `json:"actor_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}
