package dto

import (
	"encoding/json"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// EvaluateDecisionRequest submits a raw automated-response payload for
// evaluation, optionally tied to a conversation for priority-aware rules.
type EvaluateDecisionRequest struct {
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// DecisionResponse reports the evaluation outcome.
type DecisionResponse struct {
	ShouldHandoff  bool               `json:"should_handoff"`
	Reason         string             `json:"reason,omitempty"`
	Confidence     *float64           `json:"confidence,omitempty"`
	PolicyHits     []domain.PolicyHit `json:"policy_hits,omitempty"`
	RequiredSkills []int64            `json:"required_skills,omitempty"`
	Fallback       bool               `json:"fallback"`
}

// ResolveQueueRequest asks the router for a destination queue.
type ResolveQueueRequest struct {
	ConversationID   string  `json:"conversation_id,omitempty"`
	RequiredSkills   []int64 `json:"required_skills,omitempty"`
	PreferredQueueID *string `json:"preferred_queue_id,omitempty"`
}

// QueueResponse is the external view of a queue.
type QueueResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	SkillsRequired []int64 `json:"skills_required"`
	IsDefault      bool    `json:"is_default"`
}

// SLAStatusResponse reports both timers for a conversation.
type SLAStatusResponse struct {
	ConversationID string `json:"conversation_id"`
	FirstResponse  string `json:"first_response"`
	Resolution     string `json:"resolution"`
}

// SLASweepResponse reports the outcome of a breach sweep.
type SLASweepResponse struct {
	Flagged int `json:"flagged"`
}
