package domain

import "time"

// TriggerType enumerates the conditions that can force a handoff.
type TriggerType string

const (
	TriggerConfidenceBelowThreshold TriggerType = "confidence_below_threshold"
	TriggerPolicyFlagDetected       TriggerType = "policy_flag_detected"
	TriggerToolError                TriggerType = "tool_error"
	TriggerAgentRequestedHandoff    TriggerType = "agent_requested_handoff"
)

// PolicyHit records which configured rule or policy caused a handoff decision.
type PolicyHit struct {
	RuleID  string      `json:"rule_id"`
	Trigger TriggerType `json:"trigger"`
}

// Handoff is one handoff event for a conversation. Rows are upserted keyed on
// (conversation_id, reason_code) and immutable after the conversation leaves
// needs_human.
type Handoff struct {
	ID             string
	ConversationID string
	ReasonCode     string
	Confidence     *float64
	PolicyHits     []PolicyHit
	RequiredSkills []int64
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
