package domain

import "time"

// ConversationStatus enumerates lifecycle states for conversations.
type ConversationStatus string

const (
	StatusNew          ConversationStatus = "new"
	StatusAgentWorking ConversationStatus = "agent_working"
	StatusNeedsHuman   ConversationStatus = "needs_human"
	StatusQueued       ConversationStatus = "queued"
	StatusAssigned     ConversationStatus = "assigned"
	StatusHumanWorking ConversationStatus = "human_working"
	StatusBackToAgent  ConversationStatus = "back_to_agent"
	StatusResolved     ConversationStatus = "resolved"
	StatusArchived     ConversationStatus = "archived"
)

// Priority enumerates SLA urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityStandard Priority = "standard"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Conversation is the aggregate routed between automation and human operators.
// Status and the SLA timestamps are written only by the orchestrator during a
// transition; callers never mutate a conversation directly.
type Conversation struct {
	ID                 string
	ExternalKey        string
	Channel            string
	Subject            string
	Status             ConversationStatus
	Priority           Priority
	FirstResponseDueAt *time.Time
	ResolutionDueAt    *time.Time
	FirstRespondedAt   *time.Time
	SLABreachedAt      *time.Time
	ResolvedAt         *time.Time
	LastActivityAt     time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SLATimersSet reports whether due timestamps have already been computed.
func (c *Conversation) SLATimersSet() bool {
	return c.FirstResponseDueAt != nil || c.ResolutionDueAt != nil
}
