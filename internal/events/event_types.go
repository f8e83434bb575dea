package events

import "time"

// EventType enumerates supported event identifiers. Transition events follow
// the conversation.<transition_name> convention used by the audit trail.
type EventType string

const (
	EventMessageCreated  EventType = "conversation.message_created"
	EventAgentBegins     EventType = "conversation.agent_begins"
	EventHandoffRequired EventType = "conversation.handoff_required"
	EventEnqueueForHuman EventType = "conversation.enqueue_for_human"
	EventAssignHuman     EventType = "conversation.assign_human"
	EventHumanAccepts    EventType = "conversation.human_accepts"
	EventReturnToAgent   EventType = "conversation.return_to_agent"
	EventResolve         EventType = "conversation.resolve"
	EventArchive         EventType = "conversation.archive"
)

// Actor encapsulates actor metadata for an event. A nil OperatorID means the
// automation acted.
type Actor struct {
	OperatorID *string `json:"operator_id,omitempty"`
	Channel    string  `json:"channel,omitempty"`
}

// Event represents a domain event emitted after a committed transition.
type Event struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Actor          Actor          `json:"actor"`
	Timestamp      time.Time      `json:"timestamp"`
	Payload        map[string]any `json:"payload"`
}

// TransitionEventType maps a transition name to its event identifier.
func TransitionEventType(transition string) EventType {
	return EventType("conversation." + transition)
}

// ExternallyVisible lists the event types forwarded to webhook subscribers.
func ExternallyVisible() []EventType {
	return []EventType{
		EventMessageCreated,
		EventHandoffRequired,
		EventAssignHuman,
		EventResolve,
	}
}
