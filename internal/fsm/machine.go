// Package fsm holds the closed conversation transition table. Transition
// names are compile-time constants; each maps to a fixed source set and one
// target state, and Machine is the single authoritative gate on legality.
package fsm

import (
	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// Transition names a legal state change in the conversation lifecycle.
type Transition string

const (
	AgentBegins     Transition = "agent_begins"
	HandoffRequired Transition = "handoff_required"
	EnqueueForHuman Transition = "enqueue_for_human"
	AssignHuman     Transition = "assign_human"
	HumanAccepts    Transition = "human_accepts"
	ReturnToAgent   Transition = "return_to_agent"
	Resolve         Transition = "resolve"
	Archive         Transition = "archive"
)

type rule struct {
	from []domain.ConversationStatus
	to   domain.ConversationStatus
}

var transitions = map[Transition]rule{
	AgentBegins: {
		from: []domain.ConversationStatus{domain.StatusNew, domain.StatusBackToAgent},
		to:   domain.StatusAgentWorking,
	},
	HandoffRequired: {
		from: []domain.ConversationStatus{domain.StatusAgentWorking},
		to:   domain.StatusNeedsHuman,
	},
	EnqueueForHuman: {
		from: []domain.ConversationStatus{domain.StatusNeedsHuman},
		to:   domain.StatusQueued,
	},
	AssignHuman: {
		from: []domain.ConversationStatus{domain.StatusQueued},
		to:   domain.StatusAssigned,
	},
	HumanAccepts: {
		from: []domain.ConversationStatus{domain.StatusAssigned},
		to:   domain.StatusHumanWorking,
	},
	ReturnToAgent: {
		from: []domain.ConversationStatus{domain.StatusHumanWorking},
		to:   domain.StatusBackToAgent,
	},
	Resolve: {
		from: []domain.ConversationStatus{domain.StatusHumanWorking, domain.StatusAgentWorking},
		to:   domain.StatusResolved,
	},
	Archive: {
		from: []domain.ConversationStatus{domain.StatusResolved},
		to:   domain.StatusArchived,
	},
}

// Machine answers legality questions about conversation transitions. It is
// stateless; all methods are pure.
type Machine struct{}

// NewMachine returns the shared transition table.
func NewMachine() *Machine {
	return &Machine{}
}

// Known reports whether the transition name is part of the table.
func (m *Machine) Known(t Transition) bool {
	_, ok := transitions[t]
	return ok
}

// CanApply reports whether the transition is legal from the conversation's
// current status. Unknown transitions are never legal.
func (m *Machine) CanApply(conv *domain.Conversation, t Transition) bool {
	r, ok := transitions[t]
	if !ok || conv == nil {
		return false
	}
	for _, from := range r.from {
		if conv.Status == from {
			return true
		}
	}
	return false
}

// Target returns the destination status for the transition, failing with
// IllegalTransition if the current status is outside the allowed source set.
func (m *Machine) Target(conv *domain.Conversation, t Transition) (domain.ConversationStatus, error) {
	if !m.CanApply(conv, t) {
		details := map[string]any{"transition": string(t)}
		if conv != nil {
			details["current_status"] = string(conv.Status)
			details["conversation_id"] = conv.ID
		}
		return "", apperrors.NewIllegalTransition(string(t), details)
	}
	return transitions[t].to, nil
}

// Transitions lists the declared transition names in stable order.
func Transitions() []Transition {
	return []Transition{
		AgentBegins,
		HandoffRequired,
		EnqueueForHuman,
		AssignHuman,
		HumanAccepts,
		ReturnToAgent,
		Resolve,
		Archive,
	}
}
