// Package responder abstracts the automated-response backend. The orchestration
// core never sees a vendor SDK; it hands a conversation snapshot to a Backend
// and gets raw payload bytes back for schema validation.
package responder

import (
	"context"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// ConversationContext is the slice of conversation state the backend needs to
// produce a turn.
type ConversationContext struct {
	Conversation *domain.Conversation
	// Handoffs lists prior handoff reasons so the backend does not loop on a
	// trigger a human already looked at.
	Handoffs []domain.Handoff
}

// Backend produces one automated-response payload for a conversation. The
// returned bytes are unvalidated; the caller owns schema validation. Transport
// failures surface as CONNECTIVITY domain errors.
type Backend interface {
	Invoke(ctx context.Context, cc ConversationContext) ([]byte, error)
}
