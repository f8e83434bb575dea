package domain

import "time"

// AuditEvent is the append-only record of one transition execution. It is the
// system of record for what happened; rows are never updated or deleted.
type AuditEvent struct {
	ID             string
	EventType      string
	ConversationID string
	ActorID        *string
	Channel        string
	Payload        map[string]any
	OccurredAt     time.Time
	CreatedAt      time.Time
}
