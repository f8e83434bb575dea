package domain

import "time"

// AssignmentStatus enumerates the human-claim lifecycle.
type AssignmentStatus string

const (
	AssignmentAssigned     AssignmentStatus = "assigned"
	AssignmentHumanWorking AssignmentStatus = "human_working"
	AssignmentReleased     AssignmentStatus = "released"
	AssignmentResolved     AssignmentStatus = "resolved"
)

// Assignment records one human claim on a conversation. A conversation may
// accumulate many rows over its life; the latest for a user is resolved by
// ordering on AssignedAt descending.
type Assignment struct {
	ID             string
	ConversationID string
	QueueID        *string
	OperatorID     string
	Status         AssignmentStatus
	AssignedAt     time.Time
	AcceptedAt     *time.Time
	ReleasedAt     *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
