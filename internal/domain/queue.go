package domain

import "time"

// SLATarget is a pair of due-by durations expressed in configuration units.
type SLATarget struct {
	FirstResponseMinutes int `json:"first_response_minutes"`
	ResolutionHours      int `json:"resolution_hours"`
}

// Queue is a human work-queue. SkillsRequired lists the skill ids its
// operators collectively cover; SLAOverrides (keyed by priority) take
// precedence over the default SLA table.
type Queue struct {
	ID             string
	Name           string
	SkillsRequired []int64
	PriorityPolicy *string
	SLAOverrides   map[Priority]SLATarget
	IsDefault      bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasSkill reports whether the queue covers the given skill id.
func (q *Queue) HasSkill(skill int64) bool {
	for _, s := range q.SkillsRequired {
		if s == skill {
			return true
		}
	}
	return false
}

// QueueItemState enumerates the lightweight queue-item lifecycle.
type QueueItemState string

const (
	QueueItemQueued    QueueItemState = "queued"
	QueueItemHot       QueueItemState = "hot"
	QueueItemCompleted QueueItemState = "completed"
)

// QueueItem is a conversation's placement record in a specific queue. A
// conversation holds at most one queued/hot row per queue at a time.
type QueueItem struct {
	ID             string
	QueueID        string
	ConversationID string
	State          QueueItemState
	EnqueuedAt     time.Time
	DequeuedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Live reports whether the item still occupies the queue.
func (i *QueueItem) Live() bool {
	return i.State == QueueItemQueued || i.State == QueueItemHot
}
