package domain

import "time"

// Operator is the slice of the externally managed user record the core needs
// for audit snapshots. User administration itself lives outside this service.
type Operator struct {
	ID        string
	Name      string
	Email     string
	Roles     []string
	Skills    []int64
	IsActive  bool
	CreatedAt time.Time
}

// OperatorSnapshot is the denormalized view embedded in audit payloads. It is
// captured at write time so audit rows stay self-contained when the operator
// record changes later.
type OperatorSnapshot struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	Skills []int64  `json:"skills"`
}

// Snapshot captures the audit view of the operator.
func (o *Operator) Snapshot() OperatorSnapshot {
	return OperatorSnapshot{
		ID:     o.ID,
		Name:   o.Name,
		Email:  o.Email,
		Roles:  o.Roles,
		Skills: o.Skills,
	}
}

// QueueSnapshot is the denormalized queue view embedded in audit payloads.
type QueueSnapshot struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	SkillsRequired []int64 `json:"skills_required"`
	IsDefault      bool    `json:"is_default"`
}

// Snapshot captures the audit view of the queue.
func (q *Queue) Snapshot() QueueSnapshot {
	return QueueSnapshot{
		ID:             q.ID,
		Name:           q.Name,
		SkillsRequired: q.SkillsRequired,
		IsDefault:      q.IsDefault,
	}
}
