package domain

import "time"

// RuleCriteria is the trigger-specific predicate configuration.
type RuleCriteria struct {
	Threshold *float64 `json:"threshold,omitempty"`
	Flags     []string `json:"flags,omitempty"`
}

// HandoffRule is one configurable decision rule. Rules are evaluated in
// descending priority order; the first match wins.
type HandoffRule struct {
	ID             string
	Name           string
	Priority       int
	Trigger        TriggerType
	Criteria       RuleCriteria
	ReasonCode     string
	RequiredSkills []int64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HandoffPolicyRule is one rule inside a legacy policy.
type HandoffPolicyRule struct {
	ID       string
	Trigger  TriggerType
	Criteria RuleCriteria
	Priority int
}

// HandoffPolicy is a legacy policy consulted only when no configurable rule
// matched. Best match is the highest-priority matching rule across all active
// policies; a policy whose reason code equals the agent's own stated reason is
// treated as maximal priority.
type HandoffPolicy struct {
	ID             string
	Name           string
	ReasonCode     string
	Priority       int
	RequiredSkills []int64
	IsActive       bool
	Rules          []HandoffPolicyRule
	CreatedAt      time.Time
}
