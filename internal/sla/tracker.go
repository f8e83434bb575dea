// Package sla computes and tracks due timestamps and breach status per
// conversation.
package sla

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/config"
	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
)

// Status is the state of one SLA timer.
type Status string

const (
	StatusPending  Status = "pending"
	StatusMet      Status = "met"
	StatusBreached Status = "breached"
)

// Check reports both timers for a conversation.
type Check struct {
	FirstResponse Status `json:"first_response"`
	Resolution    Status `json:"resolution"`
}

// Targets is the resolved pair of due-by durations.
type Targets struct {
	FirstResponse time.Duration
	Resolution    time.Duration
}

// Table is a default target set keyed by priority. Critical uses the high
// row unless a queue override exists.
type Table map[domain.Priority]domain.SLATarget

var defaultTargets = Table{
	domain.PriorityHigh:     {FirstResponseMinutes: 15, ResolutionHours: 2},
	domain.PriorityStandard: {FirstResponseMinutes: 60, ResolutionHours: 24},
	domain.PriorityLow:      {FirstResponseMinutes: 240, ResolutionHours: 72},
}

// TableFromConfig builds the default target table from configuration. Values
// left at or below zero keep the built-in row.
func TableFromConfig(cfg config.SLAConfig) Table {
	table := Table{}
	for priority, target := range defaultTargets {
		table[priority] = target
	}
	apply := func(priority domain.Priority, minutes, hours int) {
		row := table[priority]
		if minutes > 0 {
			row.FirstResponseMinutes = minutes
		}
		if hours > 0 {
			row.ResolutionHours = hours
		}
		table[priority] = row
	}
	apply(domain.PriorityHigh, cfg.HighFirstResponseMinutes, cfg.HighResolutionHours)
	apply(domain.PriorityStandard, cfg.StandardFirstResponseMinutes, cfg.StandardResolutionHours)
	apply(domain.PriorityLow, cfg.LowFirstResponseMinutes, cfg.LowResolutionHours)
	return table
}

// TargetsFor resolves SLA targets for a priority: queue-specific overrides
// first, then the given default table. A nil table means the built-in one.
func TargetsFor(priority domain.Priority, queue *domain.Queue, table Table) Targets {
	if queue != nil {
		if target, ok := queue.SLAOverrides[priority]; ok {
			return toTargets(target)
		}
	}
	if table == nil {
		table = defaultTargets
	}
	effective := priority
	if effective == domain.PriorityCritical {
		effective = domain.PriorityHigh
	}
	target, ok := table[effective]
	if !ok {
		target = table[domain.PriorityStandard]
	}
	return toTargets(target)
}

func toTargets(t domain.SLATarget) Targets {
	return Targets{
		FirstResponse: time.Duration(t.FirstResponseMinutes) * time.Minute,
		Resolution:    time.Duration(t.ResolutionHours) * time.Hour,
	}
}

// EnsureTimers computes and sets due timestamps if none are set yet. Returns
// whether timers were written; a later call is a no-op.
func EnsureTimers(conv *domain.Conversation, queue *domain.Queue, table Table, now time.Time) bool {
	if conv.SLATimersSet() {
		return false
	}
	targets := TargetsFor(conv.Priority, queue, table)
	firstResponse := now.Add(targets.FirstResponse)
	resolution := now.Add(targets.Resolution)
	conv.FirstResponseDueAt = &firstResponse
	conv.ResolutionDueAt = &resolution
	return true
}

// MarkFirstResponse sets first_responded_at exactly once; calling it again
// leaves the original timestamp unchanged.
func MarkFirstResponse(conv *domain.Conversation, now time.Time) bool {
	if conv.FirstRespondedAt != nil {
		return false
	}
	conv.FirstRespondedAt = &now
	return true
}

// CheckStatus is a pure function of current time vs. due times and whether
// the corresponding event already occurred.
func CheckStatus(conv *domain.Conversation, now time.Time) Check {
	check := Check{FirstResponse: StatusPending, Resolution: StatusPending}

	if conv.FirstRespondedAt != nil {
		if conv.FirstResponseDueAt == nil || !conv.FirstRespondedAt.After(*conv.FirstResponseDueAt) {
			check.FirstResponse = StatusMet
		} else {
			check.FirstResponse = StatusBreached
		}
	} else if conv.FirstResponseDueAt != nil && now.After(*conv.FirstResponseDueAt) {
		check.FirstResponse = StatusBreached
	}

	if conv.ResolvedAt != nil {
		if conv.ResolutionDueAt == nil || !conv.ResolvedAt.After(*conv.ResolutionDueAt) {
			check.Resolution = StatusMet
		} else {
			check.Resolution = StatusBreached
		}
	} else if conv.ResolutionDueAt != nil && now.After(*conv.ResolutionDueAt) {
		check.Resolution = StatusBreached
	}

	return check
}

// Tracker runs the batch SLA operations that live outside the hot transition
// path.
type Tracker struct {
	store      repository.Store
	clock      func() time.Time
	riskWindow time.Duration
	logger     *zap.Logger
}

// NewTracker constructs the tracker.
func NewTracker(store repository.Store, clock func() time.Time, riskWindow time.Duration, logger *zap.Logger) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	if riskWindow <= 0 {
		riskWindow = 15 * time.Minute
	}
	return &Tracker{store: store, clock: clock, riskWindow: riskWindow, logger: logger}
}

// CheckSLAStatus reports both timers for a conversation at the current time.
func (t *Tracker) CheckSLAStatus(ctx context.Context, conversationID string) (*Check, error) {
	conv, err := t.store.Repos().Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	check := CheckStatus(conv, t.clock())
	return &check, nil
}

// GetSLARiskConversations lists conversations whose due timestamps fall
// within the risk window and are not yet met or breached.
func (t *Tracker) GetSLARiskConversations(ctx context.Context) ([]domain.Conversation, error) {
	return t.store.Repos().Conversations.ListAtRisk(ctx, t.clock(), t.riskWindow, 0)
}

// UpdateSLABreaches flags conversations whose due time has passed, persisting
// sla_breached_at once per conversation. The sweep is idempotent and takes
// the same per-conversation lock as transitions, so it never races a claim.
func (t *Tracker) UpdateSLABreaches(ctx context.Context) (int, error) {
	now := t.clock()
	candidates, err := t.store.Repos().Conversations.ListBreachCandidates(ctx, now, 0)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, candidate := range candidates {
		_, err := t.store.InTransition(ctx, candidate.ID, func(ctx context.Context, repos repository.RepoSet, conv *domain.Conversation) error {
			// Re-check under the lock; a racing transition may have satisfied
			// the timer or another sweep may have flagged it already.
			if conv.SLABreachedAt != nil {
				return nil
			}
			check := CheckStatus(conv, now)
			if check.FirstResponse != StatusBreached && check.Resolution != StatusBreached {
				return nil
			}
			breachedAt := now
			conv.SLABreachedAt = &breachedAt
			conv.UpdatedAt = now
			if err := repos.Conversations.Update(ctx, conv); err != nil {
				return err
			}
			flagged++
			return nil
		})
		if err != nil {
			t.logger.Error("sla breach sweep failed for conversation",
				zap.String("conversation_id", candidate.ID), zap.Error(err))
			continue
		}
	}
	return flagged, nil
}
