// Package orchestrator executes conversation transitions end-to-end: state
// gate, transition-specific mutation, SLA timers, audit record, and at most
// one downstream effect, all inside one transaction per conversation.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/events"
	"github.com/spec-kit/conversation-orchestrator/internal/fsm"
	"github.com/spec-kit/conversation-orchestrator/internal/observability"
	"github.com/spec-kit/conversation-orchestrator/internal/policy"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
	"github.com/spec-kit/conversation-orchestrator/internal/routing"
	"github.com/spec-kit/conversation-orchestrator/internal/sla"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// Actor identifies who asked for a transition. A nil OperatorID means
// automation (or a batch process) acted. Explicit by design: there is no
// ambient request context to fish the actor out of.
type Actor struct {
	OperatorID *string
	Channel    string
}

// AutomationScheduler queues an asynchronous automation re-invocation. The
// scheduled run re-enters through Apply and therefore re-acquires the
// per-conversation lock; a stale run safely loses the race.
type AutomationScheduler interface {
	ScheduleReinvoke(ctx context.Context, conversationID string) error
}

// Dependencies bundles orchestrator collaborators.
type Dependencies struct {
	Store      repository.Store
	Machine    *fsm.Machine
	Router     *routing.Router
	Dispatcher events.Dispatcher
	Jobs       AutomationScheduler
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
	// SLATargets is the default target table; nil means the built-in one.
	SLATargets sla.Table
}

// Orchestrator owns all writes to conversation status, handoffs, queue items,
// and assignments during a transition.
type Orchestrator struct {
	store      repository.Store
	machine    *fsm.Machine
	router     *routing.Router
	dispatcher events.Dispatcher
	jobs       AutomationScheduler
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      func() time.Time
	slaTargets sla.Table
	handlers   map[fsm.Transition]transitionHandler
}

// handlerResult carries a handler's audit fields, the ids to enrich with
// snapshots, and whether the one allowed downstream effect fires.
type handlerResult struct {
	audit      map[string]any
	queueID    *string
	assigneeID *string
	reinvoke   bool
}

type transitionHandler func(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error)

// New constructs the orchestrator and wires each declared transition to its
// handler.
func New(deps Dependencies) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	o := &Orchestrator{
		store:      deps.Store,
		machine:    deps.Machine,
		router:     deps.Router,
		dispatcher: deps.Dispatcher,
		jobs:       deps.Jobs,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		clock:      clock,
		slaTargets: deps.SLATargets,
	}
	o.handlers = map[fsm.Transition]transitionHandler{
		fsm.AgentBegins:     o.handleAgentBegins,
		fsm.HandoffRequired: o.handleHandoffRequired,
		fsm.EnqueueForHuman: o.handleEnqueueForHuman,
		fsm.AssignHuman:     o.handleAssignHuman,
		fsm.HumanAccepts:    o.handleHumanAccepts,
		fsm.ReturnToAgent:   o.handleReturnToAgent,
		fsm.Resolve:         o.handleResolve,
		fsm.Archive:         o.handleArchive,
	}
	return o
}

// CanApply reports whether the transition is legal from the conversation's
// current state. Pure: no side effects.
func (o *Orchestrator) CanApply(ctx context.Context, conversationID string, transition fsm.Transition) (bool, error) {
	conv, err := o.store.Repos().Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	return o.machine.CanApply(conv, transition), nil
}

// Apply executes a transition atomically: precondition checks, entity
// mutations, conversation status update, and one audit record are a single
// transactional unit. The follow-up effect and the notification event fire
// only after commit.
func (o *Orchestrator) Apply(ctx context.Context, conversationID string, transition fsm.Transition,
	actor Actor, tc Context) (*domain.Conversation, error) {
	if tc == nil {
		tc = Context{}
	}
	handler, ok := o.handlers[transition]
	if !ok {
		return nil, apperrors.NewIllegalTransition(string(transition), map[string]any{
			"conversation_id": conversationID,
		})
	}

	// Queue resolution reads the shared catalog cache and must stay outside
	// the transaction boundary.
	if transition == fsm.EnqueueForHuman {
		if err := o.resolveDestinationQueue(ctx, conversationID, tc); err != nil {
			return nil, err
		}
	}

	var result *handlerResult
	conv, err := o.store.InTransition(ctx, conversationID, func(ctx context.Context, repos repository.RepoSet, conv *domain.Conversation) error {
		target, err := o.machine.Target(conv, transition)
		if err != nil {
			return err
		}
		now := o.resolveOccurredAt(tc)

		result, err = handler(ctx, repos, conv, tc, now)
		if err != nil {
			return err
		}

		from := conv.Status
		conv.Status = target
		conv.LastActivityAt = now
		conv.UpdatedAt = now
		if err := repos.Conversations.Update(ctx, conv); err != nil {
			return err
		}

		payload := map[string]any{
			"from": from,
			"to":   target,
		}
		for key, value := range result.audit {
			payload[key] = value
		}
		if err := enrichAuditPayload(ctx, repos, payload, actor.OperatorID, result.queueID, result.assigneeID); err != nil {
			return err
		}
		result.audit = payload

		return repos.AuditEvents.Append(ctx, &domain.AuditEvent{
			EventType:      "conversation." + string(transition),
			ConversationID: conv.ID,
			ActorID:        actor.OperatorID,
			Channel:        actorChannel(actor, conv),
			Payload:        payload,
			OccurredAt:     now,
		})
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordTransitionError(string(transition), apperrors.ToDomainError(err).Code)
		}
		return nil, apperrors.MapError(err)
	}

	o.afterCommit(ctx, conv, transition, actor, result)
	return conv, nil
}

// afterCommit runs the non-transactional tail: metrics, the notification
// event, and the single follow-up effect.
func (o *Orchestrator) afterCommit(ctx context.Context, conv *domain.Conversation,
	transition fsm.Transition, actor Actor, result *handlerResult) {
	if o.metrics != nil {
		o.metrics.RecordTransition(string(transition))
	}

	if o.dispatcher != nil {
		event := events.Event{
			ID:             uuid.NewString(),
			Type:           events.TransitionEventType(string(transition)),
			ConversationID: conv.ID,
			Actor:          events.Actor{OperatorID: actor.OperatorID, Channel: actor.Channel},
			Timestamp:      conv.UpdatedAt,
			Payload:        result.audit,
		}
		if err := o.dispatcher.Publish(ctx, event); err != nil {
			o.logger.Warn("event publication failed",
				zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}

	if result.reinvoke && o.jobs != nil {
		if err := o.jobs.ScheduleReinvoke(ctx, conv.ID); err != nil {
			o.logger.Error("automation re-invocation scheduling failed",
				zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}
}

// resolveDestinationQueue fills queue_id for enqueue_for_human when the
// caller did not pin one: required skills come from the context or the latest
// handoff, then the router picks the destination.
func (o *Orchestrator) resolveDestinationQueue(ctx context.Context, conversationID string, tc Context) error {
	if _, ok := tc.StringOptional(KeyQueueID); ok {
		return nil
	}
	repos := o.store.Repos()

	conv, err := repos.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return apperrors.MapError(err)
	}

	skills := tc.SkillsOptional(KeyRequiredSkills)
	if skills == nil {
		handoff, err := repos.Handoffs.Latest(ctx, conversationID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return apperrors.MapError(err)
		}
		if handoff != nil {
			skills = handoff.RequiredSkills
		}
	}

	queue, err := o.router.ResolveQueue(ctx, skills, conv, nil)
	if err != nil {
		return apperrors.MapError(err)
	}
	if queue == nil {
		return apperrors.NewConflict("no queue available for conversation", map[string]any{
			"conversation_id": conversationID,
		})
	}
	tc[KeyQueueID] = queue.ID
	if skills != nil {
		tc[KeyRequiredSkills] = skills
	}
	return nil
}

func (o *Orchestrator) resolveOccurredAt(tc Context) time.Time {
	if occurredAt, ok := tc.TimeOptional(KeyOccurredAt); ok {
		return occurredAt
	}
	return o.clock()
}

func actorChannel(actor Actor, conv *domain.Conversation) string {
	if actor.Channel != "" {
		return actor.Channel
	}
	return conv.Channel
}

func (o *Orchestrator) handleAgentBegins(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error) {
	timersSet := sla.EnsureTimers(conv, nil, o.slaTargets, now)
	audit := map[string]any{"sla_timers_computed": timersSet}
	if timersSet {
		audit["first_response_due_at"] = conv.FirstResponseDueAt
		audit["resolution_due_at"] = conv.ResolutionDueAt
	}
	if messageID, ok := tc.StringOptional(KeyMessageID); ok {
		audit["message_id"] = messageID
	}
	return &handlerResult{audit: audit}, nil
}

func (o *Orchestrator) handleHandoffRequired(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error) {
	rawReason, err := tc.String(KeyReasonCode)
	if err != nil {
		return nil, err
	}
	reason := policy.NormalizeReason(rawReason)
	if reason == "" {
		return nil, apperrors.NewMissingContext(KeyReasonCode)
	}

	handoff := &domain.Handoff{
		ConversationID: conv.ID,
		ReasonCode:     reason,
		Confidence:     tc.FloatOptional(KeyConfidence),
		PolicyHits:     tc.HitsOptional(KeyPolicyHits),
		RequiredSkills: tc.SkillsOptional(KeyRequiredSkills),
		Metadata:       tc.MapOptional(KeyMetadata),
	}
	if err := repos.Handoffs.Upsert(ctx, handoff); err != nil {
		return nil, err
	}

	audit := map[string]any{
		"handoff_id":  handoff.ID,
		"reason_code": handoff.ReasonCode,
	}
	if handoff.Confidence != nil {
		audit["confidence"] = *handoff.Confidence
	}
	if len(handoff.RequiredSkills) > 0 {
		audit["required_skills"] = handoff.RequiredSkills
	}
	if len(handoff.PolicyHits) > 0 {
		audit["policy_hits"] = handoff.PolicyHits
	}
	return &handlerResult{audit: audit}, nil
}

func (o *Orchestrator) handleEnqueueForHuman(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error) {
	queueID, err := tc.String(KeyQueueID)
	if err != nil {
		return nil, err
	}
	item, err := repos.QueueItems.UpsertQueued(ctx, queueID, conv.ID, now)
	if err != nil {
		return nil, err
	}
	audit := map[string]any{
		"queue_id":      queueID,
		"queue_item_id": item.ID,
		"enqueued_at":   item.EnqueuedAt,
	}
	if skills := tc.SkillsOptional(KeyRequiredSkills); len(skills) > 0 {
		audit["required_skills"] = skills
	}
	return &handlerResult{audit: audit, queueID: &queueID}, nil
}

func (o *Orchestrator) handleAssignHuman(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error) {
	queueID, err := tc.String(KeyQueueID)
	if err != nil {
		return nil, err
	}
	operatorID, err := tc.String(KeyOperatorID)
	if err != nil {
		return nil, err
	}

	item, err := repos.QueueItems.FindByState(ctx, queueID, conv.ID, domain.QueueItemQueued)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("queue item", map[string]any{
				"queue_id":        queueID,
				"conversation_id": conv.ID,
			})
		}
		return nil, err
	}
	if err := repos.QueueItems.MarkHot(ctx, item.ID, now); err != nil {
		return nil, err
	}

	assignment := &domain.Assignment{
		ConversationID: conv.ID,
		QueueID:        &queueID,
		OperatorID:     operatorID,
		Status:         domain.AssignmentAssigned,
		AssignedAt:     now,
	}
	if err := repos.Assignments.Create(ctx, assignment); err != nil {
		return nil, err
	}

	return &handlerResult{
		audit: map[string]any{
			"queue_id":      queueID,
			"queue_item_id": item.ID,
			"assignment_id": assignment.ID,
			"operator_id":   operatorID,
		},
		queueID:    &queueID,
		assigneeID: &operatorID,
	}, nil
}

func (o *Orchestrator) handleHumanAccepts(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error) {
	operatorID, err := tc.String(KeyOperatorID)
	if err != nil {
		return nil, err
	}
	assignment, err := latestAssignment(ctx, repos, conv.ID, operatorID)
	if err != nil {
		return nil, err
	}

	assignment.Status = domain.AssignmentHumanWorking
	assignment.AcceptedAt = &now
	if err := repos.Assignments.Update(ctx, assignment); err != nil {
		return nil, err
	}

	firstResponse := sla.MarkFirstResponse(conv, now)

	return &handlerResult{
		audit: map[string]any{
			"assignment_id":         assignment.ID,
			"operator_id":           operatorID,
			"first_response_marked": firstResponse,
		},
		queueID:    assignment.QueueID,
		assigneeID: &operatorID,
	}, nil
}

func (o *Orchestrator) handleReturnToAgent(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error) {
	operatorID, err := tc.String(KeyOperatorID)
	if err != nil {
		return nil, err
	}
	assignment, err := latestAssignment(ctx, repos, conv.ID, operatorID)
	if err != nil {
		return nil, err
	}

	assignment.Status = domain.AssignmentReleased
	assignment.ReleasedAt = &now
	if err := repos.Assignments.Update(ctx, assignment); err != nil {
		return nil, err
	}

	return &handlerResult{
		audit: map[string]any{
			"assignment_id": assignment.ID,
			"operator_id":   operatorID,
		},
		assigneeID: &operatorID,
		reinvoke:   true,
	}, nil
}

func (o *Orchestrator) handleResolve(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error) {
	audit := map[string]any{}

	assignment, err := repos.Assignments.LatestForConversation(ctx, conv.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var assigneeID *string
	if assignment != nil {
		assignment.Status = domain.AssignmentResolved
		assignment.ResolvedAt = &now
		if err := repos.Assignments.Update(ctx, assignment); err != nil {
			return nil, err
		}
		audit["assignment_id"] = assignment.ID
		assigneeID = &assignment.OperatorID
	}

	completed, err := repos.QueueItems.CompleteAllLive(ctx, conv.ID, now)
	if err != nil {
		return nil, err
	}
	audit["completed_queue_items"] = completed

	conv.ResolvedAt = &now

	return &handlerResult{audit: audit, assigneeID: assigneeID}, nil
}

func (o *Orchestrator) handleArchive(ctx context.Context, repos repository.RepoSet,
	conv *domain.Conversation, tc Context, now time.Time) (*handlerResult, error) {
	return &handlerResult{audit: map[string]any{}}, nil
}

func latestAssignment(ctx context.Context, repos repository.RepoSet, conversationID, operatorID string) (*domain.Assignment, error) {
	assignment, err := repos.Assignments.LatestForOperator(ctx, conversationID, operatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewAssignmentNotFound(conversationID, operatorID)
		}
		return nil, err
	}
	return assignment, nil
}
