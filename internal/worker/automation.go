// Package worker runs the asynchronous automation loop: it consumes
// re-invocation jobs from Redis, drives the automated-response backend, and
// applies the resulting transitions through the orchestrator.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/events"
	"github.com/spec-kit/conversation-orchestrator/internal/fsm"
	"github.com/spec-kit/conversation-orchestrator/internal/orchestrator"
	"github.com/spec-kit/conversation-orchestrator/internal/policy"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
	"github.com/spec-kit/conversation-orchestrator/internal/responder"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// job is the wire form of one queued automation run.
type job struct {
	ConversationID string    `json:"conversation_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
}

// RedisScheduler pushes automation jobs onto a Redis list. It is the one
// downstream effect a committed return_to_agent transition may trigger.
type RedisScheduler struct {
	client *redis.Client
	key    string
}

// NewRedisScheduler builds the scheduler.
func NewRedisScheduler(client *redis.Client, key string) *RedisScheduler {
	return &RedisScheduler{client: client, key: key}
}

// ScheduleReinvoke enqueues one automation run for the conversation.
func (s *RedisScheduler) ScheduleReinvoke(ctx context.Context, conversationID string) error {
	payload, err := json.Marshal(job{ConversationID: conversationID, ScheduledAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, s.key, payload).Err()
}

// Transitioner is the orchestrator surface the worker needs.
type Transitioner interface {
	Apply(ctx context.Context, conversationID string, transition fsm.Transition,
		actor orchestrator.Actor, tc orchestrator.Context) (*domain.Conversation, error)
}

// AutomationWorker consumes scheduled jobs and runs one agent turn per job.
type AutomationWorker struct {
	client     *redis.Client
	key        string
	orch       Transitioner
	backend    responder.Backend
	engine     *policy.Engine
	store      repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

// AutomationWorkerDeps bundles worker collaborators.
type AutomationWorkerDeps struct {
	Client     *redis.Client
	JobKey     string
	Orch       Transitioner
	Backend    responder.Backend
	Engine     *policy.Engine
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewAutomationWorker builds the worker.
func NewAutomationWorker(deps AutomationWorkerDeps) *AutomationWorker {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AutomationWorker{
		client:     deps.Client,
		key:        deps.JobKey,
		orch:       deps.Orch,
		backend:    deps.Backend,
		engine:     deps.Engine,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		clock:      clock,
	}
}

// Run blocks consuming jobs until the context is cancelled.
func (w *AutomationWorker) Run(ctx context.Context) {
	w.logger.Info("automation worker started", zap.String("queue", w.key))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("automation worker stopping")
			return
		default:
		}

		result, err := w.client.BRPop(ctx, 5*time.Second, w.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Warn("job queue read failed", zap.Error(err))
			continue
		}
		if len(result) < 2 {
			continue
		}

		var j job
		if err := json.Unmarshal([]byte(result[1]), &j); err != nil {
			w.logger.Warn("discarding malformed job", zap.Error(err))
			continue
		}
		if err := w.RunOnce(ctx, j.ConversationID); err != nil {
			w.logger.Error("automation run failed",
				zap.String("conversation_id", j.ConversationID), zap.Error(err))
		}
	}
}

// RunOnce executes one agent turn: begin work, call the backend, validate and
// evaluate the payload, and apply the resulting transitions. Connectivity
// failures leave the conversation where it is; schema failures degrade to the
// fallback handoff decision.
func (w *AutomationWorker) RunOnce(ctx context.Context, conversationID string) error {
	actor := orchestrator.Actor{Channel: "automation"}

	conv, err := w.orch.Apply(ctx, conversationID, fsm.AgentBegins, actor, nil)
	if err != nil {
		// A stale job racing a human action is expected; nothing to do.
		if apperrors.IsCode(err, apperrors.CodeIllegalTransition) {
			w.logger.Info("skipping stale automation job",
				zap.String("conversation_id", conversationID))
			return nil
		}
		return err
	}

	handoffs, err := w.store.Repos().Handoffs.ListByConversation(ctx, conversationID)
	if err != nil {
		w.logger.Warn("handoff history unavailable",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	raw, err := w.backend.Invoke(ctx, responder.ConversationContext{
		Conversation: conv,
		Handoffs:     handoffs,
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeConnectivity) {
			// Recoverable: the conversation stays in agent_working and a later
			// job retries the turn.
			w.logger.Warn("backend unreachable; leaving conversation in place",
				zap.String("conversation_id", conversationID), zap.Error(err))
			return nil
		}
		return err
	}

	decision, payload := w.decide(ctx, conversationID, raw, conv)
	if !decision.ShouldHandoff {
		w.publishResponse(ctx, conv, payload)
		return nil
	}
	return w.applyHandoff(ctx, conversationID, actor, decision)
}

// decide validates and evaluates the raw payload. Schema failures map to the
// fallback decision instead of an error.
func (w *AutomationWorker) decide(ctx context.Context, conversationID string, raw []byte,
	conv *domain.Conversation) (*policy.Decision, *policy.Payload) {
	payload, err := policy.ValidateResponse(raw)
	if err != nil {
		w.logger.Warn("automated response failed validation; using fallback",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return policy.FallbackDecision(), nil
	}

	decision, err := w.engine.Evaluate(ctx, payload, conv)
	if err != nil {
		w.logger.Error("decision evaluation failed; using fallback",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return policy.FallbackDecision(), payload
	}
	return decision, payload
}

func (w *AutomationWorker) applyHandoff(ctx context.Context, conversationID string,
	actor orchestrator.Actor, decision *policy.Decision) error {
	tc := orchestrator.Context{
		orchestrator.KeyReasonCode: decision.Reason,
	}
	if decision.Confidence != nil {
		tc[orchestrator.KeyConfidence] = decision.Confidence
	}
	if len(decision.PolicyHits) > 0 {
		tc[orchestrator.KeyPolicyHits] = decision.PolicyHits
	}
	if len(decision.RequiredSkills) > 0 {
		tc[orchestrator.KeyRequiredSkills] = decision.RequiredSkills
	}
	if len(decision.HandoffMetadata) > 0 {
		tc[orchestrator.KeyMetadata] = decision.HandoffMetadata
	}

	if _, err := w.orch.Apply(ctx, conversationID, fsm.HandoffRequired, actor, tc); err != nil {
		return err
	}

	enqueueCtx := orchestrator.Context{}
	if len(decision.RequiredSkills) > 0 {
		enqueueCtx[orchestrator.KeyRequiredSkills] = decision.RequiredSkills
	}
	_, err := w.orch.Apply(ctx, conversationID, fsm.EnqueueForHuman, actor, enqueueCtx)
	return err
}

// publishResponse emits the message event for a turn that stays with the
// automation.
func (w *AutomationWorker) publishResponse(ctx context.Context, conv *domain.Conversation, payload *policy.Payload) {
	if w.dispatcher == nil || payload == nil {
		return
	}
	eventPayload := map[string]any{
		"response": payload.Response,
	}
	if payload.Confidence != nil {
		eventPayload["confidence"] = *payload.Confidence
	}
	err := w.dispatcher.Publish(ctx, events.Event{
		ID:             uuid.NewString(),
		Type:           events.EventMessageCreated,
		ConversationID: conv.ID,
		Actor:          events.Actor{Channel: "automation"},
		Timestamp:      w.clock(),
		Payload:        eventPayload,
	})
	if err != nil {
		w.logger.Warn("message event publication failed",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}
