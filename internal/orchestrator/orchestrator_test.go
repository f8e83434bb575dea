package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/config"
	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/events"
	"github.com/spec-kit/conversation-orchestrator/internal/fsm"
	"github.com/spec-kit/conversation-orchestrator/internal/observability"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
	"github.com/spec-kit/conversation-orchestrator/internal/routing"
	"github.com/spec-kit/conversation-orchestrator/internal/sla"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// ---- in-memory store ----

type memData struct {
	conversations map[string]domain.Conversation
	handoffs      []domain.Handoff
	queueItems    []domain.QueueItem
	assignments   []domain.Assignment
	audits        []domain.AuditEvent
	queues        map[string]domain.Queue
	operators     map[string]domain.Operator
	seq           int
}

func newMemData() *memData {
	return &memData{
		conversations: map[string]domain.Conversation{},
		queues:        map[string]domain.Queue{},
		operators:     map[string]domain.Operator{},
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		conversations: make(map[string]domain.Conversation, len(d.conversations)),
		handoffs:      append([]domain.Handoff(nil), d.handoffs...),
		queueItems:    append([]domain.QueueItem(nil), d.queueItems...),
		assignments:   append([]domain.Assignment(nil), d.assignments...),
		audits:        append([]domain.AuditEvent(nil), d.audits...),
		queues:        d.queues,
		operators:     d.operators,
		seq:           d.seq,
	}
	for id, conv := range d.conversations {
		c.conversations[id] = conv
	}
	return c
}

func (d *memData) nextID(prefix string) string {
	d.seq++
	return fmt.Sprintf("%s-%d", prefix, d.seq)
}

type memStore struct {
	data *memData
}

func newMemStore() *memStore {
	return &memStore{data: newMemData()}
}

func (s *memStore) Repos() repository.RepoSet {
	return repository.RepoSet{
		Conversations: &memConversations{s: s},
		Handoffs:      &memHandoffs{s: s},
		Queues:        &memQueues{s: s},
		QueueItems:    &memQueueItems{s: s},
		Assignments:   &memAssignments{s: s},
		AuditEvents:   &memAudits{s: s},
		Operators:     &memOperators{s: s},
	}
}

// InTransition mimics the rollback semantics of the pgx store: any handler
// error restores the pre-call state wholesale.
func (s *memStore) InTransition(ctx context.Context, conversationID string,
	fn func(ctx context.Context, repos repository.RepoSet, conv *domain.Conversation) error) (*domain.Conversation, error) {
	backup := s.data.clone()
	conv, ok := s.data.conversations[conversationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if err := fn(ctx, s.Repos(), &conv); err != nil {
		s.data = backup
		return nil, err
	}
	return &conv, nil
}

type memConversations struct{ s *memStore }

func (r *memConversations) Create(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = r.s.data.nextID("conv")
	}
	r.s.data.conversations[conv.ID] = *conv
	return nil
}

func (r *memConversations) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, ok := r.s.data.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &conv, nil
}

func (r *memConversations) GetForUpdate(ctx context.Context, id string) (*domain.Conversation, error) {
	return r.GetByID(ctx, id)
}

func (r *memConversations) Update(ctx context.Context, conv *domain.Conversation) error {
	if _, ok := r.s.data.conversations[conv.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.s.data.conversations[conv.ID] = *conv
	return nil
}

func (r *memConversations) ListBreachCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Conversation, error) {
	return nil, nil
}

func (r *memConversations) ListAtRisk(ctx context.Context, now time.Time, window time.Duration, limit int) ([]domain.Conversation, error) {
	return nil, nil
}

type memHandoffs struct{ s *memStore }

func (r *memHandoffs) Upsert(ctx context.Context, handoff *domain.Handoff) error {
	for i := range r.s.data.handoffs {
		existing := &r.s.data.handoffs[i]
		if existing.ConversationID == handoff.ConversationID && existing.ReasonCode == handoff.ReasonCode {
			handoff.ID = existing.ID
			handoff.CreatedAt = existing.CreatedAt
			handoff.UpdatedAt = existing.UpdatedAt.Add(time.Second)
			*existing = *handoff
			return nil
		}
	}
	handoff.ID = r.s.data.nextID("handoff")
	handoff.UpdatedAt = time.Unix(int64(r.s.data.seq), 0)
	r.s.data.handoffs = append(r.s.data.handoffs, *handoff)
	return nil
}

func (r *memHandoffs) GetByReason(ctx context.Context, conversationID, reasonCode string) (*domain.Handoff, error) {
	for i := range r.s.data.handoffs {
		h := r.s.data.handoffs[i]
		if h.ConversationID == conversationID && h.ReasonCode == reasonCode {
			return &h, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memHandoffs) Latest(ctx context.Context, conversationID string) (*domain.Handoff, error) {
	var latest *domain.Handoff
	for i := range r.s.data.handoffs {
		h := r.s.data.handoffs[i]
		if h.ConversationID != conversationID {
			continue
		}
		if latest == nil || h.UpdatedAt.After(latest.UpdatedAt) {
			copied := h
			latest = &copied
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return latest, nil
}

func (r *memHandoffs) ListByConversation(ctx context.Context, conversationID string) ([]domain.Handoff, error) {
	var result []domain.Handoff
	for _, h := range r.s.data.handoffs {
		if h.ConversationID == conversationID {
			result = append(result, h)
		}
	}
	return result, nil
}

type memQueues struct{ s *memStore }

func (r *memQueues) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	queue, ok := r.s.data.queues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &queue, nil
}

func (r *memQueues) ListActive(ctx context.Context) ([]domain.Queue, error) {
	var result []domain.Queue
	for _, q := range r.s.data.queues {
		if q.IsActive {
			result = append(result, q)
		}
	}
	return result, nil
}

type memQueueItems struct{ s *memStore }

func (r *memQueueItems) Create(ctx context.Context, item *domain.QueueItem) error {
	item.ID = r.s.data.nextID("item")
	r.s.data.queueItems = append(r.s.data.queueItems, *item)
	return nil
}

func (r *memQueueItems) FindByState(ctx context.Context, queueID, conversationID string, state domain.QueueItemState) (*domain.QueueItem, error) {
	for i := range r.s.data.queueItems {
		item := r.s.data.queueItems[i]
		if item.QueueID == queueID && item.ConversationID == conversationID && item.State == state {
			return &item, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memQueueItems) UpsertQueued(ctx context.Context, queueID, conversationID string, enqueuedAt time.Time) (*domain.QueueItem, error) {
	if existing, err := r.FindByState(ctx, queueID, conversationID, domain.QueueItemQueued); err == nil {
		return existing, nil
	}
	item := &domain.QueueItem{
		QueueID:        queueID,
		ConversationID: conversationID,
		State:          domain.QueueItemQueued,
		EnqueuedAt:     enqueuedAt,
	}
	if err := r.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *memQueueItems) MarkHot(ctx context.Context, id string, dequeuedAt time.Time) error {
	for i := range r.s.data.queueItems {
		item := &r.s.data.queueItems[i]
		if item.ID == id && item.State == domain.QueueItemQueued {
			item.State = domain.QueueItemHot
			item.DequeuedAt = &dequeuedAt
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *memQueueItems) CompleteAllLive(ctx context.Context, conversationID string, at time.Time) (int64, error) {
	var count int64
	for i := range r.s.data.queueItems {
		item := &r.s.data.queueItems[i]
		if item.ConversationID == conversationID && item.Live() {
			item.State = domain.QueueItemCompleted
			if item.DequeuedAt == nil {
				item.DequeuedAt = &at
			}
			count++
		}
	}
	return count, nil
}

func (r *memQueueItems) ListLiveByConversation(ctx context.Context, conversationID string) ([]domain.QueueItem, error) {
	var result []domain.QueueItem
	for _, item := range r.s.data.queueItems {
		if item.ConversationID == conversationID && item.Live() {
			result = append(result, item)
		}
	}
	return result, nil
}

type memAssignments struct{ s *memStore }

func (r *memAssignments) Create(ctx context.Context, assignment *domain.Assignment) error {
	assignment.ID = r.s.data.nextID("assignment")
	r.s.data.assignments = append(r.s.data.assignments, *assignment)
	return nil
}

func (r *memAssignments) Update(ctx context.Context, assignment *domain.Assignment) error {
	for i := range r.s.data.assignments {
		if r.s.data.assignments[i].ID == assignment.ID {
			r.s.data.assignments[i] = *assignment
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *memAssignments) LatestForOperator(ctx context.Context, conversationID, operatorID string) (*domain.Assignment, error) {
	for i := len(r.s.data.assignments) - 1; i >= 0; i-- {
		a := r.s.data.assignments[i]
		if a.ConversationID == conversationID && a.OperatorID == operatorID {
			return &a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memAssignments) LatestForConversation(ctx context.Context, conversationID string) (*domain.Assignment, error) {
	for i := len(r.s.data.assignments) - 1; i >= 0; i-- {
		a := r.s.data.assignments[i]
		if a.ConversationID == conversationID {
			return &a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memAssignments) ListByConversation(ctx context.Context, conversationID string) ([]domain.Assignment, error) {
	var result []domain.Assignment
	for _, a := range r.s.data.assignments {
		if a.ConversationID == conversationID {
			result = append(result, a)
		}
	}
	return result, nil
}

type memAudits struct{ s *memStore }

func (r *memAudits) Append(ctx context.Context, event *domain.AuditEvent) error {
	event.ID = r.s.data.nextID("audit")
	r.s.data.audits = append(r.s.data.audits, *event)
	return nil
}

func (r *memAudits) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]domain.AuditEvent, error) {
	var result []domain.AuditEvent
	for _, e := range r.s.data.audits {
		if e.ConversationID == conversationID {
			result = append(result, e)
		}
	}
	return result, nil
}

type memOperators struct{ s *memStore }

func (r *memOperators) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	op, ok := r.s.data.operators[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &op, nil
}

// ---- collaborator fakes ----

type staticCatalog struct {
	queues []domain.Queue
}

func (c *staticCatalog) Load(ctx context.Context) ([]domain.Queue, error) { return c.queues, nil }
func (c *staticCatalog) Invalidate(ctx context.Context) error            { return nil }

type recordingScheduler struct {
	scheduled []string
}

func (s *recordingScheduler) ScheduleReinvoke(ctx context.Context, conversationID string) error {
	s.scheduled = append(s.scheduled, conversationID)
	return nil
}

// ---- fixture ----

type fixture struct {
	orch       *Orchestrator
	store      *memStore
	jobs       *recordingScheduler
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	jobs := &recordingScheduler{}
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	billingPolicy := "priority_weighted"
	store.data.queues["q-billing"] = domain.Queue{
		ID: "q-billing", Name: "Billing", SkillsRequired: []int64{7, 9},
		PriorityPolicy: &billingPolicy, IsActive: true,
	}
	store.data.queues["q-default"] = domain.Queue{
		ID: "q-default", Name: "General", IsDefault: true, IsActive: true,
	}
	store.data.operators["op-1"] = domain.Operator{
		ID: "op-1", Name: "Dana", Email: "dana@example.com",
		Roles: []string{"support"}, Skills: []int64{7, 9}, IsActive: true,
	}

	catalog := &staticCatalog{queues: []domain.Queue{
		store.data.queues["q-billing"],
		store.data.queues["q-default"],
	}}

	orch := New(Dependencies{
		Store:      store,
		Machine:    fsm.NewMachine(),
		Router:     routing.NewRouter(catalog, zap.NewNop()),
		Dispatcher: dispatcher,
		Jobs:       jobs,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
		Clock:      func() time.Time { return now },
	})
	return &fixture{orch: orch, store: store, jobs: jobs, dispatcher: dispatcher, metrics: metrics, clock: now}
}

func (f *fixture) seedConversation(status domain.ConversationStatus) *domain.Conversation {
	conv := domain.Conversation{
		ID:             "conv-1",
		ExternalKey:    "ext-1",
		Channel:        "chat",
		Subject:        "double charge on invoice",
		Status:         status,
		Priority:       domain.PriorityHigh,
		LastActivityAt: f.clock.Add(-time.Hour),
		CreatedAt:      f.clock.Add(-time.Hour),
		UpdatedAt:      f.clock.Add(-time.Hour),
	}
	f.store.data.conversations[conv.ID] = conv
	return &conv
}

func (f *fixture) conversation(t *testing.T, id string) *domain.Conversation {
	t.Helper()
	conv, ok := f.store.data.conversations[id]
	require.True(t, ok)
	return &conv
}

func operatorActor(id string) Actor {
	return Actor{OperatorID: &id, Channel: "agent_ui"}
}

var automationActor = Actor{Channel: "automation"}

// ---- tests ----

func TestApplyFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedConversation(domain.StatusNew)

	conv, err := f.orch.Apply(ctx, "conv-1", fsm.AgentBegins, automationActor, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAgentWorking, conv.Status)
	require.NotNil(t, conv.FirstResponseDueAt)
	require.NotNil(t, conv.ResolutionDueAt)
	assert.Equal(t, f.clock.Add(15*time.Minute), *conv.FirstResponseDueAt)
	assert.Equal(t, f.clock.Add(2*time.Hour), *conv.ResolutionDueAt)

	conv, err = f.orch.Apply(ctx, "conv-1", fsm.HandoffRequired, automationActor, Context{
		KeyReasonCode:     "Billing Dispute",
		KeyConfidence:     0.42,
		KeyRequiredSkills: []int64{7},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNeedsHuman, conv.Status)
	require.Len(t, f.store.data.handoffs, 1)
	handoff := f.store.data.handoffs[0]
	assert.Equal(t, "billing_dispute", handoff.ReasonCode)
	require.NotNil(t, handoff.Confidence)
	assert.InDelta(t, 0.42, *handoff.Confidence, 1e-9)
	assert.Equal(t, []int64{7}, handoff.RequiredSkills)

	conv, err = f.orch.Apply(ctx, "conv-1", fsm.EnqueueForHuman, automationActor, Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, conv.Status)
	require.Len(t, f.store.data.queueItems, 1)
	assert.Equal(t, "q-billing", f.store.data.queueItems[0].QueueID)
	assert.Equal(t, domain.QueueItemQueued, f.store.data.queueItems[0].State)

	conv, err = f.orch.Apply(ctx, "conv-1", fsm.AssignHuman, automationActor, Context{
		KeyQueueID:    "q-billing",
		KeyOperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, conv.Status)
	assert.Equal(t, domain.QueueItemHot, f.store.data.queueItems[0].State)
	require.Len(t, f.store.data.assignments, 1)
	assert.Equal(t, domain.AssignmentAssigned, f.store.data.assignments[0].Status)
	assert.Equal(t, "op-1", f.store.data.assignments[0].OperatorID)

	conv, err = f.orch.Apply(ctx, "conv-1", fsm.HumanAccepts, operatorActor("op-1"), Context{
		KeyOperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHumanWorking, conv.Status)
	assert.Equal(t, domain.AssignmentHumanWorking, f.store.data.assignments[0].Status)
	require.NotNil(t, conv.FirstRespondedAt)
	assert.Equal(t, f.clock, *conv.FirstRespondedAt)

	conv, err = f.orch.Apply(ctx, "conv-1", fsm.Resolve, operatorActor("op-1"), Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, conv.Status)
	require.NotNil(t, conv.ResolvedAt)
	assert.Equal(t, domain.AssignmentResolved, f.store.data.assignments[0].Status)
	assert.Equal(t, domain.QueueItemCompleted, f.store.data.queueItems[0].State)

	conv, err = f.orch.Apply(ctx, "conv-1", fsm.Archive, automationActor, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, conv.Status)

	require.Len(t, f.store.data.audits, 7)
	first := f.store.data.audits[0]
	assert.Equal(t, "conversation.agent_begins", first.EventType)
	assert.Equal(t, domain.StatusNew, first.Payload["from"])
	assert.Equal(t, domain.StatusAgentWorking, first.Payload["to"])

	assert.Equal(t, int64(1), f.metrics.TransitionCount("resolve"))
	assert.Empty(t, f.jobs.scheduled)
}

func TestAgentBeginsUsesConfiguredSLATable(t *testing.T) {
	f := newFixture(t)
	f.orch.slaTargets = sla.TableFromConfig(config.SLAConfig{
		HighFirstResponseMinutes: 5,
		HighResolutionHours:      1,
	})
	f.seedConversation(domain.StatusNew)

	conv, err := f.orch.Apply(context.Background(), "conv-1", fsm.AgentBegins, automationActor, nil)
	require.NoError(t, err)
	require.NotNil(t, conv.FirstResponseDueAt)
	assert.Equal(t, f.clock.Add(5*time.Minute), *conv.FirstResponseDueAt)
	assert.Equal(t, f.clock.Add(time.Hour), *conv.ResolutionDueAt)
}

func TestApplyIllegalTransitionLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusNew)

	_, err := f.orch.Apply(context.Background(), "conv-1", fsm.Resolve, automationActor, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeIllegalTransition))

	conv := f.conversation(t, "conv-1")
	assert.Equal(t, domain.StatusNew, conv.Status)
	assert.Empty(t, f.store.data.audits)
}

func TestApplyUnknownTransition(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusNew)

	_, err := f.orch.Apply(context.Background(), "conv-1", fsm.Transition("escalate_to_vendor"), automationActor, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeIllegalTransition))
}

func TestHandoffRequiredMissingReasonRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusAgentWorking)

	_, err := f.orch.Apply(context.Background(), "conv-1", fsm.HandoffRequired, automationActor, Context{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeMissingContext))

	conv := f.conversation(t, "conv-1")
	assert.Equal(t, domain.StatusAgentWorking, conv.Status)
	assert.Empty(t, f.store.data.handoffs)
	assert.Empty(t, f.store.data.audits)
}

func TestHandoffRedeliverySameReasonUpserts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedConversation(domain.StatusAgentWorking)

	tc := Context{KeyReasonCode: "low confidence", KeyConfidence: 0.3}
	_, err := f.orch.Apply(ctx, "conv-1", fsm.HandoffRequired, automationActor, tc)
	require.NoError(t, err)

	// A redelivered trigger with the same reason updates the existing row
	// instead of creating a duplicate.
	conv := f.conversation(t, "conv-1")
	conv.Status = domain.StatusAgentWorking
	f.store.data.conversations[conv.ID] = *conv

	_, err = f.orch.Apply(ctx, "conv-1", fsm.HandoffRequired, automationActor, Context{
		KeyReasonCode: "Low Confidence",
		KeyConfidence: 0.25,
	})
	require.NoError(t, err)

	require.Len(t, f.store.data.handoffs, 1)
	assert.Equal(t, "low_confidence", f.store.data.handoffs[0].ReasonCode)
	require.NotNil(t, f.store.data.handoffs[0].Confidence)
	assert.InDelta(t, 0.25, *f.store.data.handoffs[0].Confidence, 1e-9)
}

func TestEnqueueResolvesQueueFromLatestHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedConversation(domain.StatusAgentWorking)

	_, err := f.orch.Apply(ctx, "conv-1", fsm.HandoffRequired, automationActor, Context{
		KeyReasonCode:     "billing_dispute",
		KeyRequiredSkills: []int64{7, 9},
	})
	require.NoError(t, err)

	conv, err := f.orch.Apply(ctx, "conv-1", fsm.EnqueueForHuman, automationActor, Context{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, conv.Status)
	require.Len(t, f.store.data.queueItems, 1)
	assert.Equal(t, "q-billing", f.store.data.queueItems[0].QueueID)
}

func TestEnqueueWithUnmatchedSkillsFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedConversation(domain.StatusNeedsHuman)

	conv, err := f.orch.Apply(ctx, "conv-1", fsm.EnqueueForHuman, automationActor, Context{
		KeyRequiredSkills: []int64{999},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, conv.Status)
	require.Len(t, f.store.data.queueItems, 1)
	assert.Equal(t, "q-default", f.store.data.queueItems[0].QueueID)
}

func TestEnqueueHonorsExplicitQueue(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusNeedsHuman)

	_, err := f.orch.Apply(context.Background(), "conv-1", fsm.EnqueueForHuman, automationActor, Context{
		KeyQueueID: "q-default",
	})
	require.NoError(t, err)
	require.Len(t, f.store.data.queueItems, 1)
	assert.Equal(t, "q-default", f.store.data.queueItems[0].QueueID)
}

func TestHumanAcceptsWithoutAssignment(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusAssigned)

	_, err := f.orch.Apply(context.Background(), "conv-1", fsm.HumanAccepts, operatorActor("op-1"), Context{
		KeyOperatorID: "op-1",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAssignmentNotFound))

	conv := f.conversation(t, "conv-1")
	assert.Equal(t, domain.StatusAssigned, conv.Status)
	assert.Empty(t, f.store.data.audits)
}

func TestFirstResponseMarkedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.seedConversation(domain.StatusAssigned)
	earlier := f.clock.Add(-30 * time.Minute)
	conv.FirstRespondedAt = &earlier
	f.store.data.conversations[conv.ID] = *conv

	queueID := "q-billing"
	require.NoError(t, f.store.Repos().Assignments.Create(ctx, &domain.Assignment{
		ConversationID: "conv-1", QueueID: &queueID, OperatorID: "op-1",
		Status: domain.AssignmentAssigned, AssignedAt: f.clock,
	}))

	got, err := f.orch.Apply(ctx, "conv-1", fsm.HumanAccepts, operatorActor("op-1"), Context{
		KeyOperatorID: "op-1",
	})
	require.NoError(t, err)
	require.NotNil(t, got.FirstRespondedAt)
	assert.Equal(t, earlier, *got.FirstRespondedAt)
}

func TestReturnToAgentSchedulesReinvoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedConversation(domain.StatusHumanWorking)

	queueID := "q-billing"
	require.NoError(t, f.store.Repos().Assignments.Create(ctx, &domain.Assignment{
		ConversationID: "conv-1", QueueID: &queueID, OperatorID: "op-1",
		Status: domain.AssignmentHumanWorking, AssignedAt: f.clock,
	}))

	conv, err := f.orch.Apply(ctx, "conv-1", fsm.ReturnToAgent, operatorActor("op-1"), Context{
		KeyOperatorID: "op-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBackToAgent, conv.Status)
	assert.Equal(t, domain.AssignmentReleased, f.store.data.assignments[0].Status)
	require.NotNil(t, f.store.data.assignments[0].ReleasedAt)
	assert.Equal(t, []string{"conv-1"}, f.jobs.scheduled)
}

func TestResolveWithoutAssignment(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusAgentWorking)

	conv, err := f.orch.Apply(context.Background(), "conv-1", fsm.Resolve, automationActor, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, conv.Status)
	require.NotNil(t, conv.ResolvedAt)
	assert.Empty(t, f.store.data.assignments)
}

func TestAuditPayloadCarriesSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedConversation(domain.StatusQueued)
	require.NoError(t, f.store.Repos().QueueItems.Create(ctx, &domain.QueueItem{
		QueueID: "q-billing", ConversationID: "conv-1",
		State: domain.QueueItemQueued, EnqueuedAt: f.clock,
	}))

	_, err := f.orch.Apply(ctx, "conv-1", fsm.AssignHuman, operatorActor("op-1"), Context{
		KeyQueueID:    "q-billing",
		KeyOperatorID: "op-1",
	})
	require.NoError(t, err)

	require.Len(t, f.store.data.audits, 1)
	payload := f.store.data.audits[0].Payload

	queue, ok := payload["queue"].(domain.QueueSnapshot)
	require.True(t, ok)
	assert.Equal(t, "q-billing", queue.ID)

	assignee, ok := payload["assignee"].(domain.OperatorSnapshot)
	require.True(t, ok)
	assert.Equal(t, "op-1", assignee.ID)
	assert.Equal(t, "dana@example.com", assignee.Email)

	actor, ok := payload["actor"].(domain.OperatorSnapshot)
	require.True(t, ok)
	assert.Equal(t, "op-1", actor.ID)
}

func TestEventPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusAgentWorking)

	var published []events.Event
	f.dispatcher.Subscribe(events.EventHandoffRequired, func(ctx context.Context, event events.Event) error {
		published = append(published, event)
		return nil
	})

	_, err := f.orch.Apply(context.Background(), "conv-1", fsm.HandoffRequired, automationActor, Context{
		KeyReasonCode: "tool_error",
	})
	require.NoError(t, err)

	require.Len(t, published, 1)
	assert.Equal(t, events.EventHandoffRequired, published[0].Type)
	assert.Equal(t, "conv-1", published[0].ConversationID)
	assert.Equal(t, "automation", published[0].Actor.Channel)
	assert.Equal(t, "tool_error", published[0].Payload["reason_code"])
}

func TestNoEventOnFailedTransition(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusAgentWorking)

	var published int
	f.dispatcher.Subscribe(events.EventHandoffRequired, func(ctx context.Context, event events.Event) error {
		published++
		return nil
	})

	_, err := f.orch.Apply(context.Background(), "conv-1", fsm.HandoffRequired, automationActor, Context{})
	require.Error(t, err)
	assert.Zero(t, published)
}

func TestOccurredAtFromContext(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusNew)
	occurred := f.clock.Add(-10 * time.Minute)

	conv, err := f.orch.Apply(context.Background(), "conv-1", fsm.AgentBegins, automationActor, Context{
		KeyOccurredAt: occurred,
	})
	require.NoError(t, err)
	assert.Equal(t, occurred, conv.LastActivityAt)
	require.NotNil(t, conv.FirstResponseDueAt)
	assert.Equal(t, occurred.Add(15*time.Minute), *conv.FirstResponseDueAt)
}

func TestCanApply(t *testing.T) {
	f := newFixture(t)
	f.seedConversation(domain.StatusNew)

	ok, err := f.orch.CanApply(context.Background(), "conv-1", fsm.AgentBegins)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.orch.CanApply(context.Background(), "conv-1", fsm.Archive)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.orch.CanApply(context.Background(), "conv-missing", fsm.AgentBegins)
	require.Error(t, err)
}
