package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// DBTX is the querier shared by pool-bound and transaction-bound
// repositories. Both *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RepoSet bundles the repositories a transition handler touches. All members
// share one querier, so a set built inside a transaction writes atomically.
type RepoSet struct {
	Conversations ConversationRepository
	Handoffs      HandoffRepository
	Queues        QueueRepository
	QueueItems    QueueItemRepository
	Assignments   AssignmentRepository
	AuditEvents   AuditEventRepository
	Operators     OperatorRepository
	Rules         RuleRepository
}

// NewRepoSet builds a repository bundle over the given querier.
func NewRepoSet(db DBTX) RepoSet {
	return RepoSet{
		Conversations: NewConversationRepository(db),
		Handoffs:      NewHandoffRepository(db),
		Queues:        NewQueueRepository(db),
		QueueItems:    NewQueueItemRepository(db),
		Assignments:   NewAssignmentRepository(db),
		AuditEvents:   NewAuditEventRepository(db),
		Operators:     NewOperatorRepository(db),
		Rules:         NewRuleRepository(db),
	}
}

// Store is the transactional boundary for transition execution. InTransition
// opens one transaction, locks the conversation row (the per-conversation
// serialization point), and hands transaction-bound repositories to fn. Any
// error rolls the whole unit back with no partial writes.
type Store interface {
	Repos() RepoSet
	InTransition(ctx context.Context, conversationID string,
		fn func(ctx context.Context, repos RepoSet, conv *domain.Conversation) error) (*domain.Conversation, error)
}

type pgxStore struct {
	pool  *pgxpool.Pool
	repos RepoSet
}

// NewStore builds the pgx-backed store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgxStore{pool: pool, repos: NewRepoSet(pool)}
}

func (s *pgxStore) Repos() RepoSet {
	return s.repos
}

func (s *pgxStore) InTransition(ctx context.Context, conversationID string,
	fn func(ctx context.Context, repos RepoSet, conv *domain.Conversation) error) (*domain.Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	repos := NewRepoSet(tx)
	conv, err := repos.Conversations.GetForUpdate(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, repos, conv); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return conv, nil
}
