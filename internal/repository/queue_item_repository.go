package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

const queueItemColumns = `id, queue_id, conversation_id, state, enqueued_at, dequeued_at, created_at, updated_at`

// QueueItemRepository stores queue placements. Callers locate-or-create by
// (queue, conversation, state); the conversation row lock held during a
// transition makes that read-then-write race-free.
type QueueItemRepository interface {
	Create(ctx context.Context, item *domain.QueueItem) error
	FindByState(ctx context.Context, queueID, conversationID string, state domain.QueueItemState) (*domain.QueueItem, error)
	// UpsertQueued returns the existing queued row for (queue, conversation)
	// or creates one with the given enqueue timestamp.
	UpsertQueued(ctx context.Context, queueID, conversationID string, enqueuedAt time.Time) (*domain.QueueItem, error)
	MarkHot(ctx context.Context, id string, dequeuedAt time.Time) error
	CompleteAllLive(ctx context.Context, conversationID string, at time.Time) (int64, error)
	ListLiveByConversation(ctx context.Context, conversationID string) ([]domain.QueueItem, error)
}

type queueItemRepository struct {
	db DBTX
}

// NewQueueItemRepository builds the repository.
func NewQueueItemRepository(db DBTX) QueueItemRepository {
	return &queueItemRepository{db: db}
}

func (r *queueItemRepository) Create(ctx context.Context, item *domain.QueueItem) error {
	const query = `
        INSERT INTO queue_items (queue_id, conversation_id, state, enqueued_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		item.QueueID,
		item.ConversationID,
		item.State,
		item.EnqueuedAt,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
}

func (r *queueItemRepository) FindByState(ctx context.Context, queueID, conversationID string, state domain.QueueItemState) (*domain.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + `
        FROM queue_items WHERE queue_id=$1 AND conversation_id=$2 AND state=$3
        ORDER BY enqueued_at DESC LIMIT 1`
	var item domain.QueueItem
	if err := scanQueueItem(r.db.QueryRow(ctx, query, queueID, conversationID, state), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *queueItemRepository) UpsertQueued(ctx context.Context, queueID, conversationID string, enqueuedAt time.Time) (*domain.QueueItem, error) {
	existing, err := r.FindByState(ctx, queueID, conversationID, domain.QueueItemQueued)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
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

func (r *queueItemRepository) MarkHot(ctx context.Context, id string, dequeuedAt time.Time) error {
	const query = `
        UPDATE queue_items SET state='hot', dequeued_at=$1, updated_at=NOW()
        WHERE id=$2 AND state='queued'`
	cmd, err := r.db.Exec(ctx, query, dequeuedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *queueItemRepository) CompleteAllLive(ctx context.Context, conversationID string, at time.Time) (int64, error) {
	const query = `
        UPDATE queue_items SET state='completed',
            dequeued_at=COALESCE(dequeued_at, $1), updated_at=NOW()
        WHERE conversation_id=$2 AND state IN ('queued','hot')`
	cmd, err := r.db.Exec(ctx, query, at, conversationID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *queueItemRepository) ListLiveByConversation(ctx context.Context, conversationID string) ([]domain.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + `
        FROM queue_items WHERE conversation_id=$1 AND state IN ('queued','hot')
        ORDER BY enqueued_at ASC`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QueueItem
	for rows.Next() {
		var item domain.QueueItem
		if err := scanQueueItem(rows, &item); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func scanQueueItem(row pgx.Row, item *domain.QueueItem) error {
	return row.Scan(
		&item.ID,
		&item.QueueID,
		&item.ConversationID,
		&item.State,
		&item.EnqueuedAt,
		&item.DequeuedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
}
