package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

const queueColumns = `id, name, skills_required, priority_policy, sla_overrides, is_default, is_active, created_at, updated_at`

// QueueRepository reads the queue catalog. Queue administration is handled by
// the external admin surface; the core only lists and resolves queues.
type QueueRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Queue, error)
	ListActive(ctx context.Context) ([]domain.Queue, error)
}

type queueRepository struct {
	db DBTX
}

// NewQueueRepository builds the repository.
func NewQueueRepository(db DBTX) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE id=$1`
	var queue domain.Queue
	if err := scanQueue(r.db.QueryRow(ctx, query, id), &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (r *queueRepository) ListActive(ctx context.Context) ([]domain.Queue, error) {
	query := `SELECT ` + queueColumns + ` FROM queues WHERE is_active ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Queue
	for rows.Next() {
		var queue domain.Queue
		if err := scanQueue(rows, &queue); err != nil {
			return nil, err
		}
		result = append(result, queue)
	}
	return result, rows.Err()
}

func scanQueue(row pgx.Row, queue *domain.Queue) error {
	return row.Scan(
		&queue.ID,
		&queue.Name,
		&queue.SkillsRequired,
		&queue.PriorityPolicy,
		&queue.SLAOverrides,
		&queue.IsDefault,
		&queue.IsActive,
		&queue.CreatedAt,
		&queue.UpdatedAt,
	)
}
