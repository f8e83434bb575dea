package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

const assignmentColumns = `id, conversation_id, queue_id, operator_id, status,
       assigned_at, accepted_at, released_at, resolved_at, created_at, updated_at`

// AssignmentRepository stores human-claim records. "Latest" is always
// resolved by ordering on assigned_at descending.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.Assignment) error
	Update(ctx context.Context, assignment *domain.Assignment) error
	LatestForOperator(ctx context.Context, conversationID, operatorID string) (*domain.Assignment, error)
	LatestForConversation(ctx context.Context, conversationID string) (*domain.Assignment, error)
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Assignment, error)
}

type assignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository builds the repository.
func NewAssignmentRepository(db DBTX) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        INSERT INTO assignments (conversation_id, queue_id, operator_id, status, assigned_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		assignment.ConversationID,
		assignment.QueueID,
		assignment.OperatorID,
		assignment.Status,
		assignment.AssignedAt,
	).Scan(&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt)
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        UPDATE assignments SET status=$1, accepted_at=$2, released_at=$3, resolved_at=$4, updated_at=NOW()
        WHERE id=$5`
	cmd, err := r.db.Exec(ctx, query,
		assignment.Status,
		assignment.AcceptedAt,
		assignment.ReleasedAt,
		assignment.ResolvedAt,
		assignment.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *assignmentRepository) LatestForOperator(ctx context.Context, conversationID, operatorID string) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
        FROM assignments WHERE conversation_id=$1 AND operator_id=$2
        ORDER BY assigned_at DESC LIMIT 1`
	var assignment domain.Assignment
	if err := scanAssignment(r.db.QueryRow(ctx, query, conversationID, operatorID), &assignment); err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *assignmentRepository) LatestForConversation(ctx context.Context, conversationID string) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
        FROM assignments WHERE conversation_id=$1
        ORDER BY assigned_at DESC LIMIT 1`
	var assignment domain.Assignment
	if err := scanAssignment(r.db.QueryRow(ctx, query, conversationID), &assignment); err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *assignmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
        FROM assignments WHERE conversation_id=$1 ORDER BY assigned_at ASC`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		var assignment domain.Assignment
		if err := scanAssignment(rows, &assignment); err != nil {
			return nil, err
		}
		result = append(result, assignment)
	}
	return result, rows.Err()
}

func scanAssignment(row pgx.Row, assignment *domain.Assignment) error {
	return row.Scan(
		&assignment.ID,
		&assignment.ConversationID,
		&assignment.QueueID,
		&assignment.OperatorID,
		&assignment.Status,
		&assignment.AssignedAt,
		&assignment.AcceptedAt,
		&assignment.ReleasedAt,
		&assignment.ResolvedAt,
		&assignment.CreatedAt,
		&assignment.UpdatedAt,
	)
}
