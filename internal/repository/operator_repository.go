package repository

import (
	"context"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// OperatorRepository reads operator records for audit snapshots. Operator
// administration (roles, skills, credentials) lives in the external admin
// surface; the core only needs the denormalizable view.
type OperatorRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
}

type operatorRepository struct {
	db DBTX
}

// NewOperatorRepository builds the repository.
func NewOperatorRepository(db DBTX) OperatorRepository {
	return &operatorRepository{db: db}
}

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	const query = `
        SELECT id, name, email, roles, skills, is_active, created_at
        FROM operators WHERE id=$1`
	var op domain.Operator
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&op.ID,
		&op.Name,
		&op.Email,
		&op.Roles,
		&op.Skills,
		&op.IsActive,
		&op.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &op, nil
}
