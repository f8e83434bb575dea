package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// HandoffRepository stores handoff records. Rows are keyed on
// (conversation_id, reason_code): re-triggering the same reason updates the
// existing row instead of duplicating it.
type HandoffRepository interface {
	Upsert(ctx context.Context, handoff *domain.Handoff) error
	GetByReason(ctx context.Context, conversationID, reasonCode string) (*domain.Handoff, error)
	Latest(ctx context.Context, conversationID string) (*domain.Handoff, error)
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Handoff, error)
}

type handoffRepository struct {
	db DBTX
}

// NewHandoffRepository builds the repository.
func NewHandoffRepository(db DBTX) HandoffRepository {
	return &handoffRepository{db: db}
}

func (r *handoffRepository) Upsert(ctx context.Context, handoff *domain.Handoff) error {
	const query = `
        INSERT INTO handoffs (conversation_id, reason_code, confidence, policy_hits, required_skills, metadata)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (conversation_id, reason_code) DO UPDATE
            SET confidence=EXCLUDED.confidence,
                policy_hits=EXCLUDED.policy_hits,
                required_skills=EXCLUDED.required_skills,
                metadata=EXCLUDED.metadata,
                updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		handoff.ConversationID,
		handoff.ReasonCode,
		handoff.Confidence,
		handoff.PolicyHits,
		handoff.RequiredSkills,
		handoff.Metadata,
	).Scan(&handoff.ID, &handoff.CreatedAt, &handoff.UpdatedAt)
}

func (r *handoffRepository) GetByReason(ctx context.Context, conversationID, reasonCode string) (*domain.Handoff, error) {
	const query = `
        SELECT id, conversation_id, reason_code, confidence, policy_hits, required_skills, metadata, created_at, updated_at
        FROM handoffs WHERE conversation_id=$1 AND reason_code=$2`
	var handoff domain.Handoff
	if err := scanHandoff(r.db.QueryRow(ctx, query, conversationID, reasonCode), &handoff); err != nil {
		return nil, err
	}
	return &handoff, nil
}

func (r *handoffRepository) Latest(ctx context.Context, conversationID string) (*domain.Handoff, error) {
	const query = `
        SELECT id, conversation_id, reason_code, confidence, policy_hits, required_skills, metadata, created_at, updated_at
        FROM handoffs WHERE conversation_id=$1 ORDER BY updated_at DESC LIMIT 1`
	var handoff domain.Handoff
	if err := scanHandoff(r.db.QueryRow(ctx, query, conversationID), &handoff); err != nil {
		return nil, err
	}
	return &handoff, nil
}

func (r *handoffRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Handoff, error) {
	const query = `
        SELECT id, conversation_id, reason_code, confidence, policy_hits, required_skills, metadata, created_at, updated_at
        FROM handoffs WHERE conversation_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Handoff
	for rows.Next() {
		var handoff domain.Handoff
		if err := scanHandoff(rows, &handoff); err != nil {
			return nil, err
		}
		result = append(result, handoff)
	}
	return result, rows.Err()
}

func scanHandoff(row pgx.Row, handoff *domain.Handoff) error {
	return row.Scan(
		&handoff.ID,
		&handoff.ConversationID,
		&handoff.ReasonCode,
		&handoff.Confidence,
		&handoff.PolicyHits,
		&handoff.RequiredSkills,
		&handoff.Metadata,
		&handoff.CreatedAt,
		&handoff.UpdatedAt,
	)
}
