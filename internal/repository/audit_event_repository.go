package repository

import (
	"context"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// AuditEventRepository appends transition audit records. The table is
// append-only; there is no update or delete path.
type AuditEventRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]domain.AuditEvent, error)
}

type auditEventRepository struct {
	db DBTX
}

// NewAuditEventRepository builds the repository.
func NewAuditEventRepository(db DBTX) AuditEventRepository {
	return &auditEventRepository{db: db}
}

func (r *auditEventRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	const query = `
        INSERT INTO audit_events (event_type, conversation_id, actor_id, channel, payload, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		event.EventType,
		event.ConversationID,
		event.ActorID,
		event.Channel,
		event.Payload,
		event.OccurredAt,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *auditEventRepository) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, event_type, conversation_id, actor_id, channel, payload, occurred_at, created_at
        FROM audit_events WHERE conversation_id=$1
        ORDER BY occurred_at ASC
        LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		if err := rows.Scan(
			&event.ID,
			&event.EventType,
			&event.ConversationID,
			&event.ActorID,
			&event.Channel,
			&event.Payload,
			&event.OccurredAt,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
