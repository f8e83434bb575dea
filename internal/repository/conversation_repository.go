package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

const conversationColumns = `id, external_key, channel, subject, status, priority,
       first_response_due_at, resolution_due_at, first_responded_at, sla_breached_at,
       resolved_at, last_activity_at, created_at, updated_at`

// ConversationRepository encapsulates conversation persistence.
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	// GetForUpdate fetches the row under FOR UPDATE; only meaningful inside a
	// transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.Conversation, error)
	Update(ctx context.Context, conv *domain.Conversation) error
	ListBreachCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Conversation, error)
	ListAtRisk(ctx context.Context, now time.Time, window time.Duration, limit int) ([]domain.Conversation, error)
}

type conversationRepository struct {
	db DBTX
}

// NewConversationRepository instantiates the repository.
func NewConversationRepository(db DBTX) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	const query = `
        INSERT INTO conversations (external_key, channel, subject, status, priority, last_activity_at)
        VALUES ($1,$2,$3,$4,$5,NOW())
        RETURNING id, last_activity_at, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		conv.ExternalKey,
		conv.Channel,
		conv.Subject,
		conv.Status,
		conv.Priority,
	).Scan(&conv.ID, &conv.LastActivityAt, &conv.CreatedAt, &conv.UpdatedAt)
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *conversationRepository) GetForUpdate(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *conversationRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := scanConversation(r.db.QueryRow(ctx, query, arg), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) Update(ctx context.Context, conv *domain.Conversation) error {
	const query = `
        UPDATE conversations SET status=$1, priority=$2,
            first_response_due_at=$3, resolution_due_at=$4, first_responded_at=$5,
            sla_breached_at=$6, resolved_at=$7, last_activity_at=$8, updated_at=$9
        WHERE id=$10`
	cmd, err := r.db.Exec(ctx, query,
		conv.Status,
		conv.Priority,
		conv.FirstResponseDueAt,
		conv.ResolutionDueAt,
		conv.FirstRespondedAt,
		conv.SLABreachedAt,
		conv.ResolvedAt,
		conv.LastActivityAt,
		conv.UpdatedAt,
		conv.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *conversationRepository) ListBreachCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + conversationColumns + `
        FROM conversations
        WHERE sla_breached_at IS NULL
          AND status NOT IN ('resolved','archived')
          AND ((first_response_due_at IS NOT NULL AND first_response_due_at < $1 AND first_responded_at IS NULL)
            OR (resolution_due_at IS NOT NULL AND resolution_due_at < $1 AND resolved_at IS NULL))
        ORDER BY last_activity_at ASC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConversations(rows)
}

func (r *conversationRepository) ListAtRisk(ctx context.Context, now time.Time, window time.Duration, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	horizon := now.Add(window)
	query := `SELECT ` + conversationColumns + `
        FROM conversations
        WHERE sla_breached_at IS NULL
          AND status NOT IN ('resolved','archived')
          AND ((first_response_due_at IS NOT NULL AND first_response_due_at <= $1 AND first_responded_at IS NULL)
            OR (resolution_due_at IS NOT NULL AND resolution_due_at <= $1 AND resolved_at IS NULL))
        ORDER BY COALESCE(first_response_due_at, resolution_due_at) ASC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, horizon, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConversations(rows)
}

func scanConversation(row pgx.Row, conv *domain.Conversation) error {
	return row.Scan(
		&conv.ID,
		&conv.ExternalKey,
		&conv.Channel,
		&conv.Subject,
		&conv.Status,
		&conv.Priority,
		&conv.FirstResponseDueAt,
		&conv.ResolutionDueAt,
		&conv.FirstRespondedAt,
		&conv.SLABreachedAt,
		&conv.ResolvedAt,
		&conv.LastActivityAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
}

func scanConversations(rows pgx.Rows) ([]domain.Conversation, error) {
	var result []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := scanConversation(rows, &conv); err != nil {
			return nil, err
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}
