package orchestrator

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
)

// Audit snapshots are explicit per-entity serializations resolved at write
// time, so audit rows stay self-contained and never leak fields that do not
// belong in the trail (credentials and tokens live on tables the snapshot
// functions never read).

func operatorAuditSnapshot(ctx context.Context, operators repository.OperatorRepository, operatorID string) (*domain.OperatorSnapshot, error) {
	op, err := operators.GetByID(ctx, operatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snapshot := op.Snapshot()
	return &snapshot, nil
}

func queueAuditSnapshot(ctx context.Context, queues repository.QueueRepository, queueID string) (*domain.QueueSnapshot, error) {
	queue, err := queues.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snapshot := queue.Snapshot()
	return &snapshot, nil
}

// enrichAuditPayload adds the denormalized actor/queue/assignee views to a
// transition's audit payload.
func enrichAuditPayload(ctx context.Context, repos repository.RepoSet, payload map[string]any,
	actorID, queueID, assigneeID *string) error {
	if actorID != nil {
		snapshot, err := operatorAuditSnapshot(ctx, repos.Operators, *actorID)
		if err != nil {
			return err
		}
		if snapshot != nil {
			payload["actor"] = *snapshot
		}
	}
	if queueID != nil {
		snapshot, err := queueAuditSnapshot(ctx, repos.Queues, *queueID)
		if err != nil {
			return err
		}
		if snapshot != nil {
			payload["queue"] = *snapshot
		}
	}
	if assigneeID != nil {
		snapshot, err := operatorAuditSnapshot(ctx, repos.Operators, *assigneeID)
		if err != nil {
			return err
		}
		if snapshot != nil {
			payload["assignee"] = *snapshot
		}
	}
	return nil
}
