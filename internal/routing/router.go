package routing

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// Router chooses a destination queue from required skills and conversation
// priority. A queue lacking any required skill is excluded entirely, not
// merely penalized.
type Router struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewRouter constructs the router.
func NewRouter(catalog Catalog, logger *zap.Logger) *Router {
	return &Router{catalog: catalog, logger: logger}
}

type candidate struct {
	queue      domain.Queue
	matchCount int
	priority   int
}

// ResolveQueue returns the chosen queue or nil when the catalog is empty.
// An explicit preferred queue overrides all scoring when it exists in the
// catalog.
func (r *Router) ResolveQueue(ctx context.Context, requiredSkills []int64, conv *domain.Conversation, preferredQueueID *string) (*domain.Queue, error) {
	catalog, err := r.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, nil
	}

	if preferredQueueID != nil {
		for i := range catalog {
			if catalog[i].ID == *preferredQueueID {
				return &catalog[i], nil
			}
		}
		r.logger.Warn("preferred queue not in catalog; falling back to scoring",
			zap.String("queue_id", *preferredQueueID))
	}

	candidates := make([]candidate, 0, len(catalog))
	for _, queue := range catalog {
		if !meetsRequirements(requiredSkills, &queue) {
			continue
		}
		candidates = append(candidates, candidate{
			queue:      queue,
			matchCount: matchCount(requiredSkills, &queue),
			priority:   priorityScore(&queue, conv),
		})
	}

	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].matchCount != candidates[j].matchCount {
				return candidates[i].matchCount > candidates[j].matchCount
			}
			return candidates[i].priority > candidates[j].priority
		})
		chosen := candidates[0].queue
		return &chosen, nil
	}

	// No queue satisfies the requirement: fall back to the default queue,
	// else the first queue in catalog order.
	for i := range catalog {
		if catalog[i].IsDefault {
			return &catalog[i], nil
		}
	}
	return &catalog[0], nil
}

// meetsRequirements reports whether the queue covers every required skill. A
// queue with no configured skills satisfies only an empty requirement.
func meetsRequirements(requiredSkills []int64, queue *domain.Queue) bool {
	if len(requiredSkills) == 0 {
		return true
	}
	for _, skill := range requiredSkills {
		if !queue.HasSkill(skill) {
			return false
		}
	}
	return true
}

func matchCount(requiredSkills []int64, queue *domain.Queue) int {
	count := 0
	for _, skill := range requiredSkills {
		if queue.HasSkill(skill) {
			count++
		}
	}
	return count
}

// priorityScore derives the queue's priority contribution. With a configured
// priority policy the conversation's priority label maps critical=3, high=2,
// else 1; without one the default queue scores 1 and all others 0.
func priorityScore(queue *domain.Queue, conv *domain.Conversation) int {
	if queue.PriorityPolicy == nil {
		if queue.IsDefault {
			return 1
		}
		return 0
	}
	if conv == nil {
		return 1
	}
	switch conv.Priority {
	case domain.PriorityCritical:
		return 3
	case domain.PriorityHigh:
		return 2
	default:
		return 1
	}
}
