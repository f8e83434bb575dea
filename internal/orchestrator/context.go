package orchestrator

import (
	"time"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	apperrors "github.com/spec-kit/conversation-orchestrator/pkg/util"
)

// Context is the ephemeral, per-call bag of named values a transition handler
// reads. It is never persisted; each handler reads only the keys it needs and
// fails with MissingContext when a required key is absent.
type Context map[string]any

// Well-known context keys.
const (
	KeyOccurredAt     = "occurred_at"
	KeyReasonCode     = "reason_code"
	KeyConfidence     = "confidence"
	KeyPolicyHits     = "policy_hits"
	KeyRequiredSkills = "required_skills"
	KeyMetadata       = "metadata"
	KeyQueueID        = "queue_id"
	KeyOperatorID     = "operator_id"
	KeyMessageID      = "message_id"
)

// String returns a required string value.
func (c Context) String(key string) (string, error) {
	value, ok := c[key].(string)
	if !ok || value == "" {
		return "", apperrors.NewMissingContext(key)
	}
	return value, nil
}

// StringOptional returns a string value when present and non-empty.
func (c Context) StringOptional(key string) (string, bool) {
	value, ok := c[key].(string)
	return value, ok && value != ""
}

// FloatOptional returns a numeric value when present.
func (c Context) FloatOptional(key string) *float64 {
	switch value := c[key].(type) {
	case float64:
		return &value
	case *float64:
		return value
	default:
		return nil
	}
}

// TimeOptional returns a timestamp value when present.
func (c Context) TimeOptional(key string) (time.Time, bool) {
	value, ok := c[key].(time.Time)
	return value, ok
}

// SkillsOptional returns a skill id list when present.
func (c Context) SkillsOptional(key string) []int64 {
	switch value := c[key].(type) {
	case []int64:
		return value
	default:
		return nil
	}
}

// HitsOptional returns a policy hit list when present.
func (c Context) HitsOptional(key string) []domain.PolicyHit {
	value, _ := c[key].([]domain.PolicyHit)
	return value
}

// MapOptional returns a metadata map when present.
func (c Context) MapOptional(key string) map[string]any {
	value, _ := c[key].(map[string]any)
	return value
}
