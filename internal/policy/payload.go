// Package policy evaluates automated-response payloads and decides when a
// conversation must hand off to a human.
package policy

import (
	"strings"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// Payload is the validated shape of one automated response.
type Payload struct {
	Response    string
	Confidence  *float64
	Handoff     bool
	Reason      string
	PolicyFlags []string
	ToolError   bool
}

// Decision is the outcome of evaluating a payload.
type Decision struct {
	ShouldHandoff   bool
	Reason          string
	Confidence      *float64
	PolicyHits      []domain.PolicyHit
	RequiredSkills  []int64
	HandoffMetadata map[string]any
	QueueMetadata   map[string]any
}

// FallbackReason is the canonical reason used when a handoff is required but
// no reason could be derived, including the schema-failure fallback outcome.
const FallbackReason = "uncertain_intent"

// NormalizeReason lowercases, trims, and replaces internal spaces with
// underscores. Empty input stays empty; callers decide whether the fallback
// reason applies.
func NormalizeReason(reason string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(reason))), "_")
}

// NormalizeFlags lowercases, trims, and deduplicates policy flags preserving
// first-seen order.
func NormalizeFlags(flags []string) []string {
	seen := make(map[string]bool, len(flags))
	result := make([]string, 0, len(flags))
	for _, flag := range flags {
		normalized := strings.ToLower(strings.TrimSpace(flag))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		result = append(result, normalized)
	}
	return result
}

// FallbackDecision is the implicit-handoff outcome used when the automated
// response failed schema validation.
func FallbackDecision() *Decision {
	return &Decision{
		ShouldHandoff:   true,
		Reason:          FallbackReason,
		HandoffMetadata: map[string]any{"fallback": true},
	}
}
