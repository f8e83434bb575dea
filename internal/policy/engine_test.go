package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// fakeRuleRepo serves a fixed rule/policy configuration.
type fakeRuleRepo struct {
	rules    []domain.HandoffRule
	policies []domain.HandoffPolicy
}

func (f *fakeRuleRepo) ListActiveRules(ctx context.Context) ([]domain.HandoffRule, error) {
	return f.rules, nil
}

func (f *fakeRuleRepo) ListActivePolicies(ctx context.Context) ([]domain.HandoffPolicy, error) {
	return f.policies, nil
}

func floatPtr(v float64) *float64 { return &v }

func thresholdRule(id string, priority int, threshold float64, reason string, skills ...int64) domain.HandoffRule {
	return domain.HandoffRule{
		ID:             id,
		Name:           id,
		Priority:       priority,
		Trigger:        domain.TriggerConfidenceBelowThreshold,
		Criteria:       domain.RuleCriteria{Threshold: floatPtr(threshold)},
		ReasonCode:     reason,
		RequiredSkills: skills,
		IsActive:       true,
	}
}

func newEngine(repo *fakeRuleRepo) *Engine {
	return NewEngine(repo, zap.NewNop())
}

func TestEvaluateThresholdRule(t *testing.T) {
	engine := newEngine(&fakeRuleRepo{
		rules: []domain.HandoffRule{thresholdRule("r-1", 100, 0.6, "low_confidence", 7)},
	})

	decision, err := engine.Evaluate(context.Background(), &Payload{
		Response:   "I think the refund is processed",
		Confidence: floatPtr(0.3),
	}, nil)
	require.NoError(t, err)

	assert.True(t, decision.ShouldHandoff)
	assert.Equal(t, "low_confidence", decision.Reason)
	assert.Equal(t, []int64{7}, decision.RequiredSkills)
	require.Len(t, decision.PolicyHits, 1)
	assert.Equal(t, "r-1", decision.PolicyHits[0].RuleID)
	assert.Equal(t, domain.TriggerConfidenceBelowThreshold, decision.PolicyHits[0].Trigger)
}

func TestEvaluateNilConfidenceMatchesThreshold(t *testing.T) {
	engine := newEngine(&fakeRuleRepo{
		rules: []domain.HandoffRule{thresholdRule("r-1", 100, 0.6, "low_confidence")},
	})

	decision, err := engine.Evaluate(context.Background(), &Payload{Response: "ok"}, nil)
	require.NoError(t, err)
	assert.True(t, decision.ShouldHandoff)
}

func TestEvaluateFirstMatchWinsByPriority(t *testing.T) {
	// Rules arrive ordered by descending priority, as the repository returns them.
	engine := newEngine(&fakeRuleRepo{
		rules: []domain.HandoffRule{
			thresholdRule("high", 200, 0.9, "strict_check"),
			thresholdRule("low", 100, 0.6, "low_confidence"),
		},
	})

	decision, err := engine.Evaluate(context.Background(), &Payload{Confidence: floatPtr(0.5)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "strict_check", decision.Reason)
	assert.Equal(t, "high", decision.PolicyHits[0].RuleID)
}

func TestEvaluatePolicyFlagRule(t *testing.T) {
	engine := newEngine(&fakeRuleRepo{
		rules: []domain.HandoffRule{{
			ID:         "r-flags",
			Priority:   50,
			Trigger:    domain.TriggerPolicyFlagDetected,
			Criteria:   domain.RuleCriteria{Flags: []string{"legal_threat", "pii"}},
			ReasonCode: "policy_violation",
			IsActive:   true,
		}},
	})

	decision, err := engine.Evaluate(context.Background(), &Payload{
		Confidence:  floatPtr(0.95),
		PolicyFlags: []string{"  PII  "},
	}, nil)
	require.NoError(t, err)
	assert.True(t, decision.ShouldHandoff)
	assert.Equal(t, "policy_violation", decision.Reason)

	decision, err = engine.Evaluate(context.Background(), &Payload{
		Confidence:  floatPtr(0.95),
		PolicyFlags: []string{"benign"},
	}, nil)
	require.NoError(t, err)
	assert.False(t, decision.ShouldHandoff)
}

func TestEvaluateToolErrorRule(t *testing.T) {
	engine := newEngine(&fakeRuleRepo{
		rules: []domain.HandoffRule{{
			ID:         "r-tool",
			Priority:   10,
			Trigger:    domain.TriggerToolError,
			ReasonCode: "tool_failure",
			IsActive:   true,
		}},
	})

	decision, err := engine.Evaluate(context.Background(), &Payload{
		Confidence: floatPtr(0.99),
		ToolError:  true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tool_failure", decision.Reason)
}

func TestConfigurableRuleOutranksLegacyPolicy(t *testing.T) {
	// Legacy policy carries an enormous priority; the configurable rule must
	// still win.
	engine := newEngine(&fakeRuleRepo{
		rules: []domain.HandoffRule{thresholdRule("r-1", 1, 0.6, "low_confidence")},
		policies: []domain.HandoffPolicy{{
			ID:         "p-1",
			Name:       "legacy",
			ReasonCode: "legacy_reason",
			Priority:   1000000,
			IsActive:   true,
			Rules: []domain.HandoffPolicyRule{{
				ID:       "pr-1",
				Trigger:  domain.TriggerConfidenceBelowThreshold,
				Criteria: domain.RuleCriteria{Threshold: floatPtr(0.9)},
				Priority: 1000000,
			}},
		}},
	})

	decision, err := engine.Evaluate(context.Background(), &Payload{Confidence: floatPtr(0.1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "low_confidence", decision.Reason)
	assert.Equal(t, "r-1", decision.PolicyHits[0].RuleID)
}

func TestLegacyPolicyFallback(t *testing.T) {
	engine := newEngine(&fakeRuleRepo{
		policies: []domain.HandoffPolicy{
			{
				ID: "p-low", Name: "low", ReasonCode: "billing_dispute", Priority: 1, IsActive: true,
				Rules: []domain.HandoffPolicyRule{{
					ID: "pr-low", Trigger: domain.TriggerToolError, Priority: 1,
				}},
			},
			{
				ID: "p-high", Name: "high", ReasonCode: "escalation", Priority: 10, IsActive: true,
				RequiredSkills: []int64{3},
				Rules: []domain.HandoffPolicyRule{{
					ID: "pr-high", Trigger: domain.TriggerToolError, Priority: 5,
				}},
			},
		},
	})

	decision, err := engine.Evaluate(context.Background(), &Payload{ToolError: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "escalation", decision.Reason)
	assert.Equal(t, []int64{3}, decision.RequiredSkills)
	assert.Equal(t, "pr-high", decision.PolicyHits[0].RuleID)
}

func TestAgentReasonPromotesPolicyPriority(t *testing.T) {
	engine := newEngine(&fakeRuleRepo{
		policies: []domain.HandoffPolicy{
			{
				ID: "p-high", Name: "high", ReasonCode: "escalation", Priority: 10, IsActive: true,
				Rules: []domain.HandoffPolicyRule{{
					ID: "pr-high", Trigger: domain.TriggerToolError, Priority: 5,
				}},
			},
			{
				ID: "p-low", Name: "low", ReasonCode: "billing_dispute", Priority: 1, IsActive: true,
				Rules: []domain.HandoffPolicyRule{{
					ID: "pr-low", Trigger: domain.TriggerToolError, Priority: 1,
				}},
			},
		},
	})

	// The agent's stated reason matches the lower-priority policy, which is
	// promoted to maximal priority inside the legacy pass.
	decision, err := engine.Evaluate(context.Background(), &Payload{
		ToolError: true,
		Reason:    "Billing Dispute",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "billing_dispute", decision.Reason)
}

func TestAgentRequestedHandoffSynthesized(t *testing.T) {
	engine := newEngine(&fakeRuleRepo{})

	decision, err := engine.Evaluate(context.Background(), &Payload{
		Handoff: true,
		Reason:  "  Angry Customer ",
	}, nil)
	require.NoError(t, err)
	assert.True(t, decision.ShouldHandoff)
	assert.Equal(t, "angry_customer", decision.Reason)

	decision, err = engine.Evaluate(context.Background(), &Payload{Handoff: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent_requested_handoff", decision.Reason)
}

func TestNoMatchNoHandoff(t *testing.T) {
	engine := newEngine(&fakeRuleRepo{
		rules: []domain.HandoffRule{thresholdRule("r-1", 1, 0.2, "low_confidence")},
	})

	decision, err := engine.Evaluate(context.Background(), &Payload{Confidence: floatPtr(0.8)}, nil)
	require.NoError(t, err)
	assert.False(t, decision.ShouldHandoff)
	assert.Empty(t, decision.Reason)
}

func TestNormalizeReason(t *testing.T) {
	assert.Equal(t, "low_confidence", NormalizeReason("  Low   Confidence "))
	assert.Equal(t, "", NormalizeReason("   "))
	assert.Equal(t, "tool_failure", NormalizeReason("TOOL FAILURE"))
}
