package policy

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
	"github.com/spec-kit/conversation-orchestrator/internal/repository"
)

// Engine decides whether control should pass from automation to a human.
// Configurable rules are evaluated first in descending priority order; the
// legacy policy table is consulted only when no configurable rule matched.
type Engine struct {
	rules  repository.RuleRepository
	logger *zap.Logger
}

// NewEngine constructs the decision engine.
func NewEngine(rules repository.RuleRepository, logger *zap.Logger) *Engine {
	return &Engine{rules: rules, logger: logger}
}

// Evaluate runs the full precedence chain: configurable rules, then legacy
// policies, then the agent's own handoff request.
func (e *Engine) Evaluate(ctx context.Context, payload *Payload, conv *domain.Conversation) (*Decision, error) {
	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	if decision := evaluateRules(rules, payload); decision != nil {
		return decision, nil
	}

	policies, err := e.rules.ListActivePolicies(ctx)
	if err != nil {
		return nil, err
	}
	if decision := evaluatePolicies(policies, payload); decision != nil {
		return decision, nil
	}

	if payload.Handoff {
		return agentRequestedDecision(payload), nil
	}

	return &Decision{ShouldHandoff: false, Confidence: payload.Confidence}, nil
}

// evaluateRules applies the configurable rule set; the first matching rule
// (rules arrive ordered by descending priority) short-circuits evaluation.
func evaluateRules(rules []domain.HandoffRule, payload *Payload) *Decision {
	for _, rule := range rules {
		if !matches(rule.Trigger, rule.Criteria, payload) {
			continue
		}
		reason := NormalizeReason(rule.ReasonCode)
		if reason == "" {
			reason = FallbackReason
		}
		return &Decision{
			ShouldHandoff:  true,
			Reason:         reason,
			Confidence:     payload.Confidence,
			PolicyHits:     []domain.PolicyHit{{RuleID: rule.ID, Trigger: rule.Trigger}},
			RequiredSkills: rule.RequiredSkills,
			HandoffMetadata: map[string]any{
				"source":    "rule",
				"rule_name": rule.Name,
			},
			QueueMetadata: map[string]any{"required_skills": rule.RequiredSkills},
		}
	}
	return nil
}

// evaluatePolicies scans the legacy policy table. The best match is the
// highest-priority matching rule across all active policies; a policy whose
// reason code equals the agent's stated reason is promoted to maximal
// priority within this pass only. Configurable rules always outrank it.
func evaluatePolicies(policies []domain.HandoffPolicy, payload *Payload) *Decision {
	agentReason := NormalizeReason(payload.Reason)

	var (
		best         *domain.HandoffPolicy
		bestRule     *domain.HandoffPolicyRule
		bestPolicyPr int
		bestRulePr   int
	)
	for i := range policies {
		policy := policies[i]
		policyPriority := policy.Priority
		if agentReason != "" && agentReason == NormalizeReason(policy.ReasonCode) {
			policyPriority = math.MaxInt
		}
		for j := range policy.Rules {
			rule := policy.Rules[j]
			if !matches(rule.Trigger, rule.Criteria, payload) {
				continue
			}
			if best == nil || policyPriority > bestPolicyPr ||
				(policyPriority == bestPolicyPr && rule.Priority > bestRulePr) {
				best = &policies[i]
				bestRule = &policy.Rules[j]
				bestPolicyPr = policyPriority
				bestRulePr = rule.Priority
			}
		}
	}
	if best == nil {
		return nil
	}
	reason := NormalizeReason(best.ReasonCode)
	if reason == "" {
		reason = FallbackReason
	}
	return &Decision{
		ShouldHandoff:  true,
		Reason:         reason,
		Confidence:     payload.Confidence,
		PolicyHits:     []domain.PolicyHit{{RuleID: bestRule.ID, Trigger: bestRule.Trigger}},
		RequiredSkills: best.RequiredSkills,
		HandoffMetadata: map[string]any{
			"source":      "policy",
			"policy_name": best.Name,
		},
		QueueMetadata: map[string]any{"required_skills": best.RequiredSkills},
	}
}

// agentRequestedDecision synthesizes a decision when only the payload itself
// asked for a handoff.
func agentRequestedDecision(payload *Payload) *Decision {
	reason := NormalizeReason(payload.Reason)
	if reason == "" {
		reason = string(domain.TriggerAgentRequestedHandoff)
	}
	return &Decision{
		ShouldHandoff:   true,
		Reason:          reason,
		Confidence:      payload.Confidence,
		PolicyHits:      []domain.PolicyHit{{Trigger: domain.TriggerAgentRequestedHandoff}},
		HandoffMetadata: map[string]any{"source": "agent"},
	}
}

func matches(trigger domain.TriggerType, criteria domain.RuleCriteria, payload *Payload) bool {
	switch trigger {
	case domain.TriggerConfidenceBelowThreshold:
		if criteria.Threshold == nil {
			return false
		}
		return payload.Confidence == nil || *payload.Confidence < *criteria.Threshold
	case domain.TriggerPolicyFlagDetected:
		return flagsIntersect(payload.PolicyFlags, criteria.Flags)
	case domain.TriggerToolError:
		return payload.ToolError
	case domain.TriggerAgentRequestedHandoff:
		return payload.Handoff
	default:
		return false
	}
}

func flagsIntersect(payloadFlags, ruleFlags []string) bool {
	if len(payloadFlags) == 0 || len(ruleFlags) == 0 {
		return false
	}
	normalized := make(map[string]bool, len(payloadFlags))
	for _, flag := range NormalizeFlags(payloadFlags) {
		normalized[flag] = true
	}
	for _, flag := range NormalizeFlags(ruleFlags) {
		if normalized[flag] {
			return true
		}
	}
	return false
}
