package repository

import (
	"context"

	"github.com/spec-kit/conversation-orchestrator/internal/domain"
)

// RuleRepository reads the decision-engine configuration: configurable
// handoff rules and the legacy policy table they fall back to.
type RuleRepository interface {
	ListActiveRules(ctx context.Context) ([]domain.HandoffRule, error)
	ListActivePolicies(ctx context.Context) ([]domain.HandoffPolicy, error)
}

type ruleRepository struct {
	db DBTX
}

// NewRuleRepository builds the repository.
func NewRuleRepository(db DBTX) RuleRepository {
	return &ruleRepository{db: db}
}

func (r *ruleRepository) ListActiveRules(ctx context.Context) ([]domain.HandoffRule, error) {
	const query = `
        SELECT id, name, priority, trigger_type, criteria, reason_code, required_skills, is_active, created_at, updated_at
        FROM handoff_rules WHERE is_active
        ORDER BY priority DESC, created_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HandoffRule
	for rows.Next() {
		var rule domain.HandoffRule
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Priority,
			&rule.Trigger,
			&rule.Criteria,
			&rule.ReasonCode,
			&rule.RequiredSkills,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *ruleRepository) ListActivePolicies(ctx context.Context) ([]domain.HandoffPolicy, error) {
	const policyQuery = `
        SELECT id, name, reason_code, priority, required_skills, is_active, created_at
        FROM policies WHERE is_active
        ORDER BY priority DESC, created_at ASC`
	rows, err := r.db.Query(ctx, policyQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []domain.HandoffPolicy
	for rows.Next() {
		var p domain.HandoffPolicy
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.ReasonCode,
			&p.Priority,
			&p.RequiredSkills,
			&p.IsActive,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range policies {
		rules, err := r.listPolicyRules(ctx, policies[i].ID)
		if err != nil {
			return nil, err
		}
		policies[i].Rules = rules
	}
	return policies, nil
}

func (r *ruleRepository) listPolicyRules(ctx context.Context, policyID string) ([]domain.HandoffPolicyRule, error) {
	const query = `
        SELECT id, trigger_type, criteria, priority
        FROM policy_rules WHERE policy_id=$1
        ORDER BY priority DESC, created_at ASC`
	rows, err := r.db.Query(ctx, query, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HandoffPolicyRule
	for rows.Next() {
		var rule domain.HandoffPolicyRule
		if err := rows.Scan(&rule.ID, &rule.Trigger, &rule.Criteria, &rule.Priority); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}
