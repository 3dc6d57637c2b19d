package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/civigo/benefits/internal/policy"
)

// Sentinel errors for rule workflow violations. Callers match with
// errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrNotDraft         = errors.New("rule is not in draft status")
	ErrEffectiveOverlap = errors.New("effective date range overlaps an existing rule")
	ErrDependencyCycle  = errors.New("rule dependencies form a cycle")
)

// InsertDraftRule writes a new rule in draft status together with its
// dependency edges. The rule becomes part of the effective rule base
// only after ApproveRule.
//
// Rejects parameter shapes that do not match the rule type and edges
// that would close a dependency cycle. Validation happens here, at
// write time, never at evaluation time.
func (s *Store) InsertDraftRule(ctx context.Context, rule *policy.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	params, err := policy.MarshalParameters(rule.Parameters)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", rule.ID, err)
	}

	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkDependencyCycle(ctx, tx, rule.ID, rule.DependsOn); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO rules
			(id, program, rule_type, jurisdiction, parameters, effective_date, expiration_date, source_citation, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'draft', ?)
		`,
			rule.ID,
			string(rule.Program),
			string(rule.RuleType),
			rule.Jurisdiction,
			string(params),
			encodeDate(rule.EffectiveDate),
			encodeNullDate(rule.ExpirationDate),
			rule.SourceCitation,
			encodeTime(createdAt),
		)
		if err != nil {
			return fmt.Errorf("insert rule %s: %w", rule.ID, err)
		}

		for _, dep := range rule.DependsOn {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rule_dependencies (rule_id, depends_on) VALUES (?, ?)
				ON CONFLICT(rule_id, depends_on) DO NOTHING
			`, rule.ID, dep); err != nil {
				return fmt.Errorf("insert rule %s dependency %s: %w", rule.ID, dep, err)
			}
		}
		return nil
	})
}

// checkDependencyCycle rejects edges that would let ruleID reach
// itself. The existing graph is acyclic, so any new cycle must pass
// through the new rule's outgoing edges.
func (s *Store) checkDependencyCycle(ctx context.Context, tx *sql.Tx, ruleID string, dependsOn []string) error {
	if len(dependsOn) == 0 {
		return nil
	}
	for _, dep := range dependsOn {
		if dep == ruleID {
			return fmt.Errorf("rule %s depends on itself: %w", ruleID, ErrDependencyCycle)
		}
		var reachable int
		err := tx.QueryRowContext(ctx, `
			WITH RECURSIVE reach(id) AS (
				SELECT ?
				UNION
				SELECT rd.depends_on FROM rule_dependencies rd JOIN reach r ON rd.rule_id = r.id
			)
			SELECT COUNT(*) FROM reach WHERE id = ?
		`, dep, ruleID).Scan(&reachable)
		if err != nil {
			return fmt.Errorf("cycle check for rule %s: %w", ruleID, err)
		}
		if reachable > 0 {
			return fmt.Errorf("rule %s -> %s: %w", ruleID, dep, ErrDependencyCycle)
		}
	}
	return nil
}

// ApproveRule transitions a draft rule to approved, atomically
// expiring the currently effective rule for the same (program,
// rule_type, jurisdiction) key, with deduction rules keyed per
// deduction kind.
//
// The supersession and the activation commit in one transaction:
// concurrent evaluations observe either the old effective rule or the
// new one, never both and never neither. Any overlap that cannot be
// resolved by expiring an open-ended predecessor is refused with
// ErrEffectiveOverlap.
func (s *Store) ApproveRule(ctx context.Context, ruleID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rule, err := scanRuleRow(tx.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, ruleID))
		if err != nil {
			return fmt.Errorf("approve rule %s: %w", ruleID, err)
		}
		if rule.Status != policy.RuleStatusDraft {
			return fmt.Errorf("approve rule %s (status %s): %w", ruleID, rule.Status, ErrNotDraft)
		}

		newEff := encodeDate(rule.EffectiveDate)
		newExp := encodeNullDate(rule.ExpirationDate)

		// Deduction rules version per kind: the standard and shelter
		// deductions coexist under the same rule type.
		var kind string
		if p, ok := rule.Parameters.(*policy.DeductionParams); ok {
			kind = string(p.Kind)
		}

		// Overlapping versions of the same key. Half-open ranges:
		// existing overlaps new iff existing.effective < new.expiration
		// and existing.expiration > new.effective.
		rows, err := tx.QueryContext(ctx, `
			SELECT id, effective_date, expiration_date FROM rules
			WHERE program = ? AND rule_type = ? AND jurisdiction = ?
			  AND IFNULL(json_extract(parameters, '$.kind'), '') = ?
			  AND status IN ('approved', 'superseded')
			  AND (? IS NULL OR effective_date < ?)
			  AND (expiration_date IS NULL OR expiration_date > ?)
			ORDER BY effective_date
		`, string(rule.Program), string(rule.RuleType), rule.Jurisdiction, kind, newExp, newExp, newEff)
		if err != nil {
			return fmt.Errorf("approve rule %s: find overlaps: %w", ruleID, err)
		}

		type overlap struct {
			id        string
			effective string
			expOpen   bool
		}
		var overlaps []overlap
		for rows.Next() {
			var o overlap
			var exp sql.NullString
			if err := rows.Scan(&o.id, &o.effective, &exp); err != nil {
				rows.Close()
				return fmt.Errorf("approve rule %s: %w", ruleID, err)
			}
			o.expOpen = !exp.Valid
			overlaps = append(overlaps, o)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("approve rule %s: %w", ruleID, err)
		}

		for _, o := range overlaps {
			// Only an open-ended predecessor can be superseded cleanly:
			// its expiration becomes the new rule's effective date.
			if !o.expOpen || o.effective >= newEff {
				return fmt.Errorf("approve rule %s: conflicts with %s: %w", ruleID, o.id, ErrEffectiveOverlap)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE rules SET expiration_date = ?, status = 'superseded' WHERE id = ?
			`, newEff, o.id); err != nil {
				return fmt.Errorf("approve rule %s: supersede %s: %w", ruleID, o.id, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE rules SET status = 'approved' WHERE id = ?
		`, ruleID); err != nil {
			return fmt.Errorf("approve rule %s: %w", ruleID, err)
		}
		return nil
	})
}

const ruleSelect = `
	SELECT id, program, rule_type, jurisdiction, parameters,
	       effective_date, expiration_date, source_citation, status, created_at
	FROM rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleRow(row rowScanner) (*policy.Rule, error) {
	var (
		r       policy.Rule
		params  string
		eff     string
		exp     sql.NullString
		created string
	)
	err := row.Scan(&r.ID, &r.Program, &r.RuleType, &r.Jurisdiction, &params,
		&eff, &exp, &r.SourceCitation, &r.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.Parameters, err = policy.UnmarshalParameters([]byte(params)); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if r.EffectiveDate, err = decodeDate(eff); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if r.ExpirationDate, err = decodeNullDate(exp); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = decodeTime(created); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return &r, nil
}

// GetRule fetches one rule by ID, including its dependency edges.
func (s *Store) GetRule(ctx context.Context, id string) (*policy.Rule, error) {
	rule, err := scanRuleRow(s.db.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on FROM rule_dependencies WHERE rule_id = ? ORDER BY depends_on
	`, id)
	if err != nil {
		return nil, fmt.Errorf("rule %s dependencies: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		rule.DependsOn = append(rule.DependsOn, dep)
	}
	return rule, rows.Err()
}

// EffectiveRules returns the rules effective for (program,
// jurisdiction) as of the given date, in deterministic ID order.
// Superseded rules remain resolvable for historical dates; the
// effective-date exclusivity invariant guarantees at most one rule per
// rule key (rule type, plus kind for deductions) in the result.
//
// Implements the engine's RuleResolver.
func (s *Store) EffectiveRules(ctx context.Context, program policy.Program, jurisdiction string, asOf time.Time) ([]policy.Rule, error) {
	date := encodeDate(asOf)
	rows, err := s.db.QueryContext(ctx, ruleSelect+`
		WHERE program = ? AND jurisdiction = ?
		  AND status IN ('approved', 'superseded')
		  AND effective_date <= ?
		  AND (expiration_date IS NULL OR expiration_date > ?)
		ORDER BY id
	`, string(program), jurisdiction, date, date)
	if err != nil {
		return nil, fmt.Errorf("effective rules: %w", err)
	}
	defer rows.Close()

	var rules []policy.Rule
	for rows.Next() {
		r, err := scanRuleRow(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// ListRules returns all rules for a program in ID order (all
// statuses), for authoring and review surfaces.
func (s *Store) ListRules(ctx context.Context, program policy.Program) ([]policy.Rule, error) {
	rows, err := s.db.QueryContext(ctx, ruleSelect+` WHERE program = ? ORDER BY id`, string(program))
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []policy.Rule
	for rows.Next() {
		r, err := scanRuleRow(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// Dependents returns the transitive closure of rules affected by a
// change to ruleID: the rule itself plus every rule whose formula
// depends on it, directly or through intermediate rules. Deterministic
// ID order.
func (s *Store) Dependents(ctx context.Context, ruleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE affected(id) AS (
			SELECT ?
			UNION
			SELECT rd.rule_id FROM rule_dependencies rd JOIN affected a ON rd.depends_on = a.id
		)
		SELECT id FROM affected ORDER BY id
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("dependents of %s: %w", ruleID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
