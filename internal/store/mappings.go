package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/civigo/benefits/internal/policy"
)

// ErrStaleStatus signals a lost compare-and-set on a mapping's review
// status: the mapping was no longer in the expected state.
var ErrStaleStatus = errors.New("mapping is not in the expected review status")

// InsertProvision writes an ingested legislative provision. Provisions
// are immutable source text; there is no update path.
func (s *Store) InsertProvision(ctx context.Context, p *policy.LegislativeProvision) error {
	if p.ID == "" || p.ProvisionText == "" {
		return fmt.Errorf("insert provision: id and text are required")
	}
	if p.IngestedAt.IsZero() {
		p.IngestedAt = time.Now().UTC()
	}

	programs, err := encodeJSON(p.AffectedPrograms)
	if err != nil {
		return fmt.Errorf("insert provision %s: %w", p.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provisions
		(id, public_law_id, section_number, provision_type, provision_text, us_code_citation, affected_programs, effective_date, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.PublicLawID, p.SectionNumber, p.ProvisionType, p.ProvisionText,
		p.USCodeCitation, programs, encodeDate(p.EffectiveDate), encodeTime(p.IngestedAt),
	)
	if err != nil {
		return fmt.Errorf("insert provision %s: %w", p.ID, err)
	}
	return nil
}

// GetProvision fetches one provision by ID.
func (s *Store) GetProvision(ctx context.Context, id string) (*policy.LegislativeProvision, error) {
	var (
		p        policy.LegislativeProvision
		programs sql.NullString
		eff      string
		ingested string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_law_id, section_number, provision_type, provision_text,
		       us_code_citation, affected_programs, effective_date, ingested_at
		FROM provisions WHERE id = ?
	`, id).Scan(&p.ID, &p.PublicLawID, &p.SectionNumber, &p.ProvisionType,
		&p.ProvisionText, &p.USCodeCitation, &programs, &eff, &ingested)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provision %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(programs, &p.AffectedPrograms); err != nil {
		return nil, fmt.Errorf("provision %s: %w", id, err)
	}
	if p.EffectiveDate, err = decodeDate(eff); err != nil {
		return nil, fmt.Errorf("provision %s: %w", id, err)
	}
	if p.IngestedAt, err = decodeTime(ingested); err != nil {
		return nil, fmt.Errorf("provision %s: %w", id, err)
	}
	return &p, nil
}

// InsertMapping writes a proposed provision mapping in pending status.
func (s *Store) InsertMapping(ctx context.Context, m *policy.ProvisionMapping) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("insert mapping: %w", err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.ReviewStatus = policy.ReviewPending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings
		(id, provision_id, rule_id, ontology_term, mapping_type, match_method,
		 ai_confidence_score, citation_match_score, semantic_similarity_score,
		 review_status, priority_level, mapping_reason, impact_description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)
	`,
		m.ID, m.ProvisionID, m.RuleID, m.OntologyTerm,
		string(m.MappingType), string(m.MatchMethod),
		m.AIConfidenceScore.String(), m.CitationMatchScore.String(), m.SemanticSimilarityScore.String(),
		string(m.PriorityLevel), m.MappingReason, m.ImpactDescription, encodeTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert mapping %s: %w", m.ID, err)
	}
	return nil
}

const mappingSelect = `
	SELECT id, provision_id, rule_id, ontology_term, mapping_type, match_method,
	       ai_confidence_score, citation_match_score, semantic_similarity_score,
	       review_status, priority_level, mapping_reason, impact_description,
	       rejection_reason, created_at, reviewed_at, reviewed_by
	FROM mappings`

func scanMappingRow(row rowScanner) (*policy.ProvisionMapping, error) {
	var (
		m        policy.ProvisionMapping
		aiScore  string
		citScore string
		semScore string
		created  string
		reviewed sql.NullString
	)
	err := row.Scan(&m.ID, &m.ProvisionID, &m.RuleID, &m.OntologyTerm,
		&m.MappingType, &m.MatchMethod, &aiScore, &citScore, &semScore,
		&m.ReviewStatus, &m.PriorityLevel, &m.MappingReason, &m.ImpactDescription,
		&m.RejectionReason, &created, &reviewed, &m.ReviewedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if m.AIConfidenceScore, err = decodeDecimal(aiScore); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", m.ID, err)
	}
	if m.CitationMatchScore, err = decodeDecimal(citScore); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", m.ID, err)
	}
	if m.SemanticSimilarityScore, err = decodeDecimal(semScore); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", m.ID, err)
	}
	if m.CreatedAt, err = decodeTime(created); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", m.ID, err)
	}
	if m.ReviewedAt, err = decodeNullTime(reviewed); err != nil {
		return nil, fmt.Errorf("mapping %s: %w", m.ID, err)
	}
	return &m, nil
}

// GetMapping fetches one mapping by ID.
func (s *Store) GetMapping(ctx context.Context, id string) (*policy.ProvisionMapping, error) {
	m, err := scanMappingRow(s.db.QueryRowContext(ctx, mappingSelect+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("mapping %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// PendingMappings returns the review queue: priority descending, then
// AI confidence descending, then creation time ascending (oldest first
// within a tier), with ID as the final deterministic tiebreaker.
func (s *Store) PendingMappings(ctx context.Context) ([]policy.ProvisionMapping, error) {
	rows, err := s.db.QueryContext(ctx, mappingSelect+`
		WHERE review_status = 'pending'
		ORDER BY
			CASE priority_level
				WHEN 'urgent' THEN 3
				WHEN 'high' THEN 2
				WHEN 'normal' THEN 1
				ELSE 0
			END DESC,
			CAST(ai_confidence_score AS REAL) DESC,
			created_at ASC,
			id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("pending mappings: %w", err)
	}
	defer rows.Close()

	var mappings []policy.ProvisionMapping
	for rows.Next() {
		m, err := scanMappingRow(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// TransitionMapping moves a mapping from pending to the given terminal
// status with a compare-and-set guard: if the mapping is not pending
// the update affects zero rows and ErrStaleStatus is returned, leaving
// state unchanged. Terminal states never transition again.
func (s *Store) TransitionMapping(ctx context.Context, id string, to policy.ReviewStatus, reason, reviewedBy string) error {
	if !to.Terminal() {
		return fmt.Errorf("transition mapping %s: %q is not a terminal status", id, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE mappings
		SET review_status = ?, rejection_reason = ?, reviewed_at = ?, reviewed_by = ?
		WHERE id = ? AND review_status = 'pending'
	`, string(to), reason, encodeTime(time.Now().UTC()), reviewedBy, id)
	if err != nil {
		return fmt.Errorf("transition mapping %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing mapping from a terminal one.
		if _, getErr := s.GetMapping(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("mapping %s: %w", id, ErrStaleStatus)
	}
	return nil
}

// EnqueueObligations records re-verification obligations for the given
// rules. At-least-once semantics: the UNIQUE(rule_id, mapping_id)
// constraint makes replayed approvals idempotent.
func (s *Store) EnqueueObligations(ctx context.Context, mappingID string, ruleIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := encodeTime(time.Now().UTC())
		for _, ruleID := range ruleIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO obligations (id, rule_id, mapping_id, status, created_at)
				VALUES (?, ?, ?, 'pending', ?)
				ON CONFLICT(rule_id, mapping_id) DO NOTHING
			`, uuid.NewString(), ruleID, mappingID, now); err != nil {
				return fmt.Errorf("enqueue obligation for rule %s: %w", ruleID, err)
			}
		}
		return nil
	})
}

// PendingObligations returns pending re-verification obligations in
// creation order.
func (s *Store) PendingObligations(ctx context.Context) ([]policy.ReverificationObligation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, mapping_id, status, created_at, satisfied_by_run_id
		FROM obligations WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("pending obligations: %w", err)
	}
	defer rows.Close()

	var obligations []policy.ReverificationObligation
	for rows.Next() {
		var (
			o       policy.ReverificationObligation
			created string
		)
		if err := rows.Scan(&o.ID, &o.RuleID, &o.MappingID, &o.Status, &created, &o.SatisfiedByRunID); err != nil {
			return nil, err
		}
		if o.CreatedAt, err = decodeTime(created); err != nil {
			return nil, fmt.Errorf("obligation %s: %w", o.ID, err)
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}

// SatisfyObligations marks the given obligations satisfied by a run.
// Satisfying an already-satisfied obligation is harmless (re-delivery
// tolerance).
func (s *Store) SatisfyObligations(ctx context.Context, obligationIDs []string, runID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range obligationIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE obligations SET status = 'satisfied', satisfied_by_run_id = ?
				WHERE id = ? AND status = 'pending'
			`, runID, id); err != nil {
				return fmt.Errorf("satisfy obligation %s: %w", id, err)
			}
		}
		return nil
	})
}
