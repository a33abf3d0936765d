package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// QuestionStore persists Questions and ClaimQuestionMappings for the
// Question Mapper (C8).
type QuestionStore struct {
	db *sql.DB
}

// NewQuestionStore constructs a QuestionStore.
func NewQuestionStore(db *sql.DB) *QuestionStore {
	return &QuestionStore{db: db}
}

// ListByDomains returns existing questions whose domain is in domains, or
// every question if domains is empty (the explicit fallback spec.md §9
// calls out: conservative, not incidental).
func (s *QuestionStore) ListByDomains(ctx context.Context, domains []string) ([]models.Question, error) {
	var rows *sql.Rows
	var err error
	if len(domains) == 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT question_id, question_text, question_type, domain, importance_score, reviewed, coalesce(deprecated_into, '')
			FROM questions WHERE deprecated_into = '' OR deprecated_into IS NULL`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT question_id, question_text, question_type, domain, importance_score, reviewed, coalesce(deprecated_into, '')
			FROM questions WHERE domain = ANY($1::text[]) AND (deprecated_into = '' OR deprecated_into IS NULL)`, pqArray(domains))
	}
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.QuestionID, &q.QuestionText, &q.QuestionType, &q.Domain, &q.ImportanceScore, &q.Reviewed, &q.DeprecatedInto); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// CreateQuestion inserts a newly discovered (or merge-created) question.
func (s *QuestionStore) CreateQuestion(ctx context.Context, q models.Question) (*models.Question, error) {
	if q.QuestionID == "" {
		q.QuestionID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (question_id, question_text, question_type, domain, importance_score, reviewed)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		q.QuestionID, q.QuestionText, q.QuestionType, q.Domain, q.ImportanceScore, q.Reviewed)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return &q, nil
}

// MergeInto rewrites every mapping from oldID to newID and marks oldID
// deprecated (spec.md §4.8 merge_existing_into_new persistence policy).
func (s *QuestionStore) MergeInto(ctx context.Context, oldID, newID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Move mappings, skipping any that would collide with an existing
	// (claim_id, question_id) row under newID.
	_, err = tx.ExecContext(ctx, `
		UPDATE claim_question_mappings m
		SET question_id = $2
		WHERE m.question_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM claim_question_mappings m2
			WHERE m2.claim_id = m.claim_id AND m2.question_id = $2
		  )`, oldID, newID)
	if err != nil {
		return fmt.Errorf("rewrite mappings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM claim_question_mappings WHERE question_id = $1`, oldID); err != nil {
		return fmt.Errorf("drop stale mappings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE questions SET deprecated_into = $2, updated_at = now() WHERE question_id = $1`, oldID, newID); err != nil {
		return fmt.Errorf("mark deprecated: %w", err)
	}
	return tx.Commit()
}

// SaveMappings persists ClaimQuestionMappings whose relevance_score already
// passed the min_relevance filter (the caller's responsibility — this store
// enforces the invariant is true at persistence time as a defense in depth).
func (s *QuestionStore) SaveMappings(ctx context.Context, minRelevance float64, mappings []models.ClaimQuestionMapping) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	saved := 0
	for _, m := range mappings {
		if m.RelevanceScore < minRelevance {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO claim_question_mappings (claim_id, question_id, relation_type, relevance_score)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (claim_id, question_id) DO UPDATE SET
				relation_type = EXCLUDED.relation_type, relevance_score = EXCLUDED.relevance_score`,
			m.ClaimID, m.QuestionID, m.RelationType, m.RelevanceScore)
		if err != nil {
			return saved, fmt.Errorf("insert mapping: %w", err)
		}
		saved++
	}
	return saved, tx.Commit()
}

// pqArray renders a Go string slice as a Postgres text[] literal for ANY($1).
func pqArray(ss []string) string {
	out := "{"
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += `"` + escapeArrayElem(s) + `"`
	}
	return out + "}"
}

func escapeArrayElem(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
