package taste

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// Store is the pgvector-backed feedback_examples table, the Engine's
// replacement for the teacher's ChromaDB PersistentClient. Grounded on
// MrWong99-glyphoxa's pkg/memory/postgres/semantic_index.go (vector column
// + cosine-distance query shape), adapted from pgxpool to database/sql to
// match every other store in this package.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add inserts one feedback example with its embedding, returning the
// generated row ID.
func (s *Store) Add(ctx context.Context, fb models.FeedbackExample, embedding []float32) (string, error) {
	id := fmt.Sprintf("%s_%s_%d", fb.EntityType, fb.Verdict, time.Now().UnixNano())
	vec := pgvector.NewVector(embedding)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_examples
			(id, entity_type, entity_text, verdict, reason_category, user_notes,
			 source_id, is_golden, created_at, embedding)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		id, string(fb.EntityType), fb.EntityText, string(fb.Verdict), fb.ReasonCategory,
		fb.UserNotes, fb.SourceID, fb.IsGolden, fb.CreatedAt, vec)
	if err != nil {
		return "", fmt.Errorf("insert feedback example: %w", err)
	}
	return id, nil
}

// HasExample reports whether an example with the same entity_type, verdict,
// and exact entity_text already exists, backing the Feedback Intake Worker's
// (C7) dedup check.
func (s *Store) HasExample(ctx context.Context, entityType models.EntityType, verdict models.Verdict, entityText string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM feedback_examples
			WHERE entity_type = $1 AND verdict = $2 AND entity_text = $3
		)`, string(entityType), string(verdict), entityText).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing example: %w", err)
	}
	return exists, nil
}

// QueryFilter narrows a similarity search by entity type and/or verdict.
type QueryFilter struct {
	EntityType models.EntityType
	Verdict    models.Verdict
}

// QuerySimilar finds the nResults closest feedback examples to embedding by
// cosine distance, converted to a 0..1 similarity score (higher = more
// similar), mirroring taste_engine.py's query_similar.
func (s *Store) QuerySimilar(ctx context.Context, embedding []float32, filter QueryFilter, nResults int) ([]models.SimilarExample, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = "+next(string(filter.EntityType)))
	}
	if filter.Verdict != "" {
		conditions = append(conditions, "verdict = "+next(string(filter.Verdict)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, nResults)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT entity_text, verdict, reason_category, source_id, is_golden,
		       embedding <=> $1 AS distance
		FROM feedback_examples
		%s
		ORDER BY distance
		LIMIT %s`, where, limitArg)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar examples: %w", err)
	}
	defer rows.Close()

	var out []models.SimilarExample
	for rows.Next() {
		var (
			text, verdict, reason, sourceID string
			isGolden                        bool
			distance                        float64
		)
		if err := rows.Scan(&text, &verdict, &reason, &sourceID, &isGolden, &distance); err != nil {
			return nil, fmt.Errorf("scan similar example: %w", err)
		}
		out = append(out, models.SimilarExample{
			Text: text,
			// ChromaDB returned L2 distance and taste_engine.py converted via
			// 1/(1+distance); pgvector's cosine operator already returns
			// distance in [0,2], so similarity = 1 - distance/2 keeps the
			// same "higher is more similar" meaning in [0,1].
			Similarity: 1 - distance/2,
			Verdict:    models.Verdict(verdict),
			Metadata: map[string]string{
				"reason_category": reason,
				"source_id":       sourceID,
				"is_golden":       fmt.Sprintf("%t", isGolden),
			},
		})
	}
	return out, rows.Err()
}

// DeleteGolden removes every example flagged is_golden, used when the golden
// set's schema_version changes and the old cohort must be replaced.
func (s *Store) DeleteGolden(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback_examples WHERE is_golden`)
	if err != nil {
		return 0, fmt.Errorf("delete golden examples: %w", err)
	}
	return res.RowsAffected()
}

// StoreStats summarizes the store's contents for operator visibility.
type StoreStats struct {
	Total    int
	Accepts  int
	Rejects  int
	Golden   int
	UserOnly int
}

// GetStats mirrors taste_engine.py's get_stats.
func (s *Store) GetStats(ctx context.Context) (StoreStats, error) {
	var st StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE verdict = 'accept'),
		       count(*) FILTER (WHERE verdict = 'reject'),
		       count(*) FILTER (WHERE is_golden)
		FROM feedback_examples`).Scan(&st.Total, &st.Accepts, &st.Rejects, &st.Golden)
	if err != nil {
		return StoreStats{}, fmt.Errorf("get stats: %w", err)
	}
	st.UserOnly = st.Total - st.Golden
	return st, nil
}

// Count returns the total number of stored examples, used by the golden-set
// cold-start check (empty store always reloads regardless of version file).
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM feedback_examples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count examples: %w", err)
	}
	return n, nil
}
