package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// ClaimStore persists EvaluatedClaims and exposes the optimistic-concurrency
// edit path the Review UI collaborator uses (spec.md §6, scenario 6).
type ClaimStore struct {
	db *sql.DB
}

// NewClaimStore constructs a ClaimStore.
func NewClaimStore(db *sql.DB) *ClaimStore {
	return &ClaimStore{db: db}
}

// SaveAll replaces the evaluated-claim set for an episode's current
// evaluation run, written once per run (spec.md ownership summary). Existing
// rows for the episode are deleted first so reruns don't leave stale ranks.
func (s *ClaimStore) SaveAll(ctx context.Context, episodeSourceID string, claims []models.EvaluatedClaim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM evaluated_claims WHERE episode_source_id = $1`, episodeSourceID); err != nil {
		return fmt.Errorf("clear prior claims: %w", err)
	}

	for _, c := range claims {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO evaluated_claims
				(claim_id, episode_source_id, segment_id, canonical, claim_text, claim_type, decision,
				 importance, pre_filter_importance, novelty, confidence_final, tier, rank, reasoning, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now())`,
			c.ClaimID, episodeSourceID, c.SegmentID, c.Canonical, c.ClaimText, c.ClaimType, c.Decision,
			c.Importance, c.PreFilterImportance, c.Novelty, c.ConfidenceFinal, c.Tier, c.Rank, c.Reasoning)
		if err != nil {
			return fmt.Errorf("insert claim %s: %w", c.ClaimID, err)
		}
	}

	return tx.Commit()
}

// ListByEpisode returns accepted-and-rejected claims for an episode, ordered
// by rank (spec.md §4.4 tie-break / ranking invariant).
func (s *ClaimStore) ListByEpisode(ctx context.Context, episodeSourceID string) ([]models.EvaluatedClaim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_id, episode_source_id, segment_id, canonical, claim_text, claim_type, decision,
		       importance, pre_filter_importance, novelty, confidence_final, tier, rank, reasoning,
		       extract(epoch from updated_at)
		FROM evaluated_claims WHERE episode_source_id = $1 ORDER BY rank ASC`, episodeSourceID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []models.EvaluatedClaim
	for rows.Next() {
		var c models.EvaluatedClaim
		var updatedAtEpoch float64
		if err := rows.Scan(&c.ClaimID, &c.EpisodeSourceID, &c.SegmentID, &c.Canonical, &c.ClaimText, &c.ClaimType,
			&c.Decision, &c.Importance, &c.PreFilterImportance, &c.Novelty, &c.ConfidenceFinal, &c.Tier, &c.Rank,
			&c.Reasoning, &updatedAtEpoch); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		c.UpdatedAt = int64(updatedAtEpoch * 1e9)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimEdit is the set of fields the Review UI collaborator may change.
type ClaimEdit struct {
	Importance *int
	Decision   *models.Decision
	Reasoning  *string
}

// UpdateWithVersion applies an edit only if expectedUpdatedAtNanos matches
// the row's current updated_at, returning ErrConcurrentModification
// otherwise (spec.md §6/§7/§8 scenario 6).
func (s *ClaimStore) UpdateWithVersion(ctx context.Context, claimID string, expectedUpdatedAtNanos int64, edit ClaimEdit) error {
	expected := time.Unix(0, expectedUpdatedAtNanos).UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current time.Time
	var importance int
	if err := tx.QueryRowContext(ctx, `SELECT updated_at, importance FROM evaluated_claims WHERE claim_id = $1 FOR UPDATE`, claimID).Scan(&current, &importance); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("lock claim: %w", err)
	}

	if !current.Truncate(time.Microsecond).Equal(expected.Truncate(time.Microsecond)) {
		return ErrConcurrentModification
	}

	if edit.Importance != nil {
		importance = *edit.Importance
	}
	tier := models.TierFor(importance)
	decision := models.DecisionAccept
	if tier == "" {
		decision = models.DecisionReject
	}
	if edit.Decision != nil {
		decision = *edit.Decision
	}
	reasoning := sql.NullString{}
	if edit.Reasoning != nil {
		reasoning = sql.NullString{String: *edit.Reasoning, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE evaluated_claims
		SET importance = $2, tier = $3, decision = $4,
		    reasoning = COALESCE(NULLIF($5, ''), reasoning), updated_at = now()
		WHERE claim_id = $1`, claimID, importance, tier, decision, reasoning.String)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}

	return tx.Commit()
}
