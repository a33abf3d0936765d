package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// EpisodeStore persists episodes and their segments as ingested by
// collaborators. The Engine never mutates a row once written here — only
// IngestEpisode (called once per source) and the read paths are exposed.
type EpisodeStore struct {
	db *sql.DB
}

// NewEpisodeStore constructs an EpisodeStore.
func NewEpisodeStore(db *sql.DB) *EpisodeStore {
	return &EpisodeStore{db: db}
}

// IngestEpisode writes an Episode and its Segments. Called once per source;
// a second call for the same source_id is a no-op (ON CONFLICT DO NOTHING)
// since Episodes are immutable to the Engine.
func (s *EpisodeStore) IngestEpisode(ctx context.Context, ep models.Episode) error {
	if err := ep.ValidateOrdering(); err != nil {
		return fmt.Errorf("invalid segment ordering: %w", err)
	}

	speakersJSON, err := json.Marshal(ep.Speakers)
	if err != nil {
		return fmt.Errorf("marshal speakers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO episodes (source_id, title, duration, speakers)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id) DO NOTHING`,
		ep.SourceID, ep.Title, ep.Duration, speakersJSON)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}

	for _, seg := range ep.Segments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO segments (episode_source_id, segment_id, speaker, t0, t1, text)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (episode_source_id, segment_id) DO NOTHING`,
			ep.SourceID, seg.SegmentID, seg.Speaker, seg.T0, seg.T1, seg.Text)
		if err != nil {
			return fmt.Errorf("insert segment %s: %w", seg.SegmentID, err)
		}
	}

	return tx.Commit()
}

// GetEpisode reads back an Episode with its Segments ordered by t0.
func (s *EpisodeStore) GetEpisode(ctx context.Context, sourceID string) (*models.Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT source_id, title, duration, speakers FROM episodes WHERE source_id = $1`, sourceID)
	var ep models.Episode
	var speakersJSON []byte
	if err := row.Scan(&ep.SourceID, &ep.Title, &ep.Duration, &speakersJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan episode: %w", err)
	}
	_ = json.Unmarshal(speakersJSON, &ep.Speakers)

	rows, err := s.db.QueryContext(ctx, `
		SELECT segment_id, speaker, t0, t1, text FROM segments
		WHERE episode_source_id = $1 ORDER BY t0 ASC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var seg models.Segment
		seg.EpisodeSourceID = sourceID
		if err := rows.Scan(&seg.SegmentID, &seg.Speaker, &seg.T0, &seg.T1, &seg.Text); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		ep.Segments = append(ep.Segments, seg)
	}
	return &ep, rows.Err()
}

// SaveMinerOutput upserts one segment's MinerOutput (C3's write path).
func (s *EpisodeStore) SaveMinerOutput(ctx context.Context, out models.MinerOutput) error {
	claims, _ := json.Marshal(out.Claims)
	jargon, _ := json.Marshal(out.Jargon)
	people, _ := json.Marshal(out.People)
	mentalModels, _ := json.Marshal(out.MentalModels)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO miner_outputs (episode_source_id, segment_id, claims, jargon, people, mental_models, empty_with_error, error_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), now())
		ON CONFLICT (episode_source_id, segment_id) DO UPDATE SET
			claims = EXCLUDED.claims, jargon = EXCLUDED.jargon, people = EXCLUDED.people,
			mental_models = EXCLUDED.mental_models, empty_with_error = EXCLUDED.empty_with_error,
			error_reason = EXCLUDED.error_reason, updated_at = now()`,
		out.EpisodeSourceID, out.SegmentID, claims, jargon, people, mentalModels, out.EmptyWithError, out.ErrorReason)
	if err != nil {
		return fmt.Errorf("save miner output: %w", err)
	}
	return nil
}

// ListMinerOutputs returns every MinerOutput for an episode, sorted
// deterministically by segment_id per spec.md §5 ordering guarantees.
func (s *EpisodeStore) ListMinerOutputs(ctx context.Context, episodeSourceID string) ([]models.MinerOutput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT segment_id, claims, jargon, people, mental_models, empty_with_error, coalesce(error_reason, '')
		FROM miner_outputs WHERE episode_source_id = $1 ORDER BY segment_id ASC`, episodeSourceID)
	if err != nil {
		return nil, fmt.Errorf("list miner outputs: %w", err)
	}
	defer rows.Close()

	var out []models.MinerOutput
	for rows.Next() {
		m := models.MinerOutput{EpisodeSourceID: episodeSourceID}
		var claims, jargon, people, mentalModels []byte
		if err := rows.Scan(&m.SegmentID, &claims, &jargon, &people, &mentalModels, &m.EmptyWithError, &m.ErrorReason); err != nil {
			return nil, fmt.Errorf("scan miner output: %w", err)
		}
		_ = json.Unmarshal(claims, &m.Claims)
		_ = json.Unmarshal(jargon, &m.Jargon)
		_ = json.Unmarshal(people, &m.People)
		_ = json.Unmarshal(mentalModels, &m.MentalModels)
		out = append(out, m)
	}
	return out, rows.Err()
}
