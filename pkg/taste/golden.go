package taste

import (
	_ "embed"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

//go:embed data/golden_feedback.json
var embeddedGoldenSet []byte

type goldenFile struct {
	SchemaVersion string          `json:"schema_version"`
	Examples      []goldenExample `json:"examples"`
}

type goldenExample struct {
	EntityType     string `json:"entity_type"`
	EntityText     string `json:"entity_text"`
	Verdict        string `json:"verdict"`
	ReasonCategory string `json:"reason_category"`
	UserNotes      string `json:"user_notes"`
}

// LoadGoldenSet checks the persisted golden_set_version row against the
// embedded golden set's schema_version and reloads it when they differ (or
// when the store is empty), mirroring taste_engine.py's
// _check_and_load_golden_set. Returns the number of examples (re)ingested.
func LoadGoldenSet(ctx context.Context, db *sql.DB, store *Store, embedder Embedder) (int, error) {
	var file goldenFile
	if err := json.Unmarshal(embeddedGoldenSet, &file); err != nil {
		return 0, fmt.Errorf("parse embedded golden set: %w", err)
	}

	loadedVersion, err := loadedGoldenVersion(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read golden version: %w", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count feedback examples: %w", err)
	}

	if loadedVersion == file.SchemaVersion && count > 0 {
		slog.Debug("golden set already loaded", "version", file.SchemaVersion)
		return 0, nil
	}

	if loadedVersion != "" && loadedVersion != file.SchemaVersion {
		slog.Info("golden set version changed, reloading", "from", loadedVersion, "to", file.SchemaVersion)
		if _, err := store.DeleteGolden(ctx); err != nil {
			return 0, fmt.Errorf("delete stale golden examples: %w", err)
		}
	}

	n, err := ingestGoldenSet(ctx, store, embedder, file.Examples)
	if err != nil {
		return n, err
	}

	if err := saveGoldenVersion(ctx, db, file.SchemaVersion); err != nil {
		return n, fmt.Errorf("save golden version: %w", err)
	}
	return n, nil
}

func loadedGoldenVersion(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	err := db.QueryRowContext(ctx, `SELECT version FROM golden_set_version WHERE id`).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return version, nil
}

func saveGoldenVersion(ctx context.Context, db *sql.DB, version string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO golden_set_version (id, version) VALUES (true, $1)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version`, version)
	return err
}

func ingestGoldenSet(ctx context.Context, store *Store, embedder Embedder, examples []goldenExample) (int, error) {
	count := 0
	for _, ex := range examples {
		embedding, err := embedder.Embed(ctx, ex.EntityText)
		if err != nil {
			slog.Warn("failed to embed golden example, skipping", "entity_text", ex.EntityText, "error", err)
			continue
		}

		fb := models.FeedbackExample{
			EntityType:     models.EntityType(ex.EntityType),
			EntityText:     ex.EntityText,
			Verdict:        models.Verdict(ex.Verdict),
			ReasonCategory: ex.ReasonCategory,
			UserNotes:      ex.UserNotes,
			SourceID:       "golden_set",
			IsGolden:       true,
			CreatedAt:      time.Now(),
		}
		if _, err := store.Add(ctx, fb, embedding); err != nil {
			slog.Warn("failed to ingest golden example", "entity_text", ex.EntityText, "error", err)
			continue
		}
		count++
	}
	slog.Info("loaded golden feedback examples", "count", count)
	return count, nil
}
