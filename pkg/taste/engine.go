package taste

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// Config is the Taste Engine's startup configuration, generalizing
// taste_engine.py's TasteEngine.__init__ parameters to this package's
// Postgres-backed store.
type Config struct {
	BackupDir       string         `yaml:"backup_dir"`                // directory for JSON snapshot backups; empty disables backups
	BackupCount     int            `yaml:"backup_count" validate:"min=0"` // how many rotating backups to keep (default 5)
	AutoLoadGolden  bool           `yaml:"auto_load_golden"`
	Embedder        EmbedderConfig `yaml:"embedder"`
	Filter          FilterConfig   `yaml:"filter"`
	ReasonsOverride []byte         `yaml:"-"` // optional operator-supplied feedback_reasons.yaml; nil uses the built-in taxonomy
}

// DefaultConfig mirrors taste_engine.py's constructor defaults.
func DefaultConfig() Config {
	return Config{
		BackupCount:    5,
		AutoLoadGolden: true,
		Embedder:       DefaultEmbedderConfig(),
		Filter:         DefaultFilterConfig(),
	}
}

// Engine is the Taste Engine (C6): the Store plus the cold-start/backup
// lifecycle taste_engine.py's TasteEngine class owns.
type Engine struct {
	Store    *Store
	Embedder Embedder
	Filter   *Filter
	FewShot  *FewShotSource
	Reasons  *ReasonsConfig
	backup   *BackupManager
}

// NewEngine constructs and cold-starts the Taste Engine: backs up existing
// data, loads the reasons taxonomy, and loads/reloads the golden set if its
// schema_version has changed (mirrors TasteEngine.__init__ end to end).
func NewEngine(ctx context.Context, db *sql.DB, httpClient *http.Client, cfg Config) (*Engine, error) {
	store := NewStore(db)
	embedder := NewEmbedder(cfg.Embedder, httpClient)

	e := &Engine{
		Store:    store,
		Embedder: embedder,
		Filter:   NewFilter(store, embedder, cfg.Filter),
		FewShot:  NewFewShotSource(store, embedder, 3),
	}

	if cfg.BackupDir != "" {
		e.backup = NewBackupManager(db, cfg.BackupDir, cfg.BackupCount)
		if err := e.backup.BackupOnStartup(ctx); err != nil {
			slog.Error("taste engine startup backup failed", "error", err)
		}
	}

	reasons, err := LoadReasonsConfig(cfg.ReasonsOverride)
	if err != nil {
		return nil, fmt.Errorf("load feedback reasons config: %w", err)
	}
	e.Reasons = reasons

	if cfg.AutoLoadGolden {
		n, err := LoadGoldenSet(ctx, db, store, embedder)
		if err != nil {
			slog.Error("golden set load failed", "error", err)
		} else if n > 0 {
			slog.Info("golden set loaded", "examples", n)
		}
	}

	stats, err := store.GetStats(ctx)
	if err == nil {
		slog.Info("taste engine initialized", "total_examples", stats.Total)
	}

	return e, nil
}

// AddFeedback validates the reason_category (falling back to "other" with a
// warning, per feedback_config.py), embeds the entity text, and stores the
// example. Used by the Feedback Intake Worker (C7).
func (e *Engine) AddFeedback(ctx context.Context, fb models.FeedbackExample) (string, error) {
	fb.ReasonCategory = e.Reasons.Normalize(fb.EntityType, fb.Verdict, fb.ReasonCategory)
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}

	embedding, err := e.Embedder.Embed(ctx, fb.EntityText)
	if err != nil {
		return "", fmt.Errorf("embed feedback text: %w", err)
	}

	id, err := e.Store.Add(ctx, fb, embedding)
	if err != nil {
		return "", fmt.Errorf("store feedback: %w", err)
	}
	return id, nil
}
