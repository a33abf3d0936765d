package taste

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// BackupManager snapshots the feedback_examples table to timestamped JSON
// files and rotates old ones away, the Postgres-backed equivalent of
// taste_engine.py's shutil.copytree-based ChromaDB directory backup (there
// is no on-disk database directory to copy here, so the snapshot is a JSON
// export of the table's rows instead).
type BackupManager struct {
	db        *sql.DB
	dir       string
	keepCount int
}

// NewBackupManager constructs a BackupManager. keepCount mirrors
// taste_engine.py's MAX_BACKUPS (default 5).
func NewBackupManager(db *sql.DB, dir string, keepCount int) *BackupManager {
	if keepCount <= 0 {
		keepCount = 5
	}
	return &BackupManager{db: db, dir: dir, keepCount: keepCount}
}

type backupRow struct {
	models.FeedbackExample
	Embedding []float32 `json:"embedding"`
}

type backupFile struct {
	CreatedAt time.Time   `json:"created_at"`
	Rows      []backupRow `json:"rows"`
}

// BackupOnStartup exports the current table contents to a new timestamped
// file and rotates older backups away, mirroring _backup_on_startup /
// _rotate_backups. A backup is skipped if the table is currently empty,
// matching the teacher's "nothing to back up" short-circuit.
func (b *BackupManager) BackupOnStartup(ctx context.Context) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	rows, err := b.exportRows(ctx)
	if err != nil {
		return fmt.Errorf("export rows for backup: %w", err)
	}
	if len(rows) == 0 {
		slog.Debug("no existing feedback examples to back up")
		return nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	path := filepath.Join(b.dir, fmt.Sprintf("backup_%s.json", timestamp))

	data, err := json.Marshal(backupFile{CreatedAt: time.Now(), Rows: rows})
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write backup file: %w", err)
	}
	slog.Info("created taste engine backup", "path", path, "rows", len(rows))

	return b.rotate()
}

func (b *BackupManager) exportRows(ctx context.Context) ([]backupRow, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_text, verdict, reason_category, user_notes,
		       source_id, is_golden, created_at
		FROM feedback_examples`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []backupRow
	for rows.Next() {
		var r backupRow
		if err := rows.Scan(&r.ID, &r.EntityType, &r.EntityText, &r.Verdict, &r.ReasonCategory,
			&r.UserNotes, &r.SourceID, &r.IsGolden, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rotate deletes old backups, keeping only the most recent keepCount.
func (b *BackupManager) rotate() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}

	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "backup_") {
			backups = append(backups, e.Name())
		}
	}
	sort.Strings(backups) // timestamp-named, lexical sort is chronological

	if len(backups) <= b.keepCount {
		return nil
	}
	for _, old := range backups[:len(backups)-b.keepCount] {
		path := filepath.Join(b.dir, old)
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to delete old taste engine backup", "path", path, "error", err)
			continue
		}
		slog.Info("deleted old taste engine backup", "path", path)
	}
	return nil
}
