package taste

import (
	"os"
	"path/filepath"
	"testing"
)

// TestRotate_KeepsOnlyMostRecentN exercises the rotation arithmetic directly
// against the filesystem, without a database (BackupOnStartup's export step
// needs a live *sql.DB; rotate() operates purely on directory contents).
func TestRotate_KeepsOnlyMostRecentN(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"backup_2026-01-01_00-00-00.json",
		"backup_2026-01-02_00-00-00.json",
		"backup_2026-01-03_00-00-00.json",
		"backup_2026-01-04_00-00-00.json",
		"backup_2026-01-05_00-00-00.json",
		"backup_2026-01-06_00-00-00.json",
		"backup_2026-01-07_00-00-00.json",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("{}"), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", n, err)
		}
	}

	b := NewBackupManager(nil, dir, 5)
	if err := b.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 backups retained, got %d", len(entries))
	}
	// The oldest two (01 and 02) should have been deleted.
	for _, stale := range names[:2] {
		if _, err := os.Stat(filepath.Join(dir, stale)); err == nil {
			t.Errorf("expected %s to be rotated away", stale)
		}
	}
	for _, kept := range names[2:] {
		if _, err := os.Stat(filepath.Join(dir, kept)); err != nil {
			t.Errorf("expected %s to survive rotation: %v", kept, err)
		}
	}
}

func TestNewBackupManager_DefaultsKeepCount(t *testing.T) {
	b := NewBackupManager(nil, t.TempDir(), 0)
	if b.keepCount != 5 {
		t.Errorf("expected default keepCount 5, got %d", b.keepCount)
	}
}
