package state

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fsentry/internal/logging"
	"fsentry/internal/snapshot"
)

func setupManager(t *testing.T) (*Manager, string) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "state-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	m, err := NewManager(
		filepath.Join(tempDir, "hashes.json"),
		filepath.Join(tempDir, "hashes_backup.json"),
	)
	if err != nil {
		t.Fatalf("Failed to create state manager: %v", err)
	}
	return m, tempDir
}

func testSnapshot(t *testing.T, files map[string]string) snapshot.Snapshot {
	t.Helper()
	s := make(snapshot.Snapshot, len(files))
	for p, hexDigest := range files {
		var d snapshot.Digest
		if err := d.UnmarshalText([]byte(hexDigest)); err != nil {
			t.Fatalf("Bad test digest: %v", err)
		}
		s[p] = d
	}
	return s
}

const (
	digestA = "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"
	digestB = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
)

func TestLoadEmptyOnFirstRun(t *testing.T) {
	m, _ := setupManager(t)

	snap, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("Expected empty snapshot on first run, got %v", snap)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m, _ := setupManager(t)

	want := testSnapshot(t, map[string]string{
		"a.txt":     digestA,
		"sub/b.txt": digestB,
	})
	if err := m.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestBackupReflectsPreviousState(t *testing.T) {
	m, _ := setupManager(t)

	first := testSnapshot(t, map[string]string{"a.txt": digestA})
	second := testSnapshot(t, map[string]string{"a.txt": digestB})

	if err := m.Save(first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	// No backup yet: there was no previous state to preserve
	if _, err := os.Stat(m.BackupPath()); !os.IsNotExist(err) {
		t.Errorf("Expected no backup after first save, stat err = %v", err)
	}

	if err := m.Save(second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	primary, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !primary.Equal(second) {
		t.Errorf("Expected primary to hold second snapshot, got %v", primary)
	}

	backupData, err := os.ReadFile(m.BackupPath())
	if err != nil {
		t.Fatalf("Failed to read backup: %v", err)
	}
	var backup snapshot.Snapshot
	if err := backup.UnmarshalJSON(backupData); err != nil {
		t.Fatalf("Backup is not parseable: %v", err)
	}
	if !backup.Equal(first) {
		t.Errorf("Expected backup to hold first snapshot, got %v", backup)
	}
}

func TestLoadCorruptPrimary(t *testing.T) {
	m, _ := setupManager(t)

	if err := os.WriteFile(m.StatePath(), []byte("{not json"), 0600); err != nil {
		t.Fatalf("Failed to corrupt state file: %v", err)
	}

	_, err := m.Load()
	if err == nil {
		t.Fatal("Expected error for corrupt state file")
	}
	if !errors.Is(err, ErrCorruptState) {
		t.Errorf("Expected ErrCorruptState, got %v", err)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("falls back to backup", func(t *testing.T) {
		m, _ := setupManager(t)

		first := testSnapshot(t, map[string]string{"a.txt": digestA})
		second := testSnapshot(t, map[string]string{"a.txt": digestB})
		if err := m.Save(first); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := m.Save(second); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		// Corrupt the primary; the backup still holds the first snapshot
		if err := os.WriteFile(m.StatePath(), []byte("garbage"), 0600); err != nil {
			t.Fatalf("Failed to corrupt state file: %v", err)
		}

		snap, err := m.LoadWithFallback()
		if err != nil {
			t.Fatalf("LoadWithFallback failed: %v", err)
		}
		if !snap.Equal(first) {
			t.Errorf("Expected backup snapshot, got %v", snap)
		}
	})

	t.Run("falls back to empty when backup missing", func(t *testing.T) {
		m, _ := setupManager(t)

		// Corrupt primary, no backup was ever written
		if err := os.WriteFile(m.StatePath(), []byte("garbage"), 0600); err != nil {
			t.Fatalf("Failed to corrupt state file: %v", err)
		}

		var buf bytes.Buffer
		root := logging.GetLogger()
		root.SetOutput(&buf)
		defer root.SetOutput(os.Stdout)

		snap, err := m.LoadWithFallback()
		if err != nil {
			t.Fatalf("LoadWithFallback failed: %v", err)
		}
		if len(snap) != 0 {
			t.Errorf("Expected empty snapshot, got %v", snap)
		}

		// The empty fallback must be surfaced, not misreported as a
		// backup recovery
		logs := buf.String()
		if strings.Contains(logs, "Recovered state from backup") {
			t.Errorf("Expected no recovery claim without a backup, got %q", logs)
		}
		if !strings.Contains(logs, "starting from empty state") {
			t.Errorf("Expected empty-state warning, got %q", logs)
		}
	})

	t.Run("falls back to empty when both corrupt", func(t *testing.T) {
		m, _ := setupManager(t)

		if err := os.WriteFile(m.StatePath(), []byte("garbage"), 0600); err != nil {
			t.Fatalf("Failed to corrupt state file: %v", err)
		}
		if err := os.WriteFile(m.BackupPath(), []byte("more garbage"), 0600); err != nil {
			t.Fatalf("Failed to corrupt backup file: %v", err)
		}

		snap, err := m.LoadWithFallback()
		if err != nil {
			t.Fatalf("LoadWithFallback failed: %v", err)
		}
		if len(snap) != 0 {
			t.Errorf("Expected empty snapshot, got %v", snap)
		}
	})
}

// TestSaveInterruptedAfterBackup simulates a crash between the backup
// write and the primary replacement: the stray temp file must never be
// visible to Load, and the primary must still parse as the old state.
func TestSaveInterruptedAfterBackup(t *testing.T) {
	m, tempDir := setupManager(t)

	old := testSnapshot(t, map[string]string{"a.txt": digestA})
	if err := m.Save(old); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A crash mid-save leaves the backup rotated and a partial temp
	// file next to the primary, but the primary itself untouched.
	if err := os.WriteFile(filepath.Join(tempDir, ".state-crash.tmp"), []byte(`{"b.tx`), 0600); err != nil {
		t.Fatalf("Failed to plant temp file: %v", err)
	}
	if err := os.WriteFile(m.BackupPath(), mustMarshal(t, old), 0600); err != nil {
		t.Fatalf("Failed to rotate backup: %v", err)
	}

	snap, err := m.Load()
	if err != nil {
		t.Fatalf("Load after interrupted save failed: %v", err)
	}
	if !snap.Equal(old) {
		t.Errorf("Expected old snapshot to survive, got %v", snap)
	}
}

// TestSaveKeepsBackupWhenPrimaryCorrupt covers the cycle after a
// corrupt-primary recovery: rotating the corrupt bytes over the backup
// would destroy the only valid copy of the state.
func TestSaveKeepsBackupWhenPrimaryCorrupt(t *testing.T) {
	m, _ := setupManager(t)

	first := testSnapshot(t, map[string]string{"a.txt": digestA})
	second := testSnapshot(t, map[string]string{"a.txt": digestB})
	third := testSnapshot(t, map[string]string{"b.txt": digestA})

	if err := m.Save(first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := m.Save(second); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := os.WriteFile(m.StatePath(), []byte("{corrupt"), 0600); err != nil {
		t.Fatalf("Failed to corrupt state file: %v", err)
	}

	if err := m.Save(third); err != nil {
		t.Fatalf("Save over corrupt primary failed: %v", err)
	}

	primary, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !primary.Equal(third) {
		t.Errorf("Expected primary to hold third snapshot, got %v", primary)
	}

	backupData, err := os.ReadFile(m.BackupPath())
	if err != nil {
		t.Fatalf("Failed to read backup: %v", err)
	}
	var backup snapshot.Snapshot
	if err := backup.UnmarshalJSON(backupData); err != nil {
		t.Fatalf("Backup was overwritten with unparsable data: %v", err)
	}
	if !backup.Equal(first) {
		t.Errorf("Expected backup to keep the last good state, got %v", backup)
	}
}

func TestSaveEmptySnapshot(t *testing.T) {
	m, _ := setupManager(t)

	if err := m.Save(snapshot.Snapshot{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	snap, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("Expected empty snapshot, got %v", snap)
	}
}

func TestSerializationIsHexMapping(t *testing.T) {
	m, _ := setupManager(t)

	if err := m.Save(testSnapshot(t, map[string]string{"a.txt": digestA})); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(m.StatePath())
	if err != nil {
		t.Fatalf("Failed to read state file: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"a.txt"`) || !strings.Contains(text, digestA) {
		t.Errorf("Expected path and hex digest in serialization, got %s", text)
	}
}

func mustMarshal(t *testing.T, snap snapshot.Snapshot) []byte {
	t.Helper()
	data, err := snap.MarshalJSON()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return data
}
