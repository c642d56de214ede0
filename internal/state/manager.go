// Package state provides crash-safe persistence for snapshots.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fsentry/internal/logging"
	"fsentry/internal/snapshot"
)

var (
	logger = logging.GetLogger().WithPrefix("state")

	// ErrCorruptState indicates a state file exists but cannot be parsed
	ErrCorruptState = errors.New("state file is corrupt")
)

// Manager owns the primary and backup state files. No other component
// touches storage directly. Save follows a backup-before-overwrite
// protocol: the previous serialization is copied to the backup path
// before the primary is replaced, and the primary itself is replaced by
// an atomic rename, so a crash mid-save leaves either the old or the
// new state intact, never a partial file.
type Manager struct {
	statePath  string
	backupPath string
	mu         sync.Mutex
}

// NewManager creates a state manager for the given primary and backup
// file paths. It ensures the state directory exists and is writable.
func NewManager(statePath, backupPath string) (*Manager, error) {
	logger.Debug("Creating new state manager with path: %s", statePath)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	// Resolve both paths relative to the current directory
	absState := statePath
	if !filepath.IsAbs(absState) {
		absState = filepath.Join(cwd, absState)
	}
	absBackup := backupPath
	if !filepath.IsAbs(absBackup) {
		absBackup = filepath.Join(cwd, absBackup)
	}
	logger.Debug("Resolved state path: %s, backup path: %s", absState, absBackup)

	for _, dir := range []string{filepath.Dir(absState), filepath.Dir(absBackup)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
		}
	}

	logger.Info("State manager initialization complete")
	return &Manager{
		statePath:  absState,
		backupPath: absBackup,
	}, nil
}

// Load reads the snapshot from the primary state file. A missing
// primary is the bootstrap case and returns an empty snapshot with no
// error. An unparsable primary returns an error wrapping
// ErrCorruptState.
func (m *Manager) Load() (snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.loadFile(m.statePath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No state file at %s, starting with empty state", m.statePath)
		return snapshot.Snapshot{}, nil
	}
	return snap, err
}

// LoadWithFallback reads the primary state file, falling back to the
// backup if the primary is corrupt, and to an empty snapshot if the
// backup is missing or unreadable too. The empty fallback forces a
// fresh baseline on the next cycle, so it is surfaced as a warning
// rather than an error.
func (m *Manager) LoadWithFallback() (snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.loadFile(m.statePath)
	if err == nil {
		return snap, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No state file at %s, starting with empty state", m.statePath)
		return snapshot.Snapshot{}, nil
	}
	logger.Warn("Primary state unreadable, trying backup: %v", err)

	snap, backupErr := m.loadFile(m.backupPath)
	if backupErr == nil {
		logger.Warn("Recovered state from backup file %s", m.backupPath)
		return snap, nil
	}
	logger.Warn("Backup state unreadable too, starting from empty state: %v", backupErr)

	return snapshot.Snapshot{}, nil
}

// loadFile reads and parses one state file, reporting a missing file
// as os.ErrNotExist so callers can tell bootstrap from fallback.
// Callers hold the mutex.
func (m *Manager) loadFile(path string) (snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	logger.Debug("Parsing state file %s (%d bytes)", path, len(data))
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, path, err)
	}
	if snap == nil {
		snap = snapshot.Snapshot{}
	}

	logger.Info("State loaded from %s (%d files)", path, len(snap))
	return snap, nil
}

// Save persists the snapshot. The previous primary file, if any, is
// copied to the backup path before the primary is overwritten.
func (m *Manager) Save(snap snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Debug("Saving state to: %s", m.statePath)

	if err := m.rotateBackup(); err != nil {
		return fmt.Errorf("failed to back up previous state: %w", err)
	}

	// Marshal with indentation for readability
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write to a temp file in the same directory, then rename over the
	// primary so the replacement is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(m.statePath), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, m.statePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	logger.Debug("State saved (%d files, %d bytes)", len(snap), len(data))
	return nil
}

// rotateBackup copies the current primary file to the backup path.
// Callers hold the mutex. The backup must complete before the primary
// is touched so it always reflects the previous cycle's state.
func (m *Manager) rotateBackup() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			// First save; nothing to back up
			return nil
		}
		return err
	}

	// Never overwrite a good backup with an unparsable primary: after
	// a corrupt-primary recovery the backup is the only valid copy.
	var prev snapshot.Snapshot
	if err := json.Unmarshal(data, &prev); err != nil {
		logger.Warn("Primary state is corrupt, keeping existing backup: %v", err)
		return nil
	}

	logger.Debug("Rotating backup: %s", m.backupPath)
	if err := os.WriteFile(m.backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// StatePath returns the resolved primary state file path
func (m *Manager) StatePath() string {
	return m.statePath
}

// BackupPath returns the resolved backup state file path
func (m *Manager) BackupPath() string {
	return m.backupPath
}
