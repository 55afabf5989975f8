// Package backup provides backup and restore of the preference store.
// Each backup is a timestamped directory holding a consistent copy of the
// database and a manifest describing it.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"chokewatch/internal/fsutil"
	"chokewatch/internal/prefs"
)

// Version constants for the backup format.
const (
	ManifestVersion = "2.0"
	ManifestFile    = "manifest.json"
	BackupsDir      = "backups"
)

// Manager handles backup and restore operations.
type Manager struct {
	dataDir    string // Path to data directory (e.g., ~/.chokewatch)
	backupDir  string // Path to backups directory (e.g., ~/.chokewatch/backups)
	appVersion string // Application version for manifest
}

// Manifest contains metadata about a backup.
type Manifest struct {
	Version    string    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	AppVersion string    `json:"app_version"`
	Files      []string  `json:"files"`
	QuietHours string    `json:"quiet_hours,omitempty"`
}

// BackupInfo contains summary information about a backup.
type BackupInfo struct {
	Name       string    // Directory name (2025-12-15_143022_000)
	Path       string    // Full path to backup directory
	CreatedAt  time.Time // When the backup was created
	QuietHours string    // Window stored at backup time, empty when unset
}

// NewManager creates a new backup manager.
func NewManager(dataDir, appVersion string) *Manager {
	return &Manager{
		dataDir:    dataDir,
		backupDir:  filepath.Join(dataDir, BackupsDir),
		appVersion: appVersion,
	}
}

func (m *Manager) dbFile() string {
	return filepath.Base(prefs.Path(m.dataDir))
}

// Create snapshots the preference store into a new backup and returns its
// name. A data directory without a store produces a backup with no files.
func (m *Manager) Create(ctx context.Context) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	now, name, backupPath, err := m.reserve(time.Now())
	if err != nil {
		return "", err
	}

	manifest := Manifest{
		Version:    ManifestVersion,
		CreatedAt:  now,
		AppVersion: m.appVersion,
		Files:      []string{},
	}

	src := prefs.Path(m.dataDir)
	if _, err := os.Stat(src); err == nil {
		// The owner role is needed for VACUUM INTO; it only creates schema
		// in a store that lacks it.
		repo := prefs.New(src, prefs.RoleOwner)
		dst := filepath.Join(backupPath, m.dbFile())
		err := repo.Snapshot(ctx, dst)
		if err == nil {
			if w, ok := repo.Get(ctx); ok {
				manifest.QuietHours = w.String()
			}
		}
		_ = repo.Close()
		if err != nil {
			_ = os.RemoveAll(backupPath)
			return "", fmt.Errorf("failed to snapshot %s: %w", m.dbFile(), err)
		}
		manifest.Files = append(manifest.Files, m.dbFile())
	} else if !os.IsNotExist(err) {
		_ = os.RemoveAll(backupPath)
		return "", fmt.Errorf("stat %s: %w", src, err)
	}

	if err := writeJSON(filepath.Join(backupPath, ManifestFile), manifest); err != nil {
		_ = os.RemoveAll(backupPath)
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}

	return name, nil
}

// reserve creates the directory for a backup taken at now. Backups taken
// within the same millisecond move to the next free millisecond.
func (m *Manager) reserve(now time.Time) (time.Time, string, string, error) {
	for i := 0; i < 1000; i++ {
		name := fmt.Sprintf("%s_%03d", now.Format("2006-01-02_150405"), now.Nanosecond()/1e6)
		path := filepath.Join(m.backupDir, name)
		err := os.Mkdir(path, 0700)
		if err == nil {
			return now, name, path, nil
		}
		if !os.IsExist(err) {
			return time.Time{}, "", "", fmt.Errorf("failed to create backup: %w", err)
		}
		now = now.Add(time.Millisecond)
	}
	return time.Time{}, "", "", errors.New("failed to create backup: no free backup name")
}

// List returns all available backups, sorted by creation time (newest first).
func (m *Manager) List() ([]BackupInfo, error) {
	if _, err := os.Stat(m.backupDir); os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := m.GetBackup(entry.Name())
		if err != nil {
			continue // Skip invalid backups
		}
		backups = append(backups, *info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Restore replaces the preference store with the one in backup name. The
// backup copy is verified first and a safety backup of the current store is
// taken before anything is replaced. Restoring a backup taken while nothing
// was stored removes the current store.
func (m *Manager) Restore(ctx context.Context, name string) error {
	if err := validateBackupName(name); err != nil {
		return err
	}

	backupPath := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup not found: %s", name)
	}

	src := filepath.Join(backupPath, m.dbFile())
	hasDB := true
	if _, err := os.Stat(src); os.IsNotExist(err) {
		hasDB = false
	} else if err := prefs.Check(ctx, src); err != nil {
		return fmt.Errorf("backup %s is not usable: %w", name, err)
	}

	safetyName, err := m.Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to create safety backup: %w", err)
	}

	dst := prefs.Path(m.dataDir)
	// A journal left beside the old database must not be replayed onto the
	// restored one.
	if err := os.Remove(dst + "-journal"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale journal (safety backup: %s): %w", safetyName, err)
	}

	if !hasDB {
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove store (safety backup: %s): %w", safetyName, err)
		}
		return nil
	}

	if err := os.MkdirAll(m.dataDir, 0700); err != nil {
		return err
	}
	if err := copyFileAtomic(src, dst); err != nil {
		return fmt.Errorf("failed to restore %s (safety backup: %s): %w", m.dbFile(), safetyName, err)
	}
	if err := prefs.Check(ctx, dst); err != nil {
		return fmt.Errorf("restored store is invalid (safety backup: %s): %w", safetyName, err)
	}
	return nil
}

// RestoreLatest restores from the most recent backup and returns its name.
func (m *Manager) RestoreLatest(ctx context.Context) (string, error) {
	backups, err := m.List()
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", errors.New("no backups available")
	}

	name := backups[0].Name
	return name, m.Restore(ctx, name)
}

// Delete removes a specific backup.
func (m *Manager) Delete(name string) error {
	if err := validateBackupName(name); err != nil {
		return err
	}

	backupPath := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return fmt.Errorf("backup not found: %s", name)
	}

	return os.RemoveAll(backupPath)
}

// Prune removes old backups, keeping only the N most recent.
func (m *Manager) Prune(keepCount int) (int, error) {
	if keepCount < 0 {
		return 0, fmt.Errorf("keepCount must be non-negative")
	}

	backups, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(backups) <= keepCount {
		return 0, nil
	}

	deleted := 0
	for _, backup := range backups[keepCount:] {
		if err := m.Delete(backup.Name); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// GetBackup returns information about a specific backup.
func (m *Manager) GetBackup(name string) (*BackupInfo, error) {
	if err := validateBackupName(name); err != nil {
		return nil, err
	}

	backupPath := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("backup not found: %s", name)
	}

	var manifest Manifest
	if err := readJSON(filepath.Join(backupPath, ManifestFile), &manifest); err != nil {
		createdAt, parseErr := parseBackupName(name)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid backup: %s", name)
		}
		manifest.CreatedAt = createdAt
	}

	return &BackupInfo{
		Name:       name,
		Path:       backupPath,
		CreatedAt:  manifest.CreatedAt,
		QuietHours: manifest.QuietHours,
	}, nil
}

func validateBackupName(name string) error {
	if name == "" {
		return fmt.Errorf("backup name is required")
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid backup name: %q", name)
	}
	if _, err := parseBackupName(name); err != nil {
		return fmt.Errorf("invalid backup name: %q", name)
	}
	return nil
}

func copyFileAtomic(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(dst, data, 0600)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0600)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// parseBackupName parses a backup directory name into a timestamp.
// Supports both 2006-01-02_150405 and 2006-01-02_150405_XXX.
func parseBackupName(name string) (time.Time, error) {
	if len(name) == 21 {
		baseTime, err := time.Parse("2006-01-02_150405", name[:17])
		if err != nil {
			return time.Time{}, err
		}
		if name[17] != '_' {
			return time.Time{}, fmt.Errorf("invalid backup format")
		}
		ms, err := strconv.Atoi(name[18:])
		if err != nil || ms < 0 || ms > 999 {
			return time.Time{}, fmt.Errorf("invalid milliseconds")
		}
		return baseTime.Add(time.Duration(ms) * time.Millisecond), nil
	}

	return time.Parse("2006-01-02_150405", name)
}
