package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// MaxBackups is the number of config backups kept next to the original.
const MaxBackups = 3

// BackupFile copies path to path.bak.<timestamp> and prunes old backups.
// A missing file is not an error and yields "".
func BackupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s.bak.%s", path, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Best effort; the backup itself succeeded.
	_ = pruneBackups(path)

	return backupPath, nil
}

// ListBackups returns backups of path, newest first.
func ListBackups(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".bak.*")
	if err != nil {
		return nil, err
	}
	// Timestamps sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func pruneBackups(path string) error {
	backups, err := ListBackups(path)
	if err != nil {
		return err
	}
	for _, old := range backups[min(len(backups), MaxBackups):] {
		if err := os.Remove(old); err != nil {
			return err
		}
	}
	return nil
}
