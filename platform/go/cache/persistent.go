package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SnapshotFile persists a single JSON value across process restarts.
// The resolver uses it to paint the last resolved custom-domain tenant before
// the first live lookup completes; a missing file is not an error.
type SnapshotFile struct {
	path string
}

// NewSnapshotFile builds a SnapshotFile rooted at path.
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

// Read unmarshals the stored snapshot into v. The boolean is false when no
// snapshot exists yet.
func (s *SnapshotFile) Read(v any) (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// A corrupt snapshot is treated as absent; it will be rewritten on the
		// next successful resolution.
		return false, nil
	}
	return true, nil
}

// Write atomically replaces the stored snapshot with v.
func (s *SnapshotFile) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot, ignoring a file that is already gone.
func (s *SnapshotFile) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear snapshot %s: %w", s.path, err)
	}
	return nil
}
