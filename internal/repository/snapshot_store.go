package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"SigPulse/internal/domain/models"
	"SigPulse/internal/domain/repository"
)

// FileSnapshotStore persists engine state to local files. Writes go to a temp
// file in the same directory followed by an atomic rename, so a reader never
// observes a partial document. The compact file skips the durability flush:
// it exists for low-latency tailing, not crash recovery.
type FileSnapshotStore struct {
	primaryPath string
	compactPath string
}

func NewFileSnapshotStore(primaryPath, compactPath string) repository.SnapshotStore {
	return &FileSnapshotStore{primaryPath: primaryPath, compactPath: compactPath}
}

// WriteSnapshot serializes the full signal set plus cycle metadata.
func (s *FileSnapshotStore) WriteSnapshot(snap *models.Snapshot) error {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return atomicWrite(s.primaryPath, b, true)
}

// WriteCompact writes the one-line-per-symbol view.
func (s *FileSnapshotStore) WriteCompact(snap *models.Snapshot, lines []string) error {
	if s.compactPath == "" {
		return nil
	}
	buf := make([]byte, 0, 64*len(lines)+128)
	meta := fmt.Sprintf("# updated=%s interval=%s duration=%s a0=%d a1=%d a2=%d regime=%s\n",
		snap.Stats.UpdatedAt.UTC().Format(time.RFC3339),
		snap.Stats.PollInterval,
		snap.Stats.CycleDuration,
		snap.Stats.A0Count, snap.Stats.A1Count, snap.Stats.A2Count,
		snap.Stats.VolumeRegime,
	)
	buf = append(buf, meta...)
	for _, line := range lines {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return atomicWrite(s.compactPath, buf, false)
}

// Restore reads the primary snapshot back. A missing file is "no persisted
// state", not an error worth surfacing.
func (s *FileSnapshotStore) Restore() (*models.Snapshot, error) {
	b, err := os.ReadFile(s.primaryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

func atomicWrite(path string, data []byte, flush bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if flush {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("sync temp: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
