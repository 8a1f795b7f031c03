// File: internal/memory/persist.go
package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
)

// snapshot is the on-disk document:
//
//	{"savedAt": "...", "elements": [[hash, record], ...], "pageVisits": [[path, count], ...]}
type snapshot struct {
	SavedAt    time.Time      `json:"savedAt"`
	Elements   []elementEntry `json:"elements"`
	PageVisits []visitEntry   `json:"pageVisits"`
}

type elementEntry struct {
	Hash   string
	Record ElementMemory
}

func (e elementEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Hash, e.Record})
}

func (e *elementEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("element entry must be a [hash, record] pair, got %d items", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Hash); err != nil {
		return fmt.Errorf("element hash: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Record); err != nil {
		return fmt.Errorf("element record %s: %w", e.Hash, err)
	}
	return nil
}

type visitEntry struct {
	Path  string
	Count int
}

func (v visitEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{v.Path, v.Count})
}

func (v *visitEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("page visit entry must be a [path, count] pair, got %d items", len(pair))
	}
	if err := json.Unmarshal(pair[0], &v.Path); err != nil {
		return fmt.Errorf("page visit path: %w", err)
	}
	if err := json.Unmarshal(pair[1], &v.Count); err != nil {
		return fmt.Errorf("page visit count %s: %w", v.Path, err)
	}
	return nil
}

// readSnapshot returns (nil, nil) when there is no file to read.
func readSnapshot(path string) (*snapshot, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read navigation memory %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode navigation memory %s: %w", path, err)
	}
	return &snap, nil
}

// writeSnapshot replaces the file atomically: readers see either the previous
// document or the new one.
func writeSnapshot(path string, snap *snapshot) error {
	if snap.Elements == nil {
		snap.Elements = []elementEntry{}
	}
	if snap.PageVisits == nil {
		snap.PageVisits = []visitEntry{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode navigation memory: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create memory directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write navigation memory: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync navigation memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close navigation memory: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace navigation memory %s: %w", path, err)
	}
	return nil
}

func removeSnapshot(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove navigation memory %s: %w", path, err)
	}
	return nil
}
