// Package jsonfile implements the small stores kept as atomic JSON
// files under the base directory: the task board, prompts, clipboard,
// handoff templates, review bundles, and the council cache.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// schemaVersion is bumped when a file's layout changes; an older file is
// backed up with a timestamp before being rewritten.
const schemaVersion = 2

// envelope wraps every stored document with its schema version.
type envelope struct {
	Schema int             `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

// load reads the file into v. A missing file leaves v untouched and
// returns false. A file with an older schema is backed up first.
func load(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	if env.Schema != schemaVersion {
		backup := fmt.Sprintf("%s.backup.%s", path, time.Now().UTC().Format("20060102T150405"))
		if err := os.WriteFile(backup, data, 0o644); err != nil {
			return false, fmt.Errorf("backup %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// save writes v atomically: temp file in the same directory, fsync,
// rename.
func save(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data, err := json.MarshalIndent(envelope{Schema: schemaVersion, Data: raw}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
