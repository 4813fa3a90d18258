package jsonfile

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// KVStore is a small string-keyed JSON map file; it backs prompts.json,
// clipboard.json, and handoff-templates.json.
type KVStore struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// NewKVStore loads (or initialises) the named file under baseDir.
func NewKVStore(baseDir, file string) (*KVStore, error) {
	s := &KVStore{
		path: filepath.Join(baseDir, file),
		data: make(map[string]string),
	}
	if _, err := load(s.path, &s.data); err != nil {
		return nil, fmt.Errorf("load %s: %w", file, err)
	}
	return s, nil
}

// Get returns the value for key.
func (s *KVStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores the value and persists the file.
func (s *KVStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.data[key]
	s.data[key] = value
	if err := save(s.path, s.data); err != nil {
		if existed {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Keys returns every stored key.
func (s *KVStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// BundleStore persists review bundles as review-bundles/<taskId>.json.
type BundleStore struct {
	dir string
}

// NewBundleStore creates the bundle directory store under baseDir.
func NewBundleStore(baseDir string) *BundleStore {
	return &BundleStore{dir: filepath.Join(baseDir, "review-bundles")}
}

// sanitizeTaskID rejects ids that could escape the bundle directory.
func sanitizeTaskID(id string) error {
	if id == "" {
		return fmt.Errorf("task id is required")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") || strings.ContainsRune(id, 0) {
		return fmt.Errorf("invalid task id %q", id)
	}
	return nil
}

// Save writes the bundle for the task.
func (s *BundleStore) Save(taskID string, bundle any) error {
	if err := sanitizeTaskID(taskID); err != nil {
		return err
	}
	return save(filepath.Join(s.dir, taskID+".json"), bundle)
}

// Load reads the bundle for the task into v; ok is false when absent.
func (s *BundleStore) Load(taskID string, v any) (bool, error) {
	if err := sanitizeTaskID(taskID); err != nil {
		return false, err
	}
	return load(filepath.Join(s.dir, taskID+".json"), v)
}
