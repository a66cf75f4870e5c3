package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FileStore persists entries as a single flat JSON object on disk.
// A missing or corrupt file is treated as an empty store rather than an
// error, so a bad write can never lock a user out permanently.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the JSON file at path. The file and
// its parent directory are created lazily on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob := s.readBlob()
	result := gjson.GetBytes(blob, escapeKey(key))
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// Set persists value under key.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob := s.readBlob()
	updated, err := sjson.SetBytes(blob, escapeKey(key), value)
	if err != nil {
		return fmt.Errorf("filestore: set %s failed: %w", key, err)
	}
	return s.writeBlob(updated)
}

// Delete removes the entry for key.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob := s.readBlob()
	result := gjson.GetBytes(blob, escapeKey(key))
	if !result.Exists() {
		return nil
	}
	updated, err := sjson.DeleteBytes(blob, escapeKey(key))
	if err != nil {
		return fmt.Errorf("filestore: delete %s failed: %w", key, err)
	}
	return s.writeBlob(updated)
}

// readBlob loads the backing file. Corruption is logged and downgraded to an
// empty object so callers observe "nothing cached" instead of a failure.
func (s *FileStore) readBlob() []byte {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("filestore: read %s failed: %v", s.path, err)
		}
		return []byte("{}")
	}
	if !gjson.ValidBytes(data) {
		log.Warnf("filestore: %s is not valid JSON, treating as empty", s.path)
		return []byte("{}")
	}
	return data
}

func (s *FileStore) writeBlob(blob []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("filestore: create dir failed: %w", err)
	}
	if err := os.WriteFile(s.path, blob, 0o600); err != nil {
		return fmt.Errorf("filestore: write failed: %w", err)
	}
	return nil
}

// escapeKey neutralizes gjson path syntax so dotted storage keys address a
// single flat JSON field.
func escapeKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
