package transcript

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the turn log snapshot.
type Store interface {
	// Save persists the given data.
	Save(data []byte) error

	// Load retrieves the stored data. A store with nothing saved returns nil.
	Load() ([]byte, error)
}

// JSONStore keeps the snapshot in a single JSON file.
type JSONStore struct {
	FilePath string
}

// NewJSONStore creates a file store. An empty path disables persistence.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{FilePath: path}
}

// Save writes data to a temp file and renames it into place.
func (s *JSONStore) Save(data []byte) error {
	if s.FilePath == "" {
		return nil
	}

	dir := filepath.Dir(s.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmp := s.FilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, s.FilePath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

// Load reads the file. A missing file is not an error.
func (s *JSONStore) Load() ([]byte, error) {
	if s.FilePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

var _ Store = (*JSONStore)(nil)
