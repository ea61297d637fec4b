package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// BackendFile is the backend name of FileStore.
const BackendFile = "file"

// DefaultFilePath returns $XDG_DATA_HOME/calbridge/tokens.json, creating the
// parent directory if needed.
func DefaultFilePath() (string, error) {
	path, err := xdg.DataFile(filepath.Join("calbridge", "tokens.json"))
	if err != nil {
		return "", fmt.Errorf("resolve credentials path: %w", err)
	}
	return path, nil
}

// FileStore keeps the credentials in a JSON file.
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers see either the old or the new record.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(BackendFile, "load", err)
	}
	creds, err := unmarshal(data)
	if err != nil {
		return nil, storeErr(BackendFile, "load", err)
	}
	return creds, nil
}

func (s *FileStore) Save(_ context.Context, creds *Credentials) error {
	data, err := marshal(creds)
	if err != nil {
		return storeErr(BackendFile, "save", err)
	}
	if err := s.writeAtomic(data); err != nil {
		return storeErr(BackendFile, "save", err)
	}
	return nil
}

func (s *FileStore) writeAtomic(data []byte) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// CreateTemp opens with mode 0600
	tmp, err := os.CreateTemp(dir, ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
