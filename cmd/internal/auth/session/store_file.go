package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps the record in one local file.
// Writes go to a temp file in the same directory and are renamed into place, so
// readers only ever see a whole previous or whole new record.
type FileStore struct {
	path string
}

// NewFileStore returns a file backend rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Name implements BlobStore.
func (f *FileStore) Name() string { return "file" }

// Path returns the record path.
func (f *FileStore) Path() string { return f.path }

// ReadBlob implements BlobStore.
func (f *FileStore) ReadBlob(_ context.Context) ([]byte, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// WriteBlob implements BlobStore.
func (f *FileStore) WriteBlob(_ context.Context, blob []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}
