package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LocalStore keeps artifacts as plain files under a working directory.
// Writes go through a temp file in the same directory followed by a rename,
// so a reader never observes a half-written artifact.
type LocalStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalStore returns a LocalStore rooted at baseDir. The directory itself
// is created lazily on the first write.
func NewLocalStore(baseDir string, logger *zap.Logger) *LocalStore {
	return &LocalStore{
		baseDir: baseDir,
		logger:  logger.Named("storage"),
	}
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

// GetJSON reads the artifact stored under key.
func (s *LocalStore) GetJSON(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: read %s: %s", ErrTransport, key, err)
	}
	return data, nil
}

// PutJSON writes data under key via temp-file + rename.
func (s *LocalStore) PutJSON(_ context.Context, key string, data []byte) error {
	target := s.path(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %s", ErrTransport, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %s", ErrTransport, key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %s", ErrTransport, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %s", ErrTransport, key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %s", ErrTransport, key, err)
	}

	s.logger.Debug("wrote artifact", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Exists reports whether an artifact is present under key.
func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat %s: %s", ErrTransport, key, err)
}
