package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutsideBase is returned for paths that resolve outside the storage root.
var ErrOutsideBase = errors.New("path escapes storage directory")

// LocalStorage persists rendered reports on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve exports directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create exports directory: %w", err)
	}
	return &LocalStorage{baseDir: abs}, nil
}

// Save writes data to filename relative to the base dir and returns the relative path.
func (s *LocalStorage) Save(filename string, data []byte) (string, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare export directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize export file: %w", err)
	}
	return filename, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (*os.File, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete export file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes files last modified before now-ttl and returns their
// relative names.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup exports: %w", err)
	}
	return deleted, nil
}

// Path exposes the absolute path for a stored file, or "" when it escapes the base.
func (s *LocalStorage) Path(filename string) string {
	path, err := s.resolve(filename)
	if err != nil {
		return ""
	}
	return path
}

func (s *LocalStorage) resolve(filename string) (string, error) {
	if filename == "" || filepath.IsAbs(filename) {
		return "", fmt.Errorf("%w: %q", ErrOutsideBase, filename)
	}
	path := filepath.Join(s.baseDir, filename)
	if path != s.baseDir && !strings.HasPrefix(path, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideBase, filename)
	}
	return path, nil
}
