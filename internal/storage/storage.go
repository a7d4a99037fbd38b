// Package storage manages the downloads directory: safe name resolution,
// atomic writes, per-request scratch directories, and age-based cleanup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/ytfetch/internal/downloader"
	"github.com/example/ytfetch/internal/models"
)

// Store is a flat directory of finished downloads.
type Store struct {
	dir string
}

// New resolves dir to an absolute path and creates it if needed.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", abs, err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path sanitizes name and returns its location inside the store. Names that
// sanitize to nothing or escape the directory are rejected.
func (s *Store) Path(name string) (string, error) {
	clean := downloader.SanitizeFilename(name, "")
	if clean == "" {
		return "", fmt.Errorf("%w: invalid filename %q", models.ErrInvalidInput, name)
	}

	full := filepath.Join(s.dir, clean)
	rel, err := filepath.Rel(s.dir, full)
	if err != nil || rel != clean {
		return "", fmt.Errorf("%w: %q escapes %q", models.ErrInvalidInput, name, s.dir)
	}
	return full, nil
}

// Open locates a stored file. Anything that is not a regular file inside the
// store is reported as ErrNotFound.
func (s *Store) Open(name string) (string, fs.FileInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", nil, fmt.Errorf("%w: File not found", models.ErrNotFound)
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w: File not found", models.ErrNotFound)
	}
	return path, info, nil
}

// WriteFile stores data under name, replacing any existing file atomically.
func (s *Store) WriteFile(name string, data []byte) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".write-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("moving %s into place: %w", name, err)
	}
	return path, nil
}

// Cleanup removes regular files and abandoned fetch staging directories whose
// modification time is older than maxAge, and returns how many were deleted.
// Other subdirectories are left alone.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", s.dir, err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		staging := e.IsDir() && strings.HasPrefix(e.Name(), downloader.StagingPrefix)
		if !e.Type().IsRegular() && !staging {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) <= maxAge {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Println("Deleted old file:", path)
		removed++
	}
	return removed, errors.Join(errs...)
}

// Janitor runs Cleanup every interval until ctx is cancelled.
func (s *Store) Janitor(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Cleanup(maxAge); err != nil {
				log.Printf("cleanup: %v", err)
			}
		}
	}
}

// TempDir is a scratch directory owned by a single request.
type TempDir struct {
	path string
}

// NewTempDir creates a randomized directory under the system temp dir.
func NewTempDir(prefix string) (*TempDir, error) {
	path, err := os.MkdirTemp("", prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	return &TempDir{path: path}, nil
}

// Path returns the directory path.
func (t *TempDir) Path() string {
	return t.path
}

// Cleanup removes the directory and everything in it.
func (t *TempDir) Cleanup() error {
	return os.RemoveAll(t.path)
}
