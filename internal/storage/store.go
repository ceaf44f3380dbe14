// Package storage keeps converted workbooks on local disk until they are
// downloaded or swept.
//
// Artifacts are named "<uuid>.xlsx". Writes go to a temporary file in the
// same directory and are renamed into place only after the producer
// succeeds, so a reader never observes a partial artifact.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extension is appended to every artifact name.
const Extension = ".xlsx"

// tmpPrefix marks in-progress writes; Sweep removes stale ones too.
const tmpPrefix = ".partial-"

var (
	// ErrNotFound is returned for names that are well-formed but absent.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that are not "<uuid>.xlsx".
	ErrInvalidName = errors.New("invalid file name")
)

// Store is a directory of conversion artifacts. It is safe for concurrent use:
// every artifact has a unique name and each operation is a single file
// system call sequence.
type Store struct {
	dir string
	now func() time.Time
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save creates a new artifact from whatever write produces and returns its
// name. If write fails, nothing is left behind.
func (s *Store) Save(write func(w io.Writer) error) (name string, err error) {
	tmp, err := os.CreateTemp(s.dir, tmpPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return "", err
	}
	if err = tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	name = uuid.NewString() + Extension
	if err = os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return name, nil
}

// Open returns the artifact and its size. The caller closes the file.
func (s *Store) Open(name string) (*os.File, int64, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", name, err)
	}
	return f, info.Size(), nil
}

// Remove deletes an artifact. Removing an absent artifact is not an error.
func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Sweep deletes every regular file last modified more than maxAge ago,
// including abandoned partial writes, and returns how many were removed.
// Failures on individual files do not stop the sweep; they are joined into
// the returned error.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read storage directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// path validates name and resolves it inside the store.
func (s *Store) path(name string) (string, error) {
	id, ok := strings.CutSuffix(name, Extension)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}
