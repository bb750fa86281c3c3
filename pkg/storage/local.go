package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStorage serves file:// URIs from the local filesystem
type LocalStorage struct{}

// NewLocalStorage creates a local filesystem backend
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Open opens the file behind uri
func (ls *LocalStorage) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	path, err := requireScheme(uri, "file")
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Save writes data next to the destination and renames it into place, so a
// reader never observes a partially written file.
func (ls *LocalStorage) Save(ctx context.Context, uri string, data io.Reader, contentType string) error {
	path, err := requireScheme(uri, "file")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Remove deletes the file behind uri
func (ls *LocalStorage) Remove(ctx context.Context, uri string) error {
	path, err := requireScheme(uri, "file")
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists reports whether a regular file exists behind uri
func (ls *LocalStorage) Exists(ctx context.Context, uri string) (bool, error) {
	path, err := requireScheme(uri, "file")
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
