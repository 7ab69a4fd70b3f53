// Package file stores each key as a JSON file under a base directory.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	filePath, err := s.pathFor(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read file: %w", err)
	}
	return data, true, nil
}

// Set writes to a temporary file, flushes it to disk and renames it into
// place so readers never see a half-written value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	filePath, err := s.pathFor(key)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		discardTemp(f, tmp, "write")
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Sync(); err != nil {
		discardTemp(f, tmp, "sync")
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		removeTemp(tmp, "close")
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		removeTemp(tmp, "rename")
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

func discardTemp(f *os.File, tmp, stage string) {
	if err := f.Close(); err != nil {
		slog.Error("failed to close file after "+stage+" error", "error", err)
	}
	removeTemp(tmp, stage)
}

func removeTemp(tmp, stage string) {
	if err := os.Remove(tmp); err != nil {
		slog.Error("failed to remove file after "+stage+" error", "error", err)
	}
}

func (s *Store) Delete(_ context.Context, key string) error {
	filePath, err := s.pathFor(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

// pathFor maps key to a file name inside basePath and rejects anything that
// would resolve outside it.
func (s *Store) pathFor(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, url.PathEscape(key)+".json"))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}
