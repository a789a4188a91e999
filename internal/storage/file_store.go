package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/stxlabs/tracker-api/internal/platform/logger"
)

var (
	// ErrFileTooLarge is returned by Save when the content exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidPath is returned for paths that would leave the storage root.
	ErrInvalidPath = errors.New("invalid storage path")
)

// FileStore stores files under relative paths of an afero.Fs.
type FileStore struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewFileStore creates a FileStore on fs.
func NewFileStore(fs afero.Fs, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		fs:     fs,
		logger: logger.With(slog.String("component", "file_store")),
	}
}

// NewOSFileStore creates a FileStore rooted at dir on the host filesystem,
// creating dir if needed.
func NewOSFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create attachments directory: %w", err)
	}
	return NewFileStore(afero.NewBasePathFs(osFs, dir), logger), nil
}

// Save writes the content of r to path and returns the number of bytes
// written. Content longer than limit bytes is rejected with ErrFileTooLarge
// and nothing is kept.
func (s *FileStore) Save(ctx context.Context, path string, r io.Reader, limit int64) (int64, error) {
	path, err := cleanPath(path)
	if err != nil {
		return 0, err
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("failed to write file: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("failed to close file: %w", closeErr)
	case n > limit:
		err = ErrFileTooLarge
	}
	if err != nil {
		s.discard(ctx, path)
		return 0, err
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("file stored",
		slog.String("path", path),
		slog.Int64("size", n))
	return n, nil
}

// Remove deletes the file at path. Removing a missing file is not an error.
func (s *FileStore) Remove(ctx context.Context, path string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Exists reports whether a file is stored at path.
func (s *FileStore) Exists(path string) (bool, error) {
	path, err := cleanPath(path)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, path)
}

func (s *FileStore) discard(ctx context.Context, path string) {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to discard partial file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func cleanPath(path string) (string, error) {
	clean := filepath.Clean(path)
	if path == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." ||
		len(clean) > 2 && clean[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return clean, nil
}
