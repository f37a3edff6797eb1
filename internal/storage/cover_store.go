package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bookbase/internal/errors"
)

// CoverStore keeps book cover images as files in a single directory.
type CoverStore struct {
	dir     string
	allowed map[string]struct{}
	maxSize int64
}

// NewCoverStore creates the upload directory if needed.
func NewCoverStore(dir string, allowedExtensions []string, maxSize int64) (*CoverStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &CoverStore{dir: dir, allowed: allowed, maxSize: maxSize}, nil
}

// Dir returns the upload directory.
func (s *CoverStore) Dir() string {
	return s.dir
}

// extension returns the lowercased extension of name if it is allowed.
func (s *CoverStore) extension(name string) (string, error) {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedFileType, name)
	}
	ext := strings.ToLower(name[idx+1:])
	if _, ok := s.allowed[ext]; !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedFileType, name)
	}
	return ext, nil
}

// Save validates and stores an upload under a generated unique filename,
// which it returns. Nothing is written unless the whole upload is valid.
func (s *CoverStore) Save(originalName string, content io.Reader) (string, error) {
	ext, err := s.extension(originalName)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(content, s.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: maximum is %d bytes", errors.ErrFileTooLarge, s.maxSize)
	}

	filename := uuid.New().String() + "." + ext
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write cover: %w", err)
	}
	return filename, nil
}

// Delete removes a stored cover. Deleting a missing file is not an error.
func (s *CoverStore) Delete(filename string) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cover: %w", err)
	}
	return nil
}

// Path returns the on-disk path of an existing cover.
func (s *CoverStore) Path(filename string) (string, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", errors.ErrCoverNotFound
	}
	return path, nil
}

// resolve rejects anything that is not a plain file name inside the upload dir.
func (s *CoverStore) resolve(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." || filepath.Base(filename) != filename || strings.ContainsAny(filename, `/\`) {
		return "", errors.ErrCoverNotFound
	}
	return filepath.Join(s.dir, filename), nil
}
