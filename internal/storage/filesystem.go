package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem keeps session artifacts under a single results directory.
// Artifact paths are relative to the base; anything resolving outside it is
// rejected. Every artifact can carry boundary-testing prompts, so files and
// directories are created owner-only.
type FileSystem struct {
	baseDir string
}

func NewFileSystem(baseDir string) *FileSystem {
	return &FileSystem{
		baseDir: filepath.Clean(baseDir),
	}
}

// resolve maps a relative artifact path onto the base directory and rejects
// anything that escapes it.
func (fs *FileSystem) resolve(p string) (string, error) {
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("artifact path must be relative: %s", p)
	}

	full := filepath.Join(fs.baseDir, p)
	rel, err := filepath.Rel(fs.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path escapes results dir: %s", p)
	}

	return full, nil
}

// Save writes an artifact atomically: bytes land in a temp file in the target
// directory and are renamed into place, so an interrupted run never leaves a
// torn report behind.
func (fs *FileSystem) Save(ctx context.Context, path string, data []byte) error {
	full, err := fs.resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("staging artifact: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0600)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, full)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing artifact %s: %w", path, err)
	}

	return nil
}

func (fs *FileSystem) Load(ctx context.Context, path string) ([]byte, error) {
	full, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}

	return data, nil
}

// List returns artifact paths matching a glob pattern, relative to the base
// directory.
func (fs *FileSystem) List(ctx context.Context, pattern string) ([]string, error) {
	if _, err := fs.resolve(pattern); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(fs.baseDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad artifact pattern %q: %w", pattern, err)
	}

	paths := make([]string, 0, len(matches))
	for _, match := range matches {
		rel, err := filepath.Rel(fs.baseDir, match)
		if err != nil {
			continue
		}
		paths = append(paths, rel)
	}

	return paths, nil
}
