package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	pkgblob "github.com/parquedb/parquedb/pkg/blob"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgblob.Store = (*FileStore)(nil)

// FileStore implements blob.Store over the local filesystem. It
// provides thread-safe access and a genuinely atomic WriteAtomic via
// temp-file-then-rename, so a crash mid-write never leaves a partial
// file at the destination path.
type FileStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStore creates a filesystem-backed store rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (f *FileStore) resolve(path string) string {
	clean := strings.TrimPrefix(path, "file://")
	return filepath.Join(f.basePath, clean)
}

func (f *FileStore) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(f.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *FileStore) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(f.resolve(path))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob: %q: %w", path, ErrNotExist)
	}
	return data, err
}

func (f *FileStore) Write(_ context.Context, path string, data []byte) error {
	full := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(full, data, 0o644)
}

// WriteAtomic writes to a temp file in the destination directory and
// renames it into place. Rename within the same filesystem is atomic,
// so readers only ever see the old content or the complete new
// content, never a partial file.
func (f *FileStore) WriteAtomic(_ context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	full := f.resolve(path)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, path string) error {
	err := os.Remove(f.resolve(path))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	root := f.resolve(prefix)

	// prefix may name a partial filename, not just a directory: walk
	// the parent and filter by the full resolved prefix.
	walkRoot := root
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		walkRoot = filepath.Dir(root)
	}

	err := filepath.Walk(walkRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(p, root) {
			rel, relErr := filepath.Rel(f.basePath, p)
			if relErr != nil {
				return relErr
			}
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
