package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps objects on the local filesystem. s3 locations are mapped
// to <root>/<bucket>/<key> so that cloud paths from configuration work
// unchanged on a workstation.
type FileStore struct {
	root string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) path(loc Location) string {
	if loc.Scheme == SchemeS3 {
		return filepath.Join(s.root, loc.Bucket, filepath.FromSlash(loc.Key))
	}
	return filepath.FromSlash(loc.Key)
}

func (s *FileStore) uri(loc Location, path string) string {
	if loc.Scheme == SchemeS3 {
		rel, _ := filepath.Rel(filepath.Join(s.root, loc.Bucket), path)
		return Location{Scheme: SchemeS3, Bucket: loc.Bucket, Key: filepath.ToSlash(rel)}.String()
	}
	return Location{Scheme: SchemeFile, Key: filepath.ToSlash(path)}.String()
}

func (s *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	loc, err := Parse(prefix)
	if err != nil {
		return nil, err
	}

	base := s.path(loc)
	info, err := os.Stat(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", base, err)
	}
	if !info.IsDir() {
		return []string{s.uri(loc, base)}, nil
	}

	var uris []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		uris = append(uris, s.uri(loc, p))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", base, err)
	}

	sort.Strings(uris)
	return uris, nil
}

func (s *FileStore) Get(_ context.Context, uri string) ([]byte, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(loc))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}
	return data, nil
}

// Put writes through a temp file and renames it into place.
func (s *FileStore) Put(_ context.Context, uri string, data []byte) error {
	loc, err := Parse(uri)
	if err != nil {
		return err
	}

	dst := s.path(loc)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", uri, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", uri, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", uri, err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", uri, err)
	}
	return nil
}
