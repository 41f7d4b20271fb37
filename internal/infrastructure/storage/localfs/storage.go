package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

// Storage maps buckets to directories under basePath. Used for local runs.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

func (s *Storage) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func (s *Storage) Get(_ context.Context, bucket, key string) ([]byte, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open file", fmt.Errorf("%s/%s", bucket, key))
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return data, nil
}

func (s *Storage) List(_ context.Context, bucket, prefix string, limit int) ([]domain.ObjectInfo, error) {
	root := filepath.Join(s.basePath, bucket)
	objects := make([]domain.ObjectInfo, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, domain.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}
	return objects, nil
}

func (s *Storage) URL(bucket, key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(s.basePath, bucket, filepath.FromSlash(key)))
}

func (s *Storage) objectPath(bucket, key string) (string, error) {
	if strings.TrimSpace(bucket) == "" || strings.Contains(bucket, "..") || strings.ContainsAny(bucket, `/\`) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve object path", fmt.Errorf("invalid bucket %q", bucket))
	}
	root := filepath.Join(s.basePath, bucket)
	path := filepath.Join(root, filepath.FromSlash(key))
	if path == root || !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve object path", fmt.Errorf("invalid key %q", key))
	}
	return path, nil
}
