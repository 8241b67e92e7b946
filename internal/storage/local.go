package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
	ioloader "github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader/io"
)

// LocalStore keeps uploads below a directory on disk.
type LocalStore struct {
	dir    string
	loader *ioloader.IOGraphFileLoader
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, loader: ioloader.NewIOGraphFileLoader(dir)}, nil
}

func (s *LocalStore) PutFile(ctx context.Context, prefix, name, key string, file io.ReadSeeker) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	objKey := objectKey(prefix, name, key)
	target := filepath.Join(s.dir, filepath.FromSlash(objKey))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder for %s: %w", objKey, err)
	}

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", objKey, err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write %s: %w", objKey, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", objKey, err)
	}
	return objKey, nil
}

func (s *LocalStore) DeleteFolder(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.dir, filepath.FromSlash(prefix))); err != nil {
		return fmt.Errorf("failed to delete folder %s: %w", prefix, err)
	}
	return nil
}

func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

func (s *LocalStore) Loader() loader.GraphFileLoader {
	return s.loader
}
