package io

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
)

// IOGraphFileLoader loads files directly from the local filesystem with
// caching. Relative paths resolve against the base directory.
type IOGraphFileLoader struct {
	baseDir string
	cache   *loader.Cache
}

// NewIOGraphFileLoader creates a filesystem loader rooted at baseDir. An
// empty baseDir uses the working directory.
func NewIOGraphFileLoader(baseDir string) *IOGraphFileLoader {
	return &IOGraphFileLoader{
		baseDir: baseDir,
		cache:   loader.NewCache(),
	}
}

func (l *IOGraphFileLoader) path(file loader.GraphFile) string {
	if filepath.IsAbs(file.FilePath) || l.baseDir == "" {
		return file.FilePath
	}
	return filepath.Join(l.baseDir, file.FilePath)
}

// GetFileText reads the file content from the filesystem.
func (l *IOGraphFileLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(file), func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(l.path(file))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file.FilePath, err)
		}
		return b, nil
	})
}
