package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// FileType identifies how a document's bytes are turned into text.
type FileType string

const (
	FileTypeText     FileType = "txt"
	FileTypeMarkdown FileType = "md"
	FileTypeDocx     FileType = "docx"
	FileTypePDF      FileType = "pdf"
	FileTypeURL      FileType = "url"
)

// UploadTypes are the file types accepted for upload, in display order.
var UploadTypes = []FileType{FileTypePDF, FileTypeDocx, FileTypeText, FileTypeMarkdown}

// ErrUnsupportedFileType is returned for files no loader can read.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// FileTypeFromName derives the file type from a filename extension.
func FileTypeFromName(name string) (FileType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch FileType(ext) {
	case FileTypePDF, FileTypeDocx, FileTypeText, FileTypeMarkdown:
		return FileType(ext), nil
	case "markdown":
		return FileTypeMarkdown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
}

// GraphFile is a document waiting to be ingested. FilePath is whatever the
// Loader understands: a local path, an object key or a URL. MaxTokens
// overrides the chunk size when positive.
type GraphFile struct {
	ID        string
	FilePath  string
	FileType  FileType
	MaxTokens int
	Loader    GraphFileLoader
}

// GetText retrieves the plain text content of the file using its Loader.
//
// Example:
//
//	text, err := file.GetText(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(string(text))
func (f GraphFile) GetText(ctx context.Context) ([]byte, error) {
	if f.Loader == nil {
		return nil, fmt.Errorf("no loader configured for %s", f.FilePath)
	}
	return f.Loader.GetFileText(ctx, f)
}

// GraphFileLoader loads the contents of a GraphFile. Implementations may
// read from disk, object storage or the web, or convert bytes produced by
// another loader.
type GraphFileLoader interface {
	GetFileText(ctx context.Context, file GraphFile) ([]byte, error)
}

// CacheKey identifies a file in loader caches.
func CacheKey(file GraphFile) string {
	return file.ID + ":" + file.FilePath
}

// TypeLoader dispatches to a loader per file type.
type TypeLoader struct {
	loaders map[FileType]GraphFileLoader
}

// NewTypeLoader builds a dispatcher from the given mapping. The map is
// copied.
func NewTypeLoader(loaders map[FileType]GraphFileLoader) *TypeLoader {
	m := make(map[FileType]GraphFileLoader, len(loaders))
	for k, v := range loaders {
		m[k] = v
	}
	return &TypeLoader{loaders: m}
}

func (l *TypeLoader) GetFileText(ctx context.Context, file GraphFile) ([]byte, error) {
	next, ok := l.loaders[file.FileType]
	if !ok || next == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, file.FileType)
	}
	return next.GetFileText(ctx, file)
}
