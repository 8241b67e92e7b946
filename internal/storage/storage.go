package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/psaikeshav/PersonalKnowledgeGraph/internal/util"
	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
)

// UploadPrefix is the folder uploaded documents are stored under.
const UploadPrefix = "uploads"

// FileStore keeps the original bytes of uploaded documents.
type FileStore interface {
	// PutFile stores file as <prefix>/<key>.<ext of name> and returns the
	// storage key.
	PutFile(ctx context.Context, prefix, name, key string, file io.ReadSeeker) (string, error)
	// DeleteFolder removes everything stored under prefix.
	DeleteFolder(ctx context.Context, prefix string) error
	// Open streams a stored file. Missing keys wrap ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Loader reads stored files back for the ingestion pipeline.
	Loader() loader.GraphFileLoader
}

// LinkGenerator is implemented by stores that can hand out temporary
// download links instead of streaming through the server.
type LinkGenerator interface {
	DownloadLink(ctx context.Context, key string) (string, error)
}

var ErrNotFound = errors.New("file not found")

// objectKey builds the storage key for an uploaded file.
func objectKey(prefix, name, key string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return path.Join(prefix, key)
	}
	return path.Join(prefix, fmt.Sprintf("%s.%s", key, ext))
}

// NewFromEnv returns an S3 store when AWS_BUCKET is set and a local store
// under UPLOAD_DIR otherwise.
func NewFromEnv(ctx context.Context) (FileStore, error) {
	if util.GetEnv("AWS_BUCKET") != "" {
		return NewS3Store(ctx, S3Params{
			Bucket:    util.GetEnv("AWS_BUCKET"),
			Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),

			PublicEndpoint: util.GetEnv("AWS_PUBLIC_ENDPOINT"),
		})
	}
	return NewLocalStore(util.GetEnvString("UPLOAD_DIR", "./data/uploads"))
}
