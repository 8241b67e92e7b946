package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader"
	s3loader "github.com/psaikeshav/PersonalKnowledgeGraph/pkg/loader/s3"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is the part of the S3 API the store uses.
type S3Client interface {
	s3loader.ObjectGetter
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type S3Params struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// PublicEndpoint is the address browsers reach the bucket under. Download
	// links are signed for it.
	PublicEndpoint string
}

// S3Store keeps uploads in an S3 compatible bucket.
type S3Store struct {
	bucket  string
	client  S3Client
	loader  *s3loader.S3GraphFileLoader
	presign *s3.PresignClient
	prefix  string
}

// NewS3Store creates a store with static credentials and path-style
// addressing, which MinIO needs.
func NewS3Store(ctx context.Context, params S3Params) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	store := NewS3StoreWithClient(params.Bucket, client)

	if params.PublicEndpoint != "" {
		publicURL, err := url.Parse(params.PublicEndpoint)
		if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
			return nil, fmt.Errorf("invalid public endpoint: %s", params.PublicEndpoint)
		}
		// Sign against scheme and host only so the signature matches the
		// Host header the browser sends. A path prefix is re-added later.
		base := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)
		store.presign = s3.NewPresignClient(s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(base)
			o.UsePathStyle = true
		}))
		store.prefix = strings.TrimSuffix(publicURL.Path, "/")
	}
	return store, nil
}

func NewS3StoreWithClient(bucket string, client S3Client) *S3Store {
	return &S3Store{
		bucket: bucket,
		client: client,
		loader: s3loader.NewS3GraphFileLoaderWithClient(bucket, client),
	}
}

func (s *S3Store) PutFile(ctx context.Context, prefix, name, key string, file io.ReadSeeker) (string, error) {
	objKey := objectKey(prefix, name, key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objKey),
		Body:        file,
		ContentType: aws.String(mime.TypeByExtension(path.Ext(name))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return objKey, nil
}

func (s *S3Store) DeleteFolder(ctx context.Context, prefix string) error {
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := s.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects in folder %s: %w", prefix, err)
		}
		if len(listOutput.Contents) == 0 {
			break
		}

		objects := make([]types.ObjectIdentifier, 0, len(listOutput.Contents))
		for _, obj := range listOutput.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in folder %s: %w", prefix, err)
		}

		if !aws.ToBool(listOutput.IsTruncated) {
			break
		}
		listInput.ContinuationToken = listOutput.NextContinuationToken
	}
	return nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	return out.Body, nil
}

// DownloadLink presigns a GET for key that is valid for 15 minutes. It
// fails when no public endpoint is configured.
func (s *S3Store) DownloadLink(ctx context.Context, key string) (string, error) {
	if s.presign == nil {
		return "", errors.New("no public endpoint configured")
	}
	out, err := s.presign.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(15*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}
	if s.prefix == "" {
		return out.URL, nil
	}

	signedURL, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned url: %w", err)
	}
	signedURL.Path = s.prefix + signedURL.Path
	return signedURL.String(), nil
}

func (s *S3Store) Loader() loader.GraphFileLoader {
	return s.loader
}
