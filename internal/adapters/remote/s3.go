package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

const noSuchKey = "NoSuchKey"

// S3Store implements ports.RemoteCache on an S3 compatible object store.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store connects to the object store described by settings.
func NewS3Store(settings domain.RemoteSettings) (*S3Store, error) {
	if settings.Bucket == "" {
		return nil, zerr.Wrap(domain.ErrRemoteCache, "remote.bucket is required for the s3 cache")
	}
	if settings.Endpoint == "" {
		return nil, zerr.Wrap(domain.ErrRemoteCache, "remote.endpoint is required for the s3 cache")
	}

	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure:       settings.Secure,
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrRemoteCache, err), "failed to create s3 client"), "endpoint", settings.Endpoint)
	}

	return &S3Store{
		client: client,
		bucket: settings.Bucket,
		prefix: settings.Prefix,
	}, nil
}

// Load downloads the object stored under key.
func (s *S3Store) Load(ctx context.Context, key domain.CacheKey) ([]byte, error) {
	name := s.objectName(key)
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(err, name)
	}
	defer func() {
		_ = obj.Close()
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.translate(err, name)
	}
	return data, nil
}

// Store uploads data under key.
func (s *S3Store) Store(ctx context.Context, key domain.CacheKey, data []byte) error {
	name := s.objectName(key)
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return s.translate(err, name)
	}
	return nil
}

func (s *S3Store) objectName(key domain.CacheKey) string {
	return path.Join(s.prefix, key.Hex())
}

func (s *S3Store) translate(err error, name string) error {
	if minio.ToErrorResponse(err).Code == noSuchKey {
		return zerr.With(zerr.Wrap(domain.ErrCacheMiss, "remote cache object not found"), "object", name)
	}
	wrapped := zerr.With(zerr.Wrap(errors.Join(domain.ErrRemoteCache, err), "s3 cache request failed"), "bucket", s.bucket)
	return zerr.With(wrapped, "object", name)
}
