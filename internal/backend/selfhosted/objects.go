package selfhosted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned by ObjectStore for missing keys.
var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// ObjectStore is the blob persistence the driver needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, metadata map[string]string) (ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Remove(ctx context.Context, bucket, key string) error
}

// MinIOStore stores blobs in an S3-compatible service.
type MinIOStore struct {
	client *minio.Client
}

func NewMinIOStore(endpoint, accessKey, secretKey string, useSSL bool) (*MinIOStore, error) {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client}, nil
}

func (s *MinIOStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *MinIOStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string, metadata map[string]string) (ObjectInfo, error) {
	info, err := s.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  contentType,
		LastModified: info.LastModified,
		Metadata:     metadata,
	}, nil
}

func (s *MinIOStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateMinIOError(key, err)
	}
	return objectInfo(info), nil
}

func (s *MinIOStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, translateMinIOError(key, err)
	}
	info, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return nil, ObjectInfo{}, translateMinIOError(key, err)
	}
	return object, objectInfo(info), nil
}

func (s *MinIOStore) Remove(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return translateMinIOError(key, err)
	}
	return nil
}

func objectInfo(info minio.ObjectInfo) ObjectInfo {
	metadata := make(map[string]string, len(info.UserMetadata))
	for key, value := range info.UserMetadata {
		metadata[strings.ToLower(key)] = value
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
		Metadata:     metadata,
	}
}

func translateMinIOError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return ErrObjectNotFound
	}
	return fmt.Errorf("object %s: %w", key, err)
}

const (
	metaPermissions = "permissions"
	metaName        = "name"
)

func encodeMetadata(name string, permissions []string) (map[string]string, error) {
	encoded, err := json.Marshal(permissions)
	if err != nil {
		return nil, fmt.Errorf("encode permissions: %w", err)
	}
	return map[string]string{
		metaPermissions: string(encoded),
		metaName:        url.QueryEscape(name),
	}, nil
}

func decodeMetadata(metadata map[string]string) (string, []string) {
	var permissions []string
	_ = json.Unmarshal([]byte(metadata[metaPermissions]), &permissions)
	name, err := url.QueryUnescape(metadata[metaName])
	if err != nil {
		name = metadata[metaName]
	}
	return name, permissions
}
