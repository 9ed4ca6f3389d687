package selfhosted

import (
	"context"
	"errors"
	"io"
	"net/http"

	"tasktree/api/internal/backend"
	"tasktree/api/internal/util"
)

type storage struct {
	*client
}

func (s *storage) CreateFile(ctx context.Context, bucketID string, input backend.FileInput) (backend.File, error) {
	if _, err := s.sessionUser(ctx); err != nil {
		return backend.File{}, err
	}
	fileID := input.ID
	if fileID == "" || fileID == "unique()" {
		fileID = util.NewID("")
	}
	if _, err := s.backend.objects.Stat(ctx, bucketID, fileID); err == nil {
		return backend.File{}, backend.NewError(http.StatusConflict, "storage_file_already_exists", "A storage file with the requested ID already exists.")
	} else if !errors.Is(err, ErrObjectNotFound) {
		return backend.File{}, err
	}

	metadata, err := encodeMetadata(input.Name, input.Permissions)
	if err != nil {
		return backend.File{}, err
	}
	size := input.Size
	if size <= 0 {
		size = -1
	}
	info, err := s.backend.objects.Put(ctx, bucketID, fileID, input.Body, size, input.MimeType, metadata)
	if err != nil {
		return backend.File{}, err
	}
	createdAt := info.LastModified
	if createdAt.IsZero() {
		createdAt = s.backend.now().UTC()
	}
	return backend.File{
		ID:          fileID,
		BucketID:    bucketID,
		Name:        input.Name,
		MimeType:    input.MimeType,
		Size:        info.Size,
		Permissions: input.Permissions,
		CreatedAt:   createdAt,
	}, nil
}

// authorizeFile loads object metadata and checks it against the client.
func (s *storage) authorizeFile(ctx context.Context, bucketID, fileID, action string) (ObjectInfo, error) {
	info, err := s.backend.objects.Stat(ctx, bucketID, fileID)
	if errors.Is(err, ErrObjectNotFound) {
		if _, sessionErr := s.sessionUser(ctx); sessionErr != nil {
			return ObjectInfo{}, sessionErr
		}
		return ObjectInfo{}, fileNotFound()
	}
	if err != nil {
		return ObjectInfo{}, err
	}
	_, permissions := decodeMetadata(info.Metadata)
	if err := s.authorize(ctx, permissions, action, fileNotFound()); err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}

func (s *storage) open(ctx context.Context, bucketID, fileID string) (io.ReadCloser, ObjectInfo, error) {
	if _, err := s.authorizeFile(ctx, bucketID, fileID, "read"); err != nil {
		return nil, ObjectInfo{}, err
	}
	body, info, err := s.backend.objects.Get(ctx, bucketID, fileID)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, ObjectInfo{}, fileNotFound()
	}
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return body, info, nil
}

func (s *storage) GetFileDownload(ctx context.Context, bucketID, fileID string) (*backend.Blob, error) {
	body, info, err := s.open(ctx, bucketID, fileID)
	if err != nil {
		return nil, err
	}
	return &backend.Blob{Body: body, ContentType: info.ContentType, Size: info.Size}, nil
}

func (s *storage) GetFilePreview(ctx context.Context, bucketID, fileID string, opts backend.PreviewOptions) (*backend.Blob, error) {
	body, info, err := s.open(ctx, bucketID, fileID)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return backend.ResizePreview(body, info.ContentType, opts)
}

func (s *storage) DeleteFile(ctx context.Context, bucketID, fileID string) error {
	if _, err := s.authorizeFile(ctx, bucketID, fileID, "delete"); err != nil {
		return err
	}
	err := s.backend.objects.Remove(ctx, bucketID, fileID)
	if errors.Is(err, ErrObjectNotFound) {
		return fileNotFound()
	}
	return err
}
