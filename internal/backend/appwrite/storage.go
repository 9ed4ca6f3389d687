package appwrite

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	sdk "github.com/appwrite/sdk-for-go/appwrite"
	awclient "github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/file"
	"github.com/appwrite/sdk-for-go/id"
	"github.com/appwrite/sdk-for-go/models"
	"github.com/appwrite/sdk-for-go/storage"

	"tasktree/api/internal/backend"
)

func toFile(f *models.File) backend.File {
	return backend.File{
		ID:          f.Id,
		BucketID:    f.BucketId,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        int64(f.SizeOriginal),
		Permissions: f.Permissions,
		CreatedAt:   parseTime(f.CreatedAt),
	}
}

func filePath(bucketID, fileID string) string {
	return "/storage/buckets/" + url.PathEscape(bucketID) + "/files/" + url.PathEscape(fileID)
}

// CreateFile spools input to a temporary file and hands it to the SDK, which
// uploads in chunks of at most chunkSize under one file id.
func (c *client) CreateFile(ctx context.Context, bucketID string, input backend.FileInput) (backend.File, error) {
	spool, err := os.CreateTemp("", "tasktree-upload-*")
	if err != nil {
		return backend.File{}, fmt.Errorf("spool upload: %w", err)
	}
	defer os.Remove(spool.Name())
	if _, err := io.Copy(spool, input.Body); err != nil {
		spool.Close()
		return backend.File{}, fmt.Errorf("read upload: %w", err)
	}
	if err := spool.Close(); err != nil {
		return backend.File{}, fmt.Errorf("spool upload: %w", err)
	}

	fileID := input.ID
	if fileID == "" {
		fileID = id.Unique()
	}
	var created backend.File
	err = c.call(ctx, func(conn awclient.Client) error {
		st := sdk.NewStorage(conn)
		var options []storage.CreateFileOption
		if len(input.Permissions) > 0 {
			options = append(options, st.WithCreateFilePermissions(input.Permissions))
		}
		out, err := st.CreateFile(bucketID, fileID, file.NewInputFile(spool.Name(), input.Name), options...)
		if err != nil {
			return err
		}
		created = toFile(out)
		return nil
	})
	return created, err
}

func (c *client) GetFileDownload(ctx context.Context, bucketID, fileID string) (*backend.Blob, error) {
	return c.stream(ctx, filePath(bucketID, fileID)+"/download")
}

func (c *client) GetFilePreview(ctx context.Context, bucketID, fileID string, opts backend.PreviewOptions) (*backend.Blob, error) {
	values := url.Values{}
	if opts.Width > 0 {
		values.Set("width", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		values.Set("height", strconv.Itoa(opts.Height))
	}
	path := filePath(bucketID, fileID) + "/preview"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	return c.stream(ctx, path)
}

func (c *client) DeleteFile(ctx context.Context, bucketID, fileID string) error {
	return c.call(ctx, func(conn awclient.Client) error {
		_, err := sdk.NewStorage(conn).DeleteFile(bucketID, fileID)
		return err
	})
}
