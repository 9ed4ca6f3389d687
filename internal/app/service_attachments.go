package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"tasktree/api/internal/access"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/model"
	"tasktree/api/internal/util"
)

// FileUpload is a received file. Size is the number of bytes in Body.
type FileUpload struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

type UploadResult struct {
	Attachment model.Attachment `json:"attachment"`
	Todo       model.Todo       `json:"todo"`
}

type DeleteAttachmentResult struct {
	DeletedAttachment    model.Attachment   `json:"deletedAttachment"`
	Todo                 model.Todo         `json:"todo"`
	RemainingAttachments []model.Attachment `json:"remainingAttachments"`
}

type AttachmentMetadata struct {
	model.Attachment
	DownloadURL string  `json:"downloadUrl"`
	PreviewURL  *string `json:"previewUrl"`
	IsImage     bool    `json:"isImage"`
	CanPreview  bool    `json:"canPreview"`
}

// AttachmentStream is an open blob with the headers to send it with.
// Callers must close Blob.Body.
type AttachmentStream struct {
	Attachment  model.Attachment
	Blob        *backend.Blob
	ContentType string
	Length      int64
}

func (s *Service) loadAttachment(ctx context.Context, rc access.RequestContext, todoID, fileID, deniedMessage string) (model.Identity, *backend.Client, model.Todo, int, error) {
	identity, client, err := s.userClient(rc)
	if err != nil {
		return model.Identity{}, nil, model.Todo{}, -1, err
	}
	todo, err := s.loadOwnedTodo(ctx, client, identity, todoID, deniedMessage)
	if err != nil {
		return model.Identity{}, nil, model.Todo{}, -1, err
	}
	if fileID == "" {
		return model.Identity{}, nil, model.Todo{}, -1, validationError("File ID is required")
	}
	index := todo.FindAttachment(fileID)
	if index < 0 {
		return model.Identity{}, nil, model.Todo{}, -1, notFound("Attachment not found")
	}
	return identity, client, todo, index, nil
}

const uploadDenied = "You can only add attachments to your own todos"

// AuthorizeUpload runs the ownership guard for todoID before an upload body
// is read, so a non-owner is refused whatever they send.
func (s *Service) AuthorizeUpload(ctx context.Context, rc access.RequestContext, todoID string) error {
	identity, client, err := s.userClient(rc)
	if err != nil {
		return err
	}
	_, err = s.loadOwnedTodo(ctx, client, identity, todoID, uploadDenied)
	return err
}

// UploadAttachment validates, stores and records a file. The blob is written
// first; if recording it on the todo fails the blob is removed again on a
// best-effort basis.
func (s *Service) UploadAttachment(ctx context.Context, rc access.RequestContext, todoID string, upload FileUpload) (UploadResult, error) {
	identity, client, err := s.userClient(rc)
	if err != nil {
		return UploadResult{}, err
	}
	todo, err := s.loadOwnedTodo(ctx, client, identity, todoID, uploadDenied)
	if err != nil {
		return UploadResult{}, err
	}

	if upload.Name == "" || upload.Body == nil {
		return UploadResult{}, validationError("Invalid file data")
	}
	if upload.Size > model.MaxAttachmentSize {
		return UploadResult{}, domainError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum limit of %dMB", model.MaxAttachmentSize/(1024*1024)), nil)
	}
	mimeType, err := model.ResolveMimeType(upload.Name, upload.MimeType)
	if err != nil {
		return UploadResult{}, domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error(),
			map[string]any{"allowed": model.AllowedExtensions()})
	}

	fileID := util.NewID("")
	filename := model.StoredFilename(todo.ID, fileID, upload.Name)
	role := backend.UserRole(identity.ID)

	// The blob call outlives a disconnected client.
	blobCtx := context.WithoutCancel(ctx)
	file, err := client.Storage.CreateFile(blobCtx, s.bucketID(), backend.FileInput{
		ID:          fileID,
		Name:        filename,
		MimeType:    mimeType,
		Size:        upload.Size,
		Body:        upload.Body,
		Permissions: []string{backend.Read(role), backend.Delete(role)},
	})
	if err != nil {
		log.Printf("attachments: store blob for todo %s: %v", todo.ID, err)
		return UploadResult{}, err
	}

	attachment := model.Attachment{
		FileID:       file.ID,
		Filename:     filename,
		OriginalName: upload.Name,
		Size:         upload.Size,
		MimeType:     mimeType,
		UploadedAt:   s.now(),
	}

	updated, err := s.recordAttachments(blobCtx, client, todo.ID, func(current []model.Attachment) []model.Attachment {
		return append(current, attachment)
	})
	if err != nil {
		log.Printf("attachments: blob %s stored but todo %s not updated: %v", file.ID, todo.ID, err)
		if cleanupErr := client.Storage.DeleteFile(blobCtx, s.bucketID(), file.ID); cleanupErr != nil {
			log.Printf("attachments: orphaned blob %s: %v", file.ID, cleanupErr)
		}
		return UploadResult{}, err
	}
	return UploadResult{Attachment: attachment, Todo: updated}, nil
}

// recordAttachments re-reads the todo, rewrites its attachment list and
// stamps updatedAt.
func (s *Service) recordAttachments(ctx context.Context, client *backend.Client, todoID string, mutate func([]model.Attachment) []model.Attachment) (model.Todo, error) {
	doc, err := client.Documents.GetDocument(ctx, s.databaseID(), s.collectionID(), todoID)
	if err != nil {
		return model.Todo{}, err
	}
	current := todoFromDocument(doc)
	encoded, err := model.EncodeAttachments(mutate(current.Attachments))
	if err != nil {
		return model.Todo{}, err
	}
	doc, err = client.Documents.UpdateDocument(ctx, s.databaseID(), s.collectionID(), todoID, map[string]any{
		"attachments": encoded,
		"updatedAt":   s.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return model.Todo{}, err
	}
	return todoFromDocument(doc), nil
}

// DeleteAttachment removes the blob, then the attachment record. A missing
// blob counts as already deleted; any other blob failure leaves the todo
// untouched.
func (s *Service) DeleteAttachment(ctx context.Context, rc access.RequestContext, todoID, fileID string) (DeleteAttachmentResult, error) {
	_, client, todo, index, err := s.loadAttachment(ctx, rc, todoID, fileID, "You can only delete attachments from your own todos")
	if err != nil {
		return DeleteAttachmentResult{}, err
	}
	attachment := todo.Attachments[index]

	if err := client.Storage.DeleteFile(ctx, s.bucketID(), fileID); err != nil {
		if !backend.IsNotFound(err) {
			log.Printf("attachments: delete blob %s: %v", fileID, err)
			return DeleteAttachmentResult{}, err
		}
		log.Printf("attachments: blob %s already gone", fileID)
	}

	updated, err := s.recordAttachments(context.WithoutCancel(ctx), client, todo.ID, func(current []model.Attachment) []model.Attachment {
		remaining := make([]model.Attachment, 0, len(current))
		for _, candidate := range current {
			if candidate.FileID != fileID {
				remaining = append(remaining, candidate)
			}
		}
		return remaining
	})
	if err != nil {
		log.Printf("attachments: blob %s deleted but todo %s still lists it: %v", fileID, todo.ID, err)
		return DeleteAttachmentResult{}, domainError(http.StatusInternalServerError, "PARTIAL_FAILURE",
			"The file was deleted but the todo could not be updated. Retry the delete to finish cleanup.",
			map[string]any{"todoId": todo.ID, "fileId": fileID})
	}
	return DeleteAttachmentResult{
		DeletedAttachment:    attachment,
		Todo:                 updated,
		RemainingAttachments: updated.Attachments,
	}, nil
}

func (s *Service) AttachmentMetadata(ctx context.Context, rc access.RequestContext, todoID, fileID string) (AttachmentMetadata, error) {
	_, _, todo, index, err := s.loadAttachment(ctx, rc, todoID, fileID, "You can only access attachments from your own todos")
	if err != nil {
		return AttachmentMetadata{}, err
	}
	attachment := todo.Attachments[index]
	base := fmt.Sprintf("/api/todos/%s/attachments/%s", todo.ID, attachment.FileID)

	meta := AttachmentMetadata{
		Attachment:  attachment,
		DownloadURL: base + "?download=true",
		IsImage:     attachment.IsImage(),
		CanPreview:  attachment.CanPreview(),
	}
	switch {
	case attachment.IsImage():
		preview := base + "/preview?type=image"
		meta.PreviewURL = &preview
	case attachment.IsPDF():
		preview := base + "/preview?type=pdf"
		meta.PreviewURL = &preview
	}
	return meta, nil
}

// DownloadAttachment fetches the todo and opens the blob concurrently. The
// blob is discarded unless the guard passes and the todo lists the file.
func (s *Service) DownloadAttachment(ctx context.Context, rc access.RequestContext, todoID, fileID string) (*AttachmentStream, error) {
	identity, client, err := s.userClient(rc)
	if err != nil {
		return nil, err
	}
	if fileID == "" {
		return nil, validationError("File ID is required")
	}

	var (
		todo    model.Todo
		blob    *backend.Blob
		blobErr error
	)
	// The blob body outlives Wait, so neither call may use a group context.
	var g errgroup.Group
	g.Go(func() error {
		var err error
		todo, err = s.loadOwnedTodo(ctx, client, identity, todoID, "You can only access attachments from your own todos")
		return err
	})
	g.Go(func() error {
		blob, blobErr = client.Storage.GetFileDownload(ctx, s.bucketID(), fileID)
		return nil
	})
	err = g.Wait()
	discard := func() {
		if blob != nil && blob.Body != nil {
			_ = blob.Body.Close()
		}
	}
	if err != nil {
		discard()
		return nil, err
	}
	index := todo.FindAttachment(fileID)
	if index < 0 {
		discard()
		return nil, notFound("Attachment not found")
	}
	if blobErr != nil {
		if backend.IsNotFound(blobErr) {
			return nil, notFound("File not found in storage")
		}
		return nil, blobErr
	}
	attachment := todo.Attachments[index]
	return &AttachmentStream{
		Attachment:  attachment,
		Blob:        blob,
		ContentType: attachment.MimeType,
		Length:      attachment.Size,
	}, nil
}

// PreviewAttachment serves a resized image or the raw PDF. Other types are
// rejected.
func (s *Service) PreviewAttachment(ctx context.Context, rc access.RequestContext, todoID, fileID, previewType string) (*AttachmentStream, error) {
	_, client, todo, index, err := s.loadAttachment(ctx, rc, todoID, fileID, "You can only access attachments from your own todos")
	if err != nil {
		return nil, err
	}
	attachment := todo.Attachments[index]

	var (
		blob        *backend.Blob
		contentType string
	)
	switch {
	case previewType == "image" && attachment.IsImage():
		blob, err = client.Storage.GetFilePreview(ctx, s.bucketID(), fileID, backend.PreviewOptions{Width: previewWidth, Height: previewHeight})
		contentType = attachment.MimeType
	case previewType == "pdf" && attachment.IsPDF():
		blob, err = client.Storage.GetFileDownload(ctx, s.bucketID(), fileID)
		contentType = "application/pdf"
	default:
		return nil, validationError("Preview not supported for this file type")
	}
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, notFound("File not found in storage")
		}
		return nil, err
	}
	if blob.ContentType != "" {
		contentType = blob.ContentType
	}
	return &AttachmentStream{
		Attachment:  attachment,
		Blob:        blob,
		ContentType: contentType,
		Length:      blob.Size,
	}, nil
}
