package model

import (
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// MaxAttachmentSize is the upload ceiling for a single file (10 MiB).
const MaxAttachmentSize int64 = 10 * 1024 * 1024

type Attachment struct {
	FileID       string    `json:"fileId"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

func (a Attachment) IsPDF() bool {
	return a.MimeType == "application/pdf"
}

func (a Attachment) CanPreview() bool {
	return a.IsImage() || a.IsPDF()
}

// allowedTypes maps each accepted extension to the MIME types a client may
// declare for it.
var allowedTypes = map[string][]string{
	"jpg":  {"image/jpeg", "image/jpg"},
	"jpeg": {"image/jpeg", "image/jpg"},
	"png":  {"image/png"},
	"gif":  {"image/gif"},
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	"txt":  {"text/plain"},
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// AllowedExtensions lists the accepted extensions in a stable order.
func AllowedExtensions() []string {
	return []string{"jpg", "jpeg", "png", "gif", "pdf", "doc", "docx", "txt"}
}

// ResolveMimeType checks name against the extension allow-list and the
// declared MIME type against the types accepted for that extension. An empty
// or generic declared type is inferred from the extension. The returned MIME
// type is the one to store.
func ResolveMimeType(name, declared string) (string, error) {
	ext := Extension(name)
	accepted, ok := allowedTypes[ext]
	if !ok {
		return "", fmt.Errorf("file type .%s is not allowed; allowed types: %s", ext, strings.Join(AllowedExtensions(), ", "))
	}

	declared = strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(declared); err == nil {
		declared = parsed
	}
	if declared == "" || declared == "application/octet-stream" {
		return accepted[0], nil
	}
	for _, candidate := range accepted {
		if candidate == declared {
			return declared, nil
		}
	}
	return "", fmt.Errorf("file type %s does not match .%s; expected %s", declared, ext, strings.Join(accepted, " or "))
}

// StoredFilename is the blob name recorded for an attachment.
func StoredFilename(todoID, fileID, originalName string) string {
	return todoID + "_" + fileID + "_" + originalName
}

// DecodeAttachments parses the serialized attachment list stored on a task
// document. Empty or corrupt values decode to an empty list.
func DecodeAttachments(raw string) []Attachment {
	attachments := []Attachment{}
	if strings.TrimSpace(raw) == "" {
		return attachments
	}
	if err := json.Unmarshal([]byte(raw), &attachments); err != nil || attachments == nil {
		return []Attachment{}
	}
	return attachments
}

// EncodeAttachments serializes the attachment list for storage.
func EncodeAttachments(attachments []Attachment) (string, error) {
	if attachments == nil {
		attachments = []Attachment{}
	}
	encoded, err := json.Marshal(attachments)
	if err != nil {
		return "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(encoded), nil
}
