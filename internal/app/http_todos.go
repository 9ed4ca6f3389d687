package app

import (
	"bytes"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"

	"tasktree/api/internal/access"
	"tasktree/api/internal/model"
)

// multipartOverhead is the room left for multipart framing above the file
// size limit.
const multipartOverhead = 1 << 20

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (access.RequestContext, bool) {
	rc := s.service.Resolve(r)
	if !rc.Authenticated() {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return access.RequestContext{}, false
	}
	return rc, true
}

func (s *HTTPServer) handleTodos(w http.ResponseWriter, r *http.Request, parts []string) {
	rc, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			query := r.URL.Query()
			todos, err := s.service.ListTodos(r.Context(), rc, ListOptions{
				Filter: query.Get("filter"),
				Query:  query.Get("q"),
			})
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, todos)
		case http.MethodPost:
			var body model.NewTodo
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			todo, err := s.service.CreateTodo(r.Context(), rc, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, todo)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	todoID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPut:
			var patch model.TodoPatch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			todo, err := s.service.UpdateTodo(r.Context(), rc, todoID, patch)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, todo)
		case http.MethodDelete:
			if err := s.service.DeleteTodo(r.Context(), rc, todoID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeSuccess(w, http.StatusOK, map[string]any{"id": todoID, "deleted": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if parts[1] != "attachments" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	s.handleAttachments(w, r, rc, todoID, parts[2:])
}

func (s *HTTPServer) handleAttachments(w http.ResponseWriter, r *http.Request, rc access.RequestContext, todoID string, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		if err := s.service.AuthorizeUpload(r.Context(), rc, todoID); err != nil {
			writeMappedError(w, err)
			return
		}
		upload, err := readUpload(w, r)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		result, err := s.service.UploadAttachment(r.Context(), rc, todoID, upload)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result)

	case len(parts) == 1 && r.Method == http.MethodGet:
		if r.URL.Query().Get("download") == "true" {
			stream, err := s.service.DownloadAttachment(r.Context(), rc, todoID, parts[0])
			if err != nil {
				writeMappedError(w, err)
				return
			}
			w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": stream.Attachment.OriginalName}))
			w.Header().Set("Cache-Control", "no-cache")
			writeStream(w, stream)
			return
		}
		meta, err := s.service.AttachmentMetadata(r.Context(), rc, todoID, parts[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, meta)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		result, err := s.service.DeleteAttachment(r.Context(), rc, todoID, parts[0])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, result)

	case len(parts) == 2 && parts[1] == "preview" && r.Method == http.MethodGet:
		stream, err := s.service.PreviewAttachment(r.Context(), rc, todoID, parts[0], r.URL.Query().Get("type"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=3600")
		writeStream(w, stream)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func writeStream(w http.ResponseWriter, stream *AttachmentStream) {
	defer stream.Blob.Body.Close()
	w.Header().Set("Content-Type", stream.ContentType)
	if stream.Length > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stream.Length, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream.Blob.Body); err != nil {
		log.Printf("attachments: stream %s: %v", stream.Attachment.FileID, err)
	}
}

// readUpload buffers the "file" part of a multipart body. At most one byte
// beyond the size limit is read so oversized files are still reported with
// their class of error.
func readUpload(w http.ResponseWriter, r *http.Request) (FileUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, model.MaxAttachmentSize+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		return FileUpload{}, validationError("No file provided")
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return FileUpload{}, validationError("No file provided")
		}
		if err != nil {
			return FileUpload{}, uploadReadError(err)
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		if part.FileName() == "" {
			return FileUpload{}, validationError("Invalid file data")
		}
		var buf bytes.Buffer
		size, err := io.Copy(&buf, io.LimitReader(part, model.MaxAttachmentSize+1))
		if err != nil {
			return FileUpload{}, uploadReadError(err)
		}
		return FileUpload{
			Name:     part.FileName(),
			MimeType: part.Header.Get("Content-Type"),
			Size:     size,
			Body:     &buf,
		}, nil
	}
}

func uploadReadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domainError(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "File size exceeds maximum limit of 10MB", nil)
	}
	return validationError("Invalid multipart body")
}
