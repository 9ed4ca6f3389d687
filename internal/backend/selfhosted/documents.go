package selfhosted

import (
	"context"
	"errors"
	"net/http"

	"tasktree/api/internal/backend"
	"tasktree/api/internal/store"
	"tasktree/api/internal/util"
)

type documents struct {
	*client
}

func toDocument(doc store.Document) backend.Document {
	return backend.Document{
		ID:          doc.ID,
		Collection:  doc.CollectionID,
		Permissions: doc.Permissions,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		Data:        doc.Data,
	}
}

func (d *documents) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any, permissions []string) (backend.Document, error) {
	if _, err := d.sessionUser(ctx); err != nil {
		return backend.Document{}, err
	}
	if documentID == "" || documentID == "unique()" {
		documentID = util.NewID("")
	}
	inserted, err := d.backend.documents.InsertDocument(ctx, store.Document{
		DatabaseID:   databaseID,
		CollectionID: collectionID,
		ID:           documentID,
		Data:         data,
		Permissions:  permissions,
	})
	if errors.Is(err, store.ErrConflict) {
		return backend.Document{}, backend.NewError(http.StatusConflict, "document_already_exists", "Document with the requested ID already exists.")
	}
	if err != nil {
		return backend.Document{}, err
	}
	return toDocument(inserted), nil
}

func (d *documents) load(ctx context.Context, databaseID, collectionID, documentID, action string) (store.Document, error) {
	doc, err := d.backend.documents.GetDocument(ctx, databaseID, collectionID, documentID)
	if errors.Is(err, store.ErrNotFound) {
		if _, sessionErr := d.sessionUser(ctx); sessionErr != nil {
			return store.Document{}, sessionErr
		}
		return store.Document{}, documentNotFound()
	}
	if err != nil {
		return store.Document{}, err
	}
	if err := d.authorize(ctx, doc.Permissions, action, documentNotFound()); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

func (d *documents) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (backend.Document, error) {
	doc, err := d.load(ctx, databaseID, collectionID, documentID, "read")
	if err != nil {
		return backend.Document{}, err
	}
	return toDocument(doc), nil
}

func (d *documents) UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (backend.Document, error) {
	if _, err := d.load(ctx, databaseID, collectionID, documentID, "update"); err != nil {
		return backend.Document{}, err
	}
	merged, err := d.backend.documents.MergeDocument(ctx, databaseID, collectionID, documentID, data)
	if errors.Is(err, store.ErrNotFound) {
		return backend.Document{}, documentNotFound()
	}
	if err != nil {
		return backend.Document{}, err
	}
	return toDocument(merged), nil
}

func (d *documents) DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error {
	if _, err := d.load(ctx, databaseID, collectionID, documentID, "delete"); err != nil {
		return err
	}
	err := d.backend.documents.DeleteDocument(ctx, databaseID, collectionID, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return documentNotFound()
	}
	return err
}

func (d *documents) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...backend.Query) ([]backend.Document, error) {
	session, err := d.sessionUser(ctx)
	if err != nil {
		return nil, err
	}
	filters := make([]store.Filter, 0, len(queries))
	for _, query := range queries {
		if query.Method != "equal" {
			return nil, backend.NewError(http.StatusBadRequest, "general_query_invalid", "Invalid query method: "+query.Method)
		}
		filters = append(filters, store.Filter{Attribute: query.Attribute, Values: query.Values})
	}
	var readPermission string
	if session.AccountID != "" {
		readPermission = backend.Read(backend.UserRole(session.AccountID))
	}

	rows, err := d.backend.documents.ListDocuments(ctx, databaseID, collectionID, filters, readPermission)
	if err != nil {
		return nil, err
	}
	out := make([]backend.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDocument(row))
	}
	return out, nil
}
