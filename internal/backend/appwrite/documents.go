package appwrite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/appwrite/sdk-for-go/appwrite"
	awclient "github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/databases"
	"github.com/appwrite/sdk-for-go/id"
	"github.com/appwrite/sdk-for-go/query"

	"tasktree/api/internal/backend"
)

// listPageSize is the page size requested when walking a listing. The backend
// defaults to 25 rows when no limit is sent.
const listPageSize = 100

func (c *client) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any, permissions []string) (backend.Document, error) {
	if documentID == "" {
		documentID = id.Unique()
	}
	var doc backend.Document
	err := c.call(ctx, func(conn awclient.Client) error {
		dbs := sdk.NewDatabases(conn)
		var options []databases.CreateDocumentOption
		if len(permissions) > 0 {
			options = append(options, dbs.WithCreateDocumentPermissions(permissions))
		}
		created, err := dbs.CreateDocument(databaseID, collectionID, documentID, data, options...)
		if err != nil {
			return err
		}
		doc, err = decodeDocumentModel(created)
		return err
	})
	return doc, err
}

func (c *client) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (backend.Document, error) {
	var doc backend.Document
	err := c.call(ctx, func(conn awclient.Client) error {
		found, err := sdk.NewDatabases(conn).GetDocument(databaseID, collectionID, documentID)
		if err != nil {
			return err
		}
		doc, err = decodeDocumentModel(found)
		return err
	})
	return doc, err
}

func (c *client) UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (backend.Document, error) {
	var doc backend.Document
	err := c.call(ctx, func(conn awclient.Client) error {
		dbs := sdk.NewDatabases(conn)
		updated, err := dbs.UpdateDocument(databaseID, collectionID, documentID, dbs.WithUpdateDocumentData(data))
		if err != nil {
			return err
		}
		doc, err = decodeDocumentModel(updated)
		return err
	})
	return doc, err
}

func (c *client) DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error {
	return c.call(ctx, func(conn awclient.Client) error {
		_, err := sdk.NewDatabases(conn).DeleteDocument(databaseID, collectionID, documentID)
		return err
	})
}

// ListDocuments walks every page of the listing with cursor pagination.
func (c *client) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...backend.Query) ([]backend.Document, error) {
	filters := make([]string, 0, len(queries))
	for _, q := range queries {
		encoded, err := encodeQuery(q)
		if err != nil {
			return nil, err
		}
		filters = append(filters, encoded)
	}

	documents := []backend.Document{}
	cursor := ""
	for {
		page := append(append([]string{}, filters...), query.Limit(listPageSize))
		if cursor != "" {
			page = append(page, query.CursorAfter(cursor))
		}

		var payload struct {
			Total     int                          `json:"total"`
			Documents []map[string]json.RawMessage `json:"documents"`
		}
		err := c.call(ctx, func(conn awclient.Client) error {
			dbs := sdk.NewDatabases(conn)
			list, err := dbs.ListDocuments(databaseID, collectionID, dbs.WithListDocumentsQueries(page))
			if err != nil {
				return err
			}
			return decodeModel(list, &payload)
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range payload.Documents {
			doc, err := decodeDocument(raw)
			if err != nil {
				return nil, err
			}
			documents = append(documents, doc)
		}

		if len(payload.Documents) < listPageSize || (payload.Total > 0 && len(documents) >= payload.Total) {
			return documents, nil
		}
		cursor = documents[len(documents)-1].ID
	}
}

func encodeQuery(q backend.Query) (string, error) {
	if q.Method == "equal" {
		return query.Equal(q.Attribute, q.Values), nil
	}
	encoded, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encode query: %w", err)
	}
	return string(encoded), nil
}

func decodeDocumentModel(model decoder) (backend.Document, error) {
	var raw map[string]json.RawMessage
	if err := decodeModel(model, &raw); err != nil {
		return backend.Document{}, err
	}
	return decodeDocument(raw)
}

// decodeDocument splits system attributes ($-prefixed) from user data.
func decodeDocument(raw map[string]json.RawMessage) (backend.Document, error) {
	doc := backend.Document{Data: map[string]any{}}
	for key, value := range raw {
		if !strings.HasPrefix(key, "$") {
			var decoded any
			if err := json.Unmarshal(value, &decoded); err != nil {
				return backend.Document{}, fmt.Errorf("decode attribute %s: %w", key, err)
			}
			doc.Data[key] = decoded
			continue
		}
		var err error
		switch key {
		case "$id":
			err = json.Unmarshal(value, &doc.ID)
		case "$collectionId":
			err = json.Unmarshal(value, &doc.Collection)
		case "$permissions":
			err = json.Unmarshal(value, &doc.Permissions)
		case "$createdAt":
			var ts string
			err = json.Unmarshal(value, &ts)
			doc.CreatedAt = parseTime(ts)
		case "$updatedAt":
			var ts string
			err = json.Unmarshal(value, &ts)
			doc.UpdatedAt = parseTime(ts)
		}
		if err != nil {
			return backend.Document{}, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return doc, nil
}
