package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const documentColumns = `database_id, collection_id, id, data, permissions, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var data, permissions []byte
	if err := row.Scan(&doc.DatabaseID, &doc.CollectionID, &doc.ID, &data, &permissions, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Data = map[string]any{}
	if err := json.Unmarshal(data, &doc.Data); err != nil {
		return Document{}, fmt.Errorf("decode document data: %w", err)
	}
	if err := json.Unmarshal(permissions, &doc.Permissions); err != nil {
		return Document{}, fmt.Errorf("decode document permissions: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	data, err := json.Marshal(nonNilMap(doc.Data))
	if err != nil {
		return Document{}, fmt.Errorf("encode document data: %w", err)
	}
	permissions, err := json.Marshal(nonNilSlice(doc.Permissions))
	if err != nil {
		return Document{}, fmt.Errorf("encode document permissions: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (database_id, collection_id, id, data, permissions)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
		RETURNING `+documentColumns,
		doc.DatabaseID, doc.CollectionID, doc.ID, string(data), string(permissions))
	inserted, err := scanDocument(row)
	if isUniqueViolation(err) {
		return Document{}, ErrConflict
	}
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE database_id=$1 AND collection_id=$2 AND id=$3
	`, databaseID, collectionID, documentID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// MergeDocument overlays data onto the stored attributes.
func (s *PostgresStore) MergeDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (Document, error) {
	patch, err := json.Marshal(nonNilMap(data))
	if err != nil {
		return Document{}, fmt.Errorf("encode document patch: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET data = data || $4::jsonb, updated_at = NOW()
		WHERE database_id=$1 AND collection_id=$2 AND id=$3
		RETURNING `+documentColumns,
		databaseID, collectionID, documentID, string(patch))
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("merge document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE database_id=$1 AND collection_id=$2 AND id=$3`, databaseID, collectionID, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns documents in insertion order. When readPermission is
// non-empty only documents granting it are returned.
func (s *PostgresStore) ListDocuments(ctx context.Context, databaseID, collectionID string, filters []Filter, readPermission string) ([]Document, error) {
	query, args, err := buildListQuery(databaseID, collectionID, filters, readPermission)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	documents := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}

func buildListQuery(databaseID, collectionID string, filters []Filter, readPermission string) (string, []any, error) {
	args := []any{databaseID, collectionID}
	clauses := []string{"database_id=$1", "collection_id=$2"}

	for _, filter := range filters {
		var alternatives []string
		for _, value := range filter.Values {
			contained, err := json.Marshal(map[string]any{filter.Attribute: value})
			if err != nil {
				return "", nil, fmt.Errorf("encode filter %s: %w", filter.Attribute, err)
			}
			args = append(args, string(contained))
			alternatives = append(alternatives, fmt.Sprintf("data @> $%d::jsonb", len(args)))
		}
		if len(alternatives) == 0 {
			clauses = append(clauses, "FALSE")
			continue
		}
		clauses = append(clauses, "("+strings.Join(alternatives, " OR ")+")")
	}

	if readPermission != "" {
		args = append(args, readPermission)
		clauses = append(clauses, fmt.Sprintf("permissions @> jsonb_build_array($%d::text)", len(args)))
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY seq`
	return query, args, nil
}

func nonNilMap(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return data
}

func nonNilSlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
