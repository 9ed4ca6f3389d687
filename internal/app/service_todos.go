package app

import (
	"context"
	"log"
	"strings"

	"tasktree/api/internal/access"
	"tasktree/api/internal/backend"
	"tasktree/api/internal/model"
	"tasktree/api/internal/search"
	"tasktree/api/internal/util"
)

// ListOptions narrows an owner's todo list.
type ListOptions struct {
	Filter string
	Query  string
}

func (s *Service) CreateTodo(ctx context.Context, rc access.RequestContext, input model.NewTodo) (model.Todo, error) {
	identity, client, err := s.userClient(rc)
	if err != nil {
		return model.Todo{}, err
	}
	todo, err := input.Build(identity.ID, s.now())
	if err != nil {
		return model.Todo{}, err
	}
	data, err := todoData(todo)
	if err != nil {
		return model.Todo{}, err
	}

	doc, err := client.Documents.CreateDocument(ctx, s.databaseID(), s.collectionID(), util.NewID(""), data, backend.OwnerPermissions(identity.ID))
	if err != nil {
		return model.Todo{}, err
	}
	created := todoFromDocument(doc)
	s.search.IndexTodo(created)
	return created, nil
}

// ListTodos returns the caller's todos in store order. The owner filter is
// applied by the store, never after the fact.
func (s *Service) ListTodos(ctx context.Context, rc access.RequestContext, opts ListOptions) ([]model.Todo, error) {
	identity, client, err := s.userClient(rc)
	if err != nil {
		return nil, err
	}
	filter := strings.ToLower(strings.TrimSpace(opts.Filter))
	switch filter {
	case "", "all", "active", "completed":
	default:
		return nil, validationError("filter must be one of all, active, completed")
	}

	docs, err := client.Documents.ListDocuments(ctx, s.databaseID(), s.collectionID(), backend.Equal("createdBy", identity.ID))
	if err != nil {
		return nil, err
	}
	todos := make([]model.Todo, 0, len(docs))
	for _, doc := range docs {
		todo := todoFromDocument(doc)
		if todo.CreatedBy != identity.ID {
			continue
		}
		switch {
		case filter == "active" && todo.Completed:
			continue
		case filter == "completed" && !todo.Completed:
			continue
		}
		todos = append(todos, todo)
	}

	if query := strings.TrimSpace(opts.Query); query != "" {
		todos = s.search.Search(search.Query{Text: query, OwnerID: identity.ID}, todos)
	}
	return todos, nil
}

// loadOwnedTodo fetches a todo and runs the ownership guard. A missing todo
// is reported as such, never as forbidden. Which one a non-owner sees depends
// on the credentials: service-key reads find the todo and fail the guard
// (403), while a forwarded backend session cannot read it at all (404).
func (s *Service) loadOwnedTodo(ctx context.Context, client *backend.Client, identity model.Identity, todoID, deniedMessage string) (model.Todo, error) {
	if strings.TrimSpace(todoID) == "" {
		return model.Todo{}, validationError("Todo ID is required")
	}
	doc, err := client.Documents.GetDocument(ctx, s.databaseID(), s.collectionID(), todoID)
	if err != nil {
		if backend.IsNotFound(err) {
			return model.Todo{}, notFound("Todo not found")
		}
		return model.Todo{}, err
	}
	todo := todoFromDocument(doc)
	if err := access.AssertOwner(identity, todo); err != nil {
		return model.Todo{}, forbidden(deniedMessage)
	}
	return todo, nil
}

func (s *Service) UpdateTodo(ctx context.Context, rc access.RequestContext, todoID string, patch model.TodoPatch) (model.Todo, error) {
	identity, client, err := s.userClient(rc)
	if err != nil {
		return model.Todo{}, err
	}
	todo, err := s.loadOwnedTodo(ctx, client, identity, todoID, "You can only update your own todos")
	if err != nil {
		return model.Todo{}, err
	}
	next, err := patch.Apply(todo, s.now())
	if err != nil {
		return model.Todo{}, err
	}

	doc, err := client.Documents.UpdateDocument(ctx, s.databaseID(), s.collectionID(), todo.ID, patchData(patch, next))
	if err != nil {
		if backend.IsNotFound(err) {
			return model.Todo{}, notFound("Todo not found")
		}
		return model.Todo{}, err
	}
	updated := todoFromDocument(doc)
	s.search.IndexTodo(updated)
	return updated, nil
}

// DeleteTodo removes only the todo itself. Children keep dangling references
// and attachment blobs stay in the bucket.
func (s *Service) DeleteTodo(ctx context.Context, rc access.RequestContext, todoID string) error {
	identity, client, err := s.userClient(rc)
	if err != nil {
		return err
	}
	todo, err := s.loadOwnedTodo(ctx, client, identity, todoID, "You can only delete your own todos")
	if err != nil {
		return err
	}
	if err := client.Documents.DeleteDocument(ctx, s.databaseID(), s.collectionID(), todo.ID); err != nil {
		if backend.IsNotFound(err) {
			return notFound("Todo not found")
		}
		return err
	}
	if len(todo.Children) > 0 {
		log.Printf("todos: deleted %s leaving %d child references", todo.ID, len(todo.Children))
	}
	s.search.DeleteTodo(todo.ID)
	return nil
}
