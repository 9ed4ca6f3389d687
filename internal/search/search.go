package search

import (
	"strings"

	"tasktree/api/internal/model"
)

// Query describes an owner-scoped todo search.
type Query struct {
	Text    string
	OwnerID string
	Limit   int
}

// TodoRecord is the data we index for a todo.
type TodoRecord struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedBy string `json:"createdBy"`
	Completed bool   `json:"completed"`
	Priority  string `json:"priority"`
}

func RecordFromTodo(todo model.Todo) TodoRecord {
	return TodoRecord{
		ID:        todo.ID,
		Text:      todo.Text,
		CreatedBy: todo.CreatedBy,
		Completed: todo.Completed,
		Priority:  string(todo.Priority),
	}
}

// Searcher returns matching todo ids, best match first.
type Searcher interface {
	Search(q Query) ([]string, error)
	Healthy() bool
}

// Indexer can push todos into a search index.
type Indexer interface {
	IndexTodo(record TodoRecord) error
	DeleteTodo(id string) error
}

// Engine is a full search backend.
type Engine interface {
	Searcher
	Indexer
}

// matchText reports whether every term of query occurs in text, ignoring case.
func matchText(text, query string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if !strings.Contains(lower, term) {
			return false
		}
	}
	return true
}
